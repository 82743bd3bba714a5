// Package repository implements CRUD over the records of one kind. Every
// operation loads a fresh collection from the storage adapter; writes are
// validated here and serialized by the adapter's Save.
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/phrazzld/resource-api/internal/domain"
	"github.com/phrazzld/resource-api/internal/platform/logger"
	"github.com/phrazzld/resource-api/internal/query"
	"github.com/phrazzld/resource-api/internal/store"
)

// Mutation carries the preconditions of a write.
type Mutation struct {
	// ExpectedVersion, when non-zero, must equal the current record version.
	ExpectedVersion int64
	// Authorize is called with the current record before anything changes.
	// A non-nil error aborts the write and is returned unchanged.
	Authorize func(domain.Record) error
}

// Scope restricts reads to the records of one owner. The zero value sees
// every record.
type Scope struct {
	OwnerID string
}

func (s Scope) allows(r domain.Record) bool {
	return s.OwnerID == "" || r.OwnerID() == s.OwnerID
}

// Option configures a Repository.
type Option func(*Repository)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// Repository manages the records of a single kind.
type Repository struct {
	adapter store.Adapter
	kind    domain.Kind
	fields  fieldValidator
	now     func() time.Time
	logger  *slog.Logger
}

// New creates a Repository for kind backed by adapter.
func New(adapter store.Adapter, kind domain.Kind, log *slog.Logger, opts ...Option) *Repository {
	if adapter == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("adapter cannot be nil for repository")
	}
	if log == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for repository")
	}
	r := &Repository{
		adapter: adapter,
		kind:    kind,
		fields:  fieldValidator{kind: kind, validate: validator.New()},
		now:     time.Now,
		logger:  log.With(slog.String("component", "repository"), slog.String("kind", kind.Name)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Kind returns the kind this repository serves.
func (r *Repository) Kind() domain.Kind {
	return r.kind
}

// Records returns every record visible in scope, in insertion order.
func (r *Repository) Records(ctx context.Context, scope Scope) ([]domain.Record, error) {
	c, err := r.adapter.Load(ctx, r.kind.Name)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Record, 0, len(c.Records))
	for _, rec := range c.Records {
		if scope.allows(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// List returns one page of the records visible in scope that match criteria.
func (r *Repository) List(ctx context.Context, scope Scope, criteria query.Criteria) (query.Page, error) {
	records, err := r.Records(ctx, scope)
	if err != nil {
		return query.Page{}, err
	}
	return query.Apply(records, criteria), nil
}

// GetByID returns the record with id or an error wrapping store.ErrNotFound.
func (r *Repository) GetByID(ctx context.Context, id string) (domain.Record, error) {
	c, err := r.adapter.Load(ctx, r.kind.Name)
	if err != nil {
		return nil, err
	}
	_, rec := c.Find(id)
	if rec == nil {
		return nil, r.notFound("get", id)
	}
	return rec, nil
}

// GetScoped is GetByID restricted to scope. A record outside the scope is
// reported as not found, so a caller cannot learn which ids exist.
func (r *Repository) GetScoped(ctx context.Context, scope Scope, id string) (domain.Record, error) {
	rec, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !scope.allows(rec) {
		return nil, r.notFound("get", id)
	}
	return rec, nil
}

// Create validates fields, assigns an id, version 1 and timestamps, and
// persists the new record. ownerID is recorded for owner-visibility kinds.
func (r *Repository) Create(ctx context.Context, fields map[string]any, ownerID string) (domain.Record, error) {
	log := logger.FromContextOrDefault(ctx, r.logger)

	input, err := r.fields.input(fields)
	if err != nil {
		return nil, err
	}
	rec := domain.Record(input)
	if err := r.fields.complete(rec); err != nil {
		return nil, err
	}
	if r.kind.Owned() {
		if ownerID == "" {
			return nil, domain.NewValidationError(domain.FieldOwnerID, "is required", domain.ErrValidation)
		}
		rec[domain.FieldOwnerID] = ownerID
	}

	c, err := r.adapter.Load(ctx, r.kind.Name)
	if err != nil {
		return nil, err
	}

	id, err := r.nextID(c)
	if err != nil {
		return nil, err
	}
	rec[domain.FieldID] = id
	rec[domain.FieldVersion] = versionValue(1)
	rec.Touch(r.now())

	c.Append(rec)
	if err := r.save(ctx, c); err != nil {
		return nil, err
	}

	log.Info("record created",
		slog.String("kind", r.kind.Name),
		slog.String("id", rec.ID()))
	return rec.Clone(), nil
}

// Update replaces every non-reserved field of the record with fields.
// Fields left out fall back to their default or are removed.
func (r *Repository) Update(ctx context.Context, id string, fields map[string]any, m Mutation) (domain.Record, error) {
	return r.mutate(ctx, "update", id, m, func(current domain.Record) (domain.Record, error) {
		input, err := r.fields.input(fields)
		if err != nil {
			return nil, err
		}
		next := reservedOnly(current)
		for k, v := range input {
			next[k] = v
		}
		if err := r.fields.complete(next); err != nil {
			return nil, err
		}
		return next, nil
	})
}

// Patch merges fields into the record. Only the fields present in the input
// change; a null value clears an optional field.
func (r *Repository) Patch(ctx context.Context, id string, fields map[string]any, m Mutation) (domain.Record, error) {
	return r.mutate(ctx, "patch", id, m, func(current domain.Record) (domain.Record, error) {
		input, err := r.fields.input(fields)
		if err != nil {
			return nil, err
		}
		next := current.Clone()
		for k, v := range input {
			next[k] = v
		}
		if err := r.fields.complete(next); err != nil {
			return nil, err
		}
		return next, nil
	})
}

// Remove deletes the record and returns it as it was.
func (r *Repository) Remove(ctx context.Context, id string, m Mutation) (domain.Record, error) {
	log := logger.FromContextOrDefault(ctx, r.logger)

	c, current, i, err := r.loadForWrite(ctx, "remove", id, m)
	if err != nil {
		return nil, err
	}

	removed := c.RemoveAt(i)
	if err := r.save(ctx, c); err != nil {
		return nil, err
	}

	log.Info("record removed",
		slog.String("kind", r.kind.Name),
		slog.String("id", current.ID()))
	return removed, nil
}

func (r *Repository) mutate(
	ctx context.Context,
	op, id string,
	m Mutation,
	build func(current domain.Record) (domain.Record, error),
) (domain.Record, error) {
	log := logger.FromContextOrDefault(ctx, r.logger)

	c, current, i, err := r.loadForWrite(ctx, op, id, m)
	if err != nil {
		return nil, err
	}

	next, err := build(current)
	if err != nil {
		return nil, err
	}
	next[domain.FieldVersion] = versionValue(current.Version() + 1)
	next.Touch(r.now())

	c.Replace(i, next)
	if err := r.save(ctx, c); err != nil {
		return nil, err
	}

	log.Info("record updated",
		slog.String("kind", r.kind.Name),
		slog.String("operation", op),
		slog.String("id", next.ID()),
		slog.Int64("version", next.Version()))
	return next.Clone(), nil
}

// loadForWrite loads a fresh collection, finds id and checks the mutation's
// preconditions against the current record.
func (r *Repository) loadForWrite(
	ctx context.Context,
	op, id string,
	m Mutation,
) (*store.Collection, domain.Record, int, error) {
	c, err := r.adapter.Load(ctx, r.kind.Name)
	if err != nil {
		return nil, nil, 0, err
	}
	i, current := c.Find(id)
	if current == nil {
		return nil, nil, 0, r.notFound(op, id)
	}
	if m.Authorize != nil {
		if err := m.Authorize(current); err != nil {
			return nil, nil, 0, err
		}
	}
	if m.ExpectedVersion != 0 && m.ExpectedVersion != current.Version() {
		return nil, nil, 0, store.ConflictFailure(r.kind.Name, op, id, m.ExpectedVersion, current.Version())
	}
	return c, current, i, nil
}

// save persists c even when the request that triggered it goes away.
func (r *Repository) save(ctx context.Context, c *store.Collection) error {
	err := r.adapter.Save(context.WithoutCancel(ctx), c)
	if err != nil {
		logger.FromContextOrDefault(ctx, r.logger).Warn("save failed",
			slog.String("kind", r.kind.Name),
			slog.String("error", err.Error()))
	}
	return err
}

func (r *Repository) nextID(c *store.Collection) (any, error) {
	switch r.kind.IDStrategy {
	case domain.IDNumeric:
		var max int64
		for _, rec := range c.Records {
			if n, ok := domain.Number(rec[domain.FieldID]); ok && int64(n) > max {
				max = int64(n)
			}
		}
		return json.Number(strconv.FormatInt(max+1, 10)), nil
	default:
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate record id: %w", err)
		}
		return id.String(), nil
	}
}

func (r *Repository) notFound(op, id string) error {
	return store.NewStoreError(r.kind.Name, op, "no record with id "+strconv.Quote(id), store.ErrRecordNotFound)
}

func reservedOnly(r domain.Record) domain.Record {
	out := make(domain.Record, len(r))
	for k, v := range r {
		if domain.IsReservedField(k) {
			out[k] = v
		}
	}
	return out
}

func versionValue(v int64) json.Number {
	return json.Number(strconv.FormatInt(v, 10))
}
