package sqldoc

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/resource-api/internal/domain"
	"github.com/phrazzld/resource-api/internal/store"
)

// Compile-time check that Store satisfies store.Adapter.
var _ store.Adapter = (*Store)(nil)

// Store is a SQL-backed store.Adapter.
type Store struct {
	db      *sql.DB
	dialect Dialect
	seeds   map[string][]domain.Record
	logger  *slog.Logger
}

// New creates a Store over an open, migrated database. seeds provides the
// records written the first time each kind is loaded.
func New(db *sql.DB, dialect Dialect, seeds map[string][]domain.Record, logger *slog.Logger) *Store {
	if db == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("db cannot be nil for sqldoc")
	}
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for sqldoc")
	}
	return &Store{
		db:      db,
		dialect: dialect,
		seeds:   seeds,
		logger:  logger.With(slog.String("component", "sqldoc"), slog.String("dialect", dialect.Name)),
	}
}

// DB returns the underlying connection pool.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Load implements store.Adapter.
func (s *Store) Load(ctx context.Context, kind string) (*store.Collection, error) {
	if err := s.ensureCollection(ctx, kind); err != nil {
		return nil, store.StorageFailure(kind, "seed", MapError(err))
	}

	rows, err := s.db.QueryContext(ctx,
		s.dialect.rebind(`SELECT body FROM documents WHERE kind = ? ORDER BY seq, id`),
		kind)
	if err != nil {
		return nil, store.StorageFailure(kind, "load", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	records := []domain.Record{}
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, store.StorageFailure(kind, "load", MapError(err))
		}
		r, err := decode(body)
		if err != nil {
			return nil, store.StorageFailure(kind, "load", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, store.StorageFailure(kind, "load", MapError(err))
	}

	return store.NewCollection(kind, records), nil
}

// ensureCollection registers kind and writes its seed records the first time
// it is seen.
func (s *Store) ensureCollection(ctx context.Context, kind string) error {
	var exists int
	err := s.db.QueryRowContext(ctx,
		s.dialect.rebind(`SELECT 1 FROM collections WHERE kind = ?`), kind).Scan(&exists)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	created := false
	seeds := s.seeds[kind]
	err = runInTx(ctx, s.db, s.logger, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			s.dialect.rebind(`INSERT INTO collections (kind) VALUES (?) ON CONFLICT (kind) DO NOTHING`), kind)
		if err != nil {
			return err
		}
		if created, err = checkRowsAffected(res); err != nil || !created {
			// !created: another writer got there first
			return err
		}

		for i, r := range seeds {
			body, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("failed to encode seed record: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				s.dialect.rebind(`INSERT INTO documents (kind, id, seq, version, body) VALUES (?, ?, ?, ?, ?)`),
				kind, r.ID(), i+1, r.Version(), string(body)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil || !created {
		return err
	}

	s.logger.InfoContext(ctx, "created collection",
		slog.String("kind", kind),
		slog.Int("seed_records", len(seeds)))
	return nil
}

// Save implements store.Adapter. The whole changeset is applied in one
// transaction and rolled back on the first conflict.
func (s *Store) Save(ctx context.Context, c *store.Collection) error {
	changes := c.Changes()
	if changes.Empty() {
		return nil
	}

	err := runInTx(ctx, s.db, s.logger, func(tx *sql.Tx) error {
		for _, u := range changes.Upserts {
			if err := s.upsert(ctx, tx, c.Kind, u); err != nil {
				return err
			}
		}
		for _, d := range changes.Deletes {
			if err := s.delete(ctx, tx, c.Kind, d); err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil || errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrStorage) {
		return err
	}
	return store.StorageFailure(c.Kind, "save", MapError(err))
}

func (s *Store) upsert(ctx context.Context, tx *sql.Tx, kind string, u store.Upsert) error {
	id := u.Record.ID()
	body, err := json.Marshal(u.Record)
	if err != nil {
		return store.StorageFailure(kind, "save", fmt.Errorf("failed to encode record %s: %w", id, err))
	}

	var res sql.Result
	if u.Insert {
		var seq int64
		if err := tx.QueryRowContext(ctx,
			s.dialect.rebind(`SELECT COALESCE(MAX(seq), 0) + 1 FROM documents WHERE kind = ?`),
			kind).Scan(&seq); err != nil {
			return store.StorageFailure(kind, "save", MapError(err))
		}
		res, err = tx.ExecContext(ctx,
			s.dialect.rebind(`INSERT INTO documents (kind, id, seq, version, body) VALUES (?, ?, ?, ?, ?)
				ON CONFLICT (kind, id) DO NOTHING`),
			kind, id, seq, u.Record.Version(), string(body))
	} else {
		res, err = tx.ExecContext(ctx,
			s.dialect.rebind(`UPDATE documents SET version = ?, body = ? WHERE kind = ? AND id = ? AND version = ?`),
			u.Record.Version(), string(body), kind, id, u.Expected)
	}
	if err != nil {
		return store.StorageFailure(kind, "save", MapError(err))
	}

	ok, err := checkRowsAffected(res)
	if err != nil {
		return store.StorageFailure(kind, "save", err)
	}
	if !ok {
		return store.ConflictFailure(kind, "save", id, u.Expected, s.currentVersion(ctx, tx, kind, id))
	}
	return nil
}

func (s *Store) delete(ctx context.Context, tx *sql.Tx, kind string, d store.Delete) error {
	res, err := tx.ExecContext(ctx,
		s.dialect.rebind(`DELETE FROM documents WHERE kind = ? AND id = ? AND version = ?`),
		kind, d.ID, d.Expected)
	if err != nil {
		return store.StorageFailure(kind, "save", MapError(err))
	}
	ok, err := checkRowsAffected(res)
	if err != nil {
		return store.StorageFailure(kind, "save", err)
	}
	if !ok {
		return store.ConflictFailure(kind, "save", d.ID, d.Expected, s.currentVersion(ctx, tx, kind, d.ID))
	}
	return nil
}

// currentVersion reports the stored version of a record for conflict
// messages; 0 when it is gone or cannot be read.
func (s *Store) currentVersion(ctx context.Context, tx *sql.Tx, kind, id string) int64 {
	var v int64
	if err := tx.QueryRowContext(ctx,
		s.dialect.rebind(`SELECT version FROM documents WHERE kind = ? AND id = ?`),
		kind, id).Scan(&v); err != nil {
		return 0
	}
	return v
}

// Close implements store.Adapter.
func (s *Store) Close() error {
	return s.db.Close()
}

func decode(body []byte) (domain.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var r domain.Record
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	return r, nil
}
