// Package identity manages the callers known to the service. Identities are
// stored as records of the reserved "identities" kind through the same
// storage adapter as every other kind.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/phrazzld/resource-api/internal/domain"
	"github.com/phrazzld/resource-api/internal/platform/logger"
	"github.com/phrazzld/resource-api/internal/service/auth"
	"github.com/phrazzld/resource-api/internal/store"
)

// ErrInvalidLogin is returned for an unknown email or a wrong password. The
// two cases are deliberately indistinguishable.
var ErrInvalidLogin = fmt.Errorf("%w: invalid email or password", auth.ErrInvalidCredential)

// Hasher hashes and verifies passwords.
type Hasher interface {
	auth.PasswordHasher
	auth.PasswordVerifier
}

// Directory registers, authenticates and resolves identities.
type Directory struct {
	adapter store.Adapter
	hasher  Hasher
	logger  *slog.Logger

	// compared against when the email is unknown so both paths cost a bcrypt run
	dummyHash string
}

var _ auth.IdentityLookup = (*Directory)(nil)

// NewDirectory creates a Directory.
func NewDirectory(adapter store.Adapter, hasher Hasher, log *slog.Logger) (*Directory, error) {
	if adapter == nil {
		return nil, domain.NewValidationError("adapter", "cannot be nil", domain.ErrValidation)
	}
	if hasher == nil {
		return nil, domain.NewValidationError("hasher", "cannot be nil", domain.ErrValidation)
	}
	if log == nil {
		log = slog.Default()
	}
	dummy, err := hasher.Hash("placeholder-password")
	if err != nil {
		return nil, err
	}
	return &Directory{
		adapter:   adapter,
		hasher:    hasher,
		logger:    log.With(slog.String("component", "identity_directory")),
		dummyHash: dummy,
	}, nil
}

// Register creates a new identity. The email must not be in use.
func (d *Directory) Register(ctx context.Context, email, name, password string, role domain.Role) (*domain.Identity, error) {
	log := logger.FromContextOrDefault(ctx, d.logger)

	if role == "" {
		role = domain.RoleUser
	}
	identity, err := domain.NewIdentity(email, name, password, role)
	if err != nil {
		return nil, asValidationError(err)
	}

	hash, err := d.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	identity.HashedPassword = hash
	identity.Password = ""

	c, err := d.adapter.Load(ctx, domain.IdentityKind)
	if err != nil {
		return nil, err
	}
	if _, existing := findByEmail(c, identity.Email); existing != nil {
		return nil, store.NewStoreError(domain.IdentityKind, "register", "email already registered", store.ErrEmailExists)
	}

	rec := identity.ToRecord()
	rec[domain.FieldVersion] = 1
	c.Append(rec)
	if err := d.adapter.Save(context.WithoutCancel(ctx), c); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, store.NewStoreError(domain.IdentityKind, "register", "email already registered", store.ErrEmailExists)
		}
		return nil, err
	}

	log.Info("identity registered",
		slog.String("identity_id", identity.ID),
		slog.String("role", string(identity.Role)))
	return identity, nil
}

// Authenticate checks an email and password pair.
func (d *Directory) Authenticate(ctx context.Context, email, password string) (*domain.Identity, error) {
	c, err := d.adapter.Load(ctx, domain.IdentityKind)
	if err != nil {
		return nil, err
	}

	_, rec := findByEmail(c, strings.ToLower(strings.TrimSpace(email)))
	if rec == nil {
		_ = d.hasher.Compare(d.dummyHash, password)
		return nil, ErrInvalidLogin
	}

	identity, err := domain.IdentityFromRecord(rec)
	if err != nil {
		return nil, fmt.Errorf("stored identity is invalid: %w", err)
	}
	if err := d.hasher.Compare(identity.HashedPassword, password); err != nil {
		return nil, ErrInvalidLogin
	}
	return identity, nil
}

// Get resolves an identity by id. Implements auth.IdentityLookup.
func (d *Directory) Get(ctx context.Context, id string) (*domain.Identity, error) {
	c, err := d.adapter.Load(ctx, domain.IdentityKind)
	if err != nil {
		return nil, err
	}
	_, rec := c.Find(id)
	if rec == nil {
		return nil, store.NewStoreError(domain.IdentityKind, "get", "no identity with that id", store.ErrIdentityNotFound)
	}
	identity, err := domain.IdentityFromRecord(rec)
	if err != nil {
		return nil, fmt.Errorf("stored identity is invalid: %w", err)
	}
	return identity, nil
}

func findByEmail(c *store.Collection, email string) (int, domain.Record) {
	for i, r := range c.Records {
		if e, _ := r["email"].(string); strings.EqualFold(e, email) {
			return i, r
		}
	}
	return -1, nil
}

// asValidationError attaches the offending field to identity validation errors.
func asValidationError(err error) error {
	switch {
	case errors.Is(err, domain.ErrEmptyEmail), errors.Is(err, domain.ErrInvalidEmail):
		return domain.NewValidationError("email", err.Error(), err)
	case errors.Is(err, domain.ErrPasswordTooShort),
		errors.Is(err, domain.ErrPasswordTooLong),
		errors.Is(err, domain.ErrEmptyPassword):
		return domain.NewValidationError("password", err.Error(), err)
	case errors.Is(err, domain.ErrInvalidRole):
		return domain.NewValidationError("role", err.Error(), err)
	default:
		return err
	}
}
