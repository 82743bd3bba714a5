package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// IdentityKind is the reserved collection name identities are persisted under.
const IdentityKind = "identities"

// Identity validation errors
var (
	ErrEmptyIdentityID     = errors.New("identity ID cannot be empty")
	ErrEmptyEmail          = errors.New("email cannot be empty")
	ErrPasswordTooShort    = errors.New("password must be at least 8 characters long")
	ErrPasswordTooLong     = errors.New("password must be at most 72 characters long")
	ErrEmptyPassword       = errors.New("password cannot be empty")
	ErrEmptyHashedPassword = errors.New("hashed password cannot be empty")
)

// Role is the closed set of caller roles.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Identity represents an authenticated caller. It is created by registration
// and read by the authorization gate on every authenticated request.
type Identity struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	Role           Role      `json:"role"`
	Password       string    `json:"-"` // Plaintext password, only set during registration
	HashedPassword string    `json:"-"` // Never expose password hash in JSON
	CreatedAt      time.Time `json:"createdAt"`
}

// NewIdentity creates a new Identity with the given email, name, password and role.
// It generates a new UUID for the identity ID and sets the creation timestamp.
// Returns an error if validation fails.
//
// The caller is responsible for hashing the password before storing the identity.
func NewIdentity(email, name, password string, role Role) (*Identity, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	identity := &Identity{
		ID:        IdentityIDFor(email),
		Email:     email,
		Name:      strings.TrimSpace(name),
		Role:      role,
		Password:  password,
		CreatedAt: time.Now().UTC(),
	}

	if err := identity.Validate(); err != nil {
		return nil, err
	}

	return identity, nil
}

// IdentityIDFor derives the identity id from a normalized email. Two
// registrations racing for one email produce the same id, so the storage
// adapter's insert check rejects the second.
func IdentityIDFor(email string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("mailto:"+email)).String()
}

// Validate checks if the Identity has valid data.
func (i *Identity) Validate() error {
	if i.ID == "" {
		return ErrEmptyIdentityID
	}

	if i.Email == "" {
		return ErrEmptyEmail
	}

	if !validateEmailFormat(i.Email) {
		return ErrInvalidEmail
	}

	if !i.Role.Valid() {
		return ErrInvalidRole
	}

	if i.Password != "" {
		if len(i.Password) < 8 {
			return ErrPasswordTooShort
		}
		if len(i.Password) > 72 {
			return ErrPasswordTooLong
		}
	} else if i.HashedPassword == "" {
		// Stored identities must carry a hash instead
		return ErrEmptyPassword
	}

	return nil
}

// IsAdmin reports whether the identity holds the admin role.
func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == RoleAdmin
}

// ToRecord converts the identity into its persisted record form.
func (i *Identity) ToRecord() Record {
	return Record{
		FieldID:        i.ID,
		"email":        i.Email,
		"name":         i.Name,
		"role":         string(i.Role),
		"passwordHash": i.HashedPassword,
		FieldCreatedAt: i.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// IdentityFromRecord rebuilds an identity from its persisted record form.
func IdentityFromRecord(r Record) (*Identity, error) {
	str := func(key string) string {
		s, _ := r[key].(string)
		return s
	}

	identity := &Identity{
		ID:             r.ID(),
		Email:          str("email"),
		Name:           str("name"),
		Role:           Role(str("role")),
		HashedPassword: str("passwordHash"),
	}
	if ts := str(FieldCreatedAt); ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, NewValidationError(FieldCreatedAt, "has invalid format", ErrInvalidFormat)
		}
		identity.CreatedAt = t
	}

	if err := identity.Validate(); err != nil {
		return nil, err
	}
	return identity, nil
}

// validateEmailFormat performs basic validation of email format: a non-empty
// local part, an @, and a domain with a dot that is neither first nor last.
func validateEmailFormat(email string) bool {
	at := strings.IndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return false
	}

	domainPart := email[at+1:]
	if len(domainPart) < 3 { // minimum would be "a.b"
		return false
	}

	dot := strings.IndexByte(domainPart, '.')
	return dot > 0 && dot < len(domainPart)-1
}
