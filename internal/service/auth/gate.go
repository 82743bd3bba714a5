package auth

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"

	"github.com/phrazzld/resource-api/internal/domain"
	"github.com/phrazzld/resource-api/internal/platform/logger"
	"github.com/phrazzld/resource-api/internal/store"
)

// State is a step of the authorization state machine:
//
//	Unauthenticated -> TokenExtracted -> TokenVerified -> IdentityResolved -> Authorized
//
// Any step can end in Denied instead.
type State int

// Gate states.
const (
	Unauthenticated State = iota
	TokenExtracted
	TokenVerified
	IdentityResolved
	Authorized
	Denied
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case TokenExtracted:
		return "token_extracted"
	case TokenVerified:
		return "token_verified"
	case IdentityResolved:
		return "identity_resolved"
	case Authorized:
		return "authorized"
	case Denied:
		return "denied"
	default:
		return "unknown"
	}
}

// Decision is where a request ended up in the state machine.
type Decision struct {
	State    State
	Identity *domain.Identity
	// Err explains a Denied decision, or carries a storage failure that
	// stopped identity resolution.
	Err error
}

// Allowed reports whether the request may proceed.
func (d Decision) Allowed() bool {
	return d.State == Authorized
}

// Authenticated reports whether an identity was resolved.
func (d Decision) Authenticated() bool {
	return d.Identity != nil && (d.State == IdentityResolved || d.State == Authorized)
}

// Policy lists who may perform an operation: callers holding one of Roles,
// or, when AllowOwner is set, the owner of the record concerned.
type Policy struct {
	Roles      []domain.Role
	AllowOwner bool
}

// Standard policies.
var (
	// PolicyCreate admits every authenticated caller.
	PolicyCreate = Policy{Roles: []domain.Role{domain.RoleUser, domain.RoleAdmin}}
	// PolicyOwnerOrAdmin admits admins and the record owner.
	PolicyOwnerOrAdmin = Policy{Roles: []domain.Role{domain.RoleAdmin}, AllowOwner: true}
)

// IdentityLookup resolves identity ids. A missing identity must be reported
// with an error wrapping store.ErrNotFound.
type IdentityLookup interface {
	Get(ctx context.Context, id string) (*domain.Identity, error)
}

// Gate authenticates bearer tokens and makes authorization decisions. It
// never mutates anything.
type Gate struct {
	tokens     TokenService
	identities IdentityLookup
	logger     *slog.Logger
}

// NewGate creates a Gate.
func NewGate(tokens TokenService, identities IdentityLookup, log *slog.Logger) *Gate {
	if tokens == nil || identities == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("token service and identity lookup are required for the gate")
	}
	if log == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for gate")
	}
	return &Gate{tokens: tokens, identities: identities, logger: log.With(slog.String("component", "gate"))}
}

// ExtractBearer returns the token of an "Authorization: Bearer <token>" header.
func ExtractBearer(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrMissingCredential
	}
	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" || strings.ContainsAny(token, " \t") {
		return "", ErrMalformedHeader
	}
	return token, nil
}

// Authenticate walks a request from Unauthenticated to IdentityResolved.
// The returned decision is Denied when any step fails; storage failures
// while resolving the identity are carried in Err without being turned into
// a credential error.
func (g *Gate) Authenticate(ctx context.Context, authorization string) Decision {
	log := logger.FromContextOrDefault(ctx, g.logger)
	d := Decision{State: Unauthenticated}

	token, err := ExtractBearer(authorization)
	if err != nil {
		return g.deny(ctx, d, err)
	}
	d.State = TokenExtracted

	claims, err := g.tokens.ValidateToken(ctx, token)
	if err != nil {
		return g.deny(ctx, d, err)
	}
	d.State = TokenVerified

	identity, err := g.identities.Get(ctx, claims.IdentityID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return g.deny(ctx, d, ErrUnknownIdentity)
		}
		return g.deny(ctx, d, err)
	}
	d.State = IdentityResolved
	d.Identity = identity

	log.Debug("identity resolved",
		slog.String("identity_id", identity.ID),
		slog.String("role", string(identity.Role)))
	return d
}

// Authorize decides whether identity may act under p on rec. rec may be nil
// for operations that do not target an existing record.
func (g *Gate) Authorize(ctx context.Context, identity *domain.Identity, p Policy, rec domain.Record) Decision {
	d := Decision{State: IdentityResolved, Identity: identity}
	if identity == nil {
		d.State = Unauthenticated
		return g.deny(ctx, d, ErrMissingCredential)
	}

	if slices.Contains(p.Roles, identity.Role) {
		d.State = Authorized
		return d
	}
	if p.AllowOwner && rec != nil && rec.OwnerID() != "" && rec.OwnerID() == identity.ID {
		d.State = Authorized
		return d
	}
	return g.deny(ctx, d, ErrForbidden)
}

// Check is Authorize reduced to an error, for use as a repository
// authorization hook.
func (g *Gate) Check(ctx context.Context, identity *domain.Identity, p Policy) func(domain.Record) error {
	return func(rec domain.Record) error {
		return g.Authorize(ctx, identity, p, rec).Err
	}
}

func (g *Gate) deny(ctx context.Context, d Decision, err error) Decision {
	logger.FromContextOrDefault(ctx, g.logger).Debug("request denied",
		slog.String("state", d.State.String()),
		slog.String("reason", err.Error()))
	d.State = Denied
	d.Err = err
	return d
}
