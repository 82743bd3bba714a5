package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/resource-api/internal/api/shared"
	"github.com/phrazzld/resource-api/internal/config"
	"github.com/phrazzld/resource-api/internal/domain"
	"github.com/phrazzld/resource-api/internal/platform/logger"
	"github.com/phrazzld/resource-api/internal/service/auth"
	"github.com/phrazzld/resource-api/internal/store"
)

// IdentityDirectory is what the auth endpoints need from the identity store.
type IdentityDirectory interface {
	Register(ctx context.Context, email, name, password string, role domain.Role) (*domain.Identity, error)
	Authenticate(ctx context.Context, email, password string) (*domain.Identity, error)
	Get(ctx context.Context, id string) (*domain.Identity, error)
}

// AuthHandler handles authentication-related API requests.
type AuthHandler struct {
	identities IdentityDirectory
	tokens     auth.TokenService
	authConfig config.AuthConfig
	now        func() time.Time
	logger     *slog.Logger
}

// NewAuthHandler creates a new AuthHandler with the given dependencies.
func NewAuthHandler(
	identities IdentityDirectory,
	tokens auth.TokenService,
	authConfig config.AuthConfig,
	log *slog.Logger,
) *AuthHandler {
	if identities == nil || tokens == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("identity directory and token service are required for AuthHandler")
	}
	if log == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for AuthHandler")
	}
	return &AuthHandler{
		identities: identities,
		tokens:     tokens,
		authConfig: authConfig,
		now:        time.Now,
		logger:     log.With(slog.String("component", "auth_handler")),
	}
}

// Register handles POST /api/auth/register. Self-registered identities
// always get the user role.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req RegisterRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		HandleAPIError(w, r, err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		HandleAPIError(w, r, err)
		return
	}

	identity, err := h.identities.Register(r.Context(), req.Email, req.Name, req.Password, domain.RoleUser)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	resp, err := h.issueTokens(r.Context(), identity.ID)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	log.Info("identity registered via API", slog.String("identity_id", identity.ID))
	shared.RespondWithJSON(w, r, http.StatusCreated, resp)
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		HandleAPIError(w, r, err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		HandleAPIError(w, r, err)
		return
	}

	identity, err := h.identities.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	resp, err := h.issueTokens(r.Context(), identity.ID)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// RefreshToken handles POST /api/auth/refresh. A refresh token for an
// identity that no longer exists is rejected.
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		HandleAPIError(w, r, err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		HandleAPIError(w, r, err)
		return
	}

	claims, err := h.tokens.ValidateRefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	if _, err := h.identities.Get(r.Context(), claims.IdentityID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = auth.ErrUnknownIdentity
		}
		HandleAPIError(w, r, err)
		return
	}

	pair, err := h.issueTokens(r.Context(), claims.IdentityID)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, RefreshTokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt,
	})
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFrom(r.Context())
	if identity == nil {
		HandleAPIError(w, r, auth.ErrMissingCredential)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, identityToResponse(identity))
}

func (h *AuthHandler) issueTokens(ctx context.Context, identityID string) (AuthResponse, error) {
	log := logger.FromContextOrDefault(ctx, h.logger)

	access, err := h.tokens.GenerateToken(ctx, identityID)
	if err != nil {
		log.Error("failed to generate access token", slog.String("identity_id", identityID))
		return AuthResponse{}, err
	}
	refresh, err := h.tokens.GenerateRefreshToken(ctx, identityID)
	if err != nil {
		log.Error("failed to generate refresh token", slog.String("identity_id", identityID))
		return AuthResponse{}, err
	}

	lifetime := time.Duration(h.authConfig.TokenLifetimeMinutes) * time.Minute
	return AuthResponse{
		IdentityID:   identityID,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    h.now().UTC().Add(lifetime).Format(time.RFC3339),
	}, nil
}
