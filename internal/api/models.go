package api

import (
	"time"

	"github.com/phrazzld/resource-api/internal/domain"
	"github.com/phrazzld/resource-api/internal/query"
)

// RegisterRequest defines the payload for the registration endpoint.
type RegisterRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Name     string `json:"name"     validate:"max=200"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// LoginRequest defines the payload for the login endpoint.
type LoginRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=1"`
}

// AuthResponse defines the successful response for authentication endpoints.
type AuthResponse struct {
	IdentityID string `json:"identity_id"`

	// AccessToken is the bearer token used for API authorization.
	AccessToken string `json:"token"`

	// RefreshToken is used to obtain a new token pair.
	RefreshToken string `json:"refresh_token,omitempty"`

	// ExpiresAt is the RFC 3339 time at which the access token expires.
	ExpiresAt string `json:"expires_at,omitempty"`
}

// RefreshTokenRequest defines the payload for the token refresh endpoint.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// RefreshTokenResponse defines the successful response for the token refresh endpoint.
type RefreshTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    string `json:"expires_at"`
}

// IdentityResponse is the public view of an identity. The password hash is
// never part of it.
type IdentityResponse struct {
	ID        string      `json:"id"`
	Email     string      `json:"email"`
	Name      string      `json:"name"`
	Role      domain.Role `json:"role"`
	CreatedAt time.Time   `json:"createdAt"`
}

// SearchResponse is the body of GET /api/{kind}/search.
type SearchResponse struct {
	Count      int              `json:"count"`
	Pagination query.Pagination `json:"pagination"`
	Results    []domain.Record  `json:"results"`
}

// DeleteResponse echoes the removed record.
type DeleteResponse struct {
	Message string        `json:"message"`
	Deleted domain.Record `json:"deleted"`
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Status    string   `json:"status"`
	Message   string   `json:"message"`
	Timestamp string   `json:"timestamp"`
	Kinds     []string `json:"kinds"`
}

func identityToResponse(identity *domain.Identity) IdentityResponse {
	return IdentityResponse{
		ID:        identity.ID,
		Email:     identity.Email,
		Name:      identity.Name,
		Role:      identity.Role,
		CreatedAt: identity.CreatedAt,
	}
}
