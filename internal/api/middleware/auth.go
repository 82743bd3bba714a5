package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/phrazzld/resource-api/internal/api"
	"github.com/phrazzld/resource-api/internal/api/shared"
	"github.com/phrazzld/resource-api/internal/platform/logger"
	"github.com/phrazzld/resource-api/internal/service/auth"
)

// AuthMiddleware runs the authorization gate for incoming requests and puts
// the resolved identity on the request context.
type AuthMiddleware struct {
	gate *auth.Gate
}

// NewAuthMiddleware creates a new AuthMiddleware with the given gate.
func NewAuthMiddleware(gate *auth.Gate) *AuthMiddleware {
	if gate == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("gate cannot be nil for AuthMiddleware")
	}
	return &AuthMiddleware{gate: gate}
}

// Authenticate rejects requests without a valid bearer token. A request
// already identified by Identify passes straight through.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if shared.IdentityFrom(r.Context()) != nil {
			next.ServeHTTP(w, r)
			return
		}
		m.resolve(w, r, next)
	})
}

// Identify resolves the caller when an Authorization header is present and
// lets anonymous requests through. A header that is present but invalid is
// still rejected.
func (m *AuthMiddleware) Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.TrimSpace(r.Header.Get("Authorization")) == "" {
			next.ServeHTTP(w, r)
			return
		}
		m.resolve(w, r, next)
	})
}

func (m *AuthMiddleware) resolve(w http.ResponseWriter, r *http.Request, next http.Handler) {
	d := m.gate.Authenticate(r.Context(), r.Header.Get("Authorization"))
	if !d.Authenticated() {
		api.HandleAPIError(w, r, d.Err)
		return
	}

	ctx := shared.WithIdentity(r.Context(), d.Identity)
	log := logger.FromContextOrDefault(ctx, slog.Default()).With(slog.String("identity_id", d.Identity.ID))
	ctx = logger.WithContext(ctx, log)

	next.ServeHTTP(w, r.WithContext(ctx))
}
