package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/resource-api/internal/api/shared"
	"github.com/phrazzld/resource-api/internal/config"
	"github.com/phrazzld/resource-api/internal/domain"
	"github.com/phrazzld/resource-api/internal/identity"
	"github.com/phrazzld/resource-api/internal/service/auth"
	"github.com/phrazzld/resource-api/internal/store"
	"github.com/stretchr/testify/require"
)

var testAuthConfig = config.AuthConfig{
	JWTSecret:                   "api-handler-test-secret-at-least-32-chars",
	TokenLifetimeMinutes:        60,
	RefreshTokenLifetimeMinutes: 1440,
	BCryptCost:                  4,
}

func newTestTokens(t *testing.T) auth.TokenService {
	t.Helper()
	tokens, err := auth.NewTokenService(testAuthConfig)
	require.NoError(t, err)
	return tokens
}

// fakeDirectory is an in-memory IdentityDirectory keyed by email.
type fakeDirectory struct {
	byEmail   map[string]*domain.Identity
	passwords map[string]string
	err       error
}

func newFakeDirectory(identities ...*domain.Identity) *fakeDirectory {
	d := &fakeDirectory{byEmail: map[string]*domain.Identity{}, passwords: map[string]string{}}
	for _, i := range identities {
		d.byEmail[i.Email] = i
		d.passwords[i.Email] = "password123"
	}
	return d
}

func (d *fakeDirectory) Register(_ context.Context, email, name, password string, role domain.Role) (*domain.Identity, error) {
	if d.err != nil {
		return nil, d.err
	}
	if _, ok := d.byEmail[email]; ok {
		return nil, store.ErrEmailExists
	}
	found := &domain.Identity{ID: fmt.Sprintf("id-%d", len(d.byEmail)+1), Email: email, Name: name, Role: role}
	d.byEmail[email] = found
	d.passwords[email] = password
	return found, nil
}

func (d *fakeDirectory) Authenticate(_ context.Context, email, password string) (*domain.Identity, error) {
	if d.err != nil {
		return nil, d.err
	}
	found, ok := d.byEmail[email]
	if !ok || d.passwords[email] != password {
		return nil, identity.ErrInvalidLogin
	}
	return found, nil
}

func (d *fakeDirectory) Get(_ context.Context, id string) (*domain.Identity, error) {
	if d.err != nil {
		return nil, d.err
	}
	for _, found := range d.byEmail {
		if found.ID == id {
			return found, nil
		}
	}
	return nil, store.ErrIdentityNotFound
}

// newJSONRequest builds a request with a JSON body and optional chi URL params
// given as name/value pairs.
func newJSONRequest(t *testing.T, method, target string, body any, params ...string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")

	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(params); i += 2 {
		rctx.URLParams.Add(params[i], params[i+1])
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func withIdentity(req *http.Request, identity *domain.Identity) *http.Request {
	return req.WithContext(shared.WithIdentity(req.Context(), identity))
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), "body: %s", w.Body.String())
	return out
}
