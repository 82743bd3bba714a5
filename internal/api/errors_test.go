package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/phrazzld/resource-api/internal/api/shared"
	"github.com/phrazzld/resource-api/internal/domain"
	"github.com/phrazzld/resource-api/internal/identity"
	"github.com/phrazzld/resource-api/internal/service/auth"
	"github.com/phrazzld/resource-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantKind    string
		wantMessage string
		wantField   string
	}{
		{
			name:        "validation error names field",
			err:         fmt.Errorf("create: %w", domain.NewValidationError("title", "is required", domain.ErrValidation)),
			wantStatus:  http.StatusBadRequest,
			wantKind:    shared.KindValidationFailed,
			wantMessage: "title is required",
			wantField:   "title",
		},
		{
			name:        "bare validation sentinel",
			err:         domain.ErrValidation,
			wantStatus:  http.StatusBadRequest,
			wantKind:    shared.KindValidationFailed,
			wantMessage: "Validation failed",
		},
		{name: "missing credential", err: auth.ErrMissingCredential, wantStatus: http.StatusUnauthorized, wantKind: shared.KindUnauthenticated, wantMessage: "Authentication required"},
		{name: "bad login", err: identity.ErrInvalidLogin, wantStatus: http.StatusUnauthorized, wantKind: shared.KindUnauthenticated, wantMessage: "Invalid email or password"},
		{name: "expired token", err: auth.ErrExpiredToken, wantStatus: http.StatusUnauthorized, wantKind: shared.KindUnauthenticated, wantMessage: "Token expired"},
		{name: "expired refresh token", err: auth.ErrExpiredRefreshToken, wantStatus: http.StatusUnauthorized, wantKind: shared.KindUnauthenticated, wantMessage: "Invalid refresh token"},
		{name: "malformed header", err: auth.ErrMalformedHeader, wantStatus: http.StatusUnauthorized, wantKind: shared.KindUnauthenticated, wantMessage: "Invalid authorization format"},
		{name: "invalid token", err: auth.ErrInvalidToken, wantStatus: http.StatusUnauthorized, wantKind: shared.KindUnauthenticated, wantMessage: "Invalid token"},
		{name: "unknown identity", err: auth.ErrUnknownIdentity, wantStatus: http.StatusUnauthorized, wantKind: shared.KindUnauthenticated, wantMessage: "Invalid token"},
		{name: "forbidden", err: auth.ErrForbidden, wantStatus: http.StatusForbidden, wantKind: shared.KindForbidden, wantMessage: "You do not have permission to perform this operation"},
		{name: "identity not found", err: store.ErrIdentityNotFound, wantStatus: http.StatusNotFound, wantKind: shared.KindNotFound, wantMessage: "Identity not found"},
		{name: "record not found", err: fmt.Errorf("get 7: %w", store.ErrRecordNotFound), wantStatus: http.StatusNotFound, wantKind: shared.KindNotFound, wantMessage: "Record not found"},
		{name: "email exists", err: store.ErrEmailExists, wantStatus: http.StatusConflict, wantKind: shared.KindConflict, wantMessage: "Email already exists"},
		{name: "version conflict", err: store.ConflictFailure("todos", "save", "a1", 1, 2), wantStatus: http.StatusConflict, wantKind: shared.KindConflict, wantMessage: "Record was modified by another request"},
		{name: "storage failure", err: store.StorageFailure("todos", "load", errors.New("open /var/data/todos.json: EIO")), wantStatus: http.StatusServiceUnavailable, wantKind: shared.KindStorageUnavailable, wantMessage: "Storage is unavailable"},
		{name: "unknown error", err: errors.New("boom"), wantStatus: http.StatusInternalServerError, wantKind: shared.KindInternal, wantMessage: "An unexpected error occurred"},
		{name: "nil", err: nil, wantStatus: http.StatusInternalServerError, wantKind: shared.KindInternal, wantMessage: "An unexpected error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := MapError(tt.err)
			assert.Equal(t, tt.wantStatus, f.Status)
			assert.Equal(t, tt.wantKind, f.Kind)
			assert.Equal(t, tt.wantMessage, f.Message)
			assert.Equal(t, tt.wantField, f.Field)
		})
	}
}

func TestHandleAPIErrorHidesInternalDetail(t *testing.T) {
	t.Parallel()

	err := store.StorageFailure("todos", "load",
		errors.New("dial postgres://app:s3cret@db:5432/resources: connection refused"))

	w := httptest.NewRecorder()
	HandleAPIError(w, httptest.NewRequest(http.MethodGet, "/api/todos", nil), err)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.NotContains(t, w.Body.String(), "s3cret")
	assert.NotContains(t, w.Body.String(), "postgres")

	var resp shared.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, shared.KindStorageUnavailable, resp.Kind)
	assert.Equal(t, "Storage is unavailable", resp.Error)
}
