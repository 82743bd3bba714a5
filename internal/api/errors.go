package api

import (
	"errors"
	"net/http"

	"github.com/phrazzld/resource-api/internal/api/shared"
	"github.com/phrazzld/resource-api/internal/domain"
	"github.com/phrazzld/resource-api/internal/identity"
	"github.com/phrazzld/resource-api/internal/service/auth"
	"github.com/phrazzld/resource-api/internal/store"
)

// Failure is the client-facing shape of an error: its status, stable kind
// and a fixed message that never contains internal details.
type Failure struct {
	Status  int
	Kind    string
	Message string
	// Field is set for validation failures.
	Field string
}

// MapError is the only place where internal errors are translated to HTTP
// responses. Errors are matched by class with errors.Is, most specific first.
func MapError(err error) Failure {
	var ve *domain.ValidationError
	switch {
	case err == nil:
		return Failure{http.StatusInternalServerError, shared.KindInternal, "An unexpected error occurred", ""}

	case errors.As(err, &ve):
		return Failure{http.StatusBadRequest, shared.KindValidationFailed, validationMessage(ve), ve.Field}
	case errors.Is(err, domain.ErrValidation):
		return Failure{http.StatusBadRequest, shared.KindValidationFailed, "Validation failed", ""}

	case errors.Is(err, auth.ErrMissingCredential):
		return Failure{http.StatusUnauthorized, shared.KindUnauthenticated, "Authentication required", ""}
	case errors.Is(err, identity.ErrInvalidLogin):
		return Failure{http.StatusUnauthorized, shared.KindUnauthenticated, "Invalid email or password", ""}
	case errors.Is(err, auth.ErrExpiredToken):
		return Failure{http.StatusUnauthorized, shared.KindUnauthenticated, "Token expired", ""}
	case errors.Is(err, auth.ErrInvalidRefreshToken),
		errors.Is(err, auth.ErrExpiredRefreshToken):
		return Failure{http.StatusUnauthorized, shared.KindUnauthenticated, "Invalid refresh token", ""}
	case errors.Is(err, auth.ErrMalformedHeader):
		return Failure{http.StatusUnauthorized, shared.KindUnauthenticated, "Invalid authorization format", ""}
	case errors.Is(err, auth.ErrInvalidCredential),
		errors.Is(err, auth.ErrUnknownIdentity):
		return Failure{http.StatusUnauthorized, shared.KindUnauthenticated, "Invalid token", ""}

	case errors.Is(err, auth.ErrForbidden):
		return Failure{http.StatusForbidden, shared.KindForbidden, "You do not have permission to perform this operation", ""}

	case errors.Is(err, store.ErrIdentityNotFound):
		return Failure{http.StatusNotFound, shared.KindNotFound, "Identity not found", ""}
	case errors.Is(err, store.ErrNotFound):
		return Failure{http.StatusNotFound, shared.KindNotFound, "Record not found", ""}

	case errors.Is(err, store.ErrEmailExists):
		return Failure{http.StatusConflict, shared.KindConflict, "Email already exists", ""}
	case errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrDuplicate):
		return Failure{http.StatusConflict, shared.KindConflict, "Record was modified by another request", ""}

	case errors.Is(err, store.ErrStorage):
		return Failure{http.StatusServiceUnavailable, shared.KindStorageUnavailable, "Storage is unavailable", ""}

	default:
		return Failure{http.StatusInternalServerError, shared.KindInternal, "An unexpected error occurred", ""}
	}
}

// HandleAPIError writes the response MapError selects for err and logs the
// redacted detail. Repeated credential failures are worth a warning.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error) {
	f := MapError(err)
	opts := []shared.ResponseOption{shared.WithKind(f.Kind)}
	if f.Field != "" {
		opts = append(opts, shared.WithField(f.Field))
	}
	if f.Status == http.StatusUnauthorized || f.Status == http.StatusForbidden {
		opts = append(opts, shared.WithElevatedLogLevel())
	}
	shared.RespondWithErrorAndLog(w, r, f.Status, f.Message, err, opts...)
}

// validationMessage renders a validation error built by this service. Its
// text names the field and the rule, never the rejected value.
func validationMessage(ve *domain.ValidationError) string {
	if ve.Field == "" {
		return ve.Message
	}
	return ve.Field + " " + ve.Message
}
