package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/resource-api/internal/domain"
)

// getPathID extracts a record id from the URL path.
func getPathID(r *http.Request, paramName string) (string, error) {
	id := strings.TrimSpace(chi.URLParam(r, paramName))
	if id == "" {
		return "", domain.NewValidationError(paramName, "is required", domain.ErrInvalidID)
	}
	return id, nil
}

// expectedVersion returns the version a write expects to replace. The
// If-Match header wins over a "version" field in the body; 0 means the
// caller did not ask for a check.
func expectedVersion(r *http.Request, body map[string]any) (int64, error) {
	if header := strings.TrimSpace(r.Header.Get("If-Match")); header != "" {
		if header == "*" {
			return 0, nil
		}
		tag := strings.Trim(strings.TrimPrefix(header, "W/"), `"`)
		v, err := strconv.ParseInt(tag, 10, 64)
		if err != nil || v < 1 {
			return 0, domain.NewValidationError("If-Match", "must be a record version", domain.ErrInvalidFormat)
		}
		return v, nil
	}

	raw, ok := body[domain.FieldVersion]
	if !ok || raw == nil {
		return 0, nil
	}
	n, ok := domain.Number(raw)
	if !ok || n < 1 || n != float64(int64(n)) {
		return 0, domain.NewValidationError(domain.FieldVersion, "must be a positive integer", domain.ErrInvalidFormat)
	}
	return int64(n), nil
}

// setETag exposes the record version so clients can send it back in If-Match.
func setETag(w http.ResponseWriter, rec domain.Record) {
	w.Header().Set("ETag", `"`+strconv.FormatInt(rec.Version(), 10)+`"`)
}
