package shared

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/phrazzld/resource-api/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requestWithLog returns a request whose context carries a text logger
// writing into the returned builder, and the given trace ID.
func requestWithLog(traceID string) (*http.Request, *strings.Builder) {
	var logBuf strings.Builder
	log := slog.New(slog.NewTextHandler(&logBuf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx := logger.WithContext(context.Background(), log)
	if traceID != "" {
		ctx = context.WithValue(ctx, TraceIDKey, traceID)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/todos", nil).WithContext(ctx)
	return req, &logBuf
}

func TestRespondWithJSON(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		data         interface{}
		expectedBody string
	}{
		{
			name:         "object",
			status:       http.StatusOK,
			data:         map[string]interface{}{"message": "success"},
			expectedBody: `{"message":"success"}`,
		},
		{
			name:         "empty array",
			status:       http.StatusOK,
			data:         []interface{}{},
			expectedBody: `[]`,
		},
		{
			name:         "nil",
			status:       http.StatusOK,
			data:         nil,
			expectedBody: `null`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			w := httptest.NewRecorder()

			RespondWithJSON(w, req, tc.status, tc.data)

			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.Equal(t, tc.expectedBody+"\n", w.Body.String())
		})
	}
}

func TestRespondWithJSONEncodingError(t *testing.T) {
	req, logBuf := requestWithLog("")
	w := httptest.NewRecorder()

	RespondWithJSON(w, req, http.StatusOK, map[string]interface{}{"bad": make(chan int)})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, logBuf.String(), "failed to encode JSON response")
}

func TestRespondWithError(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		opts      []ResponseOption
		wantKind  string
		wantField string
	}{
		{name: "validation derived from status", status: http.StatusBadRequest, wantKind: KindValidationFailed},
		{name: "unauthenticated", status: http.StatusUnauthorized, wantKind: KindUnauthenticated},
		{name: "forbidden", status: http.StatusForbidden, wantKind: KindForbidden},
		{name: "not found", status: http.StatusNotFound, wantKind: KindNotFound},
		{name: "conflict", status: http.StatusConflict, wantKind: KindConflict},
		{name: "storage", status: http.StatusServiceUnavailable, wantKind: KindStorageUnavailable},
		{name: "internal", status: http.StatusInternalServerError, wantKind: KindInternal},
		{
			name:      "explicit kind and field",
			status:    http.StatusBadRequest,
			opts:      []ResponseOption{WithKind(KindBadRequest), WithField("title")},
			wantKind:  KindBadRequest,
			wantField: "title",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req, _ := requestWithLog("test-trace-id")
			w := httptest.NewRecorder()

			RespondWithError(w, req, tc.status, "message", tc.opts...)

			assert.Equal(t, tc.status, w.Code)
			var response ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.Equal(t, "message", response.Error)
			assert.Equal(t, tc.wantKind, response.Kind)
			assert.Equal(t, tc.wantField, response.Field)
			assert.Equal(t, "test-trace-id", response.TraceID)
		})
	}
}

func TestRespondWithErrorOmitsEmptyFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()

	RespondWithError(w, req, http.StatusUnauthorized, "Unauthorized")

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	assert.Equal(t, "Unauthorized", raw["error"])
	assert.Equal(t, KindUnauthenticated, raw["kind"])
	assert.NotContains(t, raw, "trace_id")
	assert.NotContains(t, raw, "field")
}

func TestRespondWithErrorAndLog(t *testing.T) {
	tests := []struct {
		name             string
		statusCode       int
		message          string
		err              error
		expectedLogLevel string
		elevateLogLevel  bool
	}{
		{
			name:             "server error",
			statusCode:       http.StatusServiceUnavailable,
			message:          "Storage is unavailable",
			err:              errors.New("open /var/lib/resource/todos.json: permission denied"),
			expectedLogLevel: "ERROR",
		},
		{
			name:             "client error with default log level",
			statusCode:       http.StatusBadRequest,
			message:          "Bad request",
			err:              errors.New("invalid input"),
			expectedLogLevel: "DEBUG",
		},
		{
			name:             "client error with elevated log level",
			statusCode:       http.StatusUnauthorized,
			message:          "Invalid token",
			err:              errors.New("signature mismatch"),
			expectedLogLevel: "WARN",
			elevateLogLevel:  true,
		},
		{
			name:             "rate limiting error",
			statusCode:       http.StatusTooManyRequests,
			message:          "Too many requests",
			err:              errors.New("rate limit exceeded"),
			expectedLogLevel: "WARN",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req, logBuf := requestWithLog("test-trace-id")
			w := httptest.NewRecorder()

			var opts []ResponseOption
			if tc.elevateLogLevel {
				opts = append(opts, WithElevatedLogLevel())
			}
			RespondWithErrorAndLog(w, req, tc.statusCode, tc.message, tc.err, opts...)

			assert.Equal(t, tc.statusCode, w.Code)

			var response ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.Equal(t, tc.message, response.Error)
			assert.Equal(t, "test-trace-id", response.TraceID)
			assert.NotContains(t, w.Body.String(), tc.err.Error(), "raw error must never reach the client")

			logOutput := logBuf.String()
			assert.Contains(t, logOutput, "level="+tc.expectedLogLevel)
			assert.Contains(t, logOutput, "trace_id=test-trace-id")
			assert.Contains(t, logOutput, "error_type=")
		})
	}
}

func TestRespondWithErrorAndLogRedactsDetails(t *testing.T) {
	req, logBuf := requestWithLog("")
	w := httptest.NewRecorder()

	err := errors.New("dial postgres://app:s3cret@db:5432/resources failed")
	RespondWithErrorAndLog(w, req, http.StatusServiceUnavailable, "Storage is unavailable", err)

	assert.NotContains(t, logBuf.String(), "s3cret")
	assert.Contains(t, logBuf.String(), "REDACTED_CREDENTIAL")
}
