package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestLoggerStampsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Format: "json", Component: ComponentLedger, Output: &buf})

	logger.Info("saved", FieldRecordID, "abc")
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "ledger", rec[FieldComponent])
	assert.Equal(t, "abc", rec[FieldRecordID])

	buf.Reset()
	logger.Debug("hidden")
	assert.Empty(t, buf.String())
	assert.Equal(t, ComponentStore, logger.WithComponent(ComponentStore).Component())
}

func TestLogFields(t *testing.T) {
	fields := NewFields().
		WithOperation(OpCreate).
		WithRecord("r1", 0).
		WithError(errors.New("disk full")).
		WithError(nil)
	assert.Equal(t, OpCreate, fields[FieldOperation])
	assert.Equal(t, "r1", fields[FieldRecordID])
	assert.NotContains(t, fields, FieldBillNo)
	assert.Equal(t, "disk full", fields[FieldError])
	assert.Len(t, fields.ToSlice(), 2*len(fields))

	assert.Equal(t, int64(1001), NewFields().WithRecord("r2", 1001)[FieldBillNo])
}

func TestMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Format: "json", Component: ComponentHTTP, Output: &buf})

	var fromCtx *Logger
	h := middleware.RequestID(Middleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fromCtx = FromContext(r.Context())
		w.WriteHeader(http.StatusNotFound)
	})))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/farmers/x?q=1", nil))

	require.NotNil(t, fromCtx)
	assert.Equal(t, ComponentHTTP, fromCtx.Component())

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "/api/farmers/x", rec[FieldPath])
	assert.Equal(t, float64(http.StatusNotFound), rec[FieldStatusCode])
	assert.NotEmpty(t, rec[FieldRequestID])

	assert.Equal(t, "unknown", FromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context()).Component())
}
