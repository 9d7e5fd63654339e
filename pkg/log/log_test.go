package log

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriterEmitsJSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("info", "json", &buf)
	l.Info().Str("agent_id", "a-1").Msg("admission accepted")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "admission accepted", entry["message"])
	assert.Equal(t, "a-1", entry["agent_id"])
}

func TestNewWithWriterRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("warn", "json", &buf)
	l.Info().Msg("should be dropped")
	assert.Empty(t, buf.Bytes())

	l.Warn().Msg("should appear")
	assert.NotEmpty(t, buf.Bytes())
}

func TestWithContextPropagatesRequestID(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("info", "json", &buf)

	ctx := ContextWithRequestID(context.Background(), "req-123")
	l.WithContext(ctx).Info().Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "req-123", entry["request_id"])
}

func TestHTTPMiddlewareSetsResponseHeadersAndStatus(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("debug", "json", &buf)

	handler := HTTPMiddleware(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte("ok"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/agents", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	assert.Equal(t, rec.Header().Get(RequestIDHeader), rec.Header().Get(CorrelationIDHeader))
}

func TestFromContextDefaultsToNop(t *testing.T) {
	l := FromContext(context.Background())
	assert.NotNil(t, l)
	l.Info().Msg("discarded")
}
