package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferedLogger(t *testing.T) (*Logger, *bytes.Buffer) {
	t.Helper()
	log := New(LoggingConfig{Level: "debug", Format: "json"})
	buf := &bytes.Buffer{}
	log.SetOutput(buf)
	return log, buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	return entry
}

func TestNew_LevelFallback(t *testing.T) {
	log := New(LoggingConfig{Level: "nonsense"})
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())

	log = New(LoggingConfig{Level: "warn"})
	assert.Equal(t, logrus.WarnLevel, log.GetLevel())
}

func TestNew_TextFormat(t *testing.T) {
	log := New(LoggingConfig{Format: "text"})
	_, ok := log.Formatter.(*logrus.TextFormatter)
	assert.True(t, ok)
}

func TestWithContext_AttachesIDs(t *testing.T) {
	log, buf := newBufferedLogger(t)

	ctx := WithTraceID(context.Background(), "trace-1")
	ctx = WithUserID(ctx, "bruce")
	log.WithContext(ctx).Info("hello")

	entry := decodeLine(t, buf)
	assert.Equal(t, "trace-1", entry["trace_id"])
	assert.Equal(t, "bruce", entry["user_id"])
	assert.Equal(t, "alfred", entry["service"])
}

func TestLogRequest_LevelByStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "info"},
		{http.StatusUnauthorized, "warning"},
		{http.StatusInternalServerError, "error"},
	}

	for _, tt := range tests {
		log, buf := newBufferedLogger(t)
		log.LogRequest(context.Background(), http.MethodGet, "/chat", tt.status, 15*time.Millisecond)

		entry := decodeLine(t, buf)
		assert.Equal(t, tt.level, entry["level"], "status %d", tt.status)
		assert.Equal(t, float64(15), entry["duration_ms"])
	}
}

func TestLogSecurityEvent(t *testing.T) {
	log, buf := newBufferedLogger(t)
	log.LogSecurityEvent(context.Background(), "login_failed", map[string]interface{}{"username": "joker"})

	entry := decodeLine(t, buf)
	assert.Equal(t, "login_failed", entry["security_event"])
	assert.Equal(t, "joker", entry["username"])
}

func TestNamed(t *testing.T) {
	log := NewDefault("root")
	child := log.Named("store")
	assert.Equal(t, "store", child.Name())
	assert.Equal(t, "root", log.Name())
	assert.Same(t, log.Logger, child.Logger)
}

func TestTraceID(t *testing.T) {
	assert.Empty(t, GetTraceID(context.Background()))
	assert.NotEqual(t, NewTraceID(), NewTraceID())
}
