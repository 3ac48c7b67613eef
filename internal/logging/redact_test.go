package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/docingest/internal/config"
)

func TestSecretField(t *testing.T) {
	tl := NewTestLogger()
	tl.Info(context.Background(), "provider configured", Secret("key", config.Secret("sk-1234567890")))
	tl.AssertField(t, "provider configured", "key", "[REDACTED:13]")
}

func TestRedactedString(t *testing.T) {
	f := RedactedString("token", "abcd")
	assert.Equal(t, "[REDACTED:4]", f.String)
}

func TestRedactingEncoder(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "json"
	cfg.Sampling.Enabled = false
	l, buf := bufferLogger(t, cfg)

	l.Info(context.Background(), "request",
		zap.String("api_key", "sk-live-123"),
		zap.String("header", "Bearer abc.def"),
		zap.Strings("password", []string{"a", "b"}),
		zap.String("path", "/data/a.txt"),
	)

	out := buf.String()
	assert.NotContains(t, out, "sk-live-123")
	assert.NotContains(t, out, "abc.def")
	assert.Contains(t, out, `"api_key":"[REDACTED]"`)
	assert.Contains(t, out, `"header":"[REDACTED:pattern]"`)
	assert.Contains(t, out, `"password":"[REDACTED]"`)
	assert.Contains(t, out, `"path":"/data/a.txt"`)
}

func TestRedactingEncoder_CallAndContextFields(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		t.Run(format, func(t *testing.T) {
			cfg := NewDefaultConfig()
			cfg.Format = format
			cfg.Sampling.Enabled = false
			l, buf := bufferLogger(t, cfg)

			l.With(zap.String("token", "from-with")).Info(context.Background(), "embedding",
				zap.String("authorization", "from-call"),
				zap.String("note", "api_key=abc123"),
			)

			out := buf.String()
			assert.NotContains(t, out, "from-with")
			assert.NotContains(t, out, "from-call")
			assert.NotContains(t, out, "abc123")
			assert.Contains(t, out, redacted)
		})
	}
}

func TestRedactingEncoder_EncodeEntry(t *testing.T) {
	enc, err := NewRedactingEncoder(newEncoder("json"), RedactionConfig{Enabled: true, Fields: []string{"secret"}})
	require.NoError(t, err)

	buf, err := enc.EncodeEntry(zapcore.Entry{Message: "loaded"}, []zapcore.Field{
		zap.String("secret", "hunter2"),
		zap.Int("chunks", 3),
	})
	require.NoError(t, err)
	out := buf.String()
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, `"secret":"[REDACTED]"`)
	assert.Contains(t, out, `"chunks":3`)
}

func TestRedactingEncoder_Disabled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "json"
	cfg.Redaction.Enabled = false
	l, buf := bufferLogger(t, cfg)

	l.Info(context.Background(), "request", zap.String("api_key", "visible"))
	assert.Contains(t, buf.String(), "visible")
}

func TestNewRedactingEncoder_BadPattern(t *testing.T) {
	_, err := NewRedactingEncoder(newEncoder("json"), RedactionConfig{Enabled: true, Patterns: []string{"["}})
	assert.Error(t, err)

	enc, err := NewRedactingEncoder(newEncoder("json"), RedactionConfig{})
	require.NoError(t, err)
	assert.NotNil(t, enc.Clone())
}
