package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"ropa-suggestions/internal/config"

	"github.com/stretchr/testify/assert"
)

func TestWithAddsContextFields(t *testing.T) {
	var buf bytes.Buffer
	base := NewWithWriter(&buf, config.LogConfig{Level: "debug", Format: "json"}, false)

	ctx := WithTraceID(context.Background(), "tr-1")
	ctx = WithEntity(ctx, "t/activity:42")
	ctx = WithBatchID(ctx, "01HZ")
	With(ctx, base).Info().Msg("hello")

	out := buf.String()
	assert.Contains(t, out, `"trace_id":"tr-1"`)
	assert.Contains(t, out, `"entity":"t/activity:42"`)
	assert.Contains(t, out, `"batch_id":"01HZ"`)
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, config.LogConfig{Level: "warn", Format: "json"}, false)
	l.Info().Msg("dropped")
	l.Warn().Msg("kept")
	assert.False(t, strings.Contains(buf.String(), "dropped"))
	assert.True(t, strings.Contains(buf.String(), "kept"))
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "***", Redact("short", false))
	assert.Equal(t, "abcd...89", Redact("abcdef0123456789", false))
	assert.Equal(t, "visible", Redact("visible", true))
}
