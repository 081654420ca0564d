// File: internal/infra/logging/logging.go
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"ropa-suggestions/internal/config"

	"github.com/rs/zerolog"
)

// New creates a zerolog logger configured from config.
// Supports "trace" | "debug" | "info" | "warn" | "error" levels
// and "json" | "console" formats. Sampling can be enabled to reduce noise in prod.
func New(cfg config.LogConfig, dev bool) *zerolog.Logger {
	return NewWithWriter(os.Stdout, cfg, dev)
}

func NewWithWriter(w io.Writer, cfg config.LogConfig, dev bool) *zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var base zerolog.Logger
	if strings.ToLower(cfg.Format) == "console" || dev {
		out := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
		base = zerolog.New(out).Level(level).With().Timestamp().Logger()
	} else {
		base = zerolog.New(w).Level(level).With().Timestamp().Logger()
	}

	if cfg.Sampling && !dev {
		// Simple sampling: keep first 100, then 1 every 100 thereafter.
		sampled := base.Sample(&zerolog.BasicSampler{N: 100})
		return &sampled
	}
	return &base
}

// Nop is a silent logger for tests and optional wiring.
func Nop() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

type ctxKey string

const (
	ctxTraceID ctxKey = "trace_id"
	ctxEntity  ctxKey = "entity"
	ctxBatchID ctxKey = "batch_id"
)

// With attaches common context fields such as trace_id, entity and batch_id.
func With(ctx context.Context, base *zerolog.Logger) *zerolog.Logger {
	l := base.With()
	if v, ok := ctx.Value(ctxTraceID).(string); ok {
		l = l.Str("trace_id", v)
	}
	if v, ok := ctx.Value(ctxEntity).(string); ok {
		l = l.Str("entity", v)
	}
	if v, ok := ctx.Value(ctxBatchID).(string); ok {
		l = l.Str("batch_id", v)
	}
	logger := l.Logger()
	return &logger
}

// TraceDuration logs start and end with elapsed duration at TRACE level.
// Usage: defer logging.TraceDuration(logger, "SuggestionOrchestrator.RestoreJobs")()
func TraceDuration(logger *zerolog.Logger, name string) func() {
	start := time.Now()
	logger.Trace().Str("method", name).Msg("start")
	return func() {
		logger.Trace().Str("method", name).Dur("duration", time.Since(start)).Msg("finish")
	}
}

// Redact hides secrets when not in dev; keep short/preview.
func Redact(s string, dev bool) string {
	if dev {
		return s
	}
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "..." + s[len(s)-2:]
}

// Helpers to put IDs into context.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxTraceID, id)
}
func WithEntity(ctx context.Context, entity string) context.Context {
	return context.WithValue(ctx, ctxEntity, entity)
}
func WithBatchID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxBatchID, id)
}
