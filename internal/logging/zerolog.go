package logging

import (
	"context"
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// zlogger adapts zerolog.Logger to Logger.
type zlogger struct {
	l zerolog.Logger
}

func newZerolog(out io.Writer, cfg Config) Logger {
	if !strings.EqualFold(cfg.Format, "json") {
		out = zerolog.ConsoleWriter{Out: out, NoColor: true}
	}
	ctx := zerolog.New(out).Level(zerologLevel(ParseLevel(cfg.Level))).With().Timestamp()
	if cfg.AddSource {
		ctx = ctx.Caller()
	}
	return &zlogger{l: ctx.Logger()}
}

func (z *zlogger) With(fields ...Field) Logger {
	return &zlogger{l: z.l.With().Fields(toFieldMap(fields)).Logger()}
}

func (z *zlogger) Debug(ctx context.Context, msg string, fields ...Field) {
	z.l.Debug().Ctx(ctx).Fields(toFieldMap(fields)).Msg(msg)
}

func (z *zlogger) Info(ctx context.Context, msg string, fields ...Field) {
	z.l.Info().Ctx(ctx).Fields(toFieldMap(fields)).Msg(msg)
}

func (z *zlogger) Warn(ctx context.Context, msg string, fields ...Field) {
	z.l.Warn().Ctx(ctx).Fields(toFieldMap(fields)).Msg(msg)
}

func (z *zlogger) Error(ctx context.Context, msg string, fields ...Field) {
	z.l.Error().Ctx(ctx).Fields(toFieldMap(fields)).Msg(msg)
}

func toFieldMap(fields []Field) map[string]any {
	m := make(map[string]any, len(fields))
	for _, f := range fields {
		m[f.Key] = f.Value
	}
	return m
}

func zerologLevel(l Level) zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
