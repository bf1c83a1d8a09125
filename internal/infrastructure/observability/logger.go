package observability

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// InitLogger installs the process-wide logger. Development gets a console
// writer at debug level; every other env writes JSON at info. A non-empty
// level overrides the env default.
func InitLogger(serviceName, env, level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	var out io.Writer = os.Stdout
	defaultLevel := zerolog.InfoLevel
	if env == "development" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		defaultLevel = zerolog.DebugLevel
	}

	log.Logger = zerolog.New(out).With().
		Timestamp().
		Caller().
		Str("service", serviceName).
		Str("env", env).
		Logger()

	lvl, err := zerolog.ParseLevel(level)
	if level == "" || err != nil {
		lvl = defaultLevel
	}
	zerolog.SetGlobalLevel(lvl)
	if err != nil {
		log.Logger.Warn().Str("log_level", level).Msg("unknown log level, using default")
	}
}

// LoggerFromContext returns the global logger carrying the trace and span ids
// of the span in ctx, if any.
func LoggerFromContext(ctx context.Context) *zerolog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		logger := log.Logger
		return &logger
	}
	logger := log.With().
		Str("trace_id", sc.TraceID().String()).
		Str("span_id", sc.SpanID().String()).
		Logger()
	return &logger
}

// ComponentLogger tags the context logger with the emitting component.
func ComponentLogger(ctx context.Context, component string) *zerolog.Logger {
	logger := LoggerFromContext(ctx).With().Str("component", component).Logger()
	return &logger
}

// GetLogger returns the global logger
func GetLogger() *zerolog.Logger {
	return &log.Logger
}
