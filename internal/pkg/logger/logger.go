package logger

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

var base zerolog.Logger

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	base = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// Init sets the service name on the package logger. Call once from main.
func Init(service string) {
	base = base.With().Str("service", service).Logger()
}

// Ctx returns a logger bound to the current trace. If the context carries an
// active span, trace_id is attached to every entry so log lines can be joined
// with Jaeger traces.
func Ctx(ctx context.Context) *zerolog.Logger {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		l := base.With().Str("trace_id", sc.TraceID().String()).Logger()
		return &l
	}
	return &base
}
