package adapters

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	ports "github.com/ZanzyTHEbar/jarvis/jarvis/generation/harness/ports"
)

type spanLoggerKey struct{}

// ZerologTracer records dispatcher spans (dispatch, model_call, search, read) as structured log lines.
type ZerologTracer struct {
	logger zerolog.Logger
}

func NewZerologTracer(logger zerolog.Logger) *ZerologTracer {
	return &ZerologTracer{logger: logger}
}

// StartSpan logs the span start at debug level and returns a finish func that logs duration and outcome.
func (t *ZerologTracer) StartSpan(ctx context.Context, name string, attrs map[string]any) (context.Context, func(err error)) {
	lc := t.logger.With().Str("span", name)
	for k, v := range attrs {
		lc = lc.Interface(k, v)
	}
	spanLogger := lc.Logger()

	ctx = context.WithValue(ctx, spanLoggerKey{}, spanLogger)
	start := time.Now()
	spanLogger.Debug().Msg("Span started")

	return ctx, func(err error) {
		event := spanLogger.Info()
		if err != nil {
			event = spanLogger.Warn().Err(err).Str("kind", ports.KindOf(err).String())
		}
		event.Dur("duration", time.Since(start)).Msg("Span finished")
	}
}

// Event logs name under the innermost span on ctx, or the root logger when there is none.
func (t *ZerologTracer) Event(ctx context.Context, name string, attrs map[string]any) {
	logger := t.logger
	if l, ok := ctx.Value(spanLoggerKey{}).(zerolog.Logger); ok {
		logger = l
	}

	event := logger.Info().Str("event", name)
	for k, v := range attrs {
		event = event.Interface(k, v)
	}
	event.Msg("Trace event")
}

var _ ports.Tracer = (*ZerologTracer)(nil)
