package workerpresentation

import (
	"context"
	"time"

	domoutbox "github.com/Zhima-Mochi/minishop-cart/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability/logctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const spanPrefix = "EV."

// WithEventContext injects an event-scoped logger carrying event_id (generated when absent),
// trace_id/span_id when valid, and the caller's low-cardinality attributes.
func WithEventContext(ctx context.Context, base observability.Logger, attrs map[string]string) context.Context {
	if base == nil {
		base = observability.NopLogger()
	}

	fields := make([]observability.Field, 0, len(attrs)+3)

	evtID := attrs["event_id"]
	if evtID == "" {
		evtID = uuid.NewString()
	}
	fields = append(fields, observability.F("event_id", evtID))

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			observability.F("trace_id", sc.TraceID().String()),
			observability.F("span_id", sc.SpanID().String()),
		)
	}

	for k, v := range attrs {
		if k == "event_id" || v == "" {
			continue
		}
		fields = append(fields, observability.F(k, v))
	}

	return logctx.With(ctx, base.With(fields...))
}

// Handle wraps an event handler with a span, an event-scoped logger and one
// "event_handled" log line per delivery.
func Handle(consumer string, tel observability.Observability, h domoutbox.Handler) domoutbox.Handler {
	tracer, logger, _ := observability.Parts(tel)

	return func(ctx context.Context, e domoutbox.Event) (err error) {
		name := e.EventName()
		ctx, span := tracer.Start(ctx, spanPrefix+name,
			attribute.String("event", name),
			attribute.String("consumer", consumer),
		)
		ctx = WithEventContext(ctx, logctx.FromOr(ctx, logger), map[string]string{
			"event":    name,
			"consumer": consumer,
		})
		start := time.Now()

		defer func() {
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "HANDLER_FAILED")
			} else {
				span.SetStatus(codes.Ok, "OK")
			}
			span.End()

			fields := []observability.Field{observability.F("latency_seconds", time.Since(start).Seconds())}
			if err != nil {
				fields = append(fields, observability.F("error", err.Error()))
			}
			logctx.FromOr(ctx, logger).Debug("event_handled", fields...)
		}()

		return h(ctx, e)
	}
}
