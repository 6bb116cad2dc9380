package workerpresentation

import (
	"context"
	"errors"
	"testing"

	domoutbox "github.com/Zhima-Mochi/minishop-cart/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability/logctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fieldLogger struct {
	observability.Logger
	fields []observability.Field
}

func (l *fieldLogger) With(fields ...observability.Field) observability.Logger {
	return &fieldLogger{Logger: observability.NopLogger(), fields: append(append([]observability.Field(nil), l.fields...), fields...)}
}

func keys(fields []observability.Field) map[string]any {
	out := map[string]any{}
	for _, f := range fields {
		out[f.Key] = f.Value
	}
	return out
}

type testEvent struct{}

func (testEvent) EventName() string { return "checkout.failed" }

func TestWithEventContext(t *testing.T) {
	base := &fieldLogger{Logger: observability.NopLogger()}

	ctx := WithEventContext(context.Background(), base, map[string]string{"event": "checkout.failed", "empty": ""})

	l, ok := logctx.From(ctx).(*fieldLogger)
	require.True(t, ok)
	got := keys(l.fields)
	assert.NotEmpty(t, got["event_id"])
	assert.Equal(t, "checkout.failed", got["event"])
	assert.NotContains(t, got, "empty")
	assert.NotContains(t, got, "trace_id")
}

func TestWithEventContext_KeepsGivenEventID(t *testing.T) {
	base := &fieldLogger{Logger: observability.NopLogger()}
	ctx := WithEventContext(context.Background(), base, map[string]string{"event_id": "evt-1"})

	l := logctx.From(ctx).(*fieldLogger)
	assert.Equal(t, "evt-1", keys(l.fields)["event_id"])
}

func TestHandle_PassesScopedLoggerAndError(t *testing.T) {
	boom := errors.New("boom")
	var seen observability.Logger
	h := Handle("recovery", nil, func(ctx context.Context, _ domoutbox.Event) error {
		seen = logctx.From(ctx)
		return boom
	})

	err := h(context.Background(), testEvent{})

	assert.ErrorIs(t, err, boom)
	assert.NotNil(t, seen)
}
