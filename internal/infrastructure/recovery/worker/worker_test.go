package worker

import (
	"context"
	"testing"
	"time"

	domcheckout "github.com/Zhima-Mochi/minishop-cart/internal/domain/checkout"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/outbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorker_RecordsOnlyOrderErrors(t *testing.T) {
	ledger := memory.NewRecoveryLedger()
	bus := outbox.NewBus(nil, outbox.Options{})
	New(ledger, bus, nil).Start()
	bus.Start(context.Background())

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, domcheckout.FailedEvent{
		SessionID: "s1", Kind: domcheckout.FailurePayment, SubReason: domcheckout.SubReasonDeclined,
	}))
	orderFailure := domcheckout.FailedEvent{
		SessionID:        "s2",
		Kind:             domcheckout.FailureOrder,
		SubReason:        domcheckout.SubReasonTransport,
		Message:          "connection reset",
		PaymentReference: "pi_2",
		AmountMinor:      1999,
		OccurredAt:       time.Now().UTC(),
	}
	require.NoError(t, bus.Publish(ctx, orderFailure))
	require.NoError(t, bus.Publish(ctx, orderFailure))
	require.NoError(t, bus.Stop(ctx))

	entries, err := ledger.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "pi_2", entries[0].PaymentReference)
	assert.Equal(t, int64(1999), entries[0].AmountMinor)
	assert.Equal(t, "s2", entries[0].SessionID)
}

func TestWorker_IgnoresOtherEvents(t *testing.T) {
	w := New(memory.NewRecoveryLedger(), nil, nil)
	assert.NoError(t, w.handleCheckoutFailed(context.Background(), domcheckout.SucceededEvent{}))
}
