package worker

import (
	"context"
	"fmt"

	domcheckout "github.com/Zhima-Mochi/minishop-cart/internal/domain/checkout"
	domoutbox "github.com/Zhima-Mochi/minishop-cart/internal/domain/outbox"
	domrecovery "github.com/Zhima-Mochi/minishop-cart/internal/domain/recovery"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability/logctx"
	workerpresentation "github.com/Zhima-Mochi/minishop-cart/internal/presentation/worker"
)

const consumerName = "recovery"

// Worker turns checkouts that charged the customer without recording an order into
// recovery entries for support.
type Worker struct {
	ledger     domrecovery.Ledger
	subscriber domoutbox.Subscriber
	tel        observability.Observability
	log        observability.Logger
}

func New(ledger domrecovery.Ledger, subscriber domoutbox.Subscriber, tel observability.Observability) *Worker {
	_, logger, _ := observability.Parts(tel)
	return &Worker{
		ledger:     ledger,
		subscriber: subscriber,
		tel:        tel,
		log:        logger.With(observability.F("component", "recovery_worker")),
	}
}

func (w *Worker) Start() {
	if w.subscriber == nil || w.ledger == nil {
		return
	}
	w.subscriber.Subscribe(domcheckout.FailedEvent{}.EventName(),
		workerpresentation.Handle(consumerName, w.tel, w.handleCheckoutFailed))
}

func (w *Worker) handleCheckoutFailed(ctx context.Context, e domoutbox.Event) error {
	evt, ok := e.(domcheckout.FailedEvent)
	if !ok || evt.Kind != domcheckout.FailureOrder {
		return nil
	}
	logger := logctx.FromOr(ctx, w.log)

	created, err := w.ledger.Record(ctx, domrecovery.Entry{
		SessionID:        evt.SessionID,
		PaymentReference: evt.PaymentReference,
		AmountMinor:      evt.AmountMinor,
		SubReason:        evt.SubReason,
		Message:          evt.Message,
		RecordedAt:       evt.OccurredAt,
	})
	if err != nil {
		logger.Error("recovery_record_failed",
			observability.F("session_id", evt.SessionID),
			observability.F("payment_reference", evt.PaymentReference),
			observability.F("error", err),
		)
		return fmt.Errorf("recovery worker: record: %w", err)
	}
	if !created {
		return nil
	}

	logger.Error("recovery_entry_recorded",
		observability.F("session_id", evt.SessionID),
		observability.F("payment_reference", evt.PaymentReference),
		observability.F("amount_minor", evt.AmountMinor),
	)
	return nil
}
