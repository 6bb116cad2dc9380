package orders

import (
	"context"
	"errors"
	"fmt"

	appcheckout "github.com/Zhima-Mochi/minishop-cart/internal/application/checkout"
	domorder "github.com/Zhima-Mochi/minishop-cart/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-cart/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability/logctx"
)

// Book is an in-process order backend. A payment reference is recorded at most once; a
// replay returns the order created the first time.
type Book struct {
	repo      domorder.Repository
	ids       appcheckout.IDGenerator
	publisher domoutbox.Publisher
	log       observability.Logger
}

func NewBook(repo domorder.Repository, ids appcheckout.IDGenerator, publisher domoutbox.Publisher, logger observability.Logger) *Book {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Book{
		repo:      repo,
		ids:       ids,
		publisher: publisher,
		log:       logger.With(observability.F("component", "order_book")),
	}
}

func (b *Book) SubmitOrder(ctx context.Context, req appcheckout.OrderRequest) (appcheckout.OrderReceipt, error) {
	logger := logctx.FromOr(ctx, b.log)

	if existing, err := b.repo.FindByPaymentReference(ctx, req.PaymentReference); err == nil {
		logger.Info("order_replayed",
			observability.F("order_id", existing.ID),
			observability.F("payment_reference", req.PaymentReference),
		)
		return appcheckout.OrderReceipt{OrderID: existing.ID, Message: "order already recorded"}, nil
	} else if !errors.Is(err, domorder.ErrNotFound) {
		return appcheckout.OrderReceipt{}, fmt.Errorf("order book: lookup: %w", err)
	}

	order, err := domorder.New(b.ids.NewID(), toInput(req))
	if err != nil {
		return appcheckout.OrderReceipt{}, &appcheckout.RejectedError{Status: 422, Message: err.Error()}
	}

	if err := b.repo.Insert(ctx, order); err != nil {
		if errors.Is(err, domorder.ErrConflict) {
			if existing, ferr := b.repo.FindByPaymentReference(ctx, req.PaymentReference); ferr == nil {
				return appcheckout.OrderReceipt{OrderID: existing.ID, Message: "order already recorded"}, nil
			}
		}
		logger.Error("order_insert_failed",
			observability.F("payment_reference", req.PaymentReference),
			observability.F("error", err),
		)
		return appcheckout.OrderReceipt{}, fmt.Errorf("order book: insert: %w", err)
	}

	if b.publisher != nil {
		if err := b.publisher.Publish(ctx, domorder.NewRecordedEvent(order)); err != nil {
			logger.Warn("order_recorded_event_publish_failed",
				observability.F("order_id", order.ID),
				observability.F("error", err),
			)
		}
	}

	logger.Info("order_recorded",
		observability.F("order_id", order.ID),
		observability.F("payment_reference", order.PaymentReference),
		observability.F("amount_minor", order.AmountMinor),
	)
	return appcheckout.OrderReceipt{OrderID: order.ID, Message: "order recorded"}, nil
}

func toInput(req appcheckout.OrderRequest) domorder.NewOrderInput {
	lines := make([]domorder.Line, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, domorder.Line{
			ItemID:       l.ItemID,
			Name:         l.Name,
			SubjectLabel: l.SubjectLabel,
			SubjectCode:  l.SubjectCode,
			UnitPrice:    l.UnitPrice,
			ImageRef:     l.ImageRef,
			Quantity:     l.Quantity,
		})
	}
	return domorder.NewOrderInput{
		SessionID:        req.SessionID,
		PaymentReference: req.PaymentReference,
		PaymentMethod:    req.PaymentMethod,
		Lines:            lines,
		Total:            req.Total,
		AmountMinor:      req.AmountMinor,
		Paid:             req.Paid,
		PaidAt:           req.PaidAt,
	}
}
