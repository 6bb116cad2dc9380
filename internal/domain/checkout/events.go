package checkout

import "time"

// SucceededEvent is published after an order was recorded and the cart cleared.
type SucceededEvent struct {
	SessionID        string
	OrderID          string
	PaymentReference string
	AmountMinor      int64
	ItemCount        int
	OccurredAt       time.Time
}

func (SucceededEvent) EventName() string { return "checkout.succeeded" }

// FailedEvent is published for every failed checkout attempt.
type FailedEvent struct {
	SessionID        string
	Kind             FailureKind
	SubReason        string
	Message          string
	PaymentReference string
	AmountMinor      int64
	OccurredAt       time.Time
}

func (FailedEvent) EventName() string { return "checkout.failed" }

func NewSucceededEvent(o Outcome) SucceededEvent {
	return SucceededEvent{
		SessionID:        o.SessionID,
		OrderID:          o.OrderID,
		PaymentReference: o.PaymentReference,
		AmountMinor:      o.AmountMinor,
		ItemCount:        o.ItemCount,
		OccurredAt:       time.Now().UTC(),
	}
}

func NewFailedEvent(o Outcome) FailedEvent {
	return FailedEvent{
		SessionID:        o.SessionID,
		Kind:             o.Reason,
		SubReason:        o.SubReason,
		Message:          o.Message,
		PaymentReference: o.PaymentReference,
		AmountMinor:      o.AmountMinor,
		OccurredAt:       time.Now().UTC(),
	}
}
