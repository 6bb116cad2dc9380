package order

import "time"

// RecordedEvent is emitted when the order backend stores a new paid order.
type RecordedEvent struct {
	OrderID          string
	SessionID        string
	PaymentReference string
	AmountMinor      int64
	OccurredAt       time.Time
}

func (RecordedEvent) EventName() string { return "order.recorded" }

func NewRecordedEvent(o *Order) RecordedEvent {
	return RecordedEvent{
		OrderID:          o.ID,
		SessionID:        o.SessionID,
		PaymentReference: o.PaymentReference,
		AmountMinor:      o.AmountMinor,
		OccurredAt:       time.Now().UTC(),
	}
}
