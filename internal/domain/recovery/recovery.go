package recovery

import (
	"context"
	"errors"
	"time"
)

var ErrMissingReference = errors.New("recovery: payment reference is required")

// Entry is a payment that was taken without an order being recorded. It stays open until
// support reconciles it.
type Entry struct {
	SessionID        string    `json:"sessionId"`
	PaymentReference string    `json:"paymentReference"`
	AmountMinor      int64     `json:"amountMinor"`
	SubReason        string    `json:"subReason,omitempty"`
	Message          string    `json:"message,omitempty"`
	RecordedAt       time.Time `json:"recordedAt"`
}

// Ledger keeps one entry per payment reference; recording a known reference is a no-op.
type Ledger interface {
	Record(ctx context.Context, e Entry) (created bool, err error)
	List(ctx context.Context) ([]Entry, error)
}
