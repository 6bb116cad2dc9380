package checkout

import (
	"time"

	"github.com/shopspring/decimal"
)

type OutcomeKind string

const (
	OutcomeSucceeded OutcomeKind = "succeeded"
	OutcomeFailed    OutcomeKind = "failed"
)

// Outcome is the single terminal result of a checkout attempt.
type Outcome struct {
	SessionID        string          `json:"sessionId,omitempty"`
	Kind             OutcomeKind     `json:"kind"`
	Reason           FailureKind     `json:"reason,omitempty"`
	SubReason        string          `json:"subReason,omitempty"`
	Message          string          `json:"message,omitempty"`
	PaymentReference string          `json:"paymentReference,omitempty"`
	OrderID          string          `json:"orderId,omitempty"`
	ItemCount        int             `json:"itemCount"`
	Total            decimal.Decimal `json:"total"`
	AmountMinor      int64           `json:"amountMinor"`
	CompletedAt      time.Time       `json:"completedAt"`
}

func NewSucceededOutcome(s *Session) Outcome {
	return Outcome{
		SessionID:        s.ID,
		Kind:             OutcomeSucceeded,
		PaymentReference: s.PaymentReference,
		OrderID:          s.OrderID,
		ItemCount:        len(s.Snapshot),
		Total:            s.Total,
		AmountMinor:      s.AmountMinor,
		CompletedAt:      time.Now().UTC(),
	}
}

// NewFailedOutcome builds a failed outcome; s is nil when the attempt was rejected before a session existed.
func NewFailedOutcome(s *Session, f Failure) Outcome {
	o := Outcome{
		Kind:             OutcomeFailed,
		Reason:           f.Kind,
		SubReason:        f.SubReason,
		Message:          f.Message,
		PaymentReference: f.PaymentReference,
		Total:            decimal.Zero,
		CompletedAt:      time.Now().UTC(),
	}
	if s != nil {
		o.SessionID = s.ID
		o.ItemCount = len(s.Snapshot)
		o.Total = s.Total
		o.AmountMinor = s.AmountMinor
		if o.PaymentReference == "" {
			o.PaymentReference = s.PaymentReference
		}
	}
	return o
}

func (o Outcome) Succeeded() bool { return o.Kind == OutcomeSucceeded }

// Failure returns the failure details, or nil for a successful outcome.
func (o Outcome) Failure() *Failure {
	if o.Kind != OutcomeFailed {
		return nil
	}
	return &Failure{
		Kind:             o.Reason,
		SubReason:        o.SubReason,
		Message:          o.Message,
		PaymentReference: o.PaymentReference,
	}
}
