package checkout

import (
	"errors"
	"fmt"
)

var (
	ErrEmptySnapshot          = errors.New("checkout: cart snapshot is empty")
	ErrInvalidStateTransition = errors.New("checkout: invalid state transition")
)

type State string

const (
	StateIdle              State = "idle"
	StateRequestingIntent  State = "requesting_intent"
	StateConfirmingPayment State = "confirming_payment"
	StateSubmittingOrder   State = "submitting_order"
	StateSucceeded         State = "succeeded"
	StateFailed            State = "failed"
)

func (s State) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed
}

func (s State) String() string { return string(s) }

type FailureKind string

const (
	FailureEmptyCart         FailureKind = "empty_cart"
	FailureAlreadyInProgress FailureKind = "already_in_progress"
	FailureIntent            FailureKind = "intent_error"
	FailurePayment           FailureKind = "payment_error"
	FailureOrder             FailureKind = "order_error"
	// FailureStorage labels persistence problems; checkout never fails with it.
	FailureStorage FailureKind = "storage_error"
)

const (
	SubReasonUserCancelled = "user_cancelled"
	SubReasonDeclined      = "declined"
	SubReasonTimeout       = "timeout"
	SubReasonCircuitOpen   = "circuit_open"
	SubReasonRejected      = "rejected"
	SubReasonTransport     = "transport"
)

// Failure describes why a checkout attempt ended in StateFailed.
type Failure struct {
	Kind             FailureKind
	SubReason        string
	Message          string
	PaymentReference string
}

func (f Failure) Error() string {
	msg := string(f.Kind)
	if f.SubReason != "" {
		msg += "/" + f.SubReason
	}
	if f.Message != "" {
		msg += ": " + f.Message
	}
	if f.PaymentReference != "" {
		msg += fmt.Sprintf(" (payment_reference=%s)", f.PaymentReference)
	}
	return msg
}

// Retryable is false when money may have moved without an order being recorded.
func (f Failure) Retryable() bool {
	return f.Kind != FailureOrder
}
