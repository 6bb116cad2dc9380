package notification

import (
	"fmt"

	domain "github.com/Zhima-Mochi/minishop-cart/internal/domain/checkout"
)

type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

const (
	ActionContinueShopping = "Continue shopping"
	ActionContactSupport   = "Contact support"
	ActionDismiss          = "Dismiss"
)

// Notification is the user-facing rendering of one terminal checkout outcome.
type Notification struct {
	Kind             Kind               `json:"kind"`
	Title            string             `json:"title"`
	Message          string             `json:"message"`
	Action           string             `json:"action"`
	Reason           domain.FailureKind `json:"reason,omitempty"`
	SubReason        string             `json:"subReason,omitempty"`
	RequiresSupport  bool               `json:"requiresSupport"`
	PaymentReference string             `json:"paymentReference,omitempty"`
}

func FromOutcome(o domain.Outcome) Notification {
	if o.Succeeded() {
		return Notification{
			Kind:             KindSuccess,
			Title:            "Order placed",
			Message:          "Your payment was received and your order has been recorded.",
			Action:           ActionContinueShopping,
			PaymentReference: o.PaymentReference,
		}
	}

	n := Notification{
		Kind:      KindError,
		Action:    ActionDismiss,
		Reason:    o.Reason,
		SubReason: o.SubReason,
		Message:   o.Message,
	}
	switch o.Reason {
	case domain.FailureEmptyCart:
		n.Title = "Your cart is empty"
		n.Message = "Add an item before checking out."
	case domain.FailureAlreadyInProgress:
		n.Title = "Checkout in progress"
		n.Message = "Finish the current checkout before starting another."
	case domain.FailureIntent:
		n.Title = "Payment could not be started"
		n.Message = fallback(o.Message, "The payment service is unavailable. Please try again.")
	case domain.FailurePayment:
		n.Title = "Payment not completed"
		if o.SubReason == domain.SubReasonUserCancelled {
			n.Title = "Payment cancelled"
		}
		n.Message = fallback(o.Message, "Your payment was not completed.")
	case domain.FailureOrder:
		n.Title = "Order not recorded"
		n.Action = ActionContactSupport
		n.RequiresSupport = true
		n.PaymentReference = o.PaymentReference
		n.Message = fmt.Sprintf(
			"Your payment went through but the order could not be saved. Please contact support with payment reference %s.",
			o.PaymentReference,
		)
	default:
		n.Title = "Checkout failed"
		n.Message = fallback(o.Message, "Something went wrong.")
	}
	return n
}

func fallback(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
