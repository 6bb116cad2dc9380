package checkout

// sessionState implements the state pattern for the checkout protocol:
//
//	idle -> requesting_intent -> confirming_payment -> submitting_order -> succeeded
//
// with each in-flight state allowed to fail only with its own failure kind.
type sessionState interface {
	Status() State
	OnBegin(s *Session) (sessionState, error)
	OnIntentObtained(s *Session, clientSecret string) (sessionState, error)
	OnPaymentConfirmed(s *Session, reference string) (sessionState, error)
	OnOrderPersisted(s *Session, orderID string) (sessionState, error)
	OnFailure(s *Session, f Failure) (sessionState, error)
}

// rejectAll is embedded by every state so each one only spells out the transitions it allows.
type rejectAll struct{}

func (rejectAll) OnBegin(*Session) (sessionState, error) {
	return nil, ErrInvalidStateTransition
}

func (rejectAll) OnIntentObtained(*Session, string) (sessionState, error) {
	return nil, ErrInvalidStateTransition
}

func (rejectAll) OnPaymentConfirmed(*Session, string) (sessionState, error) {
	return nil, ErrInvalidStateTransition
}

func (rejectAll) OnOrderPersisted(*Session, string) (sessionState, error) {
	return nil, ErrInvalidStateTransition
}

func (rejectAll) OnFailure(*Session, Failure) (sessionState, error) {
	return nil, ErrInvalidStateTransition
}

type idleState struct{ rejectAll }

func (idleState) Status() State { return StateIdle }

func (idleState) OnBegin(*Session) (sessionState, error) {
	return requestingIntentState{}, nil
}

type requestingIntentState struct{ rejectAll }

func (requestingIntentState) Status() State { return StateRequestingIntent }

func (requestingIntentState) OnIntentObtained(s *Session, clientSecret string) (sessionState, error) {
	if clientSecret == "" {
		return nil, ErrInvalidStateTransition
	}
	s.ClientSecret = clientSecret
	return confirmingPaymentState{}, nil
}

func (requestingIntentState) OnFailure(s *Session, f Failure) (sessionState, error) {
	return fail(s, f, FailureIntent)
}

type confirmingPaymentState struct{ rejectAll }

func (confirmingPaymentState) Status() State { return StateConfirmingPayment }

func (confirmingPaymentState) OnPaymentConfirmed(s *Session, reference string) (sessionState, error) {
	if reference == "" {
		return nil, ErrInvalidStateTransition
	}
	s.PaymentReference = reference
	return submittingOrderState{}, nil
}

func (confirmingPaymentState) OnFailure(s *Session, f Failure) (sessionState, error) {
	return fail(s, f, FailurePayment)
}

type submittingOrderState struct{ rejectAll }

func (submittingOrderState) Status() State { return StateSubmittingOrder }

func (submittingOrderState) OnOrderPersisted(s *Session, orderID string) (sessionState, error) {
	s.OrderID = orderID
	return succeededState{}, nil
}

func (submittingOrderState) OnFailure(s *Session, f Failure) (sessionState, error) {
	// the payment already went through; keep its reference for manual recovery
	f.PaymentReference = s.PaymentReference
	return fail(s, f, FailureOrder)
}

type succeededState struct{ rejectAll }

func (succeededState) Status() State { return StateSucceeded }

type failedState struct{ rejectAll }

func (failedState) Status() State { return StateFailed }

func fail(s *Session, f Failure, allowed FailureKind) (sessionState, error) {
	if f.Kind != allowed {
		return nil, ErrInvalidStateTransition
	}
	s.Failure = &f
	return failedState{}, nil
}
