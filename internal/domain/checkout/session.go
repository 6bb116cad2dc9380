package checkout

import (
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-cart/internal/domain/cart"
	"github.com/shopspring/decimal"
)

// Session is one checkout attempt. It owns an immutable copy of the cart taken at start
// and is discarded once the attempt reaches a terminal state.
type Session struct {
	ID               string
	Snapshot         []cart.Item
	Total            decimal.Decimal
	AmountMinor      int64
	ClientSecret     string
	PaymentReference string
	OrderID          string
	Failure          *Failure
	StartedAt        time.Time
	UpdatedAt        time.Time

	state sessionState
}

// NewSession snapshots items and fixes the total and its minor-unit amount for the whole attempt.
func NewSession(id string, items []cart.Item) (*Session, error) {
	if len(items) == 0 {
		return nil, ErrEmptySnapshot
	}
	snapshot := make([]cart.Item, len(items))
	copy(snapshot, items)

	total := cart.Total(snapshot)
	minor, err := cart.ToMinorUnits(total)
	if err != nil {
		return nil, fmt.Errorf("checkout: amount: %w", err)
	}

	now := time.Now().UTC()
	return &Session{
		ID:          id,
		Snapshot:    snapshot,
		Total:       total,
		AmountMinor: minor,
		StartedAt:   now,
		UpdatedAt:   now,
		state:       idleState{},
	}, nil
}

func (s *Session) State() State {
	if s.state == nil {
		return StateIdle
	}
	return s.state.Status()
}

func (s *Session) Begin() error {
	return s.apply(func(st sessionState) (sessionState, error) { return st.OnBegin(s) })
}

func (s *Session) IntentObtained(clientSecret string) error {
	return s.apply(func(st sessionState) (sessionState, error) { return st.OnIntentObtained(s, clientSecret) })
}

func (s *Session) PaymentConfirmed(reference string) error {
	return s.apply(func(st sessionState) (sessionState, error) { return st.OnPaymentConfirmed(s, reference) })
}

func (s *Session) OrderPersisted(orderID string) error {
	return s.apply(func(st sessionState) (sessionState, error) { return st.OnOrderPersisted(s, orderID) })
}

func (s *Session) Fail(f Failure) error {
	return s.apply(func(st sessionState) (sessionState, error) { return st.OnFailure(s, f) })
}

func (s *Session) apply(transition func(sessionState) (sessionState, error)) error {
	if s.state == nil {
		s.state = idleState{}
	}
	from := s.state.Status()
	next, err := transition(s.state)
	if err != nil {
		return fmt.Errorf("%w: from %s", err, from)
	}
	s.state = next
	s.touch()
	return nil
}

func (s *Session) touch() {
	s.UpdatedAt = time.Now().UTC()
}
