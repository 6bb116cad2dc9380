package payment

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	dompayment "github.com/Zhima-Mochi/minishop-cart/internal/domain/payment"
)

const (
	defaultSuccessRate = 0.7
	declinedMessage    = "Your card was declined."
)

// SimulatedSheet stands in for a client-side payment SDK. Present succeeds with the configured
// probability after an optional delay, and reports a decline otherwise.
type SimulatedSheet struct {
	mu          sync.Mutex
	random      *rand.Rand
	successRate float64
	delay       time.Duration

	clientSecret string
	label        string
}

type SheetOptions struct {
	SuccessRate float64
	Delay       time.Duration
	Seed        int64
}

func NewSimulatedSheet(opts SheetOptions) *SimulatedSheet {
	rate := opts.SuccessRate
	if rate <= 0 || rate > 1 {
		rate = defaultSuccessRate
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &SimulatedSheet{
		random:      rand.New(rand.NewSource(seed)),
		successRate: rate,
		delay:       opts.Delay,
	}
}

func (s *SimulatedSheet) Initialize(ctx context.Context, clientSecret, merchantLabel string) error {
	if err := ctx.Err(); err != nil {
		return sheetContextError(err)
	}
	if clientSecret == "" {
		return &dompayment.SheetError{Code: dompayment.ErrorCodeFailed, Message: "client secret is required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.clientSecret, s.label = clientSecret, merchantLabel
	return nil
}

// Present confirms the payment prepared by Initialize and returns its reference.
func (s *SimulatedSheet) Present(ctx context.Context) (string, error) {
	s.mu.Lock()
	secret := s.clientSecret
	s.mu.Unlock()
	if secret == "" {
		return "", &dompayment.SheetError{Code: dompayment.ErrorCodeFailed, Message: "payment sheet was not initialized"}
	}

	if s.delay > 0 {
		t := time.NewTimer(s.delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return "", sheetContextError(ctx.Err())
		case <-t.C:
		}
	} else if err := ctx.Err(); err != nil {
		return "", sheetContextError(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.clientSecret = ""
	if s.random.Float64() <= s.successRate {
		return dompayment.ReferenceFromClientSecret(secret), nil
	}
	return "", &dompayment.SheetError{Code: dompayment.ErrorCodeFailed, Message: declinedMessage}
}

func (s *SimulatedSheet) SuccessRate() float64 { return s.successRate }

func sheetContextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &dompayment.SheetError{Code: dompayment.ErrorCodeTimeout, Message: "The payment timed out"}
	}
	return &dompayment.SheetError{Code: dompayment.ErrorCodeCanceled, Message: "The payment flow has been canceled"}
}
