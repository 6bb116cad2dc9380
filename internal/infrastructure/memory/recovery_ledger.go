package memory

import (
	"context"
	"sync"
	"time"

	domain "github.com/Zhima-Mochi/minishop-cart/internal/domain/recovery"
)

// RecoveryLedger keeps entries in arrival order.
type RecoveryLedger struct {
	mu      sync.RWMutex
	entries []domain.Entry
	seen    map[string]struct{}
}

func NewRecoveryLedger() *RecoveryLedger {
	return &RecoveryLedger{seen: make(map[string]struct{})}
}

func (l *RecoveryLedger) Record(ctx context.Context, e domain.Entry) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if e.PaymentReference == "" {
		return false, domain.ErrMissingReference
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.seen[e.PaymentReference]; ok {
		return false, nil
	}
	l.seen[e.PaymentReference] = struct{}{}
	l.entries = append(l.entries, e)
	return true, nil
}

func (l *RecoveryLedger) List(ctx context.Context) ([]domain.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	return append([]domain.Entry(nil), l.entries...), nil
}
