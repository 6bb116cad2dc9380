package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	appcart "github.com/Zhima-Mochi/minishop-cart/internal/application/cart"
	domcart "github.com/Zhima-Mochi/minishop-cart/internal/domain/cart"
	domain "github.com/Zhima-Mochi/minishop-cart/internal/domain/checkout"
	domoutbox "github.com/Zhima-Mochi/minishop-cart/internal/domain/outbox"
	dompayment "github.com/Zhima-Mochi/minishop-cart/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, name)
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type fakeCart struct {
	log    *callLog
	items  []domcart.Item
	clears int
}

func (c *fakeCart) List() []domcart.Item { return append([]domcart.Item(nil), c.items...) }

func (c *fakeCart) Clear() {
	c.log.add("clear")
	c.clears++
	c.items = nil
}

type fakeIntents struct {
	log    *callLog
	secret string
	err    error
	block  bool
	req    IntentRequest
}

func (f *fakeIntents) CreateIntent(ctx context.Context, req IntentRequest) (string, error) {
	f.log.add("intent")
	f.req = req
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.secret, f.err
}

type fakeSheet struct {
	log        *callLog
	initErr    error
	presentErr error
	reference  string
	label      string
	secret     string
	// onPresent runs inside Present before it returns.
	onPresent func(ctx context.Context) error
}

func (f *fakeSheet) Initialize(_ context.Context, clientSecret, merchantLabel string) error {
	f.log.add("initialize")
	f.secret, f.label = clientSecret, merchantLabel
	return f.initErr
}

func (f *fakeSheet) Present(ctx context.Context) (string, error) {
	f.log.add("present")
	if f.onPresent != nil {
		if err := f.onPresent(ctx); err != nil {
			return "", err
		}
	}
	return f.reference, f.presentErr
}

type fakeOrders struct {
	log      *callLog
	receipt  OrderReceipt
	err      error
	req      OrderRequest
	ctxErrAt error
}

func (f *fakeOrders) SubmitOrder(ctx context.Context, req OrderRequest) (OrderReceipt, error) {
	f.log.add("order")
	f.req = req
	f.ctxErrAt = ctx.Err()
	return f.receipt, f.err
}

type fakePublisher struct {
	mu     sync.Mutex
	events []domoutbox.Event
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, e domoutbox.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *fakePublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventName())
	}
	return out
}

type fixedIDs struct{}

func (fixedIDs) NewID() string { return "sess-1" }

type countingCounter struct {
	mu     sync.Mutex
	labels [][]observability.Label
}

func (c *countingCounter) Add(_ float64, labels ...observability.Label) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.labels = append(c.labels, labels)
}

type testMetrics struct {
	counters map[observability.MetricKey]*countingCounter
}

func (m *testMetrics) Counter(k observability.MetricKey) observability.Counter {
	if c, ok := m.counters[k]; ok {
		return c
	}
	c := &countingCounter{}
	m.counters[k] = c
	return c
}

func (m *testMetrics) Histogram(observability.MetricKey) observability.Histogram {
	return observability.NopHistogram()
}

type testTelemetry struct{ metrics *testMetrics }

func (t testTelemetry) Tracer() observability.Tracer   { return observability.NopTracer() }
func (t testTelemetry) Logger() observability.Logger   { return observability.NopLogger() }
func (t testTelemetry) Metrics() observability.Metrics { return t.metrics }

type harness struct {
	log       *callLog
	cart      *fakeCart
	intents   *fakeIntents
	sheet     *fakeSheet
	orders    *fakeOrders
	publisher *fakePublisher
	metrics   *testMetrics
	opts      Options
}

func item(id, price string) domcart.Item {
	return domcart.Item{
		ID:           id,
		DisplayName:  "Item " + id,
		SubjectLabel: "Mathematics",
		SubjectCode:  "MATH",
		UnitPrice:    decimal.RequireFromString(price),
		ImageRef:     id + ".png",
	}
}

func newHarness(items ...domcart.Item) *harness {
	log := &callLog{}
	return &harness{
		log:       log,
		cart:      &fakeCart{log: log, items: items},
		intents:   &fakeIntents{log: log, secret: "pi_123_secret_abc"},
		sheet:     &fakeSheet{log: log, reference: "pi_123"},
		orders:    &fakeOrders{log: log, receipt: OrderReceipt{OrderID: "ord-1"}},
		publisher: &fakePublisher{},
		metrics:   &testMetrics{counters: map[observability.MetricKey]*countingCounter{}},
		opts:      Options{MerchantLabel: "Minishop"},
	}
}

func (h *harness) orchestrator() *Orchestrator {
	return NewOrchestrator(Deps{
		Cart:      h.cart,
		Intents:   h.intents,
		Payments:  h.sheet,
		Orders:    h.orders,
		Publisher: h.publisher,
		IDs:       fixedIDs{},
		Telemetry: testTelemetry{metrics: h.metrics},
	}, h.opts)
}

func TestStart_HappyPath(t *testing.T) {
	h := newHarness(item("A", "18.99"), item("B", "5.00"), item("C", "0.01"))
	o := h.orchestrator()

	out := o.Start(context.Background(), StartInput{Credential: "tok"})

	require.True(t, out.Succeeded(), "outcome: %+v", out)
	assert.Equal(t, []string{"intent", "initialize", "present", "order", "clear"}, h.log.list())
	assert.Equal(t, 1, h.cart.clears)

	assert.Equal(t, int64(2400), h.intents.req.AmountMinor)
	assert.Equal(t, "tok", h.intents.req.Credential)
	assert.Equal(t, "pi_123_secret_abc", h.sheet.secret)
	assert.Equal(t, "Minishop", h.sheet.label)

	req := h.orders.req
	require.Len(t, req.Lines, 3)
	for _, l := range req.Lines {
		assert.Equal(t, 1, l.Quantity)
	}
	assert.Equal(t, "Item A", req.Lines[0].Name)
	assert.Equal(t, "MATH", req.Lines[0].SubjectCode)
	assert.True(t, req.Total.Equal(decimal.RequireFromString("24.00")))
	assert.Equal(t, int64(2400), req.AmountMinor)
	assert.Equal(t, PaymentMethodCard, req.PaymentMethod)
	assert.True(t, req.Paid)
	assert.False(t, req.PaidAt.IsZero())
	assert.Equal(t, "pi_123", req.PaymentReference)
	assert.Equal(t, "sess-1", req.SessionID)

	assert.Equal(t, "ord-1", out.OrderID)
	assert.Equal(t, "pi_123", out.PaymentReference)
	assert.Equal(t, 3, out.ItemCount)
	assert.Equal(t, []string{"checkout.succeeded"}, h.publisher.names())

	state, active := o.Current()
	assert.False(t, active)
	assert.Equal(t, domain.StateIdle, state)

	counted := h.metrics.counters[observability.MUsecaseRequests].labels
	require.Len(t, counted, 1)
	assert.Contains(t, counted[0], observability.L("outcome", "success"))
}

func TestStart_EmptyCart(t *testing.T) {
	h := newHarness()
	out := h.orchestrator().Start(context.Background(), StartInput{})

	assert.Equal(t, domain.FailureEmptyCart, out.Reason)
	assert.Empty(t, h.log.list())
	assert.Equal(t, []string{"checkout.failed"}, h.publisher.names())
}

func TestStart_AlreadyInProgress(t *testing.T) {
	h := newHarness(item("A", "1.00"))
	entered := make(chan struct{})
	release := make(chan struct{})
	h.sheet.onPresent = func(context.Context) error {
		close(entered)
		<-release
		return nil
	}
	o := h.orchestrator()

	done := make(chan domain.Outcome, 1)
	go func() { done <- o.Start(context.Background(), StartInput{}) }()
	<-entered

	state, active := o.Current()
	assert.True(t, active)
	assert.Equal(t, domain.StateConfirmingPayment, state)

	second := o.Start(context.Background(), StartInput{})
	assert.Equal(t, domain.FailureAlreadyInProgress, second.Reason)

	close(release)
	first := <-done
	assert.True(t, first.Succeeded())
	assert.Equal(t, []string{"intent", "initialize", "present", "order", "clear"}, h.log.list())

	third := o.Start(context.Background(), StartInput{})
	assert.Equal(t, domain.FailureEmptyCart, third.Reason)
}

func TestStart_IntentFailures(t *testing.T) {
	tests := []struct {
		name      string
		secret    string
		err       error
		subReason string
	}{
		{name: "rejected", err: &RejectedError{Status: 402, Message: "card_declined"}, subReason: domain.SubReasonRejected},
		{name: "circuit open", err: ErrCircuitOpen, subReason: domain.SubReasonCircuitOpen},
		{name: "transport", err: errors.New("connection refused"), subReason: domain.SubReasonTransport},
		{name: "empty secret", secret: "", subReason: domain.SubReasonRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(item("A", "1.00"))
			h.intents.secret, h.intents.err = tt.secret, tt.err

			out := h.orchestrator().Start(context.Background(), StartInput{})

			assert.Equal(t, domain.FailureIntent, out.Reason)
			assert.Equal(t, tt.subReason, out.SubReason)
			assert.Equal(t, []string{"intent"}, h.log.list())
			assert.Len(t, h.cart.items, 1)
		})
	}
}

func TestStart_IntentTimeout(t *testing.T) {
	h := newHarness(item("A", "1.00"))
	h.intents.block = true
	h.opts.IntentTimeout = 20 * time.Millisecond

	out := h.orchestrator().Start(context.Background(), StartInput{})

	assert.Equal(t, domain.FailureIntent, out.Reason)
	assert.Equal(t, domain.SubReasonTimeout, out.SubReason)
}

func TestStart_PaymentFailures(t *testing.T) {
	t.Run("user cancelled", func(t *testing.T) {
		h := newHarness(item("A", "1.00"))
		h.sheet.presentErr = &dompayment.SheetError{Code: dompayment.ErrorCodeCanceled, Message: "The payment flow has been canceled"}

		out := h.orchestrator().Start(context.Background(), StartInput{})

		assert.Equal(t, domain.FailurePayment, out.Reason)
		assert.Equal(t, domain.SubReasonUserCancelled, out.SubReason)
		assert.Equal(t, "The payment flow has been canceled", out.Message)
		assert.NotContains(t, h.log.list(), "order")
		assert.Zero(t, h.cart.clears)
	})

	t.Run("declined message verbatim", func(t *testing.T) {
		h := newHarness(item("A", "1.00"))
		h.sheet.presentErr = &dompayment.SheetError{Code: dompayment.ErrorCodeFailed, Message: "Your card was declined."}

		out := h.orchestrator().Start(context.Background(), StartInput{})

		assert.Equal(t, domain.SubReasonDeclined, out.SubReason)
		assert.Equal(t, "Your card was declined.", out.Message)
		assert.Len(t, h.cart.items, 1)
	})

	t.Run("initialize failure skips present", func(t *testing.T) {
		h := newHarness(item("A", "1.00"))
		h.sheet.initErr = errors.New("invalid client secret")

		out := h.orchestrator().Start(context.Background(), StartInput{})

		assert.Equal(t, domain.FailurePayment, out.Reason)
		assert.Equal(t, []string{"intent", "initialize"}, h.log.list())
	})

	t.Run("caller cancels during confirmation", func(t *testing.T) {
		h := newHarness(item("A", "1.00"))
		ctx, cancel := context.WithCancel(context.Background())
		h.sheet.onPresent = func(pctx context.Context) error {
			cancel()
			<-pctx.Done()
			return pctx.Err()
		}

		out := h.orchestrator().Start(ctx, StartInput{})

		assert.Equal(t, domain.SubReasonUserCancelled, out.SubReason)
		assert.NotContains(t, h.log.list(), "order")
	})

	t.Run("timeout", func(t *testing.T) {
		h := newHarness(item("A", "1.00"))
		h.opts.PaymentTimeout = 20 * time.Millisecond
		h.sheet.onPresent = func(pctx context.Context) error {
			<-pctx.Done()
			return pctx.Err()
		}

		out := h.orchestrator().Start(context.Background(), StartInput{})

		assert.Equal(t, domain.SubReasonTimeout, out.SubReason)
	})
}

func TestStart_ReferenceDerivedFromClientSecret(t *testing.T) {
	h := newHarness(item("A", "1.00"))
	h.sheet.reference = ""

	out := h.orchestrator().Start(context.Background(), StartInput{})

	require.True(t, out.Succeeded())
	assert.Equal(t, "pi_123", h.orders.req.PaymentReference)
}

func TestStart_OrderFailureKeepsPaymentReference(t *testing.T) {
	h := newHarness(item("A", "1.00"))
	h.orders.err = &RejectedError{Status: 200, Message: "Order could not be saved"}

	out := h.orchestrator().Start(context.Background(), StartInput{})

	assert.Equal(t, domain.FailureOrder, out.Reason)
	assert.Equal(t, domain.SubReasonRejected, out.SubReason)
	assert.Equal(t, "pi_123", out.PaymentReference)
	require.NotNil(t, out.Failure())
	assert.False(t, out.Failure().Retryable())
	assert.Zero(t, h.cart.clears)
	assert.Len(t, h.cart.items, 1)

	require.Len(t, h.publisher.events, 1)
	evt, ok := h.publisher.events[0].(domain.FailedEvent)
	require.True(t, ok)
	assert.Equal(t, "pi_123", evt.PaymentReference)
}

func TestStart_OrderStepIgnoresCallerCancellation(t *testing.T) {
	h := newHarness(item("A", "1.00"))
	ctx, cancel := context.WithCancel(context.Background())
	h.sheet.onPresent = func(context.Context) error {
		cancel()
		return nil
	}

	out := h.orchestrator().Start(ctx, StartInput{})

	require.True(t, out.Succeeded(), "outcome: %+v", out)
	assert.NoError(t, h.orders.ctxErrAt)
	assert.Equal(t, 1, h.cart.clears)
}

func TestStart_PublishFailureDoesNotChangeOutcome(t *testing.T) {
	h := newHarness(item("A", "1.00"))
	h.publisher.err = errors.New("bus down")

	out := h.orchestrator().Start(context.Background(), StartInput{})

	assert.True(t, out.Succeeded())
	assert.Equal(t, 1, h.cart.clears)
}

func TestStart_SessionIgnoresCartChangesAfterStart(t *testing.T) {
	store := appcart.NewCartStore(memory.NewKVStore(), nil, appcart.Options{})
	t.Cleanup(func() { _ = store.Flush(context.Background()) })
	_, err := store.Add(item("A", "10.00"))
	require.NoError(t, err)

	h := newHarness()
	h.sheet.onPresent = func(context.Context) error {
		added, err := store.Add(item("B", "5.00"))
		require.NoError(t, err)
		require.True(t, added)
		return nil
	}
	o := NewOrchestrator(Deps{
		Cart:      store,
		Intents:   h.intents,
		Payments:  h.sheet,
		Orders:    h.orders,
		Publisher: h.publisher,
		IDs:       fixedIDs{},
	}, h.opts)

	out := o.Start(context.Background(), StartInput{})

	require.True(t, out.Succeeded(), "outcome: %+v", out)
	assert.Equal(t, int64(1000), h.intents.req.AmountMinor)
	require.Len(t, h.orders.req.Lines, 1)
	assert.Equal(t, "A", h.orders.req.Lines[0].ItemID)
	assert.Equal(t, int64(1000), h.orders.req.AmountMinor)
	assert.True(t, h.orders.req.Total.Equal(decimal.RequireFromString("10.00")))
	assert.Equal(t, int64(1000), out.AmountMinor)
	assert.Empty(t, store.List())
}
