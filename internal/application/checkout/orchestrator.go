package checkout

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	domcart "github.com/Zhima-Mochi/minishop-cart/internal/domain/cart"
	domain "github.com/Zhima-Mochi/minishop-cart/internal/domain/checkout"
	domoutbox "github.com/Zhima-Mochi/minishop-cart/internal/domain/outbox"
	dompayment "github.com/Zhima-Mochi/minishop-cart/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	checkoutService = "checkout-service"
	useCaseCheckout = "checkout.start"
	spanPrefix      = "UC."

	peerPaymentAPI   = "payment-api"
	peerPaymentSheet = "payment-sheet"
	peerOrderAPI     = "order-api"
	publishPeer      = "outbox"

	PaymentMethodCard = "card"

	defaultIntentTimeout  = 10 * time.Second
	defaultPaymentTimeout = 5 * time.Minute
	defaultOrderTimeout   = 10 * time.Second
	defaultPublishTimeout = 300 * time.Millisecond
)

type Deps struct {
	Cart      CartSource
	Intents   IntentClient
	Payments  PaymentSheet
	Orders    OrderClient
	Publisher domoutbox.Publisher
	IDs       IDGenerator
	Telemetry observability.Observability
}

type Options struct {
	MerchantLabel  string
	PaymentMethod  string
	IntentTimeout  time.Duration
	PaymentTimeout time.Duration
	OrderTimeout   time.Duration
	PublishTimeout time.Duration
}

type StartInput struct {
	Credential string
}

// Orchestrator drives one checkout at a time from cart snapshot to recorded order.
type Orchestrator struct {
	cart      CartSource
	intents   IntentClient
	payments  PaymentSheet
	orders    OrderClient
	publisher domoutbox.Publisher
	ids       IDGenerator
	opts      Options

	inFlight atomic.Bool
	mu       sync.Mutex
	current  domain.State
	active   bool

	tracer       observability.Tracer
	log          observability.Logger
	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

func NewOrchestrator(deps Deps, opts Options) *Orchestrator {
	tracer, logger, metrics := observability.Parts(deps.Telemetry)

	if opts.PaymentMethod == "" {
		opts.PaymentMethod = PaymentMethodCard
	}
	if opts.IntentTimeout <= 0 {
		opts.IntentTimeout = defaultIntentTimeout
	}
	if opts.PaymentTimeout <= 0 {
		opts.PaymentTimeout = defaultPaymentTimeout
	}
	if opts.OrderTimeout <= 0 {
		opts.OrderTimeout = defaultOrderTimeout
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = defaultPublishTimeout
	}

	return &Orchestrator{
		cart:         deps.Cart,
		intents:      deps.Intents,
		payments:     deps.Payments,
		orders:       deps.Orders,
		publisher:    deps.Publisher,
		ids:          deps.IDs,
		opts:         opts,
		current:      domain.StateIdle,
		tracer:       tracer,
		log:          logger.With(observability.F("service", checkoutService)),
		reqCounter:   metrics.Counter(observability.MUsecaseRequests),
		durHistogram: metrics.Histogram(observability.MUsecaseDuration),
		extCounter:   metrics.Counter(observability.MExternalRequests),
		extHistogram: metrics.Histogram(observability.MExternalRequestDuration),
	}
}

// Current reports the state of the in-flight session, or StateIdle and false when none runs.
func (o *Orchestrator) Current() (domain.State, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.active {
		return domain.StateIdle, false
	}
	return o.current, true
}

// Start runs the whole checkout protocol and always returns exactly one terminal outcome.
func (o *Orchestrator) Start(ctx context.Context, in StartInput) (out domain.Outcome) {
	ctx, span := o.tracer.Start(ctx, spanPrefix+"StartCheckout",
		attribute.String("use_case", useCaseCheckout),
	)
	ctx, logger := logctx.Enrich(ctx, o.log, observability.F("use_case", useCaseCheckout))
	start := time.Now()

	defer func() {
		lat := time.Since(start).Seconds()
		outcome, statusText := "success", "OK"
		if !out.Succeeded() {
			outcome, statusText = string(out.Reason), statusFor(out)
		}

		span.SetAttributes(
			attribute.String("checkout.session_id", out.SessionID),
			attribute.String("checkout.outcome", string(out.Kind)),
			attribute.Int64("checkout.amount_minor", out.AmountMinor),
			attribute.Int("checkout.item_count", out.ItemCount),
		)
		if out.Succeeded() {
			span.SetStatus(codes.Ok, statusText)
		} else {
			span.RecordError(out.Failure())
			span.SetStatus(codes.Error, statusText)
		}
		span.End()

		o.reqCounter.Add(1,
			observability.L("use_case", useCaseCheckout),
			observability.L("outcome", outcome),
		)
		o.durHistogram.Observe(lat, observability.L("use_case", useCaseCheckout))

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", statusText),
			observability.F("latency_seconds", lat),
			observability.F("session_id", out.SessionID),
			observability.F("amount_minor", out.AmountMinor),
		}
		if out.PaymentReference != "" {
			fields = append(fields, observability.F("payment_reference", out.PaymentReference))
		}
		if out.OrderID != "" {
			fields = append(fields, observability.F("order_id", out.OrderID))
		}
		if !out.Succeeded() && out.Message != "" {
			fields = append(fields, observability.F("error", out.Message))
		}
		if err := o.publish(ctx, out); err != nil {
			fields = append(fields, observability.F("event_publish_error", err.Error()))
		}

		logger.Info("use_case_done", fields...)
	}()

	if !o.inFlight.CompareAndSwap(false, true) {
		return domain.NewFailedOutcome(nil, domain.Failure{
			Kind:    domain.FailureAlreadyInProgress,
			Message: "a checkout is already in progress",
		})
	}
	defer o.release()

	snapshot := o.cart.List()
	if len(snapshot) == 0 {
		return domain.NewFailedOutcome(nil, domain.Failure{
			Kind:    domain.FailureEmptyCart,
			Message: "cart is empty",
		})
	}

	session, err := domain.NewSession(o.ids.NewID(), snapshot)
	if err != nil {
		f := domain.Failure{Kind: domain.FailureIntent, SubReason: domain.SubReasonRejected, Message: err.Error()}
		if errors.Is(err, domain.ErrEmptySnapshot) {
			f = domain.Failure{Kind: domain.FailureEmptyCart, Message: "cart is empty"}
		}
		return domain.NewFailedOutcome(nil, f)
	}
	span.SetAttributes(attribute.String("checkout.session_id", session.ID))

	if err := o.advance(session, session.Begin()); err != nil {
		return o.abort(ctx, session, domain.Failure{Kind: domain.FailureIntent, Message: err.Error()})
	}

	clientSecret, f := o.requestIntent(ctx, session, in.Credential)
	if f != nil {
		return o.abort(ctx, session, *f)
	}
	if err := o.advance(session, session.IntentObtained(clientSecret)); err != nil {
		return o.abort(ctx, session, domain.Failure{Kind: domain.FailureIntent, SubReason: domain.SubReasonRejected, Message: err.Error()})
	}
	span.AddEvent("checkout.intent_obtained")

	reference, f := o.confirmPayment(ctx, clientSecret)
	if f != nil {
		return o.abort(ctx, session, *f)
	}
	if err := o.advance(session, session.PaymentConfirmed(reference)); err != nil {
		return o.abort(ctx, session, domain.Failure{Kind: domain.FailurePayment, SubReason: domain.SubReasonDeclined, Message: err.Error()})
	}
	span.AddEvent("checkout.payment_confirmed",
		trace.WithAttributes(attribute.String("checkout.payment_reference", reference)),
	)

	receipt, f := o.submitOrder(ctx, session)
	if f != nil {
		logger.Error("checkout_order_unrecorded",
			observability.F("session_id", session.ID),
			observability.F("payment_reference", session.PaymentReference),
			observability.F("amount_minor", session.AmountMinor),
			observability.F("error", f.Message),
		)
		return o.abort(ctx, session, *f)
	}
	if err := o.advance(session, session.OrderPersisted(receipt.OrderID)); err != nil {
		return o.abort(ctx, session, domain.Failure{Kind: domain.FailureOrder, SubReason: domain.SubReasonRejected, Message: err.Error()})
	}
	span.AddEvent("checkout.order_recorded",
		trace.WithAttributes(attribute.String("checkout.order_id", receipt.OrderID)),
	)

	o.cart.Clear()
	return domain.NewSucceededOutcome(session)
}

func (o *Orchestrator) requestIntent(ctx context.Context, session *domain.Session, credential string) (string, *domain.Failure) {
	ictx, cancel := context.WithTimeout(ctx, o.opts.IntentTimeout)
	defer cancel()

	begin := time.Now()
	secret, err := o.intents.CreateIntent(ictx, IntentRequest{
		SessionID:   session.ID,
		AmountMinor: session.AmountMinor,
		Credential:  credential,
	})
	o.observeExternal(peerPaymentAPI, "create_intent", begin, err)
	if err != nil {
		return "", &domain.Failure{
			Kind:      domain.FailureIntent,
			SubReason: classifyUpstream(ictx, err),
			Message:   err.Error(),
		}
	}
	if secret == "" {
		return "", &domain.Failure{
			Kind:      domain.FailureIntent,
			SubReason: domain.SubReasonRejected,
			Message:   "payment intent response carried no client secret",
		}
	}
	return secret, nil
}

func (o *Orchestrator) confirmPayment(ctx context.Context, clientSecret string) (string, *domain.Failure) {
	pctx, cancel := context.WithTimeout(ctx, o.opts.PaymentTimeout)
	defer cancel()

	begin := time.Now()
	err := o.payments.Initialize(pctx, clientSecret, o.opts.MerchantLabel)
	o.observeExternal(peerPaymentSheet, "initialize", begin, err)
	if err != nil {
		return "", paymentFailure(ctx, pctx, err)
	}

	begin = time.Now()
	reference, err := o.payments.Present(pctx)
	o.observeExternal(peerPaymentSheet, "present", begin, err)
	if err != nil {
		return "", paymentFailure(ctx, pctx, err)
	}
	if reference == "" {
		reference = dompayment.ReferenceFromClientSecret(clientSecret)
	}
	return reference, nil
}

// submitOrder runs detached from the caller: once money moved, the order is attempted to completion.
func (o *Orchestrator) submitOrder(ctx context.Context, session *domain.Session) (OrderReceipt, *domain.Failure) {
	octx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.OrderTimeout)
	defer cancel()

	begin := time.Now()
	receipt, err := o.orders.SubmitOrder(octx, o.orderRequest(session))
	o.observeExternal(peerOrderAPI, "submit_order", begin, err)
	if err != nil {
		return OrderReceipt{}, &domain.Failure{
			Kind:             domain.FailureOrder,
			SubReason:        classifyUpstream(octx, err),
			Message:          err.Error(),
			PaymentReference: session.PaymentReference,
		}
	}
	return receipt, nil
}

func (o *Orchestrator) orderRequest(session *domain.Session) OrderRequest {
	lines := make([]OrderLine, 0, len(session.Snapshot))
	for _, it := range session.Snapshot {
		lines = append(lines, lineFor(it))
	}
	return OrderRequest{
		SessionID:        session.ID,
		Lines:            lines,
		Total:            session.Total,
		AmountMinor:      session.AmountMinor,
		PaymentMethod:    o.opts.PaymentMethod,
		Paid:             true,
		PaidAt:           time.Now().UTC(),
		PaymentReference: session.PaymentReference,
	}
}

func lineFor(it domcart.Item) OrderLine {
	return OrderLine{
		ItemID:       it.ID,
		Name:         it.DisplayName,
		SubjectLabel: it.SubjectLabel,
		SubjectCode:  it.SubjectCode,
		UnitPrice:    it.UnitPrice,
		ImageRef:     it.ImageRef,
		Quantity:     1,
	}
}

func (o *Orchestrator) abort(ctx context.Context, session *domain.Session, f domain.Failure) domain.Outcome {
	if err := o.advance(session, session.Fail(f)); err != nil {
		logctx.FromOr(ctx, o.log).Error("checkout_transition_failed",
			observability.F("session_id", session.ID),
			observability.F("error", err.Error()),
		)
	}
	if session.Failure != nil {
		f = *session.Failure
	}
	return domain.NewFailedOutcome(session, f)
}

// advance publishes the session state for Current once a transition was applied.
func (o *Orchestrator) advance(session *domain.Session, err error) error {
	if err != nil {
		return err
	}
	o.mu.Lock()
	o.current = session.State()
	o.active = true
	o.mu.Unlock()
	return nil
}

func (o *Orchestrator) release() {
	o.mu.Lock()
	o.current = domain.StateIdle
	o.active = false
	o.mu.Unlock()
	o.inFlight.Store(false)
}

func (o *Orchestrator) publish(ctx context.Context, out domain.Outcome) error {
	if o.publisher == nil {
		return nil
	}
	var evt domoutbox.Event = domain.NewFailedEvent(out)
	if out.Succeeded() {
		evt = domain.NewSucceededEvent(out)
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.PublishTimeout)
	defer cancel()

	begin := time.Now()
	err := o.publisher.Publish(pctx, evt)
	o.observeExternal(publishPeer, evt.EventName(), begin, err)
	return err
}

func (o *Orchestrator) observeExternal(peer, endpoint string, begin time.Time, err error) {
	outcome := "success"
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		outcome = "timeout"
	case err != nil:
		outcome = "error"
	}
	o.extCounter.Add(1,
		observability.L("peer", peer),
		observability.L("endpoint", endpoint),
		observability.L("outcome", outcome),
	)
	o.extHistogram.Observe(time.Since(begin).Seconds(),
		observability.L("peer", peer),
		observability.L("endpoint", endpoint),
	)
}

func paymentFailure(parent, step context.Context, err error) *domain.Failure {
	f := &domain.Failure{Kind: domain.FailurePayment, Message: err.Error()}
	switch {
	case dompayment.IsCanceled(err), errors.Is(parent.Err(), context.Canceled):
		f.SubReason = domain.SubReasonUserCancelled
	case isSheetTimeout(err), errors.Is(err, context.DeadlineExceeded), errors.Is(step.Err(), context.DeadlineExceeded):
		f.SubReason = domain.SubReasonTimeout
	default:
		f.SubReason = domain.SubReasonDeclined
	}
	return f
}

func isSheetTimeout(err error) bool {
	var se *dompayment.SheetError
	return errors.As(err, &se) && se.Code == dompayment.ErrorCodeTimeout
}

func classifyUpstream(step context.Context, err error) string {
	var rejected *RejectedError
	switch {
	case errors.Is(err, ErrCircuitOpen):
		return domain.SubReasonCircuitOpen
	case errors.Is(err, context.DeadlineExceeded), errors.Is(step.Err(), context.DeadlineExceeded):
		return domain.SubReasonTimeout
	case errors.As(err, &rejected) && rejected.Status < 500:
		return domain.SubReasonRejected
	default:
		return domain.SubReasonTransport
	}
}

func statusFor(out domain.Outcome) string {
	s := string(out.Reason)
	if out.SubReason != "" {
		s += "_" + out.SubReason
	}
	return strings.ToUpper(s)
}
