package httppresentation

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"strings"

	appcheckout "github.com/Zhima-Mochi/minishop-cart/internal/application/checkout"
	"github.com/Zhima-Mochi/minishop-cart/internal/application/notification"
	domcart "github.com/Zhima-Mochi/minishop-cart/internal/domain/cart"
	domcheckout "github.com/Zhima-Mochi/minishop-cart/internal/domain/checkout"
	domrecovery "github.com/Zhima-Mochi/minishop-cart/internal/domain/recovery"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability/logctx"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	componentHTTPHandler = "http_server"
	maxBodyBytes         = 64 << 10
)

// ItemStore is the cart or favourites collection exposed over HTTP.
type ItemStore interface {
	Add(item domcart.Item) (bool, error)
	Remove(id string)
	Clear()
	List() []domcart.Item
}

type CheckoutRunner interface {
	Start(ctx context.Context, in appcheckout.StartInput) domcheckout.Outcome
	Current() (domcheckout.State, bool)
}

// HealthCheck reports a dependency as unhealthy by returning an error.
type HealthCheck func(ctx context.Context) error

type Deps struct {
	Cart       ItemStore
	Favourites ItemStore
	Checkout   CheckoutRunner
	Recovery   domrecovery.Ledger
	Health     map[string]HealthCheck
	// Metrics serves /metrics when set.
	Metrics   http.Handler
	Telemetry observability.Observability
}

type Handler struct {
	deps     Deps
	validate *validator.Validate

	log          observability.Logger
	httpRequests observability.Counter
	httpDuration observability.Histogram
}

func NewHandler(deps Deps) *Handler {
	_, logger, metrics := observability.Parts(deps.Telemetry)
	return &Handler{
		deps:         deps,
		validate:     newValidator(),
		log:          logger.With(observability.F("component", componentHTTPHandler)),
		httpRequests: metrics.Counter(observability.MHTTPRequests),
		httpDuration: metrics.Histogram(observability.MHTTPRequestDuration),
	}
}

// Router wires: trace -> request logger -> HTTP metrics -> access log -> handler.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(ObservabilityMiddleware(h.log))
	r.Use(httpMetrics(h.httpRequests, h.httpDuration))
	r.Use(accessLog(h.log))

	h.mountItems(r, "/cart", h.deps.Cart)
	h.mountItems(r, "/favourites", h.deps.Favourites)

	r.Post("/checkout", h.handleCheckout)
	r.Get("/checkout/state", h.handleCheckoutState)
	r.Get("/recovery", h.handleRecovery)
	r.Get("/health", h.handleHealth)
	if h.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.deps.Metrics)
	}

	return otelhttp.NewHandler(r, "http.server")
}

func (h *Handler) mountItems(r chi.Router, prefix string, store ItemStore) {
	if store == nil {
		return
	}
	r.Route(prefix, func(r chi.Router) {
		r.Get("/", h.handleList(store))
		r.Post("/", h.handleAdd(store))
		r.Delete("/", h.handleClear(store))
		r.Delete("/{id}", h.handleRemove(store))
	})
}

type itemRequest struct {
	ID           string          `json:"id" validate:"required,max=128"`
	DisplayName  string          `json:"displayName" validate:"required,max=256,no_html"`
	SubjectLabel string          `json:"subjectLabel" validate:"max=128,no_html"`
	SubjectCode  string          `json:"subjectCode" validate:"max=32,no_html"`
	UnitPrice    decimal.Decimal `json:"unitPrice" validate:"nonneg_decimal"`
	ImageRef     string          `json:"imageRef" validate:"omitempty,max=2048"`
}

func (req itemRequest) toItem() domcart.Item {
	return domcart.Item{
		ID:           strings.TrimSpace(req.ID),
		DisplayName:  strings.TrimSpace(req.DisplayName),
		SubjectLabel: strings.TrimSpace(req.SubjectLabel),
		SubjectCode:  strings.TrimSpace(req.SubjectCode),
		UnitPrice:    req.UnitPrice,
		ImageRef:     strings.TrimSpace(req.ImageRef),
	}
}

type itemsResponse struct {
	Items []domcart.Item  `json:"items"`
	Count int             `json:"count"`
	Total decimal.Decimal `json:"total"`
}

type addResponse struct {
	Added bool          `json:"added"`
	Items itemsResponse `json:"collection"`
}

func listing(store ItemStore) itemsResponse {
	items := store.List()
	if items == nil {
		items = []domcart.Item{}
	}
	return itemsResponse{Items: items, Count: len(items), Total: domcart.Total(items)}
}

func (h *Handler) handleList(store ItemStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, listing(store))
	}
}

func (h *Handler) handleAdd(store ItemStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req itemRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := h.validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, errors.New(validationMessage(err)))
			return
		}

		added, err := store.Add(req.toItem())
		if err != nil {
			writeDomainError(w, err)
			return
		}

		status := http.StatusCreated
		if !added {
			status = http.StatusOK
		}
		writeJSON(w, status, addResponse{Added: added, Items: listing(store)})
	}
}

func (h *Handler) handleRemove(store ItemStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store.Remove(chi.URLParam(r, "id"))
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) handleClear(store ItemStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store.Clear()
		w.WriteHeader(http.StatusNoContent)
	}
}

type checkoutRequest struct {
	Credential string `json:"credential" validate:"omitempty,max=4096"`
}

type checkoutResponse struct {
	Outcome      domcheckout.Outcome       `json:"outcome"`
	Notification notification.Notification `json:"notification"`
}

func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	if h.deps.Checkout == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("checkout is not configured"))
		return
	}

	var req checkoutRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New(validationMessage(err)))
		return
	}
	credential := req.Credential
	if bearer := bearerToken(r); bearer != "" {
		credential = bearer
	}

	out := h.deps.Checkout.Start(r.Context(), appcheckout.StartInput{Credential: credential})
	n := notification.FromOutcome(out)

	if n.RequiresSupport {
		logctx.FromOr(r.Context(), h.log).Warn("checkout_requires_support",
			observability.F("session_id", out.SessionID),
			observability.F("payment_reference", out.PaymentReference),
		)
	}
	writeJSON(w, checkoutStatus(out), checkoutResponse{Outcome: out, Notification: n})
}

func checkoutStatus(out domcheckout.Outcome) int {
	if out.Succeeded() {
		return http.StatusOK
	}
	switch out.Reason {
	case domcheckout.FailureAlreadyInProgress:
		return http.StatusConflict
	case domcheckout.FailureEmptyCart:
		return http.StatusUnprocessableEntity
	case domcheckout.FailurePayment:
		return http.StatusPaymentRequired
	default:
		return http.StatusBadGateway
	}
}

type stateResponse struct {
	State  domcheckout.State `json:"state"`
	Active bool              `json:"active"`
}

func (h *Handler) handleCheckoutState(w http.ResponseWriter, _ *http.Request) {
	if h.deps.Checkout == nil {
		writeJSON(w, http.StatusOK, stateResponse{State: domcheckout.StateIdle})
		return
	}
	state, active := h.deps.Checkout.Current()
	writeJSON(w, http.StatusOK, stateResponse{State: state, Active: active})
}

type recoveryResponse struct {
	Entries []domrecovery.Entry `json:"entries"`
	Count   int                 `json:"count"`
}

func (h *Handler) handleRecovery(w http.ResponseWriter, r *http.Request) {
	if h.deps.Recovery == nil {
		writeJSON(w, http.StatusOK, recoveryResponse{Entries: []domrecovery.Entry{}})
		return
	}
	entries, err := h.deps.Recovery.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []domrecovery.Entry{}
	}
	writeJSON(w, http.StatusOK, recoveryResponse{Entries: entries, Count: len(entries)})
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Checks: map[string]string{}}
	names := make([]string, 0, len(h.deps.Health))
	for name := range h.deps.Health {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	for _, name := range names {
		if err := h.deps.Health[name](r.Context()); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	writeJSON(w, status, resp)
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
		return strings.TrimSpace(auth[len(prefix):])
	}
	return ""
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domcart.ErrInvalidItem),
		errors.Is(err, domcart.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}
