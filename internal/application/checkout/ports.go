package checkout

import (
	"context"
	"errors"
	"time"

	domcart "github.com/Zhima-Mochi/minishop-cart/internal/domain/cart"
	"github.com/shopspring/decimal"
)

// ErrCircuitOpen is returned by outbound clients that refuse calls while their upstream is unhealthy.
var ErrCircuitOpen = errors.New("checkout: upstream circuit open")

// RejectedError is returned when an upstream answered but refused the request.
type RejectedError struct {
	Status  int
	Message string
}

func (e *RejectedError) Error() string { return e.Message }

type IDGenerator interface {
	NewID() string
}

// CartSource is the cart the orchestrator snapshots at start and clears on success.
type CartSource interface {
	List() []domcart.Item
	Clear()
}

type IntentRequest struct {
	SessionID   string
	AmountMinor int64
	// Credential is sent as a bearer token.
	Credential string
}

// IntentClient asks the payment backend for a client secret authorising AmountMinor.
type IntentClient interface {
	CreateIntent(ctx context.Context, req IntentRequest) (clientSecret string, err error)
}

// PaymentSheet is the payment confirmation SDK. Present returns the payment reference;
// an empty reference means the caller derives it from the client secret.
type PaymentSheet interface {
	Initialize(ctx context.Context, clientSecret, merchantLabel string) error
	Present(ctx context.Context) (reference string, err error)
}

type OrderLine struct {
	ItemID       string          `json:"id"`
	Name         string          `json:"name"`
	SubjectLabel string          `json:"subjectLabel"`
	SubjectCode  string          `json:"subjectCode"`
	UnitPrice    decimal.Decimal `json:"price"`
	ImageRef     string          `json:"imageRef"`
	Quantity     int             `json:"quantity"`
}

type OrderRequest struct {
	SessionID        string          `json:"sessionId"`
	Lines            []OrderLine     `json:"items"`
	Total            decimal.Decimal `json:"total"`
	AmountMinor      int64           `json:"amountMinor"`
	PaymentMethod    string          `json:"paymentMethod"`
	Paid             bool            `json:"paid"`
	PaidAt           time.Time       `json:"paidAt"`
	PaymentReference string          `json:"paymentReference"`
}

type OrderReceipt struct {
	OrderID string
	Message string
}

// OrderClient records a paid order in the backend.
type OrderClient interface {
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderReceipt, error)
}
