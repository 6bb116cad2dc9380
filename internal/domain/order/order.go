package order

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound     = errors.New("order: not found")
	ErrConflict     = errors.New("order: conflict")
	ErrInvalidOrder = errors.New("order: invalid order")
	ErrNotPaid      = errors.New("order: payment not confirmed")
)

type Status string

const (
	// StatusRecorded is the only status a paid order can be created in.
	StatusRecorded Status = "recorded"
)

type Line struct {
	ItemID       string
	Name         string
	SubjectLabel string
	SubjectCode  string
	UnitPrice    decimal.Decimal
	ImageRef     string
	Quantity     int
}

// Order is a paid checkout as recorded by the order backend.
type Order struct {
	ID               string
	SessionID        string
	PaymentReference string
	PaymentMethod    string
	Lines            []Line
	Total            decimal.Decimal
	AmountMinor      int64
	PaidAt           time.Time
	Status           Status
	CreatedAt        time.Time
}

type NewOrderInput struct {
	SessionID        string
	PaymentReference string
	PaymentMethod    string
	Lines            []Line
	Total            decimal.Decimal
	AmountMinor      int64
	Paid             bool
	PaidAt           time.Time
}

func New(id string, in NewOrderInput) (*Order, error) {
	if !in.Paid {
		return nil, ErrNotPaid
	}
	if strings.TrimSpace(in.PaymentReference) == "" {
		return nil, errors.Join(ErrInvalidOrder, errors.New("payment reference is required"))
	}
	if len(in.Lines) == 0 {
		return nil, errors.Join(ErrInvalidOrder, errors.New("at least one line is required"))
	}
	if in.Total.IsNegative() || in.AmountMinor < 0 {
		return nil, errors.Join(ErrInvalidOrder, errors.New("total must be zero or greater"))
	}
	for _, l := range in.Lines {
		if l.ItemID == "" || l.Quantity <= 0 {
			return nil, errors.Join(ErrInvalidOrder, errors.New("every line needs an item id and a positive quantity"))
		}
	}

	now := time.Now().UTC()
	paidAt := in.PaidAt
	if paidAt.IsZero() {
		paidAt = now
	}
	return &Order{
		ID:               id,
		SessionID:        in.SessionID,
		PaymentReference: in.PaymentReference,
		PaymentMethod:    in.PaymentMethod,
		Lines:            append([]Line(nil), in.Lines...),
		Total:            in.Total,
		AmountMinor:      in.AmountMinor,
		PaidAt:           paidAt.UTC(),
		Status:           StatusRecorded,
		CreatedAt:        now,
	}, nil
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Lines = append([]Line(nil), o.Lines...)
	return &c
}
