package cart

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidItem   = errors.New("cart: invalid item")
	ErrInvalidAmount = errors.New("cart: invalid amount")
)

// Item is a purchasable entry in a cart or favourites list.
type Item struct {
	ID           string          `json:"id"`
	DisplayName  string          `json:"displayName"`
	SubjectLabel string          `json:"subjectLabel"`
	SubjectCode  string          `json:"subjectCode"`
	UnitPrice    decimal.Decimal `json:"unitPrice"`
	ImageRef     string          `json:"imageRef"`
}

func (i Item) Validate() error {
	if strings.TrimSpace(i.ID) == "" {
		return errors.Join(ErrInvalidItem, errors.New("id is required"))
	}
	if i.UnitPrice.IsNegative() {
		return errors.Join(ErrInvalidItem, errors.New("unit price must be zero or greater"))
	}
	return nil
}
