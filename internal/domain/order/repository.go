package order

import "context"

type Repository interface {
	Insert(ctx context.Context, order *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	FindByPaymentReference(ctx context.Context, reference string) (*Order, error)
	List(ctx context.Context) ([]*Order, error)
}
