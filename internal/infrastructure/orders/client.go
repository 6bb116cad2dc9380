package orders

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	appcheckout "github.com/Zhima-Mochi/minishop-cart/internal/application/checkout"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/breaker"
	httptransport "github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/http"
)

const ordersPath = "/orders"

type submitResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	OrderID string `json:"orderId"`
}

// Client submits paid orders to the order backend. Calls are never retried: a retry could
// record the same payment twice on a backend without idempotency.
type Client struct {
	endpoint string
	client   *http.Client
	breaker  *breaker.Breaker[appcheckout.OrderReceipt]
}

func NewClient(baseURL string, client *http.Client, cb *breaker.Breaker[appcheckout.OrderReceipt]) *Client {
	return &Client{
		endpoint: strings.TrimRight(baseURL, "/") + ordersPath,
		client:   client,
		breaker:  cb,
	}
}

func (c *Client) SubmitOrder(ctx context.Context, req appcheckout.OrderRequest) (appcheckout.OrderReceipt, error) {
	if c.breaker == nil {
		return c.submit(ctx, req)
	}
	return c.breaker.Do(ctx, func(ctx context.Context) (appcheckout.OrderReceipt, error) {
		return c.submit(ctx, req)
	})
}

func (c *Client) submit(ctx context.Context, req appcheckout.OrderRequest) (appcheckout.OrderReceipt, error) {
	var payload submitResponse
	status, err := httptransport.PostJSON(ctx, c.client, c.endpoint, nil, req, &payload)
	if err != nil {
		return appcheckout.OrderReceipt{}, fmt.Errorf("submit order: %w", err)
	}

	if status >= 400 || !payload.Success {
		message := strings.TrimSpace(payload.Message)
		if message == "" {
			message = fmt.Sprintf("order service returned status %d", status)
		}
		return appcheckout.OrderReceipt{}, &appcheckout.RejectedError{Status: status, Message: message}
	}
	return appcheckout.OrderReceipt{OrderID: payload.OrderID, Message: payload.Message}, nil
}
