package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	appcheckout "github.com/Zhima-Mochi/minishop-cart/internal/application/checkout"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/breaker"
	httptransport "github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/http"
)

const intentsPath = "/payments/intents"

type intentRequest struct {
	Amount int64 `json:"amount"`
}

type intentResponse struct {
	ClientSecret string `json:"clientSecret"`
	Error        struct {
		Message string `json:"message"`
	} `json:"error"`
}

// IntentClient creates payment intents on the payment backend.
type IntentClient struct {
	endpoint string
	client   *http.Client
	breaker  *breaker.Breaker[string]
}

func NewIntentClient(baseURL string, client *http.Client, cb *breaker.Breaker[string]) *IntentClient {
	return &IntentClient{
		endpoint: strings.TrimRight(baseURL, "/") + intentsPath,
		client:   client,
		breaker:  cb,
	}
}

func (c *IntentClient) CreateIntent(ctx context.Context, req appcheckout.IntentRequest) (string, error) {
	if c.breaker == nil {
		return c.create(ctx, req)
	}
	return c.breaker.Do(ctx, func(ctx context.Context) (string, error) {
		return c.create(ctx, req)
	})
}

func (c *IntentClient) create(ctx context.Context, req appcheckout.IntentRequest) (string, error) {
	header := http.Header{}
	if cred := strings.TrimSpace(req.Credential); cred != "" {
		header.Set("Authorization", "Bearer "+cred)
	}

	var payload intentResponse
	status, err := httptransport.PostJSON(ctx, c.client, c.endpoint, header, intentRequest{Amount: req.AmountMinor}, &payload)
	if err != nil {
		return "", fmt.Errorf("payment intent: %w", err)
	}

	if status >= 400 {
		message := strings.TrimSpace(payload.Error.Message)
		if message == "" {
			message = fmt.Sprintf("payment service returned status %d", status)
		}
		return "", &appcheckout.RejectedError{Status: status, Message: message}
	}
	if payload.ClientSecret == "" {
		return "", errors.New("payment intent response missing client secret")
	}
	return payload.ClientSecret, nil
}
