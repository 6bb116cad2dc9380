package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	appcheckout "github.com/Zhima-Mochi/minishop-cart/internal/application/checkout"
	dompayment "github.com/Zhima-Mochi/minishop-cart/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/breaker"
	httptransport "github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntentClient_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments/intents", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var body map[string]int64
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, int64(2400), body["amount"])

		_ = json.NewEncoder(w).Encode(map[string]string{"clientSecret": "pi_1_secret_x"})
	}))
	defer srv.Close()

	c := NewIntentClient(srv.URL+"/", httptransport.NewClient(time.Second), nil)
	secret, err := c.CreateIntent(context.Background(), appcheckout.IntentRequest{AmountMinor: 2400, Credential: "tok"})

	require.NoError(t, err)
	assert.Equal(t, "pi_1_secret_x", secret)
}

func TestIntentClient_ErrorMessageSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"message":"Amount must be at least 50 cents"}}`))
	}))
	defer srv.Close()

	c := NewIntentClient(srv.URL, httptransport.NewClient(time.Second), nil)
	_, err := c.CreateIntent(context.Background(), appcheckout.IntentRequest{AmountMinor: 10})

	var rejected *appcheckout.RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, http.StatusPaymentRequired, rejected.Status)
	assert.Equal(t, "Amount must be at least 50 cents", rejected.Message)
}

func TestIntentClient_StatusWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewIntentClient(srv.URL, httptransport.NewClient(time.Second), nil)
	_, err := c.CreateIntent(context.Background(), appcheckout.IntentRequest{AmountMinor: 100})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestIntentClient_MissingSecret(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewIntentClient(srv.URL, httptransport.NewClient(time.Second), nil)
	_, err := c.CreateIntent(context.Background(), appcheckout.IntentRequest{AmountMinor: 100})
	assert.Error(t, err)
}

func TestIntentClient_BreakerOpens(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cb := breaker.New[string]("payment-api", breaker.Settings{Failures: 1, OpenTimeout: time.Minute}, nil)
	c := NewIntentClient(srv.URL, httptransport.NewClient(time.Second), cb)

	_, err := c.CreateIntent(context.Background(), appcheckout.IntentRequest{AmountMinor: 100})
	require.Error(t, err)
	_, err = c.CreateIntent(context.Background(), appcheckout.IntentRequest{AmountMinor: 100})
	assert.ErrorIs(t, err, appcheckout.ErrCircuitOpen)
	assert.Equal(t, int32(1), hits.Load())
}

func TestSimulatedSheet_Success(t *testing.T) {
	s := NewSimulatedSheet(SheetOptions{SuccessRate: 1})
	ctx := context.Background()

	require.NoError(t, s.Initialize(ctx, "pi_9_secret_z", "Minishop"))
	ref, err := s.Present(ctx)
	require.NoError(t, err)
	assert.Equal(t, "pi_9", ref)

	_, err = s.Present(ctx)
	assert.Error(t, err, "a confirmed sheet must be initialized again")
}

func TestSimulatedSheet_Declines(t *testing.T) {
	s := NewSimulatedSheet(SheetOptions{SuccessRate: 0.000001, Seed: 42})
	require.NoError(t, s.Initialize(context.Background(), "pi_9_secret_z", "Minishop"))

	_, err := s.Present(context.Background())
	var se *dompayment.SheetError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, dompayment.ErrorCodeFailed, se.Code)
	assert.Equal(t, declinedMessage, err.Error())
}

func TestSimulatedSheet_CancelAndTimeout(t *testing.T) {
	s := NewSimulatedSheet(SheetOptions{SuccessRate: 1, Delay: time.Second})
	require.NoError(t, s.Initialize(context.Background(), "pi_9_secret_z", "Minishop"))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := s.Present(ctx)
	assert.True(t, dompayment.IsCanceled(err))

	require.NoError(t, s.Initialize(context.Background(), "pi_9_secret_z", "Minishop"))
	tctx, tcancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer tcancel()
	_, err = s.Present(tctx)
	var se *dompayment.SheetError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, dompayment.ErrorCodeTimeout, se.Code)
}
