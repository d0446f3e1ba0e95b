package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/escrow-backend/internal/domain/gateway"
	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
)

func TestSandboxGateway_IdempotentByKey(t *testing.T) {
	g := NewSandboxGateway()
	ctx := context.Background()
	req := gateway.TransferRequest{
		Amount:         decimal.RequireFromString("578.40"),
		Currency:       valueobject.CurrencyUSD,
		IdempotencyKey: "release:1",
	}

	first, err := g.TransferToFreelancer(ctx, req)
	require.NoError(t, err)
	second, err := g.TransferToFreelancer(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, gateway.PaymentStatusSucceeded, first.Status)
	assert.Len(t, g.Calls(), 2)
}

func TestSandboxGateway_FailNext(t *testing.T) {
	g := NewSandboxGateway()
	g.FailNext(1)

	_, err := g.RefundToClient(context.Background(), gateway.RefundRequest{IdempotencyKey: "refund:1"})
	assert.ErrorIs(t, err, ErrSandboxDeclined)

	res, err := g.RefundToClient(context.Background(), gateway.RefundRequest{IdempotencyKey: "refund:1"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.ID)
}

func TestHTTPGateway_Transfer(t *testing.T) {
	var got paymentRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transfers", r.URL.Path)
		assert.Equal(t, "release:42", r.Header.Get("Idempotency-Key"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(paymentResponse{ID: "tr_1", Status: "succeeded", Provider: "acme"})
	}))
	defer srv.Close()

	g := NewHTTPGateway(srv.URL+"/", "secret")
	res, err := g.TransferToFreelancer(context.Background(), gateway.TransferRequest{
		Amount:          decimal.RequireFromString("578.40"),
		Currency:        valueobject.CurrencyUSD,
		PayoutAccountID: "acct_1",
		IdempotencyKey:  "release:42",
	})
	require.NoError(t, err)

	assert.Equal(t, "tr_1", res.ID)
	assert.Equal(t, "acme", res.Provider)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("578.4")))
	assert.Equal(t, "acct_1", got.PayoutAccountID)
}

func TestHTTPGateway_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"upstream"}`))
	}))
	defer srv.Close()

	g := NewHTTPGateway(srv.URL, "")
	_, err := g.CreateDepositIntent(context.Background(), gateway.DepositRequest{Currency: valueobject.CurrencyUSD})
	assert.Error(t, err)
}

func TestHTTPGateway_UnknownStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"x","status":"weird"}`))
	}))
	defer srv.Close()

	_, err := NewHTTPGateway(srv.URL, "").RefundToClient(context.Background(), gateway.RefundRequest{})
	assert.Error(t, err)
}
