package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-backend/internal/domain/gateway"
	"github.com/ignatzorin/escrow-backend/internal/logger"
)

// HTTPGateway - клиент платёжного провайдера с JSON API.
// Каждый запрос несёт заголовок Idempotency-Key.
type HTTPGateway struct {
	baseURL    string
	apiKey     string
	provider   string
	httpClient *http.Client
	log        *logrus.Entry
}

func NewHTTPGateway(baseURL, apiKey string) *HTTPGateway {
	return &HTTPGateway{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		provider: "http",
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: logger.WithComponent("payment"),
	}
}

type paymentRequest struct {
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Description      string          `json:"description,omitempty"`
	PayoutAccountID  string          `json:"payoutAccountId,omitempty"`
	PaymentMethodRef string          `json:"paymentMethodRef,omitempty"`
	CustomerRef      string          `json:"customerRef,omitempty"`
}

type paymentResponse struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Provider string `json:"provider"`
}

func (g *HTTPGateway) TransferToFreelancer(ctx context.Context, req gateway.TransferRequest) (gateway.PaymentResult, error) {
	return g.post(ctx, "transfers", req.IdempotencyKey, paymentRequest{
		Amount:          req.Amount,
		Currency:        string(req.Currency),
		Description:     req.Description,
		PayoutAccountID: req.PayoutAccountID,
	})
}

func (g *HTTPGateway) CreateDepositIntent(ctx context.Context, req gateway.DepositRequest) (gateway.PaymentResult, error) {
	return g.post(ctx, "deposits", req.IdempotencyKey, paymentRequest{
		Amount:           req.Amount,
		Currency:         string(req.Currency),
		Description:      req.Description,
		PaymentMethodRef: req.PaymentMethodRef,
		CustomerRef:      req.CustomerRef,
	})
}

func (g *HTTPGateway) RefundToClient(ctx context.Context, req gateway.RefundRequest) (gateway.PaymentResult, error) {
	return g.post(ctx, "refunds", req.IdempotencyKey, paymentRequest{
		Amount:      req.Amount,
		Currency:    string(req.Currency),
		Description: req.Description,
		CustomerRef: req.CustomerRef,
	})
}

func (g *HTTPGateway) post(ctx context.Context, path, idempotencyKey string, payload paymentRequest) (gateway.PaymentResult, error) {
	if g.baseURL == "" {
		return gateway.PaymentResult{}, fmt.Errorf("payment: baseURL не задан")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return gateway.PaymentResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/"+path, bytes.NewReader(body))
	if err != nil {
		return gateway.PaymentResult{}, err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	start := time.Now()
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return gateway.PaymentResult{}, fmt.Errorf("payment: запрос %s: %w", path, err)
	}
	defer resp.Body.Close()

	g.log.WithFields(logrus.Fields{
		"path":            path,
		"status":          resp.StatusCode,
		"idempotency_key": idempotencyKey,
		"duration":        time.Since(start).String(),
	}).Debug("ответ платёжного шлюза")

	if resp.StatusCode >= 400 {
		var errorBody map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&errorBody)
		return gateway.PaymentResult{}, fmt.Errorf("payment: код ответа %d: %v", resp.StatusCode, errorBody)
	}

	var out paymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return gateway.PaymentResult{}, fmt.Errorf("payment: некорректный ответ: %w", err)
	}
	if out.ID == "" {
		return gateway.PaymentResult{}, fmt.Errorf("payment: ответ без идентификатора платежа")
	}

	provider := out.Provider
	if provider == "" {
		provider = g.provider
	}
	status := gateway.PaymentStatus(out.Status)
	switch status {
	case gateway.PaymentStatusSucceeded, gateway.PaymentStatusPending, gateway.PaymentStatusFailed:
	default:
		return gateway.PaymentResult{}, fmt.Errorf("payment: неизвестный статус %q", out.Status)
	}
	return gateway.PaymentResult{ID: out.ID, Status: status, Provider: provider}, nil
}
