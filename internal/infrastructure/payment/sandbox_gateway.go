package payment

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/domain/gateway"
	"github.com/ignatzorin/escrow-backend/internal/logger"
)

const SandboxProvider = "sandbox"

var ErrSandboxDeclined = errors.New("sandbox: платёж отклонён")

// SandboxCall - зафиксированный вызов шлюза.
type SandboxCall struct {
	Kind     string
	Transfer gateway.TransferRequest
	Deposit  gateway.DepositRequest
	Refund   gateway.RefundRequest
}

// SandboxGateway проводит платежи без внешнего провайдера. Повтор с тем же
// ключом идемпотентности возвращает прежний результат.
type SandboxGateway struct {
	mu       sync.Mutex
	calls    []SandboxCall
	results  map[string]gateway.PaymentResult
	failNext int
}

func NewSandboxGateway() *SandboxGateway {
	return &SandboxGateway{results: make(map[string]gateway.PaymentResult)}
}

// FailNext заставляет следующие n вызовов завершиться ошибкой.
func (g *SandboxGateway) FailNext(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failNext = n
}

func (g *SandboxGateway) Calls() []SandboxCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]SandboxCall(nil), g.calls...)
}

func (g *SandboxGateway) TransferToFreelancer(_ context.Context, req gateway.TransferRequest) (gateway.PaymentResult, error) {
	return g.process(req.IdempotencyKey, SandboxCall{Kind: "transfer", Transfer: req})
}

func (g *SandboxGateway) CreateDepositIntent(_ context.Context, req gateway.DepositRequest) (gateway.PaymentResult, error) {
	return g.process(req.IdempotencyKey, SandboxCall{Kind: "deposit", Deposit: req})
}

func (g *SandboxGateway) RefundToClient(_ context.Context, req gateway.RefundRequest) (gateway.PaymentResult, error) {
	return g.process(req.IdempotencyKey, SandboxCall{Kind: "refund", Refund: req})
}

func (g *SandboxGateway) process(key string, call SandboxCall) (gateway.PaymentResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls = append(g.calls, call)
	if g.failNext > 0 {
		g.failNext--
		return gateway.PaymentResult{}, ErrSandboxDeclined
	}
	if res, ok := g.results[key]; ok && key != "" {
		return res, nil
	}
	res := gateway.PaymentResult{
		ID:       "sbx_" + uuid.NewString(),
		Status:   gateway.PaymentStatusSucceeded,
		Provider: SandboxProvider,
	}
	if key != "" {
		g.results[key] = res
	}
	logger.WithComponent("payment").WithField("kind", call.Kind).Debug("sandbox платёж проведён")
	return res, nil
}
