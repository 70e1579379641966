package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"cafeteria_payments/internal/domain/entities"
	"cafeteria_payments/internal/usecase/interfaces"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MockGateway is the local development stand-in: it remembers the orders it
// created and settles any payment id prefixed with its order ids. Signature
// checks accept the fixed string "mock-signature".
type MockGateway struct {
	provider entities.GatewayProvider

	mu     sync.Mutex
	orders map[string]interfaces.GatewayOrderRequest
}

var _ interfaces.IPaymentGateway = (*MockGateway)(nil)

func NewMockGateway(provider entities.GatewayProvider) *MockGateway {
	return &MockGateway{provider: provider, orders: make(map[string]interfaces.GatewayOrderRequest)}
}

func (g *MockGateway) Provider() entities.GatewayProvider { return g.provider }

func (g *MockGateway) CreateOrder(ctx context.Context, req interfaces.GatewayOrderRequest) (interfaces.GatewayOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	// Same receipt, same order: mirrors provider-side idempotency keys.
	for id, existing := range g.orders {
		if existing.Receipt == req.Receipt {
			return interfaces.GatewayOrder{OrderID: id, ConnectParams: map[string]string{"mock": "true"}}, nil
		}
	}
	orderID := "mock_order_" + uuid.NewString()[:8]
	g.orders[orderID] = req
	log.Printf("[payment][gateway] mock order created provider=%s gateway_order_id=%s", g.provider, orderID)
	return interfaces.GatewayOrder{OrderID: orderID, ConnectParams: map[string]string{"mock": "true"}}, nil
}

func (g *MockGateway) FetchPayment(ctx context.Context, gatewayPaymentID string) (interfaces.GatewayPayment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for orderID, req := range g.orders {
		if gatewayPaymentID == "paid_"+orderID {
			return interfaces.GatewayPayment{
				PaymentID: gatewayPaymentID,
				OrderID:   orderID,
				Receipt:   req.Receipt,
				Status:    "captured",
				Settled:   true,
				Amount:    req.Amount,
				Currency:  req.Currency,
			}, nil
		}
	}
	return interfaces.GatewayPayment{}, fmt.Errorf("%w: mock payment %s not found", interfaces.ErrGatewayRejected, gatewayPaymentID)
}

func (g *MockGateway) FetchOrderPayment(ctx context.Context, gatewayOrderID, receipt string) (interfaces.GatewayPayment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if req, ok := g.orders[gatewayOrderID]; ok {
		return interfaces.GatewayPayment{
			PaymentID: "paid_" + gatewayOrderID,
			OrderID:   gatewayOrderID,
			Receipt:   req.Receipt,
			Status:    "captured",
			Settled:   true,
			Amount:    req.Amount,
			Currency:  req.Currency,
		}, nil
	}
	return interfaces.GatewayPayment{}, fmt.Errorf("%w: mock order %s", interfaces.ErrNoGatewayPayment, gatewayOrderID)
}

func (g *MockGateway) VerifySignature(gatewayOrderID, gatewayPaymentID, signature string) bool {
	return signature == "mock-signature"
}

func (g *MockGateway) VerifyWebhook(payload []byte, signature string) bool {
	return signature == "mock-signature"
}

func (g *MockGateway) ParseWebhook(payload []byte) (interfaces.WebhookEvent, error) {
	var event interfaces.WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return interfaces.WebhookEvent{}, err
	}
	return event, nil
}

func (g *MockGateway) Refund(ctx context.Context, gatewayPaymentID string, amount decimal.Decimal) (string, error) {
	return "mock_refund_" + uuid.NewString()[:8], nil
}
