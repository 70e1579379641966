package interfaces

import (
	"context"
	"errors"

	"cafeteria_payments/internal/domain/entities"

	"github.com/shopspring/decimal"
)

var (
	// ErrGatewayUnavailable wraps network errors, timeouts and provider 5xx
	// responses. Retryable; the payment record must stay where it was.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrGatewayRejected wraps provider 4xx validation errors. Permanent.
	ErrGatewayRejected = errors.New("payment gateway rejected the request")
	// ErrNoGatewayPayment means the provider holds no settled payment for a
	// remote order. The sweeper may fail the record on this answer only.
	ErrNoGatewayPayment = errors.New("no settled gateway payment for order")
)

// GatewayOrderRequest asks the provider to open a remote order. Receipt is
// derived from the internal payment id, so providers with idempotency keys
// reuse the same remote order across retries.
type GatewayOrderRequest struct {
	Amount   decimal.Decimal
	Currency string
	Receipt  string
	Notes    map[string]string
}

// GatewayOrder is the provider's half of a created order plus whatever the
// frontend needs to start the checkout flow (key ids, client secrets, ...).
type GatewayOrder struct {
	OrderID       string
	ConnectParams map[string]string
}

// GatewayPayment is the provider's authoritative view of an executed charge.
// Amount and Currency are already converted back from the provider's minor
// unit at the adapter boundary.
type GatewayPayment struct {
	PaymentID string
	OrderID   string
	// Receipt echoes the idempotency receipt supplied at order creation,
	// when the provider returns it. It equals the internal payment id.
	Receipt  string
	Status   string
	Settled  bool
	Amount   decimal.Decimal
	Currency string
}

// WebhookEvent carries only the identifiers extracted from a webhook
// payload. Amount/status fields of the payload are never trusted; the
// orchestrator re-fetches the payment from the provider.
type WebhookEvent struct {
	Event            string
	GatewayOrderID   string
	GatewayPaymentID string
}

// IPaymentGateway is the capability set implemented once per provider.
//
// VerifySignature and VerifyWebhook are pure constant-time checks over the
// exact bytes supplied; they decide whether payload identifiers can be
// trusted, never the final payment state.
type IPaymentGateway interface {
	Provider() entities.GatewayProvider
	CreateOrder(ctx context.Context, req GatewayOrderRequest) (GatewayOrder, error)
	FetchPayment(ctx context.Context, gatewayPaymentID string) (GatewayPayment, error)
	// FetchOrderPayment resolves the settled payment behind a remote order
	// when the payment id was never learned (lost webhook, abandoned client).
	// Providers anchor on the order id or the receipt, whichever their API
	// can search by. Returns ErrNoGatewayPayment when nothing settled.
	FetchOrderPayment(ctx context.Context, gatewayOrderID, receipt string) (GatewayPayment, error)
	VerifySignature(gatewayOrderID, gatewayPaymentID, signature string) bool
	VerifyWebhook(payload []byte, signature string) bool
	ParseWebhook(payload []byte) (WebhookEvent, error)
	Refund(ctx context.Context, gatewayPaymentID string, amount decimal.Decimal) (refundID string, err error)
}

// IGatewayRegistry resolves the adapter for a payment method or a webhook
// path segment. Adapters are constructed once at process start and passed in
// explicitly.
type IGatewayRegistry interface {
	ForMethod(method entities.PaymentMethod) (IPaymentGateway, error)
	ForProvider(provider entities.GatewayProvider) (IPaymentGateway, error)
}
