package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"cafeteria_payments/internal/domain/entities"
	"cafeteria_payments/internal/usecase/interfaces"

	"github.com/shopspring/decimal"
	stripe "github.com/stripe/stripe-go/v82"
	stripeclient "github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

var ErrMissingStripeCredentials = errors.New("missing STRIPE_SECRET_KEY")

// StripeGateway adapts Stripe PaymentIntents. Stripe has no client-side
// callback signature scheme, so VerifySignature only screens out garbage
// input; settlement authority is always the FetchPayment round trip.
// Webhooks are authenticated with Stripe's signed-event scheme.
type StripeGateway struct {
	api            *stripeclient.API
	publishableKey string
	webhookSecret  string
}

var _ interfaces.IPaymentGateway = (*StripeGateway)(nil)

func NewStripeGateway(secretKey, publishableKey, webhookSecret string) (*StripeGateway, error) {
	if secretKey == "" {
		return nil, ErrMissingStripeCredentials
	}
	api := &stripeclient.API{}
	api.Init(secretKey, nil)
	log.Printf("[payment][gateway] Stripe client initialized")
	return &StripeGateway{api: api, publishableKey: publishableKey, webhookSecret: webhookSecret}, nil
}

func (g *StripeGateway) Provider() entities.GatewayProvider {
	return entities.GatewayProviderStripe
}

func (g *StripeGateway) CreateOrder(ctx context.Context, req interfaces.GatewayOrderRequest) (interfaces.GatewayOrder, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(toMinorUnits(req.Amount)),
		Currency: stripe.String(strings.ToLower(req.Currency)),
	}
	params.Context = ctx
	// The receipt doubles as the idempotency key: a retried create returns
	// the same PaymentIntent instead of opening a duplicate.
	params.IdempotencyKey = stripe.String(req.Receipt)
	for k, v := range req.Notes {
		params.AddMetadata(k, v)
	}
	params.AddMetadata("receipt", req.Receipt)

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return interfaces.GatewayOrder{}, classifyStripeError("payment intent create", err)
	}

	log.Printf("[payment][gateway] stripe payment intent created gateway_order_id=%s receipt=%s", pi.ID, req.Receipt)
	return interfaces.GatewayOrder{
		OrderID: pi.ID,
		ConnectParams: map[string]string{
			"client_secret":   pi.ClientSecret,
			"publishable_key": g.publishableKey,
		},
	}, nil
}

func (g *StripeGateway) FetchPayment(ctx context.Context, gatewayPaymentID string) (interfaces.GatewayPayment, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.api.PaymentIntents.Get(gatewayPaymentID, params)
	if err != nil {
		return interfaces.GatewayPayment{}, classifyStripeError("payment intent get", err)
	}

	return interfaces.GatewayPayment{
		PaymentID: pi.ID,
		OrderID:   pi.ID,
		Receipt:   pi.Metadata["receipt"],
		Status:    string(pi.Status),
		Settled:   pi.Status == stripe.PaymentIntentStatusSucceeded,
		Amount:    fromMinorUnits(pi.Amount),
		Currency:  strings.ToUpper(string(pi.Currency)),
	}, nil
}

// FetchOrderPayment re-reads the PaymentIntent, which doubles as the order.
func (g *StripeGateway) FetchOrderPayment(ctx context.Context, gatewayOrderID, receipt string) (interfaces.GatewayPayment, error) {
	gp, err := g.FetchPayment(ctx, gatewayOrderID)
	if err != nil {
		return interfaces.GatewayPayment{}, err
	}
	if !gp.Settled {
		return interfaces.GatewayPayment{}, fmt.Errorf("%w: stripe payment intent %s is %s", interfaces.ErrNoGatewayPayment, gatewayOrderID, gp.Status)
	}
	return gp, nil
}

func (g *StripeGateway) VerifySignature(gatewayOrderID, gatewayPaymentID, signature string) bool {
	return gatewayPaymentID != ""
}

func (g *StripeGateway) VerifyWebhook(payload []byte, signature string) bool {
	if g.webhookSecret == "" || signature == "" {
		return false
	}
	_, err := webhook.ConstructEvent(payload, signature, g.webhookSecret)
	return err == nil
}

func (g *StripeGateway) ParseWebhook(payload []byte) (interfaces.WebhookEvent, error) {
	var event struct {
		Type string `json:"type"`
		Data struct {
			Object struct {
				ID string `json:"id"`
			} `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return interfaces.WebhookEvent{}, err
	}
	return interfaces.WebhookEvent{
		Event: event.Type,
		// PaymentIntents are both the order and the payment anchor.
		GatewayOrderID:   event.Data.Object.ID,
		GatewayPaymentID: event.Data.Object.ID,
	}, nil
}

func (g *StripeGateway) Refund(ctx context.Context, gatewayPaymentID string, amount decimal.Decimal) (string, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(gatewayPaymentID),
		Amount:        stripe.Int64(toMinorUnits(amount)),
	}
	params.Context = ctx
	ref, err := g.api.Refunds.New(params)
	if err != nil {
		return "", classifyStripeError("refund", err)
	}
	log.Printf("[payment][gateway] stripe refund created gateway_payment_id=%s refund_id=%s", gatewayPaymentID, ref.ID)
	return ref.ID, nil
}

func classifyStripeError(op string, err error) error {
	var serr *stripe.Error
	if errors.As(err, &serr) && serr.HTTPStatusCode >= 400 && serr.HTTPStatusCode < 500 {
		return fmt.Errorf("%w: stripe %s: %v", interfaces.ErrGatewayRejected, op, err)
	}
	return fmt.Errorf("%w: stripe %s: %v", interfaces.ErrGatewayUnavailable, op, err)
}
