package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"cafeteria_payments/internal/domain/entities"
	"cafeteria_payments/internal/usecase/interfaces"

	"github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/mercadopago/sdk-go/pkg/preference"
	"github.com/mercadopago/sdk-go/pkg/refund"
	"github.com/shopspring/decimal"
)

var ErrMissingMercadoPagoAccessToken = errors.New("missing MERCADOPAGO_ACCESS_TOKEN")

// MercadoPagoGateway adapts Mercado Pago checkout preferences. The remote
// order is a preference carrying our payment id as external_reference;
// webhooks are authenticated with the x-signature ts/v1 HMAC scheme.
//
// Mercado Pago quotes amounts in major units, so this adapter converts
// to/from the SDK's floats instead of minor units.
type MercadoPagoGateway struct {
	payments      payment.Client
	preferences   preference.Client
	refunds       refund.Client
	webhookSecret string
}

var _ interfaces.IPaymentGateway = (*MercadoPagoGateway)(nil)

func NewMercadoPagoGateway(accessToken, webhookSecret string) (*MercadoPagoGateway, error) {
	if accessToken == "" {
		return nil, ErrMissingMercadoPagoAccessToken
	}
	cfg, err := config.New(accessToken)
	if err != nil {
		return nil, err
	}
	log.Printf("[payment][gateway] Mercado Pago client initialized")
	return &MercadoPagoGateway{
		payments:      payment.NewClient(cfg),
		preferences:   preference.NewClient(cfg),
		refunds:       refund.NewClient(cfg),
		webhookSecret: webhookSecret,
	}, nil
}

func (g *MercadoPagoGateway) Provider() entities.GatewayProvider {
	return entities.GatewayProviderMercadoPago
}

func (g *MercadoPagoGateway) CreateOrder(ctx context.Context, req interfaces.GatewayOrderRequest) (interfaces.GatewayOrder, error) {
	pref, err := g.preferences.Create(ctx, preference.Request{
		ExternalReference: req.Receipt,
		Items: []preference.ItemRequest{
			{
				ID:         req.Receipt,
				Title:      req.Notes["description"],
				Quantity:   1,
				UnitPrice:  req.Amount.InexactFloat64(),
				CurrencyID: req.Currency,
			},
		},
	})
	if err != nil {
		return interfaces.GatewayOrder{}, classifyMercadoPagoError("preference create", err)
	}

	log.Printf("[payment][gateway] mercadopago preference created gateway_order_id=%s receipt=%s", pref.ID, req.Receipt)
	return interfaces.GatewayOrder{
		OrderID: pref.ID,
		ConnectParams: map[string]string{
			"preference_id": pref.ID,
			"init_point":    pref.InitPoint,
		},
	}, nil
}

func (g *MercadoPagoGateway) FetchPayment(ctx context.Context, gatewayPaymentID string) (interfaces.GatewayPayment, error) {
	id, err := strconv.Atoi(gatewayPaymentID)
	if err != nil {
		return interfaces.GatewayPayment{}, fmt.Errorf("%w: mercadopago payment id %q is not numeric", interfaces.ErrGatewayRejected, gatewayPaymentID)
	}

	resp, err := g.payments.Get(ctx, id)
	if err != nil {
		return interfaces.GatewayPayment{}, classifyMercadoPagoError("payment get", err)
	}

	return interfaces.GatewayPayment{
		PaymentID: strconv.Itoa(resp.ID),
		Receipt:   resp.ExternalReference,
		Status:    resp.Status,
		Settled:   resp.Status == "approved",
		Amount:    decimal.NewFromFloat(resp.TransactionAmount),
		Currency:  resp.CurrencyID,
	}, nil
}

// FetchOrderPayment searches by external_reference, the receipt attached to
// the preference at order creation. Preferences carry no payment listing of
// their own, so the order id itself is not searchable.
func (g *MercadoPagoGateway) FetchOrderPayment(ctx context.Context, gatewayOrderID, receipt string) (interfaces.GatewayPayment, error) {
	if receipt == "" {
		return interfaces.GatewayPayment{}, fmt.Errorf("%w: mercadopago search needs a receipt", interfaces.ErrNoGatewayPayment)
	}
	resp, err := g.payments.Search(ctx, payment.SearchRequest{
		Filters: map[string]string{"external_reference": receipt},
	})
	if err != nil {
		return interfaces.GatewayPayment{}, classifyMercadoPagoError("payment search", err)
	}
	for _, r := range resp.Results {
		if r.Status != "approved" {
			continue
		}
		return interfaces.GatewayPayment{
			PaymentID: strconv.Itoa(r.ID),
			Receipt:   r.ExternalReference,
			Status:    r.Status,
			Settled:   true,
			Amount:    decimal.NewFromFloat(r.TransactionAmount),
			Currency:  r.CurrencyID,
		}, nil
	}
	return interfaces.GatewayPayment{}, fmt.Errorf("%w: mercadopago external_reference %s", interfaces.ErrNoGatewayPayment, receipt)
}

// VerifySignature covers client-initiated verification; Mercado Pago signs
// the ts/v1 pair over "id:<payment_id>;ts:<ts>;" with the webhook secret.
func (g *MercadoPagoGateway) VerifySignature(gatewayOrderID, gatewayPaymentID, signature string) bool {
	return g.verifySignedManifest(gatewayPaymentID, signature)
}

func (g *MercadoPagoGateway) VerifyWebhook(payload []byte, signature string) bool {
	event, err := g.ParseWebhook(payload)
	if err != nil {
		return false
	}
	return g.verifySignedManifest(event.GatewayPaymentID, signature)
}

func (g *MercadoPagoGateway) verifySignedManifest(dataID, signature string) bool {
	if g.webhookSecret == "" || dataID == "" || signature == "" {
		return false
	}
	ts, v1, ok := splitSignatureHeader(signature)
	if !ok {
		return false
	}
	manifest := fmt.Sprintf("id:%s;ts:%s;", dataID, ts)
	return constantTimeEqualHex(hmacHex(g.webhookSecret, []byte(manifest)), v1)
}

// splitSignatureHeader parses the "ts=...,v1=..." x-signature header.
func splitSignatureHeader(header string) (ts, v1 string, ok bool) {
	for _, part := range strings.Split(header, ",") {
		k, v, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch k {
		case "ts":
			ts = v
		case "v1":
			v1 = v
		}
	}
	return ts, v1, ts != "" && v1 != ""
}

func (g *MercadoPagoGateway) ParseWebhook(payload []byte) (interfaces.WebhookEvent, error) {
	var event struct {
		Action string `json:"action"`
		Data   struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return interfaces.WebhookEvent{}, err
	}
	// The payload carries only the payment id; the record resolves through
	// the fetched external_reference.
	return interfaces.WebhookEvent{
		Event:            event.Action,
		GatewayPaymentID: event.Data.ID,
	}, nil
}

func (g *MercadoPagoGateway) Refund(ctx context.Context, gatewayPaymentID string, amount decimal.Decimal) (string, error) {
	id, err := strconv.Atoi(gatewayPaymentID)
	if err != nil {
		return "", fmt.Errorf("%w: mercadopago payment id %q is not numeric", interfaces.ErrGatewayRejected, gatewayPaymentID)
	}
	resp, err := g.refunds.CreatePartialRefund(ctx, id, amount.InexactFloat64())
	if err != nil {
		return "", classifyMercadoPagoError("refund", err)
	}
	refundID := strconv.Itoa(resp.ID)
	log.Printf("[payment][gateway] mercadopago refund created gateway_payment_id=%s refund_id=%s", gatewayPaymentID, refundID)
	return refundID, nil
}

func classifyMercadoPagoError(op string, err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "\"status\":400") || strings.Contains(msg, "\"status\":401") ||
		strings.Contains(msg, "\"status\":404") || strings.Contains(msg, "bad_request") {
		return fmt.Errorf("%w: mercadopago %s: %v", interfaces.ErrGatewayRejected, op, err)
	}
	return fmt.Errorf("%w: mercadopago %s: %v", interfaces.ErrGatewayUnavailable, op, err)
}
