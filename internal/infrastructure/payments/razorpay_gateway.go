package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"cafeteria_payments/internal/domain/entities"
	"cafeteria_payments/internal/usecase/interfaces"

	razorpay "github.com/razorpay/razorpay-go"
	rzperrors "github.com/razorpay/razorpay-go/errors"
	"github.com/shopspring/decimal"
)

var ErrMissingRazorpayCredentials = errors.New("missing RAZORPAY_KEY_ID / RAZORPAY_KEY_SECRET")

// RazorpayGateway adapts the Razorpay aggregator (card, UPI, net banking).
//
// Client callbacks carry an HMAC-SHA256 signature over "order_id|payment_id"
// keyed with the API secret; webhooks sign the raw body with the webhook
// secret. Both checks compare in constant time and never decide the final
// payment state, only whether payload identifiers can be trusted.
type RazorpayGateway struct {
	client        *razorpay.Client
	keyID         string
	keySecret     string
	webhookSecret string
}

var _ interfaces.IPaymentGateway = (*RazorpayGateway)(nil)

func NewRazorpayGateway(keyID, keySecret, webhookSecret string) (*RazorpayGateway, error) {
	if keyID == "" || keySecret == "" {
		return nil, ErrMissingRazorpayCredentials
	}
	log.Printf("[payment][gateway] Razorpay client initialized key_id=%s", keyID)
	return &RazorpayGateway{
		client:        razorpay.NewClient(keyID, keySecret),
		keyID:         keyID,
		keySecret:     keySecret,
		webhookSecret: webhookSecret,
	}, nil
}

func (g *RazorpayGateway) Provider() entities.GatewayProvider {
	return entities.GatewayProviderRazorpay
}

func (g *RazorpayGateway) CreateOrder(ctx context.Context, req interfaces.GatewayOrderRequest) (interfaces.GatewayOrder, error) {
	data := map[string]interface{}{
		"amount":   toMinorUnits(req.Amount),
		"currency": req.Currency,
		"receipt":  req.Receipt,
	}
	if len(req.Notes) > 0 {
		notes := make(map[string]interface{}, len(req.Notes))
		for k, v := range req.Notes {
			notes[k] = v
		}
		data["notes"] = notes
	}

	order, err := g.client.Order.Create(data, nil)
	if err != nil {
		return interfaces.GatewayOrder{}, classifyRazorpayError("order create", err)
	}

	orderID := asString(order["id"])
	log.Printf("[payment][gateway] razorpay order created gateway_order_id=%s receipt=%s", orderID, req.Receipt)
	return interfaces.GatewayOrder{
		OrderID: orderID,
		ConnectParams: map[string]string{
			"key_id":           g.keyID,
			"gateway_order_id": orderID,
			"currency":         req.Currency,
			"amount":           fmt.Sprintf("%d", toMinorUnits(req.Amount)),
		},
	}, nil
}

func (g *RazorpayGateway) FetchPayment(ctx context.Context, gatewayPaymentID string) (interfaces.GatewayPayment, error) {
	body, err := g.client.Payment.Fetch(gatewayPaymentID, nil, nil)
	if err != nil {
		return interfaces.GatewayPayment{}, classifyRazorpayError("payment fetch", err)
	}

	status := asString(body["status"])
	minor, _ := asInt64(body["amount"])
	receipt := ""
	if notes, ok := body["notes"].(map[string]interface{}); ok {
		receipt = asString(notes["payment_id"])
	}
	return interfaces.GatewayPayment{
		PaymentID: asString(body["id"]),
		OrderID:   asString(body["order_id"]),
		Receipt:   receipt,
		Status:    status,
		Settled:   status == "captured",
		Amount:    fromMinorUnits(minor),
		Currency:  asString(body["currency"]),
	}, nil
}

// FetchOrderPayment lists the payments attached to an order and returns the
// captured one, if any. This is the recovery path for records whose webhook
// and client callback both went missing.
func (g *RazorpayGateway) FetchOrderPayment(ctx context.Context, gatewayOrderID, receipt string) (interfaces.GatewayPayment, error) {
	body, err := g.client.Order.Payments(gatewayOrderID, nil, nil)
	if err != nil {
		return interfaces.GatewayPayment{}, classifyRazorpayError("order payments", err)
	}

	items, _ := body["items"].([]interface{})
	for _, item := range items {
		entity, ok := item.(map[string]interface{})
		if !ok || asString(entity["status"]) != "captured" {
			continue
		}
		minor, _ := asInt64(entity["amount"])
		return interfaces.GatewayPayment{
			PaymentID: asString(entity["id"]),
			OrderID:   asString(entity["order_id"]),
			Receipt:   receipt,
			Status:    "captured",
			Settled:   true,
			Amount:    fromMinorUnits(minor),
			Currency:  asString(entity["currency"]),
		}, nil
	}
	return interfaces.GatewayPayment{}, fmt.Errorf("%w: razorpay order %s", interfaces.ErrNoGatewayPayment, gatewayOrderID)
}

func (g *RazorpayGateway) VerifySignature(gatewayOrderID, gatewayPaymentID, signature string) bool {
	if gatewayOrderID == "" || gatewayPaymentID == "" || signature == "" {
		return false
	}
	expected := hmacHex(g.keySecret, []byte(gatewayOrderID+"|"+gatewayPaymentID))
	return constantTimeEqualHex(expected, signature)
}

func (g *RazorpayGateway) VerifyWebhook(payload []byte, signature string) bool {
	if g.webhookSecret == "" || signature == "" {
		return false
	}
	expected := hmacHex(g.webhookSecret, payload)
	return constantTimeEqualHex(expected, signature)
}

func (g *RazorpayGateway) ParseWebhook(payload []byte) (interfaces.WebhookEvent, error) {
	var body struct {
		Event   string `json:"event"`
		Payload struct {
			Payment struct {
				Entity struct {
					ID      string `json:"id"`
					OrderID string `json:"order_id"`
				} `json:"entity"`
			} `json:"payment"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return interfaces.WebhookEvent{}, err
	}
	return interfaces.WebhookEvent{
		Event:            body.Event,
		GatewayOrderID:   body.Payload.Payment.Entity.OrderID,
		GatewayPaymentID: body.Payload.Payment.Entity.ID,
	}, nil
}

func (g *RazorpayGateway) Refund(ctx context.Context, gatewayPaymentID string, amount decimal.Decimal) (string, error) {
	body, err := g.client.Payment.Refund(gatewayPaymentID, int(toMinorUnits(amount)), nil, nil)
	if err != nil {
		return "", classifyRazorpayError("refund", err)
	}
	refundID := asString(body["id"])
	log.Printf("[payment][gateway] razorpay refund created gateway_payment_id=%s refund_id=%s", gatewayPaymentID, refundID)
	return refundID, nil
}

func classifyRazorpayError(op string, err error) error {
	var badReq *rzperrors.BadRequestError
	if errors.As(err, &badReq) {
		return fmt.Errorf("%w: razorpay %s: %v", interfaces.ErrGatewayRejected, op, err)
	}
	return fmt.Errorf("%w: razorpay %s: %v", interfaces.ErrGatewayUnavailable, op, err)
}

func hmacHex(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func constantTimeEqualHex(expected, got string) bool {
	return hmac.Equal([]byte(expected), []byte(got))
}
