package response

import (
	"testing"
	"time"

	"cafeteria_payments/internal/domain/entities"

	"github.com/shopspring/decimal"
)

func TestFromPayment(t *testing.T) {
	now := time.Now().UTC()
	p := entities.Payment{
		PaymentID:        "PAY_0011223344556677",
		UserID:           "user-1",
		OrderID:          "order-1",
		Amount:           decimal.NewFromInt(500),
		Currency:         "INR",
		Method:           entities.PaymentMethodRazorpay,
		Type:             entities.PaymentTypeOrderPayment,
		Status:           entities.PaymentStatusPaid,
		GatewayOrderID:   "rzp_order_1",
		GatewayPaymentID: "rzp_pay_1",
		GatewaySignature: "sig",
		RefundAmount:     decimal.NewFromInt(100),
		RefundID:         "rfnd_1",
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	got := FromPayment(p)
	if got.PaymentID != p.PaymentID || got.UserID != p.UserID || got.OrderID != p.OrderID {
		t.Fatalf("identifiers not mapped: %+v", got)
	}
	if got.Status != "PAID" || got.Method != "RAZORPAY" || got.Type != "ORDER_PAYMENT" {
		t.Fatalf("enums not mapped: %+v", got)
	}
	if !got.Amount.Equal(p.Amount) || !got.RefundAmount.Equal(p.RefundAmount) {
		t.Fatalf("amounts not mapped: %+v", got)
	}
}

func TestFromPaymentCreate(t *testing.T) {
	p := entities.Payment{PaymentID: "PAY_0011223344556677", Status: entities.PaymentStatusPending}
	got := FromPaymentCreate(p, map[string]string{"client_secret": "cs"})
	if got.ConnectParams["client_secret"] != "cs" {
		t.Fatalf("connect params not mapped: %+v", got)
	}
	if got.PaymentID != p.PaymentID {
		t.Fatalf("record not embedded: %+v", got)
	}
}

func TestFromFoodCard(t *testing.T) {
	card := entities.FoodCard{UserID: "user-1", Balance: decimal.NewFromInt(380)}
	got := FromFoodCard(card)
	if got.UserID != "user-1" || !got.Balance.Equal(card.Balance) {
		t.Fatalf("card not mapped: %+v", got)
	}
}
