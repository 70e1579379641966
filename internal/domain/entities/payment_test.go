package entities

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestPaymentStatus_CanTransitionTo(t *testing.T) {
	allowed := map[PaymentStatus][]PaymentStatus{
		PaymentStatusPending:           {PaymentStatusPending, PaymentStatusProcessing, PaymentStatusFailed},
		PaymentStatusProcessing:        {PaymentStatusPaid, PaymentStatusFailed},
		PaymentStatusPaid:              {PaymentStatusPartiallyRefunded, PaymentStatusRefunded},
		PaymentStatusPartiallyRefunded: {PaymentStatusPaid, PaymentStatusPartiallyRefunded, PaymentStatusRefunded},
		PaymentStatusFailed:            {},
		PaymentStatusRefunded:          {},
	}
	all := []PaymentStatus{
		PaymentStatusPending, PaymentStatusProcessing, PaymentStatusPaid,
		PaymentStatusFailed, PaymentStatusRefunded, PaymentStatusPartiallyRefunded,
	}

	for from, targets := range allowed {
		legal := map[PaymentStatus]bool{}
		for _, next := range targets {
			legal[next] = true
		}
		for _, next := range all {
			if got := from.CanTransitionTo(next); got != legal[next] {
				t.Errorf("%s -> %s: got %v, want %v", from, next, got, legal[next])
			}
		}
	}
}

func TestPaymentStatus_IsFinal(t *testing.T) {
	if PaymentStatusPending.IsFinal() || PaymentStatusProcessing.IsFinal() {
		t.Fatalf("PENDING and PROCESSING are not final")
	}
	for _, s := range []PaymentStatus{PaymentStatusPaid, PaymentStatusFailed, PaymentStatusRefunded, PaymentStatusPartiallyRefunded} {
		if !s.IsFinal() {
			t.Fatalf("%s should be final", s)
		}
	}
}

func TestPaymentMethod_Provider(t *testing.T) {
	for _, m := range []PaymentMethod{PaymentMethodRazorpay, PaymentMethodCard, PaymentMethodUPI, PaymentMethodNetBanking} {
		if m.Provider() != GatewayProviderRazorpay {
			t.Fatalf("%s should ride on razorpay", m)
		}
	}
	if PaymentMethodStripe.Provider() != GatewayProviderStripe {
		t.Fatalf("STRIPE should map to stripe")
	}
	if PaymentMethodMercadoPago.Provider() != GatewayProviderMercadoPago {
		t.Fatalf("MERCADOPAGO should map to mercadopago")
	}
	if PaymentMethodFoodCard.Provider() != "" {
		t.Fatalf("FOOD_CARD has no gateway provider")
	}
	if PaymentMethod("BARTER").IsValid() {
		t.Fatalf("unknown methods are invalid")
	}
}

func TestPayment_RefundableAmount(t *testing.T) {
	p := Payment{Amount: decimal.NewFromInt(500), RefundAmount: decimal.NewFromInt(120)}
	if !p.RefundableAmount().Equal(decimal.NewFromInt(380)) {
		t.Fatalf("expected 380, got %s", p.RefundableAmount())
	}
}

func TestOrder_PayableBy(t *testing.T) {
	order := Order{ID: "order-1", UserID: "user-1", Status: OrderStatusPendingPayment}
	if !order.PayableBy("user-1") {
		t.Fatalf("owner should be able to pay a pending order")
	}
	if order.PayableBy("user-2") {
		t.Fatalf("only the owner can pay")
	}
	order.Status = OrderStatusPaid
	if order.PayableBy("user-1") {
		t.Fatalf("a paid order is not payable")
	}
}
