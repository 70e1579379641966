package payments

import (
	"context"
	"testing"

	"cafeteria_payments/internal/domain/entities"
	"cafeteria_payments/internal/usecase/interfaces"

	"github.com/shopspring/decimal"
)

func TestRegistry_Resolution(t *testing.T) {
	rzp := NewMockGateway(entities.GatewayProviderRazorpay)
	str := NewMockGateway(entities.GatewayProviderStripe)
	registry := NewRegistry(rzp, str)

	t.Run("aggregator methods resolve to razorpay", func(t *testing.T) {
		for _, m := range []entities.PaymentMethod{entities.PaymentMethodRazorpay, entities.PaymentMethodCard, entities.PaymentMethodUPI, entities.PaymentMethodNetBanking} {
			gw, err := registry.ForMethod(m)
			if err != nil {
				t.Fatalf("unexpected error for %s: %v", m, err)
			}
			if gw != interfaces.IPaymentGateway(rzp) {
				t.Fatalf("%s should resolve to the razorpay adapter", m)
			}
		}
	})

	t.Run("food card has no gateway", func(t *testing.T) {
		if _, err := registry.ForMethod(entities.PaymentMethodFoodCard); err == nil {
			t.Fatalf("FOOD_CARD must not resolve to a gateway")
		}
	})

	t.Run("unconfigured provider", func(t *testing.T) {
		if _, err := registry.ForProvider(entities.GatewayProviderMercadoPago); err == nil {
			t.Fatalf("expected an error for an unconfigured provider")
		}
	})
}

func TestMockGateway_IdempotentOrders(t *testing.T) {
	ctx := context.Background()
	gw := NewMockGateway(entities.GatewayProviderRazorpay)
	req := interfaces.GatewayOrderRequest{Amount: decimal.NewFromInt(500), Currency: "INR", Receipt: "PAY_0011223344556677"}

	first, err := gw.CreateOrder(ctx, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := gw.CreateOrder(ctx, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.OrderID != second.OrderID {
		t.Fatalf("the same receipt must reuse the remote order: %s vs %s", first.OrderID, second.OrderID)
	}

	gp, err := gw.FetchPayment(ctx, "paid_"+first.OrderID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !gp.Settled || gp.Receipt != req.Receipt || !gp.Amount.Equal(req.Amount) {
		t.Fatalf("unexpected mock settlement %+v", gp)
	}

	if !gw.VerifySignature("o", "p", "mock-signature") || gw.VerifySignature("o", "p", "other") {
		t.Fatalf("mock signature check broken")
	}

	byOrder, err := gw.FetchOrderPayment(ctx, first.OrderID, req.Receipt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if byOrder.PaymentID != "paid_"+first.OrderID || !byOrder.Settled {
		t.Fatalf("unexpected order payment %+v", byOrder)
	}
	if _, err := gw.FetchOrderPayment(ctx, "mock_order_unknown", "r"); err == nil {
		t.Fatalf("an unknown order must not resolve to a payment")
	}
}

func TestIsGatewayMockEnabled(t *testing.T) {
	for _, v := range []string{"1", "true", "YES", " on ", "mock"} {
		t.Setenv("PAYMENT_GATEWAY_MOCK", v)
		if !IsGatewayMockEnabled() {
			t.Fatalf("%q should enable mock mode", v)
		}
	}
	t.Setenv("PAYMENT_GATEWAY_MOCK", "off")
	if IsGatewayMockEnabled() {
		t.Fatalf("off must not enable mock mode")
	}
}
