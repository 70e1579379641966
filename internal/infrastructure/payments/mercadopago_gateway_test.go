package payments

import (
	"context"
	"errors"
	"testing"

	"cafeteria_payments/internal/usecase/interfaces"

	"github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/mercadopago/sdk-go/pkg/refund"
	"github.com/shopspring/decimal"
)

type fakeRefundClient struct {
	refund.Client

	gotPaymentID int
	gotAmount    float64
	resp         *refund.Response
	err          error
}

func (f *fakeRefundClient) CreatePartialRefund(_ context.Context, paymentID int, amount float64) (*refund.Response, error) {
	f.gotPaymentID = paymentID
	f.gotAmount = amount
	return f.resp, f.err
}

type fakePaymentClient struct {
	payment.Client

	gotSearch payment.SearchRequest
	resp      *payment.SearchResponse
	err       error
}

func (f *fakePaymentClient) Search(_ context.Context, request payment.SearchRequest) (*payment.SearchResponse, error) {
	f.gotSearch = request
	return f.resp, f.err
}

func TestMercadoPagoGateway_Refund(t *testing.T) {
	ctx := context.Background()

	t.Run("sends the payment id and the amount in major units", func(t *testing.T) {
		fake := &fakeRefundClient{resp: &refund.Response{ID: 777}}
		g := &MercadoPagoGateway{refunds: fake}

		refundID, err := g.Refund(ctx, "4242", decimal.NewFromFloat(120.5))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if fake.gotPaymentID != 4242 {
			t.Fatalf("expected payment id 4242, got %d", fake.gotPaymentID)
		}
		if fake.gotAmount != 120.5 {
			t.Fatalf("expected amount 120.5, got %v", fake.gotAmount)
		}
		if refundID != "777" {
			t.Fatalf("expected refund id 777, got %q", refundID)
		}
	})

	t.Run("non-numeric payment id is rejected", func(t *testing.T) {
		g := &MercadoPagoGateway{refunds: &fakeRefundClient{}}

		_, err := g.Refund(ctx, "rzp_pay_1", decimal.NewFromInt(100))
		if !errors.Is(err, interfaces.ErrGatewayRejected) {
			t.Fatalf("expected ErrGatewayRejected, got %v", err)
		}
	})

	t.Run("provider 4xx classifies as rejected", func(t *testing.T) {
		fake := &fakeRefundClient{err: errors.New(`{"status":400,"message":"already refunded"}`)}
		g := &MercadoPagoGateway{refunds: fake}

		_, err := g.Refund(ctx, "4242", decimal.NewFromInt(100))
		if !errors.Is(err, interfaces.ErrGatewayRejected) {
			t.Fatalf("expected ErrGatewayRejected, got %v", err)
		}
	})
}

func TestMercadoPagoGateway_FetchOrderPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the approved payment for the receipt", func(t *testing.T) {
		fake := &fakePaymentClient{resp: &payment.SearchResponse{Results: []payment.Response{
			{ID: 11, Status: "rejected", ExternalReference: "PAY_1", TransactionAmount: 500, CurrencyID: "INR"},
			{ID: 12, Status: "approved", ExternalReference: "PAY_1", TransactionAmount: 500, CurrencyID: "INR"},
		}}}
		g := &MercadoPagoGateway{payments: fake}

		gp, err := g.FetchOrderPayment(ctx, "pref-1", "PAY_1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if gp.PaymentID != "12" || !gp.Settled {
			t.Fatalf("expected the approved payment, got %+v", gp)
		}
		if fake.gotSearch.Filters["external_reference"] != "PAY_1" {
			t.Fatalf("expected a search by external_reference, got %v", fake.gotSearch.Filters)
		}
		if !gp.Amount.Equal(decimal.NewFromInt(500)) {
			t.Fatalf("expected amount 500, got %s", gp.Amount)
		}
	})

	t.Run("nothing approved", func(t *testing.T) {
		fake := &fakePaymentClient{resp: &payment.SearchResponse{Results: []payment.Response{
			{ID: 11, Status: "pending", ExternalReference: "PAY_1"},
		}}}
		g := &MercadoPagoGateway{payments: fake}

		_, err := g.FetchOrderPayment(ctx, "pref-1", "PAY_1")
		if !errors.Is(err, interfaces.ErrNoGatewayPayment) {
			t.Fatalf("expected ErrNoGatewayPayment, got %v", err)
		}
	})

	t.Run("no receipt to search by", func(t *testing.T) {
		g := &MercadoPagoGateway{payments: &fakePaymentClient{}}

		_, err := g.FetchOrderPayment(ctx, "pref-1", "")
		if !errors.Is(err, interfaces.ErrNoGatewayPayment) {
			t.Fatalf("expected ErrNoGatewayPayment, got %v", err)
		}
	})
}
