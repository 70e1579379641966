package response

import (
	"time"

	"github.com/shopspring/decimal"

	"cafeteria_payments/internal/domain/entities"
)

type PaymentResponse struct {
	PaymentID string `json:"payment_id"`
	UserID    string `json:"user_id"`
	OrderID   string `json:"order_id,omitempty"`

	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`

	Method string `json:"payment_method"`
	Type   string `json:"payment_type"`
	Status string `json:"payment_status"`

	GatewayOrderID   string `json:"gateway_order_id,omitempty"`
	GatewayPaymentID string `json:"gateway_payment_id,omitempty"`

	Description   string          `json:"description,omitempty"`
	FailureReason string          `json:"failure_reason,omitempty"`
	RefundID      string          `json:"refund_id,omitempty"`
	RefundAmount  decimal.Decimal `json:"refund_amount"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func FromPayment(p entities.Payment) PaymentResponse {
	return PaymentResponse{
		PaymentID:        p.PaymentID,
		UserID:           p.UserID,
		OrderID:          p.OrderID,
		Amount:           p.Amount,
		Currency:         p.Currency,
		Method:           string(p.Method),
		Type:             string(p.Type),
		Status:           string(p.Status),
		GatewayOrderID:   p.GatewayOrderID,
		GatewayPaymentID: p.GatewayPaymentID,
		Description:      p.Description,
		FailureReason:    p.FailureReason,
		RefundID:         p.RefundID,
		RefundAmount:     p.RefundAmount,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}

func FromPayments(payments []entities.Payment) []PaymentResponse {
	out := make([]PaymentResponse, 0, len(payments))
	for _, p := range payments {
		out = append(out, FromPayment(p))
	}
	return out
}

// PaymentCreateResponse adds the connect parameters the frontend needs to
// open the provider's checkout for gateway-backed payments.
type PaymentCreateResponse struct {
	PaymentResponse
	ConnectParams map[string]string `json:"connect_params,omitempty"`
}

func FromPaymentCreate(p entities.Payment, connectParams map[string]string) PaymentCreateResponse {
	return PaymentCreateResponse{
		PaymentResponse: FromPayment(p),
		ConnectParams:   connectParams,
	}
}

type FoodCardBalanceResponse struct {
	UserID    string          `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	UpdatedAt time.Time       `json:"updated_at,omitzero"`
}

func FromFoodCard(card entities.FoodCard) FoodCardBalanceResponse {
	return FoodCardBalanceResponse{
		UserID:    card.UserID,
		Balance:   card.Balance,
		UpdatedAt: card.UpdatedAt,
	}
}
