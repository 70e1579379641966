package request

import "github.com/shopspring/decimal"

// PaymentCreateRequest is the payload for the create-payment route. Amount is
// in rupees; the gateway adapters convert to paise where the provider wants
// minor units.
type PaymentCreateRequest struct {
	UserID      string          `json:"user_id" binding:"required"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	Currency    string          `json:"currency"`
	Method      string          `json:"payment_method" binding:"required"`
	Type        string          `json:"payment_type" binding:"required"`
	OrderID     string          `json:"order_id"`
	Description string          `json:"description"`
}

// PaymentVerifyRequest carries the checkout callback fields the frontend
// receives from the gateway after the customer pays.
type PaymentVerifyRequest struct {
	PaymentID        string `json:"payment_id" binding:"required"`
	GatewayOrderID   string `json:"gateway_order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	GatewaySignature string `json:"gateway_signature"`
}

// PaymentRefundRequest refunds part or all of a settled payment. A zero or
// absent amount refunds whatever is still refundable.
type PaymentRefundRequest struct {
	Amount decimal.Decimal `json:"amount"`
}
