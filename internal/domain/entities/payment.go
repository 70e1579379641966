package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the settlement state machine of a payment.
//
// PENDING and PROCESSING are the only states the gateway outcome can still
// change. PAID is terminal for settlement but can still move through the
// refund states.

type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "PENDING"
	PaymentStatusProcessing        PaymentStatus = "PROCESSING"
	PaymentStatusPaid              PaymentStatus = "PAID"
	PaymentStatusFailed            PaymentStatus = "FAILED"
	PaymentStatusRefunded          PaymentStatus = "REFUNDED"
	PaymentStatusPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
)

func (s PaymentStatus) IsFinal() bool {
	switch s {
	case PaymentStatusPaid, PaymentStatusFailed, PaymentStatusRefunded, PaymentStatusPartiallyRefunded:
		return true
	}
	return false
}

func (s PaymentStatus) CanBeRefunded() bool {
	return s == PaymentStatusPaid || s == PaymentStatusPartiallyRefunded
}

// CanTransitionTo is the single source of truth for legal status moves.
// Same-status "transitions" are allowed on non-terminal states so that
// gateway identifiers can be attached under the same compare-and-swap
// discipline as real transitions. PARTIALLY_REFUNDED moving back to PAID
// compensates a refund claim whose money movement was declined.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	switch s {
	case PaymentStatusPending:
		return next == PaymentStatusPending || next == PaymentStatusProcessing || next == PaymentStatusFailed
	case PaymentStatusProcessing:
		return next == PaymentStatusPaid || next == PaymentStatusFailed
	case PaymentStatusPaid:
		return next == PaymentStatusPartiallyRefunded || next == PaymentStatusRefunded
	case PaymentStatusPartiallyRefunded:
		return next == PaymentStatusPaid || next == PaymentStatusPartiallyRefunded || next == PaymentStatusRefunded
	}
	return false
}

// PaymentMethod selects how a payment is funded. FOOD_CARD settles against
// the internal ledger with no gateway round trip; everything else resolves to
// one of the gateway providers.

type PaymentMethod string

const (
	PaymentMethodFoodCard    PaymentMethod = "FOOD_CARD"
	PaymentMethodRazorpay    PaymentMethod = "RAZORPAY"
	PaymentMethodCard        PaymentMethod = "CARD"
	PaymentMethodUPI         PaymentMethod = "UPI"
	PaymentMethodNetBanking  PaymentMethod = "NET_BANKING"
	PaymentMethodStripe      PaymentMethod = "STRIPE"
	PaymentMethodMercadoPago PaymentMethod = "MERCADOPAGO"
)

func (m PaymentMethod) RequiresGateway() bool {
	return m != PaymentMethodFoodCard
}

// Provider maps a method onto the gateway that executes it. Card, UPI and
// net-banking all ride on the Razorpay aggregator.
func (m PaymentMethod) Provider() GatewayProvider {
	switch m {
	case PaymentMethodStripe:
		return GatewayProviderStripe
	case PaymentMethodMercadoPago:
		return GatewayProviderMercadoPago
	case PaymentMethodRazorpay, PaymentMethodCard, PaymentMethodUPI, PaymentMethodNetBanking:
		return GatewayProviderRazorpay
	}
	return ""
}

func (m PaymentMethod) IsValid() bool {
	return m == PaymentMethodFoodCard || m.Provider() != ""
}

// GatewayProvider identifies one external payment processor.

type GatewayProvider string

const (
	GatewayProviderRazorpay    GatewayProvider = "razorpay"
	GatewayProviderStripe      GatewayProvider = "stripe"
	GatewayProviderMercadoPago GatewayProvider = "mercadopago"
)

// PaymentType distinguishes paying for an order from loading the food card.

type PaymentType string

const (
	PaymentTypeOrderPayment  PaymentType = "ORDER_PAYMENT"
	PaymentTypeFoodCardTopUp PaymentType = "FOOD_CARD_TOPUP"
)

func (t PaymentType) IsValid() bool {
	return t == PaymentTypeOrderPayment || t == PaymentTypeFoodCardTopUp
}

// Payment is one attempted monetary movement.
//
// Storage model (DynamoDB):
//   - PK: payment_id
//   - GSI1 (gateway_order_id-index): gateway_order_id
//   - GSI2 (gateway_payment_id-index): gateway_payment_id
//   - GSI3 (user_id-index): user_id
//
// GatewayOrderID and GatewayPaymentID are idempotency anchors: written at
// most once, never overwritten. Records are never deleted; terminal states
// stay for audit.

type Payment struct {
	PaymentID string `json:"payment_id"`
	UserID    string `json:"user_id"`
	OrderID   string `json:"order_id,omitempty"`

	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`

	Method PaymentMethod `json:"payment_method"`
	Type   PaymentType   `json:"payment_type"`
	Status PaymentStatus `json:"payment_status"`

	GatewayOrderID   string `json:"gateway_order_id,omitempty"`
	GatewayPaymentID string `json:"gateway_payment_id,omitempty"`
	GatewaySignature string `json:"gateway_signature,omitempty"`
	GatewayReceipt   string `json:"gateway_receipt,omitempty"`

	Description   string          `json:"description,omitempty"`
	FailureReason string          `json:"failure_reason,omitempty"`
	RefundID      string          `json:"refund_id,omitempty"`
	RefundAmount  decimal.Decimal `json:"refund_amount"`

	GatewayCreatedAt time.Time `json:"gateway_created_at,omitzero"`
	ProcessedAt      time.Time `json:"processed_at,omitzero"`
	FailedAt         time.Time `json:"failed_at,omitzero"`
	RefundedAt       time.Time `json:"refunded_at,omitzero"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// RefundableAmount is what can still be refunded from a settled payment.
func (p Payment) RefundableAmount() decimal.Decimal {
	return p.Amount.Sub(p.RefundAmount)
}
