package entities

import "github.com/shopspring/decimal"

// OrderStatus is the subset of order lifecycle this service cares about:
// whether an order can still be paid for.

type OrderStatus string

const (
	OrderStatusPendingPayment OrderStatus = "PENDING_PAYMENT"
	OrderStatusPaid           OrderStatus = "PAID"
	OrderStatusCancelled      OrderStatus = "CANCELLED"
)

// Order is a read-only projection of the order service's record, used to
// check ownership and payability before accepting an ORDER_PAYMENT.

type Order struct {
	ID     string          `json:"id"`
	UserID string          `json:"user_id"`
	Total  decimal.Decimal `json:"total"`
	Status OrderStatus     `json:"status"`
}

func (o Order) PayableBy(userID string) bool {
	return o.UserID == userID && o.Status == OrderStatusPendingPayment
}
