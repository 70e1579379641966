package interfaces

import (
	"context"
	"errors"

	"cafeteria_payments/internal/domain/entities"
)

var ErrOrderNotFound = errors.New("order not found")

// IOrderDirectory is the read-only view into the order service's data used
// to check that an ORDER_PAYMENT targets an unpaid order owned by the
// calling user. The orders table belongs to the order service; this port
// never writes it.
type IOrderDirectory interface {
	GetOrder(ctx context.Context, orderID string) (entities.Order, error)
}
