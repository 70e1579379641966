package memory

import (
	"context"
	"sync"

	"cafeteria_payments/internal/domain/entities"
	"cafeteria_payments/internal/usecase/interfaces"
)

// OrderDirectory is a seedable order lookup for local mock mode.
type OrderDirectory struct {
	mu     sync.RWMutex
	orders map[string]entities.Order
}

var _ interfaces.IOrderDirectory = (*OrderDirectory)(nil)

func NewOrderDirectory() *OrderDirectory {
	return &OrderDirectory{orders: make(map[string]entities.Order)}
}

func (d *OrderDirectory) Put(order entities.Order) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.orders[order.ID] = order
}

func (d *OrderDirectory) GetOrder(ctx context.Context, orderID string) (entities.Order, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	order, exists := d.orders[orderID]
	if !exists {
		return entities.Order{}, interfaces.ErrOrderNotFound
	}
	return order, nil
}
