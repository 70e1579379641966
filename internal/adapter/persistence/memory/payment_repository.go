package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cafeteria_payments/internal/domain/entities"
	"cafeteria_payments/internal/usecase/interfaces"
)

// PaymentRepository is the in-memory payment record store used in local mock
// mode and in tests. The single mutex gives the same atomicity the DynamoDB
// conditional writes provide.
type PaymentRepository struct {
	mu       sync.Mutex
	payments map[string]entities.Payment
}

var _ interfaces.IPaymentRepository = (*PaymentRepository)(nil)

func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{payments: make(map[string]entities.Payment)}
}

func (r *PaymentRepository) Create(ctx context.Context, p entities.Payment) (entities.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.payments[p.PaymentID]; exists {
		return entities.Payment{}, fmt.Errorf("payment %s already exists", p.PaymentID)
	}
	r.payments[p.PaymentID] = p
	return p, nil
}

func (r *PaymentRepository) GetByID(ctx context.Context, paymentID string) (entities.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.payments[paymentID], nil
}

func (r *PaymentRepository) GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (entities.Payment, error) {
	if gatewayOrderID == "" {
		return entities.Payment{}, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.GatewayOrderID == gatewayOrderID {
			return p, nil
		}
	}
	return entities.Payment{}, nil
}

func (r *PaymentRepository) GetByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (entities.Payment, error) {
	if gatewayPaymentID == "" {
		return entities.Payment{}, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.GatewayPaymentID == gatewayPaymentID {
			return p, nil
		}
	}
	return entities.Payment{}, nil
}

func (r *PaymentRepository) ListByUserID(ctx context.Context, userID string) ([]entities.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entities.Payment
	for _, p := range r.payments {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *PaymentRepository) ListUnsettled(ctx context.Context, olderThan time.Time) ([]entities.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entities.Payment
	for _, p := range r.payments {
		settling := p.Status == entities.PaymentStatusPending || p.Status == entities.PaymentStatusProcessing
		if settling && !p.CreatedAt.After(olderThan) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *PaymentRepository) CompareAndTransition(ctx context.Context, paymentID string, expected, next entities.PaymentStatus, mutate func(*entities.Payment)) (entities.Payment, error) {
	if !expected.CanTransitionTo(next) {
		return entities.Payment{}, fmt.Errorf("illegal transition %s -> %s", expected, next)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, exists := r.payments[paymentID]
	if !exists {
		return entities.Payment{}, fmt.Errorf("payment %s not found", paymentID)
	}
	if current.Status != expected {
		return entities.Payment{}, interfaces.ErrStaleState
	}

	updated := current
	if mutate != nil {
		mutate(&updated)
	}
	if current.GatewayOrderID != "" {
		updated.GatewayOrderID = current.GatewayOrderID
	}
	if current.GatewayPaymentID != "" {
		updated.GatewayPaymentID = current.GatewayPaymentID
	}
	updated.Status = next
	updated.UpdatedAt = time.Now().UTC()

	r.payments[paymentID] = updated
	return updated, nil
}
