package interfaces

import (
	"context"
	"errors"
	"time"

	"cafeteria_payments/internal/domain/entities"
)

// ErrStaleState is returned by CompareAndTransition when the stored status no
// longer matches the expected one. It is the benign loser-side signal of a
// webhook/poll race, not a failure.
var ErrStaleState = errors.New("payment status changed concurrently")

// IPaymentRepository abstracts durable storage for Payment records.
//
// CompareAndTransition is the only mutation entry point after Create: it
// atomically checks the stored status against expected, applies the mutator
// and writes status=next. Gateway identifiers set by the mutator must stick
// only if they were previously empty.
type IPaymentRepository interface {
	Create(ctx context.Context, p entities.Payment) (entities.Payment, error)
	GetByID(ctx context.Context, paymentID string) (entities.Payment, error)
	GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (entities.Payment, error)
	GetByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (entities.Payment, error)
	ListByUserID(ctx context.Context, userID string) ([]entities.Payment, error)
	ListUnsettled(ctx context.Context, olderThan time.Time) ([]entities.Payment, error)
	CompareAndTransition(ctx context.Context, paymentID string, expected, next entities.PaymentStatus, mutate func(*entities.Payment)) (entities.Payment, error)
}
