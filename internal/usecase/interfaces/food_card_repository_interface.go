package interfaces

import (
	"context"
	"errors"

	"cafeteria_payments/internal/domain/entities"

	"github.com/shopspring/decimal"
)

var ErrInsufficientBalance = errors.New("insufficient food card balance")

// IFoodCardRepository is the balance ledger. Credit and Debit are the only
// mutators; both are a single atomic read-check-write per user, so two
// concurrent debits can never both succeed against an insufficient balance
// and concurrent credits are never lost.
//
// The reference deduplicates: a credit or debit whose reference was already
// applied is a no-op that returns the current balance. Callers use the
// payment identifier (or the gateway payment identifier for settlement
// credits) as the reference, so a retried settlement credits at most once.
type IFoodCardRepository interface {
	Get(ctx context.Context, userID string) (entities.FoodCard, error)
	Credit(ctx context.Context, userID string, amount decimal.Decimal, reference string) (entities.FoodCard, error)
	Debit(ctx context.Context, userID string, amount decimal.Decimal, reference string) (entities.FoodCard, error)
}
