package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"cafeteria_payments/internal/domain/entities"
	"cafeteria_payments/internal/usecase/interfaces"
)

// FoodCardRepository keeps balances and movement entries in process memory.
// Entries are keyed by reference, so a replayed Credit or Debit with the same
// reference is a no-op exactly like the transactional store.
type FoodCardRepository struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
	entries  map[string]entities.FoodCardEntry
	updated  map[string]time.Time
}

var _ interfaces.IFoodCardRepository = (*FoodCardRepository)(nil)

func NewFoodCardRepository() *FoodCardRepository {
	return &FoodCardRepository{
		balances: make(map[string]decimal.Decimal),
		entries:  make(map[string]entities.FoodCardEntry),
		updated:  make(map[string]time.Time),
	}
}

// Seed sets an initial balance outside of the ledger flow. Tests only.
func (r *FoodCardRepository) Seed(userID string, balance decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.balances[userID] = balance
	r.updated[userID] = time.Now().UTC()
}

func (r *FoodCardRepository) Get(ctx context.Context, userID string) (entities.FoodCard, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return entities.FoodCard{
		UserID:    userID,
		Balance:   r.balances[userID],
		UpdatedAt: r.updated[userID],
	}, nil
}

func (r *FoodCardRepository) Credit(ctx context.Context, userID string, amount decimal.Decimal, reference string) (entities.FoodCard, error) {
	return r.apply(userID, amount, reference, entities.FoodCardEntryCredit)
}

func (r *FoodCardRepository) Debit(ctx context.Context, userID string, amount decimal.Decimal, reference string) (entities.FoodCard, error) {
	return r.apply(userID, amount, reference, entities.FoodCardEntryDebit)
}

func (r *FoodCardRepository) apply(userID string, amount decimal.Decimal, reference string, kind entities.FoodCardEntryType) (entities.FoodCard, error) {
	if userID == "" || reference == "" {
		return entities.FoodCard{}, fmt.Errorf("food card movement requires user id and reference")
	}
	if !amount.IsPositive() {
		return entities.FoodCard{}, fmt.Errorf("food card movement amount must be positive")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, seen := r.entries[reference]; seen {
		return entities.FoodCard{UserID: userID, Balance: r.balances[userID], UpdatedAt: r.updated[userID]}, nil
	}

	balance := r.balances[userID]
	if kind == entities.FoodCardEntryDebit {
		if balance.LessThan(amount) {
			return entities.FoodCard{}, interfaces.ErrInsufficientBalance
		}
		balance = balance.Sub(amount)
	} else {
		balance = balance.Add(amount)
	}

	now := time.Now().UTC()
	r.entries[reference] = entities.FoodCardEntry{
		Reference: reference,
		UserID:    userID,
		Type:      kind,
		Amount:    amount,
		CreatedAt: now,
	}
	r.balances[userID] = balance
	r.updated[userID] = now

	return entities.FoodCard{UserID: userID, Balance: balance, UpdatedAt: now}, nil
}
