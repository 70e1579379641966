package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"cafeteria_payments/internal/usecase/interfaces"

	"github.com/shopspring/decimal"
)

func TestFoodCardRepository_DebitAndCredit(t *testing.T) {
	ctx := context.Background()

	t.Run("debit below balance fails without touching the card", func(t *testing.T) {
		repo := NewFoodCardRepository()
		repo.Seed("user-1", decimal.NewFromInt(100))

		_, err := repo.Debit(ctx, "user-1", decimal.NewFromInt(150), "ref-1")
		if !errors.Is(err, interfaces.ErrInsufficientBalance) {
			t.Fatalf("expected ErrInsufficientBalance, got %v", err)
		}

		card, _ := repo.Get(ctx, "user-1")
		if !card.Balance.Equal(decimal.NewFromInt(100)) {
			t.Fatalf("balance must be untouched, got %s", card.Balance)
		}

		// The declined reference is not burned.
		if _, err := repo.Debit(ctx, "user-1", decimal.NewFromInt(60), "ref-1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("replayed reference is a no-op", func(t *testing.T) {
		repo := NewFoodCardRepository()
		amount := decimal.NewFromInt(500)

		first, err := repo.Credit(ctx, "user-1", amount, "rzp_pay_1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		second, err := repo.Credit(ctx, "user-1", amount, "rzp_pay_1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !first.Balance.Equal(second.Balance) || !second.Balance.Equal(amount) {
			t.Fatalf("replay must not credit twice: first=%s second=%s", first.Balance, second.Balance)
		}
	})

	t.Run("missing card reads as zero balance", func(t *testing.T) {
		repo := NewFoodCardRepository()
		card, err := repo.Get(ctx, "nobody")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !card.Balance.IsZero() {
			t.Fatalf("expected zero balance, got %s", card.Balance)
		}
	})
}

func TestFoodCardRepository_ConcurrentDebits(t *testing.T) {
	ctx := context.Background()
	repo := NewFoodCardRepository()
	repo.Seed("user-1", decimal.NewFromInt(100))

	const workers = 50
	debit := decimal.NewFromInt(10)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.Debit(ctx, "user-1", debit, fmt.Sprintf("ref-%d", i))
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else if !errors.Is(err, interfaces.ErrInsufficientBalance) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if succeeded != 10 {
		t.Fatalf("exactly 10 debits of 10 fit in 100, got %d", succeeded)
	}
	card, _ := repo.Get(ctx, "user-1")
	if !card.Balance.IsZero() {
		t.Fatalf("expected exhausted balance, got %s", card.Balance)
	}
}

func TestFoodCardRepository_ConcurrentSameReference(t *testing.T) {
	ctx := context.Background()
	repo := NewFoodCardRepository()
	amount := decimal.NewFromInt(500)

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.Credit(ctx, "user-1", amount, "rzp_pay_1"); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	card, _ := repo.Get(ctx, "user-1")
	if !card.Balance.Equal(amount) {
		t.Fatalf("one reference credits once, got balance %s", card.Balance)
	}
}
