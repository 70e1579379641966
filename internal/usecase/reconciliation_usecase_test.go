package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cafeteria_payments/internal/domain/entities"
	mock_interfaces "cafeteria_payments/internal/usecase/interfaces/mocks"

	"github.com/shopspring/decimal"
	"go.uber.org/mock/gomock"
)

type settlerFunc func(ctx context.Context, p entities.Payment) (entities.Payment, error)

func (f settlerFunc) ReconcilePayment(ctx context.Context, p entities.Payment) (entities.Payment, error) {
	return f(ctx, p)
}

func stuckPayment(id string, status entities.PaymentStatus) entities.Payment {
	return entities.Payment{
		PaymentID: id,
		UserID:    "user-1",
		Amount:    decimal.NewFromInt(500),
		Currency:  "INR",
		Method:    entities.PaymentMethodRazorpay,
		Type:      entities.PaymentTypeFoodCardTopUp,
		Status:    status,
		CreatedAt: time.Now().UTC().Add(-time.Hour),
	}
}

func TestReconciliationUseCase_SweepOnce(t *testing.T) {
	t.Run("scan error aborts the sweep", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mock_interfaces.NewMockIPaymentRepository(ctrl)
		repo.EXPECT().ListUnsettled(gomock.Any(), gomock.Any()).Return(nil, errors.New("scan throttled"))

		sweeper := NewReconciliationUseCase(repo, settlerFunc(func(_ context.Context, p entities.Payment) (entities.Payment, error) {
			t.Fatalf("settler must not run on a failed scan")
			return p, nil
		}), 15*time.Minute, time.Minute, 2)

		if err := sweeper.SweepOnce(context.Background()); err == nil {
			t.Fatalf("expected scan error to surface")
		}
	})

	t.Run("empty sweep does nothing", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mock_interfaces.NewMockIPaymentRepository(ctrl)
		repo.EXPECT().ListUnsettled(gomock.Any(), gomock.Any()).Return(nil, nil)

		sweeper := NewReconciliationUseCase(repo, nil, 15*time.Minute, time.Minute, 2)
		if err := sweeper.SweepOnce(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("reconciles every stuck payment", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mock_interfaces.NewMockIPaymentRepository(ctrl)
		stuck := []entities.Payment{
			stuckPayment("PAY_1", entities.PaymentStatusPending),
			stuckPayment("PAY_2", entities.PaymentStatusProcessing),
			stuckPayment("PAY_3", entities.PaymentStatusPending),
		}
		repo.EXPECT().ListUnsettled(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, olderThan time.Time) ([]entities.Payment, error) {
			if time.Since(olderThan) < 14*time.Minute {
				t.Fatalf("cutoff %s should be at least the sweep timeout in the past", olderThan)
			}
			return stuck, nil
		})

		var mu sync.Mutex
		seen := map[string]int{}
		sweeper := NewReconciliationUseCase(repo, settlerFunc(func(_ context.Context, p entities.Payment) (entities.Payment, error) {
			mu.Lock()
			seen[p.PaymentID]++
			mu.Unlock()
			resolved := p
			resolved.Status = entities.PaymentStatusPaid
			return resolved, nil
		}), 15*time.Minute, time.Minute, 2)

		if err := sweeper.SweepOnce(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, p := range stuck {
			if seen[p.PaymentID] != 1 {
				t.Fatalf("expected exactly one reconcile for %s, got %d", p.PaymentID, seen[p.PaymentID])
			}
		}
	})

	t.Run("per-payment errors do not abort the sweep", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mock_interfaces.NewMockIPaymentRepository(ctrl)
		stuck := []entities.Payment{
			stuckPayment("PAY_1", entities.PaymentStatusPending),
			stuckPayment("PAY_2", entities.PaymentStatusPending),
		}
		repo.EXPECT().ListUnsettled(gomock.Any(), gomock.Any()).Return(stuck, nil)

		var mu sync.Mutex
		var reconciled []string
		sweeper := NewReconciliationUseCase(repo, settlerFunc(func(_ context.Context, p entities.Payment) (entities.Payment, error) {
			mu.Lock()
			defer mu.Unlock()
			if p.PaymentID == "PAY_1" {
				return p, errors.New("gateway unavailable")
			}
			reconciled = append(reconciled, p.PaymentID)
			return p, nil
		}), 15*time.Minute, time.Minute, 2)

		if err := sweeper.SweepOnce(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(reconciled) != 1 || reconciled[0] != "PAY_2" {
			t.Fatalf("expected PAY_2 reconciled despite PAY_1 failing, got %v", reconciled)
		}
	})

	t.Run("a claimed payment is not reconciled twice concurrently", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mock_interfaces.NewMockIPaymentRepository(ctrl)
		p := stuckPayment("PAY_1", entities.PaymentStatusProcessing)
		repo.EXPECT().ListUnsettled(gomock.Any(), gomock.Any()).Return([]entities.Payment{p}, nil).Times(2)

		started := make(chan struct{})
		block := make(chan struct{})
		var mu sync.Mutex
		calls := 0
		sweeper := NewReconciliationUseCase(repo, settlerFunc(func(_ context.Context, p entities.Payment) (entities.Payment, error) {
			mu.Lock()
			calls++
			mu.Unlock()
			close(started)
			<-block
			return p, nil
		}), 15*time.Minute, time.Minute, 2)

		done := make(chan struct{})
		go func() {
			_ = sweeper.SweepOnce(context.Background())
			close(done)
		}()
		<-started

		// Second sweep while the first reconcile is still in flight.
		if err := sweeper.SweepOnce(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		close(block)
		<-done

		mu.Lock()
		defer mu.Unlock()
		if calls != 1 {
			t.Fatalf("expected a single in-flight reconcile, got %d", calls)
		}
	})
}

func TestReconciliationUseCase_Run(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mock_interfaces.NewMockIPaymentRepository(ctrl)
	repo.EXPECT().ListUnsettled(gomock.Any(), gomock.Any()).Return(nil, nil).MinTimes(1)

	sweeper := NewReconciliationUseCase(repo, nil, 15*time.Minute, 5*time.Millisecond, 2)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("sweeper did not stop on context cancellation")
	}
}
