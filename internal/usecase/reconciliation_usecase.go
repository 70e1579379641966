package usecase

import (
	"context"
	"log"
	"sync"
	"time"

	"cafeteria_payments/internal/domain/entities"
	"cafeteria_payments/internal/usecase/interfaces"
)

// ISettler is the slice of the orchestrator the sweeper needs.
type ISettler interface {
	ReconcilePayment(ctx context.Context, p entities.Payment) (entities.Payment, error)
}

// ReconciliationUseCase periodically resolves payments stuck in PENDING or
// PROCESSING past the sweep timeout: re-queries the gateway, retries the
// top-up credit, or fails records whose remote order never materialized.
//
// One reconciliation is in flight per payment id at a time, so a sweep never
// races a concurrent webhook through this process twice; the record store's
// compare-and-transition still guards against other writers.
type ReconciliationUseCase struct {
	payments interfaces.IPaymentRepository
	settler  ISettler

	timeout       time.Duration
	interval      time.Duration
	maxConcurrent int

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewReconciliationUseCase(payments interfaces.IPaymentRepository, settler ISettler, timeout, interval time.Duration, maxConcurrent int) *ReconciliationUseCase {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &ReconciliationUseCase{
		payments:      payments,
		settler:       settler,
		timeout:       timeout,
		interval:      interval,
		maxConcurrent: maxConcurrent,
		inFlight:      make(map[string]struct{}),
	}
}

// Run blocks until ctx is cancelled, sweeping every interval.
func (r *ReconciliationUseCase) Run(ctx context.Context) {
	log.Printf("[payment][sweeper] started interval=%s timeout=%s", r.interval, r.timeout)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[payment][sweeper] stopped")
			return
		case <-ticker.C:
			if err := r.SweepOnce(ctx); err != nil {
				log.Printf("[payment][sweeper] sweep failed err=%v", err)
			}
		}
	}
}

// SweepOnce scans once and reconciles every stuck record, bounded by
// maxConcurrent workers. Scan errors abort the sweep; per-payment errors
// are logged and left for the next pass.
func (r *ReconciliationUseCase) SweepOnce(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-r.timeout)
	stuck, err := r.payments.ListUnsettled(ctx, cutoff)
	if err != nil {
		return err
	}
	if len(stuck) == 0 {
		return nil
	}
	log.Printf("[payment][sweeper] sweeping count=%d cutoff=%s", len(stuck), cutoff.Format(time.RFC3339))

	sem := make(chan struct{}, r.maxConcurrent)
	var wg sync.WaitGroup
	for _, p := range stuck {
		if !r.claim(p.PaymentID) {
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(p entities.Payment) {
			defer wg.Done()
			defer func() { <-sem }()
			defer r.release(p.PaymentID)

			resolved, err := r.settler.ReconcilePayment(ctx, p)
			if err != nil {
				log.Printf("[payment][sweeper] reconcile failed payment_id=%s err=%v", p.PaymentID, err)
				return
			}
			if resolved.Status != p.Status {
				log.Printf("[payment][sweeper] reconciled payment_id=%s %s->%s", p.PaymentID, p.Status, resolved.Status)
			}
		}(p)
	}
	wg.Wait()
	return nil
}

func (r *ReconciliationUseCase) claim(paymentID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.inFlight[paymentID]; busy {
		return false
	}
	r.inFlight[paymentID] = struct{}{}
	return true
}

func (r *ReconciliationUseCase) release(paymentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inFlight, paymentID)
}
