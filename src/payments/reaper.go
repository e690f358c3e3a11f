package payments

import (
	"context"
	"log"
	"vmp/src/clock"
	"vmp/src/config"
	"vmp/src/models"
	"vmp/src/sse"
	"vmp/src/types"
)

// Reaper releases reservations whose payment never settled in time.
type Reaper struct {
	coordinator *Coordinator
	repo        Repository
	clock       clock.Clock
	batchSize   int
}

type ReaperOption func(*Reaper)

// WithBatchSize sets how many expired reservations are read per page.
func WithBatchSize(n int) ReaperOption {
	return func(r *Reaper) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func NewReaper(coordinator *Coordinator, repo Repository, clk clock.Clock, opts ...ReaperOption) *Reaper {
	r := &Reaper{
		coordinator: coordinator,
		repo:        repo,
		clock:       clk,
		batchSize:   config.REAPER_BATCH_SIZE,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type SweepResult struct {
	Expired  int
	Released int
	Failed   int
}

// Sweep releases every expired reservation, whatever the payment status. It
// pages through them oldest first so records that keep failing never hide the
// ones behind them. A failing record is logged and skipped.
func (r *Reaper) Sweep(ctx context.Context) SweepResult {
	var result SweepResult
	var cursor types.ExpiryCursor
	now := r.clock.Now()
	for ctx.Err() == nil {
		page, err := r.repo.ListExpiredReservations(ctx, now, cursor, r.batchSize)
		if err != nil {
			log.Printf("[Reaper] Error listing expired reservations: %s\n", err.Error())
			break
		}
		if len(page) == 0 {
			break
		}
		last := page[len(page)-1]
		cursor = types.ExpiryCursor{ExpiresAt: *last.ReservationExpiresAt, ID: last.ID}

		result.Expired += len(page)
		for i := range page {
			r.release(ctx, &page[i], &result)
		}
		if len(page) < r.batchSize {
			break
		}
	}
	if result.Expired > 0 {
		log.Printf("[Reaper] Sweep done: expired=%d released=%d failed=%d\n", result.Expired, result.Released, result.Failed)
	}
	return result
}

func (r *Reaper) release(ctx context.Context, payment *models.Payment, result *SweepResult) {
	qty, err := r.coordinator.ReleaseReservation(ctx, payment, sse.EVENT_RESERVATION_EXPIRED)
	if err != nil {
		log.Printf("[Reaper] Failed to release reservation of payment %s: %s\n", payment.ID, err.Error())
		result.Failed++
		return
	}
	if qty > 0 {
		log.Printf("[Reaper] Released %d units of voucher %s held by payment %s (status=%s)\n", qty, payment.VoucherID, payment.ID, payment.Status)
		result.Released++
	}
}
