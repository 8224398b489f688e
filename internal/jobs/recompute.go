// Package jobs defines River Queue job types for async processing.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"go.uber.org/zap"

	"stocklane.io/stocklane/internal/pkg/logger"
)

// QueueLedger is the dedicated queue for ledger rebuild jobs; they can run
// long on cards with deep history and should not starve the default queue.
const QueueLedger = "ledger"

// LedgerRecomputer rebuilds a card's calculated entries from a date onward.
// Implemented by service.LedgerService; the indirection keeps this package
// free of a service import cycle.
type LedgerRecomputer interface {
	Recompute(ctx context.Context, stockCardID uuid.UUID, from time.Time) error
}

// RecomputeArgs asks for one card's ledger to be rebuilt from FromDate
// onward. FromDate uses the 2006-01-02 layout so the args stay stable under
// JSON round-trips and uniqueness-by-args.
type RecomputeArgs struct {
	StockCardID uuid.UUID `json:"stock_card_id"`
	FromDate    string    `json:"from_date"`
}

// Kind returns the job kind identifier for ledger recompute.
func (RecomputeArgs) Kind() string { return "ledger_recompute" }

// InsertOpts deduplicates pending rebuilds of the same card and date;
// recompute is idempotent, so one queued pass covers any number of requests.
// ByState is pinned to the non-terminal states: a completed job must not
// block a later rebuild of the same card and date within the retention
// window.
func (RecomputeArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       QueueLedger,
		MaxAttempts: 3,
		UniqueOpts: river.UniqueOpts{
			ByArgs:  true,
			ByQueue: true,
			ByState: []rivertype.JobState{
				rivertype.JobStateAvailable,
				rivertype.JobStatePending,
				rivertype.JobStateRetryable,
				rivertype.JobStateRunning,
				rivertype.JobStateScheduled,
			},
		},
	}
}

// RecomputeWorker executes ledger rebuilds.
type RecomputeWorker struct {
	river.WorkerDefaults[RecomputeArgs]
	ledger LedgerRecomputer
}

// NewRecomputeWorker creates a recompute worker.
func NewRecomputeWorker(ledger LedgerRecomputer) *RecomputeWorker {
	return &RecomputeWorker{ledger: ledger}
}

// Work rebuilds the card's entries from the job's date.
func (w *RecomputeWorker) Work(ctx context.Context, job *river.Job[RecomputeArgs]) error {
	if w == nil || w.ledger == nil {
		return fmt.Errorf("recompute worker is not initialized")
	}

	from, err := time.ParseInLocation("2006-01-02", job.Args.FromDate, time.UTC)
	if err != nil {
		return fmt.Errorf("parse from date %q: %w", job.Args.FromDate, err)
	}

	if err := w.ledger.Recompute(ctx, job.Args.StockCardID, from); err != nil {
		return fmt.Errorf("recompute card %s from %s: %w", job.Args.StockCardID, job.Args.FromDate, err)
	}

	logger.Info("ledger recompute job completed",
		zap.String("stock_card_id", job.Args.StockCardID.String()),
		zap.String("from_date", job.Args.FromDate),
	)
	return nil
}
