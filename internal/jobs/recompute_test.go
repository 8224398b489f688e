package jobs

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"stocklane.io/stocklane/internal/pkg/logger"
)

func init() {
	_ = logger.Init("error", "json")
}

func TestRecomputeArgsKind(t *testing.T) {
	t.Parallel()

	if got := (RecomputeArgs{}).Kind(); got != "ledger_recompute" {
		t.Fatalf("Kind() = %q, want %q", got, "ledger_recompute")
	}
}

func TestRecomputeArgsInsertOpts(t *testing.T) {
	t.Parallel()

	opts := (RecomputeArgs{}).InsertOpts()
	if opts.Queue != QueueLedger {
		t.Fatalf("Queue = %q, want %q", opts.Queue, QueueLedger)
	}
	if opts.MaxAttempts != 3 {
		t.Fatalf("MaxAttempts = %d, want 3", opts.MaxAttempts)
	}
	if !opts.UniqueOpts.ByArgs {
		t.Fatal("UniqueOpts.ByArgs = false, want true")
	}
	if !opts.UniqueOpts.ByQueue {
		t.Fatal("UniqueOpts.ByQueue = false, want true")
	}

	states := make(map[rivertype.JobState]bool, len(opts.UniqueOpts.ByState))
	for _, s := range opts.UniqueOpts.ByState {
		states[s] = true
	}
	for _, want := range []rivertype.JobState{
		rivertype.JobStateAvailable,
		rivertype.JobStatePending,
		rivertype.JobStateRetryable,
		rivertype.JobStateRunning,
		rivertype.JobStateScheduled,
	} {
		if !states[want] {
			t.Errorf("UniqueOpts.ByState missing %q", want)
		}
	}
	// A completed rebuild of the same card and date must not swallow a new
	// back-dated movement arriving within the retention window.
	for _, terminal := range []rivertype.JobState{
		rivertype.JobStateCompleted,
		rivertype.JobStateCancelled,
		rivertype.JobStateDiscarded,
	} {
		if states[terminal] {
			t.Errorf("UniqueOpts.ByState must not include %q", terminal)
		}
	}
}

func TestRecomputeWorkerWork_Uninitialized(t *testing.T) {
	t.Parallel()

	var w *RecomputeWorker
	err := w.Work(context.Background(), &river.Job[RecomputeArgs]{})
	if err == nil || !strings.Contains(err.Error(), "not initialized") {
		t.Fatalf("Work() error = %v, want not initialized", err)
	}
}

type recomputeRecorder struct {
	cardID uuid.UUID
	from   time.Time
}

func (r *recomputeRecorder) Recompute(_ context.Context, cardID uuid.UUID, from time.Time) error {
	r.cardID = cardID
	r.from = from
	return nil
}

func TestRecomputeWorkerWork_ParsesDate(t *testing.T) {
	t.Parallel()

	rec := &recomputeRecorder{}
	w := NewRecomputeWorker(rec)
	cardID := uuid.New()

	err := w.Work(context.Background(), &river.Job[RecomputeArgs]{
		Args: RecomputeArgs{StockCardID: cardID, FromDate: "2025-06-03"},
	})
	if err != nil {
		t.Fatalf("Work() error = %v", err)
	}
	if rec.cardID != cardID {
		t.Fatalf("recomputed card = %s, want %s", rec.cardID, cardID)
	}
	if want := time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC); !rec.from.Equal(want) {
		t.Fatalf("from = %s, want %s", rec.from, want)
	}
}

func TestRecomputeWorkerWork_BadDate(t *testing.T) {
	t.Parallel()

	w := NewRecomputeWorker(&recomputeRecorder{})
	err := w.Work(context.Background(), &river.Job[RecomputeArgs]{
		Args: RecomputeArgs{StockCardID: uuid.New(), FromDate: "June 3rd"},
	})
	if err == nil || !strings.Contains(err.Error(), "parse from date") {
		t.Fatalf("Work() error = %v, want parse failure", err)
	}
}
