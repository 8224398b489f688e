package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"stocklane.io/stocklane/internal/pkg/logger"
	"stocklane.io/stocklane/internal/pkg/worker"
	"stocklane.io/stocklane/internal/repository"
	"stocklane.io/stocklane/internal/service"
)

// RebuildAll recomputes every stock card's ledger from the beginning of its
// series. Used after bulk event imports or a schema repair; cards are fanned
// out over the recompute worker pool.
type RebuildAll struct {
	ledger *service.LedgerService
	cards  repository.StockCardRepository
	pools  *worker.Pools
}

// NewRebuildAll creates the use case. pools may be nil; cards are then
// rebuilt sequentially.
func NewRebuildAll(ledger *service.LedgerService, cards repository.StockCardRepository, pools *worker.Pools) *RebuildAll {
	return &RebuildAll{ledger: ledger, cards: cards, pools: pools}
}

// RebuildReport summarizes one rebuild pass.
type RebuildReport struct {
	Cards  int
	Failed map[uuid.UUID]error
}

// epoch is early enough to cover every series; occurred dates before the
// system existed cannot occur.
var epoch = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

// Execute rebuilds all cards and reports per-card failures instead of
// stopping at the first one. Returns an error only when the card list itself
// cannot be read.
func (u *RebuildAll) Execute(ctx context.Context) (RebuildReport, error) {
	ids, err := u.cards.ListIDs(ctx)
	if err != nil {
		return RebuildReport{}, fmt.Errorf("list stock cards: %w", err)
	}

	report := RebuildReport{Cards: len(ids), Failed: make(map[uuid.UUID]error)}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	rebuild := func(ctx context.Context, id uuid.UUID) {
		if err := u.ledger.Recompute(ctx, id, epoch); err != nil {
			mu.Lock()
			report.Failed[id] = err
			mu.Unlock()
		}
	}

	for _, id := range ids {
		id := id
		if u.pools == nil {
			rebuild(ctx, id)
			continue
		}
		wg.Add(1)
		err := u.pools.Recompute.Submit(ctx, func(ctx context.Context) {
			defer wg.Done()
			rebuild(ctx, id)
		})
		if err != nil {
			wg.Done()
			mu.Lock()
			report.Failed[id] = err
			mu.Unlock()
		}
	}
	wg.Wait()

	logger.Info("ledger rebuild finished",
		zap.Int("cards", report.Cards),
		zap.Int("failed", len(report.Failed)))
	return report, nil
}
