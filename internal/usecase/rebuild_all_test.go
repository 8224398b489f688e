package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"stocklane.io/stocklane/internal/domain"
	"stocklane.io/stocklane/internal/pkg/worker"
	"stocklane.io/stocklane/internal/repository/sqlite"
	"stocklane.io/stocklane/internal/service"
)

func TestRebuildAll_RecomputesEveryCard(t *testing.T) {
	store, err := sqlite.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	stores := store.Stores()
	ledger := service.NewLedgerService(stores, service.LedgerOptions{})
	ctx := context.Background()

	day := func(d int) time.Time { return time.Date(2025, 5, d, 0, 0, 0, 0, time.UTC) }

	// Two cards with raw events and no calculated entries yet.
	want := map[uuid.UUID]int{}
	for i, deltas := range [][]int{{10, -2}, {7, 7, -5}} {
		card, err := stores.StockCards.GetOrCreate(ctx, domain.StockCardKey{
			FacilityID:  uuid.New(),
			OrderableID: uuid.New(),
		})
		require.NoError(t, err)
		total := 0
		for d, delta := range deltas {
			_, err := stores.Events.Record(ctx, domain.MovementEvent{
				StockCardID:   card.ID,
				OccurredDate:  day(i + d + 1),
				QuantityDelta: delta,
			})
			require.NoError(t, err)
			total += delta
		}
		want[card.ID] = total
	}

	pools, err := worker.NewPools(ctx, worker.DefaultPoolConfig())
	require.NoError(t, err)
	t.Cleanup(pools.Shutdown)

	report, err := NewRebuildAll(ledger, stores.StockCards, pools).Execute(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, report.Cards)
	require.Empty(t, report.Failed)

	for cardID, total := range want {
		balance, err := ledger.CurrentBalance(ctx, cardID)
		require.NoError(t, err)
		require.Equal(t, total, balance)
	}
}

func TestRebuildAll_SequentialWithoutPools(t *testing.T) {
	store, err := sqlite.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	stores := store.Stores()
	ledger := service.NewLedgerService(stores, service.LedgerOptions{})
	ctx := context.Background()

	card, err := stores.StockCards.GetOrCreate(ctx, domain.StockCardKey{
		FacilityID:  uuid.New(),
		OrderableID: uuid.New(),
	})
	require.NoError(t, err)
	_, err = stores.Events.Record(ctx, domain.MovementEvent{
		StockCardID:   card.ID,
		OccurredDate:  time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		QuantityDelta: 4,
	})
	require.NoError(t, err)

	report, err := NewRebuildAll(ledger, stores.StockCards, nil).Execute(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Cards)
	require.Empty(t, report.Failed)

	balance, err := ledger.CurrentBalance(ctx, card.ID)
	require.NoError(t, err)
	require.Equal(t, 4, balance)
}
