package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"stocklane.io/stocklane/internal/domain"
	apperrors "stocklane.io/stocklane/internal/pkg/errors"
	"stocklane.io/stocklane/internal/repository"
	"stocklane.io/stocklane/internal/repository/sqlite"
)

// stepClock ticks one second per call so processed dates are distinct and
// strictly increasing within a test.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newLedgerFixture(t *testing.T, allowNegative bool) (*LedgerService, repository.Stores, uuid.UUID) {
	t.Helper()
	store, err := sqlite.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	stores := store.Stores()
	clock := &stepClock{t: time.Date(2025, 7, 10, 12, 0, 0, 0, time.UTC)}
	svc := NewLedgerService(stores, LedgerOptions{AllowNegative: allowNegative, Now: clock.now})

	card, err := stores.StockCards.GetOrCreate(context.Background(), domain.StockCardKey{
		FacilityID:  uuid.New(),
		OrderableID: uuid.New(),
	})
	require.NoError(t, err)
	return svc, stores, card.ID
}

func ledgerDay(d int) time.Time {
	return time.Date(2025, 7, d, 0, 0, 0, 0, time.UTC)
}

func TestLedgerAppend_ForwardSequence(t *testing.T) {
	svc, _, cardID := newLedgerFixture(t, false)
	ctx := context.Background()

	e1, err := svc.Append(ctx, cardID, ledgerDay(1), 10)
	require.NoError(t, err)
	require.Equal(t, 10, e1.StockOnHand)

	e2, err := svc.Append(ctx, cardID, ledgerDay(3), -4)
	require.NoError(t, err)
	require.Equal(t, 6, e2.StockOnHand)
	require.True(t, e2.ProcessedDate.After(e1.ProcessedDate))

	balance, err := svc.CurrentBalance(ctx, cardID)
	require.NoError(t, err)
	require.Equal(t, 6, balance)
}

func TestLedgerAppend_RejectsBackdatedAndSameDay(t *testing.T) {
	svc, _, cardID := newLedgerFixture(t, false)
	ctx := context.Background()

	_, err := svc.Append(ctx, cardID, ledgerDay(5), 10)
	require.NoError(t, err)

	_, err = svc.Append(ctx, cardID, ledgerDay(3), 1)
	require.Error(t, err)
	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	require.Equal(t, apperrors.CodeBackdatedMovement, appErr.Code)

	// Same occurred date must also go through recompute; the series keeps one
	// entry per date.
	_, err = svc.Append(ctx, cardID, ledgerDay(5), 1)
	require.Error(t, err)
	appErr, ok = apperrors.IsAppError(err)
	require.True(t, ok)
	require.Equal(t, apperrors.CodeBackdatedMovement, appErr.Code)
}

func TestLedgerAppend_RejectsNegativeBalance(t *testing.T) {
	svc, _, cardID := newLedgerFixture(t, false)
	ctx := context.Background()

	_, err := svc.Append(ctx, cardID, ledgerDay(1), 5)
	require.NoError(t, err)

	_, err = svc.Append(ctx, cardID, ledgerDay(2), -8)
	require.Error(t, err)
	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	require.Equal(t, apperrors.CodeNegativeStockOnHand, appErr.Code)

	// The rejected movement must leave the series untouched.
	balance, err := svc.CurrentBalance(ctx, cardID)
	require.NoError(t, err)
	require.Equal(t, 5, balance)
	entries, err := svc.Entries(ctx, cardID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestLedgerAppend_AllowNegative(t *testing.T) {
	svc, _, cardID := newLedgerFixture(t, true)
	ctx := context.Background()

	e, err := svc.Append(ctx, cardID, ledgerDay(1), -3)
	require.NoError(t, err)
	require.Equal(t, -3, e.StockOnHand)
}

func TestLedgerRecompute_BackdatedEventRipplesForward(t *testing.T) {
	svc, stores, cardID := newLedgerFixture(t, false)
	ctx := context.Background()

	record := func(d, delta int) {
		_, err := stores.Events.Record(ctx, domain.MovementEvent{
			StockCardID:   cardID,
			OccurredDate:  ledgerDay(d),
			QuantityDelta: delta,
		})
		require.NoError(t, err)
	}

	record(1, 10)
	record(2, -3)
	require.NoError(t, svc.Recompute(ctx, cardID, ledgerDay(1)))

	before, err := svc.Entries(ctx, cardID)
	require.NoError(t, err)
	require.Len(t, before, 2)
	require.Equal(t, 10, before[0].StockOnHand)
	require.Equal(t, 7, before[1].StockOnHand)

	// A late event lands on day 1; the rebuilt suffix folds it in and every
	// later balance shifts by its delta.
	record(1, 2)
	require.NoError(t, svc.Recompute(ctx, cardID, ledgerDay(1)))

	after, err := svc.Entries(ctx, cardID)
	require.NoError(t, err)
	require.Len(t, after, 2)
	require.Equal(t, ledgerDay(1), after[0].OccurredDate)
	require.Equal(t, 12, after[0].StockOnHand)
	require.Equal(t, ledgerDay(2), after[1].OccurredDate)
	require.Equal(t, 9, after[1].StockOnHand)

	// Processed dates never run backwards along the series.
	require.False(t, after[1].ProcessedDate.Before(after[0].ProcessedDate))
	require.False(t, after[0].ProcessedDate.Before(before[1].ProcessedDate))
}

func TestLedgerRecompute_SeedsFromEarlierEntry(t *testing.T) {
	svc, stores, cardID := newLedgerFixture(t, false)
	ctx := context.Background()

	record := func(d, delta int) {
		_, err := stores.Events.Record(ctx, domain.MovementEvent{
			StockCardID: cardID, OccurredDate: ledgerDay(d), QuantityDelta: delta,
		})
		require.NoError(t, err)
	}
	record(1, 20)
	record(5, -5)
	record(8, -5)
	require.NoError(t, svc.Recompute(ctx, cardID, ledgerDay(1)))

	// Rebuild from day 5 only; the day-1 entry survives and seeds the suffix.
	record(6, 3)
	require.NoError(t, svc.Recompute(ctx, cardID, ledgerDay(5)))

	entries, err := svc.Entries(ctx, cardID)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	require.Equal(t, 20, entries[0].StockOnHand)
	require.Equal(t, 15, entries[1].StockOnHand)
	require.Equal(t, 18, entries[2].StockOnHand)
	require.Equal(t, 13, entries[3].StockOnHand)
}

func TestLedgerRecompute_CollapsesSameDayEvents(t *testing.T) {
	svc, stores, cardID := newLedgerFixture(t, false)
	ctx := context.Background()

	for _, delta := range []int{10, -2, 5} {
		_, err := stores.Events.Record(ctx, domain.MovementEvent{
			StockCardID: cardID, OccurredDate: ledgerDay(4), QuantityDelta: delta,
		})
		require.NoError(t, err)
	}
	require.NoError(t, svc.Recompute(ctx, cardID, ledgerDay(1)))

	entries, err := svc.Entries(ctx, cardID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, ledgerDay(4), entries[0].OccurredDate)
	require.Equal(t, 13, entries[0].StockOnHand)
}

func TestLedgerRecompute_Idempotent(t *testing.T) {
	svc, stores, cardID := newLedgerFixture(t, false)
	ctx := context.Background()

	for d, delta := range map[int]int{1: 10, 2: -3, 3: 7} {
		_, err := stores.Events.Record(ctx, domain.MovementEvent{
			StockCardID: cardID, OccurredDate: ledgerDay(d), QuantityDelta: delta,
		})
		require.NoError(t, err)
	}

	require.NoError(t, svc.Recompute(ctx, cardID, ledgerDay(1)))
	first, err := svc.Entries(ctx, cardID)
	require.NoError(t, err)

	require.NoError(t, svc.Recompute(ctx, cardID, ledgerDay(1)))
	second, err := svc.Entries(ctx, cardID)
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		require.Equal(t, first[i].OccurredDate, second[i].OccurredDate)
		require.Equal(t, first[i].StockOnHand, second[i].StockOnHand)
	}
}

func TestLedgerRecompute_NegativeAbortsWithoutChanges(t *testing.T) {
	svc, stores, cardID := newLedgerFixture(t, false)
	ctx := context.Background()

	record := func(d, delta int) {
		_, err := stores.Events.Record(ctx, domain.MovementEvent{
			StockCardID: cardID, OccurredDate: ledgerDay(d), QuantityDelta: delta,
		})
		require.NoError(t, err)
	}
	record(1, 5)
	require.NoError(t, svc.Recompute(ctx, cardID, ledgerDay(1)))

	// An event that would drive day 2 below zero fails the whole pass.
	record(2, -9)
	err := svc.Recompute(ctx, cardID, ledgerDay(1))
	require.Error(t, err)
	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	require.Equal(t, apperrors.CodeNegativeStockOnHand, appErr.Code)

	entries, err := svc.Entries(ctx, cardID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, 5, entries[0].StockOnHand)
}

func TestLedgerRecompute_UnknownCard(t *testing.T) {
	svc, _, _ := newLedgerFixture(t, false)

	err := svc.Recompute(context.Background(), uuid.New(), ledgerDay(1))
	require.Error(t, err)
	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	require.Equal(t, apperrors.CodeStockCardNotFound, appErr.Code)
}

func TestLedgerBalances(t *testing.T) {
	svc, _, cardID := newLedgerFixture(t, false)
	ctx := context.Background()

	// Empty ledger reads as zero.
	balance, err := svc.CurrentBalance(ctx, cardID)
	require.NoError(t, err)
	require.Equal(t, 0, balance)

	_, err = svc.Append(ctx, cardID, ledgerDay(2), 10)
	require.NoError(t, err)
	_, err = svc.Append(ctx, cardID, ledgerDay(6), -4)
	require.NoError(t, err)

	asOf := func(d int) int {
		b, err := svc.BalanceAsOf(ctx, cardID, ledgerDay(d))
		require.NoError(t, err)
		return b
	}
	require.Equal(t, 0, asOf(1))
	require.Equal(t, 10, asOf(2))
	require.Equal(t, 10, asOf(5))
	require.Equal(t, 6, asOf(6))
	require.Equal(t, 6, asOf(30))
}

func TestLedgerAppend_ConcurrentSameDate(t *testing.T) {
	svc, _, cardID := newLedgerFixture(t, false)
	ctx := context.Background()

	_, err := svc.Append(ctx, cardID, ledgerDay(1), 10)
	require.NoError(t, err)

	const writers = 8
	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Append(ctx, cardID, ledgerDay(2), 1)
		}(i)
	}
	wg.Wait()

	// Exactly one writer lands on day 2; the rest see it as no longer
	// forward-dated.
	var accepted int
	for _, err := range errs {
		if err == nil {
			accepted++
			continue
		}
		appErr, ok := apperrors.IsAppError(err)
		require.True(t, ok)
		require.Equal(t, apperrors.CodeBackdatedMovement, appErr.Code)
	}
	require.Equal(t, 1, accepted)

	entries, err := svc.Entries(ctx, cardID)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	balance, err := svc.CurrentBalance(ctx, cardID)
	require.NoError(t, err)
	require.Equal(t, 11, balance)
}

func TestLedgerRecompute_ConcurrentPasses(t *testing.T) {
	svc, stores, cardID := newLedgerFixture(t, false)
	ctx := context.Background()

	for d, delta := range map[int]int{1: 10, 2: -3, 3: 5} {
		_, err := stores.Events.Record(ctx, domain.MovementEvent{
			StockCardID:   cardID,
			OccurredDate:  ledgerDay(d),
			QuantityDelta: delta,
		})
		require.NoError(t, err)
	}

	const passes = 6
	errs := make([]error, passes)
	var wg sync.WaitGroup
	for i := 0; i < passes; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = svc.Recompute(ctx, cardID, ledgerDay(1))
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	// The passes serialize on the card; the series holds exactly one entry
	// per date with the replayed running balances.
	entries, err := svc.Entries(ctx, cardID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, 10, entries[0].StockOnHand)
	require.Equal(t, 7, entries[1].StockOnHand)
	require.Equal(t, 12, entries[2].StockOnHand)
}

// conflictingEntryStore fails every ReplaceFrom the way a cross-process
// recompute race does.
type conflictingEntryStore struct {
	repository.EntryRepository
}

func (conflictingEntryStore) ReplaceFrom(context.Context, uuid.UUID, time.Time, []domain.CalculatedEntry) (int64, error) {
	return 0, repository.ErrDuplicate
}

func TestLedgerRecompute_ConflictIsRetryable(t *testing.T) {
	store, err := sqlite.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	stores := store.Stores()
	stores.Entries = conflictingEntryStore{stores.Entries}
	svc := NewLedgerService(stores, LedgerOptions{})
	ctx := context.Background()

	card, err := store.Stores().StockCards.GetOrCreate(ctx, domain.StockCardKey{
		FacilityID:  uuid.New(),
		OrderableID: uuid.New(),
	})
	require.NoError(t, err)

	_, err = stores.Events.Record(ctx, domain.MovementEvent{
		StockCardID:   card.ID,
		OccurredDate:  ledgerDay(1),
		QuantityDelta: 5,
	})
	require.NoError(t, err)

	err = svc.Recompute(ctx, card.ID, ledgerDay(1))
	require.Error(t, err)
	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	require.Equal(t, apperrors.CodeRecomputeConflict, appErr.Code)
	require.True(t, errors.Is(err, repository.ErrDuplicate))
}
