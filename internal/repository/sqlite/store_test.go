package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"stocklane.io/stocklane/internal/domain"
	"stocklane.io/stocklane/internal/repository"
)

func newTestStores(t *testing.T) repository.Stores {
	t.Helper()
	store, err := OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store.Stores()
}

func mustNode(t *testing.T, stores repository.Stores) domain.Node {
	t.Helper()
	node := domain.Node{
		ID:                uuid.New(),
		ReferenceID:       uuid.New(),
		IsRefDataFacility: true,
	}
	created, err := stores.Nodes.Create(context.Background(), node)
	require.NoError(t, err)
	return created
}

func day(d int) time.Time {
	return time.Date(2025, 6, d, 0, 0, 0, 0, time.UTC)
}

func TestNodeRepository_CreateFind(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()

	node := mustNode(t, stores)

	got, err := stores.Nodes.FindByID(ctx, node.ID)
	require.NoError(t, err)
	require.Equal(t, node, got)

	_, err = stores.Nodes.FindByID(ctx, uuid.New())
	require.ErrorIs(t, err, repository.ErrNotFound)

	byRef, err := stores.Nodes.FindByReferenceID(ctx, node.ReferenceID)
	require.NoError(t, err)
	require.Equal(t, node, byRef)

	// One node per backing facility/organization.
	dup := domain.Node{ID: uuid.New(), ReferenceID: node.ReferenceID}
	_, err = stores.Nodes.Create(ctx, dup)
	require.ErrorIs(t, err, repository.ErrDuplicate)
}

func TestAssignmentRepository_UniqueKey(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()
	node := mustNode(t, stores)

	edge := domain.Assignment{
		ID:             uuid.New(),
		ProgramID:      uuid.New(),
		FacilityTypeID: uuid.New(),
		NodeID:         node.ID,
		Direction:      domain.DirectionSource,
	}
	_, err := stores.Assignments.Create(ctx, edge)
	require.NoError(t, err)

	dup := edge
	dup.ID = uuid.New()
	_, err = stores.Assignments.Create(ctx, dup)
	require.ErrorIs(t, err, repository.ErrDuplicate)

	// Same key, other direction is a distinct edge.
	other := edge
	other.ID = uuid.New()
	other.Direction = domain.DirectionDestination
	_, err = stores.Assignments.Create(ctx, other)
	require.NoError(t, err)
}

func TestAssignmentRepository_FindByKeyAndID(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()
	node := mustNode(t, stores)

	edge := domain.Assignment{
		ID:             uuid.New(),
		ProgramID:      uuid.New(),
		FacilityTypeID: uuid.New(),
		NodeID:         node.ID,
		Direction:      domain.DirectionDestination,
	}
	_, err := stores.Assignments.Create(ctx, edge)
	require.NoError(t, err)

	got, err := stores.Assignments.FindByKey(ctx, edge.ProgramID, edge.FacilityTypeID, edge.NodeID, edge.Direction)
	require.NoError(t, err)
	require.Equal(t, edge, got)

	// Wrong direction misses.
	_, err = stores.Assignments.FindByKey(ctx, edge.ProgramID, edge.FacilityTypeID, edge.NodeID, domain.DirectionSource)
	require.ErrorIs(t, err, repository.ErrNotFound)

	got, err = stores.Assignments.FindByID(ctx, edge.ID, edge.Direction)
	require.NoError(t, err)
	require.Equal(t, edge, got)
}

func TestAssignmentRepository_FindPage(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()

	programID := uuid.New()
	facilityTypeID := uuid.New()
	for i := 0; i < 5; i++ {
		node := mustNode(t, stores)
		_, err := stores.Assignments.Create(ctx, domain.Assignment{
			ID:             uuid.New(),
			ProgramID:      programID,
			FacilityTypeID: facilityTypeID,
			NodeID:         node.ID,
			Direction:      domain.DirectionSource,
		})
		require.NoError(t, err)
	}

	page, err := stores.Assignments.FindPage(ctx, domain.DirectionSource,
		repository.AssignmentFilter{ProgramID: &programID, FacilityTypeID: &facilityTypeID},
		domain.PageRequest{Page: 0, Size: 3, Sort: "node_id"},
	)
	require.NoError(t, err)
	require.Len(t, page.Content, 3)
	require.EqualValues(t, 5, page.TotalElements)

	page, err = stores.Assignments.FindPage(ctx, domain.DirectionSource,
		repository.AssignmentFilter{ProgramID: &programID, FacilityTypeID: &facilityTypeID},
		domain.PageRequest{Page: 1, Size: 3},
	)
	require.NoError(t, err)
	require.Len(t, page.Content, 2)

	// No filter matches everything of the direction; empty result is a page.
	otherProgram := uuid.New()
	page, err = stores.Assignments.FindPage(ctx, domain.DirectionSource,
		repository.AssignmentFilter{ProgramID: &otherProgram},
		domain.PageRequest{Size: 10},
	)
	require.NoError(t, err)
	require.Empty(t, page.Content)
	require.EqualValues(t, 0, page.TotalElements)
}

func TestAssignmentRepository_DeleteByID(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()
	node := mustNode(t, stores)

	edge := domain.Assignment{
		ID:             uuid.New(),
		ProgramID:      uuid.New(),
		FacilityTypeID: uuid.New(),
		NodeID:         node.ID,
		Direction:      domain.DirectionSource,
	}
	_, err := stores.Assignments.Create(ctx, edge)
	require.NoError(t, err)

	require.NoError(t, stores.Assignments.DeleteByID(ctx, edge.ID, edge.Direction))
	require.ErrorIs(t, stores.Assignments.DeleteByID(ctx, edge.ID, edge.Direction), repository.ErrNotFound)
}

func TestStockCardRepository_GetOrCreate(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()

	key := domain.StockCardKey{
		FacilityID:  uuid.New(),
		OrderableID: uuid.New(),
		SublotID:    uuid.New(),
	}
	card, err := stores.StockCards.GetOrCreate(ctx, key)
	require.NoError(t, err)
	require.Equal(t, key, card.Key)

	again, err := stores.StockCards.GetOrCreate(ctx, key)
	require.NoError(t, err)
	require.Equal(t, card.ID, again.ID, "second touch must return the same card")

	found, err := stores.StockCards.FindByID(ctx, card.ID)
	require.NoError(t, err)
	require.Equal(t, card, found)

	ids, err := stores.StockCards.ListIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{card.ID}, ids)
}

func TestEventRepository_OrderingAndSequence(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()

	card, err := stores.StockCards.GetOrCreate(ctx, domain.StockCardKey{
		FacilityID: uuid.New(), OrderableID: uuid.New(),
	})
	require.NoError(t, err)

	// Recorded out of date order on purpose.
	for _, ev := range []domain.MovementEvent{
		{StockCardID: card.ID, OccurredDate: day(2), QuantityDelta: -3},
		{StockCardID: card.ID, OccurredDate: day(1), QuantityDelta: 10},
		{StockCardID: card.ID, OccurredDate: day(1), QuantityDelta: 2},
	} {
		_, err := stores.Events.Record(ctx, ev)
		require.NoError(t, err)
	}

	events, err := stores.Events.ListFrom(ctx, card.ID, day(1))
	require.NoError(t, err)
	require.Len(t, events, 3)

	// Date ascending, same-day ties broken by recording sequence.
	require.Equal(t, 10, events[0].QuantityDelta)
	require.Equal(t, 2, events[1].QuantityDelta)
	require.Equal(t, -3, events[2].QuantityDelta)
	require.Less(t, events[0].Sequence, events[1].Sequence)

	fromDay2, err := stores.Events.ListFrom(ctx, card.ID, day(2))
	require.NoError(t, err)
	require.Len(t, fromDay2, 1)

	require.NoError(t, stores.Events.Delete(ctx, fromDay2[0].ID))
	require.ErrorIs(t, stores.Events.Delete(ctx, fromDay2[0].ID), repository.ErrNotFound)
}

func TestEntryRepository_LatestQueries(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()

	card, err := stores.StockCards.GetOrCreate(ctx, domain.StockCardKey{
		FacilityID: uuid.New(), OrderableID: uuid.New(),
	})
	require.NoError(t, err)

	now := time.Now().UTC()
	for i, soh := range []int{10, 7, 12} {
		_, err := stores.Entries.Insert(ctx, domain.CalculatedEntry{
			StockCardID:   card.ID,
			StockOnHand:   soh,
			OccurredDate:  day(i + 1),
			ProcessedDate: now.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	latest, err := stores.Entries.Latest(ctx, card.ID)
	require.NoError(t, err)
	require.Equal(t, 12, latest.StockOnHand)

	before, err := stores.Entries.LatestBefore(ctx, card.ID, day(3))
	require.NoError(t, err)
	require.Equal(t, 7, before.StockOnHand)

	onOrBefore, err := stores.Entries.LatestOnOrBefore(ctx, card.ID, day(3))
	require.NoError(t, err)
	require.Equal(t, 12, onOrBefore.StockOnHand)

	_, err = stores.Entries.LatestBefore(ctx, card.ID, day(1))
	require.ErrorIs(t, err, repository.ErrNotFound)

	list, err := stores.Entries.ListByCard(ctx, card.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, 10, list[0].StockOnHand)
}

func TestEntryRepository_OneEntryPerDate(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()

	card, err := stores.StockCards.GetOrCreate(ctx, domain.StockCardKey{
		FacilityID: uuid.New(), OrderableID: uuid.New(),
	})
	require.NoError(t, err)

	_, err = stores.Entries.Insert(ctx, domain.CalculatedEntry{
		StockCardID: card.ID, StockOnHand: 5, OccurredDate: day(1), ProcessedDate: time.Now(),
	})
	require.NoError(t, err)

	_, err = stores.Entries.Insert(ctx, domain.CalculatedEntry{
		StockCardID: card.ID, StockOnHand: 6, OccurredDate: day(1), ProcessedDate: time.Now(),
	})
	require.ErrorIs(t, err, repository.ErrDuplicate)
}

func TestEntryRepository_ReplaceFrom(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()

	card, err := stores.StockCards.GetOrCreate(ctx, domain.StockCardKey{
		FacilityID: uuid.New(), OrderableID: uuid.New(),
	})
	require.NoError(t, err)

	now := time.Now().UTC()
	for i, soh := range []int{10, 7, 12} {
		_, err := stores.Entries.Insert(ctx, domain.CalculatedEntry{
			StockCardID:   card.ID,
			StockOnHand:   soh,
			OccurredDate:  day(i + 1),
			ProcessedDate: now,
		})
		require.NoError(t, err)
	}

	deleted, err := stores.Entries.ReplaceFrom(ctx, card.ID, day(2), []domain.CalculatedEntry{
		{StockCardID: card.ID, StockOnHand: 9, OccurredDate: day(2), ProcessedDate: now},
		{StockCardID: card.ID, StockOnHand: 14, OccurredDate: day(3), ProcessedDate: now},
		{StockCardID: card.ID, StockOnHand: 20, OccurredDate: day(4), ProcessedDate: now},
	})
	require.NoError(t, err)
	require.EqualValues(t, 2, deleted)

	list, err := stores.Entries.ListByCard(ctx, card.ID)
	require.NoError(t, err)
	require.Len(t, list, 4)
	require.Equal(t, 10, list[0].StockOnHand) // day1 untouched
	require.Equal(t, 9, list[1].StockOnHand)
	require.Equal(t, 20, list[3].StockOnHand)
}
