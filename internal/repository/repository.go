// Package repository defines the persistence contracts consumed by the
// stock core. Implementations live in the postgres and sqlite sub-packages;
// services never see a driver type.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"stocklane.io/stocklane/internal/domain"
)

// Store-level sentinel errors. Services translate these into typed
// application errors; callers outside the service layer should not see them.
var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("repository: not found")

	// ErrDuplicate is returned when an insert violates a uniqueness
	// constraint. The assignment key check relies on this: the unique index
	// makes concurrent duplicate creates impossible, so the check-then-act
	// race of a read-side guard never arises.
	ErrDuplicate = errors.New("repository: duplicate key")
)

// NodeRepository persists movement endpoint identities. A reference-data
// facility or ad-hoc organization maps to at most one node, enforced by a
// unique index on reference_id.
type NodeRepository interface {
	Create(ctx context.Context, node domain.Node) (domain.Node, error)
	FindByID(ctx context.Context, id uuid.UUID) (domain.Node, error)
	FindByReferenceID(ctx context.Context, referenceID uuid.UUID) (domain.Node, error)
}

// AssignmentFilter narrows FindPage. Nil program or facility type means
// "match any".
type AssignmentFilter struct {
	ProgramID      *uuid.UUID
	FacilityTypeID *uuid.UUID
}

// AssignmentRepository persists authorization edges.
type AssignmentRepository interface {
	// Create inserts the edge and returns it. ErrDuplicate when an edge with
	// the same (program, facility type, node, direction) already exists.
	Create(ctx context.Context, a domain.Assignment) (domain.Assignment, error)

	// FindByKey resolves the unique edge for the key, ErrNotFound if absent.
	FindByKey(ctx context.Context, programID, facilityTypeID, nodeID uuid.UUID, dir domain.Direction) (domain.Assignment, error)

	// FindByID resolves an edge by id and direction, ErrNotFound if absent.
	FindByID(ctx context.Context, id uuid.UUID, dir domain.Direction) (domain.Assignment, error)

	// FindPage returns the matching edges of one direction, sliced per req.
	// An empty result is a page with no content, not an error.
	FindPage(ctx context.Context, dir domain.Direction, filter AssignmentFilter, req domain.PageRequest) (domain.Page[domain.Assignment], error)

	// DeleteByID removes the edge, ErrNotFound if absent.
	DeleteByID(ctx context.Context, id uuid.UUID, dir domain.Direction) error
}

// StockCardRepository persists ledger identities.
type StockCardRepository interface {
	// GetOrCreate returns the card for the key, creating it on first touch.
	GetOrCreate(ctx context.Context, key domain.StockCardKey) (domain.StockCard, error)

	FindByID(ctx context.Context, id uuid.UUID) (domain.StockCard, error)

	// ListIDs returns every card id; used by ledger-wide rebuilds.
	ListIDs(ctx context.Context) ([]uuid.UUID, error)
}

// EventRepository persists movement events, the ledger's input stream.
type EventRepository interface {
	// Record stores the event and returns it with its store-assigned
	// sequence number filled in.
	Record(ctx context.Context, ev domain.MovementEvent) (domain.MovementEvent, error)

	// ListFrom returns the card's events with occurred date >= from,
	// ordered by (occurred_date, sequence).
	ListFrom(ctx context.Context, stockCardID uuid.UUID, from time.Time) ([]domain.MovementEvent, error)

	// Delete removes a recorded event. Used to compensate when the ledger
	// rejects the movement the event described.
	Delete(ctx context.Context, id uuid.UUID) error
}

// EntryRepository persists calculated stock-on-hand entries.
type EntryRepository interface {
	Insert(ctx context.Context, e domain.CalculatedEntry) (domain.CalculatedEntry, error)

	// Latest returns the entry with the greatest (occurred_date,
	// processed_date) for the card, ErrNotFound on an empty ledger.
	Latest(ctx context.Context, stockCardID uuid.UUID) (domain.CalculatedEntry, error)

	// LatestBefore returns the latest entry with occurred date strictly
	// before the given date, ErrNotFound if none.
	LatestBefore(ctx context.Context, stockCardID uuid.UUID, date time.Time) (domain.CalculatedEntry, error)

	// LatestOnOrBefore returns the latest entry with occurred date <= the
	// given date, ErrNotFound if none.
	LatestOnOrBefore(ctx context.Context, stockCardID uuid.UUID, date time.Time) (domain.CalculatedEntry, error)

	// ListByCard returns the card's entries ordered by
	// (occurred_date, processed_date).
	ListByCard(ctx context.Context, stockCardID uuid.UUID) ([]domain.CalculatedEntry, error)

	// ReplaceFrom atomically deletes the card's entries with occurred date
	// >= from and inserts the replacements. Either everything lands or
	// nothing does; a failed recompute must leave the series untouched.
	// Returns the number of deleted entries.
	ReplaceFrom(ctx context.Context, stockCardID uuid.UUID, from time.Time, entries []domain.CalculatedEntry) (int64, error)
}

// Stores bundles one backend's repositories for wiring.
type Stores struct {
	Nodes       NodeRepository
	Assignments AssignmentRepository
	StockCards  StockCardRepository
	Events      EventRepository
	Entries     EntryRepository
}
