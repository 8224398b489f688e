// Package domain provides domain models for Stocklane.
//
// All repository and service methods speak these types; persistence rows
// never leak across the boundary.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Node is a movement endpoint eligible to source or receive stock.
// A node is backed either by a facility or by a reference-data point;
// ReferenceID points at one or the other depending on IsRefDataFacility.
// Nodes are immutable once created.
type Node struct {
	ID                uuid.UUID `json:"id"`
	ReferenceID       uuid.UUID `json:"reference_id"`
	IsRefDataFacility bool      `json:"is_refdata_facility"`
}

// Direction tags which side of a movement an assignment authorizes.
type Direction string

const (
	DirectionSource      Direction = "SOURCE"
	DirectionDestination Direction = "DESTINATION"
)

// Valid reports whether the direction is one of the two known variants.
func (d Direction) Valid() bool {
	return d == DirectionSource || d == DirectionDestination
}

// String implements fmt.Stringer.
func (d Direction) String() string { return string(d) }

// Assignment is an authorization edge: the (program, facility type, node)
// triple may act as the given direction of a stock movement. The triple is
// unique per direction. Assignments are created and deleted, never updated.
type Assignment struct {
	ID             uuid.UUID `json:"id"`
	ProgramID      uuid.UUID `json:"program_id"`
	FacilityTypeID uuid.UUID `json:"facility_type_id"`
	NodeID         uuid.UUID `json:"node_id"`
	Direction      Direction `json:"direction"`
}

// StockCardKey identifies the (facility, orderable, sub-lot) combination a
// stock card tracks. SublotID is Nil for cards that track whole lots.
type StockCardKey struct {
	FacilityID  uuid.UUID `json:"facility_id"`
	OrderableID uuid.UUID `json:"orderable_id"`
	SublotID    uuid.UUID `json:"sublot_id"`
}

// StockCard is the ledger identity for one sub-lot's stock at one
// facility/product combination. Created lazily by the first movement that
// touches the combination; never deleted while history references it.
type StockCard struct {
	ID  uuid.UUID    `json:"id"`
	Key StockCardKey `json:"key"`
}

// MovementEvent is one signed quantity change against a stock card.
// Sequence is store-assigned and strictly increasing per card; it is the
// stable tie-break for same-day events during recompute.
type MovementEvent struct {
	ID            uuid.UUID `json:"id"`
	StockCardID   uuid.UUID `json:"stock_card_id"`
	OccurredDate  time.Time `json:"occurred_date"`
	QuantityDelta int       `json:"quantity_delta"`
	Sequence      int64     `json:"sequence"`
}

// CalculatedEntry is one dated point in a stock card's running-balance
// series. For a fixed card, entries are totally ordered by
// (OccurredDate, ProcessedDate) and no two surviving entries share an
// OccurredDate.
type CalculatedEntry struct {
	ID            uuid.UUID `json:"id"`
	StockCardID   uuid.UUID `json:"stock_card_id"`
	StockOnHand   int       `json:"stock_on_hand"`
	OccurredDate  time.Time `json:"occurred_date"`
	ProcessedDate time.Time `json:"processed_date"`
}

// DateOf normalizes t to its calendar date: midnight UTC.
// Occurred dates are business dates; everything below the day is noise.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SameDate reports whether a and b fall on the same calendar date (UTC).
func SameDate(a, b time.Time) bool {
	return DateOf(a).Equal(DateOf(b))
}
