// Package usecase provides application use cases that compose the
// assignment graph, the movement event store and the ledger.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"go.uber.org/zap"

	"stocklane.io/stocklane/internal/domain"
	"stocklane.io/stocklane/internal/jobs"
	apperrors "stocklane.io/stocklane/internal/pkg/errors"
	"stocklane.io/stocklane/internal/pkg/logger"
	"stocklane.io/stocklane/internal/repository"
	"stocklane.io/stocklane/internal/service"
)

// MovementInput describes one stock movement to apply. At least one of
// SourceNodeID and DestinationNodeID must be set; the set ones must be
// authorized for the program and facility type.
type MovementInput struct {
	ProgramID      uuid.UUID
	FacilityTypeID uuid.UUID

	// SourceNodeID is where the stock comes from; Nil when not applicable.
	SourceNodeID uuid.UUID

	// DestinationNodeID is where the stock goes; Nil when not applicable.
	DestinationNodeID uuid.UUID

	Card          domain.StockCardKey
	OccurredDate  time.Time
	QuantityDelta int
}

// MovementResult reports what applying a movement did to the ledger.
type MovementResult struct {
	StockCard domain.StockCard
	Event     domain.MovementEvent

	// Entry is the appended ledger entry on the fast path, nil when the
	// movement was folded in by a recompute instead.
	Entry *domain.CalculatedEntry

	// RecomputeEnqueued is true when the rebuild was handed to the job queue
	// rather than run synchronously.
	RecomputeEnqueued bool
}

// ApplyMovement authorizes a movement against the assignment graph, records
// it as an event and folds it into the calculated ledger. Forward-dated
// movements append directly; movements on or before the latest entry trigger
// a recompute of the affected suffix, inline or via the job queue when one is
// wired.
type ApplyMovement struct {
	assignments *service.AssignmentService
	ledger      *service.LedgerService
	cards       repository.StockCardRepository
	events      repository.EventRepository
	riverClient *river.Client[pgx.Tx]
}

// NewApplyMovement creates the use case. riverClient may be nil; recomputes
// then run synchronously within the call.
func NewApplyMovement(
	assignments *service.AssignmentService,
	ledger *service.LedgerService,
	stores repository.Stores,
	riverClient *river.Client[pgx.Tx],
) *ApplyMovement {
	return &ApplyMovement{
		assignments: assignments,
		ledger:      ledger,
		cards:       stores.StockCards,
		events:      stores.Events,
		riverClient: riverClient,
	}
}

// Execute applies one movement. A rejected movement leaves no trace: the
// recorded event is removed again if the ledger refuses the change.
func (u *ApplyMovement) Execute(ctx context.Context, in MovementInput) (MovementResult, error) {
	if err := u.authorize(ctx, in); err != nil {
		return MovementResult{}, err
	}

	card, err := u.cards.GetOrCreate(ctx, in.Card)
	if err != nil {
		return MovementResult{}, fmt.Errorf("resolve stock card: %w", err)
	}

	ev, err := u.events.Record(ctx, domain.MovementEvent{
		StockCardID:   card.ID,
		OccurredDate:  in.OccurredDate,
		QuantityDelta: in.QuantityDelta,
	})
	if err != nil {
		return MovementResult{}, fmt.Errorf("record movement event: %w", err)
	}

	result := MovementResult{StockCard: card, Event: ev}

	entry, err := u.ledger.Append(ctx, card.ID, in.OccurredDate, in.QuantityDelta)
	if err == nil {
		result.Entry = &entry
		return result, nil
	}

	appErr, ok := apperrors.IsAppError(err)
	if !ok || appErr.Code != apperrors.CodeBackdatedMovement {
		u.compensate(ctx, ev.ID)
		return MovementResult{}, err
	}

	// Backdated or same-day movement: the suffix from its date on must be
	// rebuilt from events.
	if u.riverClient != nil {
		res, err := u.riverClient.Insert(ctx, jobs.RecomputeArgs{
			StockCardID: card.ID,
			FromDate:    domain.DateOf(in.OccurredDate).Format("2006-01-02"),
		}, nil)
		if err != nil {
			u.compensate(ctx, ev.ID)
			return MovementResult{}, fmt.Errorf("enqueue recompute: %w", err)
		}
		// A duplicate match on a job that already started may have read the
		// event list before this event was recorded; rebuild inline so the
		// new event cannot be skipped.
		if res.UniqueSkippedAsDuplicate && res.Job != nil && res.Job.State == rivertype.JobStateRunning {
			if err := u.ledger.Recompute(ctx, card.ID, in.OccurredDate); err != nil {
				u.compensate(ctx, ev.ID)
				return MovementResult{}, err
			}
			return result, nil
		}
		result.RecomputeEnqueued = true
		return result, nil
	}

	if err := u.ledger.Recompute(ctx, card.ID, in.OccurredDate); err != nil {
		u.compensate(ctx, ev.ID)
		return MovementResult{}, err
	}
	return result, nil
}

func (u *ApplyMovement) authorize(ctx context.Context, in MovementInput) error {
	if in.SourceNodeID == uuid.Nil && in.DestinationNodeID == uuid.Nil {
		return apperrors.BadRequest(apperrors.CodeMovementUnauthorized,
			"movement must name a source or destination node")
	}
	if in.SourceNodeID != uuid.Nil {
		_, err := u.assignments.FindOne(ctx, in.ProgramID, in.FacilityTypeID, in.SourceNodeID, domain.DirectionSource)
		if err != nil {
			if appErr, ok := apperrors.IsAppError(err); ok && appErr.Code == apperrors.CodeAssignmentNotFound {
				return apperrors.Wrap(err, apperrors.CodeSourceNotFound,
					"node is not a valid source for this program and facility type", appErr.HTTPStatus)
			}
			return err
		}
	}
	if in.DestinationNodeID != uuid.Nil {
		_, err := u.assignments.FindOne(ctx, in.ProgramID, in.FacilityTypeID, in.DestinationNodeID, domain.DirectionDestination)
		if err != nil {
			if appErr, ok := apperrors.IsAppError(err); ok && appErr.Code == apperrors.CodeAssignmentNotFound {
				return apperrors.Wrap(err, apperrors.CodeDestinationNotFound,
					"node is not a valid destination for this program and facility type", appErr.HTTPStatus)
			}
			return err
		}
	}
	return nil
}

// compensate removes the event of a movement the ledger rejected. Best
// effort; a leftover event would first surface in the next recompute, so it
// is worth a warning but not a failure.
func (u *ApplyMovement) compensate(ctx context.Context, eventID uuid.UUID) {
	if err := u.events.Delete(ctx, eventID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		logger.Warn("failed to remove event of rejected movement",
			zap.String("eventId", eventID.String()),
			zap.Error(err))
	}
}
