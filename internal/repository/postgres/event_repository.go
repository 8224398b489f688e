package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"stocklane.io/stocklane/internal/domain"
	"stocklane.io/stocklane/internal/repository"
)

// EventRepository persists movement events. The BIGSERIAL sequence is the
// stable same-day tie-break used by recompute.
type EventRepository struct {
	pool *pgxpool.Pool
}

var _ repository.EventRepository = (*EventRepository)(nil)

func (r *EventRepository) Record(ctx context.Context, ev domain.MovementEvent) (domain.MovementEvent, error) {
	if ev.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.MovementEvent{}, fmt.Errorf("mint event id: %w", err)
		}
		ev.ID = id
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO stock_events (id, stock_card_id, occurred_date, quantity_delta)
		 VALUES ($1, $2, $3, $4)
		 RETURNING sequence`,
		ev.ID, ev.StockCardID, domain.DateOf(ev.OccurredDate), ev.QuantityDelta,
	).Scan(&ev.Sequence)
	if err != nil {
		return domain.MovementEvent{}, fmt.Errorf("insert event: %w", err)
	}
	ev.OccurredDate = domain.DateOf(ev.OccurredDate)
	return ev, nil
}

func (r *EventRepository) ListFrom(ctx context.Context, stockCardID uuid.UUID, from time.Time) ([]domain.MovementEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, stock_card_id, occurred_date, quantity_delta, sequence
		 FROM stock_events
		 WHERE stock_card_id = $1 AND occurred_date >= $2
		 ORDER BY occurred_date, sequence`,
		stockCardID, domain.DateOf(from),
	)
	if err != nil {
		return nil, fmt.Errorf("select events: %w", err)
	}
	defer rows.Close()

	var events []domain.MovementEvent
	for rows.Next() {
		var ev domain.MovementEvent
		if err := rows.Scan(&ev.ID, &ev.StockCardID, &ev.OccurredDate, &ev.QuantityDelta, &ev.Sequence); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.OccurredDate = domain.DateOf(ev.OccurredDate)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func (r *EventRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM stock_events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
