package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"stocklane.io/stocklane/internal/domain"
	"stocklane.io/stocklane/internal/repository"
)

// EventRepository persists movement events. The AUTOINCREMENT rowid is the
// per-store sequence; it only ever grows, which gives recompute its stable
// same-day tie-break.
type EventRepository struct {
	db *sql.DB
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
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO stock_events (id, stock_card_id, occurred_date, quantity_delta)
		 VALUES (?, ?, ?, ?)`,
		ev.ID.String(), ev.StockCardID.String(), encodeDate(ev.OccurredDate), ev.QuantityDelta,
	)
	if err != nil {
		return domain.MovementEvent{}, fmt.Errorf("insert event: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return domain.MovementEvent{}, fmt.Errorf("event sequence: %w", err)
	}
	ev.Sequence = seq
	ev.OccurredDate = domain.DateOf(ev.OccurredDate)
	return ev, nil
}

func (r *EventRepository) ListFrom(ctx context.Context, stockCardID uuid.UUID, from time.Time) ([]domain.MovementEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, stock_card_id, occurred_date, quantity_delta, sequence
		 FROM stock_events
		 WHERE stock_card_id = ? AND occurred_date >= ?
		 ORDER BY occurred_date, sequence`,
		stockCardID.String(), encodeDate(from),
	)
	if err != nil {
		return nil, fmt.Errorf("select events: %w", err)
	}
	defer rows.Close()

	var events []domain.MovementEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func (r *EventRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM stock_events WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func scanEvent(rows *sql.Rows) (domain.MovementEvent, error) {
	var (
		idStr, cardStr, dateStr string
		delta                   int
		seq                     int64
	)
	if err := rows.Scan(&idStr, &cardStr, &dateStr, &delta, &seq); err != nil {
		return domain.MovementEvent{}, fmt.Errorf("scan event: %w", err)
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return domain.MovementEvent{}, fmt.Errorf("parse event id: %w", err)
	}
	cardID, err := uuid.Parse(cardStr)
	if err != nil {
		return domain.MovementEvent{}, fmt.Errorf("parse stock card id: %w", err)
	}
	date, err := decodeDate(dateStr)
	if err != nil {
		return domain.MovementEvent{}, fmt.Errorf("parse occurred date: %w", err)
	}
	return domain.MovementEvent{
		ID:            id,
		StockCardID:   cardID,
		OccurredDate:  date,
		QuantityDelta: delta,
		Sequence:      seq,
	}, nil
}
