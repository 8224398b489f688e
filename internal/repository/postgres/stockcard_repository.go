package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"stocklane.io/stocklane/internal/domain"
	"stocklane.io/stocklane/internal/repository"
)

// StockCardRepository persists ledger identities.
type StockCardRepository struct {
	pool *pgxpool.Pool
}

var _ repository.StockCardRepository = (*StockCardRepository)(nil)

func (r *StockCardRepository) GetOrCreate(ctx context.Context, key domain.StockCardKey) (domain.StockCard, error) {
	var sublot *uuid.UUID
	if key.SublotID != uuid.Nil {
		sublot = &key.SublotID
	}

	id, err := uuid.NewV7()
	if err != nil {
		return domain.StockCard{}, fmt.Errorf("mint stock card id: %w", err)
	}
	// Race-free first-touch creation: losers of the conflict read the
	// winner's row in the follow-up select.
	if _, err := r.pool.Exec(ctx,
		`INSERT INTO stock_cards (id, facility_id, orderable_id, sublot_id)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (facility_id, orderable_id, COALESCE(sublot_id, '00000000-0000-0000-0000-000000000000'::uuid)) DO NOTHING`,
		id, key.FacilityID, key.OrderableID, sublot,
	); err != nil {
		return domain.StockCard{}, fmt.Errorf("insert stock card: %w", err)
	}

	row := r.pool.QueryRow(ctx,
		`SELECT id, facility_id, orderable_id, sublot_id FROM stock_cards
		 WHERE facility_id = $1 AND orderable_id = $2
		   AND COALESCE(sublot_id, '00000000-0000-0000-0000-000000000000'::uuid) = COALESCE($3::uuid, '00000000-0000-0000-0000-000000000000'::uuid)`,
		key.FacilityID, key.OrderableID, sublot,
	)
	return scanStockCard(row)
}

func (r *StockCardRepository) FindByID(ctx context.Context, id uuid.UUID) (domain.StockCard, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, facility_id, orderable_id, sublot_id FROM stock_cards WHERE id = $1`, id,
	)
	return scanStockCard(row)
}

func (r *StockCardRepository) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM stock_cards ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select stock card ids: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stock card id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stock card ids: %w", err)
	}
	return ids, nil
}

func scanStockCard(row pgx.Row) (domain.StockCard, error) {
	var (
		card   domain.StockCard
		sublot *uuid.UUID
	)
	err := row.Scan(&card.ID, &card.Key.FacilityID, &card.Key.OrderableID, &sublot)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.StockCard{}, repository.ErrNotFound
	}
	if err != nil {
		return domain.StockCard{}, fmt.Errorf("scan stock card: %w", err)
	}
	if sublot != nil {
		card.Key.SublotID = *sublot
	}
	return card, nil
}
