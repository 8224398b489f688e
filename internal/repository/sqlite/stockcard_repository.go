package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"stocklane.io/stocklane/internal/domain"
	"stocklane.io/stocklane/internal/repository"
)

// StockCardRepository persists ledger identities. Cards are created lazily
// through GetOrCreate and never deleted here.
type StockCardRepository struct {
	db *sql.DB
}

var _ repository.StockCardRepository = (*StockCardRepository)(nil)

func (r *StockCardRepository) GetOrCreate(ctx context.Context, key domain.StockCardKey) (domain.StockCard, error) {
	sublot := ""
	if key.SublotID != uuid.Nil {
		sublot = key.SublotID.String()
	}

	id, err := uuid.NewV7()
	if err != nil {
		return domain.StockCard{}, fmt.Errorf("mint stock card id: %w", err)
	}
	// ON CONFLICT DO NOTHING keeps first-touch creation race-free; the
	// follow-up select reads whichever insert won.
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO stock_cards (id, facility_id, orderable_id, sublot_id)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (facility_id, orderable_id, sublot_id) DO NOTHING`,
		id.String(), key.FacilityID.String(), key.OrderableID.String(), sublot,
	); err != nil {
		return domain.StockCard{}, fmt.Errorf("insert stock card: %w", err)
	}

	row := r.db.QueryRowContext(ctx,
		`SELECT id, facility_id, orderable_id, sublot_id FROM stock_cards
		 WHERE facility_id = ? AND orderable_id = ? AND sublot_id = ?`,
		key.FacilityID.String(), key.OrderableID.String(), sublot,
	)
	return scanStockCard(row)
}

func (r *StockCardRepository) FindByID(ctx context.Context, id uuid.UUID) (domain.StockCard, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, facility_id, orderable_id, sublot_id FROM stock_cards WHERE id = ?`,
		id.String(),
	)
	card, err := scanStockCard(row)
	if err != nil {
		return domain.StockCard{}, err
	}
	return card, nil
}

func (r *StockCardRepository) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM stock_cards ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select stock card ids: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var idStr string
		if err := rows.Scan(&idStr); err != nil {
			return nil, fmt.Errorf("scan stock card id: %w", err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("parse stock card id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stock card ids: %w", err)
	}
	return ids, nil
}

func scanStockCard(row *sql.Row) (domain.StockCard, error) {
	var idStr, facilityStr, orderableStr, sublotStr string
	err := row.Scan(&idStr, &facilityStr, &orderableStr, &sublotStr)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.StockCard{}, repository.ErrNotFound
	}
	if err != nil {
		return domain.StockCard{}, fmt.Errorf("select stock card: %w", err)
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return domain.StockCard{}, fmt.Errorf("parse stock card id: %w", err)
	}
	facilityID, err := uuid.Parse(facilityStr)
	if err != nil {
		return domain.StockCard{}, fmt.Errorf("parse facility id: %w", err)
	}
	orderableID, err := uuid.Parse(orderableStr)
	if err != nil {
		return domain.StockCard{}, fmt.Errorf("parse orderable id: %w", err)
	}
	sublotID := uuid.Nil
	if sublotStr != "" {
		sublotID, err = uuid.Parse(sublotStr)
		if err != nil {
			return domain.StockCard{}, fmt.Errorf("parse sublot id: %w", err)
		}
	}
	return domain.StockCard{
		ID: id,
		Key: domain.StockCardKey{
			FacilityID:  facilityID,
			OrderableID: orderableID,
			SublotID:    sublotID,
		},
	}, nil
}
