package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"stocklane.io/stocklane/internal/domain"
	"stocklane.io/stocklane/internal/repository"
)

// EntryRepository persists calculated stock-on-hand entries.
type EntryRepository struct {
	pool *pgxpool.Pool
}

var _ repository.EntryRepository = (*EntryRepository)(nil)

const entrySelect = `SELECT id, stock_card_id, stock_on_hand, occurred_date, processed_date FROM calculated_stocks_on_hand`

func (r *EntryRepository) Insert(ctx context.Context, e domain.CalculatedEntry) (domain.CalculatedEntry, error) {
	if e.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.CalculatedEntry{}, fmt.Errorf("mint entry id: %w", err)
		}
		e.ID = id
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO calculated_stocks_on_hand (id, stock_card_id, stock_on_hand, occurred_date, processed_date)
		 VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.StockCardID, e.StockOnHand, domain.DateOf(e.OccurredDate), e.ProcessedDate,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.CalculatedEntry{}, repository.ErrDuplicate
		}
		return domain.CalculatedEntry{}, fmt.Errorf("insert entry: %w", err)
	}
	e.OccurredDate = domain.DateOf(e.OccurredDate)
	return e, nil
}

func (r *EntryRepository) Latest(ctx context.Context, stockCardID uuid.UUID) (domain.CalculatedEntry, error) {
	row := r.pool.QueryRow(ctx,
		entrySelect+` WHERE stock_card_id = $1
		 ORDER BY occurred_date DESC, processed_date DESC LIMIT 1`,
		stockCardID,
	)
	return scanEntry(row)
}

func (r *EntryRepository) LatestBefore(ctx context.Context, stockCardID uuid.UUID, date time.Time) (domain.CalculatedEntry, error) {
	row := r.pool.QueryRow(ctx,
		entrySelect+` WHERE stock_card_id = $1 AND occurred_date < $2
		 ORDER BY occurred_date DESC, processed_date DESC LIMIT 1`,
		stockCardID, domain.DateOf(date),
	)
	return scanEntry(row)
}

func (r *EntryRepository) LatestOnOrBefore(ctx context.Context, stockCardID uuid.UUID, date time.Time) (domain.CalculatedEntry, error) {
	row := r.pool.QueryRow(ctx,
		entrySelect+` WHERE stock_card_id = $1 AND occurred_date <= $2
		 ORDER BY occurred_date DESC, processed_date DESC LIMIT 1`,
		stockCardID, domain.DateOf(date),
	)
	return scanEntry(row)
}

func (r *EntryRepository) ListByCard(ctx context.Context, stockCardID uuid.UUID) ([]domain.CalculatedEntry, error) {
	rows, err := r.pool.Query(ctx,
		entrySelect+` WHERE stock_card_id = $1 ORDER BY occurred_date, processed_date`,
		stockCardID,
	)
	if err != nil {
		return nil, fmt.Errorf("select entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.CalculatedEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

func (r *EntryRepository) ReplaceFrom(ctx context.Context, stockCardID uuid.UUID, from time.Time, entries []domain.CalculatedEntry) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	tag, err := tx.Exec(ctx,
		`DELETE FROM calculated_stocks_on_hand WHERE stock_card_id = $1 AND occurred_date >= $2`,
		stockCardID, domain.DateOf(from),
	)
	if err != nil {
		return 0, fmt.Errorf("delete superseded entries: %w", err)
	}

	if len(entries) > 0 {
		batch := &pgx.Batch{}
		for _, e := range entries {
			id := e.ID
			if id == uuid.Nil {
				minted, err := uuid.NewV7()
				if err != nil {
					return 0, fmt.Errorf("mint entry id: %w", err)
				}
				id = minted
			}
			batch.Queue(
				`INSERT INTO calculated_stocks_on_hand (id, stock_card_id, stock_on_hand, occurred_date, processed_date)
				 VALUES ($1, $2, $3, $4, $5)`,
				id, e.StockCardID, e.StockOnHand, domain.DateOf(e.OccurredDate), e.ProcessedDate,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			if isUniqueViolation(err) {
				return 0, repository.ErrDuplicate
			}
			return 0, fmt.Errorf("insert rebuilt entries: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit replace: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanEntry(row pgx.Row) (domain.CalculatedEntry, error) {
	var e domain.CalculatedEntry
	err := row.Scan(&e.ID, &e.StockCardID, &e.StockOnHand, &e.OccurredDate, &e.ProcessedDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.CalculatedEntry{}, repository.ErrNotFound
	}
	if err != nil {
		return domain.CalculatedEntry{}, fmt.Errorf("scan entry: %w", err)
	}
	e.OccurredDate = domain.DateOf(e.OccurredDate)
	return e, nil
}
