package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"stocklane.io/stocklane/internal/domain"
	"stocklane.io/stocklane/internal/repository"
)

// EntryRepository persists calculated stock-on-hand entries.
type EntryRepository struct {
	db *sql.DB
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
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO calculated_stocks_on_hand (id, stock_card_id, stock_on_hand, occurred_date, processed_date)
		 VALUES (?, ?, ?, ?, ?)`,
		e.ID.String(), e.StockCardID.String(), e.StockOnHand,
		encodeDate(e.OccurredDate), encodeTimestamp(e.ProcessedDate),
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
	row := r.db.QueryRowContext(ctx,
		entrySelect+` WHERE stock_card_id = ?
		 ORDER BY occurred_date DESC, processed_date DESC LIMIT 1`,
		stockCardID.String(),
	)
	return scanEntryRow(row)
}

func (r *EntryRepository) LatestBefore(ctx context.Context, stockCardID uuid.UUID, date time.Time) (domain.CalculatedEntry, error) {
	row := r.db.QueryRowContext(ctx,
		entrySelect+` WHERE stock_card_id = ? AND occurred_date < ?
		 ORDER BY occurred_date DESC, processed_date DESC LIMIT 1`,
		stockCardID.String(), encodeDate(date),
	)
	return scanEntryRow(row)
}

func (r *EntryRepository) LatestOnOrBefore(ctx context.Context, stockCardID uuid.UUID, date time.Time) (domain.CalculatedEntry, error) {
	row := r.db.QueryRowContext(ctx,
		entrySelect+` WHERE stock_card_id = ? AND occurred_date <= ?
		 ORDER BY occurred_date DESC, processed_date DESC LIMIT 1`,
		stockCardID.String(), encodeDate(date),
	)
	return scanEntryRow(row)
}

func (r *EntryRepository) ListByCard(ctx context.Context, stockCardID uuid.UUID) ([]domain.CalculatedEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		entrySelect+` WHERE stock_card_id = ? ORDER BY occurred_date, processed_date`,
		stockCardID.String(),
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
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx,
		`DELETE FROM calculated_stocks_on_hand WHERE stock_card_id = ? AND occurred_date >= ?`,
		stockCardID.String(), encodeDate(from),
	)
	if err != nil {
		return 0, fmt.Errorf("delete superseded entries: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("superseded rows affected: %w", err)
	}

	for _, e := range entries {
		id := e.ID
		if id == uuid.Nil {
			minted, err := uuid.NewV7()
			if err != nil {
				return 0, fmt.Errorf("mint entry id: %w", err)
			}
			id = minted
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO calculated_stocks_on_hand (id, stock_card_id, stock_on_hand, occurred_date, processed_date)
			 VALUES (?, ?, ?, ?, ?)`,
			id.String(), e.StockCardID.String(), e.StockOnHand,
			encodeDate(e.OccurredDate), encodeTimestamp(e.ProcessedDate),
		); err != nil {
			if isUniqueViolation(err) {
				return 0, repository.ErrDuplicate
			}
			return 0, fmt.Errorf("insert rebuilt entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit replace: %w", err)
	}
	return deleted, nil
}

func scanEntry(row rowScanner) (domain.CalculatedEntry, error) {
	var (
		idStr, cardStr, dateStr, processedStr string
		soh                                   int
	)
	if err := row.Scan(&idStr, &cardStr, &soh, &dateStr, &processedStr); err != nil {
		return domain.CalculatedEntry{}, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return domain.CalculatedEntry{}, fmt.Errorf("parse entry id: %w", err)
	}
	cardID, err := uuid.Parse(cardStr)
	if err != nil {
		return domain.CalculatedEntry{}, fmt.Errorf("parse stock card id: %w", err)
	}
	date, err := decodeDate(dateStr)
	if err != nil {
		return domain.CalculatedEntry{}, fmt.Errorf("parse occurred date: %w", err)
	}
	processed, err := decodeTimestamp(processedStr)
	if err != nil {
		return domain.CalculatedEntry{}, fmt.Errorf("parse processed date: %w", err)
	}
	return domain.CalculatedEntry{
		ID:            id,
		StockCardID:   cardID,
		StockOnHand:   soh,
		OccurredDate:  date,
		ProcessedDate: processed,
	}, nil
}

func scanEntryRow(row *sql.Row) (domain.CalculatedEntry, error) {
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CalculatedEntry{}, repository.ErrNotFound
	}
	if err != nil {
		return domain.CalculatedEntry{}, fmt.Errorf("select entry: %w", err)
	}
	return e, nil
}
