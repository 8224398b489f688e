package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"stocklane.io/stocklane/internal/domain"
	apperrors "stocklane.io/stocklane/internal/pkg/errors"
	"stocklane.io/stocklane/internal/pkg/logger"
	"stocklane.io/stocklane/internal/pkg/metrics"
	"stocklane.io/stocklane/internal/repository"
)

// LedgerOptions tunes LedgerService behavior.
type LedgerOptions struct {
	// AllowNegative permits balances below zero. Off by default; most
	// deployments treat a negative calculated balance as a data entry error.
	AllowNegative bool

	// Now supplies processed-date timestamps. Tests inject a fixed clock.
	Now func() time.Time
}

// LedgerService maintains the calculated stock-on-hand series per stock card.
// The series keeps at most one entry per occurred date (the end-of-day
// balance) and two monotonic orders at once: occurred dates ascending, and
// processed dates non-decreasing in occurred-date order.
type LedgerService struct {
	cards   repository.StockCardRepository
	events  repository.EventRepository
	entries repository.EntryRepository

	allowNegative bool
	now           func() time.Time

	// Per-card write lock. The store serializes nothing above row level, so
	// the read-compute-write cycle of Append and Recompute must not interleave
	// for the same card.
	locks sync.Map
}

// NewLedgerService creates a new LedgerService.
func NewLedgerService(stores repository.Stores, opts LedgerOptions) *LedgerService {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &LedgerService{
		cards:         stores.StockCards,
		events:        stores.Events,
		entries:       stores.Entries,
		allowNegative: opts.AllowNegative,
		now:           now,
	}
}

func (s *LedgerService) lock(cardID uuid.UUID) func() {
	mu, _ := s.locks.LoadOrStore(cardID, &sync.Mutex{})
	m := mu.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

// Append records a new end-of-day balance for a movement whose occurred date
// is strictly after every existing entry of the card. Movements on or before
// the latest entry's date must go through Recompute instead, which rebuilds
// the affected suffix; Append refuses them with BACKDATED_MOVEMENT.
func (s *LedgerService) Append(ctx context.Context, stockCardID uuid.UUID, occurredDate time.Time, quantityDelta int) (domain.CalculatedEntry, error) {
	result := "success"
	defer func() { metrics.Get().AppendTotal.WithLabelValues(result).Inc() }()

	unlock := s.lock(stockCardID)
	defer unlock()

	date := domain.DateOf(occurredDate)
	processed := s.now().UTC()

	balance := 0
	latest, err := s.entries.Latest(ctx, stockCardID)
	switch {
	case err == nil:
		if !date.After(latest.OccurredDate) {
			result = "backdated"
			return domain.CalculatedEntry{}, apperrors.BadRequest(apperrors.CodeBackdatedMovement,
				fmt.Sprintf("occurred date %s is not after the latest entry %s; recompute the series instead",
					date.Format("2006-01-02"), latest.OccurredDate.Format("2006-01-02")))
		}
		balance = latest.StockOnHand
		// Wall clocks can step backwards; never let processed dates regress.
		if processed.Before(latest.ProcessedDate) {
			processed = latest.ProcessedDate
		}
	case errors.Is(err, repository.ErrNotFound):
		// First entry of the card.
	default:
		result = "error"
		return domain.CalculatedEntry{}, fmt.Errorf("load latest entry: %w", err)
	}

	balance += quantityDelta
	if balance < 0 && !s.allowNegative {
		result = "negative"
		return domain.CalculatedEntry{}, apperrors.ErrNegativeStockOnHandf(stockCardID.String(), balance)
	}

	id, err := uuid.NewV7()
	if err != nil {
		result = "error"
		return domain.CalculatedEntry{}, fmt.Errorf("generate entry id: %w", err)
	}
	entry := domain.CalculatedEntry{
		ID:            id,
		StockCardID:   stockCardID,
		StockOnHand:   balance,
		OccurredDate:  date,
		ProcessedDate: processed,
	}
	entry, err = s.entries.Insert(ctx, entry)
	if err != nil {
		result = "error"
		return domain.CalculatedEntry{}, fmt.Errorf("insert entry: %w", err)
	}

	logger.Debug("ledger entry appended",
		zap.String("stockCardId", stockCardID.String()),
		zap.String("occurredDate", date.Format("2006-01-02")),
		zap.Int("stockOnHand", balance))
	return entry, nil
}

// Recompute rebuilds the card's entries from the given date onward by
// replaying the recorded movement events. For every distinct occurred date
// with events it derives one end-of-day entry; dates without events get no
// entry. The replaced suffix is swapped in a single transaction, so a failed
// recompute leaves the old series intact. Recomputing twice over the same
// events yields identical balances.
func (s *LedgerService) Recompute(ctx context.Context, stockCardID uuid.UUID, from time.Time) error {
	result := "success"
	start := time.Now()
	defer func() {
		m := metrics.Get()
		m.RecomputeTotal.WithLabelValues(result).Inc()
		m.RecomputeDuration.Observe(time.Since(start).Seconds())
	}()

	unlock := s.lock(stockCardID)
	defer unlock()

	if _, err := s.cards.FindByID(ctx, stockCardID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			result = "card_not_found"
			return apperrors.NotFound(apperrors.CodeStockCardNotFound,
				fmt.Sprintf("stock card %s not found", stockCardID))
		}
		result = "error"
		return fmt.Errorf("load stock card: %w", err)
	}

	fromDate := domain.DateOf(from)

	// Seed from the last surviving entry. Its balance carries into the
	// rebuilt suffix, and its processed date is the floor for the new ones.
	balance := 0
	processed := s.now().UTC()
	seed, err := s.entries.LatestBefore(ctx, stockCardID, fromDate)
	switch {
	case err == nil:
		balance = seed.StockOnHand
		if processed.Before(seed.ProcessedDate) {
			processed = seed.ProcessedDate
		}
	case errors.Is(err, repository.ErrNotFound):
		// Rebuilding from the start of the series.
	default:
		result = "error"
		return fmt.Errorf("load seed entry: %w", err)
	}

	events, err := s.events.ListFrom(ctx, stockCardID, fromDate)
	if err != nil {
		result = "error"
		return fmt.Errorf("list events: %w", err)
	}

	rebuilt := make([]domain.CalculatedEntry, 0, len(events))
	for i, ev := range events {
		balance += ev.QuantityDelta
		if balance < 0 && !s.allowNegative {
			result = "negative"
			return apperrors.ErrNegativeStockOnHandf(stockCardID.String(), balance)
		}
		// Only the last event of a date produces an entry.
		if i+1 < len(events) && domain.SameDate(events[i+1].OccurredDate, ev.OccurredDate) {
			continue
		}
		id, err := uuid.NewV7()
		if err != nil {
			result = "error"
			return fmt.Errorf("generate entry id: %w", err)
		}
		rebuilt = append(rebuilt, domain.CalculatedEntry{
			ID:            id,
			StockCardID:   stockCardID,
			StockOnHand:   balance,
			OccurredDate:  domain.DateOf(ev.OccurredDate),
			ProcessedDate: processed,
		})
	}

	deleted, err := s.entries.ReplaceFrom(ctx, stockCardID, fromDate, rebuilt)
	if err != nil {
		// A unique violation here means another process rebuilt the same
		// suffix between our delete and insert; the caller can retry.
		if errors.Is(err, repository.ErrDuplicate) {
			result = "conflict"
			return apperrors.Wrap(err, apperrors.CodeRecomputeConflict,
				fmt.Sprintf("concurrent recompute of stock card %s", stockCardID),
				http.StatusConflict)
		}
		result = "error"
		return fmt.Errorf("replace entries: %w", err)
	}
	metrics.Get().EntriesReplacedTotal.Add(float64(deleted))

	logger.Info("ledger recomputed",
		zap.String("stockCardId", stockCardID.String()),
		zap.String("from", fromDate.Format("2006-01-02")),
		zap.Int64("entriesDeleted", deleted),
		zap.Int("entriesRebuilt", len(rebuilt)))
	return nil
}

// CurrentBalance returns the latest calculated balance, or zero for a card
// with no entries yet.
func (s *LedgerService) CurrentBalance(ctx context.Context, stockCardID uuid.UUID) (int, error) {
	latest, err := s.entries.Latest(ctx, stockCardID)
	if errors.Is(err, repository.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load latest entry: %w", err)
	}
	return latest.StockOnHand, nil
}

// BalanceAsOf returns the balance effective at end of day on the given date:
// the stock on hand of the latest entry with occurred date on or before it,
// or zero if the card had no entries by then.
func (s *LedgerService) BalanceAsOf(ctx context.Context, stockCardID uuid.UUID, date time.Time) (int, error) {
	entry, err := s.entries.LatestOnOrBefore(ctx, stockCardID, domain.DateOf(date))
	if errors.Is(err, repository.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load entry as of %s: %w", domain.DateOf(date).Format("2006-01-02"), err)
	}
	return entry.StockOnHand, nil
}

// Entries returns the card's full calculated series in ledger order.
func (s *LedgerService) Entries(ctx context.Context, stockCardID uuid.UUID) ([]domain.CalculatedEntry, error) {
	entries, err := s.entries.ListByCard(ctx, stockCardID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return entries, nil
}
