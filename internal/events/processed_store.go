package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ProcessedStore records which handler already acted on an outbox event, so a
// redelivery after a failed MarkDelivered does not repeat side effects.
type ProcessedStore struct {
	pool rowQuerier
}

func NewProcessedStore(pool *pgxpool.Pool) *ProcessedStore {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return &ProcessedStore{pool: pool}
}

func newProcessedStoreWithExec(exec rowQuerier) *ProcessedStore {
	if exec == nil {
		panic("events: exec required")
	}
	return &ProcessedStore{pool: exec}
}

// AlreadyProcessed checks if the handler has seen this event id.
func (s *ProcessedStore) AlreadyProcessed(ctx context.Context, handler, eventID string) (bool, error) {
	query := `SELECT 1 FROM handled_events WHERE handler = $1 AND event_id = $2`
	var exists int
	if err := s.pool.QueryRow(ctx, query, handler, eventID).Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("events: check processed: %w", err)
	}
	return true, nil
}

// MarkProcessed inserts an event id for the handler, returning false if it already exists.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, handler, eventID string) (bool, error) {
	query := `
		INSERT INTO handled_events (handler, event_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`
	ct, err := s.pool.Exec(ctx, query, handler, eventID)
	if err != nil {
		return false, fmt.Errorf("events: mark processed: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}
