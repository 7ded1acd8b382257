package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EventRepository tracks processed billing event IDs.
type EventRepository struct {
	db *pgxpool.Pool
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(db *pgxpool.Pool) *EventRepository {
	return &EventRepository{db: db}
}

// IsProcessed reports whether the event ID has already been applied.
func (r *EventRepository) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM processed_billing_events WHERE event_id = $1)`,
		eventID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check event: %w", err)
	}
	return exists, nil
}

// MarkProcessed records the event ID. ON CONFLICT DO NOTHING makes the
// insert atomic with duplicate detection across concurrent deliveries.
func (r *EventRepository) MarkProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO processed_billing_events (event_id, event_type)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, eventType)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}
