package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PostgresProcessedEventRepository implements notifications.Repository using pgx
type PostgresProcessedEventRepository struct{}

func NewPostgresProcessedEventRepository() *PostgresProcessedEventRepository {
	return &PostgresProcessedEventRepository{}
}

func (r *PostgresProcessedEventRepository) MarkEventProcessed(ctx context.Context, tx pgx.Tx, eventID uuid.UUID) error {
	query := `INSERT INTO processed_events (event_id) VALUES ($1)`
	if _, err := tx.Exec(ctx, query, eventID); err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	return nil
}

func (r *PostgresProcessedEventRepository) IsEventProcessed(ctx context.Context, tx pgx.Tx, eventID uuid.UUID) (bool, error) {
	query := `SELECT 1 FROM processed_events WHERE event_id = $1`
	var exists int
	err := tx.QueryRow(ctx, query, eventID).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check processed event: %w", err)
	}
	return true, nil
}
