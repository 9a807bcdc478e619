package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nimbuschat/nimbus-backend/internal/repository"
)

// UsageRepository implements repository.UsageRepository using PostgreSQL
type UsageRepository struct {
	db *sqlx.DB
}

// NewUsageRepository creates a new PostgreSQL usage repository
func NewUsageRepository(db *sqlx.DB) repository.UsageRepository {
	return &UsageRepository{db: db}
}

// Increment bumps the per-day usage counters in a single atomic upsert.
func (r *UsageRepository) Increment(ctx context.Context, userID uuid.UUID, day time.Time, messagesDelta, tokensDelta, apiCallsDelta int) error {
	query := `
		INSERT INTO usage_daily (user_id, day, messages_sent, tokens_used, api_calls)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, day) DO UPDATE
		SET messages_sent = usage_daily.messages_sent + EXCLUDED.messages_sent,
		    tokens_used   = usage_daily.tokens_used + EXCLUDED.tokens_used,
		    api_calls     = usage_daily.api_calls + EXCLUDED.api_calls
	`

	_, err := r.db.ExecContext(ctx, query, userID, day.Format("2006-01-02"), messagesDelta, tokensDelta, apiCallsDelta)
	return err
}

// GetDay retrieves the user's usage row for one day
func (r *UsageRepository) GetDay(ctx context.Context, userID uuid.UUID, day time.Time) (*repository.UsageDay, error) {
	var usage repository.UsageDay
	query := `
		SELECT user_id, day, messages_sent, tokens_used, api_calls
		FROM usage_daily
		WHERE user_id = $1 AND day = $2
	`

	err := r.db.GetContext(ctx, &usage, query, userID, day.Format("2006-01-02"))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return &usage, nil
}
