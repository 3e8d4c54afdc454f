package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dcvotebot/dcvotebot/internal/core/domain"
	"github.com/dcvotebot/dcvotebot/internal/core/ports"
)

type defaultsRepository struct {
	db *sql.DB
}

func NewDefaultsRepository(db *sql.DB) ports.DefaultsRepository {
	return &defaultsRepository{
		db: db,
	}
}

func (r *defaultsRepository) LoadDefaults(ctx context.Context, contextID string) (*domain.Settings, error) {
	query := `
		SELECT can_revote, duration_seconds, timezone
		FROM context_settings
		WHERE context_id = ?
	`
	var (
		settings        domain.Settings
		durationSeconds int64
	)
	err := r.db.QueryRowContext(ctx, query, contextID).
		Scan(&settings.CanRevote, &durationSeconds, &settings.Timezone)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load context settings: %w", err)
	}
	settings.Duration = time.Duration(durationSeconds) * time.Second
	return &settings, nil
}

func (r *defaultsRepository) SaveDefaults(ctx context.Context, contextID string, settings domain.Settings) error {
	query := `
		INSERT INTO context_settings (context_id, can_revote, duration_seconds, timezone)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			can_revote = VALUES(can_revote),
			duration_seconds = VALUES(duration_seconds),
			timezone = VALUES(timezone)
	`
	_, err := r.db.ExecContext(ctx, query,
		contextID, settings.CanRevote, int64(settings.Duration.Seconds()), settings.Timezone)
	if err != nil {
		return fmt.Errorf("failed to save context settings: %w", err)
	}
	return nil
}
