package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dcvotebot/dcvotebot/internal/core/domain"
	"github.com/dcvotebot/dcvotebot/internal/core/ports"
)

type sessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) ports.SessionRepository {
	return &sessionRepository{
		db: db,
	}
}

func (r *sessionRepository) Save(ctx context.Context, session *domain.Session) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	querySession := `
		INSERT INTO sessions
			(id, context_id, creator_id, message_id, prompt, description,
			 status, can_revote, duration_seconds, timezone, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, querySession,
		session.ID.String(), session.ContextID, session.CreatorID, session.MessageID,
		session.Prompt, session.Description, string(session.Status),
		session.Settings.CanRevote, int64(session.Settings.Duration.Seconds()),
		session.Settings.Timezone, session.CreatedAt, session.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	queryOption := `
		INSERT INTO session_options (session_id, idx, label)
		VALUES (?, ?, ?)
	`
	stmt, err := tx.PrepareContext(ctx, queryOption)
	if err != nil {
		return fmt.Errorf("failed to prepare option statement: %w", err)
	}
	defer stmt.Close()

	for _, opt := range session.Options {
		if _, err := stmt.ExecContext(ctx, session.ID.String(), opt.Index, opt.Label); err != nil {
			return fmt.Errorf("failed to insert option: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *sessionRepository) Update(ctx context.Context, session *domain.Session) error {
	query := `
		UPDATE sessions
		SET message_id = ?, prompt = ?, description = ?,
		    can_revote = ?, duration_seconds = ?, timezone = ?, expires_at = ?
		WHERE id = ?
	`
	res, err := r.db.ExecContext(ctx, query,
		session.MessageID, session.Prompt, session.Description,
		session.Settings.CanRevote, int64(session.Settings.Duration.Seconds()),
		session.Settings.Timezone, session.ExpiresAt, session.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *sessionRepository) Load(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	query := `
		SELECT id, context_id, creator_id, message_id, prompt, description,
		       status, can_revote, duration_seconds, timezone, created_at, expires_at, closed_at
		FROM sessions
		WHERE id = ?
	`
	session, err := r.scanSession(r.db.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	options, err := r.fetchOptions(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	session.Options = options
	return session, nil
}

func (r *sessionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.Status, at time.Time) (bool, error) {
	query := `
		UPDATE sessions
		SET status = ?, closed_at = ?
		WHERE id = ? AND status = ?
	`
	res, err := r.db.ExecContext(ctx, query, string(to), at, id.String(), string(from))
	if err != nil {
		return false, fmt.Errorf("failed to update session status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}

func (r *sessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	// Options and votes cascade with the session row.
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *sessionRepository) ListOpenWithExpiryBefore(ctx context.Context, t time.Time) ([]*domain.Session, error) {
	query := `
		SELECT id, context_id, creator_id, message_id, prompt, description,
		       status, can_revote, duration_seconds, timezone, created_at, expires_at, closed_at
		FROM sessions
		WHERE status = 'open' AND expires_at IS NOT NULL AND expires_at <= ?
	`
	rows, err := r.db.QueryContext(ctx, query, t)
	if err != nil {
		return nil, fmt.Errorf("failed to list due sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*domain.Session
	for rows.Next() {
		session, err := r.scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		options, err := r.fetchOptions(ctx, session.ID)
		if err != nil {
			return nil, err
		}
		session.Options = options
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}

func (r *sessionRepository) PurgeClosedBefore(ctx context.Context, t time.Time) ([]uuid.UUID, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	querySelect := `
		SELECT id FROM sessions
		WHERE status IN ('closed', 'expired') AND closed_at IS NOT NULL AND closed_at < ?
	`
	rows, err := tx.QueryContext(ctx, querySelect, t)
	if err != nil {
		return nil, fmt.Errorf("failed to select purgeable sessions: %w", err)
	}
	var ids []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan session id: %w", err)
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("invalid session id %q: %w", raw, err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating purgeable sessions: %w", err)
	}
	if len(ids) == 0 {
		return nil, tx.Commit()
	}

	queryDelete := `
		DELETE FROM sessions
		WHERE status IN ('closed', 'expired') AND closed_at IS NOT NULL AND closed_at < ?
	`
	if _, err := tx.ExecContext(ctx, queryDelete, t); err != nil {
		return nil, fmt.Errorf("failed to purge sessions: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit purge: %w", err)
	}
	return ids, nil
}

func (r *sessionRepository) Stats(ctx context.Context) (domain.Stats, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM sessions WHERE status = 'open'),
			(SELECT COUNT(*) FROM sessions),
			(SELECT COUNT(*) FROM votes)
	`
	var stats domain.Stats
	err := r.db.QueryRowContext(ctx, query).Scan(&stats.OpenSessions, &stats.TotalSessions, &stats.TotalVotes)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("failed to load stats: %w", err)
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *sessionRepository) scanSession(row rowScanner) (*domain.Session, error) {
	var (
		session         domain.Session
		rawID           string
		rawStatus       string
		durationSeconds int64
		messageID       sql.NullString
		expiresAt       sql.NullTime
		closedAt        sql.NullTime
	)
	err := row.Scan(&rawID, &session.ContextID, &session.CreatorID, &messageID,
		&session.Prompt, &session.Description, &rawStatus,
		&session.Settings.CanRevote, &durationSeconds, &session.Settings.Timezone,
		&session.CreatedAt, &expiresAt, &closedAt)
	if err != nil {
		return nil, err
	}
	session.ID, err = uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("invalid session id %q: %w", rawID, err)
	}
	session.Status = domain.Status(rawStatus)
	session.Settings.Duration = time.Duration(durationSeconds) * time.Second
	if messageID.Valid {
		session.MessageID = messageID.String
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		session.ExpiresAt = &t
	}
	if closedAt.Valid {
		t := closedAt.Time
		session.ClosedAt = &t
	}
	return &session, nil
}

func (r *sessionRepository) fetchOptions(ctx context.Context, sessionID uuid.UUID) ([]domain.Option, error) {
	query := `
		SELECT idx, label
		FROM session_options
		WHERE session_id = ?
		ORDER BY idx
	`
	rows, err := r.db.QueryContext(ctx, query, sessionID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to load session options: %w", err)
	}
	defer rows.Close()

	var options []domain.Option
	for rows.Next() {
		var opt domain.Option
		if err := rows.Scan(&opt.Index, &opt.Label); err != nil {
			return nil, fmt.Errorf("failed to scan option: %w", err)
		}
		options = append(options, opt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating options: %w", err)
	}
	return options, nil
}
