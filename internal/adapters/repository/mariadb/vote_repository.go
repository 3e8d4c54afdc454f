package mariadb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/dcvotebot/dcvotebot/internal/core/domain"
	"github.com/dcvotebot/dcvotebot/internal/core/ports"
)

type voteRepository struct {
	db *sql.DB
}

func NewVoteRepository(db *sql.DB) ports.VoteRepository {
	return &voteRepository{
		db: db,
	}
}

// Upsert replaces the voter's stored choice in a single atomic
// statement. The cast_seq guard keeps a newer vote in place when a
// stale retry lands after it.
func (r *voteRepository) Upsert(ctx context.Context, vote domain.Vote) error {
	query := `
		INSERT INTO votes (session_id, voter_id, option_idx, cast_at, cast_seq)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			option_idx = IF(VALUES(cast_seq) >= cast_seq, VALUES(option_idx), option_idx),
			cast_at    = IF(VALUES(cast_seq) >= cast_seq, VALUES(cast_at), cast_at),
			cast_seq   = GREATEST(cast_seq, VALUES(cast_seq))
	`
	_, err := r.db.ExecContext(ctx, query,
		vote.SessionID.String(), vote.VoterID, vote.OptionIndex, vote.CastAt, vote.CastSeq)
	if err != nil {
		return fmt.Errorf("failed to upsert vote: %w", err)
	}
	return nil
}

func (r *voteRepository) List(ctx context.Context, sessionID uuid.UUID) ([]domain.Vote, error) {
	query := `
		SELECT voter_id, option_idx, cast_at, cast_seq
		FROM votes
		WHERE session_id = ?
	`
	rows, err := r.db.QueryContext(ctx, query, sessionID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list votes: %w", err)
	}
	defer rows.Close()

	var votes []domain.Vote
	for rows.Next() {
		vote := domain.Vote{SessionID: sessionID}
		if err := rows.Scan(&vote.VoterID, &vote.OptionIndex, &vote.CastAt, &vote.CastSeq); err != nil {
			return nil, fmt.Errorf("failed to scan vote: %w", err)
		}
		votes = append(votes, vote)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating votes: %w", err)
	}
	return votes, nil
}
