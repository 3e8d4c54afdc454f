// Package memory is an in-process implementation of the persistence
// ports. Unit tests run against it; it mirrors the transactional
// semantics of the MariaDB adapter call for call.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dcvotebot/dcvotebot/internal/core/domain"
	"github.com/dcvotebot/dcvotebot/internal/core/ports"
)

type voteKey struct {
	sessionID uuid.UUID
	voterID   string
}

type Store struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]domain.Session
	votes    map[voteKey]domain.Vote
	defaults map[string]domain.Settings
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[uuid.UUID]domain.Session),
		votes:    make(map[voteKey]domain.Vote),
		defaults: make(map[string]domain.Settings),
	}
}

var (
	_ ports.SessionRepository  = (*Store)(nil)
	_ ports.VoteRepository     = (*Store)(nil)
	_ ports.DefaultsRepository = (*Store)(nil)
)

func (s *Store) Save(ctx context.Context, session *domain.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[session.ID]; exists {
		return fmt.Errorf("session %s already exists", session.ID)
	}
	s.sessions[session.ID] = cloneSession(session)
	return nil
}

func (s *Store) Update(ctx context.Context, session *domain.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.sessions[session.ID]
	if !ok {
		return domain.ErrNotFound
	}
	stored.Prompt = session.Prompt
	stored.Description = session.Description
	stored.Settings = session.Settings
	stored.ExpiresAt = cloneTime(session.ExpiresAt)
	stored.MessageID = session.MessageID
	s.sessions[session.ID] = stored
	return nil
}

func (s *Store) Load(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := cloneSession(&stored)
	return &out, nil
}

func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.Status, at time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.sessions[id]
	if !ok || stored.Status != from {
		return false, nil
	}
	stored.Status = to
	stored.ClosedAt = &at
	s.sessions[id] = stored
	return true, nil
}

func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.sessions, id)
	for key := range s.votes {
		if key.sessionID == id {
			delete(s.votes, key)
		}
	}
	return nil
}

func (s *Store) ListOpenWithExpiryBefore(ctx context.Context, t time.Time) ([]*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*domain.Session
	for _, stored := range s.sessions {
		if stored.Status != domain.StatusOpen || stored.ExpiresAt == nil {
			continue
		}
		if stored.ExpiresAt.After(t) {
			continue
		}
		out := cloneSession(&stored)
		due = append(due, &out)
	}
	return due, nil
}

func (s *Store) PurgeClosedBefore(ctx context.Context, t time.Time) ([]uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var purged []uuid.UUID
	for id, stored := range s.sessions {
		if !stored.Status.Terminal() || stored.ClosedAt == nil || !stored.ClosedAt.Before(t) {
			continue
		}
		delete(s.sessions, id)
		for key := range s.votes {
			if key.sessionID == id {
				delete(s.votes, key)
			}
		}
		purged = append(purged, id)
	}
	return purged, nil
}

func (s *Store) Stats(ctx context.Context) (domain.Stats, error) {
	if err := ctx.Err(); err != nil {
		return domain.Stats{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := domain.Stats{
		TotalSessions: int64(len(s.sessions)),
		TotalVotes:    int64(len(s.votes)),
	}
	for _, stored := range s.sessions {
		if stored.Status == domain.StatusOpen {
			stats.OpenSessions++
		}
	}
	return stats, nil
}

func (s *Store) Upsert(ctx context.Context, vote domain.Vote) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[vote.SessionID]; !ok {
		return fmt.Errorf("vote references unknown session %s", vote.SessionID)
	}
	key := voteKey{sessionID: vote.SessionID, voterID: vote.VoterID}
	if prev, ok := s.votes[key]; ok && prev.CastSeq > vote.CastSeq {
		return nil
	}
	s.votes[key] = vote
	return nil
}

func (s *Store) List(ctx context.Context, sessionID uuid.UUID) ([]domain.Vote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var votes []domain.Vote
	for key, vote := range s.votes {
		if key.sessionID == sessionID {
			votes = append(votes, vote)
		}
	}
	return votes, nil
}

func (s *Store) LoadDefaults(ctx context.Context, contextID string) (*domain.Settings, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	settings, ok := s.defaults[contextID]
	if !ok {
		return nil, nil
	}
	out := settings
	return &out, nil
}

func (s *Store) SaveDefaults(ctx context.Context, contextID string, settings domain.Settings) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaults[contextID] = settings
	return nil
}

func cloneSession(s *domain.Session) domain.Session {
	out := *s
	out.Options = append([]domain.Option(nil), s.Options...)
	out.ExpiresAt = cloneTime(s.ExpiresAt)
	out.ClosedAt = cloneTime(s.ClosedAt)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	out := *t
	return &out
}
