package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dcvotebot/dcvotebot/internal/core/domain"
	"github.com/dcvotebot/dcvotebot/internal/core/ports"
)

const (
	defaultOpTimeout    = 5 * time.Second
	defaultLockWait     = 3 * time.Second
	defaultRetentionAge = 30 * 24 * time.Hour
)

type VoteServiceDeps struct {
	Sessions ports.SessionRepository
	Votes    ports.VoteRepository
	Defaults ports.DefaultsRepository
	Cache    ports.SessionCache
	Policy   ports.Policy
	Logger   *slog.Logger

	// OpTimeout bounds every storage round trip; a miss surfaces as
	// ErrUnavailable. LockWait bounds session lock acquisition.
	OpTimeout    time.Duration
	LockWait     time.Duration
	RetentionAge time.Duration

	// Now is replaceable in tests.
	Now func() time.Time
}

type voteService struct {
	sessions     ports.SessionRepository
	votes        ports.VoteRepository
	defaults     ports.DefaultsRepository
	cache        ports.SessionCache
	policy       ports.Policy
	log          *slog.Logger
	locks        *sessionLocks
	opTimeout    time.Duration
	retentionAge time.Duration
	now          func() time.Time
	castSeq      atomic.Uint64
}

func NewVoteService(deps VoteServiceDeps) ports.VoteService {
	if deps.OpTimeout <= 0 {
		deps.OpTimeout = defaultOpTimeout
	}
	if deps.LockWait <= 0 {
		deps.LockWait = defaultLockWait
	}
	if deps.RetentionAge <= 0 {
		deps.RetentionAge = defaultRetentionAge
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Policy == nil {
		deps.Policy = PermitAllPolicy()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &voteService{
		sessions:     deps.Sessions,
		votes:        deps.Votes,
		defaults:     deps.Defaults,
		cache:        deps.Cache,
		policy:       deps.Policy,
		log:          deps.Logger,
		locks:        newSessionLocks(deps.LockWait),
		opTimeout:    deps.OpTimeout,
		retentionAge: deps.RetentionAge,
		now:          deps.Now,
	}
	// Seed above any sequence a previous process could have written.
	s.castSeq.Store(uint64(deps.Now().UnixNano()))
	return s
}

type permitAll struct{}

func (permitAll) CanCreate(string, string) bool   { return true }
func (permitAll) CanModerate(string, string) bool { return true }

// PermitAllPolicy authorizes everything. Background jobs and tests use
// it; the chat adapter installs a role-backed policy instead.
func PermitAllPolicy() ports.Policy { return permitAll{} }

func (s *voteService) CreateSession(ctx context.Context, in ports.CreateSessionInput) (*domain.Session, error) {
	if !s.policy.CanCreate(in.ContextID, in.CreatorID) {
		return nil, fmt.Errorf("creator %s in context %s: %w", in.CreatorID, in.ContextID, domain.ErrPermissionDenied)
	}
	if strings.TrimSpace(in.Prompt) == "" {
		return nil, fmt.Errorf("prompt must not be blank: %w", domain.ErrInvalidArgument)
	}

	options, err := buildOptions(in.Options)
	if err != nil {
		return nil, err
	}

	settings, err := s.DefaultSettings(ctx, in.ContextID)
	if err != nil {
		return nil, err
	}
	if in.Duration != nil {
		if *in.Duration < 0 {
			return nil, fmt.Errorf("duration must not be negative: %w", domain.ErrInvalidArgument)
		}
		settings.Duration = *in.Duration
	}
	if in.CanRevote != nil {
		settings.CanRevote = *in.CanRevote
	}

	now := s.now()
	var expiresAt *time.Time
	switch {
	case in.ExpiresAt != nil:
		if !in.ExpiresAt.After(now) {
			return nil, fmt.Errorf("expiry %s is not in the future: %w", in.ExpiresAt, domain.ErrInvalidArgument)
		}
		expiresAt = in.ExpiresAt
	case settings.Duration > 0:
		t := now.Add(settings.Duration)
		expiresAt = &t
	}

	session := &domain.Session{
		ID:          uuid.New(),
		ContextID:   in.ContextID,
		CreatorID:   in.CreatorID,
		Prompt:      strings.TrimSpace(in.Prompt),
		Description: strings.TrimSpace(in.Description),
		Options:     options,
		Settings:    settings,
		Status:      domain.StatusOpen,
		CreatedAt:   now,
		ExpiresAt:   expiresAt,
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	if err := s.sessions.Save(opCtx, session); err != nil {
		return nil, s.storeErr("save session", err)
	}
	s.cache.Put(session.ID, domain.NewSessionState(session, nil))

	s.log.Info("session created",
		"session", session.ID, "context", in.ContextID, "options", len(options))
	return session, nil
}

func buildOptions(labels []string) ([]domain.Option, error) {
	options := make([]domain.Option, 0, len(labels))
	seen := make(map[string]struct{}, len(labels))
	for _, label := range labels {
		label = strings.TrimSpace(label)
		if label == "" {
			continue
		}
		if _, dup := seen[label]; dup {
			return nil, fmt.Errorf("duplicate option %q: %w", label, domain.ErrInvalidArgument)
		}
		seen[label] = struct{}{}
		options = append(options, domain.Option{Index: len(options), Label: label})
	}
	if len(options) < 2 {
		return nil, fmt.Errorf("need at least 2 options, got %d: %w", len(options), domain.ErrInvalidArgument)
	}
	if len(options) > domain.MaxOptions {
		return nil, fmt.Errorf("at most %d options allowed, got %d: %w", domain.MaxOptions, len(options), domain.ErrInvalidArgument)
	}
	return options, nil
}

func (s *voteService) CastVote(ctx context.Context, sessionID uuid.UUID, voterID string, optionIndex int) (domain.Tally, error) {
	release, err := s.locks.acquire(ctx, sessionID)
	if err != nil {
		return domain.Tally{}, err
	}
	defer release()

	state, err := s.loadState(ctx, sessionID)
	if err != nil {
		return domain.Tally{}, err
	}

	if !state.Session.AcceptsVotesAt(s.now()) {
		return domain.Tally{}, fmt.Errorf("session %s: %w", sessionID, domain.ErrSessionClosed)
	}
	if !state.Session.OptionInRange(optionIndex) {
		return domain.Tally{}, fmt.Errorf("option %d out of range [0,%d): %w",
			optionIndex, len(state.Session.Options), domain.ErrInvalidArgument)
	}
	if _, voted := state.VoteOf(voterID); voted && !state.Session.Settings.CanRevote {
		return domain.Tally{}, fmt.Errorf("voter %s in session %s: %w", voterID, sessionID, domain.ErrAlreadyVoted)
	}

	vote := domain.Vote{
		SessionID:   sessionID,
		VoterID:     voterID,
		OptionIndex: optionIndex,
		CastAt:      s.now(),
		CastSeq:     s.castSeq.Add(1),
	}

	// Durable write first; the cache sees the vote only once it cannot
	// be lost.
	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	if err := s.votes.Upsert(opCtx, vote); err != nil {
		return domain.Tally{}, s.storeErr("upsert vote", err)
	}
	state.Apply(vote)
	s.cache.Put(sessionID, state)

	return state.Tally(), nil
}

func (s *voteService) CloseSession(ctx context.Context, sessionID uuid.UUID, requesterID string) (domain.Tally, error) {
	release, err := s.locks.acquire(ctx, sessionID)
	if err != nil {
		return domain.Tally{}, err
	}
	defer release()

	state, err := s.loadState(ctx, sessionID)
	if err != nil {
		return domain.Tally{}, err
	}
	if state.Session.Status.Terminal() {
		return domain.Tally{}, fmt.Errorf("session %s: %w", sessionID, domain.ErrAlreadyClosed)
	}
	if err := s.requireOwnership(state.Session, requesterID); err != nil {
		return domain.Tally{}, err
	}

	now := s.now()
	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	changed, err := s.sessions.UpdateStatus(opCtx, sessionID, domain.StatusOpen, domain.StatusClosed, now)
	if err != nil {
		return domain.Tally{}, s.storeErr("close session", err)
	}
	if !changed {
		return domain.Tally{}, fmt.Errorf("session %s: %w", sessionID, domain.ErrAlreadyClosed)
	}

	state.Session.Status = domain.StatusClosed
	state.Session.ClosedAt = &now
	s.cache.Put(sessionID, state)

	s.log.Info("session closed", "session", sessionID, "by", requesterID)
	return state.Tally(), nil
}

func (s *voteService) ExpireDueSessions(ctx context.Context, now time.Time) ([]*domain.Session, error) {
	opCtx, cancel := s.opContext(ctx)
	due, err := s.sessions.ListOpenWithExpiryBefore(opCtx, now)
	cancel()
	if err != nil {
		return nil, s.storeErr("list due sessions", err)
	}

	var expired []*domain.Session
	for _, session := range due {
		release, err := s.locks.acquire(ctx, session.ID)
		if err != nil {
			s.log.Warn("skipping busy session during expiry", "session", session.ID, "error", err)
			continue
		}

		opCtx, cancel := s.opContext(ctx)
		changed, err := s.sessions.UpdateStatus(opCtx, session.ID, domain.StatusOpen, domain.StatusExpired, now)
		cancel()
		if err != nil {
			release()
			s.log.Error("expiring session failed", "session", session.ID, "error", err)
			continue
		}
		if changed {
			s.cache.Invalidate(session.ID)
			session.Status = domain.StatusExpired
			closedAt := now
			session.ClosedAt = &closedAt
			expired = append(expired, session)
		}
		release()
	}

	if len(expired) > 0 {
		s.log.Info("sessions expired", "count", len(expired))
	}
	return expired, nil
}

func (s *voteService) GetTally(ctx context.Context, sessionID uuid.UUID) (domain.Tally, error) {
	release, err := s.locks.acquire(ctx, sessionID)
	if err != nil {
		return domain.Tally{}, err
	}
	defer release()

	state, err := s.loadState(ctx, sessionID)
	if err != nil {
		return domain.Tally{}, err
	}
	return state.Tally(), nil
}

func (s *voteService) GetSession(ctx context.Context, sessionID uuid.UUID) (*domain.SessionState, error) {
	release, err := s.locks.acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	state, err := s.loadState(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return state.Clone(), nil
}

func (s *voteService) EditSession(ctx context.Context, in ports.EditSessionInput) (*domain.Session, error) {
	release, err := s.locks.acquire(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	state, err := s.loadState(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	if state.Session.Status.Terminal() {
		return nil, fmt.Errorf("session %s: %w", in.SessionID, domain.ErrAlreadyClosed)
	}
	if err := s.requireOwnership(state.Session, in.RequesterID); err != nil {
		return nil, err
	}

	session := *state.Session
	if in.Prompt != nil {
		if strings.TrimSpace(*in.Prompt) == "" {
			return nil, fmt.Errorf("prompt must not be blank: %w", domain.ErrInvalidArgument)
		}
		session.Prompt = strings.TrimSpace(*in.Prompt)
	}
	if in.Description != nil {
		session.Description = strings.TrimSpace(*in.Description)
	}
	if in.CanRevote != nil {
		session.Settings.CanRevote = *in.CanRevote
	}
	if in.Duration != nil {
		if *in.Duration < 0 {
			return nil, fmt.Errorf("duration must not be negative: %w", domain.ErrInvalidArgument)
		}
		session.Settings.Duration = *in.Duration
		if *in.Duration == 0 {
			session.ExpiresAt = nil
		} else {
			t := session.CreatedAt.Add(*in.Duration)
			session.ExpiresAt = &t
		}
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	if err := s.sessions.Update(opCtx, &session); err != nil {
		return nil, s.storeErr("update session", err)
	}
	state.Session = &session
	s.cache.Put(session.ID, state)

	return &session, nil
}

func (s *voteService) DeleteSession(ctx context.Context, sessionID uuid.UUID, requesterID string) error {
	release, err := s.locks.acquire(ctx, sessionID)
	if err != nil {
		return err
	}
	defer release()

	state, err := s.loadState(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := s.requireOwnership(state.Session, requesterID); err != nil {
		return err
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	if err := s.sessions.Delete(opCtx, sessionID); err != nil {
		return s.storeErr("delete session", err)
	}
	s.cache.Invalidate(sessionID)

	s.log.Info("session deleted", "session", sessionID, "by", requesterID)
	return nil
}

func (s *voteService) AttachMessage(ctx context.Context, sessionID uuid.UUID, messageID string) error {
	release, err := s.locks.acquire(ctx, sessionID)
	if err != nil {
		return err
	}
	defer release()

	state, err := s.loadState(ctx, sessionID)
	if err != nil {
		return err
	}

	session := *state.Session
	session.MessageID = messageID

	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	if err := s.sessions.Update(opCtx, &session); err != nil {
		return s.storeErr("bind message", err)
	}
	state.Session = &session
	s.cache.Put(sessionID, state)
	return nil
}

func (s *voteService) DefaultSettings(ctx context.Context, contextID string) (domain.Settings, error) {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	settings, err := s.defaults.LoadDefaults(opCtx, contextID)
	if err != nil {
		return domain.Settings{}, s.storeErr("load defaults", err)
	}
	if settings == nil {
		return domain.DefaultSettings(), nil
	}
	return *settings, nil
}

func (s *voteService) SetDefaultSettings(ctx context.Context, contextID, requesterID string, settings domain.Settings) error {
	if !s.policy.CanModerate(contextID, requesterID) {
		return fmt.Errorf("user %s in context %s: %w", requesterID, contextID, domain.ErrPermissionDenied)
	}
	if settings.Duration < 0 {
		return fmt.Errorf("duration must not be negative: %w", domain.ErrInvalidArgument)
	}
	if _, err := time.LoadLocation(settings.Timezone); err != nil {
		return fmt.Errorf("unknown timezone %q: %w", settings.Timezone, domain.ErrInvalidArgument)
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	if err := s.defaults.SaveDefaults(opCtx, contextID, settings); err != nil {
		return s.storeErr("save defaults", err)
	}
	s.log.Info("context defaults updated", "context", contextID, "by", requesterID)
	return nil
}

func (s *voteService) PurgeClosedSessions(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.Add(-s.retentionAge)
	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	ids, err := s.sessions.PurgeClosedBefore(opCtx, cutoff)
	if err != nil {
		return 0, s.storeErr("purge sessions", err)
	}
	for _, id := range ids {
		s.cache.Invalidate(id)
	}
	if len(ids) > 0 {
		s.log.Info("retention purge", "removed", len(ids), "cutoff", cutoff)
	}
	return int64(len(ids)), nil
}

func (s *voteService) Stats(ctx context.Context) (domain.Stats, error) {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	stats, err := s.sessions.Stats(opCtx)
	if err != nil {
		return domain.Stats{}, s.storeErr("stats", err)
	}
	return stats, nil
}

// loadState resolves the session through the cache and maps absence to
// ErrNotFound. Callers hold the session lock.
func (s *voteService) loadState(ctx context.Context, sessionID uuid.UUID) (*domain.SessionState, error) {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	state, err := s.cache.Get(opCtx, sessionID)
	if err != nil {
		return nil, s.storeErr("load session", err)
	}
	if state == nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}
	return state, nil
}

func (s *voteService) requireOwnership(session *domain.Session, requesterID string) error {
	if requesterID == session.CreatorID {
		return nil
	}
	if s.policy.CanModerate(session.ContextID, requesterID) {
		return nil
	}
	return fmt.Errorf("user %s is not the creator of session %s: %w",
		requesterID, session.ID, domain.ErrPermissionDenied)
}

func (s *voteService) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

// storeErr converts a blown storage deadline into the retryable
// ErrUnavailable kind; everything else passes through wrapped.
func (s *voteService) storeErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		s.log.Warn("storage deadline exceeded", "op", op)
		return fmt.Errorf("%s: %w", op, domain.ErrUnavailable)
	}
	return fmt.Errorf("%s: %w", op, err)
}
