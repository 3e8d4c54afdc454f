package domain

import (
	"time"

	"github.com/google/uuid"
)

// Vote is one participant's current choice within a session. There is at
// most one per (session, voter); a newer cast replaces the older one.
type Vote struct {
	SessionID   uuid.UUID `json:"session_id"`
	VoterID     string    `json:"voter_id"`
	OptionIndex int       `json:"option_index"`
	CastAt      time.Time `json:"cast_at"`
	// CastSeq orders casts as observed by the core. Retried writes may
	// finish out of order; the greater sequence always wins at upsert.
	CastSeq uint64 `json:"cast_seq"`
}

// Tally maps every declared option index to its vote count. Derived from
// the vote set on demand, never stored.
type Tally struct {
	Counts map[int]int `json:"counts"`
	Total  int         `json:"total"`
}

// SessionState is a session together with its live vote set, keyed by
// voter. It is what the session cache keeps resident.
type SessionState struct {
	Session *Session
	Votes   map[string]Vote
}

func NewSessionState(s *Session, votes []Vote) *SessionState {
	st := &SessionState{Session: s, Votes: make(map[string]Vote, len(votes))}
	for _, v := range votes {
		st.Apply(v)
	}
	return st
}

// Apply records a cast, replacing the voter's prior vote unless the
// prior one carries a newer sequence.
func (st *SessionState) Apply(v Vote) {
	if prev, ok := st.Votes[v.VoterID]; ok && prev.CastSeq > v.CastSeq {
		return
	}
	st.Votes[v.VoterID] = v
}

// Clone returns a copy safe to hand outside the session lock.
func (st *SessionState) Clone() *SessionState {
	session := *st.Session
	votes := make(map[string]Vote, len(st.Votes))
	for k, v := range st.Votes {
		votes[k] = v
	}
	return &SessionState{Session: &session, Votes: votes}
}

// VoteOf returns the voter's current vote, if any.
func (st *SessionState) VoteOf(voterID string) (Vote, bool) {
	v, ok := st.Votes[voterID]
	return v, ok
}

// Tally computes the current tally. Every declared option appears; a
// session with no votes yields all zeroes.
func (st *SessionState) Tally() Tally {
	t := Tally{Counts: make(map[int]int, len(st.Session.Options))}
	for _, opt := range st.Session.Options {
		t.Counts[opt.Index] = 0
	}
	for _, v := range st.Votes {
		t.Counts[v.OptionIndex]++
		t.Total++
	}
	return t
}
