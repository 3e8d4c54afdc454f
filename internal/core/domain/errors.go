package domain

import "errors"

var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrNotFound         = errors.New("session not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrSessionClosed    = errors.New("session is closed")
	ErrAlreadyClosed    = errors.New("session is already closed")
	ErrAlreadyVoted     = errors.New("voter already voted and may not change the answer")
	ErrUnavailable      = errors.New("temporarily unavailable, try again later")
)
