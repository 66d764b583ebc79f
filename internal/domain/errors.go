package domain

import "errors"

var (
	// ErrEmptyRoomKey is returned when join is attempted without a room key.
	ErrEmptyRoomKey = errors.New("room key is empty")
	// ErrEmptyIdentity is returned when join is attempted without a student ID.
	ErrEmptyIdentity = errors.New("identity id is empty")
	// ErrNotConnected is returned when an operation needs an open channel.
	ErrNotConnected = errors.New("not connected to a session")
	// ErrChallengeActive is returned when a push arrives while a quiz is open.
	ErrChallengeActive = errors.New("a quiz challenge is already active")
	// ErrNoActiveChallenge is returned when submit is called with no quiz open.
	ErrNoActiveChallenge = errors.New("no active quiz challenge")
	// ErrChallengeClosed is returned when submit is called after the challenge
	// was answered, dismissed, or expired.
	ErrChallengeClosed = errors.New("quiz challenge already closed")
	// ErrInvalidOption is returned when the selected option index is out of range.
	ErrInvalidOption = errors.New("option index out of range")
	// ErrSessionNotFound is returned when a session ID or alias resolves to nothing.
	ErrSessionNotFound = errors.New("session not found")
	// ErrDirectoryUnavailable wraps a failed directory fetch with no usable cache.
	ErrDirectoryUnavailable = errors.New("session directory unavailable")
)
