package services

import "errors"

var (
	// ErrActiveSessionExists means the user already has a non-stale active
	// session and must end it before starting another.
	ErrActiveSessionExists = errors.New("user already has an active session")

	// ErrNoActiveSession means there is nothing to end or query.
	ErrNoActiveSession = errors.New("no active session found")

	// ErrConcurrentModificationLost means a conditional state transition
	// lost a race with another writer. The caller should re-fetch and
	// decide; it is not data corruption.
	ErrConcurrentModificationLost = errors.New("session transition lost to a concurrent update")

	// ErrStoreUnavailable wraps transient infrastructure failures; callers
	// may retry.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrUserNotFound means the trusted user id did not resolve to a user.
	ErrUserNotFound = errors.New("user not found")
)
