package model

import "errors"

var (
	// ErrNoActiveSession is returned when an operation needs a session id and none was given.
	ErrNoActiveSession = errors.New("no active session")
	// ErrSessionClosed is returned when sending into a session that has been ended.
	ErrSessionClosed = errors.New("session closed")
	// ErrNetworkFailure wraps any backend call that failed to complete.
	ErrNetworkFailure = errors.New("network failure")
	// ErrUnauthorized is returned for protected calls attempted without identity.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound is returned when the backend does not know the requested resource.
	ErrNotFound = errors.New("not found")
	// ErrInvalidFeedback is returned for ratings outside 1..5.
	ErrInvalidFeedback = errors.New("feedback rating must be between 1 and 5")
)
