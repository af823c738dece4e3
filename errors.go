package sessionguard

import (
	"errors"

	"github.com/carenest/sessionguard/seal"
	"github.com/carenest/sessionguard/store"
)

var (
	// ErrNotInitialized is returned by mutators called before Initialize.
	ErrNotInitialized = errors.New("session manager not initialized")
	// ErrManagerClosed is returned once Close has been called.
	ErrManagerClosed = errors.New("session manager closed")
	// ErrInvalidClaims is returned when identity claims cannot form a session.
	ErrInvalidClaims = errors.New("invalid identity claims")
	// ErrInvalidRole is returned for roles outside the known set.
	ErrInvalidRole = errors.New("invalid role")
	// ErrInvalidReason is returned for unknown termination reasons.
	ErrInvalidReason = errors.New("invalid termination reason")
	// ErrNoSession is returned when an operation needs an active session and there is none.
	ErrNoSession = errors.New("no active session")
	// ErrRefreshFailure is returned when renewal failed or timed out. The
	// session has already been terminated when a caller sees it.
	ErrRefreshFailure = errors.New("session refresh failed")

	// ErrEncryptionUnavailable aliases seal.ErrEncryptionUnavailable.
	ErrEncryptionUnavailable = seal.ErrEncryptionUnavailable
	// ErrIntegrity aliases seal.ErrIntegrity.
	ErrIntegrity = seal.ErrIntegrity
	// ErrStoreUnavailable aliases store.ErrUnavailable.
	ErrStoreUnavailable = store.ErrUnavailable
)
