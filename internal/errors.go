package internal

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrLockTimeout          = errors.New("lock timeout")
	ErrPartialApplyReverted = errors.New("partial apply reverted")
	ErrStoreUnavailable     = errors.New("store unavailable")
	ErrUnknownVersion       = errors.New("unknown version")
	ErrEmptyStore           = errors.New("empty store")
	ErrValidationRejected   = errors.New("validation rejected")
	ErrNotFound             = errors.New("not found")
	ErrInvalidPath          = errors.New("invalid path")
	ErrInvalidRequest       = errors.New("invalid request")
	ErrCleanTree            = errors.New("working tree clean")
	ErrNotInitialized       = errors.New("workspace not initialized")
	ErrAlreadyInitialized   = errors.New("workspace already initialized")
)

// LockTimeoutError reports how long a caller waited for the lock token.
type LockTimeoutError struct {
	Waited time.Duration
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("lock timeout after %s", e.Waited.Round(time.Millisecond))
}

func (e *LockTimeoutError) Unwrap() error { return ErrLockTimeout }

// ApplyError identifies the request that failed inside a batch. The working
// tree has already been restored when it is returned.
type ApplyError struct {
	Index int
	Kind  MutationKind
	Path  string
	Err   error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("%s: request %d (%s %s): %v", ErrPartialApplyReverted, e.Index, e.Kind, e.Path, e.Err)
}

func (e *ApplyError) Unwrap() []error { return []error{ErrPartialApplyReverted, e.Err} }

// VersionError names the version id that could not be resolved.
type VersionError struct {
	ID string
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("%s: %s", ErrUnknownVersion, e.ID)
}

func (e *VersionError) Unwrap() error { return ErrUnknownVersion }

// ValidationError carries the platform's report for a rejected rollback.
type ValidationError struct {
	Target  string
	Details string
	Err     error
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("%s: rollback to %s", ErrValidationRejected, shortID(e.Target))
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ValidationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrValidationRejected, e.Err}
	}
	return []error{ErrValidationRejected}
}

func shortID(id string) string {
	if len(id) > 7 {
		return id[:7]
	}
	return id
}
