package v1

import (
	"time"

	"github.com/4thel00z/haconf/internal"
)

// Snapshot is one recorded version of the configuration tree.
type Snapshot struct {
	ID           string    `json:"id"`
	ParentID     string    `json:"parent_id,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	Author       string    `json:"author"`
	Message      string    `json:"message"`
	ChangedPaths []string  `json:"changed_paths"`
}

// Change is one file that differs between two versions.
type Change struct {
	Path  string `json:"path"`
	Kind  string `json:"change_kind"`
	Patch string `json:"patch,omitempty"`
}

// Validator asks the platform whether the live configuration is acceptable.
type Validator = internal.Validator

// ValidationResult is the verdict of a Validator.
type ValidationResult = internal.ValidationResult

// Errors returned by the client, usable with errors.Is.
var (
	ErrNotFound             = internal.ErrNotFound
	ErrInvalidPath          = internal.ErrInvalidPath
	ErrInvalidRequest       = internal.ErrInvalidRequest
	ErrUnknownVersion       = internal.ErrUnknownVersion
	ErrLockTimeout          = internal.ErrLockTimeout
	ErrPartialApplyReverted = internal.ErrPartialApplyReverted
	ErrStoreUnavailable     = internal.ErrStoreUnavailable
	ErrValidationRejected   = internal.ErrValidationRejected
	ErrNotInitialized       = internal.ErrNotInitialized
)

func fromOutput(s internal.SnapshotOutput) *Snapshot {
	return &Snapshot{
		ID:           s.ID,
		ParentID:     s.ParentID,
		Timestamp:    s.Timestamp,
		Author:       s.Author,
		Message:      s.Message,
		ChangedPaths: s.ChangedPaths,
	}
}
