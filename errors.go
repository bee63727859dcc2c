package spill

import (
	"errors"
	"fmt"
)

var (
	// ErrLockConflict is returned when an acquire, release or clear is not
	// valid in the envelope's current status. Conflicts are never retried.
	ErrLockConflict = errors.New("lock conflict")

	// ErrRedundantRelease is returned by Release when no lock is held.
	// It also matches ErrLockConflict.
	ErrRedundantRelease = errors.New("redundant release")

	// ErrRestoreFailure indicates a block could not be brought back into memory.
	ErrRestoreFailure = errors.New("restore failure")

	// ErrPersistFailure indicates a write to an eviction file or backing store failed.
	ErrPersistFailure = errors.New("persist failure")

	// ErrInconsistentDeviceState indicates more than one dirty device copy.
	ErrInconsistentDeviceState = errors.New("inconsistent device state")

	// ErrConfiguration indicates a missing path, a closed manager, or an
	// operation that needs a collaborator the envelope was not given.
	ErrConfiguration = errors.New("configuration error")

	// ErrNilBlock is returned by AcquireModify for a nil block.
	ErrNilBlock = errors.New("nil block")
)

// LockError describes an illegal lock transition.
type LockError struct {
	Op        string
	Status    Status
	ID        int64
	redundant bool
}

func (e *LockError) Error() string {
	if e.redundant {
		return fmt.Sprintf("redundant release: envelope %d is %s", e.ID, e.Status)
	}
	return fmt.Sprintf("lock conflict: %s not allowed while envelope %d is %s", e.Op, e.ID, e.Status)
}

// Is matches ErrLockConflict, and ErrRedundantRelease for releases.
func (e *LockError) Is(target error) bool {
	return target == ErrLockConflict || (e.redundant && target == ErrRedundantRelease)
}

// RestoreError describes a failed restore.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type RestoreError struct {
	// Source is one of "eviction", "backing", "lineage" or "device".
	Source string
	Path   string
	cause  error
}

func (e *RestoreError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("restore from %s failed: %v", e.Source, e.cause)
	}
	return fmt.Sprintf("restore from %s %s failed: %v", e.Source, e.Path, e.cause)
}

func (e *RestoreError) Unwrap() error { return e.cause }

func (e *RestoreError) Is(target error) bool { return target == ErrRestoreFailure }

// PersistError describes a failed write.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type PersistError struct {
	// Target is "eviction" or "backing".
	Target string
	Path   string
	cause  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist to %s %s failed: %v", e.Target, e.Path, e.cause)
}

func (e *PersistError) Unwrap() error { return e.cause }

func (e *PersistError) Is(target error) bool { return target == ErrPersistFailure }

func configError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}
