package migrate

import (
	"fmt"
	"time"
)

// MalformedFilenameError reports a file in the migrations directory that does
// not match the <YYYYMMDD_HHMMSS>_<slug>.cql grammar. It is warning-level:
// the offending file is excluded from the set without aborting the scan.
type MalformedFilenameError struct {
	Filename string
}

// Error implements the error interface.
func (e *MalformedFilenameError) Error() string {
	return fmt.Sprintf("malformed migration filename %q: want <YYYYMMDD_HHMMSS>_<slug>.cql", e.Filename)
}

// DuplicateVersionError reports two files carrying the same version. It is
// fatal to the whole operation before any statement executes.
type DuplicateVersionError struct {
	Version string
	Files   [2]string
}

// Error implements the error interface.
func (e *DuplicateVersionError) Error() string {
	return fmt.Sprintf("duplicate migration version %s in %s and %s", e.Version, e.Files[0], e.Files[1])
}

// InvalidFormatError reports a migration file whose body cannot be split into
// a usable up block.
type InvalidFormatError struct {
	Path   string
	Reason string
}

// Error implements the error interface.
func (e *InvalidFormatError) Error() string {
	return fmt.Sprintf("invalid migration file %s: %s", e.Path, e.Reason)
}

// ChecksumMismatchError reports drift: the on-disk content of an applied
// migration no longer matches the checksum recorded at apply time.
type ChecksumMismatchError struct {
	Version  string
	Recorded string
	Actual   string
}

// Error implements the error interface.
func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch for migration %s: recorded %s, on disk %s", e.Version, e.Recorded, e.Actual)
}

// OrphanedMigrationError reports an applied version with no corresponding
// file on disk.
type OrphanedMigrationError struct {
	Version string
}

// Error implements the error interface.
func (e *OrphanedMigrationError) Error() string {
	return fmt.Sprintf("migration %s is applied but has no file on disk", e.Version)
}

// MissingDownSectionError reports an attempt to roll back a migration whose
// down block is empty.
type MissingDownSectionError struct {
	Version string
}

// Error implements the error interface.
func (e *MissingDownSectionError) Error() string {
	return fmt.Sprintf("migration %s has no down section; use force to remove its record anyway", e.Version)
}

// MigrationNotFoundError reports a version that the planner needed on disk
// but could not find.
type MigrationNotFoundError struct {
	Version string
}

// Error implements the error interface.
func (e *MigrationNotFoundError) Error() string {
	return fmt.Sprintf("migration %s not found on disk", e.Version)
}

// LockTimeoutError reports that the distributed lock could not be acquired
// within the configured window. The run never proceeded.
type LockTimeoutError struct {
	Elapsed time.Duration
}

// Error implements the error interface.
func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("timed out acquiring migration lock after %s", e.Elapsed)
}

// LockLostError reports that the lock lease could not be renewed mid-run.
// The coordinator stops issuing statements as soon as it observes this.
type LockLostError struct {
	HolderID string
}

// Error implements the error interface.
func (e *LockLostError) Error() string {
	return fmt.Sprintf("migration lock lost by holder %s", e.HolderID)
}

// PartialStepFailureError reports a step whose statement sequence failed
// partway through. The step was not recorded and no later step was attempted;
// history reflects only fully executed steps.
type PartialStepFailureError struct {
	Version        string
	Direction      Direction
	StatementIndex int
	Err            error
}

// Error implements the error interface.
func (e *PartialStepFailureError) Error() string {
	return fmt.Sprintf("migration %s %s failed at statement %d: %v", e.Version, e.Direction, e.StatementIndex+1, e.Err)
}

// Unwrap returns the underlying statement error.
func (e *PartialStepFailureError) Unwrap() error {
	return e.Err
}

// StorageUnavailableError reports a failed history or lock operation against
// the store. Always fatal to the current run.
type StorageUnavailableError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("history store unavailable during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying driver error.
func (e *StorageUnavailableError) Unwrap() error {
	return e.Err
}
