// Package migrate implements the migration state machine for Cassandra and
// ScyllaDB keyspaces: discovery and parsing of versioned CQL scripts,
// checksum-based drift detection, apply/rollback planning, and an execution
// coordinator serialized by a lease-based distributed lock.
package migrate

import (
	"time"
)

// Direction indicates whether a step applies or reverses a migration.
type Direction int

const (
	// DirectionUp applies a migration's up statements.
	DirectionUp Direction = iota
	// DirectionDown reverses a migration using its down statements.
	DirectionDown
)

// String implements the fmt.Stringer interface.
func (d Direction) String() string {
	if d == DirectionDown {
		return "down"
	}
	return "up"
}

// Migration is one versioned schema-change script read from disk. It is
// constructed fresh on every scan and never mutated afterwards.
type Migration struct {
	// Version is the 14-digit timestamp identifier (YYYYMMDD_HHMMSS). Its
	// lexicographic order is the total order of migrations.
	Version string
	// Description is the human label extracted from the filename slug.
	Description string
	// Path is the file the migration was read from.
	Path string
	// Checksum is the hex SHA-256 digest of the (optionally normalized) file content.
	Checksum string
	// UpStatements are the statements of the up block, in order.
	UpStatements []string
	// DownStatements are the statements of the down block, possibly empty.
	DownStatements []string
}

// HasDown reports whether the migration carries a non-empty down block.
func (m *Migration) HasDown() bool {
	return len(m.DownStatements) > 0
}

// MigrationRecord is the persisted row recording one applied migration.
// The history table keys on Version; the checksum is the one captured at
// apply time, which is what drift detection compares against.
type MigrationRecord struct {
	Version         string
	Checksum        string
	AppliedAt       time.Time
	ExecutionMillis int64
}

// Step is one migration's full statement block in a given direction. It is
// the unit of recording: a partially executed but unrecorded step is never
// considered applied.
type Step struct {
	Migration Migration
	Direction Direction
	// Forced marks a down step whose down block is empty and which was planned
	// under force; the step performs bookkeeping only.
	Forced bool
}

// Statements returns the ordered statement list for this step.
func (s Step) Statements() []string {
	if s.Direction == DirectionDown {
		return s.Migration.DownStatements
	}
	return s.Migration.UpStatements
}

// Plan is the ordered list of steps computed for one invocation. It is never
// persisted; it is fully consumed or fully discarded.
type Plan []Step

// IsEmpty reports whether the plan contains no steps.
func (p Plan) IsEmpty() bool {
	return len(p) == 0
}

// Versions returns the plan's versions in execution order.
func (p Plan) Versions() []string {
	versions := make([]string, 0, len(p))
	for _, step := range p {
		versions = append(versions, step.Migration.Version)
	}
	return versions
}
