package migrate

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/gocql/gocql"

	"github.com/calleja/cql-migrate/common/go/cassandra"
)

// lockName is the reserved key of the single lock row.
const lockName = "schema_migration"

// HistoryStore is the narrow interface over the storage collaborator holding
// the authoritative set of applied-migration records plus the lock row. The
// lock only serializes who attempts; the conditional writes are what keep the
// outcome correct even under partial lock failure, so every mutation here is
// a single-row compare-and-swap.
type HistoryStore interface {
	// ListApplied returns every record, sorted ascending by version.
	ListApplied(ctx context.Context) ([]MigrationRecord, error)
	// InsertIfAbsent records one applied migration. False means another
	// writer already holds that version; the caller treats it as already
	// applied, not as a conflict.
	InsertIfAbsent(ctx context.Context, record MigrationRecord) (bool, error)
	// Delete removes one record. False means it was already gone.
	Delete(ctx context.Context, version string) (bool, error)
	// UpdateChecksum rewrites the stored checksum of an applied record
	// without touching applied_at.
	UpdateChecksum(ctx context.Context, version, checksum string) error
	// TryAcquireLock claims the lock row for holderID with a lease. The
	// lease expires on its own, bounding how long a crashed holder blocks
	// others.
	TryAcquireLock(ctx context.Context, holderID string, lease time.Duration) (bool, error)
	// RenewLock extends the lease. False means the lock is no longer held
	// by holderID.
	RenewLock(ctx context.Context, holderID string, lease time.Duration) (bool, error)
	// ReleaseLock releases the lock row. Releasing an already-released lock
	// succeeds; a lock held by a different holder is left alone and false
	// is returned.
	ReleaseLock(ctx context.Context, holderID string) (bool, error)
	// Reset destroys every history record. The lock row survives so the
	// reset itself stays serialized.
	Reset(ctx context.Context) error
}

// CassandraHistory implements HistoryStore on a Cassandra/ScyllaDB keyspace.
// All reads run at the strongest consistency the store offers; this path
// trades latency for correctness.
type CassandraHistory struct {
	client   *cassandra.Client
	keyspace string
	table    string
}

var _ HistoryStore = (*CassandraHistory)(nil)

// NewCassandraHistory returns a history store over client's keyspace using
// the given history table name.
func NewCassandraHistory(client *cassandra.Client, table string) *CassandraHistory {
	return &CassandraHistory{client: client, keyspace: client.Opts.Keyspace, table: table}
}

func (h *CassandraHistory) historyTable() string {
	return h.keyspace + "." + h.table
}

func (h *CassandraHistory) lockTable() string {
	return h.keyspace + "." + h.table + "_lock"
}

// Initialize bootstraps the keyspace (optionally) and the history and lock
// tables. Safe to call on every invocation.
func (h *CassandraHistory) Initialize(ctx context.Context, autoCreateKeyspace bool) error {
	if autoCreateKeyspace {
		statement := fmt.Sprintf(
			"CREATE KEYSPACE IF NOT EXISTS %s WITH REPLICATION = {'class': 'SimpleStrategy', 'replication_factor': 1}",
			h.keyspace,
		)
		if err := h.client.Query(statement).WithContext(ctx).Exec(); err != nil {
			return &StorageUnavailableError{Op: "create keyspace", Err: err}
		}
	}
	createHistory := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		version text PRIMARY KEY,
		checksum text,
		applied_at timestamp,
		execution_millis bigint
	)`, h.historyTable())
	if err := h.client.Query(createHistory).WithContext(ctx).Exec(); err != nil {
		return &StorageUnavailableError{Op: "create history table", Err: err}
	}
	createLock := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		name text PRIMARY KEY,
		holder_id text,
		acquired_at timestamp
	)`, h.lockTable())
	if err := h.client.Query(createLock).WithContext(ctx).Exec(); err != nil {
		return &StorageUnavailableError{Op: "create lock table", Err: err}
	}
	return nil
}

// ListApplied implements the HistoryStore interface.
func (h *CassandraHistory) ListApplied(ctx context.Context) ([]MigrationRecord, error) {
	statement := fmt.Sprintf("SELECT version, checksum, applied_at, execution_millis FROM %s", h.historyTable())
	iter := h.client.Query(statement).WithContext(ctx).Consistency(gocql.All).Iter()

	var records []MigrationRecord
	var record MigrationRecord
	for iter.Scan(&record.Version, &record.Checksum, &record.AppliedAt, &record.ExecutionMillis) {
		records = append(records, record)
	}
	if err := iter.Close(); err != nil {
		return nil, &StorageUnavailableError{Op: "list applied", Err: err}
	}
	// The history table partitions on version; ordering is up to us.
	sort.Slice(records, func(i, j int) bool { return records[i].Version < records[j].Version })
	return records, nil
}

// InsertIfAbsent implements the HistoryStore interface.
func (h *CassandraHistory) InsertIfAbsent(ctx context.Context, record MigrationRecord) (bool, error) {
	statement := fmt.Sprintf(
		"INSERT INTO %s (version, checksum, applied_at, execution_millis) VALUES (?, ?, ?, ?) IF NOT EXISTS",
		h.historyTable(),
	)
	applied, err := h.client.Query(statement, record.Version, record.Checksum, record.AppliedAt, record.ExecutionMillis).
		WithContext(ctx).
		Consistency(gocql.Quorum).
		SerialConsistency(gocql.Serial).
		MapScanCAS(map[string]interface{}{})
	if err != nil {
		return false, &StorageUnavailableError{Op: "insert record", Err: err}
	}
	return applied, nil
}

// Delete implements the HistoryStore interface.
func (h *CassandraHistory) Delete(ctx context.Context, version string) (bool, error) {
	statement := fmt.Sprintf("DELETE FROM %s WHERE version = ? IF EXISTS", h.historyTable())
	applied, err := h.client.Query(statement, version).
		WithContext(ctx).
		Consistency(gocql.Quorum).
		SerialConsistency(gocql.Serial).
		MapScanCAS(map[string]interface{}{})
	if err != nil {
		return false, &StorageUnavailableError{Op: "delete record", Err: err}
	}
	return applied, nil
}

// UpdateChecksum implements the HistoryStore interface.
func (h *CassandraHistory) UpdateChecksum(ctx context.Context, version, checksum string) error {
	statement := fmt.Sprintf("UPDATE %s SET checksum = ? WHERE version = ? IF EXISTS", h.historyTable())
	applied, err := h.client.Query(statement, checksum, version).
		WithContext(ctx).
		Consistency(gocql.Quorum).
		SerialConsistency(gocql.Serial).
		MapScanCAS(map[string]interface{}{})
	if err != nil {
		return &StorageUnavailableError{Op: "update checksum", Err: err}
	}
	if !applied {
		return &MigrationNotFoundError{Version: version}
	}
	return nil
}

// TryAcquireLock implements the HistoryStore interface.
func (h *CassandraHistory) TryAcquireLock(ctx context.Context, holderID string, lease time.Duration) (bool, error) {
	statement := fmt.Sprintf(
		"INSERT INTO %s (name, holder_id, acquired_at) VALUES (?, ?, ?) IF NOT EXISTS USING TTL ?",
		h.lockTable(),
	)
	applied, err := h.client.Query(statement, lockName, holderID, time.Now().UTC(), leaseSeconds(lease)).
		WithContext(ctx).
		Consistency(gocql.Quorum).
		SerialConsistency(gocql.Serial).
		MapScanCAS(map[string]interface{}{})
	if err != nil {
		return false, &StorageUnavailableError{Op: "acquire lock", Err: err}
	}
	return applied, nil
}

// RenewLock implements the HistoryStore interface.
func (h *CassandraHistory) RenewLock(ctx context.Context, holderID string, lease time.Duration) (bool, error) {
	statement := fmt.Sprintf(
		"UPDATE %s USING TTL ? SET holder_id = ?, acquired_at = ? WHERE name = ? IF holder_id = ?",
		h.lockTable(),
	)
	applied, err := h.client.Query(statement, leaseSeconds(lease), holderID, time.Now().UTC(), lockName, holderID).
		WithContext(ctx).
		Consistency(gocql.Quorum).
		SerialConsistency(gocql.Serial).
		MapScanCAS(map[string]interface{}{})
	if err != nil {
		return false, &StorageUnavailableError{Op: "renew lock", Err: err}
	}
	return applied, nil
}

// ReleaseLock implements the HistoryStore interface. The delete is keyed on
// holderID so a timed-out invocation can never release a lock that a newer
// holder has since acquired.
func (h *CassandraHistory) ReleaseLock(ctx context.Context, holderID string) (bool, error) {
	statement := fmt.Sprintf("DELETE FROM %s WHERE name = ? IF holder_id = ?", h.lockTable())
	previous := map[string]interface{}{}
	applied, err := h.client.Query(statement, lockName, holderID).
		WithContext(ctx).
		Consistency(gocql.Quorum).
		SerialConsistency(gocql.Serial).
		MapScanCAS(previous)
	if err != nil {
		return false, &StorageUnavailableError{Op: "release lock", Err: err}
	}
	if applied {
		return true, nil
	}
	// Condition failed against an absent row: the lease already expired or
	// was released. That is a no-op success.
	if current, ok := previous["holder_id"]; !ok || current == nil || current == "" {
		return true, nil
	}
	return false, nil
}

// Reset implements the HistoryStore interface.
func (h *CassandraHistory) Reset(ctx context.Context) error {
	statement := fmt.Sprintf("TRUNCATE %s", h.historyTable())
	if err := h.client.Query(statement).WithContext(ctx).Consistency(gocql.All).Exec(); err != nil {
		return &StorageUnavailableError{Op: "reset history", Err: err}
	}
	return nil
}

// leaseSeconds converts a lease to whole seconds, rounding up so a sub-second
// lease never produces TTL 0 (which Cassandra reads as "no expiry").
func leaseSeconds(lease time.Duration) int {
	seconds := int((lease + time.Second - 1) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}
