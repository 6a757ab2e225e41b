package migrate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLeaseSeconds(t *testing.T) {
	// TTL 0 means "no expiry" to Cassandra, so the conversion must round up
	// and never return zero.
	require.Equal(t, 1, leaseSeconds(0))
	require.Equal(t, 1, leaseSeconds(100*time.Millisecond))
	require.Equal(t, 1, leaseSeconds(time.Second))
	require.Equal(t, 2, leaseSeconds(1100*time.Millisecond))
	require.Equal(t, 30, leaseSeconds(30*time.Second))
}

func TestHistoryTableNames(t *testing.T) {
	history := &CassandraHistory{keyspace: "orders", table: "schema_migrations"}
	require.Equal(t, "orders.schema_migrations", history.historyTable())
	require.Equal(t, "orders.schema_migrations_lock", history.lockTable())
}
