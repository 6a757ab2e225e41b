package migrate

import (
	"context"

	"github.com/calleja/cql-migrate/common/go/cassandra"
)

// StatementExecutor sends one opaque statement to the storage collaborator.
// The coordinator awaits each call before issuing the next; ordering
// correctness depends on that strict sequentiality.
type StatementExecutor interface {
	Execute(ctx context.Context, statement string) error
}

// CassandraExecutor executes statements on a live session.
type CassandraExecutor struct {
	client *cassandra.Client
}

// NewCassandraExecutor returns an executor bound to client.
func NewCassandraExecutor(client *cassandra.Client) *CassandraExecutor {
	return &CassandraExecutor{client: client}
}

// Execute implements the StatementExecutor interface.
func (e *CassandraExecutor) Execute(ctx context.Context, statement string) error {
	return e.client.Query(statement).WithContext(ctx).Exec()
}

// NopExecutor is the dry-run executor: no statement text ever reaches the
// store and the coordinator writes no records while it is in use.
type NopExecutor struct{}

// Execute implements the StatementExecutor interface.
func (NopExecutor) Execute(ctx context.Context, statement string) error {
	return nil
}
