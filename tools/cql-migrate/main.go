// Command cql-migrate applies and reverses versioned CQL schema migrations
// against a Cassandra or ScyllaDB keyspace.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/calleja/cql-migrate/common/go/cassandra"
	"github.com/calleja/cql-migrate/common/go/contexttag"
	"github.com/calleja/cql-migrate/common/go/logging"
	"github.com/calleja/cql-migrate/config"
	"github.com/calleja/cql-migrate/migrate"
)

var log = logging.NewRawLogger()

var rootOpts struct {
	configPath string
	verbose    bool
	output     string
}

func main() {
	root := &cobra.Command{
		Use:           "cql-migrate",
		Short:         "Versioned CQL schema migrations for Cassandra and ScyllaDB",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if rootOpts.verbose {
				log.SetVerbosity(logging.DebugLevel)
			}
		},
	}
	root.PersistentFlags().StringVarP(&rootOpts.configPath, "config", "c", config.DefaultPath, "Configuration file path")
	root.PersistentFlags().BoolVarP(&rootOpts.verbose, "verbose", "v", false, "Enable verbose logging")
	root.PersistentFlags().StringVar(&rootOpts.output, "output", "text", "Output format (text, json)")
	root.AddCommand(
		newCreateCommand(),
		newUpCommand(),
		newDownCommand(),
		newStatusCommand(),
		newVerifyCommand(),
		newResetCommand(),
		newConfigCommand(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = contexttag.SetOntoContext(ctx)

	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errAlreadyReported) {
			emitError(err)
		}
		os.Exit(1)
	}
}

// environment holds everything a database-facing command needs.
type environment struct {
	config      config.Config
	client      *cassandra.Client
	coordinator *migrate.Coordinator
}

// newEnvironment loads configuration, connects to the cluster, bootstraps the
// history tables and wires up a coordinator.
func newEnvironment(ctx context.Context, dryRun bool) (*environment, error) {
	cfg, err := config.Load(rootOpts.configPath)
	if err != nil {
		return nil, err
	}
	client, err := cassandra.NewClient(cassandra.Opts{
		Hosts:      cfg.Database.Hosts,
		Port:       cfg.Database.Port,
		Keyspace:   cfg.Database.Keyspace,
		Username:   cfg.Database.Username,
		Password:   cfg.Database.Password,
		Datacenter: cfg.Database.Datacenter,
		Timeout:    cfg.Timeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to cluster: %w", err)
	}
	history := migrate.NewCassandraHistory(client, cfg.Migrations.TableName)
	if err := history.Initialize(ctx, cfg.Behavior.AutoCreateKeyspace); err != nil {
		client.Close()
		return nil, err
	}
	source := migrate.NewSource(cfg.Migrations.Directory, cfg.Behavior.NormalizeChecksums)
	coordinator := migrate.NewCoordinator(source, history, migrate.NewCassandraExecutor(client), migrate.Options{
		Lease:           cfg.LockLease(),
		AcquireTimeout:  cfg.LockAcquireTimeout(),
		VerifyChecksums: cfg.Behavior.VerifyChecksums,
		DryRun:          dryRun,
	})
	return &environment{config: cfg, client: client, coordinator: coordinator}, nil
}

// Close releases the cluster session.
func (e *environment) Close() {
	e.client.Close()
}
