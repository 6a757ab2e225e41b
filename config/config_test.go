package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleConfig = `
[database]
hosts = ["scylla-1.internal", "scylla-2.internal"]
port = 19042
keyspace = "orders"
username = "migrator"
datacenter = "eu-west-1"

[migrations]
directory = "./db/migrations"
table_name = "migration_history"

[behavior]
verify_checksums = false
allow_destructive = true
lock_lease_seconds = 45
`

func TestLoad(t *testing.T) {
	t.Run("MissingFileUsesDefaults", func(t *testing.T) {
		config, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
		require.NoError(t, err)
		require.Equal(t, Default(), config)
		require.Equal(t, []string{"127.0.0.1"}, config.Database.Hosts)
		require.Equal(t, 9042, config.Database.Port)
		require.True(t, config.Behavior.VerifyChecksums)
		require.True(t, config.Behavior.NormalizeChecksums)
		require.False(t, config.Behavior.AllowDestructive)
	})

	t.Run("FileOverridesDefaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "cql-migrate.toml")
		require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o644))

		config, err := Load(path)
		require.NoError(t, err)
		require.Equal(t, []string{"scylla-1.internal", "scylla-2.internal"}, config.Database.Hosts)
		require.Equal(t, 19042, config.Database.Port)
		require.Equal(t, "orders", config.Database.Keyspace)
		require.Equal(t, "migration_history", config.Migrations.TableName)
		require.False(t, config.Behavior.VerifyChecksums)
		require.True(t, config.Behavior.AllowDestructive)
		require.Equal(t, 45*time.Second, config.LockLease())
		// Unset keys keep their defaults.
		require.True(t, config.Behavior.AutoCreateKeyspace)
		require.Equal(t, 60*time.Second, config.LockAcquireTimeout())
	})

	t.Run("EnvironmentOverridesFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "cql-migrate.toml")
		require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o644))
		t.Setenv("CQL_MIGRATE_HOSTS", "10.0.0.1, 10.0.0.2")
		t.Setenv("CQL_MIGRATE_KEYSPACE", "payments")
		t.Setenv("CQL_MIGRATE_PORT", "29042")
		t.Setenv("CQL_MIGRATE_VERIFY_CHECKSUMS", "true")
		t.Setenv("CQL_MIGRATE_LOCK_LEASE_SECONDS", "15")

		config, err := Load(path)
		require.NoError(t, err)
		require.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, config.Database.Hosts)
		require.Equal(t, "payments", config.Database.Keyspace)
		require.Equal(t, 29042, config.Database.Port)
		require.True(t, config.Behavior.VerifyChecksums)
		require.Equal(t, 15*time.Second, config.LockLease())
	})

	t.Run("UnparseableEnvValueIsIgnored", func(t *testing.T) {
		t.Setenv("CQL_MIGRATE_PORT", "not-a-port")
		t.Setenv("CQL_MIGRATE_VERIFY_CHECKSUMS", "maybe")

		config, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
		require.NoError(t, err)
		require.Equal(t, 9042, config.Database.Port)
		require.True(t, config.Behavior.VerifyChecksums)
	})

	t.Run("MalformedFileIsAConfigurationError", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "cql-migrate.toml")
		require.NoError(t, os.WriteFile(path, []byte("[database\nhosts = ???"), 0o644))

		_, err := Load(path)
		configErr := &ConfigurationError{}
		require.ErrorAs(t, err, &configErr)
	})
}

func TestValidate(t *testing.T) {
	t.Run("DefaultsAreValid", func(t *testing.T) {
		config := Default()
		require.NoError(t, config.Validate())
	})

	t.Run("RejectsEmptyHosts", func(t *testing.T) {
		config := Default()
		config.Database.Hosts = nil
		require.Error(t, config.Validate())

		config.Database.Hosts = []string{"  "}
		require.Error(t, config.Validate())
	})

	t.Run("RejectsEmptyKeyspace", func(t *testing.T) {
		config := Default()
		config.Database.Keyspace = ""
		require.Error(t, config.Validate())
	})

	t.Run("RejectsEmptyTableName", func(t *testing.T) {
		config := Default()
		config.Migrations.TableName = ""
		require.Error(t, config.Validate())
	})

	t.Run("RejectsNonPositiveLease", func(t *testing.T) {
		config := Default()
		config.Behavior.LockLeaseSeconds = 0
		require.Error(t, config.Validate())
	})
}

func TestWriteDefault(t *testing.T) {
	t.Run("WritesALoadableFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "cql-migrate.toml")
		require.NoError(t, WriteDefault(path))

		config, err := Load(path)
		require.NoError(t, err)
		require.Equal(t, Default(), config)
	})

	t.Run("RefusesToOverwrite", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "cql-migrate.toml")
		require.NoError(t, WriteDefault(path))
		err := WriteDefault(path)
		configErr := &ConfigurationError{}
		require.ErrorAs(t, err, &configErr)
	})
}

func TestDurationHelpers(t *testing.T) {
	config := Default()
	require.Equal(t, 30*time.Second, config.Timeout())
	require.Equal(t, 30*time.Second, config.LockLease())
	require.Equal(t, 60*time.Second, config.LockAcquireTimeout())
}
