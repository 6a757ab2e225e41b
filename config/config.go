// Package config loads the cql-migrate configuration from a TOML file with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/calleja/cql-migrate/common/go/logging"
)

var log = logging.NewLogger()

// DefaultPath is the config file looked up when none is given.
const DefaultPath = "cql-migrate.toml"

const envPrefix = "CQL_MIGRATE_"

// ConfigurationError reports an invalid or unusable configuration.
type ConfigurationError struct {
	Reason string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// Config is the full tool configuration.
type Config struct {
	Database   DatabaseConfig   `toml:"database"`
	Migrations MigrationsConfig `toml:"migrations"`
	Behavior   BehaviorConfig   `toml:"behavior"`
}

// DatabaseConfig locates and authenticates against the cluster.
type DatabaseConfig struct {
	Hosts      []string `toml:"hosts"`
	Port       int      `toml:"port"`
	Keyspace   string   `toml:"keyspace"`
	Username   string   `toml:"username"`
	Password   string   `toml:"password"`
	Datacenter string   `toml:"datacenter"`
}

// MigrationsConfig locates the migration scripts and the history table.
type MigrationsConfig struct {
	Directory string `toml:"directory"`
	TableName string `toml:"table_name"`
}

// BehaviorConfig tunes the migration state machine.
type BehaviorConfig struct {
	AutoCreateKeyspace        bool `toml:"auto_create_keyspace"`
	VerifyChecksums           bool `toml:"verify_checksums"`
	AllowDestructive          bool `toml:"allow_destructive"`
	NormalizeChecksums        bool `toml:"normalize_checksums"`
	TimeoutSeconds            int  `toml:"timeout_seconds"`
	LockLeaseSeconds          int  `toml:"lock_lease_seconds"`
	LockAcquireTimeoutSeconds int  `toml:"lock_acquire_timeout_seconds"`
}

// Default returns the configuration used in the absence of a file.
func Default() Config {
	return Config{
		Database: DatabaseConfig{
			Hosts:      []string{"127.0.0.1"},
			Port:       9042,
			Keyspace:   "migrations_test",
			Datacenter: "datacenter1",
		},
		Migrations: MigrationsConfig{
			Directory: "./migrations",
			TableName: "schema_migrations",
		},
		Behavior: BehaviorConfig{
			AutoCreateKeyspace:        true,
			VerifyChecksums:           true,
			AllowDestructive:          false,
			NormalizeChecksums:        true,
			TimeoutSeconds:            30,
			LockLeaseSeconds:          30,
			LockAcquireTimeoutSeconds: 60,
		},
	}
}

// Load reads the file at path, overrides from CQL_MIGRATE_* environment
// variables, validates and returns the result. A missing file is not an
// error; defaults apply.
func Load(path string) (Config, error) {
	config := Default()
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &config); err != nil {
			return config, &ConfigurationError{Reason: fmt.Sprintf("parsing %s: %v", path, err)}
		}
	} else {
		log.Infof("Config file %s not found, using defaults", path)
	}
	config.overrideFromEnv()
	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

func (c *Config) overrideFromEnv() {
	if hosts, ok := os.LookupEnv(envPrefix + "HOSTS"); ok {
		c.Database.Hosts = c.Database.Hosts[:0]
		for _, host := range strings.Split(hosts, ",") {
			c.Database.Hosts = append(c.Database.Hosts, strings.TrimSpace(host))
		}
	}
	setString(&c.Database.Keyspace, "KEYSPACE")
	setString(&c.Database.Username, "USERNAME")
	setString(&c.Database.Password, "PASSWORD")
	setString(&c.Database.Datacenter, "DATACENTER")
	setInt(&c.Database.Port, "PORT")
	setString(&c.Migrations.Directory, "MIGRATIONS_DIR")
	setString(&c.Migrations.TableName, "TABLE_NAME")
	setBool(&c.Behavior.AutoCreateKeyspace, "AUTO_CREATE_KEYSPACE")
	setBool(&c.Behavior.VerifyChecksums, "VERIFY_CHECKSUMS")
	setBool(&c.Behavior.AllowDestructive, "ALLOW_DESTRUCTIVE")
	setBool(&c.Behavior.NormalizeChecksums, "NORMALIZE_CHECKSUMS")
	setInt(&c.Behavior.TimeoutSeconds, "TIMEOUT_SECONDS")
	setInt(&c.Behavior.LockLeaseSeconds, "LOCK_LEASE_SECONDS")
	setInt(&c.Behavior.LockAcquireTimeoutSeconds, "LOCK_ACQUIRE_TIMEOUT_SECONDS")
}

func setString(target *string, name string) {
	if value, ok := os.LookupEnv(envPrefix + name); ok {
		*target = value
	}
}

func setBool(target *bool, name string) {
	if value, ok := os.LookupEnv(envPrefix + name); ok {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			log.Warnf("Ignoring %s%s=%q: not a boolean", envPrefix, name, value)
			return
		}
		*target = parsed
	}
}

func setInt(target *int, name string) {
	if value, ok := os.LookupEnv(envPrefix + name); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			log.Warnf("Ignoring %s%s=%q: not an integer", envPrefix, name, value)
			return
		}
		*target = parsed
	}
}

// Validate checks the configuration for values the tool cannot run with.
func (c *Config) Validate() error {
	if len(c.Database.Hosts) == 0 {
		return &ConfigurationError{Reason: "at least one database host must be specified"}
	}
	for _, host := range c.Database.Hosts {
		if strings.TrimSpace(host) == "" {
			return &ConfigurationError{Reason: "database hosts must not be blank"}
		}
	}
	if c.Database.Keyspace == "" {
		return &ConfigurationError{Reason: "database keyspace must be specified"}
	}
	if c.Migrations.TableName == "" {
		return &ConfigurationError{Reason: "migrations table name cannot be empty"}
	}
	if c.Behavior.LockLeaseSeconds <= 0 {
		return &ConfigurationError{Reason: "lock lease must be positive"}
	}
	return nil
}

// Timeout returns the per-request timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Behavior.TimeoutSeconds) * time.Second
}

// LockLease returns the lock lease duration.
func (c *Config) LockLease() time.Duration {
	return time.Duration(c.Behavior.LockLeaseSeconds) * time.Second
}

// LockAcquireTimeout returns the lock acquisition window.
func (c *Config) LockAcquireTimeout() time.Duration {
	return time.Duration(c.Behavior.LockAcquireTimeoutSeconds) * time.Second
}

// WriteDefault writes a default config file at path. It refuses to overwrite
// an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return &ConfigurationError{Reason: fmt.Sprintf("%s already exists", path)}
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer file.Close()
	defaults := Default()
	if err := toml.NewEncoder(file).Encode(&defaults); err != nil {
		return fmt.Errorf("encoding config file: %w", err)
	}
	return nil
}
