// Package cassandra provides access to a Cassandra/ScyllaDB cluster.
package cassandra

import (
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"github.com/calleja/cql-migrate/common/go/logging"
)

var log = logging.NewLogger()

// Opts is the Client config containing the contact points and credentials.
type Opts struct {
	Hosts      []string `long:"hosts"      env:"HOSTS"      default:"127.0.0.1" description:"Cluster contact points"`
	Port       int      `long:"port"       env:"PORT"       default:"9042"      description:"CQL native protocol port"`
	Keyspace   string   `long:"keyspace"   env:"KEYSPACE"   default:""          description:"Target keyspace"`
	Username   string   `long:"username"   env:"USERNAME"   default:""          description:"Username"`
	Password   string   `long:"password"   env:"PASSWORD"   default:""          description:"Password"`
	Datacenter string   `long:"datacenter" env:"DATACENTER" default:""          description:"Local datacenter for host selection"`
	Timeout    time.Duration
}

// Client is a wrapper around a gocql session to avoid importing it in core packages.
type Client struct {
	Opts Opts
	*gocql.Session
}

// NewClient instantiates and returns a new cassandra Client. Returns an error if it fails
// to establish a session against the contact points.
func NewClient(opts Opts) (*Client, error) {
	cluster := gocql.NewCluster(opts.Hosts...)
	cluster.Port = opts.Port
	// Schema changes and history bookkeeping are not latency sensitive;
	// default every query to quorum and let the history adapter escalate.
	cluster.Consistency = gocql.Quorum
	if opts.Timeout > 0 {
		cluster.Timeout = opts.Timeout
		cluster.ConnectTimeout = opts.Timeout
	}
	if opts.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: opts.Username,
			Password: opts.Password,
		}
	}
	if opts.Datacenter != "" {
		cluster.PoolConfig.HostSelectionPolicy = gocql.TokenAwareHostPolicy(
			gocql.DCAwareRoundRobinPolicy(opts.Datacenter),
		)
	}

	log.Infof("Connecting to cassandra cluster %v on port %d", opts.Hosts, opts.Port)
	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	log.Infof("Connected to cassandra cluster %v", opts.Hosts)
	return &Client{Opts: opts, Session: session}, nil
}

// MustNewClient connects and returns a client. It panics if an error occurs.
func MustNewClient(opts Opts) *Client {
	client, err := NewClient(opts)
	if err != nil {
		log.Panicf(err.Error())
	}
	return client
}
