package db

import (
	"fmt"
	"time"

	"github.com/gocql/gocql"
)

type Session struct {
	*gocql.Session
}

func newCluster(hosts []string, keyspace string) *gocql.ClusterConfig {
	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = 5 * time.Second
	cluster.ConnectTimeout = 5 * time.Second

	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		NumRetries: 3,
		Min:        100 * time.Millisecond,
		Max:        1 * time.Second,
	}
	return cluster
}

func NewSession(hosts []string, keyspace string) (*Session, error) {
	session, err := newCluster(hosts, keyspace).CreateSession()
	if err != nil {
		return nil, fmt.Errorf("connecting to %v/%s: %w", hosts, keyspace, err)
	}
	return &Session{Session: session}, nil
}

// EnsureKeyspace creates keyspace through the system keyspace if it does not
// exist yet. keyspace is interpolated, so callers must pass a validated name.
func EnsureKeyspace(hosts []string, keyspace string) error {
	sys, err := NewSession(hosts, "system")
	if err != nil {
		return err
	}
	defer sys.Close()

	stmt := fmt.Sprintf(`CREATE KEYSPACE IF NOT EXISTS %s WITH REPLICATION = { 'class' : 'SimpleStrategy', 'replication_factor' : 1 }`, keyspace)
	if err := sys.Query(stmt).Exec(); err != nil {
		return fmt.Errorf("creating keyspace %s: %w", keyspace, err)
	}
	return nil
}
