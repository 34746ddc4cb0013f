package scylla

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/gocql/gocql"

	"petchat/internal/infra/config"
)

var keyspacePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// NewSession ensures schema exists and returns a connected Scylla session.
func NewSession(ctx context.Context, cfg config.ScyllaConfig, logger *slog.Logger) (*gocql.Session, error) {
	if !keyspacePattern.MatchString(cfg.Keyspace) {
		return nil, fmt.Errorf("invalid keyspace name: %q", cfg.Keyspace)
	}
	if len(cfg.Hosts) == 0 {
		return nil, fmt.Errorf("scylla hosts required")
	}

	baseSession, err := newCluster(cfg, "").CreateSession()
	if err != nil {
		return nil, fmt.Errorf("connect to scylla: %w", err)
	}
	defer baseSession.Close()

	if err := ensureKeyspace(ctx, baseSession, cfg); err != nil {
		return nil, err
	}

	session, err := newCluster(cfg, cfg.Keyspace).CreateSession()
	if err != nil {
		return nil, fmt.Errorf("connect to keyspace %s: %w", cfg.Keyspace, err)
	}
	if err := ensureTables(ctx, session, cfg.Keyspace); err != nil {
		session.Close()
		return nil, err
	}
	if logger != nil {
		logger.Info("scylla connected", "hosts", cfg.Hosts, "keyspace", cfg.Keyspace)
	}
	return session, nil
}

func newCluster(cfg config.ScyllaConfig, keyspace string) *gocql.ClusterConfig {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = keyspace
	cluster.Consistency = cfg.Consistency
	if cfg.Timeout > 0 {
		cluster.Timeout = cfg.Timeout
		cluster.ConnectTimeout = cfg.Timeout
	}
	// LWT reads need serial consistency pinned
	cluster.SerialConsistency = gocql.LocalSerial
	if cfg.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}
	return cluster
}

func ensureKeyspace(ctx context.Context, session *gocql.Session, cfg config.ScyllaConfig) error {
	rf := cfg.ReplicationFactor
	if rf < 1 {
		rf = 1
	}
	cql := fmt.Sprintf(
		"CREATE KEYSPACE IF NOT EXISTS %s WITH replication = {'class': 'SimpleStrategy', 'replication_factor': %d}",
		cfg.Keyspace, rf,
	)
	if err := session.Query(cql).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("create keyspace: %w", err)
	}
	return nil
}

func ensureTables(ctx context.Context, session *gocql.Session, keyspace string) error {
	for _, t := range schema(keyspace) {
		if err := session.Query(t.cql).WithContext(ctx).Exec(); err != nil {
			return fmt.Errorf("create %s table: %w", t.name, err)
		}
	}
	return nil
}

type table struct {
	name string
	cql  string
}

func schema(keyspace string) []table {
	return []table{
		{"rooms", fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s.rooms (
	id text PRIMARY KEY,
	name text,
	listing_id text,
	listing_title text,
	listing_image text,
	owner_id text,
	owner_name text,
	interested_user_id text,
	interested_user_name text,
	last_message text,
	last_message_at timestamp,
	created_at timestamp,
	active boolean
);`, keyspace)},
		{"room_pairs", fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s.room_pairs (
	listing_id text,
	interested_user_id text,
	room_id text,
	PRIMARY KEY ((listing_id, interested_user_id))
);`, keyspace)},
		{"rooms_by_user", fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s.rooms_by_user (
	user_id text,
	room_id text,
	PRIMARY KEY (user_id, room_id)
);`, keyspace)},
		{"messages", fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s.messages (
	room_id text,
	created_at timestamp,
	message_id text,
	correlation_id text,
	content text,
	sender_id text,
	sender_name text,
	recipient_id text,
	recipient_name text,
	listing_id text,
	kind text,
	status text,
	read boolean,
	read_at timestamp,
	PRIMARY KEY (room_id, created_at, message_id)
) WITH CLUSTERING ORDER BY (created_at ASC, message_id ASC);`, keyspace)},
		{"message_correlations", fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s.message_correlations (
	room_id text,
	sender_id text,
	correlation_id text,
	message_id text,
	created_at timestamp,
	PRIMARY KEY ((room_id, sender_id, correlation_id))
);`, keyspace)},
	}
}
