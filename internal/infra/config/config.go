package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gocql/gocql"
)

// Config aggregates API server configuration loaded from environment variables.
type Config struct {
	Env                string
	HTTPAddr           string
	JWTSecret          string
	JWTIssuer          string
	CORSOrigins        []string
	CatalogFixtures    string
	ChatStore          string
	Scylla             ScyllaConfig
	MongoURI           string
	MongoDB            string
	KafkaBrokers       []string
	KafkaTopicPrefix   string
	OutboxPollInterval time.Duration
	RetryBackoff       []time.Duration
	S3Endpoint         string
	S3PublicEndpoint   string
	S3AccessKey        string
	S3SecretKey        string
	S3Bucket           string
	S3UseSSL           bool
	MessagingGRPCAddr  string
	MessagingGRPCDial  time.Duration
	MessagingGRPCTime  time.Duration
}

// Chat store backends.
const (
	ChatStoreMemory = "memory"
	ChatStoreScylla = "scylla"
	ChatStoreGRPC   = "grpc"
)

// ScyllaConfig holds Scylla connection settings.
type ScyllaConfig struct {
	Hosts             []string
	Keyspace          string
	Username          string
	Password          string
	Consistency       gocql.Consistency
	Timeout           time.Duration
	ReplicationFactor int
}

// MessagingConfig configures the standalone gRPC messaging service.
type MessagingConfig struct {
	Env             string
	GRPCAddr        string
	ChatStore       string
	CatalogFixtures string
	Scylla          ScyllaConfig
}

// ClientConfig configures the terminal client.
type ClientConfig struct {
	Env          string
	BaseURL      string
	LiveURL      string
	Token        string
	UserID       string
	PollInterval time.Duration
	Timeout      time.Duration
	LogFile      string
}

// Load parses API server configuration from the current environment.
func Load() (Config, error) {
	cfg := Config{
		Env:               getEnv("APP_ENV", "dev"),
		HTTPAddr:          getEnv("HTTP_ADDR", ":8080"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		JWTIssuer:         getEnv("JWT_ISSUER", "petchat"),
		CORSOrigins:       splitAndTrim(getEnv("CORS_ORIGINS", "*")),
		CatalogFixtures:   getEnv("CATALOG_FIXTURES", "data/catalog.json"),
		ChatStore:         strings.ToLower(getEnv("CHAT_STORE", ChatStoreMemory)),
		MongoURI:          os.Getenv("MONGO_URI"),
		MongoDB:           getEnv("MONGO_DB", "petchat"),
		KafkaBrokers:      splitAndTrim(os.Getenv("KAFKA_BROKERS")),
		KafkaTopicPrefix:  getEnv("KAFKA_TOPIC_PREFIX", ""),
		S3Endpoint:        os.Getenv("S3_ENDPOINT"),
		S3PublicEndpoint:  getEnv("S3_PUBLIC_ENDPOINT", ""),
		S3AccessKey:       getEnv("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:       getEnv("S3_SECRET_KEY", "minioadmin"),
		S3Bucket:          getEnv("S3_BUCKET", "petchat-attachments"),
		MessagingGRPCAddr: getEnv("MESSAGING_GRPC_ADDR", "localhost:9090"),
	}
	var err error
	if cfg.OutboxPollInterval, err = parseDurationEnv("OUTBOX_POLL_INTERVAL", 500*time.Millisecond); err != nil {
		return Config{}, err
	}
	if cfg.MessagingGRPCDial, err = parseDurationEnv("MESSAGING_GRPC_DIAL_TIMEOUT", 3*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.MessagingGRPCTime, err = parseDurationEnv("MESSAGING_GRPC_TIMEOUT", 5*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.RetryBackoff, err = parseBackoff(getEnv("RETRY_BACKOFF", "1s,5s,30s")); err != nil {
		return Config{}, err
	}
	if cfg.S3UseSSL, err = parseBoolEnv("S3_USE_SSL", false); err != nil {
		return Config{}, err
	}
	if cfg.S3PublicEndpoint == "" {
		cfg.S3PublicEndpoint = cfg.S3Endpoint
	}

	switch cfg.ChatStore {
	case ChatStoreMemory, ChatStoreGRPC:
	case ChatStoreScylla:
		if cfg.Scylla, err = loadScylla(); err != nil {
			return Config{}, err
		}
	default:
		return Config{}, fmt.Errorf("unsupported CHAT_STORE: %s", cfg.ChatStore)
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.MongoURI == "" {
		return Config{}, fmt.Errorf("MONGO_URI is required when KAFKA_BROKERS is set")
	}
	return cfg, nil
}

// LoadMessaging parses configuration for the standalone messaging service.
func LoadMessaging() (MessagingConfig, error) {
	cfg := MessagingConfig{
		Env:             getEnv("APP_ENV", "dev"),
		GRPCAddr:        getEnv("GRPC_ADDR", ":9090"),
		ChatStore:       strings.ToLower(getEnv("CHAT_STORE", ChatStoreScylla)),
		CatalogFixtures: getEnv("CATALOG_FIXTURES", "data/catalog.json"),
	}
	switch cfg.ChatStore {
	case ChatStoreMemory:
	case ChatStoreScylla:
		scylla, err := loadScylla()
		if err != nil {
			return MessagingConfig{}, err
		}
		cfg.Scylla = scylla
	default:
		return MessagingConfig{}, fmt.Errorf("unsupported CHAT_STORE for messaging service: %s", cfg.ChatStore)
	}
	return cfg, nil
}

// LoadClient parses terminal client configuration.
func LoadClient() (ClientConfig, error) {
	cfg := ClientConfig{
		Env:     getEnv("APP_ENV", "dev"),
		BaseURL: strings.TrimRight(getEnv("PETCHAT_API_URL", "http://localhost:8080/api"), "/"),
		LiveURL: getEnv("PETCHAT_WS_URL", ""),
		Token:   strings.TrimSpace(os.Getenv("PETCHAT_TOKEN")),
		UserID:  strings.TrimSpace(os.Getenv("PETCHAT_USER_ID")),
		LogFile: strings.TrimSpace(os.Getenv("PETCHAT_LOG_FILE")),
	}
	var err error
	if cfg.PollInterval, err = parseDurationEnv("PETCHAT_POLL_INTERVAL", 30*time.Second); err != nil {
		return ClientConfig{}, err
	}
	if cfg.Timeout, err = parseDurationEnv("PETCHAT_HTTP_TIMEOUT", 10*time.Second); err != nil {
		return ClientConfig{}, err
	}
	if cfg.LiveURL == "" {
		cfg.LiveURL = deriveLiveURL(cfg.BaseURL)
	}
	if cfg.PollInterval <= 0 {
		return ClientConfig{}, fmt.Errorf("PETCHAT_POLL_INTERVAL must be positive")
	}
	return cfg, nil
}

// deriveLiveURL maps http(s)://host/api to ws(s)://host/ws.
func deriveLiveURL(base string) string {
	u := strings.TrimSuffix(base, "/api")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}

func loadScylla() (ScyllaConfig, error) {
	cfg := ScyllaConfig{
		Hosts:    splitAndTrim(getEnv("SCYLLA_HOSTS", "localhost")),
		Keyspace: strings.TrimSpace(getEnv("SCYLLA_KEYSPACE", "petchat")),
		Username: strings.TrimSpace(os.Getenv("SCYLLA_USERNAME")),
		Password: strings.TrimSpace(os.Getenv("SCYLLA_PASSWORD")),
		ReplicationFactor: parseIntWithDefault(
			strings.TrimSpace(os.Getenv("SCYLLA_REPLICATION_FACTOR")), 1),
	}
	if cfg.Keyspace == "" {
		return ScyllaConfig{}, fmt.Errorf("SCYLLA_KEYSPACE is required")
	}
	if len(cfg.Hosts) == 0 {
		return ScyllaConfig{}, fmt.Errorf("SCYLLA_HOSTS is required")
	}
	timeout, err := parseDurationEnv("SCYLLA_TIMEOUT", 5*time.Second)
	if err != nil {
		return ScyllaConfig{}, err
	}
	cfg.Timeout = timeout
	consistency, err := parseConsistency(getEnv("SCYLLA_CONSISTENCY", "quorum"))
	if err != nil {
		return ScyllaConfig{}, err
	}
	cfg.Consistency = consistency
	if cfg.ReplicationFactor < 1 {
		cfg.ReplicationFactor = 1
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", key, err)
	}
	return d, nil
}

func parseBackoff(raw string) ([]time.Duration, error) {
	var out []time.Duration
	for _, part := range strings.Split(raw, ",") {
		val := strings.TrimSpace(part)
		if val == "" {
			continue
		}
		d, err := time.ParseDuration(val)
		if err != nil {
			return nil, fmt.Errorf("invalid RETRY_BACKOFF component %q: %w", part, err)
		}
		out = append(out, d)
	}
	return out, nil
}

func parseBoolEnv(key string, def bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "t", "true", "yes", "y", "on":
		return true, nil
	case "0", "f", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid %s boolean: %q", key, raw)
	}
}

func parseIntWithDefault(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v == 0 {
		return def
	}
	return v
}

func parseConsistency(raw string) (gocql.Consistency, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "quorum":
		return gocql.Quorum, nil
	case "one":
		return gocql.One, nil
	case "local_quorum", "localquorum":
		return gocql.LocalQuorum, nil
	case "all":
		return gocql.All, nil
	default:
		return gocql.Quorum, fmt.Errorf("unsupported SCYLLA_CONSISTENCY: %s", raw)
	}
}
