package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Watch modes for the balance reconciler
const (
	WatchModeSubscribe = "subscribe"
	WatchModePoll      = "poll"
)

// Config holds all application configuration
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Server     ServerConfig     `yaml:"server"`
	App        AppConfig        `yaml:"app"`
	Solana     SolanaConfig     `yaml:"solana"`
	Settlement SettlementConfig `yaml:"settlement"`
	Redis      RedisConfig      `yaml:"redis"`
	Kafka      KafkaConfig      `yaml:"kafka"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver     string `yaml:"driver"`
	Host       string `yaml:"host"`
	Port       string `yaml:"port"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	DBName     string `yaml:"name"`
	SQLitePath string `yaml:"sqlite_path"`
}

// ServerConfig holds server settings
type ServerConfig struct {
	Port           string   `yaml:"port"`
	MetricsPort    string   `yaml:"metrics_port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Env              string `yaml:"env"`
	JWTSecret        string `yaml:"jwt_secret"`
	CredentialSecret string `yaml:"credential_secret"`
}

// SolanaConfig holds chain access settings
type SolanaConfig struct {
	Network       string        `yaml:"network"`
	RPCURL        string        `yaml:"rpc_url"`
	WSURL         string        `yaml:"ws_url"`
	TokenMint     string        `yaml:"token_mint"`
	TokenDecimals int32         `yaml:"token_decimals"`
	WatchMode     string        `yaml:"watch_mode"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	RPCRateLimit  float64       `yaml:"rpc_rate_limit"`
}

// SettlementConfig holds timing for transfers and background jobs
type SettlementConfig struct {
	TransferTimeout      time.Duration `yaml:"transfer_timeout"`
	SchedulerInterval    time.Duration `yaml:"scheduler_interval"`
	PendingSweepInterval time.Duration `yaml:"pending_sweep_interval"`
	PendingGrace         time.Duration `yaml:"pending_grace"`
	PendingExpiry        time.Duration `yaml:"pending_expiry"`
}

// RedisConfig holds the session store connection
type RedisConfig struct {
	Addr       string        `yaml:"addr"`
	Password   string        `yaml:"password"`
	DB         int           `yaml:"db"`
	SessionTTL time.Duration `yaml:"session_ttl"`
}

// KafkaConfig holds event and decision topics. Empty Brokers disables Kafka.
type KafkaConfig struct {
	Brokers               []string `yaml:"brokers"`
	EventsTopic           string   `yaml:"events_topic"`
	DecisionRequestTopic  string   `yaml:"decision_request_topic"`
	DecisionResponseTopic string   `yaml:"decision_response_topic"`
	GroupID               string   `yaml:"group_id"`
}

// Default returns the configuration used when nothing else is provided
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:     "postgres",
			Host:       "localhost",
			Port:       "5432",
			User:       "postgres",
			DBName:     "wager_settlement",
			SQLitePath: "wager_settlement.db",
		},
		Server: ServerConfig{
			Port:        "8080",
			MetricsPort: "9090",
			AllowedOrigins: []string{
				"http://localhost:3000",
				"http://localhost:5173",
			},
		},
		App: AppConfig{
			Env: "local",
		},
		Solana: SolanaConfig{
			Network:       "devnet",
			RPCURL:        "https://api.devnet.solana.com",
			WSURL:         "wss://api.devnet.solana.com",
			TokenMint:     "7SGrxHJFwNcsjkeu5WqZZKpB1b8LayWZLtrEEtBYhLjW",
			TokenDecimals: 9,
			WatchMode:     WatchModeSubscribe,
			PollInterval:  15 * time.Second,
			RPCRateLimit:  10,
		},
		Settlement: SettlementConfig{
			TransferTimeout:      45 * time.Second,
			SchedulerInterval:    5 * time.Minute,
			PendingSweepInterval: time.Minute,
			PendingGrace:         2 * time.Minute,
			PendingExpiry:        10 * time.Minute,
		},
		Redis: RedisConfig{
			SessionTTL: 30 * time.Minute,
		},
		Kafka: KafkaConfig{
			EventsTopic:           "wager.events",
			DecisionRequestTopic:  "wager.decision_requests",
			DecisionResponseTopic: "wager.decision_responses",
			GroupID:               "wager-settlement",
		},
	}
}

// Load loads configuration from defaults, an optional YAML file and environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := config.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.Database.Driver = getEnv("DB_DRIVER", c.Database.Driver)
	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnv("DB_PORT", c.Database.Port)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.DBName = getEnv("DB_NAME", c.Database.DBName)
	c.Database.SQLitePath = getEnv("DB_SQLITE_PATH", c.Database.SQLitePath)

	c.Server.Port = getEnv("SERVER_PORT", c.Server.Port)
	c.Server.MetricsPort = getEnv("METRICS_PORT", c.Server.MetricsPort)
	c.Server.AllowedOrigins = getEnvList("ALLOWED_ORIGINS", c.Server.AllowedOrigins)

	c.App.Env = getEnv("APP_ENV", c.App.Env)
	c.App.JWTSecret = getEnv("JWT_SECRET", c.App.JWTSecret)
	c.App.CredentialSecret = getEnv("CREDENTIAL_SECRET", c.App.CredentialSecret)

	c.Solana.Network = getEnv("SOLANA_NETWORK", c.Solana.Network)
	c.Solana.RPCURL = getEnv("SOLANA_RPC_URL", c.Solana.RPCURL)
	c.Solana.WSURL = getEnv("SOLANA_WS_URL", c.Solana.WSURL)
	c.Solana.TokenMint = getEnv("VS_TOKEN_MINT_ADDRESS", c.Solana.TokenMint)
	c.Solana.WatchMode = getEnv("SOLANA_WATCH_MODE", c.Solana.WatchMode)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)

	c.Kafka.Brokers = getEnvList("KAFKA_BROKERS", c.Kafka.Brokers)
	c.Kafka.EventsTopic = getEnv("KAFKA_EVENTS_TOPIC", c.Kafka.EventsTopic)
	c.Kafka.DecisionRequestTopic = getEnv("KAFKA_DECISION_REQUEST_TOPIC", c.Kafka.DecisionRequestTopic)
	c.Kafka.DecisionResponseTopic = getEnv("KAFKA_DECISION_RESPONSE_TOPIC", c.Kafka.DecisionResponseTopic)
	c.Kafka.GroupID = getEnv("KAFKA_GROUP_ID", c.Kafka.GroupID)

	var err error
	if c.Solana.TokenDecimals, err = getEnvInt32("TOKEN_DECIMALS", c.Solana.TokenDecimals); err != nil {
		return err
	}
	if c.Solana.RPCRateLimit, err = getEnvFloat("SOLANA_RPC_RATE_LIMIT", c.Solana.RPCRateLimit); err != nil {
		return err
	}
	if c.Redis.DB, err = getEnvInt("REDIS_DB", c.Redis.DB); err != nil {
		return err
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"SOLANA_POLL_INTERVAL", &c.Solana.PollInterval},
		{"TRANSFER_TIMEOUT", &c.Settlement.TransferTimeout},
		{"SCHEDULER_INTERVAL", &c.Settlement.SchedulerInterval},
		{"PENDING_SWEEP_INTERVAL", &c.Settlement.PendingSweepInterval},
		{"PENDING_GRACE", &c.Settlement.PendingGrace},
		{"PENDING_EXPIRY", &c.Settlement.PendingExpiry},
		{"SESSION_TTL", &c.Redis.SessionTTL},
	}
	for _, d := range durations {
		if *d.dst, err = getEnvDuration(d.key, *d.dst); err != nil {
			return err
		}
	}

	return nil
}

// Validate checks required fields and value ranges
func (c *Config) Validate() error {
	if c.App.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.App.CredentialSecret == "" {
		return fmt.Errorf("CREDENTIAL_SECRET is required")
	}

	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}

	switch c.Solana.WatchMode {
	case WatchModeSubscribe, WatchModePoll:
	default:
		return fmt.Errorf("unsupported SOLANA_WATCH_MODE %q", c.Solana.WatchMode)
	}

	if _, err := solana.PublicKeyFromBase58(c.Solana.TokenMint); err != nil {
		return fmt.Errorf("invalid VS_TOKEN_MINT_ADDRESS: %w", err)
	}

	if c.Solana.TokenDecimals < 0 || c.Solana.TokenDecimals > 18 {
		return fmt.Errorf("TOKEN_DECIMALS must be between 0 and 18")
	}

	if c.Settlement.TransferTimeout <= 0 || c.Settlement.SchedulerInterval <= 0 || c.Settlement.PendingSweepInterval <= 0 {
		return fmt.Errorf("settlement intervals must be positive")
	}

	if c.Settlement.PendingExpiry < c.Settlement.PendingGrace {
		return fmt.Errorf("PENDING_EXPIRY must not be shorter than PENDING_GRACE")
	}

	return nil
}

// GetDSN returns the connection string for the configured driver
func (c *Config) GetDSN() string {
	if c.Database.Driver == "sqlite" {
		return c.Database.SQLitePath
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
	)
}

// KafkaEnabled reports whether event publishing and decision messaging go through Kafka
func (c *Config) KafkaEnabled() bool {
	return len(c.Kafka.Brokers) > 0
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvInt32(key string, defaultValue int32) (int32, error) {
	n, err := getEnvInt(key, int(defaultValue))
	return int32(n), err
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
