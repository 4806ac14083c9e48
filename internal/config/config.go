package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage modes
const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
)

// Config is the full process configuration, loaded from yaml with
// QUIZBATTLE_-prefixed environment overrides.
type Config struct {
	ListenAddr    string `mapstructure:"listen_addr"`
	InstanceID    string `mapstructure:"instance_id"`
	QuestionsFile string `mapstructure:"questions_file"`

	Storage  StorageConfig  `mapstructure:"storage"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Session  SessionConfig  `mapstructure:"session"`
	Room     RoomConfig     `mapstructure:"room"`
	Battle   BattleConfig   `mapstructure:"battle"`
	Worker   WorkerConfig   `mapstructure:"worker"`
}

// StorageConfig selects and configures the fast state store
type StorageConfig struct {
	Mode         string `mapstructure:"mode"` // memory or redis
	RedisURL     string `mapstructure:"redis_url"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
}

// PostgresConfig configures the durable repository
type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

// SessionConfig configures authentication and connection limits
type SessionConfig struct {
	MaxConnectionsPerUser int           `mapstructure:"max_connections_per_user"`
	SessionTTL            time.Duration `mapstructure:"session_ttl"`
	ConnectionTTL         time.Duration `mapstructure:"connection_ttl"`
}

// RoomConfig configures the room registry
type RoomConfig struct {
	DefaultCapacity int           `mapstructure:"default_capacity"`
	RoomTTL         time.Duration `mapstructure:"room_ttl"`
	EmptyRoomGrace  time.Duration `mapstructure:"empty_room_grace"`
}

// BattleConfig configures battle timing
type BattleConfig struct {
	StartDelay    time.Duration `mapstructure:"start_delay"`
	QuestionPause time.Duration `mapstructure:"question_pause"`
	RoundPause    time.Duration `mapstructure:"round_pause"`
	OwnerLeaseTTL time.Duration `mapstructure:"owner_lease_ttl"`
}

// WorkerConfig configures the persistence worker
type WorkerConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
	MaxRetries   int           `mapstructure:"max_retries"`
}

// Load reads configuration from the given yaml file, falling back to
// defaults when path is empty or the file is absent. Environment
// variables like QUIZBATTLE_STORAGE_MODE override file values.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("instance_id", "")
	v.SetDefault("questions_file", "")
	v.SetDefault("storage.mode", StorageMemory)
	v.SetDefault("storage.redis_url", "redis://localhost:6379/0")
	v.SetDefault("storage.pool_size", 10)
	v.SetDefault("storage.min_idle_conns", 2)
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("session.max_connections_per_user", 1)
	v.SetDefault("session.session_ttl", "24h")
	v.SetDefault("session.connection_ttl", "1h")
	v.SetDefault("room.default_capacity", 20)
	v.SetDefault("room.room_ttl", "24h")
	v.SetDefault("room.empty_room_grace", "5m")
	v.SetDefault("battle.start_delay", "5s")
	v.SetDefault("battle.question_pause", "3s")
	v.SetDefault("battle.round_pause", "5s")
	v.SetDefault("battle.owner_lease_ttl", "30s")
	v.SetDefault("worker.poll_interval", "100ms")
	v.SetDefault("worker.batch_size", 10)
	v.SetDefault("worker.max_retries", 3)

	v.SetEnvPrefix("QUIZBATTLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("quizbattle")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/quizbattle")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Storage.Mode != StorageMemory && cfg.Storage.Mode != StorageRedis {
		return nil, fmt.Errorf("unknown storage mode %q", cfg.Storage.Mode)
	}
	return &cfg, nil
}
