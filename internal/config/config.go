package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	HTTPServer  HTTPServerConfig  `mapstructure:"http_server"`
	GRPCServer  GRPCServerConfig  `mapstructure:"grpc_server"`
	Diagnostics DiagnosticsConfig `mapstructure:"diagnostics"`
	Log         LogConfig         `mapstructure:"log"`
	Profile     ProfileConfig     `mapstructure:"profile"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	Websocket   WebsocketConfig   `mapstructure:"websocket"`
}

type HTTPServerConfig struct {
	Port string `mapstructure:"port"`
}

type GRPCServerConfig struct {
	Port string `mapstructure:"port"`
}

type DiagnosticsConfig struct {
	Port string `mapstructure:"port"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type ProfileConfig struct {
	Store      string        `mapstructure:"store"`
	Timeout    time.Duration `mapstructure:"timeout"`
	SQLitePath string        `mapstructure:"sqlite_path"`
	Cache      CacheConfig   `mapstructure:"cache"`
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         string `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	DBName       string `mapstructure:"db_name"`
	SSLMode      string `mapstructure:"ssl_mode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`
}

// DSN renders the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers          []string `mapstructure:"brokers"`
	MatchEventsTopic string   `mapstructure:"match_events_topic"`
}

type WebsocketConfig struct {
	SendBuffer     int   `mapstructure:"send_buffer"`
	ReadLimitBytes int64 `mapstructure:"read_limit_bytes"`
}

const (
	ProfileStoreMemory   = "memory"
	ProfileStoreSQLite   = "sqlite"
	ProfileStorePostgres = "postgres"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_server.port", "8080")
	v.SetDefault("grpc_server.port", "9090")
	v.SetDefault("diagnostics.port", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 7)
	v.SetDefault("profile.store", ProfileStoreMemory)
	v.SetDefault("profile.timeout", 3*time.Second)
	v.SetDefault("profile.sqlite_path", "duel-relay.db")
	v.SetDefault("profile.cache.enabled", false)
	v.SetDefault("profile.cache.ttl", 10*time.Minute)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.db_name", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.match_events_topic", "match_events")
	v.SetDefault("websocket.send_buffer", 64)
	v.SetDefault("websocket.read_limit_bytes", 1<<20)
}

// Load reads <name>.yaml from the first matching path and applies environment
// overrides such as HTTP_SERVER_PORT or PROFILE_STORE. A missing file is not an error;
// the defaults and environment are used instead.
func Load(name string, paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config %q: %w", name, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	switch cfg.Profile.Store {
	case ProfileStoreMemory, ProfileStoreSQLite, ProfileStorePostgres:
	default:
		return nil, fmt.Errorf("profile.store must be %q, %q or %q, got %q",
			ProfileStoreMemory, ProfileStoreSQLite, ProfileStorePostgres, cfg.Profile.Store)
	}
	if cfg.Profile.Store == ProfileStoreMemory && cfg.Profile.Cache.Enabled {
		return nil, fmt.Errorf("profile.cache.enabled requires profile.store %q or %q", ProfileStoreSQLite, ProfileStorePostgres)
	}
	return &cfg, nil
}
