package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	BusOutbox = "outbox"
	BusDirect = "direct"

	// StoreMemory is process-local. Every command runs as its own process, so
	// only tests construct it; the config rejects it.
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type Config struct {
	App        App        `yaml:"app"`
	HTTP       HTTP       `yaml:"http"`
	Log        Log        `yaml:"log"`
	Postgres   Postgres   `yaml:"postgres"`
	Redis      Redis      `yaml:"redis"`
	Kafka      Kafka      `yaml:"kafka"`
	Sweeper    Sweeper    `yaml:"sweeper"`
	Relay      Relay      `yaml:"relay"`
	Fares      Fares      `yaml:"fares"`
	Validation Validation `yaml:"validation"`
	Bus        Bus        `yaml:"bus"`
	Store      Store      `yaml:"store"`
}

type App struct {
	Name    string `yaml:"name" env:"APP_NAME" env-default:"transit-ticketing"`
	Version string `yaml:"version" env:"APP_VERSION" env-default:"1.0.0"`
}

type HTTP struct {
	Port        string `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
	MetricsPort string `yaml:"metrics_port" env:"METRICS_PORT" env-default:"9090"`
}

type Log struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

type Postgres struct {
	Host     string `yaml:"host" env:"POSTGRES_HOST" env-default:"localhost"`
	Port     string `yaml:"port" env:"POSTGRES_PORT" env-default:"5432"`
	User     string `yaml:"user" env:"POSTGRES_USER" env-default:"user"`
	Password string `yaml:"password" env:"POSTGRES_PASSWORD" env-default:"password"`
	DBName   string `yaml:"dbname" env:"POSTGRES_DB" env-default:"tickets_db"`
	MaxConns int32  `yaml:"max_conns" env:"POSTGRES_MAX_CONNS" env-default:"10"`
}

type Redis struct {
	Addr     string        `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"REDIS_DB" env-default:"0"`
	CacheTTL time.Duration `yaml:"cache_ttl" env:"REDIS_CACHE_TTL" env-default:"1s"`
	Timeout  time.Duration `yaml:"timeout" env:"REDIS_TIMEOUT" env-default:"500ms"`
}

type Kafka struct {
	Brokers     []string      `yaml:"brokers" env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	GroupID     string        `yaml:"group_id" env:"KAFKA_GROUP_ID"`
	StartOffset string        `yaml:"start_offset" env:"KAFKA_START_OFFSET" env-default:"earliest"`
	MaxAttempts int           `yaml:"max_attempts" env:"KAFKA_MAX_ATTEMPTS" env-default:"5"`
	Backoff     time.Duration `yaml:"backoff" env:"KAFKA_BACKOFF" env-default:"500ms"`
	MaxBackoff  time.Duration `yaml:"max_backoff" env:"KAFKA_MAX_BACKOFF" env-default:"30s"`
}

type Sweeper struct {
	Interval  time.Duration `yaml:"interval" env:"SWEEPER_INTERVAL" env-default:"5m"`
	BatchSize int           `yaml:"batch_size" env:"SWEEPER_BATCH_SIZE" env-default:"500"`
}

type Relay struct {
	Interval  time.Duration `yaml:"interval" env:"RELAY_INTERVAL" env-default:"1s"`
	BatchSize int           `yaml:"batch_size" env:"RELAY_BATCH_SIZE" env-default:"50"`
}

type Fares struct {
	Single time.Duration `yaml:"single" env:"FARE_SINGLE_DURATION" env-default:"1h"`
	Multi  time.Duration `yaml:"multi" env:"FARE_MULTI_DURATION" env-default:"24h"`
	Pass   time.Duration `yaml:"pass" env:"FARE_PASS_DURATION" env-default:"720h"`
}

type Validation struct {
	MaxAttempts int `yaml:"max_attempts" env:"VALIDATION_MAX_ATTEMPTS" env-default:"5"`
}

// Bus picks how services publish: through the postgres outbox and relay, or
// straight to Kafka.
type Bus struct {
	Mode string `yaml:"mode" env:"BUS_MODE" env-default:"outbox"`
}

type Store struct {
	Driver string `yaml:"driver" env:"STORE_DRIVER" env-default:"postgres"`
}

func New() (*Config, error) {
	return Load("config.yaml")
}

// Load reads path, falling back to env vars alone when the file is missing.
// Env vars override values from the file.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("config error: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Bus.Mode {
	case BusOutbox, BusDirect:
	default:
		return fmt.Errorf("bus.mode must be %q or %q, got %q", BusOutbox, BusDirect, c.Bus.Mode)
	}
	switch c.Store.Driver {
	case StorePostgres:
	case StoreMemory:
		return fmt.Errorf("store.driver %q is process-local: api, saga and sweeper would each see an empty store", StoreMemory)
	default:
		return fmt.Errorf("store.driver must be %q, got %q", StorePostgres, c.Store.Driver)
	}
	if c.Sweeper.Interval <= 0 {
		return fmt.Errorf("sweeper.interval must be positive")
	}
	return nil
}
