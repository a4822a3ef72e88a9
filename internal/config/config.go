package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Límites del consumidor de eventos de dominio.
const (
	DefaultStartupDelayMs    = 8000
	MinStartupDelayMs        = 1000
	DefaultPollIntervalMs    = 2000
	MinPollIntervalMs        = 1000
	DefaultRetryDelaySeconds = 45
	MinRetryDelaySeconds     = 5
	MaxRetryDelaySeconds     = 3600
)

// ConsumerConfig agrupa los ajustes del Consumer Scheduler.
type ConsumerConfig struct {
	Enabled      bool
	StartupDelay time.Duration
	PollInterval time.Duration
	RetryDelay   time.Duration
	CohortKey    string
	CycleTimeout time.Duration
}

type Config struct {
	LogLevel string
	HTTPPort string

	DBDriver    string // "sqlite" | "postgres"
	SQLitePath  string
	DatabaseURL string
	AutoMigrate bool

	RedisAddr string

	UseKafka       bool
	KafkaBrokers   []string
	KafkaTaskTopic string

	ClickHouseAddr string
	ClickHouseDB   string

	FeatureFlags map[string]int

	SnapshotDebounce time.Duration
	SnapshotTTL      time.Duration

	Consumer ConsumerConfig
}

// LoadConfig carga un .env opcional (sin pisar variables ya definidas) y lee el entorno.
func LoadConfig() *Config {
	_ = godotenv.Load()

	getEnv := func(key, fallback string) string {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
		return fallback
	}

	var brokers []string
	for _, b := range strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}

	startupMs := atLeast(parseInt(os.Getenv("DOMAIN_EVENT_CONSUMER_STARTUP_DELAY_MS"), DefaultStartupDelayMs), MinStartupDelayMs)
	pollMs := atLeast(parseInt(os.Getenv("DOMAIN_EVENT_CONSUMER_POLL_INTERVAL_MS"), DefaultPollIntervalMs), MinPollIntervalMs)
	retrySecs := ClampRetryDelaySeconds(parseInt(os.Getenv("DOMAIN_EVENT_CONSUMER_RETRY_DELAY_SECONDS"), DefaultRetryDelaySeconds))

	return &Config{
		LogLevel: getEnv("LOG_LEVEL", "info"),
		HTTPPort: getEnv("HTTP_PORT", "8080"),

		DBDriver:    strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
		SQLitePath:  getEnv("SQLITE_PATH", "./omnizap.db"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		AutoMigrate: parseBool(os.Getenv("AUTO_MIGRATE"), true),

		RedisAddr: getEnv("REDIS_ADDR", "localhost:6379"),

		UseKafka:       parseBool(os.Getenv("USE_KAFKA"), false),
		KafkaBrokers:   brokers,
		KafkaTaskTopic: getEnv("KAFKA_TASK_TOPIC", "omnizap-worker-tasks"),

		ClickHouseAddr: getEnv("CLICKHOUSE_ADDR", ""),
		ClickHouseDB:   getEnv("CLICKHOUSE_DB", "omnizap"),

		FeatureFlags: ParseFeatureFlags(os.Getenv("FEATURE_FLAGS")),

		SnapshotDebounce: time.Duration(atLeast(parseInt(os.Getenv("SNAPSHOT_DEBOUNCE_MS"), 250), 0)) * time.Millisecond,
		SnapshotTTL:      time.Duration(atLeast(parseInt(os.Getenv("SNAPSHOT_TTL_SECONDS"), 900), 1)) * time.Second,

		Consumer: ConsumerConfig{
			Enabled:      parseBool(os.Getenv("DOMAIN_EVENT_CONSUMER_ENABLED"), true),
			StartupDelay: time.Duration(startupMs) * time.Millisecond,
			PollInterval: time.Duration(pollMs) * time.Millisecond,
			RetryDelay:   time.Duration(retrySecs) * time.Second,
			CohortKey:    getEnv("DOMAIN_EVENT_CONSUMER_COHORT_KEY", defaultCohortKey()),
			CycleTimeout: 30 * time.Second,
		},
	}
}

// ClampRetryDelaySeconds acota el retraso de reintento a [5, 3600].
func ClampRetryDelaySeconds(v int) int {
	if v < MinRetryDelaySeconds {
		return MinRetryDelaySeconds
	}
	if v > MaxRetryDelaySeconds {
		return MaxRetryDelaySeconds
	}
	return v
}

// ParseFeatureFlags interpreta "nombre=porcentaje,nombre2=porcentaje".
// Entradas malformadas se ignoran; los porcentajes se acotan a [0, 100].
func ParseFeatureFlags(raw string) map[string]int {
	flags := make(map[string]int)
	for _, pair := range strings.Split(raw, ",") {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		pct, err := strconv.Atoi(strings.TrimSpace(value))
		if name == "" || err != nil {
			continue
		}
		flags[name] = min(max(pct, 0), 100)
	}
	return flags
}

func defaultCohortKey() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "omnizap-local"
}

func parseInt(raw string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return v
}

func parseBool(raw string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func atLeast(v, floor int) int {
	if v < floor {
		return floor
	}
	return v
}
