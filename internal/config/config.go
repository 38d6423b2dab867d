package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// HTTP
	HTTPPort string

	// Postgres / TimescaleDB
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBMaxConns int32

	// Redis
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Pipeline channels
	LastSeenChannelSize int
	StateChannelSize    int
	AlertChannelSize    int

	// Worker tuning
	AlertWorkers            int
	LastSeenBatchSize       int
	LastSeenFlushIntervalMS int

	// Vehicle API keys
	AuthCacheTTLSeconds int
	ValidAPIKeys        []string
	IngestRequireAPIKey bool

	// Operator auth
	JWTSecret      string
	JWTTTLMinutes  int
	AdminPassword  string
	ViewerPassword string

	// Realtime
	OfflineThresholdMS int
	SweepIntervalMS    int
	ThrottleMS         int
	ThrottlePolicy     string
	WSSendBuffer       int

	RulesFile string

	LogLevel  string
	LogFormat string
}

// Load reads an optional .env file and then the process environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		HTTPPort:                getEnv("HTTP_PORT", "3000"),
		DBHost:                  getEnv("DB_HOST", "localhost"),
		DBPort:                  getEnv("DB_PORT", "5432"),
		DBUser:                  getEnv("DB_USER", "fleet_user"),
		DBPassword:              getEnv("DB_PASSWORD", "fleet_password"),
		DBName:                  getEnv("DB_NAME", "fleet_monitor"),
		DBMaxConns:              int32(getEnvInt("DB_MAX_CONNS", 15)),
		RedisEnabled:            getEnvBool("REDIS_ENABLED", true),
		RedisAddr:               getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:           getEnv("REDIS_PASSWORD", ""),
		RedisDB:                 getEnvInt("REDIS_DB", 0),
		LastSeenChannelSize:     getEnvInt("LAST_SEEN_CHANNEL_SIZE", 10000),
		StateChannelSize:        getEnvInt("STATE_CHANNEL_SIZE", 50000),
		AlertChannelSize:        getEnvInt("ALERT_CHANNEL_SIZE", 10000),
		AlertWorkers:            getEnvInt("ALERT_WORKERS", 4),
		LastSeenBatchSize:       getEnvInt("LAST_SEEN_BATCH_SIZE", 500),
		LastSeenFlushIntervalMS: getEnvInt("LAST_SEEN_FLUSH_INTERVAL_MS", 1000),
		AuthCacheTTLSeconds:     getEnvInt("AUTH_CACHE_TTL_SECONDS", 300),
		ValidAPIKeys:            splitList(getEnv("VALID_API_KEYS", "")),
		IngestRequireAPIKey:     getEnvBool("INGEST_REQUIRE_API_KEY", false),
		JWTSecret:               getEnv("JWT_SECRET", "ev_platform_secret_2026"),
		JWTTTLMinutes:           getEnvInt("JWT_TTL_MINUTES", 60),
		AdminPassword:           getEnv("ADMIN_PASSWORD", "admin123"),
		ViewerPassword:          getEnv("VIEWER_PASSWORD", "viewer123"),
		OfflineThresholdMS:      getEnvInt("OFFLINE_THRESHOLD_MS", 10000),
		SweepIntervalMS:         getEnvInt("SWEEP_INTERVAL_MS", 5000),
		ThrottleMS:              getEnvInt("THROTTLE_MS", 500),
		ThrottlePolicy:          getEnv("THROTTLE_POLICY", "on_delivery"),
		WSSendBuffer:            getEnvInt("WS_SEND_BUFFER", 64),
		RulesFile:               getEnv("RULES_FILE", ""),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		LogFormat:               getEnv("LOG_FORMAT", "text"),
	}
}

func (c *Config) Validate() error {
	var errs []error
	positive := map[string]int{
		"LAST_SEEN_CHANNEL_SIZE":      c.LastSeenChannelSize,
		"STATE_CHANNEL_SIZE":          c.StateChannelSize,
		"ALERT_CHANNEL_SIZE":          c.AlertChannelSize,
		"ALERT_WORKERS":               c.AlertWorkers,
		"LAST_SEEN_BATCH_SIZE":        c.LastSeenBatchSize,
		"LAST_SEEN_FLUSH_INTERVAL_MS": c.LastSeenFlushIntervalMS,
		"OFFLINE_THRESHOLD_MS":        c.OfflineThresholdMS,
		"SWEEP_INTERVAL_MS":           c.SweepIntervalMS,
		"THROTTLE_MS":                 c.ThrottleMS,
		"WS_SEND_BUFFER":              c.WSSendBuffer,
		"JWT_TTL_MINUTES":             c.JWTTTLMinutes,
	}
	for key, v := range positive {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", key, v))
		}
	}
	switch c.ThrottlePolicy {
	case "on_delivery", "on_attempt":
	default:
		errs = append(errs, fmt.Errorf("THROTTLE_POLICY must be on_delivery or on_attempt, got %q", c.ThrottlePolicy))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET must not be empty"))
	}
	return errors.Join(errs...)
}

func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?pool_max_conns=%d",
		c.DBUser,
		c.DBPassword,
		c.DBHost,
		c.DBPort,
		c.DBName,
		c.DBMaxConns,
	)
}

func (c *Config) OfflineThreshold() time.Duration {
	return time.Duration(c.OfflineThresholdMS) * time.Millisecond
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMS) * time.Millisecond
}

func (c *Config) ThrottleWindow() time.Duration {
	return time.Duration(c.ThrottleMS) * time.Millisecond
}

func (c *Config) LastSeenFlushInterval() time.Duration {
	return time.Duration(c.LastSeenFlushIntervalMS) * time.Millisecond
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
