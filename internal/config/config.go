package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the immutable process configuration, loaded once at startup
// and handed to constructors. No package-level state.
type Config struct {
	ServerPort int

	DatabaseURL string
	RedisURL    string

	// JWTKeys is a "kid:secret,kid:secret" list; the first entry signs.
	JWTKeys   string
	JWTLeeway time.Duration

	AccessTTL  time.Duration
	RefreshTTL time.Duration

	KafkaBrokers []string

	// OpTimeout bounds each store/cache operation.
	OpTimeout time.Duration

	LogLevel string
}

func Load() Config {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("notice: .env file not found, using system environment")
	}

	return Config{
		ServerPort:   EnvIntDefault("SERVER_PORT", 8080),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		RedisURL:     os.Getenv("REDIS_URL"),
		JWTKeys:      os.Getenv("JWT_KEYS"),
		JWTLeeway:    time.Duration(EnvIntDefault("JWT_LEEWAY_SECONDS", 0)) * time.Second,
		AccessTTL:    time.Duration(EnvIntDefault("ACCESS_TOKEN_TTL_MINUTES", 15)) * time.Minute,
		RefreshTTL:   time.Duration(EnvIntDefault("REFRESH_TOKEN_TTL_HOURS", 168)) * time.Hour,
		KafkaBrokers: CSV(os.Getenv("KAFKA_BROKERS")),
		OpTimeout:    time.Duration(EnvIntDefault("OP_TIMEOUT_MS", 3000)) * time.Millisecond,
		LogLevel:     EnvDefault("LOG_LEVEL", "info"),
	}
}

func CSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func EnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func EnvIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func MustNonEmpty(value, envName string) {
	if value == "" {
		log.Fatalf("missing required env %s", envName)
	}
}
