package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port          string
	AllowedOrigin string

	DatabaseURL string
	SQLitePath  string
	SeedData    bool

	RedisAddr                 string
	RedisPassword             string
	RedisDB                   int
	PermissionCacheTTLSeconds int

	KafkaBrokers []string
	KafkaTopic   string

	AuthSecret            string
	AccessTokenTTLMinutes int

	LogLevel    string
	LogEncoding string

	SaleNumberAttempts int
}

func Load() Config {
	cfg := Config{
		Port:                      getEnv("PORT", "8080"),
		AllowedOrigin:             getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:               os.Getenv("DATABASE_URL"),
		SQLitePath:                os.Getenv("SQLITE_PATH"),
		SeedData:                  getEnvBool("SEED_DATA", true),
		RedisAddr:                 os.Getenv("REDIS_ADDR"),
		RedisPassword:             os.Getenv("REDIS_PASSWORD"),
		RedisDB:                   getEnvInt("REDIS_DB", 0, 0),
		PermissionCacheTTLSeconds: getEnvInt("PERMISSION_CACHE_TTL_SECONDS", 60, 0),
		KafkaBrokers:              splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:                getEnv("KAFKA_TOPIC", "tiendapos.sales"),
		AuthSecret:                strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:     getEnvInt("ACCESS_TOKEN_TTL_MINUTES", 480, 1),
		LogLevel:                  getEnv("LOG_LEVEL", "info"),
		LogEncoding:               getEnv("LOG_ENCODING", "json"),
		SaleNumberAttempts:        getEnvInt("SALE_NUMBER_ATTEMPTS", 5, 1),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

// getEnvInt falls back when the value is missing, malformed or below min.
func getEnvInt(key string, fallback int, min int) int {
	n, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || n < min {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	b, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(fallback)))
	if err != nil {
		return fallback
	}
	return b
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
