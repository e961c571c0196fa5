package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	TariffsEndpoint string
	APIToken        string
	AuthHeaderName  string
	ExtraQuery      string
	DateOverride    string

	FetchIntervalMs  int
	RequestTimeoutMs int
	FetchMaxAttempts int

	AdvisoryLockKey int64

	CSVExportEnabled bool
	CSVOutputDir     string

	MetricsEnabled bool
	MetricsPort    int
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		PostgresHost:     getEnv("DB_HOST", "localhost"),
		PostgresPort:     getEnv("DB_PORT", "5432"),
		PostgresUser:     getEnv("DB_USER", "postgres"),
		PostgresPassword: getEnv("DB_PASSWORD", "password"),
		PostgresDB:       getEnv("DB_NAME", "wb-test"),
		PostgresSSLMode:  getEnv("DB_SSLMODE", "disable"),

		TariffsEndpoint: getEnv("WB_TARIFFS_BOX_ENDPOINT", "https://common-api.wildberries.ru/api/v1/tariffs/box"),
		APIToken:        getEnv("WB_API_TOKEN", ""),
		AuthHeaderName:  getEnv("WB_AUTH_HEADER_NAME", "Authorization"),
		ExtraQuery:      getEnv("WB_TARIFFS_BOX_QUERY", ""),
		DateOverride:    getEnv("WB_TARIFFS_BOX_DATE", ""),

		FetchIntervalMs:  getEnvInt("WB_FETCH_INTERVAL_MS", 60*60*1000),
		RequestTimeoutMs: getEnvInt("WB_REQUEST_TIMEOUT_MS", 15000),
		FetchMaxAttempts: getEnvInt("WB_FETCH_MAX_ATTEMPTS", 5),

		AdvisoryLockKey: getEnvInt64("JOB_ADVISORY_LOCK_KEY", 834234234),

		CSVExportEnabled: getEnvBool("CSV_EXPORT_ENABLED", true),
		CSVOutputDir:     getEnv("CSV_OUTPUT_DIR", "./output"),

		MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
		MetricsPort:    getEnvInt("METRICS_PORT", 9090),
	}
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.ParseInt(val, 10, 64)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		return val != "false" && val != "0"
	}
	return fallback
}
