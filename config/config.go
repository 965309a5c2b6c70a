package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Telemetry TelemetryConfig
	Scoring   ScoringConfig
	Ledger    LedgerConfig
	Pipeline  PipelineConfig
	App       AppConfig
}

type ServerConfig struct {
	Port               string
	CORSAllowedOrigins []string
	ManualRateLimit    float64
	ManualRateBurst    int
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	// DSN overrides the individual fields when set.
	DSN      string
	MaxConns int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type TelemetryConfig struct {
	Topic     string
	QueueSize int
}

type ScoringConfig struct {
	ModelPath string
	RawMin    float64
	RawMax    float64
}

type LedgerConfig struct {
	Network     string
	OperatorID  string
	OperatorKey string
	ContractID  string
	Timeout     time.Duration
	Gas         int64
	Threshold   float64
	Recertify   bool
}

// Enabled reports whether enough credentials are present to submit transactions.
func (l LedgerConfig) Enabled() bool {
	return l.OperatorID != "" && l.OperatorKey != "" && l.ContractID != ""
}

type PipelineConfig struct {
	Workers          int
	SerializePerLoan bool
}

type AppConfig struct {
	Environment string
	LogLevel    string
	Version     string
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "5000"),
			CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
			ManualRateLimit:    getEnvAsFloat("MANUAL_RATE_LIMIT", 5),
			ManualRateBurst:    getEnvAsInt("MANUAL_RATE_BURST", 10),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Name:     getEnv("DB_NAME", "ecoscore_finance"),
			DSN:      getEnv("DB_DSN", ""),
			MaxConns: getEnvAsInt("DB_MAX_CONNS", 10),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Telemetry: TelemetryConfig{
			Topic:     getEnv("TELEMETRY_TOPIC", "ecoscore/iot/updates"),
			QueueSize: getEnvAsInt("TELEMETRY_QUEUE_SIZE", 64),
		},
		Scoring: ScoringConfig{
			ModelPath: getEnv("MODEL_PATH", "models/ecoscore_model.yaml"),
			RawMin:    getEnvAsFloat("SCORE_RAW_MIN", 0),
			RawMax:    getEnvAsFloat("SCORE_RAW_MAX", 100),
		},
		Ledger: LedgerConfig{
			Network:     getEnv("LEDGER_NETWORK", "testnet"),
			OperatorID:  getEnv("LEDGER_OPERATOR_ID", ""),
			OperatorKey: getEnv("LEDGER_OPERATOR_KEY", ""),
			ContractID:  getEnv("LEDGER_CONTRACT_ID", ""),
			Timeout:     getEnvAsDuration("LEDGER_TIMEOUT", 30*time.Second),
			Gas:         int64(getEnvAsInt("LEDGER_GAS", 300000)),
			Threshold:   getEnvAsFloat("CERTIFICATION_THRESHOLD", 80),
			Recertify:   getEnvAsBool("LEDGER_RECERTIFY", false),
		},
		Pipeline: PipelineConfig{
			Workers:          getEnvAsInt("PIPELINE_WORKERS", 2),
			SerializePerLoan: getEnvAsBool("PIPELINE_SERIALIZE_PER_LOAN", true),
		},
		App: AppConfig{
			Environment: getEnv("APP_ENV", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	if c.Database.Host == "" && c.Database.DSN == "" {
		return fmt.Errorf("DB_HOST or DB_DSN is required")
	}

	if c.Telemetry.Topic == "" {
		return fmt.Errorf("TELEMETRY_TOPIC is required")
	}

	if c.Telemetry.QueueSize <= 0 {
		return fmt.Errorf("TELEMETRY_QUEUE_SIZE must be positive, got %d", c.Telemetry.QueueSize)
	}

	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("PIPELINE_WORKERS must be positive, got %d", c.Pipeline.Workers)
	}

	if c.Ledger.Threshold < 0 || c.Ledger.Threshold > 100 {
		return fmt.Errorf("CERTIFICATION_THRESHOLD must be within [0,100], got %v", c.Ledger.Threshold)
	}

	if c.Scoring.RawMin >= c.Scoring.RawMax {
		return fmt.Errorf("SCORE_RAW_MIN (%v) must be below SCORE_RAW_MAX (%v)", c.Scoring.RawMin, c.Scoring.RawMax)
	}

	if c.Ledger.Timeout <= 0 {
		return fmt.Errorf("LEDGER_TIMEOUT must be positive")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid integer for %s, using default: %d", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Printf("Warning: Invalid number for %s, using default: %v", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid boolean for %s, using default: %t", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid duration for %s, using default: %s", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
