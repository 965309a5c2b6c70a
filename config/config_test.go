package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allConfigKeys = []string{
	"PORT", "CORS_ALLOWED_ORIGINS", "MANUAL_RATE_LIMIT", "MANUAL_RATE_BURST",
	"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_DSN", "DB_MAX_CONNS",
	"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
	"TELEMETRY_TOPIC", "TELEMETRY_QUEUE_SIZE",
	"MODEL_PATH", "SCORE_RAW_MIN", "SCORE_RAW_MAX",
	"LEDGER_NETWORK", "LEDGER_OPERATOR_ID", "LEDGER_OPERATOR_KEY", "LEDGER_CONTRACT_ID",
	"LEDGER_TIMEOUT", "LEDGER_GAS", "CERTIFICATION_THRESHOLD", "LEDGER_RECERTIFY",
	"PIPELINE_WORKERS", "PIPELINE_SERIALIZE_PER_LOAN",
	"APP_ENV", "LOG_LEVEL", "APP_VERSION",
}

// isolateConfigEnv blanks every key Load reads; empty values fall back to defaults.
func isolateConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range allConfigKeys {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	isolateConfigEnv(t)

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "5000", cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSAllowedOrigins)
	assert.Equal(t, "ecoscore/iot/updates", cfg.Telemetry.Topic)
	assert.Equal(t, 64, cfg.Telemetry.QueueSize)
	assert.Equal(t, 80.0, cfg.Ledger.Threshold)
	assert.Equal(t, 30*time.Second, cfg.Ledger.Timeout)
	assert.False(t, cfg.Ledger.Enabled())
	assert.False(t, cfg.Ledger.Recertify)
	assert.Equal(t, 2, cfg.Pipeline.Workers)
	assert.True(t, cfg.Pipeline.SerializePerLoan)
	assert.Equal(t, 0.0, cfg.Scoring.RawMin)
	assert.Equal(t, 100.0, cfg.Scoring.RawMax)
	assert.Equal(t, "ecoscore_finance", cfg.Database.Name)
	assert.Equal(t, 10, cfg.Database.MaxConns)
}

func TestLoad_Overrides(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://localhost:3000, https://dash.example.com")
	t.Setenv("CERTIFICATION_THRESHOLD", "75.5")
	t.Setenv("LEDGER_TIMEOUT", "5s")
	t.Setenv("LEDGER_OPERATOR_ID", "0.0.1001")
	t.Setenv("LEDGER_OPERATOR_KEY", "302e...")
	t.Setenv("LEDGER_CONTRACT_ID", "0.0.2002")
	t.Setenv("PIPELINE_SERIALIZE_PER_LOAN", "false")
	t.Setenv("TELEMETRY_TOPIC", "custom/topic")
	t.Setenv("DB_MAX_CONNS", "25")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, []string{"http://localhost:3000", "https://dash.example.com"}, cfg.Server.CORSAllowedOrigins)
	assert.Equal(t, 75.5, cfg.Ledger.Threshold)
	assert.Equal(t, 5*time.Second, cfg.Ledger.Timeout)
	assert.True(t, cfg.Ledger.Enabled())
	assert.False(t, cfg.Pipeline.SerializePerLoan)
	assert.Equal(t, "custom/topic", cfg.Telemetry.Topic)
	assert.Equal(t, 25, cfg.Database.MaxConns)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("PIPELINE_WORKERS", "many")
	t.Setenv("LEDGER_TIMEOUT", "soon")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Pipeline.Workers)
	assert.Equal(t, 30*time.Second, cfg.Ledger.Timeout)
}

func TestValidate(t *testing.T) {
	isolateConfigEnv(t)

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"empty port", func(c *Config) { c.Server.Port = "" }},
		{"no database", func(c *Config) { c.Database.Host = ""; c.Database.DSN = "" }},
		{"threshold above range", func(c *Config) { c.Ledger.Threshold = 101 }},
		{"zero workers", func(c *Config) { c.Pipeline.Workers = 0 }},
		{"zero queue", func(c *Config) { c.Telemetry.QueueSize = 0 }},
		{"inverted raw range", func(c *Config) { c.Scoring.RawMin = 100; c.Scoring.RawMax = 0 }},
		{"empty topic", func(c *Config) { c.Telemetry.Topic = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)

			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
