package postgres

import (
	"fmt"

	"github.com/ecoscore-finance/ecoscore-backend/config"
)

// DSN returns cfg.DSN when set, otherwise a keyword/value string built from
// the individual fields.
func DSN(cfg *config.DatabaseConfig) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name,
	)
}
