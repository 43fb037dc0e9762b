package migrations

import (
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"

	"github.com/rparedes/callbid/internal/shared/config"
	"github.com/rparedes/callbid/internal/shared/logger"
)

var log = logger.GetLogger()

// Run applies all pending SQL migrations. ErrNoChange is not an error.
func Run(cfg *config.Config) error {
	dbURL := cfg.PostgresDSN()
	log.Info("running migrations", zap.String("database", cfg.DBName))
	m, err := migrate.New(
		"file://internal/shared/db/migrations/sql",
		dbURL,
	)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}
