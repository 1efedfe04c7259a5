package postgres

import (
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/kasuganosora/friendhub/config"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open creates a GORM *DB backed by PostgreSQL (pgx) with a connection pool.
// The DSN is parsed up front so a typo fails at startup, not on first query.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	if _, err := pgx.ParseConfig(cfg.PostgresDSN); err != nil {
		return nil, fmt.Errorf("postgres dsn: %w", err)
	}
	db, err := gorm.Open(postgres.New(postgres.Config{DSN: cfg.PostgresDSN}), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpen)
	sqlDB.SetMaxIdleConns(cfg.MaxIdle)
	sqlDB.SetConnMaxLifetime(cfg.MaxLife)

	return db, nil
}
