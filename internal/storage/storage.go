// Package storage picks the repository backend once at startup.
package storage

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"agenthub/internal/config"
	"agenthub/internal/db"
	"agenthub/internal/repository"
	gormrepository "agenthub/internal/repository/gorm"
	"agenthub/internal/repository/memory"
)

const (
	DriverAuto     = "auto"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Backend is an opened repository plus whatever must be released on shutdown.
type Backend struct {
	Driver string
	Repo   repository.Repository
	DB     *db.DB
}

func (b *Backend) Close() error {
	if b == nil {
		return nil
	}
	return db.Close(b.DB)
}

// Driver resolves "auto" to postgres when a DSN is configured, memory otherwise.
func Driver(cfg config.Config) (string, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	switch driver {
	case "", DriverAuto:
		if strings.TrimSpace(cfg.DB.DSN) != "" {
			return DriverPostgres, nil
		}
		return DriverMemory, nil
	case DriverPostgres:
		if strings.TrimSpace(cfg.DB.DSN) == "" {
			return "", fmt.Errorf("store.driver=postgres requires db.dsn")
		}
		return DriverPostgres, nil
	case DriverMemory:
		return DriverMemory, nil
	default:
		return "", fmt.Errorf("unknown store.driver %q", cfg.Store.Driver)
	}
}

func Open(cfg config.Config, logger *zap.Logger) (*Backend, error) {
	driver, err := Driver(cfg)
	if err != nil {
		return nil, err
	}
	if driver == DriverMemory {
		if logger != nil {
			logger.Warn("using in-memory store, data is lost on restart")
		}
		return &Backend{Driver: driver, Repo: memory.New()}, nil
	}

	database, err := db.Open(cfg.DB, logger)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(database); err != nil {
		_ = db.Close(database)
		return nil, err
	}
	return &Backend{Driver: driver, Repo: gormrepository.New(database.Gorm), DB: database}, nil
}
