// Package registrystore opens the registry Store selected by configuration.
package registrystore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/onnwee/match-tender/config"
	"github.com/onnwee/match-tender/crypto"
	"github.com/onnwee/match-tender/db"
	"github.com/onnwee/match-tender/registry"
)

// Handle is an open store plus the resources behind it.
type Handle struct {
	Store registry.Store
	// DB is set for the postgres backend.
	DB *sql.DB
}

// Close releases the database connection, if any.
func (h *Handle) Close() error {
	if h.DB == nil {
		return nil
	}
	return h.DB.Close()
}

// Open returns the store for cfg.RegistryBackend. The postgres backend is
// migrated before it is returned.
func Open(ctx context.Context, cfg *config.Config) (*Handle, error) {
	switch cfg.RegistryBackend {
	case config.BackendPostgres:
		database, err := db.Connect(ctx, cfg.DBDsn)
		if err != nil {
			return nil, err
		}
		slog.Info("running database migrations", slog.String("component", "db_migrate"))
		if err := db.RunMigrations(database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return &Handle{Store: db.NewUserStore(database), DB: database}, nil
	case config.BackendFile, "":
		fs := registry.NewFileStore(cfg.UserDataFile, nil)
		if cfg.RegistryEncryptionKey != "" {
			sealer, err := crypto.NewAESSealer(cfg.RegistryEncryptionKey)
			if err != nil {
				return nil, fmt.Errorf("registry encryption key: %w", err)
			}
			fs.Sealer = sealer
		}
		return &Handle{Store: fs}, nil
	default:
		return nil, fmt.Errorf("unknown registry backend %q", cfg.RegistryBackend)
	}
}
