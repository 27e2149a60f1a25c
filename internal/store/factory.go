package store

import (
	"fmt"
	"os"
	"path/filepath"

	"nd-go/internal/config"
	"nd-go/internal/nd"
)

// NewStoreFromConfig creates a Store based on the database config type
// and brings its schema up to date.
func NewStoreFromConfig(cfg config.DatabaseConfig, vault nd.Vault, encryptor nd.Encryptor) (nd.Store, error) {
	var path string
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		path = filepath.Join(cfg.DataDir, "nd.db")
	case "memory":
		path = ":memory:"
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}

	s, err := NewSQLiteStore(path, vault, encryptor)
	if err != nil {
		return nil, err
	}
	if err := s.MigrateUp(); err != nil {
		s.Close()
		return nil, fmt.Errorf("migrating database schema: %w", err)
	}
	return s, nil
}
