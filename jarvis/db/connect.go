package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	_ "github.com/tursodatabase/go-libsql"
)

// LibSQLEmbeddedConfig holds configuration for embedded libsql connections
type LibSQLEmbeddedConfig struct {
	DatabasePath string // Path to .db file
	JournalMode  string // WAL, DELETE, TRUNCATE, PERSIST, MEMORY, OFF
	SyncMode     string // NORMAL, FULL, OFF
	CacheSize    int    // pages, negative for KB
	TempStore    string // MEMORY, FILE, DEFAULT
	MaxOpenConns int
	MaxIdleConns int
}

func ConnectToDB(path string, logger zerolog.Logger) (*sql.DB, error) {
	cfg := &LibSQLEmbeddedConfig{DatabasePath: path, JournalMode: "WAL", SyncMode: "NORMAL"}
	return ConnectToDBWithConfig(cfg, logger)
}

func ConnectToDBWithConfig(config *LibSQLEmbeddedConfig, logger zerolog.Logger) (*sql.DB, error) {
	if strings.TrimSpace(config.DatabasePath) == "" {
		return nil, fmt.Errorf("database path is empty")
	}

	// Ensure database directory exists for embedded mode
	dir := filepath.Dir(config.DatabasePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create database directory %s: %w", dir, err)
	}

	if _, err := os.Stat(config.DatabasePath); os.IsNotExist(err) {
		logger.Info().Str("path", config.DatabasePath).Msg("Database not found, creating a new one")
	}

	dsn := "file:" + config.DatabasePath
	logger.Debug().Str("dsn", dsn).Msg("Connecting to embedded libsql")

	db, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open libsql connection: %w", err)
	}

	if err := verifyConnection(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := configurePragmaSettings(db, config); err != nil {
		db.Close()
		return nil, err
	}

	configureConnectionPooling(db, config, logger)

	return db, nil
}

func verifyConnection(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("basic connectivity test failed: %w", err)
	}
	if result != 1 {
		return fmt.Errorf("basic connectivity test failed: unexpected result %d", result)
	}
	return nil
}

// configurePragmaSettings applies PRAGMA settings to the database
func configurePragmaSettings(db *sql.DB, config *LibSQLEmbeddedConfig) error {
	pragmaSettings := []struct {
		name  string
		value string
	}{
		{"journal_mode", config.JournalMode},
		{"synchronous", config.SyncMode},
		{"temp_store", config.TempStore},
		{"busy_timeout", "5000"},
	}
	if config.CacheSize != 0 {
		pragmaSettings = append(pragmaSettings, struct {
			name  string
			value string
		}{"cache_size", fmt.Sprintf("%d", config.CacheSize)})
	}

	for _, setting := range pragmaSettings {
		if setting.value == "" {
			continue
		}

		// Some PRAGMA statements return values, so we need to handle them differently
		query := fmt.Sprintf("PRAGMA %s = %s", setting.name, setting.value)
		if _, err := db.Exec(query); err != nil {
			if !strings.Contains(err.Error(), "returned rows") {
				return fmt.Errorf("failed to set %s: %w", setting.name, err)
			}
			rows, qerr := db.Query(query)
			if qerr != nil {
				return fmt.Errorf("failed to set %s: %w", setting.name, qerr)
			}
			rows.Close()
		}
	}

	return nil
}

// configureConnectionPooling keeps the pool small; the store serializes writes anyway.
func configureConnectionPooling(db *sql.DB, config *LibSQLEmbeddedConfig, logger zerolog.Logger) {
	maxOpen := config.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 4
	}
	db.SetMaxOpenConns(maxOpen)

	maxIdle := config.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = maxOpen
	}
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(time.Hour)

	logger.Debug().Int("max_open", maxOpen).Int("max_idle", maxIdle).Msg("Connection pool configured")
}
