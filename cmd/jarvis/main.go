package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/jarvis/jarvis"
	"github.com/ZanzyTHEbar/jarvis/jarvis/config"
	"github.com/ZanzyTHEbar/jarvis/jarvis/db"
	"github.com/ZanzyTHEbar/jarvis/jarvis/generation/harness"
	"github.com/ZanzyTHEbar/jarvis/jarvis/memory/database"
)

var Version = "dev"

var (
	configPath string
	logLevel   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           jarvis.DefaultAppName,
		Short:         "Personal assistant with web research, long-term memory and 3D scene generation",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default searches ., etc/jarvis and the user config dir)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level")

	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(sceneCmd())
	rootCmd.AddCommand(knowledgeCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app holds everything a command needs after startup.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	db      *sql.DB
	factory *harness.Factory
}

func bootstrap(ctx context.Context) (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	logger := jarvis.NewLogger(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

	a := &app{cfg: cfg, logger: logger}
	if cfg.Database.Enabled {
		conn, err := db.ConnectToDBWithConfig(&db.LibSQLEmbeddedConfig{
			DatabasePath: cfg.Database.DSN,
			JournalMode:  cfg.Database.JournalMode,
			SyncMode:     cfg.Database.SyncMode,
			CacheSize:    cfg.Database.CacheSize,
			TempStore:    cfg.Database.TempStore,
			MaxOpenConns: cfg.Database.MaxOpenConns,
			MaxIdleConns: cfg.Database.MaxIdleConns,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open memory database: %w", err)
		}
		if err := database.Migrate(conn); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to migrate memory database: %w", err)
		}
		a.db = conn
	} else {
		logger.Warn().Msg("Database disabled, memory will not survive restarts")
	}

	a.factory = harness.NewFactory(cfg, a.db, logger)
	return a, nil
}

func (a *app) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to close database")
		}
	}
}
