// Command rfid runs the RFI tracker API and its maintenance tasks.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/tbourn/rfi-tracker/internal/config"
	"github.com/tbourn/rfi-tracker/internal/repo"
	"github.com/tbourn/rfi-tracker/internal/sysutil"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "rfid",
		Short:         "RFI tracker: lifecycle API, email dispatch and reply ingestion",
		Version:       sysutil.FirstNonEmpty(Version, "dev"),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnvFile(envFile)
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading configuration (missing file is ignored)")

	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(projectCmd())
	root.AddCommand(unmatchedCmd())
	return root
}

// loadEnvFile loads KEY=VALUE pairs from path without overriding variables
// already present in the environment.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// bootstrap loads configuration and installs the global logger. Logs go to
// the command's stderr so they never mix with command output.
func bootstrap(cmd *cobra.Command) (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, zerolog.Nop(), fmt.Errorf("config: %w", err)
	}
	sysutil.SetLogLevel(cfg.LogLevel)
	logger := sysutil.NewLogger(cmd.ErrOrStderr(), cfg.OTEL.ServiceName, cmd.Root().Version, cfg.LogPretty)
	log.Logger = logger
	zerolog.DefaultContextLogger = &logger
	return cfg, logger, nil
}

// openDB opens the configured database and brings the schema up to date.
func openDB(cfg config.Config) (*gorm.DB, func(), error) {
	target := cfg.DB.Path
	if cfg.DB.Driver == repo.DriverPostgres {
		target = cfg.DB.URL
	}
	db, err := repo.Open(cfg.DB.Driver, target)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s database: %w", cfg.DB.Driver, err)
	}
	closeFn := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if err := repo.AutoMigrate(db); err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return db, closeFn, nil
}
