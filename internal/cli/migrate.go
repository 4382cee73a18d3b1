package cli

import (
	"github.com/spf13/cobra"

	applog "finanzapp/internal/log"
	"finanzapp/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg, applog.ComponentStorage)
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	if err := storage.RunMigrations(storageOptions(cfg, loc)); err != nil {
		logger.Error("Migration failed", applog.FieldError, err, "driver", cfg.DatabaseDriver)
		return err
	}
	logger.Info("Database schema up to date", "driver", cfg.DatabaseDriver)
	return nil
}
