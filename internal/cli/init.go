package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"finanzapp/internal/config"
	"finanzapp/internal/core"
	applog "finanzapp/internal/log"
	"finanzapp/internal/storage"
)

const shutdownTimeout = 30 * time.Second

// loadEnvFile loads a dotenv file for local development. A missing file is
// fine; values already in the environment are never overwritten.
func loadEnvFile(path string) {
	if path == "" {
		return
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Failed to load env file", "path", path, applog.FieldError, err)
	}
}

// loadConfig reads and validates the configuration. --config wins over
// CONFIG_FILE and --log-level over LOG_LEVEL.
func loadConfig() (*config.Config, error) {
	path := flagConfig
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	cfg, err := config.LoadFrom(path)
	if err != nil {
		return nil, err
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupLogger builds the process logger and installs it as the slog default.
func setupLogger(cfg *config.Config, component string) *applog.Logger {
	logger := applog.New(applog.Config{
		Level:     cfg.SlogLevel(),
		Component: component,
		Output:    os.Stderr,
	})
	applog.SetDefault(logger)
	return logger
}

func storageOptions(cfg *config.Config, loc *time.Location) storage.Options {
	return storage.Options{
		Driver:      storage.Driver(cfg.DatabaseDriver),
		SQLitePath:  cfg.SQLiteDBPath,
		DatabaseURL: cfg.DatabaseURL,
		Location:    loc,
	}
}

// app bundles what every database-backed command needs.
type app struct {
	cfg    *config.Config
	logger *applog.Logger
	loc    *time.Location
	repo   *storage.Repository
}

// bootstrap loads config, sets up logging and opens the repository, which
// applies pending migrations.
func bootstrap(ctx context.Context, component string) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := setupLogger(cfg, component)
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	repo, err := storage.Open(ctx, storageOptions(cfg, loc))
	if err != nil {
		logger.Error("Failed to open storage",
			applog.FieldError, err,
			"driver", cfg.DatabaseDriver)
		return nil, err
	}
	logger.Debug("Storage ready", "driver", cfg.DatabaseDriver, "timezone", loc.String())
	return &app{cfg: cfg, logger: logger, loc: loc, repo: repo}, nil
}

func (a *app) Close() {
	if err := a.repo.Close(); err != nil {
		a.logger.Warn("Failed to close storage", applog.FieldError, err)
	}
}

func (a *app) now() time.Time { return time.Now().In(a.loc) }

// lookupUser resolves --user to a stored user.
func (a *app) lookupUser(ctx context.Context, username string) (core.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return core.User{}, errors.New("--user is required")
	}
	u, err := a.repo.UserByUsername(ctx, username)
	if errors.Is(err, core.ErrNotFound) {
		return core.User{}, fmt.Errorf("user %q does not exist", username)
	}
	return u, err
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
