package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"finanzapp/internal/amqp"
	"finanzapp/internal/config"
	"finanzapp/internal/core"
	applog "finanzapp/internal/log"
	"finanzapp/internal/sheets"
	gsheet "finanzapp/internal/sheets/google"
	"finanzapp/internal/sheets/memory"
	"finanzapp/internal/worker"
)

var (
	flagBackfillUser  string
	flagBackfillMonth string
)

var exportWorkerCmd = &cobra.Command{
	Use:   "export-worker",
	Short: "Mirror ledger events from AMQP into Google Sheets",
	Long: "Consumes ledger events and mirrors entries into a spreadsheet. Without " +
		"GOOGLE_SPREADSHEET_ID the mirror is kept in memory.",
	RunE: runExportWorker,
}

func init() {
	exportWorkerCmd.Flags().StringVar(&flagBackfillUser, "backfill-user", "", "export a user's month before consuming events")
	exportWorkerCmd.Flags().StringVar(&flagBackfillMonth, "backfill-month", "", "month key YYYY-MM for --backfill-user (default current month)")
	rootCmd.AddCommand(exportWorkerCmd)
}

func runExportWorker(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := bootstrap(ctx, applog.ComponentWorker)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg, logger := a.cfg, a.logger

	if cfg.AMQPURL == "" {
		return errors.New("AMQP_URL is required for the export worker")
	}

	mirror, err := openMirror(ctx, cfg, logger)
	if err != nil {
		return err
	}
	w := worker.NewExportWorker(a.repo, mirror)

	if flagBackfillUser != "" {
		if err := backfill(ctx, a, w); err != nil {
			return err
		}
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to connect to AMQP", applog.FieldError, err)
		return err
	}
	defer client.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Export worker started",
			"exchange", cfg.AMQPExchange,
			"queue", cfg.AMQPQueue)
		err := client.ConsumeLedgerEvents(gctx, w.HandleLedgerEvent)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	if err := g.Wait(); err != nil {
		logger.Error("Export worker stopped", applog.FieldError, err)
		return err
	}
	logger.Info("Export worker stopped gracefully")
	return nil
}

// openMirror picks Google Sheets when a spreadsheet is configured and an
// in-memory mirror otherwise.
func openMirror(ctx context.Context, cfg *config.Config, logger *applog.Logger) (sheets.LedgerMirror, error) {
	if !cfg.SheetsEnabled() {
		logger.Warn("GOOGLE_SPREADSHEET_ID not set, mirroring into memory")
		return memory.New(), nil
	}
	client, err := gsheet.New(ctx, gsheet.Options{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
		OAuthClientJSON: cfg.GoogleOAuthClientJSON,
		OAuthClientFile: cfg.GoogleOAuthClientFile,
		OAuthTokenJSON:  cfg.GoogleOAuthTokenJSON,
		OAuthTokenFile:  cfg.GoogleOAuthTokenFile,
	})
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", applog.FieldError, err)
		return nil, err
	}
	logger.Info("Mirroring into Google Sheets", "sheet", cfg.GoogleSheetName)
	return client, nil
}

func backfill(ctx context.Context, a *app, w *worker.ExportWorker) error {
	user, err := a.lookupUser(ctx, flagBackfillUser)
	if err != nil {
		return err
	}
	month := flagBackfillMonth
	if month == "" {
		month = core.MonthKey(a.now())
	}
	win, err := core.ParseMonthKey(month, a.loc)
	if err != nil {
		return err
	}
	n, err := w.ExportWindow(ctx, user.ID, win)
	if err != nil {
		return fmt.Errorf("backfill %s %s: %w", user.Username, month, err)
	}
	a.logger.Info("Backfill completed", applog.FieldUserID, user.ID, applog.FieldMonthKey, month, "exported", n)
	return nil
}
