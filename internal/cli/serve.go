package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"finanzapp/internal/cache"
	apphttp "finanzapp/internal/http"
	applog "finanzapp/internal/log"
	"finanzapp/internal/services"
)

const cacheCleanupInterval = time.Minute

var (
	flagSecureCookies  bool
	flagTrustedProxies []string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&flagSecureCookies, "secure-cookies", false, "mark the CSRF cookie Secure (serve behind TLS)")
	serveCmd.Flags().StringSliceVar(&flagTrustedProxies, "trusted-proxy", nil, "CIDR whose X-Forwarded-For is trusted (repeatable)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := bootstrap(ctx, applog.ComponentApp)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg, logger := a.cfg, a.logger

	ev, err := a.connectEvents(ctx)
	if err != nil {
		return err
	}
	defer ev.Close()

	caches := cache.NewManager()
	var statsCache *cache.LRUCache[services.PeriodStatistics]
	if cfg.StatsCacheSize > 0 {
		statsCache = cache.NewLRUCache[services.PeriodStatistics](cfg.StatsCacheSize, cfg.StatsCacheTTL)
		caches.Register(statsCache)
	}
	statsInvalidator := services.NewStatisticsInvalidator(statsCache)
	charges := services.NewChargeGenerator(a.repo, append(ev.genOpts, services.WithChargeListener(statsInvalidator))...)
	caches.StartCleanup(ctx, cacheCleanupInterval)
	defer caches.Stop()

	gin.SetMode(gin.ReleaseMode)
	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Expenses:    services.NewExpenseService(a.repo, charges, ev.publisher, a.loc, services.WithExpenseListener(statsInvalidator)),
		Resolutions: services.NewResolutionService(a.repo, charges, a.loc),
		Statistics:  services.NewStatisticsService(a.repo, charges, statsCache, a.loc),
		Users:       services.NewUserService(a.repo),
		Health:      a.repo,
	}, apphttp.Options{
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		CORSOrigins:        cfg.CORSOrigins,
		CSRFSecret:         cfg.CSRFSecret,
		SecureCookies:      flagSecureCookies,
		TrustedProxies:     flagTrustedProxies,
		Location:           a.loc,
		Logger:             logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting finanzapp server",
			"port", cfg.Port,
			"driver", cfg.DatabaseDriver,
			"timezone", a.loc.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down", applog.FieldOperation, applog.OpShutdown)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("Server error", applog.FieldError, err)
		return err
	}
	logger.Info("Server stopped gracefully")
	return nil
}
