package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"finanzapp/internal/core"
	applog "finanzapp/internal/log"
	"finanzapp/internal/middleware/ratelimit"
	"finanzapp/internal/middleware/security"
	"finanzapp/internal/middleware/trace"
	"finanzapp/internal/services"
)

// ExpenseService is what the expense and definition routes need.
type ExpenseService interface {
	CreateExpense(ctx context.Context, userID string, in services.NewExpense) (services.CreatedExpense, error)
	DeleteEntry(ctx context.Context, userID, entryID string) error
	RateEntry(ctx context.Context, userID, entryID string, in services.RatingInput) (core.LedgerEntry, error)
	MonthEntries(ctx context.Context, userID string, q services.MonthQuery) (services.MonthEntries, error)
	MonthSummary(ctx context.Context, userID string) (core.MonthSummary, error)
	UnratedEntries(ctx context.Context, userID string) ([]core.UnratedEntry, error)
	StopRecurring(ctx context.Context, userID, defID string) (services.NextCharge, error)
	NextCharge(ctx context.Context, userID, defID string) (services.NextCharge, error)
}

type ResolutionService interface {
	List(ctx context.Context, userID, monthKey string) ([]core.Resolution, error)
	Create(ctx context.Context, userID string, in services.NewResolution) (core.Resolution, error)
	Update(ctx context.Context, userID, id string, params core.ResolutionParams) (core.Resolution, error)
	Delete(ctx context.Context, userID, id string) error
	Statuses(ctx context.Context, userID, monthKey string) ([]core.ResolutionStatus, error)
}

type StatisticsService interface {
	Period(ctx context.Context, userID string, pt core.PeriodType, key string) (services.PeriodStatistics, error)
}

// HealthChecker reports whether the backing store is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the routes call into. Health may be nil.
type Deps struct {
	Expenses    ExpenseService
	Resolutions ResolutionService
	Statistics  StatisticsService
	Users       Authenticator
	Health      HealthChecker
}

// Options tune the middleware stack.
type Options struct {
	RateLimitPerMinute int
	CORSOrigins        []string
	// CSRFSecret enables double-submit verification when set.
	CSRFSecret     string
	SecureCookies  bool
	TrustedProxies []string
	Location       *time.Location
	Logger         *applog.Logger
}

type Server struct {
	http.Server

	expenses    ExpenseService
	resolutions ResolutionService
	statistics  StatisticsService
	health      HealthChecker
	loc         *time.Location

	csrf     *csrfGuard
	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, deps Deps, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}

	s := &Server{
		expenses:    deps.Expenses,
		resolutions: deps.Resolutions,
		statistics:  deps.Statistics,
		health:      deps.Health,
		loc:         loc,
		csrf:        newCSRFGuard(opts.CSRFSecret, opts.SecureCookies),
		limiter:     ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		detector:    security.NewDetector(),
	}
	for _, cidr := range opts.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring invalid trusted proxy", "cidr", cidr, applog.FieldError, err)
		}
	}
	s.tracer = trace.NewMiddleware(s.detector.ClientIP)
	if s.csrf == nil {
		logger.Warn("CSRF_SECRET not set, CSRF verification disabled")
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(applog.Middleware(logger.WithComponent(applog.ComponentHTTP)))
	r.Use(s.tracer.Handler())
	r.Use(security.Headers(security.DefaultHeadersConfig()))
	r.Use(s.detector.Guard())
	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     opts.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", headerAPIKey, "Authorization", headerCSRF, trace.HeaderRequestID},
			ExposeHeaders:    []string{"Content-Length", trace.HeaderRequestID},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	r.Use(s.limiter.Middleware(s.detector.ClientIP))

	r.GET("/health", s.handleHealth)

	api := r.Group("/api")
	api.GET("/csrf", s.handleCSRF)

	authed := api.Group("", requireUser(deps.Users), applog.UserMiddleware(currentUserID))
	// capture shortcuts are scripted clients and never carry CSRF tokens
	authed.POST("/expenses/external", s.handleExternalExpense)

	app := authed.Group("", s.csrf.verify())
	app.POST("/expenses", s.handleCreateExpense)
	app.GET("/expenses/current-month", s.handleMonthEntries)
	app.GET("/expenses/summary/current-month", s.handleMonthSummary)
	app.GET("/expenses/unrated/current-month", s.handleUnratedEntries)
	app.DELETE("/expenses/:id", s.handleDeleteEntry)
	app.POST("/expenses/:id/rate", s.handleRateEntry)
	app.PUT("/expenses/:id/rate", s.handleRateEntry)

	app.POST("/definitions/:id/stop", s.handleStopRecurring)
	app.GET("/definitions/:id/next-charge", s.handleNextCharge)

	app.GET("/resolutions", s.handleListResolutions)
	app.POST("/resolutions", s.handleCreateResolution)
	app.GET("/resolutions/status", s.handleResolutionStatuses)
	app.PUT("/resolutions/:id", s.handleUpdateResolution)
	app.DELETE("/resolutions/:id", s.handleDeleteResolution)

	app.GET("/statistics", s.handleStatistics)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown gracefully shuts down the server and its cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
		slog.Info("HTTP server stopped",
			"requests", s.tracer.GetMetrics().TotalRequests,
			"blocked", s.detector.GetMetrics().BlockedRequests,
			"rate_limit_clients", s.limiter.GetMetrics().ClientCount)
	})
	return shutdownErr
}
