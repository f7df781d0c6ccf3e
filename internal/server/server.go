// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/crossmarket/admincore/internal/audit"
	"github.com/crossmarket/admincore/internal/circuitbreaker"
	"github.com/crossmarket/admincore/internal/config"
	"github.com/crossmarket/admincore/internal/dispute"
	"github.com/crossmarket/admincore/internal/escrow"
	"github.com/crossmarket/admincore/internal/health"
	"github.com/crossmarket/admincore/internal/idgen"
	"github.com/crossmarket/admincore/internal/logging"
	"github.com/crossmarket/admincore/internal/metrics"
	"github.com/crossmarket/admincore/internal/order"
	"github.com/crossmarket/admincore/internal/ratelimit"
	"github.com/crossmarket/admincore/internal/security"
	"github.com/crossmarket/admincore/internal/validation"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg          *config.Config
	disputes     *dispute.Service
	orders       order.Store
	auditLog     audit.Writer
	gateway      escrow.Gateway
	rateLimiter  *ratelimit.Limiter
	checks       *health.Registry
	db           *sql.DB // nil if using in-memory
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	cancelRunCtx context.CancelFunc

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithGateway sets a custom escrow gateway (for testing)
func WithGateway(g escrow.Gateway) Option {
	return func(s *Server) {
		s.gateway = g
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}

	// Apply options first (may set gateway/logger)
	for _, opt := range opts {
		opt(s)
	}

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	var store dispute.Store
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.orders = order.NewPostgresStore(db)
		s.auditLog = audit.NewPostgresLog(db)
		store = dispute.NewPostgresStore(db)
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
	} else {
		memLog := audit.NewMemoryLog()
		s.orders = order.NewMemoryStore()
		s.auditLog = memLog
		store = dispute.NewMemoryStore(memLog)
		s.logger.Info("using in-memory storage (set DATABASE_URL for persistence)")
	}

	// Escrow gateway: explicit option > Stripe > HTTP service > in-memory demo
	if s.gateway == nil {
		switch {
		case cfg.StripeAPIKey != "":
			s.gateway = escrow.NewStripeGateway(cfg.StripeAPIKey).WithLogger(s.logger)
			s.logger.Info("using Stripe escrow gateway")
		case cfg.EscrowGatewayURL != "":
			s.gateway = escrow.NewHTTPGateway(escrow.HTTPConfig{
				BaseURL:     cfg.EscrowGatewayURL,
				APIKey:      cfg.EscrowGatewayKey,
				Timeout:     cfg.EscrowTimeout,
				MaxAttempts: cfg.EscrowRetryAttempts,
				BaseDelay:   cfg.EscrowRetryBaseDelay,
			}).WithLogger(s.logger).
				WithBreaker(circuitbreaker.New(5, 30*time.Second))
			s.logger.Info("using HTTP escrow gateway", "url", cfg.EscrowGatewayURL)
		default:
			s.gateway = escrow.NewMemoryGateway()
			s.logger.Info("using in-memory escrow gateway (demo mode)")
		}
	}

	s.disputes = dispute.NewService(store, s.orders, s.gateway, s.auditLog).WithLogger(s.logger)

	s.checks = health.NewRegistry()
	s.checks.Register("database", s.databaseCheck)

	// Setup router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS: the console frontend is served from its own origin
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	rlCfg := ratelimit.DefaultConfig()
	if s.cfg.RateLimitRPS > 0 {
		rlCfg.RequestsPerMinute = s.cfg.RateLimitRPS * 60
		rlCfg.BurstSize = s.cfg.RateLimitRPS * 2
	}
	s.rateLimiter = ratelimit.New(rlCfg)
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = idgen.Hex(8)
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// actorMiddleware captures the authenticated operator's identity from
// the headers the console's auth proxy sets. Authentication itself
// happens upstream; an empty id means an unattributed (system) action.
func actorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ctxActorKey, dispute.Actor{
			ID:   c.GetHeader("X-Admin-Id"),
			Name: c.GetHeader("X-Admin-Name"),
		})
		c.Next()
	}
}

const ctxActorKey = "admincore.actor"

func actorFrom(c *gin.Context) dispute.Actor {
	if v, ok := c.Get(ctxActorKey); ok {
		if a, ok := v.(dispute.Actor); ok {
			return a
		}
	}
	return dispute.Actor{}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	v1 := s.router.Group("/v1")
	v1.Use(actorMiddleware())
	// Validate :id URL params on all v1 routes (no-op when param absent)
	v1.Use(validation.IDParamMiddleware())

	// Dispute queue and detail views
	v1.GET("/disputes", s.listDisputesHandler)
	v1.GET("/disputes/stats", s.disputeStatsHandler)
	v1.GET("/disputes/:id", s.getDisputeHandler)
	v1.GET("/disputes/:id/timeline", s.timelineHandler)
	v1.GET("/disputes/:id/audit-logs", s.auditLogsHandler)

	// Dispute intake and workflow
	v1.POST("/disputes", s.openDisputeHandler)
	v1.PATCH("/disputes/:id/status", s.updateStatusHandler)
	v1.POST("/disputes/:id/resolve", s.resolveHandler)
	v1.POST("/disputes/:id/messages", s.addMessageHandler)
	v1.POST("/disputes/:id/evidence", s.addEvidenceHandler)

	// Order snapshots pushed from the marketplace
	v1.PUT("/orders/:id", s.putOrderHandler)
	v1.GET("/orders/:id", s.getOrderHandler)
}

// -----------------------------------------------------------------------------
// Health handlers
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

// databaseCheck reports storage health. The in-memory store has nothing
// to probe, so it reports healthy with a note.
func (s *Server) databaseCheck(ctx context.Context) health.Status {
	if s.db == nil {
		return health.Status{Name: "database", Healthy: true, Detail: "in-memory"}
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return health.Status{Name: "database", Healthy: false, Detail: err.Error()}
	}
	return health.Status{Name: "database", Healthy: true}
}

func (s *Server) healthHandler(c *gin.Context) {
	healthy, statuses := s.checks.CheckAll(c.Request.Context())

	checks := make(map[string]string, len(statuses))
	for _, st := range statuses {
		switch {
		case !st.Healthy:
			checks[st.Name] = "unhealthy"
		case st.Detail != "":
			checks[st.Name] = st.Detail
		default:
			checks[st.Name] = "healthy"
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the server and blocks until shutdown
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Sample DB pool stats into Prometheus
	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}
