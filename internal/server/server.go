// Package server wires the gateway stack together and serves the HTTP API.
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
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

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cordonlabs/cordon/internal/auth"
	"github.com/cordonlabs/cordon/internal/config"
	"github.com/cordonlabs/cordon/internal/detector"
	"github.com/cordonlabs/cordon/internal/events"
	"github.com/cordonlabs/cordon/internal/freeze"
	"github.com/cordonlabs/cordon/internal/gateway"
	"github.com/cordonlabs/cordon/internal/health"
	"github.com/cordonlabs/cordon/internal/logging"
	"github.com/cordonlabs/cordon/internal/oracle"
	"github.com/cordonlabs/cordon/internal/ordering"
	"github.com/cordonlabs/cordon/internal/realtime"
	"github.com/cordonlabs/cordon/internal/registry"
	"github.com/cordonlabs/cordon/internal/traces"
	"github.com/cordonlabs/cordon/internal/validation"
	"github.com/cordonlabs/cordon/internal/vault"
)

// Server wraps the HTTP server and the gateway stack behind it.
type Server struct {
	cfg     *config.Config
	clock   *ordering.Counter
	router  *vault.Router
	reg     *registry.Service
	det     *detector.Detector
	ledger  *freeze.Ledger
	oracle  *oracle.Service
	gw      *gateway.Service
	emitter *events.Emitter

	recorder    *events.Recorder
	kafkaSink   *events.KafkaSink
	hub         *realtime.Hub
	dispatcher  *oracle.Dispatcher
	freezeTimer *freeze.Timer
	checks      *health.Registry

	db           *sql.DB // nil when using in-memory stores
	engine       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	shutdownOTel func(context.Context) error
	cancelRunCtx context.CancelFunc

	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// New creates a server instance with all subsystems wired.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		clock:  ordering.NewCounter(1),
		logger: logging.New(cfg.LogLevel, cfg.LogFormat),
	}
	for _, opt := range opts {
		opt(s)
	}

	// Storage: Postgres when DATABASE_URL is set, in-memory otherwise.
	var (
		regStore    registry.Store
		freezeStore freeze.Store
		oracleStore oracle.Store
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		s.db = db
		regStore = registry.NewPostgresStore(db)
		freezeStore = freeze.NewPostgresStore(db)
		oracleStore = oracle.NewPostgresStore(db)
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
	} else {
		regStore = registry.NewMemoryStore()
		freezeStore = freeze.NewMemoryStore()
		oracleStore = oracle.NewMemoryStore()
		s.logger.Info("using in-memory storage (data will not persist)")
	}

	// Audit sinks: log always, ring buffer for the API, Kafka when configured,
	// realtime hub for WebSocket subscribers.
	s.recorder = events.NewRecorder(1024)
	s.hub = realtime.NewHub(s.logger)
	sinks := []events.Sink{
		events.NewLogSink(s.logger),
		s.recorder,
		realtime.NewSink(s.hub),
	}
	if len(cfg.KafkaBrokers) > 0 {
		ks, err := events.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			s.logger.Warn("kafka audit sink disabled", "error", err)
		} else {
			s.kafkaSink = ks
			sinks = append(sinks, ks)
			s.logger.Info("kafka audit sink enabled", "topic", cfg.KafkaTopic)
		}
	}
	s.emitter = events.NewEmitter(s.logger, sinks...)

	// Detector policy: defaults merged with the optional YAML policy file.
	detCfg, err := detector.LoadConfig(cfg.PolicyFile)
	if err != nil {
		return nil, fmt.Errorf("load detector policy: %w", err)
	}
	if cfg.PolicyFile != "" {
		s.logger.Info("detector policy loaded", "file", cfg.PolicyFile)
	}
	s.det = detector.New(detCfg, detector.WithLogger(s.logger))

	s.reg = registry.NewService(regStore, s.logger, registry.WithEmitter(s.emitter))
	s.router = vault.NewRouter()

	stats := gateway.NewStats()
	s.ledger = freeze.NewLedger(freezeStore, s.clock,
		freeze.WithInvoker(s.router),
		freeze.WithMitigationRecorder(stats),
		freeze.WithLogger(s.logger),
	)
	if err := s.ledger.SetFreezeDuration(cfg.FreezeDuration); err != nil {
		return nil, fmt.Errorf("freeze duration: %w", err)
	}
	s.freezeTimer = freeze.NewTimer(s.ledger, s.clock, s.logger)

	s.dispatcher = oracle.NewDispatcher(s.logger, &logNotifier{s.logger})
	s.oracle = oracle.NewService(oracleStore,
		oracle.WithDispatcher(s.dispatcher),
		oracle.WithEscalator(s.ledger),
		oracle.WithEmitter(s.emitter),
		oracle.WithLogger(s.logger),
	)

	s.gw = gateway.New(s.reg, s.det, s.ledger, s.clock,
		gateway.WithForwarder(s.router),
		gateway.WithAnalysisRequester(s.oracle),
		gateway.WithEmitter(s.emitter),
		gateway.WithStats(stats),
		gateway.WithLogger(s.logger),
	)

	s.checks = health.NewRegistry()
	s.checks.Register("store", s.storeCheck())

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	s.engine = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)
	return s, nil
}

// Gateway exposes the gateway service, mainly for tests.
func (s *Server) Gateway() *gateway.Service {
	return s.gw
}

// Mount attaches a protected application at the target address.
func (s *Server) Mount(target common.Address, app vault.Application) {
	s.router.Mount(target, app)
}

// Engine returns the gin engine for testing.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// maskDSN hides the password in a connection string for logging.
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

// logNotifier records analysis requests in the structured log. Production
// deployments add webhook or queue notifiers alongside it.
type logNotifier struct {
	logger *slog.Logger
}

func (n *logNotifier) NotifyAnalysisRequested(_ context.Context, a *oracle.Analysis) error {
	n.logger.Info("analysis requested",
		"threatId", a.ThreatID.Hex(),
		"target", a.Target.Hex(),
		"caller", a.Caller.Hex(),
	)
	return nil
}

func (s *Server) storeCheck() health.Check {
	return func(ctx context.Context) (string, error) {
		if s.db == nil {
			return "in-memory", nil
		}
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			return "", err
		}
		return "postgres", nil
	}
}

func (s *Server) setupMiddleware() {
	s.engine.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	s.engine.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))
	s.engine.Use(s.requestIDMiddleware())
	s.engine.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
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

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", s.healthHandler)
	s.engine.GET("/health/live", s.livenessHandler)
	s.engine.GET("/health/ready", s.readinessHandler)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.engine.Group("/v1")

	gwHandler := gateway.NewHandler(s.gw)
	gwHandler.RegisterRoutes(v1)

	regHandler := registry.NewHandler(s.reg)
	regHandler.RegisterRoutes(v1)

	orHandler := oracle.NewHandler(s.oracle)
	orHandler.RegisterRoutes(v1)

	evHandler := events.NewHandler(s.recorder)
	evHandler.RegisterRoutes(v1)

	v1.GET("/ws", func(c *gin.Context) {
		s.hub.HandleWebSocket(c.Writer, c.Request)
	})

	// Owner surface. Locked entirely when no admin secret is configured.
	admin := v1.Group("/admin")
	admin.Use(auth.RequireAdmin(s.cfg.AdminSecret))
	gwHandler.RegisterAdminRoutes(admin)
	regHandler.RegisterAdminRoutes(admin)

	// Oracle surface: verdict submission and the pending queue.
	oracleGroup := v1.Group("/oracle")
	oracleGroup.Use(auth.RequireOracle(s.cfg.OracleSecret))
	orHandler.RegisterOracleRoutes(oracleGroup)
}

type healthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Unit      uint64          `json:"unit"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	healthy, statuses := s.checks.Run(c.Request.Context())

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, healthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    statuses,
		Unit:      s.clock.Unit(),
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

// Run starts the HTTP server and background loops, blocking until a
// shutdown signal or a server error.
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	if s.cfg.OTLPEndpoint != "" {
		shutdown, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.logger)
		if err != nil {
			s.logger.Warn("tracing disabled", "error", err)
		} else {
			s.shutdownOTel = shutdown
		}
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.engine,
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

	go s.hub.Run(runCtx)
	go s.dispatcher.Start(runCtx)
	go s.freezeTimer.Start(runCtx)
	go s.tickOrdering(runCtx)

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

// tickOrdering advances the ordering unit on a wall-clock cadence. The unit
// is a block-number analogue: freeze windows and pattern windows are
// expressed against it, so the tick is the platform's heartbeat.
func (s *Server) tickOrdering(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(s.cfg.OrderingTick) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.clock.Advance(1)
		}
	}
}

// Shutdown gracefully stops the server and background loops.
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

	s.freezeTimer.Stop()
	s.dispatcher.Stop()

	if s.kafkaSink != nil {
		if err := s.kafkaSink.Close(); err != nil {
			s.logger.Error("kafka sink close error", "error", err)
		}
	}

	if s.shutdownOTel != nil {
		if err := s.shutdownOTel(ctx); err != nil {
			s.logger.Error("tracer shutdown error", "error", err)
		}
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

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
