package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/triad/internal/api/middleware"
	"github.com/GriffinCanCode/triad/internal/domain/health"
	"github.com/GriffinCanCode/triad/internal/domain/supervisor"
	"github.com/GriffinCanCode/triad/internal/infrastructure/config"
	"github.com/GriffinCanCode/triad/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/triad/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/triad/internal/infrastructure/scheduler"
	"github.com/GriffinCanCode/triad/internal/shared/id"
	"github.com/GriffinCanCode/triad/internal/ws"
)

var ErrMissingDependency = errors.New("server: missing dependency")

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// StatusSource supplies the latest supervision snapshot
type StatusSource interface {
	Latest() (supervisor.Snapshot, bool)
	RestartBudget() resilience.Counts
}

// TaskLister lists live task instances
type TaskLister interface {
	Tasks() []scheduler.TaskInfo
}

// Options wires the server to the running system
type Options struct {
	Config      config.DiagnosticsConfig
	Development bool
	BootID      id.BootID
	Logger      *zap.Logger
	Metrics     *monitoring.Metrics
	Status      StatusSource
	Tasks       TaskLister
	Hub         *ws.Hub
}

// Status is the /status payload
type Status struct {
	BootID   id.BootID                  `json:"boot_id"`
	Snapshot *supervisor.Snapshot       `json:"snapshot,omitempty"`
	Budget   resilience.Counts          `json:"restart_budget"`
	Totals   monitoring.MetricsSnapshot `json:"totals"`
}

// Server is the read-only diagnostics HTTP server
type Server struct {
	router *gin.Engine
	http   *http.Server
	logger *zap.Logger
	opts   Options
}

// New builds the router. It does not listen until Start.
func New(opts Options) (*Server, error) {
	if opts.Status == nil || opts.Tasks == nil || opts.Metrics == nil {
		return nil, ErrMissingDependency
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	logger := opts.Logger.Named("diagnostics")

	if !opts.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(opts.Metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))

	global := middleware.RateLimitConfig{
		RequestsPerSecond: opts.Config.GlobalRateLimitRPS,
		Burst:             opts.Config.GlobalRateLimitBurst,
	}
	if global.Enabled() {
		router.Use(middleware.GlobalRateLimit(global))
	}

	limit := middleware.RateLimitConfig{
		RequestsPerSecond: opts.Config.RateLimitRPS,
		Burst:             opts.Config.RateLimitBurst,
	}
	if limit.Enabled() {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", limit.RequestsPerSecond),
			zap.Int("burst", limit.Burst))
		router.Use(middleware.RateLimit(limit))
	}

	s := &Server{
		router: router,
		logger: logger,
		opts:   opts,
	}

	router.GET("/", s.root)
	router.GET("/health", s.health)
	router.GET("/status", s.status)
	router.GET("/tasks", s.tasks)
	router.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	if opts.Hub != nil {
		router.GET("/stream", opts.Hub.HandleConnection)
	}

	s.http = &http.Server{
		Addr:              opts.Config.Addr(),
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s, nil
}

// Handler returns the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves until Shutdown or ctx
// is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.http.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on an existing listener
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("Starting diagnostics server", zap.String("addr", ln.Addr().String()))

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
	})
	defer stop()

	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("diagnostics server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and closes the snapshot stream
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down diagnostics server")
	if s.opts.Hub != nil {
		s.opts.Hub.Close()
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":   "triad",
		"boot_id":   s.opts.BootID,
		"endpoints": []string{"/health", "/status", "/tasks", "/metrics", "/stream"},
	})
}

// health answers 503 before the first supervision cycle and while either
// worker is failing.
func (s *Server) health(c *gin.Context) {
	snap, ok := s.opts.Status.Latest()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
		return
	}

	code := http.StatusOK
	state := "ok"
	if snap.Generator != health.GeneratorStatusOk ||
		snap.Receiver == health.ReceiverStatusCritical ||
		snap.Receiver == health.ReceiverStatusUnknown {
		code = http.StatusServiceUnavailable
		state = "degraded"
	}
	c.JSON(code, gin.H{
		"status":    state,
		"generator": snap.Generator,
		"receiver":  snap.Receiver,
		"cycle":     snap.Cycle,
	})
}

func (s *Server) status(c *gin.Context) {
	out := Status{
		BootID: s.opts.BootID,
		Budget: s.opts.Status.RestartBudget(),
		Totals: s.opts.Metrics.GetSnapshot(),
	}
	if snap, ok := s.opts.Status.Latest(); ok {
		out.Snapshot = &snap
	}
	s.writeJSON(c, http.StatusOK, out)
}

func (s *Server) tasks(c *gin.Context) {
	s.writeJSON(c, http.StatusOK, gin.H{"tasks": s.opts.Tasks.Tasks()})
}

func (s *Server) writeJSON(c *gin.Context, code int, v any) {
	body, err := sonic.Marshal(v)
	if err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "encoding failed"})
		return
	}
	c.Data(code, "application/json; charset=utf-8", body)
}
