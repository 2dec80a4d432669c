package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/AgentOS/kernel/internal/api/http"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/api/middleware"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/api/ws"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/diag"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/kernel"
)

// Server is the monitor HTTP server: REST state endpoints, Prometheus
// metrics and the WebSocket event stream, all read off a live kernel.
type Server struct {
	router *gin.Engine
	http   *http.Server
	kernel *kernel.Kernel
	log    *logging.Logger
	cfg    *config.Config
}

// New assembles the monitor around a booted kernel. metrics may be nil
// when monitoring is disabled.
func New(cfg *config.Config, k *kernel.Kernel, metrics *monitoring.Metrics, log *logging.Logger) *Server {
	if log == nil {
		log = logging.NewNop()
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	if metrics != nil {
		router.Use(monitoring.Middleware(metrics))
	}
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		log.Info("Monitor rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	dumper := diag.New(cfg.Dump.Dir, log)
	handlers := apihttp.NewHandlers(k, dumper, log)
	stream := ws.NewStream(k.Events(), log)
	if metrics != nil {
		stream.WithMetrics(metrics)
	}

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)

	// Kernel state
	router.GET("/processes", handlers.Processes)
	router.GET("/processes/:pid", handlers.Process)
	router.GET("/memory", handlers.Memory)
	router.GET("/channels", handlers.Channels)
	router.GET("/devices", handlers.Devices)
	router.GET("/snapshot", handlers.Snapshot)

	// Dumps are expensive; one shared limiter regardless of caller.
	router.POST("/dump", middleware.GlobalRateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: 1,
		Burst:             2,
	}), handlers.Dump)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/stream", stream.HandleConnection)

	addr := net.JoinHostPort(cfg.Monitor.Host, cfg.Monitor.Port)
	return &Server{
		router: router,
		http: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		kernel: k,
		log:    log.Named("monitor"),
		cfg:    cfg,
	}
}

// Router exposes the engine for in-process tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run serves until Shutdown. A closed server returns nil.
func (s *Server) Run() error {
	s.log.Info("Monitor listening", zap.String("addr", s.http.Addr))
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Monitor shutting down")
	return s.http.Shutdown(ctx)
}
