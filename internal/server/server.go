package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/notifly-go/pkg/auth"
	"github.com/notifly-go/pkg/config"
	"github.com/notifly-go/pkg/database"
	"github.com/notifly-go/pkg/logger"
	"github.com/notifly-go/pkg/metrics"
	"github.com/notifly-go/pkg/middleware"
	"github.com/notifly-go/pkg/ratelimit"
	"github.com/notifly-go/pkg/telemetry"
)

const defaultShutdownTimeout = 10 * time.Second

// GraphQLServer is the sub-server mounted at /graphql.
type GraphQLServer interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Handler() http.Handler
}

// DatabaseStatus reports the latest database heartbeat.
type DatabaseStatus interface {
	Status() database.Status
}

// Options carries the optional cross-cutting collaborators. A nil field
// leaves the corresponding middleware or route out.
type Options struct {
	Sessions  *auth.SessionManager
	Tokens    *auth.Manager
	Limiter   ratelimit.RateLimiter
	Metrics   *metrics.Metrics
	Telemetry *telemetry.Telemetry
	Database  DatabaseStatus
}

// Server owns the HTTP engine and the listen socket. Its state only moves
// forward: not started, starting, listening, shutting down, stopped.
type Server struct {
	config  *config.Config
	logger  logger.Logger
	graph   GraphQLServer
	options Options

	mu         sync.Mutex
	state      State
	startedAt  time.Time
	httpServer *http.Server
	listener   net.Listener
	errCh      chan error
}

func New(cfg *config.Config, log logger.Logger, graph GraphQLServer, opts Options) *Server {
	return &Server{
		config:  cfg,
		logger:  log,
		graph:   graph,
		options: opts,
		errCh:   make(chan error, 1),
	}
}

// Start brings the sub-server up, builds the router and binds the socket.
// A failed start is terminal.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateNotStarted {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot start while %s", ErrInvalidState, state)
	}
	s.state = StateStarting
	s.mu.Unlock()

	if err := s.start(ctx); err != nil {
		s.setState(StateStopped)
		return err
	}
	return nil
}

func (s *Server) start(ctx context.Context) error {
	if err := s.graph.Start(ctx); err != nil {
		s.logger.Error("Failed to start GraphQL server", "error", err)
		return fmt.Errorf("failed to start GraphQL server: %w", err)
	}

	router, err := s.setupRouter()
	if err != nil {
		s.stopGraph(ctx)
		return err
	}

	addr := s.config.Addr()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		bindErr := classifyBindError(addr, err)
		switch {
		case errors.Is(bindErr, ErrPortInUse):
			s.logger.Error("Port is already in use", "port", s.config.Server.Port, "error", err)
		case errors.Is(bindErr, ErrPermissionDenied):
			s.logger.Error("Permission denied binding port", "port", s.config.Server.Port, "error", err)
		default:
			s.logger.Error("Failed to bind HTTP server", "addr", addr, "error", err)
		}
		s.stopGraph(ctx)
		return bindErr
	}

	httpServer := &http.Server{
		Handler:      router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
	}

	s.mu.Lock()
	s.httpServer = httpServer
	s.listener = ln
	s.startedAt = time.Now()
	s.state = StateListening
	s.mu.Unlock()

	go s.serve(httpServer, ln)

	s.logger.Info("HTTP server listening",
		"addr", ln.Addr().String(),
		"environment", s.config.Environment,
		"graphql", "/graphql",
	)
	return nil
}

func (s *Server) serve(srv *http.Server, ln net.Listener) {
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("HTTP server failed", "error", err)
		select {
		case s.errCh <- err:
		default:
		}
	}
}

func (s *Server) stopGraph(ctx context.Context) {
	if err := s.graph.Stop(ctx); err != nil {
		s.logger.Warn("Failed to stop GraphQL server", "error", err)
	}
}

// Stop shuts down gracefully under a watchdog. Only the first call does any
// work; concurrent and later calls return a skipped result.
func (s *Server) Stop(ctx context.Context) (ShutdownResult, error) {
	s.mu.Lock()
	switch s.state {
	case StateShuttingDown, StateStopped:
		s.mu.Unlock()
		return ShutdownResult{Skipped: true}, nil
	case StateNotStarted:
		s.state = StateStopped
		s.mu.Unlock()
		return ShutdownResult{Skipped: true}, nil
	case StateStarting:
		s.mu.Unlock()
		return ShutdownResult{}, fmt.Errorf("%w: cannot stop while starting", ErrInvalidState)
	}
	s.state = StateShuttingDown
	httpServer := s.httpServer
	s.mu.Unlock()

	timeout := s.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	s.logger.Info("Shutting down HTTP server", "timeout", timeout)

	start := time.Now()
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		var errs []error
		if err := s.graph.Stop(wctx); err != nil {
			errs = append(errs, fmt.Errorf("graphql: %w", err))
		}
		if err := httpServer.Shutdown(wctx); err != nil {
			errs = append(errs, fmt.Errorf("http: %w", err))
		}
		done <- errors.Join(errs...)
	}()

	var result ShutdownResult
	var err error
	select {
	case err = <-done:
		result.Forced = errors.Is(err, context.DeadlineExceeded)
	case <-wctx.Done():
		result.Forced = true
	}

	if result.Forced {
		err = nil
		if closeErr := httpServer.Close(); closeErr != nil {
			err = fmt.Errorf("failed to force close: %w", closeErr)
		}
		s.logger.Warn("Graceful shutdown timed out, connections force-closed", "timeout", timeout)
	}

	result.Duration = time.Since(start)
	s.setState(StateStopped)
	if err != nil {
		s.logger.Error("HTTP server shutdown failed", "error", err)
		return result, err
	}
	s.logger.Info("HTTP server stopped", "duration", result.Duration, "forced", result.Forced)
	return result, nil
}

// Errors delivers serve-loop failures that happen after the socket is bound.
func (s *Server) Errors() <-chan error {
	return s.errCh
}

// Addr is the bound address, or nil before the socket is open.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Server) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := Info{
		Port:           s.config.Server.Port,
		PID:            os.Getpid(),
		Environment:    s.config.Environment,
		IsListening:    s.state == StateListening,
		IsShuttingDown: s.state == StateShuttingDown,
		State:          s.state.String(),
	}
	if s.listener != nil {
		if tcp, ok := s.listener.Addr().(*net.TCPAddr); ok {
			info.Port = tcp.Port
		}
	}
	if !s.startedAt.IsZero() {
		startedAt := s.startedAt
		info.StartedAt = &startedAt
		info.Uptime = time.Since(startedAt).Seconds()
	}
	return info
}

func (s *Server) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Server) setupRouter() (*gin.Engine, error) {
	router := gin.New()

	var trusted []string
	if s.config.Server.TrustProxy {
		trusted = []string{"0.0.0.0/0", "::/0"}
	}
	if err := router.SetTrustedProxies(trusted); err != nil {
		return nil, fmt.Errorf("failed to configure trusted proxies: %w", err)
	}

	router.Use(middleware.Recovery(s.logger))
	router.Use(middleware.RequestID())
	router.Use(middleware.SecurityHeaders(s.config.IsProduction()))
	router.Use(middleware.BodyLimit(s.config.Server.BodyLimit))
	if s.options.Sessions != nil {
		router.Use(middleware.Session(s.options.Sessions, s.logger))
	}
	if s.options.Tokens != nil {
		router.Use(middleware.Authenticate(s.options.Tokens, s.logger))
	}
	if s.options.Metrics != nil {
		router.Use(s.options.Metrics.GinMiddleware())
	}
	if s.options.Telemetry != nil {
		router.Use(s.options.Telemetry.HTTPMiddleware())
	}
	if !s.config.IsProduction() {
		router.Use(middleware.RequestLogger(s.logger))
	}

	// Only API traffic is rate limited.
	graphql := router.Group("/graphql", middleware.CORS(s.config.Server.CORSOrigin))
	if s.options.Limiter != nil {
		graphql.Use(ratelimit.Middleware(s.options.Limiter, ratelimit.IPKeyFunc, s.logger))
	}
	graphql.Any("", gin.WrapH(s.graph.Handler()))

	router.GET("/", s.root)
	router.GET("/health", s.health)
	if s.options.Metrics != nil && s.config.Features.Metrics {
		router.GET("/metrics", gin.WrapH(s.options.Metrics.Handler()))
	}

	router.NoRoute(s.notFound)
	router.NoMethod(s.notFound)
	return router, nil
}
