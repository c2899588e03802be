package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/notifly-go/internal/server"
	"github.com/notifly-go/pkg/config"
	"github.com/notifly-go/pkg/database"
	"github.com/notifly-go/pkg/logger"
)

type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateInitialized
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateInitialized:
		return "initialized"
	default:
		return "unknown"
	}
}

var ErrInitializing = errors.New("application is already initializing")

type Database interface {
	Connect(ctx context.Context) error
	Sync(ctx context.Context, opts database.SyncOptions) error
	Close() error
}

type Orchestrator interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) (server.ShutdownResult, error)
}

// Background work started once the server listens and stopped before it shuts down.
type Background interface {
	Start()
	Stop(ctx context.Context) error
}

type serveErrors interface {
	Errors() <-chan error
}

// Readiness is satisfied by the GraphQL server once its schema and resolvers are in place.
type Readiness interface {
	Ready() error
}

type closer struct {
	name string
	fn   func(context.Context) error
}

type App struct {
	config       *config.Config
	logger       logger.Logger
	db           Database
	orchestrator Orchestrator
	readiness    Readiness
	background   []Background
	closers      []closer
	exit         func(int)

	mu                sync.Mutex
	state             State
	backgroundStarted bool
	released          bool

	shutdownOnce sync.Once
}

type Option func(*App)

// WithExit replaces os.Exit.
func WithExit(fn func(int)) Option {
	return func(a *App) { a.exit = fn }
}

func WithReadiness(r Readiness) Option {
	return func(a *App) { a.readiness = r }
}

func WithBackground(b Background) Option {
	return func(a *App) { a.background = append(a.background, b) }
}

// WithCloser registers a resource released after the database during teardown.
// Closers run in registration order.
func WithCloser(name string, fn func(context.Context) error) Option {
	return func(a *App) { a.closers = append(a.closers, closer{name: name, fn: fn}) }
}

func New(cfg *config.Config, log logger.Logger, db Database, orchestrator Orchestrator, opts ...Option) *App {
	a := &App{
		config:       cfg,
		logger:       log,
		db:           db,
		orchestrator: orchestrator,
		exit:         os.Exit,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ServeErrors delivers failures of the running server. The channel is nil,
// and never ready, when the orchestrator does not report them.
func (a *App) ServeErrors() <-chan error {
	if se, ok := a.orchestrator.(serveErrors); ok {
		return se.Errors()
	}
	return nil
}

func (a *App) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Initialize runs the startup sequence once. Any failure releases what was
// already acquired and leaves the application uninitialized.
func (a *App) Initialize(ctx context.Context) error {
	a.mu.Lock()
	switch a.state {
	case StateInitialized:
		a.mu.Unlock()
		a.logger.Warn("Application already initialized")
		return nil
	case StateInitializing:
		a.mu.Unlock()
		return ErrInitializing
	}
	a.state = StateInitializing
	a.mu.Unlock()

	start := time.Now()
	a.logger.Info("Initializing application", "environment", a.config.Environment, "version", config.Version)

	if err := a.initialize(ctx); err != nil {
		a.logger.Error("Application initialization failed", "error", err)
		a.cleanup()
		a.setState(StateUninitialized)
		return err
	}

	a.setState(StateInitialized)
	a.logger.Info("Application initialized", "duration", time.Since(start))
	return nil
}

func (a *App) initialize(ctx context.Context) error {
	if err := a.config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := a.db.Connect(ctx); err != nil {
		return err
	}

	// Schema changes are only applied automatically in development.
	opts := database.SyncOptions{Alter: a.config.IsDevelopment()}
	if err := a.db.Sync(ctx, opts); err != nil {
		return err
	}

	if a.readiness != nil {
		if err := a.readiness.Ready(); err != nil {
			return fmt.Errorf("graphql server not ready: %w", err)
		}
	}

	if err := a.orchestrator.Start(ctx); err != nil {
		return err
	}

	for _, b := range a.background {
		b.Start()
	}
	a.mu.Lock()
	a.backgroundStarted = len(a.background) > 0
	a.mu.Unlock()
	return nil
}

// cleanup undoes a partial startup. The orchestrator skips the stop when it never started.
func (a *App) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
	defer cancel()

	if err := a.release(ctx); err != nil {
		a.logger.Warn("Cleanup after failed initialization incomplete", "error", err)
	}
}

// Teardown stops background work and the server, then releases the database
// and the registered closers. Every step runs even if an earlier one fails.
// Resources already released by a failed Initialize are not released twice.
func (a *App) Teardown(ctx context.Context) error {
	var errs []error

	a.mu.Lock()
	started := a.backgroundStarted
	a.backgroundStarted = false
	a.mu.Unlock()

	if started {
		for _, b := range a.background {
			if err := b.Stop(ctx); err != nil {
				errs = append(errs, fmt.Errorf("failed to stop background work: %w", err))
			}
		}
	}

	if err := a.release(ctx); err != nil {
		errs = append(errs, err)
	}

	a.setState(StateUninitialized)
	return errors.Join(errs...)
}

// release stops the server, closes the database and runs the closers, once.
func (a *App) release(ctx context.Context) error {
	a.mu.Lock()
	if a.released {
		a.mu.Unlock()
		return nil
	}
	a.released = true
	a.mu.Unlock()

	var errs []error

	result, err := a.orchestrator.Stop(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to stop server: %w", err))
	} else if result.Forced {
		a.logger.Warn("Server stop hit the shutdown deadline", "duration", result.Duration)
	}

	if err := a.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close database: %w", err))
	}

	for _, c := range a.closers {
		if err := c.fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to close %s: %w", c.name, err))
		}
	}
	return errors.Join(errs...)
}

// Run initializes the application and blocks until a signal or a serve
// failure, then shuts down through Shutdown. A signal received during
// startup cancels it; the partial startup is released and the process
// exits cleanly. A startup failure exits with 1.
func (a *App) Run(ctx context.Context, signals <-chan os.Signal) {
	initCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	initDone := make(chan error, 1)
	go func() {
		defer a.RecoverAndShutdown()
		initDone <- a.Initialize(initCtx)
	}()

	var cause error
	select {
	case sig := <-signals:
		a.logger.Info("Received shutdown signal during startup", "signal", sig.String())
		cancel()
		if err := <-initDone; err != nil {
			a.logger.Info("Startup interrupted", "error", err)
		}
	case err := <-initDone:
		if err != nil {
			cause = fmt.Errorf("startup failed: %w", err)
			break
		}
		select {
		case sig := <-signals:
			a.logger.Info("Received shutdown signal", "signal", sig.String())
		case err := <-a.ServeErrors():
			cause = err
		}
	}

	// Leave a second past the watchdog for the database and the other closers.
	shutdownCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), a.shutdownTimeout()+time.Second)
	defer stop()
	a.Shutdown(shutdownCtx, cause)
}

// Shutdown is the single exit path for signals, serve errors and recovered
// panics. Only the first call tears down; it then exits with 1 when cause is
// set or teardown failed, 0 otherwise.
func (a *App) Shutdown(ctx context.Context, cause error) {
	a.shutdownOnce.Do(func() {
		if cause != nil {
			a.logger.Error("Shutting down after failure", "cause", cause)
		} else {
			a.logger.Info("Shutting down gracefully")
		}

		code := 0
		if cause != nil {
			code = 1
		}
		if err := a.Teardown(ctx); err != nil {
			a.logger.Error("Shutdown completed with errors", "error", err)
			code = 1
		} else {
			a.logger.Info("Shutdown complete")
		}
		a.exit(code)
	})
}

// RecoverAndShutdown turns a panic into a failed shutdown. It must be deferred directly.
func (a *App) RecoverAndShutdown() {
	r := recover()
	if r == nil {
		return
	}
	err, ok := r.(error)
	if !ok {
		err = fmt.Errorf("%v", r)
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout()+time.Second)
	defer cancel()
	a.Shutdown(ctx, fmt.Errorf("panic: %w", err))
}

func (a *App) shutdownTimeout() time.Duration {
	if a.config.Server.ShutdownTimeout > 0 {
		return a.config.Server.ShutdownTimeout
	}
	return 10 * time.Second
}

func (a *App) setState(state State) {
	a.mu.Lock()
	a.state = state
	a.mu.Unlock()
}
