package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/99designs/gqlgen/graphql"
	"github.com/99designs/gqlgen/graphql/handler"
	"github.com/99designs/gqlgen/graphql/handler/extension"
	"github.com/99designs/gqlgen/graphql/handler/transport"
	"github.com/99designs/gqlgen/graphql/playground"
	"github.com/notifly-go/pkg/auth"
	"github.com/notifly-go/pkg/logger"
	"github.com/notifly-go/pkg/metrics"
	"github.com/notifly-go/pkg/telemetry"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var ErrStopped = errors.New("graphql server stopped")

const defaultComplexityLimit = 5000

type Options struct {
	Endpoint        string
	Production      bool
	Playground      bool
	Introspection   bool
	ComplexityLimit int
}

// Server is the GraphQL sub-server mounted by the HTTP orchestrator. It only
// accepts operations between Start and Stop; Stop waits for in-flight ones.
type Server struct {
	schema     graphql.ExecutableSchema
	resolver   *Resolver
	handler    *handler.Server
	playground http.HandlerFunc
	options    Options
	logger     logger.Logger
	metrics    *metrics.Metrics
	telemetry  *telemetry.Telemetry

	mu       sync.Mutex
	started  bool
	stopped  bool
	inflight sync.WaitGroup
}

// NewServer builds the gqlgen handler. m may be nil; a nil tel disables tracing.
func NewServer(r *Resolver, opts Options, log logger.Logger, m *metrics.Metrics, tel *telemetry.Telemetry) (*Server, error) {
	es, err := NewExecutableSchema(r)
	if err != nil {
		return nil, err
	}
	if opts.Endpoint == "" {
		opts.Endpoint = "/graphql"
	}
	if opts.ComplexityLimit <= 0 {
		opts.ComplexityLimit = defaultComplexityLimit
	}
	if tel == nil {
		tel = telemetry.NewNop()
	}

	s := &Server{
		schema:    es,
		resolver:  r,
		options:   opts,
		logger:    log,
		metrics:   m,
		telemetry: tel,
	}

	srv := handler.New(es)
	srv.AddTransport(transport.Options{})
	srv.AddTransport(transport.GET{})
	srv.AddTransport(transport.POST{})
	if opts.Introspection {
		srv.Use(extension.Introspection{})
	}
	srv.Use(extension.FixedComplexityLimit(opts.ComplexityLimit))
	srv.SetErrorPresenter(ErrorPresenter(opts.Production, log))
	srv.SetRecoverFunc(RecoverFunc(log))
	srv.AroundOperations(s.aroundOperation)
	s.handler = srv

	if opts.Playground {
		s.playground = playground.Handler("GraphQL Playground", opts.Endpoint)
	}
	return s, nil
}

// Ready reports whether the schema and resolvers are in place.
func (s *Server) Ready() error {
	if s.schema == nil || s.schema.Schema() == nil {
		return errors.New("graphql schema not loaded")
	}
	if s.resolver == nil || s.resolver.Users == nil || s.resolver.Notifications == nil {
		return errors.New("graphql resolvers not configured")
	}
	return nil
}

func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if s.started {
		return nil
	}
	s.started = true
	s.logger.Info("GraphQL server started",
		"endpoint", s.options.Endpoint,
		"playground", s.options.Playground,
		"introspection", s.options.Introspection,
	)
	return nil
}

// Stop rejects new operations and waits for running ones until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		s.logger.Info("GraphQL server stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("graphql server drain interrupted: %w", ctx.Err())
	}
}

func (s *Server) Handler() http.Handler {
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.acquire() {
		writeUnavailable(w)
		return
	}
	defer s.inflight.Done()

	if s.playground != nil && wantsPlayground(r) {
		s.playground(w, r)
		return
	}
	s.handler.ServeHTTP(w, r)
}

func (s *Server) acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.stopped {
		return false
	}
	s.inflight.Add(1)
	return true
}

func wantsPlayground(r *http.Request) bool {
	return r.Method == http.MethodGet &&
		r.URL.Query().Get("query") == "" &&
		strings.Contains(r.Header.Get("Accept"), "text/html")
}

func writeUnavailable(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusServiceUnavailable)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"errors": []map[string]interface{}{{
			"message":    "GraphQL server is not accepting requests",
			"extensions": map[string]interface{}{"code": "SERVICE_UNAVAILABLE"},
		}},
	})
}

func (s *Server) aroundOperation(ctx context.Context, next graphql.OperationHandler) graphql.ResponseHandler {
	rc := graphql.GetOperationContext(ctx)
	name := rc.OperationName
	if name == "" {
		name = "anonymous"
	}
	opType := string(rc.Operation.Operation)
	start := time.Now()

	ctx, span := s.telemetry.StartSpan(ctx, "graphql."+opType,
		trace.WithAttributes(
			telemetry.OperationAttribute(name),
			telemetry.OperationTypeAttribute(opType),
		),
	)
	if userID := auth.UserIDFrom(ctx); userID != "" {
		span.SetAttributes(telemetry.UserIDAttribute(userID))
	}

	responses := next(ctx)
	var once sync.Once
	return func(ctx context.Context) *graphql.Response {
		resp := responses(ctx)
		once.Do(func() {
			elapsed := time.Since(start)
			failed := resp != nil && len(resp.Errors) > 0
			if failed {
				span.SetStatus(codes.Error, resp.Errors.Error())
			}
			span.End()

			if s.metrics != nil {
				s.metrics.ObserveOperation(name, opType, failed, elapsed)
			}
			s.logger.Debug("GraphQL operation",
				"operation", name,
				"type", opType,
				"duration", elapsed,
				"failed", failed,
			)
		})
		return resp
	}
}
