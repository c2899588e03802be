package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/notifly-go/pkg/auth"
	"github.com/notifly-go/pkg/config"
	"github.com/notifly-go/pkg/database"
	"github.com/notifly-go/pkg/logger"
	"github.com/notifly-go/pkg/metrics"
	"github.com/notifly-go/pkg/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeGraph struct {
	mu       sync.Mutex
	startErr error
	starts   int
	stops    int
	handler  http.Handler
}

func (f *fakeGraph) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	return f.startErr
}

func (f *fakeGraph) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeGraph) Handler() http.Handler {
	if f.handler != nil {
		return f.handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"hello":"hi"}}`))
	})
}

func (f *fakeGraph) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

func testConfig(port int) *config.Config {
	return &config.Config{
		Environment: config.EnvTest,
		Server: config.ServerConfig{
			Host:            "127.0.0.1",
			Port:            port,
			ShutdownTimeout: time.Second,
			BodyLimit:       1 << 20,
			CORSOrigin:      "*",
		},
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func startServer(t *testing.T, cfg *config.Config, graph *fakeGraph, opts Options) *Server {
	t.Helper()
	s := New(cfg, logger.NewNop(), graph, opts)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _, _ = s.Stop(context.Background()) })
	return s
}

func url(s *Server, path string) string {
	return "http://" + s.Addr().String() + path
}

func getJSON(t *testing.T, method, target string) (int, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(method, target, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]interface{}
	if resp.ContentLength != 0 {
		_ = json.NewDecoder(resp.Body).Decode(&body)
	}
	return resp.StatusCode, body
}

func TestServer_ListeningBetweenStartAndStop(t *testing.T) {
	graph := &fakeGraph{}
	s := New(testConfig(0), logger.NewNop(), graph, Options{})
	assert.False(t, s.Info().IsListening)

	require.NoError(t, s.Start(context.Background()))
	info := s.Info()
	assert.True(t, info.IsListening)
	assert.False(t, info.IsShuttingDown)
	assert.Equal(t, "listening", info.State)
	assert.NotZero(t, info.Port)
	assert.Equal(t, os.Getpid(), info.PID)
	require.NotNil(t, info.StartedAt)

	status, body := getJSON(t, http.MethodGet, url(s, "/health"))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, true, body["isListening"])
	assert.EqualValues(t, info.Port, body["port"])
	assert.Contains(t, body["memory"], "heapUsed")

	result, err := s.Stop(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Skipped)
	assert.False(t, result.Forced)
	assert.False(t, s.Info().IsListening)
	assert.Equal(t, StateStopped, s.State())
	assert.Equal(t, 1, graph.stopCount())

	assert.ErrorIs(t, s.Start(context.Background()), ErrInvalidState)
}

func TestServer_ConcurrentStopTearsDownOnce(t *testing.T) {
	graph := &fakeGraph{}
	s := New(testConfig(0), logger.NewNop(), graph, Options{})
	require.NoError(t, s.Start(context.Background()))

	var wg sync.WaitGroup
	results := make(chan ShutdownResult, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := s.Stop(context.Background())
			assert.NoError(t, err)
			results <- result
		}()
	}
	wg.Wait()
	close(results)

	performed := 0
	for r := range results {
		if !r.Skipped {
			performed++
		}
	}
	assert.Equal(t, 1, performed)
	assert.Equal(t, 1, graph.stopCount())
	assert.Equal(t, StateStopped, s.State())
}

func TestServer_GraphStartFailureNeverBinds(t *testing.T) {
	port := freePort(t)
	graph := &fakeGraph{startErr: errors.New("schema broken")}
	s := New(testConfig(port), logger.NewNop(), graph, Options{})

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema broken")
	assert.Nil(t, s.Addr())
	assert.Equal(t, StateStopped, s.State())

	ln, err := net.Listen("tcp", s.config.Addr())
	require.NoError(t, err, "port must not be held after a failed start")
	_ = ln.Close()
}

func TestServer_PortInUse(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer occupied.Close()

	graph := &fakeGraph{}
	s := New(testConfig(occupied.Addr().(*net.TCPAddr).Port), logger.NewNop(), graph, Options{})

	err = s.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPortInUse)

	var bindErr *BindError
	require.True(t, errors.As(err, &bindErr))
	assert.Equal(t, s.config.Addr(), bindErr.Addr)
	assert.Equal(t, 1, graph.stopCount(), "started sub-server is stopped again")
	assert.Equal(t, StateStopped, s.State())
}

func TestClassifyBindError(t *testing.T) {
	denied := &net.OpError{Op: "listen", Net: "tcp", Err: os.NewSyscallError("bind", syscall.EACCES)}
	assert.ErrorIs(t, classifyBindError(":80", denied), ErrPermissionDenied)

	other := classifyBindError(":80", errors.New("boom"))
	assert.Nil(t, other.Kind)
	assert.False(t, errors.Is(other, ErrPortInUse))
	assert.Equal(t, "failed to bind :80: boom", other.Error())
}

func TestServer_StopBeforeStart(t *testing.T) {
	s := New(testConfig(0), logger.NewNop(), &fakeGraph{}, Options{})

	result, err := s.Stop(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Equal(t, StateStopped, s.State())
	assert.ErrorIs(t, s.Start(context.Background()), ErrInvalidState)
}

func TestServer_Routes(t *testing.T) {
	s := startServer(t, testConfig(0), &fakeGraph{}, Options{})

	status, body := getJSON(t, http.MethodGet, url(s, "/"))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "running", body["status"])
	assert.Equal(t, config.Version, body["version"])
	assert.Equal(t, "/graphql", body["endpoints"].(map[string]interface{})["graphql"])

	status, _ = getJSON(t, http.MethodGet, url(s, "/health"))
	assert.Equal(t, http.StatusOK, status)

	status, body = getJSON(t, http.MethodPost, url(s, "/graphql"))
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "data")

	req, err := http.NewRequest(http.MethodOptions, url(s, "/graphql"), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	status, body = getJSON(t, http.MethodGet, url(s, "/missing"))
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Not Found", body["error"])
	assert.Equal(t, "/missing", body["path"])
	assert.Equal(t, "GET", body["method"])
	assert.NotEmpty(t, body["availableEndpoints"])

	status, _ = getJSON(t, http.MethodDelete, url(s, "/"))
	assert.Equal(t, http.StatusNotFound, status)
}

func TestServer_StopBoundedByWatchdog(t *testing.T) {
	entered := make(chan struct{})
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })

	graph := &fakeGraph{handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-block
	})}
	cfg := testConfig(0)
	cfg.Server.ShutdownTimeout = 100 * time.Millisecond
	s := New(cfg, logger.NewNop(), graph, Options{})
	require.NoError(t, s.Start(context.Background()))

	go func() {
		resp, err := http.Post(url(s, "/graphql"), "application/json", strings.NewReader(`{}`))
		if err == nil {
			resp.Body.Close()
		}
	}()
	<-entered

	start := time.Now()
	result, err := s.Stop(context.Background())
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.True(t, result.Forced)
	assert.Less(t, elapsed, 100*time.Millisecond+time.Second)
	assert.Equal(t, StateStopped, s.State())
}

func TestServer_MetricsEndpoint(t *testing.T) {
	cfg := testConfig(0)
	cfg.Features.Metrics = true
	s := startServer(t, cfg, &fakeGraph{}, Options{Metrics: metrics.New("notifly_test")})

	status, _ := getJSON(t, http.MethodGet, url(s, "/health"))
	require.Equal(t, http.StatusOK, status)

	resp, err := http.Get(url(s, "/metrics"))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "notifly_test_http_requests_total")
}

func TestServer_RateLimit(t *testing.T) {
	limiter := ratelimit.NewTokenBucketLimiter(1, time.Minute)
	s := startServer(t, testConfig(0), &fakeGraph{}, Options{Limiter: limiter})

	status, _ := getJSON(t, http.MethodPost, url(s, "/graphql"))
	assert.Equal(t, http.StatusOK, status)

	status, body := getJSON(t, http.MethodPost, url(s, "/graphql"))
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "Too Many Requests", body["error"])

	for _, path := range []string{"/health", "/", "/health"} {
		status, _ = getJSON(t, http.MethodGet, url(s, path))
		assert.Equal(t, http.StatusOK, status, path)
	}
}

func TestServer_SessionAndAuthentication(t *testing.T) {
	sessions := auth.NewSessionManager("0123456789abcdef0123456789abcdef", time.Hour, false)
	tokens := auth.NewManager("abcdef0123456789abcdef0123456789", "", time.Hour)

	graph := &fakeGraph{handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s := auth.SessionFrom(r.Context()); s != nil && r.URL.Query().Get("login") != "" {
			s.SetUser("u1")
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"userId": auth.UserIDFrom(r.Context())})
	})}
	s := startServer(t, testConfig(0), graph, Options{Sessions: sessions, Tokens: tokens})

	resp, err := http.Post(url(s, "/graphql?login=1"), "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == auth.SessionCookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie, "login must set the session cookie")

	req, err := http.NewRequest(http.MethodPost, url(s, "/graphql"), nil)
	require.NoError(t, err)
	req.AddCookie(cookie)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	assert.Equal(t, "u1", body["userId"])

	token, _, err := tokens.GenerateToken("u2", "u2@example.com")
	require.NoError(t, err)
	req, err = http.NewRequest(http.MethodPost, url(s, "/graphql"), nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	assert.Equal(t, "u2", body["userId"])

	req, err = http.NewRequest(http.MethodPost, url(s, "/graphql"), nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer nope")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

type staticStatus database.Status

func (s staticStatus) Status() database.Status { return database.Status(s) }

func TestServer_HealthReportsDatabase(t *testing.T) {
	status := staticStatus{Up: false, CheckedAt: time.Now(), Error: "connection refused"}
	s := startServer(t, testConfig(0), &fakeGraph{}, Options{Database: status})

	code, body := getJSON(t, http.MethodGet, url(s, "/health"))
	assert.Equal(t, http.StatusOK, code)
	require.Contains(t, body, "database")
	db := body["database"].(map[string]interface{})
	assert.Equal(t, false, db["up"])
	assert.Equal(t, "connection refused", db["error"])
}
