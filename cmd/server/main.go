package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ses"
	"github.com/gin-gonic/gin"
	"github.com/notifly-go/internal/app"
	"github.com/notifly-go/internal/domain/notification"
	"github.com/notifly-go/internal/domain/user"
	"github.com/notifly-go/internal/graph"
	notificationrepo "github.com/notifly-go/internal/notification/adapters/db/repository"
	"github.com/notifly-go/internal/notification/adapters/email"
	notificationservice "github.com/notifly-go/internal/notification/app/service"
	notificationports "github.com/notifly-go/internal/notification/ports"
	"github.com/notifly-go/internal/server"
	userrepo "github.com/notifly-go/internal/user/adapters/db/repository"
	userservice "github.com/notifly-go/internal/user/app/service"
	userports "github.com/notifly-go/internal/user/ports"
	"github.com/notifly-go/pkg/auth"
	"github.com/notifly-go/pkg/cache"
	"github.com/notifly-go/pkg/config"
	"github.com/notifly-go/pkg/database"
	"github.com/notifly-go/pkg/events"
	"github.com/notifly-go/pkg/logger"
	"github.com/notifly-go/pkg/metrics"
	"github.com/notifly-go/pkg/ratelimit"
	"github.com/notifly-go/pkg/scheduler"
	"github.com/notifly-go/pkg/telemetry"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logger.ToLoggerConfig())
	defer func() { _ = log.Sync() }()

	switch cfg.Environment {
	case config.EnvProduction:
		gin.SetMode(gin.ReleaseMode)
	case config.EnvTest:
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	application, err := build(cfg, log)
	if err != nil {
		log.Fatal("Failed to construct application", "error", err)
	}
	defer application.RecoverAndShutdown()

	// Registered before startup so a signal during connect or bind still tears down.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	application.Run(context.Background(), quit)
}

func build(cfg *config.Config, log logger.Logger) (*app.App, error) {
	var closers []app.Option

	db := database.New(database.Config{
		URL:          cfg.Database.URL,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		LogQueries:   cfg.Database.LogQueries,
	}, log, database.WithModels(&user.User{}, &notification.Notification{}))

	var users userports.UserRepository = userrepo.NewUserRepository(db)
	var limiter ratelimit.RateLimiter = ratelimit.NewTokenBucketLimiter(cfg.RateLimit.MaxRequests, cfg.RateLimitWindow())
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		users = userrepo.NewCachedUserRepository(users, cache.NewRedisCache(client, nil))
		limiter = ratelimit.NewRedisRateLimiter(client, cfg.RateLimit.MaxRequests, cfg.RateLimitWindow())
		closers = append(closers, app.WithCloser("redis", func(context.Context) error { return client.Close() }))
		log.Info("Redis enabled for user cache and rate limiting")
	}

	var bus events.EventBus = events.NewLogEventBus(log)
	if len(cfg.Kafka.Brokers) > 0 {
		bus = events.NewKafkaEventBus(events.KafkaConfig{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic}, log)
		log.Info("Publishing events to Kafka", "topic", cfg.Kafka.Topic)
	}
	closers = append(closers, app.WithCloser("event bus", func(context.Context) error { return bus.Close() }))

	var sender notificationports.EmailSender = email.NewLogSender(cfg.Email.FromEmail, log)
	switch {
	case cfg.Email.SESRegion != "":
		sess, err := session.NewSession(&aws.Config{Region: aws.String(cfg.Email.SESRegion)})
		if err != nil {
			return nil, fmt.Errorf("failed to create AWS session: %w", err)
		}
		sender = email.NewSESSender(ses.New(sess), cfg.Email.FromEmail, cfg.Email.FromName, log)
		log.Info("Sending notification emails through SES", "region", cfg.Email.SESRegion)
	case cfg.Email.SMTPHost != "":
		sender = email.NewSMTPSender(email.Config{
			SMTPHost:     cfg.Email.SMTPHost,
			SMTPPort:     cfg.Email.SMTPPort,
			SMTPUsername: cfg.Email.SMTPUsername,
			SMTPPassword: cfg.Email.SMTPPassword,
			FromEmail:    cfg.Email.FromEmail,
			FromName:     cfg.Email.FromName,
		}, log)
	default:
		log.Warn("No mail transport configured, notification emails are only logged")
	}

	tel, err := telemetry.New(telemetry.Config{
		Enabled:      cfg.Telemetry.Enabled,
		JaegerURL:    cfg.Telemetry.JaegerURL,
		ServiceName:  cfg.Telemetry.ServiceName,
		Version:      config.Version,
		Environment:  cfg.Environment,
		SamplingRate: cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, err
	}
	closers = append(closers, app.WithCloser("telemetry", tel.Shutdown))

	tokens := auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.JWTExpiresIn)
	sessions := auth.NewSessionManager(cfg.Auth.SessionSecret, cfg.Auth.SessionMaxAge, cfg.IsProduction())
	m := metrics.New("notifly")

	resolver := &graph.Resolver{
		Users: userservice.NewUserService(users, tokens, bus, log),
		Notifications: notificationservice.NewNotificationService(
			notificationrepo.NewNotificationRepository(db),
			notificationrepo.NewUserExists(db),
			sender, bus, log,
		),
		Logger: log,
	}
	gql, err := graph.NewServer(resolver, graph.Options{
		Endpoint:      "/graphql",
		Production:    cfg.IsProduction(),
		Playground:    cfg.Features.Playground,
		Introspection: cfg.Features.Introspection,
	}, log, m, tel)
	if err != nil {
		return nil, fmt.Errorf("failed to build graphql server: %w", err)
	}

	srv := server.New(cfg, log, gql, server.Options{
		Sessions:  sessions,
		Tokens:    tokens,
		Limiter:   limiter,
		Metrics:   m,
		Telemetry: tel,
		Database:  db,
	})

	jobs := scheduler.New(log, 10*time.Second)
	if err := jobs.Add("database-heartbeat", "@every 30s", db.Heartbeat); err != nil {
		return nil, err
	}

	opts := append([]app.Option{app.WithReadiness(gql), app.WithBackground(jobs)}, closers...)
	return app.New(cfg, log, db, srv, opts...), nil
}
