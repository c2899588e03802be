package config

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/notifly-go/pkg/logger"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// Version is reported by the status endpoint. Overridden at build time with -ldflags.
var Version = "1.0.0"

type Config struct {
	Environment string          `mapstructure:"environment" env:"NODE_ENV" validate:"oneof=development production test"`
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Auth        AuthConfig      `mapstructure:"auth"`
	Email       EmailConfig     `mapstructure:"email"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
	Redis       RedisConfig     `mapstructure:"redis"`
	Kafka       KafkaConfig     `mapstructure:"kafka"`
	Features    FeatureConfig   `mapstructure:"features"`
	Telemetry   TelemetryConfig `mapstructure:"telemetry"`
	Logger      LoggerConfig    `mapstructure:"logger"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port" env:"PORT" validate:"min=0,max=65535"`
	Host            string        `mapstructure:"host" env:"HOST"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" validate:"gt=0"`
	BodyLimit       int64         `mapstructure:"body_limit" env:"BODY_LIMIT" validate:"gt=0"`
	TrustProxy      bool          `mapstructure:"trust_proxy" env:"TRUST_PROXY"`
	CORSOrigin      string        `mapstructure:"cors_origin" env:"CORS_ORIGIN"`
}

type DatabaseConfig struct {
	URL          string `mapstructure:"url" env:"DATABASE_URL" validate:"required,url"`
	MaxOpenConns int    `mapstructure:"max_open_conns" env:"DB_MAX_OPEN_CONNS" validate:"min=1"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" env:"DB_MAX_IDLE_CONNS" validate:"min=0"`
	LogQueries   bool   `mapstructure:"log_queries" env:"DB_LOG_QUERIES"`
}

type AuthConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret" env:"JWT_SECRET" validate:"required,min=32"`
	JWTExpiresIn  time.Duration `mapstructure:"jwt_expires_in" env:"JWT_EXPIRES_IN" validate:"gt=0"`
	JWTIssuer     string        `mapstructure:"jwt_issuer" env:"JWT_ISSUER"`
	SessionSecret string        `mapstructure:"session_secret" env:"SESSION_SECRET" validate:"required,min=32"`
	SessionMaxAge time.Duration `mapstructure:"session_max_age" env:"SESSION_MAX_AGE" validate:"gt=0"`
}

type EmailConfig struct {
	FromEmail    string `mapstructure:"from_email" env:"FROM_EMAIL" validate:"required,email"`
	FromName     string `mapstructure:"from_name" env:"FROM_NAME"`
	SMTPHost     string `mapstructure:"smtp_host" env:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"smtp_port" env:"SMTP_PORT" validate:"min=0,max=65535"`
	SMTPUsername string `mapstructure:"smtp_username" env:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"smtp_password" env:"SMTP_PASSWORD"`
	// SESRegion selects Amazon SES over SMTP when set.
	SESRegion string `mapstructure:"ses_region" env:"AWS_SES_REGION"`
}

type RateLimitConfig struct {
	WindowMS    int `mapstructure:"window_ms" env:"RATE_LIMIT_WINDOW_MS" validate:"gt=0"`
	MaxRequests int `mapstructure:"max_requests" env:"RATE_LIMIT_MAX_REQUESTS" validate:"gt=0"`
}

type RedisConfig struct {
	URL string `mapstructure:"url" env:"REDIS_URL" validate:"omitempty,url"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers" env:"KAFKA_BROKERS"`
	Topic   string   `mapstructure:"topic" env:"KAFKA_TOPIC"`
}

type FeatureConfig struct {
	Playground    bool `mapstructure:"playground" env:"ENABLE_PLAYGROUND"`
	Introspection bool `mapstructure:"introspection" env:"ENABLE_INTROSPECTION"`
	Metrics       bool `mapstructure:"metrics" env:"ENABLE_METRICS"`
}

type TelemetryConfig struct {
	Enabled      bool    `mapstructure:"enabled" env:"ENABLE_TRACING"`
	JaegerURL    string  `mapstructure:"jaeger_url" env:"JAEGER_URL" validate:"required_if=Enabled true,omitempty,url"`
	ServiceName  string  `mapstructure:"service_name" env:"SERVICE_NAME"`
	SamplingRate float64 `mapstructure:"sampling_rate" env:"TRACING_SAMPLE_RATE" validate:"min=0,max=1"`
}

type LoggerConfig struct {
	Level  string `mapstructure:"level" env:"LOG_LEVEL" validate:"omitempty,oneof=debug info warn error"`
	Format string `mapstructure:"format" env:"LOG_FORMAT" validate:"omitempty,oneof=json console"`
	Output string `mapstructure:"output" env:"LOG_OUTPUT"`
}

// ValidationError lists every invalid setting, keyed by environment variable name.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// Load reads settings from the environment (and an optional configs/notifly.yaml),
// applies defaults and validates the result.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("notifly")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/notifly")

	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Explorer features default to on outside production unless set explicitly.
	if !v.IsSet("features.playground") {
		cfg.Features.Playground = cfg.Environment != EnvProduction
	}
	if !v.IsSet("features.introspection") {
		cfg.Features.Introspection = cfg.Environment != EnvProduction
	}
	if cfg.Logger.Format == "" {
		cfg.Logger.Format = "json"
		if cfg.Environment == EnvDevelopment {
			cfg.Logger.Format = "console"
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", EnvDevelopment)

	v.SetDefault("server.port", 4000)
	v.SetDefault("server.host", "")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.body_limit", 1<<20)
	v.SetDefault("server.trust_proxy", false)
	v.SetDefault("server.cors_origin", "*")

	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.log_queries", false)

	v.SetDefault("auth.jwt_expires_in", 24*time.Hour)
	v.SetDefault("auth.jwt_issuer", "notifly")
	v.SetDefault("auth.session_max_age", 24*time.Hour)

	v.SetDefault("email.from_name", "Notifly")
	v.SetDefault("email.smtp_port", 587)

	v.SetDefault("rate_limit.window_ms", 15*60*1000)
	v.SetDefault("rate_limit.max_requests", 100)

	v.SetDefault("kafka.topic", "notifly.events")

	v.SetDefault("features.metrics", false)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "notifly")
	v.SetDefault("telemetry.sampling_rate", 1.0)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output", "stdout")
}

// bindEnv binds every leaf key to the env var named in its `env` tag.
func bindEnv(v *viper.Viper) error {
	bindings := map[string][]string{}
	collectEnvBindings(reflect.TypeOf(Config{}), "", bindings)
	// APP_ENV takes precedence over NODE_ENV when both are set.
	bindings["environment"] = []string{"APP_ENV", "NODE_ENV"}

	keys := make([]string, 0, len(bindings))
	for k := range bindings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		args := append([]string{key}, bindings[key]...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}
	return nil
}

func collectEnvBindings(t reflect.Type, prefix string, out map[string][]string) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		key := f.Tag.Get("mapstructure")
		if prefix != "" {
			key = prefix + "." + key
		}
		if f.Type.Kind() == reflect.Struct && f.Type != reflect.TypeOf(time.Duration(0)) {
			collectEnvBindings(f.Type, key, out)
			continue
		}
		if env := f.Tag.Get("env"); env != "" {
			out[key] = []string{env}
		}
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if env := f.Tag.Get("env"); env != "" {
			return env
		}
		return f.Name
	})
	return v
}

// Validate checks the settings against the configuration schema.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		if c.Server.Port == 0 && c.Environment != EnvTest {
			return &ValidationError{Problems: []string{"PORT: must be between 1 and 65535"}}
		}
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("failed to validate config: %w", err)
	}

	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		problems = append(problems, fmt.Sprintf("%s: %s", fe.Field(), describe(fe)))
	}
	return &ValidationError{Problems: problems}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "is required"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		return fmt.Sprintf("must be >= %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be <= %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be > %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "url":
		return "must be a valid URL"
	case "email":
		return "must be a valid email address"
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}

func (c *Config) IsProduction() bool  { return c.Environment == EnvProduction }
func (c *Config) IsDevelopment() bool { return c.Environment == EnvDevelopment }

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimit.WindowMS) * time.Millisecond
}

func (c LoggerConfig) ToLoggerConfig() logger.Config {
	return logger.Config{
		Level:     c.Level,
		Format:    c.Format,
		Output:    c.Output,
		AddCaller: true,
	}
}
