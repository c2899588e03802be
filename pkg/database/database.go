package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/notifly-go/pkg/logger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var (
	ErrNotConnected = errors.New("database: not connected")
	ErrClosed       = errors.New("database: closed")
)

// DB is the process-wide connection pool. The embedded *gorm.DB is nil until Connect succeeds.
type DB struct {
	*gorm.DB

	cfg       Config
	log       logger.Logger
	dialector gorm.Dialector
	models    []interface{}

	mu     sync.Mutex
	closed bool

	statusMu sync.RWMutex
	status   Status
}

type Config struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	LogQueries      bool
}

// SyncOptions mirrors the ORM sync contract. Alter adds missing columns and indexes;
// Force drops and recreates every registered table.
type SyncOptions struct {
	Alter bool
	Force bool
}

type Option func(*DB)

// WithDialector replaces the postgres dialector, e.g. with sqlite in tests.
func WithDialector(d gorm.Dialector) Option {
	return func(db *DB) { db.dialector = d }
}

// WithModels registers the models handled by Sync.
func WithModels(models ...interface{}) Option {
	return func(db *DB) { db.models = append(db.models, models...) }
}

func New(cfg Config, log logger.Logger, opts ...Option) *DB {
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = time.Hour
	}
	db := &DB{cfg: cfg, log: log}
	for _, opt := range opts {
		opt(db)
	}
	if db.dialector == nil {
		db.dialector = postgres.Open(cfg.URL)
	}
	return db
}

// Connect opens the pool and verifies it with a ping. Calling it again while connected is a no-op.
func (db *DB) Connect(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return ErrClosed
	}
	if db.DB != nil {
		return nil
	}

	gormDB, err := gorm.Open(db.dialector, &gorm.Config{
		Logger: NewGormLogger(db.log, db.cfg.LogQueries),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		TranslateError: true,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	if db.cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(db.cfg.MaxOpenConns)
	}
	if db.cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(db.cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(db.cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	db.DB = gormDB
	db.log.Info("Database connection established")
	return nil
}

// Sync brings the schema of the registered models up to date. Without Alter or Force
// it only creates tables that do not exist yet.
func (db *DB) Sync(ctx context.Context, opts SyncOptions) error {
	if db.DB == nil {
		return ErrNotConnected
	}
	migrator := db.WithContext(ctx).Migrator()

	switch {
	case opts.Force:
		db.log.Warn("Dropping and recreating tables", "tables", len(db.models))
		for i := len(db.models) - 1; i >= 0; i-- {
			if err := migrator.DropTable(db.models[i]); err != nil {
				return fmt.Errorf("failed to drop table: %w", err)
			}
		}
		if err := migrator.AutoMigrate(db.models...); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
	case opts.Alter:
		if err := migrator.AutoMigrate(db.models...); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
	default:
		for _, model := range db.models {
			if migrator.HasTable(model) {
				continue
			}
			if err := migrator.CreateTable(model); err != nil {
				return fmt.Errorf("failed to create table: %w", err)
			}
		}
	}

	db.log.Info("Database models synchronized", "alter", opts.Alter, "force", opts.Force)
	return nil
}

// Ping reports whether the pool can still reach the server.
func (db *DB) Ping(ctx context.Context) error {
	if db.DB == nil {
		return ErrNotConnected
	}
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the pool. Only the first call closes; later calls return nil.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return nil
	}
	db.closed = true

	if db.DB == nil {
		return nil
	}
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	if db.log != nil {
		db.log.Info("Database connection closed")
	}
	return nil
}

func (db *DB) Transaction(ctx context.Context, fn func(*gorm.DB) error) error {
	return db.WithContext(ctx).Transaction(fn)
}

func (db *DB) WithContext(ctx context.Context) *gorm.DB {
	return db.DB.WithContext(ctx)
}
