package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/custodia-labs/sercha-extractor/internal/core/domain"
)

//go:embed schema.sql
var schema string

// DB is the extractor's pool over sync state, destination items and tasks.
type DB struct {
	*sql.DB
}

// Config controls the pool and the startup handshake.
type Config struct {
	URL string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// ConnectAttempts pings this many times before giving up; the database
	// container often comes up after the extractor.
	ConnectAttempts int
	RetryInterval   time.Duration

	// InitSchema creates the extractor tables once connected
	InitSchema bool
}

// DefaultConfig sizes the pool for one worker process. Advisory locks pin a
// connection each, so the pool leaves room above the push concurrency.
func DefaultConfig(url string) Config {
	return Config{
		URL:             url,
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: time.Minute,
		ConnectAttempts: 5,
		RetryInterval:   2 * time.Second,
		InitSchema:      true,
	}
}

func (c Config) validate() error {
	if c.URL == "" {
		return fmt.Errorf("%w: database url is required", domain.ErrInvalidInput)
	}
	if c.MaxOpenConns > 0 && c.MaxIdleConns > c.MaxOpenConns {
		return fmt.Errorf("%w: %d idle connections exceed the %d open limit", domain.ErrInvalidInput, c.MaxIdleConns, c.MaxOpenConns)
	}
	return nil
}

// Connect opens the pool, waits for the server and optionally lays down
// the schema.
func Connect(ctx context.Context, cfg Config) (*DB, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	db := &DB{DB: sqlDB}
	if err := db.waitReady(ctx, cfg.ConnectAttempts, cfg.RetryInterval); err != nil {
		sqlDB.Close()
		return nil, err
	}
	if cfg.InitSchema {
		if err := db.InitSchema(ctx); err != nil {
			sqlDB.Close()
			return nil, err
		}
	}
	return db, nil
}

func (db *DB) waitReady(ctx context.Context, attempts int, interval time.Duration) error {
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = db.PingContext(ctx); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("ping database: %w", errors.Join(err, ctx.Err()))
		case <-time.After(interval):
		}
	}
	return fmt.Errorf("ping database after %d attempts: %w", attempts, err)
}

// InitSchema creates the extractor tables. Every statement is IF NOT EXISTS.
func (db *DB) InitSchema(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}
	return nil
}

// Ping satisfies the health check contract
func (db *DB) Ping(ctx context.Context) error {
	return db.PingContext(ctx)
}

// Transaction runs fn in a transaction, committing only when fn returns
// nil. A panic in fn rolls back before it propagates.
func (db *DB) Transaction(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			err = fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
	}()
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
