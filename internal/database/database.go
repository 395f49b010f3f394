// package database provides connection management for postgresql and sqlite.
package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/blockedby/chanscope/internal/migrator"
	"github.com/blockedby/chanscope/internal/models"
	"github.com/blockedby/chanscope/migrations"
)

// DB wraps the GORM instance and, for postgresql, the pgx pool behind it.
type DB struct {
	Pool *pgxpool.Pool
	GORM *gorm.DB
	URL  string
}

// IsPostgres reports whether url addresses a postgresql server.
func IsPostgres(url string) bool {
	return strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://")
}

// New opens a database. postgres:// urls go through pgxpool; anything else
// is treated as a sqlite file path (or ":memory:").
func New(ctx context.Context, databaseURL string) (*DB, error) {
	if IsPostgres(databaseURL) {
		return newPostgres(ctx, databaseURL)
	}
	return NewSQLite(databaseURL)
}

func newPostgres(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// gorm shares the pool instead of opening a second set of connections
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: stdlib.OpenDBFromPool(pool)}), gormConfig())
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("open gorm: %w", err)
	}

	return &DB{Pool: pool, GORM: gormDB, URL: databaseURL}, nil
}

// NewSQLite opens a sqlite database at path with a single connection, which
// matches the single-writer model of the refresh run.
func NewSQLite(path string) (*DB, error) {
	dsn := path
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create database dir: %w", err)
			}
		}
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	gormDB, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	return &DB{GORM: gormDB, URL: path}, nil
}

// Migrate brings the schema up to date. postgresql runs the embedded SQL
// migrations; sqlite uses gorm's AutoMigrate, which only adds tables and
// columns.
func (db *DB) Migrate(ctx context.Context) error {
	if db.Pool != nil {
		m, err := migrator.NewWithFS(migrations.FS)
		if err != nil {
			return err
		}
		return m.Up(ctx, db.URL)
	}
	if err := db.GORM.WithContext(ctx).AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// Close closes the underlying connections.
func (db *DB) Close() {
	if sqlDB, err := db.GORM.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// Ping checks if the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	if db.Pool != nil {
		return db.Pool.Ping(ctx)
	}
	sqlDB, err := db.GORM.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func gormConfig() *gorm.Config {
	return &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)}
}
