package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/wajahat01/NeuroLab-360-sub000/pkg/config"
	"github.com/wajahat01/NeuroLab-360-sub000/pkg/errors"
)

// DB wraps the database connection with pooling, health checks, a prepared
// statement cache, and batch helpers used by the repositories.
type DB struct {
	*sqlx.DB
	config    *config.DatabaseConfig
	stmtCache map[string]*sqlx.Stmt
	stmtMutex sync.RWMutex
}

// New creates a new database connection with tuned pool settings.
func New(cfg *config.DatabaseConfig) (*DB, error) {
	if cfg == nil {
		return nil, errors.NewValidationError("database configuration is required")
	}

	// Keyword/value form keeps the DSN compatible with PgBouncer and Supabase poolers.
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=10",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode,
	)

	db, err := sqlx.Connect("postgres", connStr)
	if err != nil {
		return nil, errors.NewDatabaseError("connect", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.NewDatabaseError("ping", err)
	}

	return &DB{
		DB:        db,
		config:    cfg,
		stmtCache: make(map[string]*sqlx.Stmt),
	}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.DB != nil {
		return db.DB.Close()
	}
	return nil
}

// Health checks the database connection health.
func (db *DB) Health(ctx context.Context) error {
	if db.DB == nil {
		return errors.NewInternalError("database connection is nil")
	}

	if err := db.PingContext(ctx); err != nil {
		return errors.NewDatabaseError("health check", err)
	}

	return nil
}

// BeginTx starts a new transaction with the given options.
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	tx, err := db.DB.BeginTxx(ctx, opts)
	if err != nil {
		return nil, errors.NewDatabaseError("begin transaction", err)
	}
	return tx, nil
}

// WithTransaction executes fn inside a transaction, rolling back on error or panic.
func (db *DB) WithTransaction(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.NewDatabaseError("rollback transaction",
				fmt.Errorf("original error: %v, rollback error: %v", err, rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.NewDatabaseError("commit transaction", err)
	}

	return nil
}

// Stats returns database connection pool statistics.
func (db *DB) Stats() sql.DBStats {
	return db.DB.Stats()
}

// Config returns the database configuration.
func (db *DB) Config() *config.DatabaseConfig {
	return db.config
}

// PrepareStatement prepares and caches a SQL statement under name. The
// dashboard aggregations run the same queries on every request, so caching
// the plans is worth the bookkeeping.
func (db *DB) PrepareStatement(ctx context.Context, name, query string) (*sqlx.Stmt, error) {
	db.stmtMutex.RLock()
	if stmt, exists := db.stmtCache[name]; exists {
		db.stmtMutex.RUnlock()
		return stmt, nil
	}
	db.stmtMutex.RUnlock()

	db.stmtMutex.Lock()
	defer db.stmtMutex.Unlock()

	// Double-check after acquiring the write lock.
	if stmt, exists := db.stmtCache[name]; exists {
		return stmt, nil
	}

	stmt, err := db.PreparexContext(ctx, query)
	if err != nil {
		return nil, errors.NewDatabaseError("prepare statement", err)
	}

	db.stmtCache[name] = stmt
	return stmt, nil
}

// GetCachedStatement retrieves a cached prepared statement.
func (db *DB) GetCachedStatement(name string) (*sqlx.Stmt, bool) {
	db.stmtMutex.RLock()
	defer db.stmtMutex.RUnlock()
	stmt, exists := db.stmtCache[name]
	return stmt, exists
}

// ClearStatementCache closes and discards all cached prepared statements.
func (db *DB) ClearStatementCache() error {
	db.stmtMutex.Lock()
	defer db.stmtMutex.Unlock()

	var errs []error
	for name, stmt := range db.stmtCache {
		if err := stmt.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close statement %s: %w", name, err))
		}
	}

	db.stmtCache = make(map[string]*sqlx.Stmt)

	if len(errs) > 0 {
		return errors.NewDatabaseError("clear statement cache", fmt.Errorf("%v", errs))
	}

	return nil
}

// QueryWithTimeout executes a query bounded by timeout.
func (db *DB) QueryWithTimeout(ctx context.Context, timeout time.Duration, query string, args ...interface{}) (*sqlx.Rows, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rows, err := db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewDatabaseError("query", err)
	}

	return rows, nil
}

// ExecWithTimeout executes a statement bounded by timeout.
func (db *DB) ExecWithTimeout(ctx context.Context, timeout time.Duration, query string, args ...interface{}) (sql.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewDatabaseError("exec", err)
	}

	return result, nil
}

// BatchInsert inserts values into table in multi-row INSERT statements of at
// most batchSize rows each. Used for bulk result ingestion and seeding.
func (db *DB) BatchInsert(ctx context.Context, table string, columns []string, values [][]interface{}, batchSize int) error {
	if len(values) == 0 {
		return nil
	}

	if batchSize <= 0 {
		batchSize = 1000
	}

	for i := 0; i < len(values); i += batchSize {
		end := i + batchSize
		if end > len(values) {
			end = len(values)
		}

		if err := db.executeBatch(ctx, table, columns, values[i:end]); err != nil {
			return err
		}
	}

	return nil
}

func (db *DB) executeBatch(ctx context.Context, table string, columns []string, batch [][]interface{}) error {
	if len(batch) == 0 {
		return nil
	}

	valueStrings := make([]string, len(batch))
	args := make([]interface{}, 0, len(batch)*len(columns))

	for i, row := range batch {
		placeholders := make([]string, len(columns))
		for j := range columns {
			placeholders[j] = fmt.Sprintf("$%d", len(args)+j+1)
		}
		valueStrings[i] = "(" + strings.Join(placeholders, ", ") + ")"
		args = append(args, row...)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		table,
		strings.Join(columns, ", "),
		strings.Join(valueStrings, ", "),
	)

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return errors.NewDatabaseError("batch insert", err)
	}

	return nil
}
