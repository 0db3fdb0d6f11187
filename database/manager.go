package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/go-playground/validator/v10"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"
)

var validate = validator.New()

// Config holds the configuration for the database manager.
type Config struct {
	// Driver selects the store: duckdb, postgres or sqlite.
	Driver string `validate:"oneof=duckdb postgres sqlite"`
	// DSN is the database path (duckdb, sqlite) or connection string (postgres).
	// An empty path opens an in-memory database for duckdb and sqlite.
	DSN               string
	Threads           int    `validate:"min=1"`
	AccessMode        string `validate:"oneof=read_only read_write"`
	MemoryLimit       string
	EnableObjectCache bool
	TempDirectory     string
	// MaxOpenConns bounds the pool for postgres and sqlite. DuckDB sizes its
	// pool from Threads.
	MaxOpenConns int           `validate:"min=0"`
	QueryTimeout time.Duration `validate:"gt=0"`
	Logger       *zap.Logger   `validate:"-"`
}

// WithDefaults returns a copy of the config with zero values filled in.
func (c Config) WithDefaults() Config {
	if c.Driver == "" {
		c.Driver = "duckdb"
	}
	if c.Threads == 0 {
		c.Threads = 4
	}
	if c.AccessMode == "" {
		c.AccessMode = "read_write"
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 10
	}
	if c.QueryTimeout == 0 {
		c.QueryTimeout = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Validate checks the config against its struct tags.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid %s %v: failed %q constraint", strings.ToLower(fe.Field()), fe.Value(), fe.Tag())
		}
		return err
	}
	if c.Driver == "postgres" && c.DSN == "" {
		return fmt.Errorf("dsn is required for the postgres driver")
	}
	return nil
}

// ColumnInfo is a column as reported by the store's catalog.
type ColumnInfo struct {
	Name     string
	DataType string
	Nullable bool
}

// Manager owns the connection pool of the shop database.
type Manager struct {
	db           *sql.DB
	dialect      Dialect
	tableSchemas sync.Map // map[string][]ColumnInfo
	queryTimeout time.Duration
	logger       *zap.Logger
}

// NewManager opens the configured store and prepares its connection pool.
func NewManager(cfg Config) (*Manager, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dialect, err := DialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}

	dsn := buildDSN(cfg)
	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
	}

	maxOpen, maxIdle := poolSize(cfg)
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	if cfg.Driver == "sqlite" && isInMemory(cfg) {
		// Recycling the only connection would drop the database.
		db.SetConnMaxLifetime(0)
	} else {
		db.SetConnMaxLifetime(time.Hour)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.QueryTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", cfg.Driver, err)
	}

	mgr := &Manager{
		db:           db,
		dialect:      dialect,
		queryTimeout: cfg.QueryTimeout,
		logger:       cfg.Logger,
	}

	mgr.logger.Info("Shop database connected",
		zap.String("driver", cfg.Driver),
		zap.Bool("in_memory", isInMemory(cfg)),
		zap.Int("max_open_conns", maxOpen),
		zap.Int("max_idle_conns", maxIdle),
	)

	mgr.warmConnections()

	return mgr, nil
}

// NewManagerWithDB wraps an already opened pool. Tests use it with sqlmock.
func NewManagerWithDB(db *sql.DB, dialect Dialect, queryTimeout time.Duration, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		db:           db,
		dialect:      dialect,
		queryTimeout: queryTimeout,
		logger:       logger,
	}
}

func buildDSN(cfg Config) string {
	switch cfg.Driver {
	case "duckdb":
		dsn := cfg.DSN
		if dsn == ":memory:" {
			dsn = ""
		}
		dsn = fmt.Sprintf("%s?threads=%d&access_mode=%s", dsn, cfg.Threads, cfg.AccessMode)
		if cfg.MemoryLimit != "" {
			dsn = fmt.Sprintf("%s&memory_limit=%s", dsn, cfg.MemoryLimit)
		}
		if cfg.EnableObjectCache {
			dsn = fmt.Sprintf("%s&enable_object_cache=true", dsn)
		}
		if cfg.TempDirectory != "" {
			dsn = fmt.Sprintf("%s&temp_directory=%s", dsn, cfg.TempDirectory)
		}
		return dsn
	case "sqlite":
		if cfg.DSN == "" {
			return ":memory:"
		}
		if cfg.AccessMode == "read_only" && !strings.Contains(cfg.DSN, "mode=") {
			sep := "?"
			if strings.Contains(cfg.DSN, "?") {
				sep = "&"
			}
			return cfg.DSN + sep + "mode=ro"
		}
		return cfg.DSN
	default:
		return cfg.DSN
	}
}

func poolSize(cfg Config) (maxOpen, maxIdle int) {
	switch {
	case cfg.Driver == "duckdb":
		// DuckDB handles concurrent readers inside one process.
		return cfg.Threads * 2, cfg.Threads
	case cfg.Driver == "sqlite" && isInMemory(cfg):
		// Every sqlite connection to :memory: is a separate database.
		return 1, 1
	default:
		return cfg.MaxOpenConns, cfg.MaxOpenConns / 2
	}
}

func isInMemory(cfg Config) bool {
	return cfg.Driver != "postgres" && (cfg.DSN == "" || cfg.DSN == ":memory:")
}

// DB returns the underlying connection pool.
func (m *Manager) DB() *sql.DB {
	return m.db
}

// Dialect returns the SQL dialect of the store.
func (m *Manager) Dialect() Dialect {
	return m.dialect
}

// QueryTimeout returns the configured query timeout.
func (m *Manager) QueryTimeout() time.Duration {
	return m.queryTimeout
}

// Close closes the connection pool.
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

// Ping checks that the store is reachable.
func (m *Manager) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.queryTimeout)
	defer cancel()
	return m.db.PingContext(ctx)
}

// Exec executes a statement with the configured timeout.
func (m *Manager) Exec(query string, args ...interface{}) (sql.Result, error) {
	ctx, cancel := context.WithTimeout(context.Background(), m.queryTimeout)
	defer cancel()
	return m.db.ExecContext(ctx, query, args...)
}

// ReadTx runs fn inside a read transaction bounded by the query timeout.
// The transaction is read-only where the driver supports it; fn must not
// write. Cancelling ctx aborts the in-flight statement.
func (m *Manager) ReadTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, m.queryTimeout)
	defer cancel()

	tx, err := m.db.BeginTx(ctx, m.dialect.TxOptions())
	if err != nil {
		return fmt.Errorf("failed to begin read transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit read transaction: %w", err)
	}
	return nil
}

// warmConnections pre-warms the connection pool to eliminate cold-start latency.
func (m *Manager) warmConnections() {
	maxConns := m.db.Stats().MaxOpenConnections

	m.logger.Info("Pre-warming database connections",
		zap.Int("target_connections", maxConns),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Hold every connection until all are open, otherwise the pool hands
	// the same one back.
	conns := make([]*sql.Conn, maxConns)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < maxConns; i++ {
		idx := i
		g.Go(func() error {
			conn, err := m.db.Conn(gctx)
			if err != nil {
				return fmt.Errorf("connection %d: %w", idx, err)
			}
			conns[idx] = conn
			return conn.PingContext(gctx)
		})
	}
	err := g.Wait()
	for _, conn := range conns {
		if conn != nil {
			conn.Close()
		}
	}
	if err != nil {
		m.logger.Warn("Failed to warm connection pool", zap.Error(err))
		return
	}

	m.logger.Info("Connection pool warmed")
}

// TableColumns retrieves and caches the columns of a table in ordinal order.
func (m *Manager) TableColumns(ctx context.Context, table string) ([]ColumnInfo, error) {
	if cached, ok := m.tableSchemas.Load(table); ok {
		return cached.([]ColumnInfo), nil
	}

	ctx, cancel := context.WithTimeout(ctx, m.queryTimeout)
	defer cancel()

	rows, err := m.db.QueryContext(ctx, m.dialect.ColumnsQuery(), table)
	if err != nil {
		return nil, fmt.Errorf("failed to query table schema: %w", err)
	}
	defer rows.Close()

	var columns []ColumnInfo
	for rows.Next() {
		var col ColumnInfo
		var nullable string
		if err := rows.Scan(&col.Name, &col.DataType, &nullable); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		col.Nullable = strings.EqualFold(nullable, "YES")
		columns = append(columns, col)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating columns: %w", err)
	}

	if len(columns) == 0 {
		return nil, fmt.Errorf("table '%s' has no columns or does not exist", table)
	}

	actual, _ := m.tableSchemas.LoadOrStore(table, columns)

	m.logger.Debug("Cached table schema",
		zap.String("table", table),
		zap.Int("columns", len(columns)),
	)

	return actual.([]ColumnInfo), nil
}

// InvalidateTableSchema removes a table's columns from the cache.
// Call this when a table's structure changes (ALTER TABLE).
func (m *Manager) InvalidateTableSchema(table string) {
	m.tableSchemas.Delete(table)

	m.logger.Debug("Invalidated table schema cache",
		zap.String("table", table),
	)
}
