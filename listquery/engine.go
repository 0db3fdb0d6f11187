// Package listquery turns list requests (filters, search, sort and
// pagination encoded in a query string) into parameterized SQL against a
// shop entity and assembles the paginated result.
package listquery

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/tobilg/caddyserver-shop-module/database"
	"github.com/tobilg/caddyserver-shop-module/money"
	"github.com/tobilg/caddyserver-shop-module/schema"
	"go.uber.org/zap"
)

// Store runs read transactions. *database.Manager implements it.
type Store interface {
	Dialect() database.Dialect
	ReadTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error
}

// Resolver describes entities and resolves column paths.
// *schema.Introspector implements it.
type Resolver interface {
	Describe(ctx context.Context, entity string) (*schema.Entity, error)
	ResolvePath(ctx context.Context, entity, path string) (*schema.ResolvedPath, error)
}

// Options configures an Engine.
type Options struct {
	// DefaultLimit is the page size when a request sets none.
	DefaultLimit int
	// PlanCacheSize bounds the compiled plan cache. Negative disables it.
	PlanCacheSize int
	PlanCacheTTL  time.Duration
	// Monetary is the registry of money fields. Nil means money.Default.
	Monetary money.Registry
	Logger   *zap.Logger
}

// Engine executes list queries.
type Engine struct {
	store    Store
	resolver Resolver
	parser   Parser
	plans    *expirable.LRU[string, *statement]
	monetary money.Registry
	logger   *zap.Logger
}

// NewEngine creates an engine over a store and a schema resolver.
func NewEngine(store Store, resolver Resolver, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Monetary == nil {
		opts.Monetary = money.Default
	}
	if opts.PlanCacheSize == 0 {
		opts.PlanCacheSize = 1000
	}
	if opts.PlanCacheTTL == 0 {
		opts.PlanCacheTTL = 5 * time.Minute
	}

	e := &Engine{
		store:    store,
		resolver: resolver,
		parser:   Parser{DefaultLimit: opts.DefaultLimit},
		monetary: opts.Monetary,
		logger:   opts.Logger,
	}
	if opts.PlanCacheSize > 0 {
		e.plans = expirable.NewLRU[string, *statement](opts.PlanCacheSize, nil, opts.PlanCacheTTL)
	}
	return e
}

// List runs a list query for entity. searchColumns are base columns
// matched by searchTerm; view selects the item fields (nil for every
// column). Errors are *Error values.
func (e *Engine) List(ctx context.Context, rawQuery string, searchColumns []string, entity string, view *View) (*Result, error) {
	st, err := e.plan(ctx, rawQuery, searchColumns, entity, view)
	if err != nil {
		return nil, err
	}

	total, rows, err := e.execute(ctx, st)
	if err != nil {
		return nil, err
	}
	return st.assemble(total, rows), nil
}

// plan parses and compiles a query, or returns the cached statement.
func (e *Engine) plan(ctx context.Context, rawQuery string, searchColumns []string, entity string, view *View) (*statement, error) {
	key := fmt.Sprintf("%s\x00%s\x00%p\x00%s", entity, strings.Join(searchColumns, ","), view, rawQuery)
	if e.plans != nil {
		if st, ok := e.plans.Get(key); ok {
			return st, nil
		}
	}

	q, err := e.parser.Parse(rawQuery)
	if err != nil {
		return nil, err
	}
	st, err := e.compile(ctx, q, entity, searchColumns, view)
	if err != nil {
		return nil, err
	}

	if e.plans != nil {
		e.plans.Add(key, st)
	}
	return st, nil
}

// PurgePlans drops every cached plan. Call it after the schema changes.
func (e *Engine) PurgePlans() {
	if e.plans != nil {
		e.plans.Purge()
	}
}
