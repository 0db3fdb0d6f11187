package shop

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caddyserver/caddy/v2"
	"github.com/caddyserver/caddy/v2/caddyconfig/caddyfile"
	"github.com/caddyserver/caddy/v2/caddyconfig/httpcaddyfile"
	"github.com/caddyserver/caddy/v2/modules/caddyhttp"
	"github.com/tobilg/caddyserver-shop-module/catalog"
	"github.com/tobilg/caddyserver-shop-module/database"
	"github.com/tobilg/caddyserver-shop-module/handlers"
	"github.com/tobilg/caddyserver-shop-module/listquery"
	"github.com/tobilg/caddyserver-shop-module/schema"
	"go.uber.org/zap"
)

func init() {
	caddy.RegisterModule(Shop{})
	httpcaddyfile.RegisterHandlerDirective("shop", parseCaddyfile)
}

// Shop is a Caddy module that serves read-only list endpoints over a shop
// database.
type Shop struct {
	// Driver selects the store: "duckdb" (default), "postgres" or "sqlite".
	Driver string `json:"driver,omitempty"`

	// DatabasePath is the database file for duckdb and sqlite.
	// If empty, an in-memory database will be used.
	DatabasePath string `json:"database_path,omitempty"`

	// DSN is the connection string for postgres. For duckdb and sqlite it
	// takes precedence over DatabasePath.
	DSN string `json:"dsn,omitempty"`

	// Migrate applies the shop schema migrations on provision.
	// Supported for postgres and sqlite.
	Migrate bool `json:"migrate,omitempty"`

	// QueryTimeout is the maximum duration of one list request's
	// database round-trip. Default is 10 seconds.
	QueryTimeout caddy.Duration `json:"query_timeout,omitempty"`

	// DefaultLimit is the page size when a request sets no limit.
	// Default is 20.
	DefaultLimit int `json:"default_limit,omitempty"`

	// PlanCacheSize bounds the number of compiled list queries kept.
	// Default is 1000; -1 disables the cache.
	PlanCacheSize int `json:"plan_cache_size,omitempty"`

	// PlanCacheTTL is how long a compiled query stays cached.
	// Default is 5 minutes.
	PlanCacheTTL caddy.Duration `json:"plan_cache_ttl,omitempty"`

	// Threads is the number of threads DuckDB should use.
	// Default is 4.
	Threads int `json:"threads,omitempty"`

	// AccessMode determines the access mode for the database.
	// Valid values are "read_only" or "read_write" (default).
	AccessMode string `json:"access_mode,omitempty"`

	// MemoryLimit is the maximum memory DuckDB can use (e.g., "4GB", "512MB").
	// If empty, DuckDB defaults to 80% of available RAM.
	MemoryLimit string `json:"memory_limit,omitempty"`

	// EnableObjectCache enables DuckDB's object cache for faster repeated queries.
	// Default is false.
	EnableObjectCache bool `json:"enable_object_cache,omitempty"`

	// TempDirectory is the directory for DuckDB temporary files when spilling to disk.
	// If empty, uses system default.
	TempDirectory string `json:"temp_directory,omitempty"`

	// MaxOpenConns bounds the connection pool for postgres and sqlite.
	// Default is 10.
	MaxOpenConns int `json:"max_open_conns,omitempty"`

	logger         *zap.Logger
	dbMgr          *database.Manager
	resolver       *schema.Introspector
	engine         *listquery.Engine
	listHandler    *handlers.ListHandler
	openAPIHandler *handlers.OpenAPIHandler
	routePrefix    string // set from SHOP_ROUTE_PREFIX env var, defaults to /shop
}

// CaddyModule returns the Caddy module information.
func (Shop) CaddyModule() caddy.ModuleInfo {
	return caddy.ModuleInfo{
		ID:  "http.handlers.shop",
		New: func() caddy.Module { return new(Shop) },
	}
}

// Provision sets up the shop module.
func (s *Shop) Provision(ctx caddy.Context) error {
	return s.provision(ctx, ctx.Logger(s))
}

func (s *Shop) provision(ctx context.Context, logger *zap.Logger) error {
	s.logger = logger
	s.routePrefix = routePrefixFromEnv()
	s.applyDefaults()

	var err error
	s.dbMgr, err = database.NewManager(s.databaseConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize database manager: %v", err)
	}

	if s.Migrate {
		if err := s.dbMgr.Migrate(ctx); err != nil {
			s.dbMgr.Close()
			return fmt.Errorf("failed to migrate shop schema: %w", err)
		}
	}

	// Every entity is described up front so that requests never wait on
	// schema introspection.
	s.resolver = schema.NewIntrospector(s.dbMgr, s.logger, catalog.Definitions()...)
	if err := s.resolver.Warm(ctx); err != nil {
		s.dbMgr.Close()
		return fmt.Errorf("failed to load shop schema: %w", err)
	}

	s.engine = listquery.NewEngine(s.dbMgr, s.resolver, listquery.Options{
		DefaultLimit:  s.DefaultLimit,
		PlanCacheSize: s.PlanCacheSize,
		PlanCacheTTL:  time.Duration(s.PlanCacheTTL),
		Logger:        s.logger,
	})
	s.listHandler = handlers.NewListHandler(s.engine, s.routePrefix, s.logger)
	s.openAPIHandler = handlers.NewOpenAPIHandler(ctx, s.routePrefix, s.resolver)

	s.logger.Info("Shop module provisioned",
		zap.String("route_prefix", s.routePrefix),
		zap.String("driver", s.Driver),
		zap.String("database_path", s.DatabasePath),
		zap.Bool("migrate", s.Migrate),
		zap.Duration("query_timeout", time.Duration(s.QueryTimeout)),
		zap.Int("default_limit", s.DefaultLimit),
		zap.Int("plan_cache_size", s.PlanCacheSize),
		zap.Duration("plan_cache_ttl", time.Duration(s.PlanCacheTTL)),
		zap.Int("threads", s.Threads),
		zap.String("access_mode", s.AccessMode),
		zap.Int("endpoints", len(catalog.Endpoints())),
	)

	return nil
}

func routePrefixFromEnv() string {
	prefix := os.Getenv("SHOP_ROUTE_PREFIX")
	if prefix == "" {
		prefix = "/shop"
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return strings.TrimSuffix(prefix, "/")
}

func (s *Shop) applyDefaults() {
	if s.Driver == "" {
		s.Driver = "duckdb"
	}
	if s.QueryTimeout == 0 {
		s.QueryTimeout = caddy.Duration(10 * time.Second)
	}
	if s.DefaultLimit == 0 {
		s.DefaultLimit = listquery.DefaultLimit
	}
	if s.PlanCacheSize == 0 {
		s.PlanCacheSize = 1000
	}
	if s.PlanCacheTTL == 0 {
		s.PlanCacheTTL = caddy.Duration(5 * time.Minute)
	}
	if s.Threads == 0 {
		s.Threads = 4
	}
	if s.AccessMode == "" {
		s.AccessMode = "read_write"
	}
	if s.MaxOpenConns == 0 {
		s.MaxOpenConns = 10
	}
}

func (s *Shop) databaseConfig() database.Config {
	dsn := s.DSN
	if dsn == "" {
		dsn = s.DatabasePath
	}
	return database.Config{
		Driver:            s.Driver,
		DSN:               dsn,
		Threads:           s.Threads,
		AccessMode:        s.AccessMode,
		MemoryLimit:       s.MemoryLimit,
		EnableObjectCache: s.EnableObjectCache,
		TempDirectory:     s.TempDirectory,
		MaxOpenConns:      s.MaxOpenConns,
		QueryTimeout:      time.Duration(s.QueryTimeout),
		Logger:            s.logger,
	}
}

// Validate ensures the module configuration is valid.
func (s *Shop) Validate() error {
	if err := s.databaseConfig().Validate(); err != nil {
		return err
	}
	if s.DefaultLimit < 1 || s.DefaultLimit > listquery.MaxLimit {
		return fmt.Errorf("default_limit must be between 1 and %d", listquery.MaxLimit)
	}
	if s.PlanCacheSize < -1 {
		return fmt.Errorf("plan_cache_size must be >= -1 (-1 disables the cache)")
	}
	if s.PlanCacheTTL < 0 {
		return fmt.Errorf("plan_cache_ttl must not be negative")
	}
	if s.Migrate && s.Driver == "duckdb" {
		return fmt.Errorf("migrate is not supported for the duckdb driver")
	}
	return nil
}

// ServeHTTP implements the caddyhttp.MiddlewareHandler interface.
func (s *Shop) ServeHTTP(w http.ResponseWriter, r *http.Request, next caddyhttp.Handler) error {
	if r.URL.Path != s.routePrefix && !strings.HasPrefix(r.URL.Path, s.routePrefix+"/") {
		return next.ServeHTTP(w, r)
	}

	r = handlers.WithRequestID(w, r)

	switch {
	case r.URL.Path == s.routePrefix+"/health":
		s.serveHealth(w, r)
	case r.URL.Path == s.routePrefix+"/openapi.json":
		s.openAPIHandler.ServeHTTP(w, r)
	case strings.HasPrefix(r.URL.Path, s.routePrefix+"/api/"):
		s.listHandler.ServeHTTP(w, r)
	default:
		handlers.WriteStatus(w, http.StatusNotFound, "Unknown shop endpoint")
	}
	return nil
}

func (s *Shop) serveHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.dbMgr.Ping(r.Context()); err != nil {
		s.logger.Warn("Health check failed",
			zap.Error(err),
			zap.String("request_id", handlers.GetRequestIDFromContext(r.Context())),
		)
		handlers.WriteStatus(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(HealthResponse{
		Status:   "ok",
		Driver:   s.dbMgr.Dialect().Name(),
		Entities: len(s.resolver.Entities()),
	})
}

// Cleanup performs cleanup when the module is unloaded.
func (s *Shop) Cleanup() error {
	if s.dbMgr != nil {
		return s.dbMgr.Close()
	}
	return nil
}

// UnmarshalCaddyfile implements caddyfile.Unmarshaler.
func (s *Shop) UnmarshalCaddyfile(dispenser *caddyfile.Dispenser) error {
	for dispenser.Next() {
		for dispenser.NextBlock(0) {
			key := dispenser.Val()
			switch key {
			case "driver":
				if !dispenser.Args(&s.Driver) {
					return dispenser.ArgErr()
				}
			case "database_path":
				if !dispenser.Args(&s.DatabasePath) {
					return dispenser.ArgErr()
				}
			case "dsn":
				if !dispenser.Args(&s.DSN) {
					return dispenser.ArgErr()
				}
			case "migrate":
				s.Migrate = true
				var value string
				if dispenser.Args(&value) {
					s.Migrate = parseBool(value)
				}
			case "query_timeout", "plan_cache_ttl":
				var value string
				if !dispenser.Args(&value) {
					return dispenser.ArgErr()
				}
				duration, err := caddy.ParseDuration(value)
				if err != nil {
					return dispenser.Errf("invalid %s: %v", key, err)
				}
				if key == "query_timeout" {
					s.QueryTimeout = caddy.Duration(duration)
				} else {
					s.PlanCacheTTL = caddy.Duration(duration)
				}
			case "default_limit", "plan_cache_size", "threads", "max_open_conns":
				var value string
				if !dispenser.Args(&value) {
					return dispenser.ArgErr()
				}
				n, err := strconv.Atoi(value)
				if err != nil {
					return dispenser.Errf("invalid %s: %v", key, err)
				}
				switch key {
				case "default_limit":
					s.DefaultLimit = n
				case "plan_cache_size":
					s.PlanCacheSize = n
				case "threads":
					s.Threads = n
				default:
					s.MaxOpenConns = n
				}
			case "access_mode":
				if !dispenser.Args(&s.AccessMode) {
					return dispenser.ArgErr()
				}
			case "memory_limit":
				if !dispenser.Args(&s.MemoryLimit) {
					return dispenser.ArgErr()
				}
			case "enable_object_cache":
				var value string
				if !dispenser.Args(&value) {
					return dispenser.ArgErr()
				}
				s.EnableObjectCache = parseBool(value)
			case "temp_directory":
				if !dispenser.Args(&s.TempDirectory) {
					return dispenser.ArgErr()
				}
			default:
				return dispenser.Errf("unknown subdirective: %s", key)
			}
		}
	}
	return nil
}

func parseBool(value string) bool {
	value = strings.ToLower(value)
	return value == "true" || value == "yes" || value == "1"
}

// parseCaddyfile unmarshals tokens from h into a new Middleware.
func parseCaddyfile(h httpcaddyfile.Helper) (caddyhttp.MiddlewareHandler, error) {
	var s Shop
	err := s.UnmarshalCaddyfile(h.Dispenser)
	return &s, err
}

// Interface guards
var (
	_ caddy.Module                = (*Shop)(nil)
	_ caddy.Provisioner           = (*Shop)(nil)
	_ caddy.Validator             = (*Shop)(nil)
	_ caddy.CleanerUpper          = (*Shop)(nil)
	_ caddyhttp.MiddlewareHandler = (*Shop)(nil)
	_ caddyfile.Unmarshaler       = (*Shop)(nil)
)
