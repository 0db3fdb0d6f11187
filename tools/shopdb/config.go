package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
	"github.com/tobilg/caddyserver-shop-module/database"
	"go.uber.org/zap"
)

const (
	defaultConfigFile = "shopdb.yaml"
	envPrefix         = "SHOPDB_"
)

// config is the resolved CLI configuration.
// Precedence (highest to lowest): flags > env vars > config file > flag defaults
type config struct {
	Driver       string        `koanf:"driver"`
	DSN          string        `koanf:"dsn"`
	Threads      int           `koanf:"threads"`
	AccessMode   string        `koanf:"access_mode"`
	MemoryLimit  string        `koanf:"memory_limit"`
	QueryTimeout time.Duration `koanf:"query_timeout"`
	Verbose      bool          `koanf:"verbose"`

	log *zap.Logger
}

// registerFlags adds the connection flags shared by every command.
func registerFlags(flags *pflag.FlagSet) {
	flags.String("config", defaultConfigFile, "Path to the yaml config file")
	flags.String("driver", "duckdb", "Database driver: duckdb, postgres or sqlite")
	flags.String("dsn", "", "Database path (duckdb, sqlite) or connection string (postgres)")
	flags.Int("threads", 4, "DuckDB threads")
	flags.String("access-mode", "read_write", "Access mode: read_only or read_write")
	flags.String("memory-limit", "", "DuckDB memory limit, e.g. 4GB")
	flags.Duration("query-timeout", 30*time.Second, "Timeout of a single statement")
	flags.BoolP("verbose", "v", false, "Log to stderr")
}

// loadConfig reads the config file named by --config, then SHOPDB_*
// environment variables, then explicitly set flags.
func loadConfig(flags *pflag.FlagSet) (*config, error) {
	k := koanf.New(".")

	cfgFile, _ := flags.GetString("config")
	if _, err := os.Stat(cfgFile); err == nil {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
	} else if flags.Changed("config") {
		return nil, fmt.Errorf("config file %s: %w", cfgFile, err)
	}

	// SHOPDB_QUERY_TIMEOUT -> query_timeout
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// Unchanged flags only fill keys that neither the file nor the
	// environment set.
	if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
		if f.Name == "config" {
			return "", nil
		}
		return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	var cfg config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	cfg.log = zap.NewNop()
	if cfg.Verbose {
		zcfg := zap.NewDevelopmentConfig()
		zcfg.OutputPaths = []string{"stderr"}
		logger, err := zcfg.Build()
		if err != nil {
			return nil, fmt.Errorf("unable to build logger: %w", err)
		}
		cfg.log = logger
	}
	return &cfg, nil
}

// logger returns the logger built by loadConfig, shared by every command.
func (c *config) logger() *zap.Logger {
	return c.log
}

// openManager opens the configured store.
func (c *config) openManager() (*database.Manager, error) {
	return database.NewManager(database.Config{
		Driver:       c.Driver,
		DSN:          c.DSN,
		Threads:      c.Threads,
		AccessMode:   c.AccessMode,
		MemoryLimit:  c.MemoryLimit,
		QueryTimeout: c.QueryTimeout,
		Logger:       c.logger(),
	})
}
