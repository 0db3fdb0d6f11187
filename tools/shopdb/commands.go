package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tobilg/caddyserver-shop-module/catalog"
	"github.com/tobilg/caddyserver-shop-module/database"
	"github.com/tobilg/caddyserver-shop-module/formats"
	"github.com/tobilg/caddyserver-shop-module/listquery"
	"github.com/tobilg/caddyserver-shop-module/schema"
)

// migrateCmd creates the migrate subcommand
func migrateCmd() *cobra.Command {
	var status bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the shop schema migrations",
		Long: `Apply all pending shop schema migrations to a postgres or sqlite database.

Examples:
  shopdb migrate --driver sqlite --dsn ./shop.db
  shopdb migrate --driver postgres --dsn postgres://shop@localhost/shop --status`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mgr, err := configFrom(cmd).openManager()
			if err != nil {
				return err
			}
			defer mgr.Close()

			if !status {
				if err := mgr.Migrate(cmd.Context()); err != nil {
					return err
				}
			}
			version, err := mgr.MigrationVersion(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Schema version: %d\n", version)
			return nil
		},
	}

	cmd.Flags().BoolVar(&status, "status", false, "Only print the current schema version")
	return cmd
}

// schemaCmd creates the schema subcommand
func schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema [entity]",
		Short: "Print the introspected schema of an entity",
		Long: `Print the columns and relations of an entity as the list endpoints see them.
Without an entity, every known entity is listed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				for _, def := range catalog.Definitions() {
					fmt.Fprintln(out, def.Name)
				}
				return nil
			}

			cfg := configFrom(cmd)
			mgr, err := cfg.openManager()
			if err != nil {
				return err
			}
			defer mgr.Close()

			resolver := schema.NewIntrospector(mgr, cfg.logger(), catalog.Definitions()...)
			entity, err := resolver.Describe(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printEntity(out, entity)
			return nil
		},
	}
}

func printEntity(out io.Writer, entity *schema.Entity) {
	fmt.Fprintf(out, "Entity: %s (table %s)\n\n", entity.Name, entity.Table)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "COLUMN\tKIND\tNULLABLE\tPRIMARY")
	for _, col := range entity.Columns {
		fmt.Fprintf(w, "%s\t%s\t%v\t%v\n", col.Name, col.Kind, col.Nullable, col.Primary)
	}
	w.Flush()

	if len(entity.Relations) == 0 {
		return
	}
	names := make([]string, 0, len(entity.Relations))
	for name := range entity.Relations {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RELATION\tTARGET\tKEYS\tCARDINALITY")
	for _, name := range names {
		r := entity.Relations[name]
		fmt.Fprintf(w, "%s\t%s\t%s -> %s\t%s\n", r.Name, r.Target, r.LocalKey, r.RemoteKey, r.Cardinality)
	}
	w.Flush()
}

// listCmd creates the list subcommand
func listCmd() *cobra.Command {
	var (
		query      string
		format     string
		outputPath string
	)

	cmd := &cobra.Command{
		Use:   "list <resource>",
		Short: "Run a list query against a resource",
		Long: `Run a list query the way GET {prefix}/api/<resource> does and print the page.

Examples:
  shopdb list orders --query 'columnFilters=[["status","paid"]]&sort=[["created_at"],["desc"]]'
  shopdb list products --query 'limit=100' --format parquet --output products.parquet`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ep, ok := catalog.Lookup(args[0])
			if !ok {
				return fmt.Errorf("unknown resource: %s", args[0])
			}

			cfg := configFrom(cmd)
			mgr, err := cfg.openManager()
			if err != nil {
				return err
			}
			defer mgr.Close()

			res, err := runList(cmd, mgr, cfg, ep, query)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if outputPath != "" {
				f, err := os.Create(outputPath)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			return writeResult(out, res, format, ep.Resource)
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "Raw query string, e.g. 'page=2&limit=10'")
	cmd.Flags().StringVarP(&format, "format", "f", "json", "Output format: json, csv, arrow or parquet")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write to a file instead of stdout")
	return cmd
}

func runList(cmd *cobra.Command, mgr *database.Manager, cfg *config, ep catalog.Endpoint, query string) (*listquery.Result, error) {
	resolver := schema.NewIntrospector(mgr, cfg.logger(), catalog.Definitions()...)
	engine := listquery.NewEngine(mgr, resolver, listquery.Options{
		PlanCacheSize: -1,
		Logger:        cfg.logger(),
	})

	res, err := engine.List(cmd.Context(), query, ep.SearchColumns, ep.Entity, ep.View)
	if err != nil {
		if qerr := listquery.AsError(err); qerr != nil {
			for _, fe := range qerr.Details {
				fmt.Fprintf(cmd.ErrOrStderr(), "  %s %s: %s\n", fe.Param, fe.Field, fe.Reason)
			}
		}
		return nil, err
	}
	return res, nil
}

func writeResult(out io.Writer, res *listquery.Result, format, resource string) error {
	w := &streamWriter{out: out, header: http.Header{}}
	switch format {
	case "json":
		return formats.WriteJSON(w, res, nil)
	case "csv":
		return formats.WriteCSV(w, res, resource)
	case "arrow":
		return formats.WriteArrowIPC(w, res)
	case "parquet":
		return formats.WriteParquet(w, res, resource)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// streamWriter lets the HTTP response writers of the formats package
// write to a plain stream. Headers are discarded.
type streamWriter struct {
	out    io.Writer
	header http.Header
}

func (w *streamWriter) Header() http.Header         { return w.header }
func (w *streamWriter) Write(b []byte) (int, error) { return w.out.Write(b) }
func (w *streamWriter) WriteHeader(int)             {}
