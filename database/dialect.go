package database

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
)

// Dialect renders the store-specific fragments of a list query. Every
// method that takes a bind func emits values through it, in the order
// their placeholders appear in the returned text.
type Dialect interface {
	Name() string
	DriverName() string
	Placeholder(n int) string
	QuoteIdent(name string) string
	// ILike matches expr case-insensitively against the pattern param.
	ILike(expr, param string) string
	TextCast(expr string) string
	// DecimalParam casts the text parameter param holding an exact decimal
	// with scale fractional digits to a decimal the store compares exactly.
	DecimalParam(param string, scale int) string
	TimeValue(t time.Time) interface{}
	TxOptions() *sql.TxOptions
	// ColumnsQuery selects (name, data type, 'YES'|'NO' nullable) for the
	// table bound to the single parameter.
	ColumnsQuery() string
	// StringArrayContains matches rows whose JSON array expr holds any of values.
	StringArrayContains(expr string, bind func(interface{}) string, values []string) string
	// ObjectArrayMatches matches rows whose JSON array expr holds one object
	// satisfying every condition.
	ObjectArrayMatches(expr string, bind func(interface{}) string, conds []ElementCondition) string
	// GooseDialect names the migration dialect, or "" when goose cannot
	// migrate this store.
	GooseDialect() string
}

// ElementCondition matches one key of an object inside a JSON array.
// Either Values (any-of) or Nested is set; Nested matches objects inside
// the array stored under Key.
type ElementCondition struct {
	Key    string
	Values []string
	Nested *ElementCondition
}

// DialectFor returns the dialect for a driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "duckdb":
		return DuckDB, nil
	case "postgres":
		return Postgres, nil
	case "sqlite":
		return SQLite, nil
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}
}

// MaxDecimalDigits is the widest decimal DecimalParam can cast to.
const MaxDecimalDigits = 38

var (
	DuckDB   Dialect = duckdbDialect{}
	Postgres Dialect = postgresDialect{}
	SQLite   Dialect = sqliteDialect{}
)

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func bindAll(bind func(interface{}) string, values []string) string {
	params := make([]string, len(values))
	for i, v := range values {
		params[i] = bind(v)
	}
	return strings.Join(params, ", ")
}

func jsonPath(key string) string {
	return "$." + key
}

const informationSchemaColumns = `SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_name = $1
		ORDER BY ordinal_position`

type duckdbDialect struct{}

func (duckdbDialect) Name() string { return "duckdb" }
func (duckdbDialect) DriverName() string { return "duckdb" }
func (duckdbDialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }
func (duckdbDialect) QuoteIdent(name string) string { return quoteIdent(name) }
func (duckdbDialect) ILike(expr, param string) string { return expr + " ILIKE " + param }
func (duckdbDialect) TextCast(expr string) string { return "CAST(" + expr + " AS VARCHAR)" }
func (duckdbDialect) DecimalParam(param string, scale int) string {
	return fmt.Sprintf("CAST(CAST(%s AS VARCHAR) AS DECIMAL(%d, %d))", param, MaxDecimalDigits, scale)
}
func (duckdbDialect) TimeValue(t time.Time) interface{} {
	return t
}

// TxOptions is nil: duckdb-go rejects READ ONLY transactions. DuckDB
// transactions are snapshot isolated.
func (duckdbDialect) TxOptions() *sql.TxOptions { return nil }
func (duckdbDialect) ColumnsQuery() string { return informationSchemaColumns }
func (duckdbDialect) GooseDialect() string { return "" }

func (duckdbDialect) StringArrayContains(expr string, bind func(interface{}) string, values []string) string {
	return fmt.Sprintf(
		`EXISTS (SELECT 1 FROM (SELECT unnest(from_json(CAST(%s AS JSON), '["VARCHAR"]')) AS e1) AS s1 WHERE e1 IN (%s))`,
		expr, bindAll(bind, values))
}

func (duckdbDialect) ObjectArrayMatches(expr string, bind func(interface{}) string, conds []ElementCondition) string {
	return duckdbElementExists(fmt.Sprintf("CAST(%s AS JSON)", expr), 1, bind, conds)
}

// Paths are cast so the binder can pick a json_extract overload for an
// untyped parameter.
func duckdbElementExists(source string, depth int, bind func(interface{}) string, conds []ElementCondition) string {
	alias := fmt.Sprintf("e%d", depth)
	var where []string
	for _, c := range conds {
		if c.Nested != nil {
			inner := fmt.Sprintf("json_extract(%s, CAST(%s AS VARCHAR))", alias, bind(jsonPath(c.Key)))
			where = append(where, duckdbElementExists(inner, depth+1, bind, []ElementCondition{*c.Nested}))
			continue
		}
		key := bind(jsonPath(c.Key))
		where = append(where, fmt.Sprintf("json_extract_string(%s, CAST(%s AS VARCHAR)) IN (%s)", alias, key, bindAll(bind, c.Values)))
	}
	return fmt.Sprintf(`EXISTS (SELECT 1 FROM (SELECT unnest(from_json(%s, '["JSON"]')) AS %s) AS s%d WHERE %s)`,
		source, alias, depth, strings.Join(where, " AND "))
}

type postgresDialect struct{}

func (postgresDialect) Name() string { return "postgres" }
func (postgresDialect) DriverName() string { return "pgx" }
func (postgresDialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }
func (postgresDialect) QuoteIdent(name string) string { return quoteIdent(name) }
func (postgresDialect) ILike(expr, param string) string { return expr + " ILIKE " + param }
func (postgresDialect) TextCast(expr string) string { return "CAST(" + expr + " AS TEXT)" }
func (postgresDialect) DecimalParam(param string, _ int) string {
	return "CAST(CAST(" + param + " AS TEXT) AS NUMERIC)"
}
func (postgresDialect) TimeValue(t time.Time) interface{} {
	return t
}
func (postgresDialect) TxOptions() *sql.TxOptions {
	return &sql.TxOptions{ReadOnly: true, Isolation: sql.LevelRepeatableRead}
}
func (postgresDialect) GooseDialect() string { return "postgres" }

func (postgresDialect) ColumnsQuery() string {
	return `SELECT column_name, CASE WHEN data_type = 'USER-DEFINED' THEN 'ENUM' ELSE data_type END, is_nullable
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
		ORDER BY ordinal_position`
}

func (postgresDialect) StringArrayContains(expr string, bind func(interface{}) string, values []string) string {
	return fmt.Sprintf("EXISTS (SELECT 1 FROM jsonb_array_elements_text(to_jsonb(%s)) AS e1 WHERE e1 IN (%s))",
		expr, bindAll(bind, values))
}

func (postgresDialect) ObjectArrayMatches(expr string, bind func(interface{}) string, conds []ElementCondition) string {
	return postgresElementExists(fmt.Sprintf("jsonb_array_elements(to_jsonb(%s))", expr), 1, bind, conds)
}

func postgresElementExists(source string, depth int, bind func(interface{}) string, conds []ElementCondition) string {
	alias := fmt.Sprintf("e%d", depth)
	var where []string
	for _, c := range conds {
		if c.Nested != nil {
			// jsonb_array_elements fails on non-arrays; substitute an empty one.
			child := fmt.Sprintf("%s -> CAST(%s AS TEXT)", alias, bind(c.Key))
			guarded := fmt.Sprintf("CASE WHEN jsonb_typeof(%s) = 'array' THEN %s -> CAST(%s AS TEXT) ELSE '[]'::jsonb END",
				child, alias, bind(c.Key))
			inner := fmt.Sprintf("jsonb_array_elements(%s)", guarded)
			where = append(where, postgresElementExists(inner, depth+1, bind, []ElementCondition{*c.Nested}))
			continue
		}
		key := bind(c.Key)
		where = append(where, fmt.Sprintf("%s ->> CAST(%s AS TEXT) IN (%s)", alias, key, bindAll(bind, c.Values)))
	}
	return fmt.Sprintf("EXISTS (SELECT 1 FROM %s AS %s WHERE %s)", source, alias, strings.Join(where, " AND "))
}

func init() {
	// casefold lowers every Unicode letter, which sqlite's own lower() does not.
	sqlite.MustRegisterDeterministicScalarFunction("casefold", 1, func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
		switch v := args[0].(type) {
		case string:
			return strings.ToLower(v), nil
		case []byte:
			return strings.ToLower(string(v)), nil
		default:
			return v, nil
		}
	})
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string { return "sqlite" }
func (sqliteDialect) DriverName() string { return "sqlite" }
func (sqliteDialect) Placeholder(int) string { return "?" }
func (sqliteDialect) QuoteIdent(name string) string { return quoteIdent(name) }

// ILike folds both sides with casefold: the LIKE operator and lower()
// only fold ASCII letters.
func (sqliteDialect) ILike(expr, param string) string {
	return "casefold(" + expr + ") LIKE casefold(" + param + ")"
}
func (sqliteDialect) TextCast(expr string) string { return "CAST(" + expr + " AS TEXT)" }

// DecimalParam has no exact type to cast to; sqlite stores decimals as REAL.
func (sqliteDialect) DecimalParam(param string, _ int) string { return "CAST(" + param + " AS NUMERIC)" }
func (sqliteDialect) TimeValue(t time.Time) interface{} {
	return t.Format("2006-01-02 15:04:05")
}
func (sqliteDialect) TxOptions() *sql.TxOptions { return nil }
func (sqliteDialect) GooseDialect() string { return "sqlite" }

func (sqliteDialect) ColumnsQuery() string {
	return `SELECT name, type, CASE WHEN "notnull" = 0 THEN 'YES' ELSE 'NO' END
		FROM pragma_table_info(?)
		ORDER BY cid`
}

func (sqliteDialect) StringArrayContains(expr string, bind func(interface{}) string, values []string) string {
	return fmt.Sprintf("EXISTS (SELECT 1 FROM json_each(%s) AS e1 WHERE CAST(e1.value AS TEXT) IN (%s))",
		expr, bindAll(bind, values))
}

func (sqliteDialect) ObjectArrayMatches(expr string, bind func(interface{}) string, conds []ElementCondition) string {
	return sqliteElementExists(fmt.Sprintf("json_each(%s)", expr), 1, bind, conds)
}

func sqliteElementExists(source string, depth int, bind func(interface{}) string, conds []ElementCondition) string {
	alias := fmt.Sprintf("e%d", depth)
	// CASE keeps json_extract away from scalar elements, which are not JSON text.
	object := fmt.Sprintf("CASE WHEN %s.type = 'object' THEN %s.value ELSE '{}' END", alias, alias)
	var where []string
	for _, c := range conds {
		if c.Nested != nil {
			inner := fmt.Sprintf("json_each(%s, %s)", object, bind(jsonPath(c.Key)))
			where = append(where, sqliteElementExists(inner, depth+1, bind, []ElementCondition{*c.Nested}))
			continue
		}
		key := bind(jsonPath(c.Key))
		where = append(where, fmt.Sprintf("CAST(json_extract(%s, %s) AS TEXT) IN (%s)", object, key, bindAll(bind, c.Values)))
	}
	return fmt.Sprintf("EXISTS (SELECT 1 FROM %s AS %s WHERE %s)", source, alias, strings.Join(where, " AND "))
}
