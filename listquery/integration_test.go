package listquery

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tobilg/caddyserver-shop-module/database"
	"github.com/tobilg/caddyserver-shop-module/schema"
	"go.uber.org/zap"
)

var duckdbFixture = []string{
	`CREATE TABLE companies (id INTEGER PRIMARY KEY, name VARCHAR NOT NULL)`,
	`CREATE TABLE users (id INTEGER PRIMARY KEY, email VARCHAR NOT NULL, company_id INTEGER)`,
	`CREATE TABLE orders (
		id INTEGER PRIMARY KEY,
		customer_id INTEGER NOT NULL,
		status VARCHAR NOT NULL,
		total_amount DECIMAL(12, 3) NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE order_items (
		id INTEGER PRIMARY KEY,
		order_id INTEGER NOT NULL,
		product_name VARCHAR NOT NULL,
		unit_price DECIMAL(12, 3) NOT NULL
	)`,
	`CREATE TABLE products (
		id INTEGER PRIMARY KEY,
		name VARCHAR NOT NULL,
		description TEXT,
		price DECIMAL(12, 3) NOT NULL,
		height DECIMAL(10, 3),
		stock INTEGER NOT NULL,
		rating DOUBLE,
		is_active BOOLEAN NOT NULL,
		tags JSON,
		attributes JSON,
		created_at TIMESTAMP NOT NULL
	)`,
	`INSERT INTO companies VALUES (1, 'Acme Corp'), (2, 'Globex')`,
	`INSERT INTO users VALUES (1, 'ann@acme.com', 1), (2, 'bob@globex.com', 2), (3, 'cat@acme.com', 1)`,
	`INSERT INTO orders VALUES
		(1, 1, 'paid', 10.565, TIMESTAMP '2024-12-31 23:59:59'),
		(2, 2, 'pending', 20, TIMESTAMP '2025-01-01 00:00:00'),
		(3, 3, 'shipped', 30.5, TIMESTAMP '2025-01-15 10:00:00'),
		(4, 1, 'cancelled', 5, TIMESTAMP '2025-02-01 00:00:00')`,
	`INSERT INTO order_items VALUES
		(1, 1, 'Phone X', 500),
		(2, 1, 'phone case', 15),
		(3, 2, 'Tablet', 300),
		(4, 3, 'Phone Y', 450)`,
	`INSERT INTO products VALUES
		(1, 'Phone X', 'A phone', 10, 10.567, 5, 4.5, true, '["sale","new"]',
			'[{"name":"color","values":[{"value":"Red"},{"value":"Blue"}]},{"name":"size","values":[{"value":"XL"}]}]',
			TIMESTAMP '2025-01-01 09:00:00'),
		(2, 'Tablet', NULL, 9.5, NULL, 0, NULL, false, '["new"]',
			'[{"name":"color","values":[{"value":"Black"}]}]',
			TIMESTAMP '2025-01-02 09:00:00'),
		(3, 'phone case', 'Fits Phone X', 10, 1.2, 100, NULL, true, '[]', '[]',
			TIMESTAMP '2025-01-03 09:00:00')`,
}

func setupDuckDBEngine(t *testing.T, extra ...string) *Engine {
	t.Helper()
	mgr, err := database.NewManager(database.Config{
		Driver:       "duckdb",
		DSN:          ":memory:",
		Threads:      1,
		QueryTimeout: 30 * time.Second,
		Logger:       zap.NewNop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })

	for _, stmt := range append(duckdbFixture, extra...) {
		_, err := mgr.Exec(stmt)
		require.NoError(t, err, stmt)
	}

	resolver := schema.NewIntrospector(mgr, nil, testDefinitions...)
	require.NoError(t, resolver.Warm(context.Background()))
	return NewEngine(mgr, resolver, Options{})
}

func ids(t *testing.T, res *Result) []int64 {
	t.Helper()
	out := make([]int64, 0, len(res.Items))
	for _, item := range res.Items {
		switch id := item["id"].(type) {
		case int32:
			out = append(out, int64(id))
		case int64:
			out = append(out, id)
		default:
			t.Fatalf("unexpected id type %T", id)
		}
	}
	return out
}

func list(t *testing.T, e *Engine, entity string, params map[string]string, search []string, view *View) *Result {
	t.Helper()
	res, err := e.List(context.Background(), encode(params), search, entity, view)
	require.NoError(t, err)
	return res
}

func TestIntegrationColumnFilterSubstring(t *testing.T) {
	e := setupDuckDBEngine(t)

	res := list(t, e, "products", map[string]string{"columnFilters": `[["name","phone"]]`}, nil, nil)
	assert.Equal(t, []int64{1, 3}, ids(t, res))
	assert.Equal(t, int64(2), res.Total)
}

func TestIntegrationDateRange(t *testing.T) {
	e := setupDuckDBEngine(t)

	res := list(t, e, "orders", map[string]string{"dateRange": `["created_at","01-01-2025",""]`}, nil, nil)
	assert.Equal(t, []int64{2, 3, 4}, ids(t, res))

	res = list(t, e, "orders", map[string]string{"dateRange": `["created_at","01-01-2025","15-01-2025"]`}, nil, nil)
	assert.Equal(t, []int64{2, 3}, ids(t, res))

	res = list(t, e, "orders", map[string]string{"dateRange": `["created_at","","31-12-2024"]`}, nil, nil)
	assert.Equal(t, []int64{1}, ids(t, res))
}

func TestIntegrationRelationPath(t *testing.T) {
	e := setupDuckDBEngine(t)

	res := list(t, e, "orders", map[string]string{"columnFilters": `[["customer.email","@acme.com"]]`}, nil, nil)
	assert.Equal(t, []int64{1, 3, 4}, ids(t, res))

	res = list(t, e, "orders", map[string]string{"columnFilters": `[["customer.company.name","globex"]]`}, nil, nil)
	assert.Equal(t, []int64{2}, ids(t, res))
}

func TestIntegrationToManyFilterDoesNotDuplicate(t *testing.T) {
	e := setupDuckDBEngine(t)

	res := list(t, e, "orders", map[string]string{
		"columnFilters": `[["items.product_name","phone"]]`,
		"sort":          `[["customer.email"],["desc"]]`,
	}, nil, nil)
	assert.Equal(t, int64(2), res.Total)
	assert.Equal(t, []int64{3, 1}, ids(t, res))
}

func TestIntegrationView(t *testing.T) {
	e := setupDuckDBEngine(t)
	view := &View{Fields: []Field{
		{Name: "id"},
		{Name: "status"},
		{Name: "total_amount"},
		{Name: "customer_email", Source: "customer.email"},
		{Name: "company", Source: "customer.company.name", Nullable: true},
	}}

	res := list(t, e, "orders", map[string]string{"limit": "1"}, nil, view)
	require.Len(t, res.Items, 1)
	item := res.Items[0]
	assert.Equal(t, "paid", item["status"])
	assert.Equal(t, json.Number("10.57"), item["total_amount"])
	assert.Equal(t, "ann@acme.com", item["customer_email"])
	assert.Equal(t, "Acme Corp", item["company"])
	assert.Len(t, item, 5)
	assert.Equal(t, int64(4), res.TotalPages)
}

func TestIntegrationMonetaryAndPassthrough(t *testing.T) {
	e := setupDuckDBEngine(t)

	res := list(t, e, "products", map[string]string{"sort": `[["id"],["asc"]]`}, nil, nil)
	require.Len(t, res.Items, 3)

	first := res.Items[0]
	assert.Equal(t, json.Number("10.00"), first["price"])
	assert.Equal(t, json.Number("10.567"), first["height"])
	assert.Equal(t, true, first["is_active"])
	assert.JSONEq(t, `["sale","new"]`, string(first["tags"].(json.RawMessage)))

	second := res.Items[1]
	assert.Equal(t, json.Number("9.50"), second["price"])
	assert.Nil(t, second["height"])
	assert.Nil(t, second["description"])
}

func TestIntegrationSearch(t *testing.T) {
	e := setupDuckDBEngine(t)

	res := list(t, e, "products", map[string]string{"searchTerm": "TAB"}, []string{"name", "description"}, nil)
	assert.Equal(t, []int64{2}, ids(t, res))

	res = list(t, e, "products", map[string]string{"searchTerm": "phone x"}, []string{"name", "description"}, nil)
	assert.Equal(t, []int64{1, 3}, ids(t, res))
}

func TestIntegrationTypedFilters(t *testing.T) {
	e := setupDuckDBEngine(t)

	tests := []struct {
		params map[string]string
		want   []int64
	}{
		{map[string]string{"columnFilters": `[["is_active","false"]]`}, []int64{2}},
		{map[string]string{"columnFilters": `[["stock",100]]`}, []int64{3}},
		{map[string]string{"columnFilters": `[["price","9.5"]]`}, []int64{2}},
		{map[string]string{"numberRange": `["price",9.5,10]`}, []int64{1, 2, 3}},
		{map[string]string{"numberRange": `["price",null,"9.99"]`}, []int64{2}},
		{map[string]string{"numberRange": `["stock",1,null]`}, []int64{1, 3}},
		{map[string]string{"stringArrayFilters": `[["tags",["sale"]]]`}, []int64{1}},
		{map[string]string{"stringArrayFilters": `[["tags",["new","missing"]]]`}, []int64{1, 2}},
		{map[string]string{"objectArrayFilters": `[["attributes",["name","color"],["values",["value","Red"]]]]`}, []int64{1}},
		{map[string]string{"objectArrayFilters": `[["attributes",["values",["value",["Black","XL"]]]]]`}, []int64{1, 2}},
		{map[string]string{"objectArrayFilters": `[["attributes",["name","size"],["values",["value","Red"]]]]`}, []int64{}},
	}

	for _, tt := range tests {
		res := list(t, e, "products", tt.params, nil, nil)
		assert.Equal(t, tt.want, ids(t, res), "params %v", tt.params)
	}
}

func TestIntegrationSortStability(t *testing.T) {
	e := setupDuckDBEngine(t)

	res := list(t, e, "products", map[string]string{"sort": `[["price"],["asc"]]`}, nil, nil)
	assert.Equal(t, []int64{2, 1, 3}, ids(t, res))

	res = list(t, e, "products", map[string]string{"sort": `[["price"],["desc"]]`}, nil, nil)
	assert.Equal(t, []int64{1, 3, 2}, ids(t, res))
}

func TestIntegrationPaginationTotality(t *testing.T) {
	e := setupDuckDBEngine(t,
		`INSERT INTO products
			SELECT i, 'Bulk ' || i, NULL, 1, NULL, 0, NULL, true, '[]', '[]', TIMESTAMP '2025-01-01 00:00:00'
			FROM range(4, 51) t(i)`,
	)

	for _, limit := range []int{1, 7, 50, 200} {
		seen := map[int64]bool{}
		var total int64
		for page := 1; ; page++ {
			res := list(t, e, "products", map[string]string{
				"sort":  `[["price"],["asc"]]`,
				"limit": fmt.Sprint(limit),
				"page":  fmt.Sprint(page),
			}, nil, nil)
			total = res.Total
			if len(res.Items) == 0 {
				break
			}
			assert.LessOrEqual(t, len(res.Items), limit)
			for _, id := range ids(t, res) {
				assert.False(t, seen[id], "duplicate id %d at limit %d", id, limit)
				seen[id] = true
			}
		}
		assert.Equal(t, int64(50), total)
		assert.Len(t, seen, 50, "limit %d", limit)
	}
}

func TestIntegrationSkipPagination(t *testing.T) {
	e := setupDuckDBEngine(t)

	res := list(t, e, "products", map[string]string{"skip": "1", "limit": "1", "page": "3"}, nil, nil)
	assert.Equal(t, []int64{2}, ids(t, res))
	assert.Equal(t, 2, res.Page)
	assert.Equal(t, int64(3), res.TotalPages)
}
