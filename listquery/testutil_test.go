package listquery

import (
	"context"
	"database/sql"
	"errors"
	"sync/atomic"

	"github.com/tobilg/caddyserver-shop-module/database"
	"github.com/tobilg/caddyserver-shop-module/schema"
)

// staticColumns serves column metadata without a store.
type staticColumns map[string][]database.ColumnInfo

func (s staticColumns) TableColumns(ctx context.Context, table string) ([]database.ColumnInfo, error) {
	cols, ok := s[table]
	if !ok {
		return nil, errors.New("no such table: " + table)
	}
	return cols, nil
}

var testColumns = staticColumns{
	"companies": {
		{Name: "id", DataType: "INTEGER"},
		{Name: "name", DataType: "VARCHAR"},
	},
	"users": {
		{Name: "id", DataType: "INTEGER"},
		{Name: "email", DataType: "VARCHAR"},
		{Name: "company_id", DataType: "INTEGER", Nullable: true},
	},
	"orders": {
		{Name: "id", DataType: "INTEGER"},
		{Name: "customer_id", DataType: "INTEGER"},
		{Name: "status", DataType: "VARCHAR"},
		{Name: "total_amount", DataType: "DECIMAL(12,3)"},
		{Name: "created_at", DataType: "TIMESTAMP"},
	},
	"order_items": {
		{Name: "id", DataType: "INTEGER"},
		{Name: "order_id", DataType: "INTEGER"},
		{Name: "product_name", DataType: "VARCHAR"},
		{Name: "unit_price", DataType: "DECIMAL(12,3)"},
	},
	"products": {
		{Name: "id", DataType: "INTEGER"},
		{Name: "name", DataType: "VARCHAR"},
		{Name: "description", DataType: "TEXT", Nullable: true},
		{Name: "price", DataType: "DECIMAL(12,3)"},
		{Name: "height", DataType: "DECIMAL(10,3)", Nullable: true},
		{Name: "stock", DataType: "INTEGER"},
		{Name: "rating", DataType: "DOUBLE", Nullable: true},
		{Name: "is_active", DataType: "BOOLEAN"},
		{Name: "tags", DataType: "JSON"},
		{Name: "attributes", DataType: "JSON"},
		{Name: "created_at", DataType: "TIMESTAMP"},
	},
}

var testDefinitions = []schema.Definition{
	{Name: "companies"},
	{Name: "users", Relations: []schema.Relation{
		{Name: "company", Target: "companies", LocalKey: "company_id", RemoteKey: "id", Cardinality: schema.ToOne},
	}},
	{Name: "orders", Kinds: map[string]schema.Kind{"status": schema.KindEnum}, Relations: []schema.Relation{
		{Name: "customer", Target: "users", LocalKey: "customer_id", RemoteKey: "id", Cardinality: schema.ToOne},
		{Name: "items", Target: "order_items", LocalKey: "id", RemoteKey: "order_id", Cardinality: schema.ToMany},
	}},
	{Name: "order_items", Relations: []schema.Relation{
		{Name: "order", Target: "orders", LocalKey: "order_id", RemoteKey: "id", Cardinality: schema.ToOne},
	}},
	{Name: "products"},
}

func newTestResolver() *schema.Introspector {
	return schema.NewIntrospector(testColumns, nil, testDefinitions...)
}

// recordingStore fails every transaction and counts the attempts.
type recordingStore struct {
	dialect database.Dialect
	calls   int32
}

func (s *recordingStore) Dialect() database.Dialect {
	return s.dialect
}

func (s *recordingStore) ReadTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	atomic.AddInt32(&s.calls, 1)
	return errors.New("store not available in this test")
}

func newCompileEngine(d database.Dialect) (*Engine, *recordingStore) {
	store := &recordingStore{dialect: d}
	return NewEngine(store, newTestResolver(), Options{PlanCacheSize: -1}), store
}
