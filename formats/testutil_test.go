package formats

import (
	"encoding/json"
	"time"

	"github.com/tobilg/caddyserver-shop-module/listquery"
	"github.com/tobilg/caddyserver-shop-module/schema"
)

// testColumns mirrors an order view with one field of every kind.
func testColumns() []listquery.ResultColumn {
	return []listquery.ResultColumn{
		{Name: "id", Kind: schema.KindInt},
		{Name: "order_number", Kind: schema.KindString},
		{Name: "status", Kind: schema.KindEnum},
		{Name: "total_amount", Kind: schema.KindDecimal, Monetary: true},
		{Name: "paid", Kind: schema.KindBool},
		{Name: "rating", Kind: schema.KindFloat},
		{Name: "shipping_address", Kind: schema.KindJSON},
		{Name: "created_at", Kind: schema.KindDatetime},
		{Name: "notes", Kind: schema.KindText},
	}
}

// createTestResult returns a page with three items shaped the way the
// engine assembles them. The third item carries NULLs.
func createTestResult() *listquery.Result {
	items := []map[string]interface{}{
		{
			"id":               int64(1),
			"order_number":     "ORD-1",
			"status":           "pending",
			"total_amount":     json.Number("10.57"),
			"paid":             true,
			"rating":           4.5,
			"shipping_address": json.RawMessage(`{"city":"Berlin"}`),
			"created_at":       time.Date(2025, 1, 2, 10, 30, 0, 0, time.UTC),
			"notes":            `leave at "door", please`,
		},
		{
			"id":               int64(2),
			"order_number":     "ORD-2",
			"status":           "shipped",
			"total_amount":     json.Number("0.00"),
			"paid":             false,
			"rating":           float64(3),
			"shipping_address": json.RawMessage(`{"city":"Paris"}`),
			"created_at":       time.Date(2025, 1, 3, 8, 0, 0, 0, time.UTC),
			"notes":            "",
		},
		{
			"id":               int64(3),
			"order_number":     "ORD-3",
			"status":           "pending",
			"total_amount":     json.Number("0.00"),
			"paid":             false,
			"rating":           nil,
			"shipping_address": nil,
			"created_at":       nil,
			"notes":            nil,
		},
	}
	return listquery.NewResult(items, testColumns(), 1, 20, 3)
}

func createEmptyResult() *listquery.Result {
	return listquery.NewResult(nil, testColumns(), 1, 20, 0)
}
