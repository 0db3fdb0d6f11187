package catalog

import (
	"sort"

	"github.com/tobilg/caddyserver-shop-module/listquery"
)

// Endpoint is a list resource served under /api/{Resource}.
type Endpoint struct {
	Resource      string
	Entity        string
	Summary       string
	SearchColumns []string
	// View is nil for endpoints that return every column.
	View *listquery.View
}

func field(name string) listquery.Field {
	return listquery.Field{Name: name}
}

func nullable(name string) listquery.Field {
	return listquery.Field{Name: name, Nullable: true}
}

func from(name, source string, isNullable bool) listquery.Field {
	return listquery.Field{Name: name, Source: source, Nullable: isNullable}
}

var couponView = &listquery.View{Fields: []listquery.Field{
	field("id"), field("code"), nullable("description"), field("discount_type"),
	field("discount_value"), field("min_order_amount"), field("max_discount_amount"),
	nullable("usage_limit"), field("used_count"), field("is_active"),
	nullable("valid_from"), nullable("valid_until"), field("created_at"),
}}

var productView = &listquery.View{Fields: []listquery.Field{
	field("id"), field("name"), field("sku"), nullable("description"),
	field("price"), field("sale_price"), field("cost_price"),
	field("stock"), nullable("rating"),
	nullable("height"), nullable("width"), nullable("length"), nullable("weight"),
	field("tags"), field("attributes"), field("is_active"),
	nullable("category_id"), from("category_name", "category.name", true),
	field("created_at"), field("updated_at"),
}}

var orderView = &listquery.View{Fields: []listquery.Field{
	field("id"), field("order_number"), field("status"),
	field("subtotal"), field("discount_amount"), field("tax_amount"), field("shipping_fee"), field("total_amount"),
	nullable("shipping_address"), nullable("notes"),
	field("customer_id"), from("customer_email", "customer.email", false),
	from("customer_first_name", "customer.first_name", true), from("customer_last_name", "customer.last_name", true),
	nullable("coupon_id"), from("coupon_code", "coupon.code", true),
	field("created_at"), field("updated_at"),
}}

var reviewView = &listquery.View{Fields: []listquery.Field{
	field("id"), field("product_id"), from("product_name", "product.name", false),
	field("user_id"), from("user_email", "user.email", false),
	field("rating"), nullable("title"), nullable("comment"), field("is_approved"), field("created_at"),
}}

var wishlistView = &listquery.View{Fields: []listquery.Field{
	field("id"), field("user_id"), field("product_id"),
	from("product_name", "product.name", false),
	{Name: "product_price", Source: "product.price", Monetary: true},
	from("product_sale_price", "product.sale_price", true),
	field("created_at"),
}}

var paymentView = &listquery.View{Fields: []listquery.Field{
	field("id"), field("order_id"), from("order_number", "order.order_number", false),
	field("user_id"), field("amount"), field("currency"), field("method"), field("status"),
	nullable("transaction_id"), field("gateway_fee"), field("refunded_amount"),
	nullable("paid_at"), field("created_at"),
}}

var endpoints = []Endpoint{
	{
		Resource:      "coupons",
		Entity:        "coupons",
		Summary:       "List discount coupons",
		SearchColumns: []string{"code", "description"},
		View:          couponView,
	},
	{
		Resource:      "faqs",
		Entity:        "faqs",
		Summary:       "List frequently asked questions",
		SearchColumns: []string{"question", "answer", "category"},
	},
	{
		Resource:      "products",
		Entity:        "products",
		Summary:       "List products",
		SearchColumns: []string{"name", "sku", "description"},
		View:          productView,
	},
	{
		Resource:      "orders",
		Entity:        "orders",
		Summary:       "List orders",
		SearchColumns: []string{"order_number", "notes"},
		View:          orderView,
	},
	{
		Resource:      "reviews",
		Entity:        "reviews",
		Summary:       "List product reviews",
		SearchColumns: []string{"title", "comment"},
		View:          reviewView,
	},
	{
		Resource: "wishlists",
		Entity:   "wishlists",
		Summary:  "List wishlist entries",
		View:     wishlistView,
	},
	{
		Resource:      "notifications",
		Entity:        "notifications",
		Summary:       "List user notifications",
		SearchColumns: []string{"title", "message"},
	},
	{
		Resource:      "contacts",
		Entity:        "contact_messages",
		Summary:       "List contact messages",
		SearchColumns: []string{"name", "email", "subject", "message"},
	},
	{
		Resource:      "payments",
		Entity:        "payments",
		Summary:       "List payments",
		SearchColumns: []string{"transaction_id", "method", "currency"},
		View:          paymentView,
	},
}

var byResource = func() map[string]Endpoint {
	m := make(map[string]Endpoint, len(endpoints))
	for _, ep := range endpoints {
		m[ep.Resource] = ep
	}
	return m
}()

// Endpoints returns every list endpoint.
func Endpoints() []Endpoint {
	return append([]Endpoint(nil), endpoints...)
}

// Resources returns the endpoint resource names, sorted.
func Resources() []string {
	names := make([]string, 0, len(endpoints))
	for _, ep := range endpoints {
		names = append(names, ep.Resource)
	}
	sort.Strings(names)
	return names
}

// Lookup finds the endpoint of a resource.
func Lookup(resource string) (Endpoint, bool) {
	ep, ok := byResource[resource]
	return ep, ok
}
