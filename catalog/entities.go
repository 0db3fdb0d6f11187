// Package catalog declares the shop model served by the list endpoints:
// entity relations, endpoint search columns and item views.
package catalog

import "github.com/tobilg/caddyserver-shop-module/schema"

func toOne(name, target, localKey string) schema.Relation {
	return schema.Relation{Name: name, Target: target, LocalKey: localKey, RemoteKey: "id", Cardinality: schema.ToOne}
}

func toMany(name, target, remoteKey string) schema.Relation {
	return schema.Relation{Name: name, Target: target, LocalKey: "id", RemoteKey: remoteKey, Cardinality: schema.ToMany}
}

// Definitions returns the shop entities. Entity names equal table names.
func Definitions() []schema.Definition {
	return []schema.Definition{
		{Name: "users", Relations: []schema.Relation{
			toMany("orders", "orders", "customer_id"),
			toMany("reviews", "reviews", "user_id"),
		}},
		{Name: "categories", Relations: []schema.Relation{
			toMany("products", "products", "category_id"),
		}},
		{Name: "products", Relations: []schema.Relation{
			toOne("category", "categories", "category_id"),
			toMany("reviews", "reviews", "product_id"),
		}},
		{Name: "coupons", Kinds: map[string]schema.Kind{"discount_type": schema.KindEnum}},
		{Name: "faqs"},
		{Name: "orders", Kinds: map[string]schema.Kind{"status": schema.KindEnum}, Relations: []schema.Relation{
			toOne("customer", "users", "customer_id"),
			toOne("coupon", "coupons", "coupon_id"),
			toMany("items", "order_items", "order_id"),
			toMany("payments", "payments", "order_id"),
		}},
		{Name: "order_items", Relations: []schema.Relation{
			toOne("order", "orders", "order_id"),
			toOne("product", "products", "product_id"),
		}},
		{Name: "reviews", Relations: []schema.Relation{
			toOne("product", "products", "product_id"),
			toOne("user", "users", "user_id"),
		}},
		{Name: "wishlists", Relations: []schema.Relation{
			toOne("user", "users", "user_id"),
			toOne("product", "products", "product_id"),
		}},
		{Name: "notifications", Kinds: map[string]schema.Kind{"type": schema.KindEnum}, Relations: []schema.Relation{
			toOne("user", "users", "user_id"),
		}},
		{Name: "contact_messages", Kinds: map[string]schema.Kind{"status": schema.KindEnum}},
		{Name: "payments", Kinds: map[string]schema.Kind{"status": schema.KindEnum}, Relations: []schema.Relation{
			toOne("order", "orders", "order_id"),
			toOne("user", "users", "user_id"),
		}},
	}
}
