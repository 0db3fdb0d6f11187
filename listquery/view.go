package listquery

import (
	"encoding/json"

	"github.com/tobilg/caddyserver-shop-module/schema"
)

// Field projects one value into a result item.
type Field struct {
	// Name is the key in the result item.
	Name string
	// Source is a column or a relation path such as "customer.email".
	// Empty means the column called Name.
	Source string
	// Nullable fields keep NULL. Other fields render NULL as the zero
	// value of their kind.
	Nullable bool
	// Monetary marks the field as money in addition to the default registry.
	Monetary bool
}

func (f Field) source() string {
	if f.Source != "" {
		return f.Source
	}
	return f.Name
}

// View is the projection of an endpoint. A nil View projects every column
// of the base entity.
type View struct {
	Fields []Field
}

// ResultColumn describes one key of the result items, in view order.
type ResultColumn struct {
	Name     string
	Kind     schema.Kind
	Monetary bool
}

// projection is a compiled view field.
type projection struct {
	name     string
	column   string // select alias
	expr     string // qualified expression of traversal fields
	kind     schema.Kind
	nullable bool
	monetary bool
}

// zeroValue is what a non-nullable field renders for NULL.
func zeroValue(kind schema.Kind) interface{} {
	switch kind {
	case schema.KindInt:
		return int64(0)
	case schema.KindFloat:
		return float64(0)
	case schema.KindDecimal:
		return json.Number("0")
	case schema.KindBool:
		return false
	case schema.KindString, schema.KindText, schema.KindEnum:
		return ""
	default:
		return nil
	}
}
