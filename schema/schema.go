// Package schema describes the shop entities the list engine queries: the
// columns introspected from the store and the relations declared between
// tables.
package schema

import "strings"

// Kind is the value class of a column.
type Kind string

const (
	KindInt      Kind = "int"
	KindFloat    Kind = "float"
	KindDecimal  Kind = "decimal"
	KindBool     Kind = "bool"
	KindString   Kind = "string"
	KindText     Kind = "text"
	KindDatetime Kind = "datetime"
	KindJSON     Kind = "json"
	KindEnum     Kind = "enum"
)

// Textual reports whether values of the kind are matched by substring.
func (k Kind) Textual() bool {
	return k == KindString || k == KindText || k == KindEnum
}

// Numeric reports whether the kind holds numbers.
func (k Kind) Numeric() bool {
	return k == KindInt || k == KindFloat || k == KindDecimal
}

// KindFromType maps a store data type (information_schema or sqlite
// declared type) to a Kind.
func KindFromType(dataType string) Kind {
	t := strings.ToUpper(strings.TrimSpace(dataType))
	switch {
	case strings.HasPrefix(t, "ENUM"):
		return KindEnum
	case strings.HasPrefix(t, "INTERVAL"):
		return KindString
	case strings.Contains(t, "JSON"), strings.Contains(t, "[]"),
		strings.HasPrefix(t, "ARRAY"), strings.HasPrefix(t, "STRUCT"), strings.HasPrefix(t, "MAP"):
		return KindJSON
	case strings.Contains(t, "INT"):
		return KindInt
	case strings.HasPrefix(t, "BOOL"):
		return KindBool
	case strings.HasPrefix(t, "DECIMAL"), strings.HasPrefix(t, "NUMERIC"):
		return KindDecimal
	case strings.Contains(t, "FLOAT"), strings.Contains(t, "DOUBLE"), strings.Contains(t, "REAL"):
		return KindFloat
	case strings.Contains(t, "DATE"), strings.Contains(t, "TIME"):
		return KindDatetime
	case strings.Contains(t, "TEXT"), strings.Contains(t, "CLOB"):
		return KindText
	default:
		return KindString
	}
}

// Column is a resolved column of an entity.
type Column struct {
	Name     string `json:"name"`
	Kind     Kind   `json:"kind"`
	Nullable bool   `json:"nullable"`
	Primary  bool   `json:"primary,omitempty"`
}

// Cardinality tells how many target rows a relation reaches.
type Cardinality string

const (
	ToOne  Cardinality = "to_one"
	ToMany Cardinality = "to_many"
)

// Relation links an entity to a target entity. Joins match
// target.RemoteKey = source.LocalKey.
type Relation struct {
	Name        string      `json:"name"`
	Target      string      `json:"target"`
	LocalKey    string      `json:"local_key"`
	RemoteKey   string      `json:"remote_key"`
	Cardinality Cardinality `json:"cardinality"`
}

// Definition is the static part of an entity: what cannot be introspected.
type Definition struct {
	Name       string
	Table      string
	PrimaryKey string
	Relations  []Relation
	// Kinds overrides the introspected kind of individual columns, e.g. to
	// mark a VARCHAR status column as an enum.
	Kinds map[string]Kind
}

func (d Definition) table() string {
	if d.Table != "" {
		return d.Table
	}
	return d.Name
}

func (d Definition) primaryKey() string {
	if d.PrimaryKey != "" {
		return d.PrimaryKey
	}
	return "id"
}

// Entity is a fully described entity. It is immutable once published.
type Entity struct {
	Name       string              `json:"name"`
	Table      string              `json:"table"`
	PrimaryKey string              `json:"primary_key"`
	Columns    []Column            `json:"columns"`
	Relations  map[string]Relation `json:"relations,omitempty"`

	index map[string]int
}

// Column returns the named column.
func (e *Entity) Column(name string) (Column, bool) {
	i, ok := e.index[name]
	if !ok {
		return Column{}, false
	}
	return e.Columns[i], true
}

// Relation returns the named relation.
func (e *Entity) Relation(name string) (Relation, bool) {
	r, ok := e.Relations[name]
	return r, ok
}
