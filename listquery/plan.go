package listquery

import (
	"fmt"
	"strings"

	"github.com/tobilg/caddyserver-shop-module/database"
	"github.com/tobilg/caddyserver-shop-module/schema"
)

const baseAlias = "t0"

// join is one relation joined into the query.
type join struct {
	alias    string
	parent   string
	relation schema.Relation
	table    string
	// filter joins are INNER; joins used only by sort or the view are LEFT.
	filter bool
	// outer joins are needed by the outer SELECT (sort or view).
	outer bool
	// toMany is set when this join or one of its parents reaches many rows.
	toMany bool
}

func (j *join) clause(d database.Dialect, kind string) string {
	return fmt.Sprintf("%s JOIN %s AS %s ON %s.%s = %s.%s",
		kind, d.QuoteIdent(j.table), j.alias,
		j.alias, d.QuoteIdent(j.relation.RemoteKey),
		j.parent, d.QuoteIdent(j.relation.LocalKey))
}

// joinPlanner assigns one join per (parent alias, relation) in first-use
// order.
type joinPlanner struct {
	dialect database.Dialect
	joins   []*join
	index   map[string]*join
}

func newJoinPlanner(d database.Dialect) *joinPlanner {
	return &joinPlanner{dialect: d, index: make(map[string]*join)}
}

// use joins every hop of p and returns the qualified column expression.
// Usage flags propagate to every join of the chain.
func (jp *joinPlanner) use(p *schema.ResolvedPath, filter bool) string {
	alias := baseAlias
	toMany := false
	for _, hop := range p.Hops {
		key := alias + "." + hop.Relation.Name
		j, ok := jp.index[key]
		if !ok {
			toMany = toMany || hop.Relation.Cardinality == schema.ToMany
			j = &join{
				alias:    fmt.Sprintf("t%d", len(jp.joins)+1),
				parent:   alias,
				relation: hop.Relation,
				table:    hop.Table,
				toMany:   toMany,
			}
			jp.joins = append(jp.joins, j)
			jp.index[key] = j
		}
		toMany = j.toMany
		if filter {
			j.filter = true
		} else {
			j.outer = true
		}
		alias = j.alias
	}
	return alias + "." + jp.dialect.QuoteIdent(p.Column.Name)
}

// semiJoin reports whether a filter reaches a to-many relation, in which
// case filtering must not multiply base rows.
func (jp *joinPlanner) semiJoin() bool {
	for _, j := range jp.joins {
		if j.filter && j.toMany {
			return true
		}
	}
	return false
}

// clauses renders the joins selected by keep with the given join kind.
func (jp *joinPlanner) clauses(keep func(*join) bool, kind func(*join) string) string {
	var b strings.Builder
	for _, j := range jp.joins {
		if !keep(j) {
			continue
		}
		b.WriteByte(' ')
		b.WriteString(j.clause(jp.dialect, kind(j)))
	}
	return b.String()
}
