package listquery

import (
	"strings"

	"github.com/tobilg/caddyserver-shop-module/database"
)

// predicate is a node of the WHERE tree. Leaves reference qualified
// columns rendered by the compiler and bind every value.
type predicate interface {
	render(r *renderer) string
}

// renderer accumulates bound arguments in placeholder order.
type renderer struct {
	dialect database.Dialect
	args    []interface{}
}

func (r *renderer) bind(v interface{}) string {
	r.args = append(r.args, v)
	return r.dialect.Placeholder(len(r.args))
}

type andPredicate []predicate

func (p andPredicate) render(r *renderer) string {
	return joinPredicates(r, p, " AND ")
}

type orPredicate []predicate

func (p orPredicate) render(r *renderer) string {
	return joinPredicates(r, p, " OR ")
}

func joinPredicates(r *renderer, preds []predicate, sep string) string {
	if len(preds) == 1 {
		return preds[0].render(r)
	}
	parts := make([]string, len(preds))
	for i, p := range preds {
		parts[i] = p.render(r)
	}
	return "(" + strings.Join(parts, sep) + ")"
}

// comparison is expr <op> value.
// comparison binds value; cast, when set, wraps the placeholder.
type comparison struct {
	expr  string
	op    string
	value interface{}
	cast  func(param string) string
}

func (p comparison) render(r *renderer) string {
	param := r.bind(p.value)
	if p.cast != nil {
		param = p.cast(param)
	}
	return p.expr + " " + p.op + " " + param
}

// contains is a case-insensitive substring match. Wildcards in the value
// keep their LIKE meaning.
type contains struct {
	expr  string
	value string
}

func (p contains) render(r *renderer) string {
	return r.dialect.ILike(p.expr, r.bind("%"+p.value+"%"))
}

type arrayContainsAny struct {
	expr   string
	values []string
}

func (p arrayContainsAny) render(r *renderer) string {
	return r.dialect.StringArrayContains(p.expr, r.bind, p.values)
}

type objectArrayMatch struct {
	expr       string
	conditions []database.ElementCondition
}

func (p objectArrayMatch) render(r *renderer) string {
	return r.dialect.ObjectArrayMatches(p.expr, r.bind, p.conditions)
}
