package listquery

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tobilg/caddyserver-shop-module/database"
	"github.com/tobilg/caddyserver-shop-module/money"
	"github.com/tobilg/caddyserver-shop-module/schema"
	"gopkg.in/inf.v0"
)

// statement is a compiled list query, ready to execute. It is immutable
// and shared through the plan cache.
type statement struct {
	entity    string
	countSQL  string
	selectSQL string
	args      []interface{}
	// selected are the columns of selectSQL in order.
	selected    []selectedColumn
	projections []projection
	monetary    money.Registry
	page        int
	limit       int
	offset      int
}

type selectedColumn struct {
	name string
	kind schema.Kind
}

// compiler folds a Query into a statement for one entity.
type compiler struct {
	ctx      context.Context
	resolver Resolver
	dialect  database.Dialect
	entity   *schema.Entity
	joins    *joinPlanner
	errs     fieldErrors
	// fatal is a non-request error hit during resolution.
	fatal error
}

func (e *Engine) compile(ctx context.Context, q *Query, entityName string, searchColumns []string, view *View) (*statement, error) {
	entity, err := e.resolver.Describe(ctx, entityName)
	if err != nil {
		if errors.Is(err, schema.ErrUnknownEntity) {
			return nil, internalError("describe %s: %w", entityName, err)
		}
		return nil, storageUnavailable(err)
	}

	dialect := e.store.Dialect()
	c := &compiler{
		ctx:      ctx,
		resolver: e.resolver,
		dialect:  dialect,
		entity:   entity,
		joins:    newJoinPlanner(dialect),
	}

	search, err := c.search(q.SearchTerm, searchColumns)
	if err != nil {
		return nil, err
	}
	where := c.filters(q)
	if search != nil {
		where = append(andPredicate{search}, where...)
	}
	order := c.order(q.Sort)
	projections, err := c.view(view)
	if err != nil {
		return nil, err
	}

	if c.fatal != nil {
		return nil, c.fatal
	}
	if err := c.errs.err(); err != nil {
		return nil, err
	}

	st := &statement{
		entity:      entity.Name,
		projections: projections,
		monetary:    e.monetary,
		page:        q.Page,
		limit:       q.Limit,
		offset:      q.Offset,
	}
	var extra []string
	for _, p := range projections {
		if p.monetary {
			extra = append(extra, p.name)
		}
	}
	if len(extra) > 0 {
		st.monetary = e.monetary.With(extra...)
	}
	c.render(st, where, order, projections)
	return st, nil
}

// resolve resolves a request path. Unknown paths are recorded as field
// errors and yield nil.
func (c *compiler) resolve(param, path string) *schema.ResolvedPath {
	p, err := c.resolver.ResolvePath(c.ctx, c.entity.Name, path)
	if err == nil {
		return p
	}
	var perr *schema.PathError
	if errors.As(err, &perr) {
		c.errs.add(InvalidField, param, path, perr.Reason)
	} else if c.fatal == nil {
		c.fatal = storageUnavailable(err)
	}
	return nil
}

func (c *compiler) base(column string) string {
	return baseAlias + "." + c.dialect.QuoteIdent(column)
}

// search ORs a substring match of term over the declared base columns.
func (c *compiler) search(term string, columns []string) (predicate, error) {
	if term == "" || len(columns) == 0 {
		return nil, nil
	}
	var or orPredicate
	for _, name := range columns {
		col, ok := c.entity.Column(name)
		if !ok {
			return nil, internalError("search column %s is not a column of %s", name, c.entity.Name)
		}
		expr := c.base(name)
		if !col.Kind.Textual() || col.Kind == schema.KindEnum {
			expr = c.dialect.TextCast(expr)
		}
		or = append(or, contains{expr: expr, value: term})
	}
	return or, nil
}

func (c *compiler) filters(q *Query) andPredicate {
	var where andPredicate

	for _, f := range q.ColumnFilters {
		p := c.resolve(ParamColumnFilters, f.Path)
		if p == nil {
			continue
		}
		if leaf := c.columnFilter(p, f.Value); leaf != nil {
			where = append(where, leaf)
		}
	}

	for _, f := range q.StringArrayFilters {
		p := c.jsonColumn(ParamStringArrayFilters, f.Path)
		if p == nil {
			continue
		}
		where = append(where, arrayContainsAny{expr: c.joins.use(p, true), values: f.Values})
	}

	for _, f := range q.ObjectArrayFilters {
		p := c.jsonColumn(ParamObjectArrayFilters, f.Path)
		if p == nil {
			continue
		}
		conds := make([]database.ElementCondition, len(f.Conditions))
		for i, cond := range f.Conditions {
			conds[i] = elementCondition(cond)
		}
		where = append(where, objectArrayMatch{expr: c.joins.use(p, true), conditions: conds})
	}

	if r := q.DateRange; r != nil {
		where = append(where, c.dateRange(r)...)
	}
	if r := q.NumberRange; r != nil {
		where = append(where, c.numberRange(r)...)
	}
	return where
}

func elementCondition(cond ObjectCondition) database.ElementCondition {
	ec := database.ElementCondition{Key: cond.Key, Values: cond.Values}
	if cond.Nested != nil {
		nested := elementCondition(*cond.Nested)
		ec.Nested = &nested
	}
	return ec
}

// columnFilter matches text by substring and numbers and booleans by
// equality after coercion.
func (c *compiler) columnFilter(p *schema.ResolvedPath, value string) predicate {
	switch p.Column.Kind {
	case schema.KindString, schema.KindText:
		return contains{expr: c.joins.use(p, true), value: value}
	case schema.KindEnum, schema.KindDatetime, schema.KindJSON:
		return contains{expr: c.dialect.TextCast(c.joins.use(p, true)), value: value}
	case schema.KindInt:
		n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			c.errs.add(InvalidQuery, ParamColumnFilters, p.Path, "value must be an integer")
			return nil
		}
		return comparison{expr: c.joins.use(p, true), op: "=", value: n}
	case schema.KindBool:
		b, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			c.errs.add(InvalidQuery, ParamColumnFilters, p.Path, "value must be a boolean")
			return nil
		}
		return comparison{expr: c.joins.use(p, true), op: "=", value: b}
	case schema.KindFloat, schema.KindDecimal:
		cmp, reason := c.numberComparison(p.Column.Kind, value)
		if reason != "" {
			c.errs.add(InvalidQuery, ParamColumnFilters, p.Path, "value "+reason)
			return nil
		}
		cmp.expr, cmp.op = c.joins.use(p, true), "="
		return cmp
	default:
		c.fatal = internalError("column %s has unknown kind %q", p.Path, p.Column.Kind)
		return nil
	}
}

// numberComparison parses a comparand in plain decimal notation. Decimal
// columns bind the normalized digits as text behind a store cast so the
// comparison stays exact; other numeric kinds bind a float64. A non-empty
// reason rejects the value.
func (c *compiler) numberComparison(kind schema.Kind, s string) (comparison, string) {
	s = strings.TrimSpace(s)
	d, ok := new(inf.Dec).SetString(s)
	if !ok {
		return comparison{}, "must be a number"
	}
	if kind != schema.KindDecimal {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return comparison{}, "must be a number"
		}
		return comparison{value: f}, ""
	}

	// SetString never yields a negative scale.
	scale := int(d.Scale())
	digits := len(strings.TrimPrefix(d.UnscaledBig().String(), "-"))
	if digits > database.MaxDecimalDigits || scale > database.MaxDecimalDigits {
		return comparison{}, fmt.Sprintf("must have at most %d digits", database.MaxDecimalDigits)
	}
	return comparison{
		value: d.String(),
		cast:  func(param string) string { return c.dialect.DecimalParam(param, scale) },
	}, ""
}

func (c *compiler) jsonColumn(param, path string) *schema.ResolvedPath {
	p := c.resolve(param, path)
	if p == nil {
		return nil
	}
	if p.Column.Kind != schema.KindJSON {
		c.errs.add(InvalidQuery, param, path, "not a JSON array column")
		return nil
	}
	return p
}

func (c *compiler) dateRange(r *DateRange) []predicate {
	p := c.resolve(ParamDateRange, r.Column)
	if p == nil {
		return nil
	}
	if p.Column.Kind != schema.KindDatetime {
		c.errs.add(InvalidQuery, ParamDateRange, r.Column, "not a date column")
		return nil
	}
	if r.From == nil && r.To == nil {
		return nil
	}
	expr := c.joins.use(p, true)
	var preds []predicate
	if r.From != nil {
		preds = append(preds, comparison{expr: expr, op: ">=", value: c.dialect.TimeValue(*r.From)})
	}
	if r.To != nil {
		end := r.To.Add(24 * time.Hour)
		preds = append(preds, comparison{expr: expr, op: "<", value: c.dialect.TimeValue(end)})
	}
	return preds
}

func (c *compiler) numberRange(r *NumberRange) []predicate {
	p := c.resolve(ParamNumberRange, r.Column)
	if p == nil {
		return nil
	}
	if !p.Column.Kind.Numeric() {
		c.errs.add(InvalidQuery, ParamNumberRange, r.Column, "not a numeric column")
		return nil
	}
	bounds := []struct {
		value *string
		op    string
	}{{r.Lo, ">="}, {r.Hi, "<="}}

	var parsed []comparison
	for _, b := range bounds {
		if b.value == nil {
			continue
		}
		cmp, reason := c.numberComparison(p.Column.Kind, *b.value)
		if reason != "" {
			c.errs.add(InvalidQuery, ParamNumberRange, r.Column, fmt.Sprintf("invalid number %q: %s", *b.value, reason))
			return nil
		}
		cmp.op = b.op
		parsed = append(parsed, cmp)
	}
	if len(parsed) == 0 {
		return nil
	}
	expr := c.joins.use(p, true)
	preds := make([]predicate, len(parsed))
	for i, cmp := range parsed {
		cmp.expr = expr
		preds[i] = cmp
	}
	return preds
}

type orderTerm struct {
	expr string
	desc bool
}

func (c *compiler) order(keys []SortKey) []orderTerm {
	var terms []orderTerm
	for _, k := range keys {
		p := c.resolve(ParamSort, k.Path)
		if p == nil {
			continue
		}
		if p.ToMany() {
			c.errs.add(InvalidQuery, ParamSort, k.Path, "cannot sort by a to-many relation")
			continue
		}
		terms = append(terms, orderTerm{expr: c.joins.use(p, false), desc: k.Desc})
	}
	return terms
}

// view compiles the projection and registers the joins it needs.
func (c *compiler) view(v *View) ([]projection, error) {
	if v == nil {
		projections := make([]projection, len(c.entity.Columns))
		for i, col := range c.entity.Columns {
			projections[i] = projection{name: col.Name, column: col.Name, kind: col.Kind, nullable: col.Nullable}
		}
		return projections, nil
	}

	projections := make([]projection, 0, len(v.Fields))
	for _, f := range v.Fields {
		source := f.source()
		p, err := c.resolver.ResolvePath(c.ctx, c.entity.Name, source)
		if err != nil {
			var perr *schema.PathError
			if errors.As(err, &perr) {
				return nil, internalError("view field %s of %s: %w", f.Name, c.entity.Name, err)
			}
			return nil, storageUnavailable(err)
		}
		if p.ToMany() {
			return nil, internalError("view field %s of %s projects a to-many relation", f.Name, c.entity.Name)
		}
		var expr string
		if len(p.Hops) > 0 {
			expr = c.joins.use(p, false)
		}
		projections = append(projections, projection{
			name:     f.Name,
			column:   source,
			expr:     expr,
			kind:     p.Column.Kind,
			nullable: f.Nullable,
			monetary: f.Monetary,
		})
	}
	return projections, nil
}

// selectExpr reads decimals, JSON and enums as text so every driver
// returns them the same way.
func selectExpr(d database.Dialect, kind schema.Kind, expr string) string {
	switch kind {
	case schema.KindDecimal, schema.KindJSON, schema.KindEnum:
		return d.TextCast(expr)
	default:
		return expr
	}
}

// render writes the COUNT and SELECT statements. Both share one rendering
// of the predicate, so they bind the same arguments.
func (c *compiler) render(st *statement, where andPredicate, order []orderTerm, projections []projection) {
	d := c.dialect
	r := &renderer{dialect: d}
	pk := c.base(c.entity.PrimaryKey)

	var predicate string
	if len(where) > 0 {
		predicate = where.render(r)
	}
	st.args = r.args

	from := fmt.Sprintf(" FROM %s AS %s", d.QuoteIdent(c.entity.Table), baseAlias)
	isFilter := func(j *join) bool { return j.filter }
	inner := func(*join) string { return "INNER" }
	left := func(*join) string { return "LEFT" }

	var countJoins, selectJoins, whereClause string
	if c.joins.semiJoin() {
		sub := "SELECT " + pk + from + c.joins.clauses(isFilter, inner) + " WHERE " + predicate
		whereClause = " WHERE " + pk + " IN (" + sub + ")"
		selectJoins = c.joins.clauses(func(j *join) bool { return j.outer }, left)
	} else {
		if predicate != "" {
			whereClause = " WHERE " + predicate
		}
		countJoins = c.joins.clauses(isFilter, inner)
		selectJoins = c.joins.clauses(func(*join) bool { return true }, func(j *join) string {
			if j.filter {
				return "INNER"
			}
			return "LEFT"
		})
	}

	st.countSQL = "SELECT COUNT(*)" + from + countJoins + whereClause

	columns := make([]string, 0, len(c.entity.Columns)+len(projections))
	for _, col := range c.entity.Columns {
		columns = append(columns, selectExpr(d, col.Kind, c.base(col.Name))+" AS "+d.QuoteIdent(col.Name))
		st.selected = append(st.selected, selectedColumn{name: col.Name, kind: col.Kind})
	}
	seen := make(map[string]bool)
	for _, p := range projections {
		if p.expr == "" || seen[p.column] {
			continue
		}
		seen[p.column] = true
		columns = append(columns, selectExpr(d, p.kind, p.expr)+" AS "+d.QuoteIdent(p.column))
		st.selected = append(st.selected, selectedColumn{name: p.column, kind: p.kind})
	}

	terms := make([]string, 0, len(order)+1)
	pkSorted := false
	for _, t := range order {
		dir := "ASC"
		if t.desc {
			dir = "DESC"
		}
		terms = append(terms, t.expr+" "+dir)
		if t.expr == pk {
			pkSorted = true
		}
	}
	if !pkSorted {
		terms = append(terms, pk+" ASC")
	}

	st.selectSQL = "SELECT " + strings.Join(columns, ", ") + from + selectJoins + whereClause +
		" ORDER BY " + strings.Join(terms, ", ") +
		fmt.Sprintf(" LIMIT %d OFFSET %d", st.limit, st.offset)
}
