package listquery

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Query parameter names of the list grammar.
const (
	ParamSearchTerm         = "searchTerm"
	ParamColumnFilters      = "columnFilters"
	ParamStringArrayFilters = "stringArrayFilters"
	ParamObjectArrayFilters = "objectArrayFilters"
	ParamDateRange          = "dateRange"
	ParamNumberRange        = "numberRange"
	ParamSort               = "sort"
	ParamPage               = "page"
	ParamSkip               = "skip"
	ParamLimit              = "limit"
)

const (
	// DefaultLimit is the page size when none is requested.
	DefaultLimit = 20
	// MaxLimit caps the page size.
	MaxLimit = 200
	// DateLayout is the DD-MM-YYYY layout of dateRange bounds.
	DateLayout = "02-01-2006"
)

var keyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Query is a parsed list request. It is not modified after Parse.
type Query struct {
	SearchTerm         string
	ColumnFilters      []ColumnFilter
	StringArrayFilters []StringArrayFilter
	ObjectArrayFilters []ObjectArrayFilter
	DateRange          *DateRange
	NumberRange        *NumberRange
	Sort               []SortKey
	Page               int
	Limit              int
	Offset             int
}

// ColumnFilter matches Path against Value.
type ColumnFilter struct {
	Path  string
	Value string
}

// StringArrayFilter matches rows whose JSON array at Path holds any of Values.
type StringArrayFilter struct {
	Path   string
	Values []string
}

// ObjectArrayFilter matches rows whose JSON array at Path holds an object
// meeting every condition.
type ObjectArrayFilter struct {
	Path       string
	Conditions []ObjectCondition
}

// ObjectCondition matches Key against any of Values, or, when Nested is
// set, requires the array under Key to hold an object matching Nested.
type ObjectCondition struct {
	Key    string
	Values []string
	Nested *ObjectCondition
}

// DateRange bounds a datetime column. To covers its whole day. A nil
// bound is open.
type DateRange struct {
	Column string
	From   *time.Time
	To     *time.Time
}

// NumberRange bounds a numeric column inclusively. A nil bound is open.
type NumberRange struct {
	Column string
	Lo     *string
	Hi     *string
}

// SortKey orders by Path.
type SortKey struct {
	Path string
	Desc bool
}

// Parser decodes list query strings.
type Parser struct {
	// DefaultLimit applies when limit is absent. Zero means DefaultLimit.
	DefaultLimit int
}

// Parse decodes a raw query string with the default limit.
func Parse(raw string) (*Query, error) {
	return Parser{}.Parse(raw)
}

// Parse decodes a raw query string into a Query. Every malformed parameter
// is reported in the returned error's details.
func (p Parser) Parse(raw string) (*Query, error) {
	values, err := url.ParseQuery(raw)
	if err != nil {
		return nil, invalidQuery(FieldError{Param: "query", Reason: "malformed query string"})
	}

	get := func(name string) string {
		return strings.TrimSpace(values.Get(name))
	}

	var errs fieldErrors
	q := &Query{SearchTerm: get(ParamSearchTerm)}

	if raw := get(ParamColumnFilters); raw != "" {
		q.ColumnFilters = parseColumnFilters(raw, &errs)
	}
	if raw := get(ParamStringArrayFilters); raw != "" {
		q.StringArrayFilters = parseStringArrayFilters(raw, &errs)
	}
	if raw := get(ParamObjectArrayFilters); raw != "" {
		q.ObjectArrayFilters = parseObjectArrayFilters(raw, &errs)
	}
	if raw := get(ParamDateRange); raw != "" {
		q.DateRange = parseDateRange(raw, &errs)
	}
	if raw := get(ParamNumberRange); raw != "" {
		q.NumberRange = parseNumberRange(raw, &errs)
	}
	if raw := get(ParamSort); raw != "" {
		q.Sort = parseSort(raw, &errs)
	}

	limit := p.DefaultLimit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if v, ok := parseInt(get(ParamLimit), ParamLimit, &errs); ok {
		limit = v
	}
	q.Limit = clamp(limit, 1, MaxLimit)

	page, hasPage := parseInt(get(ParamPage), ParamPage, &errs)
	skip, hasSkip := parseInt(get(ParamSkip), ParamSkip, &errs)
	switch {
	case hasSkip:
		q.Offset = clamp(skip, 0, math.MaxInt-q.Limit)
		q.Page = q.Offset/q.Limit + 1
	case hasPage:
		// Keeps (Page-1)*Limit from overflowing.
		q.Page = clamp(page, 1, math.MaxInt/q.Limit)
		q.Offset = (q.Page - 1) * q.Limit
	default:
		q.Page = 1
	}

	if err := errs.err(); err != nil {
		return nil, err
	}
	return q, nil
}

// clamp bounds v below by lo and, when hi >= lo, above by hi.
func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if hi >= lo && v > hi {
		return hi
	}
	return v
}

func parseInt(raw, param string, errs *fieldErrors) (int, bool) {
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if errors.Is(err, strconv.ErrRange) {
		// Out of range integers saturate and are clamped by the caller.
		if strings.HasPrefix(raw, "-") {
			return math.MinInt, true
		}
		return math.MaxInt, true
	}
	if err != nil {
		errs.add(InvalidQuery, param, "", "must be an integer")
		return 0, false
	}
	return v, true
}

func decode(raw, param string, errs *fieldErrors) (interface{}, bool) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil || dec.More() {
		errs.add(InvalidQuery, param, "", "must be valid JSON")
		return nil, false
	}
	return v, true
}

func decodeList(raw, param string, errs *fieldErrors) ([]interface{}, bool) {
	v, ok := decode(raw, param, errs)
	if !ok {
		return nil, false
	}
	list, ok := v.([]interface{})
	if !ok {
		errs.add(InvalidQuery, param, "", "must be a JSON array")
		return nil, false
	}
	return list, true
}

// scalar renders a JSON string, number or bool as a string.
func scalar(v interface{}) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case json.Number:
		return x.String(), true
	case bool:
		return strconv.FormatBool(x), true
	default:
		return "", false
	}
}

func columnName(v interface{}) (string, bool) {
	s, ok := v.(string)
	s = strings.TrimSpace(s)
	return s, ok && s != ""
}

func parseColumnFilters(raw string, errs *fieldErrors) []ColumnFilter {
	list, ok := decodeList(raw, ParamColumnFilters, errs)
	if !ok {
		return nil
	}
	var filters []ColumnFilter
	for _, item := range list {
		pair, ok := item.([]interface{})
		if !ok || len(pair) != 2 {
			errs.add(InvalidQuery, ParamColumnFilters, "", "each filter must be [column, value]")
			continue
		}
		path, ok := columnName(pair[0])
		if !ok {
			errs.add(InvalidQuery, ParamColumnFilters, "", "column must be a non-empty string")
			continue
		}
		if pair[1] == nil {
			continue
		}
		value, ok := scalar(pair[1])
		if !ok {
			errs.add(InvalidQuery, ParamColumnFilters, path, "value must be a scalar")
			continue
		}
		if value == "" {
			continue
		}
		filters = append(filters, ColumnFilter{Path: path, Value: value})
	}
	return filters
}

func parseStringArrayFilters(raw string, errs *fieldErrors) []StringArrayFilter {
	list, ok := decodeList(raw, ParamStringArrayFilters, errs)
	if !ok {
		return nil
	}
	var filters []StringArrayFilter
	for _, item := range list {
		pair, ok := item.([]interface{})
		if !ok || len(pair) != 2 {
			errs.add(InvalidQuery, ParamStringArrayFilters, "", "each filter must be [column, [values]]")
			continue
		}
		path, ok := columnName(pair[0])
		if !ok {
			errs.add(InvalidQuery, ParamStringArrayFilters, "", "column must be a non-empty string")
			continue
		}
		rawValues, ok := pair[1].([]interface{})
		if !ok {
			errs.add(InvalidQuery, ParamStringArrayFilters, path, "values must be an array")
			continue
		}
		values, ok := scalars(rawValues)
		if !ok {
			errs.add(InvalidQuery, ParamStringArrayFilters, path, "values must be scalars")
			continue
		}
		if len(values) == 0 {
			continue
		}
		filters = append(filters, StringArrayFilter{Path: path, Values: values})
	}
	return filters
}

// scalars renders a list of scalars, dropping empty strings.
func scalars(list []interface{}) ([]string, bool) {
	out := make([]string, 0, len(list))
	for _, v := range list {
		s, ok := scalar(v)
		if !ok {
			return nil, false
		}
		if s != "" {
			out = append(out, s)
		}
	}
	return out, true
}

func parseObjectArrayFilters(raw string, errs *fieldErrors) []ObjectArrayFilter {
	list, ok := decodeList(raw, ParamObjectArrayFilters, errs)
	if !ok {
		return nil
	}
	var filters []ObjectArrayFilter
	for _, item := range list {
		entry, ok := item.([]interface{})
		if !ok || len(entry) < 2 {
			errs.add(InvalidQuery, ParamObjectArrayFilters, "", "each filter must be [column, [key, value], ...]")
			continue
		}
		path, ok := columnName(entry[0])
		if !ok {
			errs.add(InvalidQuery, ParamObjectArrayFilters, "", "column must be a non-empty string")
			continue
		}
		filter := ObjectArrayFilter{Path: path}
		valid := true
		for _, rawCond := range entry[1:] {
			cond, reason := parseObjectCondition(rawCond, 1)
			if reason != "" {
				errs.add(InvalidQuery, ParamObjectArrayFilters, path, reason)
				valid = false
				break
			}
			if cond != nil {
				filter.Conditions = append(filter.Conditions, *cond)
			}
		}
		if valid && len(filter.Conditions) > 0 {
			filters = append(filters, filter)
		}
	}
	return filters
}

// parseObjectCondition decodes [key, scalar], [key, [scalars]] at the
// innermost level, or [key, [subkey, ...]] one level deeper. A nil
// condition with no reason has only empty values.
func parseObjectCondition(v interface{}, depth int) (*ObjectCondition, string) {
	pair, ok := v.([]interface{})
	if !ok || len(pair) != 2 {
		return nil, "each condition must be [key, value]"
	}
	key, ok := pair[0].(string)
	if !ok || !keyPattern.MatchString(key) {
		return nil, "condition key must be an identifier"
	}

	if s, ok := scalar(pair[1]); ok {
		if s == "" {
			return nil, ""
		}
		return &ObjectCondition{Key: key, Values: []string{s}}, ""
	}

	inner, ok := pair[1].([]interface{})
	if !ok {
		return nil, "condition value must be a scalar or an array"
	}

	// The outer level nests as [subkey, value]; the inner level may only
	// list scalars.
	if depth == 1 {
		if len(inner) == 2 {
			if _, isKey := inner[0].(string); isKey {
				nested, reason := parseObjectCondition(inner, depth+1)
				if reason != "" || nested == nil {
					return nil, reason
				}
				return &ObjectCondition{Key: key, Nested: nested}, ""
			}
		}
		return nil, "nested condition must be [key, value]"
	}

	values, ok := scalars(inner)
	if !ok {
		return nil, fmt.Sprintf("nesting deeper than %d levels", MaxObjectDepth)
	}
	if len(values) == 0 {
		return nil, ""
	}
	return &ObjectCondition{Key: key, Values: values}, ""
}

// MaxObjectDepth bounds objectArrayFilters nesting.
const MaxObjectDepth = 2

func parseDateRange(raw string, errs *fieldErrors) *DateRange {
	list, ok := decodeList(raw, ParamDateRange, errs)
	if !ok {
		return nil
	}
	if len(list) != 3 {
		errs.add(InvalidQuery, ParamDateRange, "", "must be [column, from, to]")
		return nil
	}
	column, ok := columnName(list[0])
	if !ok {
		errs.add(InvalidQuery, ParamDateRange, "", "column must be a non-empty string")
		return nil
	}
	r := &DateRange{Column: column}
	for i, bound := range []**time.Time{&r.From, &r.To} {
		v := list[i+1]
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			errs.add(InvalidQuery, ParamDateRange, column, "dates must be DD-MM-YYYY strings")
			return nil
		}
		if s = strings.TrimSpace(s); s == "" {
			continue
		}
		t, err := time.Parse(DateLayout, s)
		if err != nil {
			errs.add(InvalidQuery, ParamDateRange, column, fmt.Sprintf("invalid date %q, expected DD-MM-YYYY", s))
			return nil
		}
		*bound = &t
	}
	return r
}

func parseNumberRange(raw string, errs *fieldErrors) *NumberRange {
	list, ok := decodeList(raw, ParamNumberRange, errs)
	if !ok {
		return nil
	}
	if len(list) != 3 {
		errs.add(InvalidQuery, ParamNumberRange, "", "must be [column, lo, hi]")
		return nil
	}
	column, ok := columnName(list[0])
	if !ok {
		errs.add(InvalidQuery, ParamNumberRange, "", "column must be a non-empty string")
		return nil
	}
	r := &NumberRange{Column: column}
	for i, bound := range []**string{&r.Lo, &r.Hi} {
		v := list[i+1]
		if v == nil {
			continue
		}
		s, ok := scalar(v)
		if _, isBool := v.(bool); !ok || isBool {
			errs.add(InvalidQuery, ParamNumberRange, column, "bounds must be numbers")
			return nil
		}
		if s = strings.TrimSpace(s); s == "" {
			continue
		}
		*bound = &s
	}
	return r
}

func parseSort(raw string, errs *fieldErrors) []SortKey {
	list, ok := decodeList(raw, ParamSort, errs)
	if !ok {
		return nil
	}
	if len(list) != 2 {
		errs.add(InvalidQuery, ParamSort, "", "must be [[columns], [directions]]")
		return nil
	}
	columns, ok1 := list[0].([]interface{})
	directions, ok2 := list[1].([]interface{})
	if !ok1 || !ok2 {
		errs.add(InvalidQuery, ParamSort, "", "must be [[columns], [directions]]")
		return nil
	}
	if len(columns) != len(directions) {
		errs.add(InvalidQuery, ParamSort, "", "columns and directions must have the same length")
		return nil
	}
	keys := make([]SortKey, 0, len(columns))
	for i := range columns {
		path, ok := columnName(columns[i])
		if !ok {
			errs.add(InvalidQuery, ParamSort, "", "column must be a non-empty string")
			return nil
		}
		dir, _ := directions[i].(string)
		switch strings.ToLower(strings.TrimSpace(dir)) {
		case "asc":
			keys = append(keys, SortKey{Path: path})
		case "desc":
			keys = append(keys, SortKey{Path: path, Desc: true})
		default:
			errs.add(InvalidQuery, ParamSort, path, "direction must be asc or desc")
			return nil
		}
	}
	return keys
}
