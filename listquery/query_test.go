package listquery

import (
	"math"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encode(params map[string]string) string {
	v := url.Values{}
	for k, val := range params {
		v.Set(k, val)
	}
	return v.Encode()
}

func requireFieldError(t *testing.T, err error, kind Kind, param string) FieldError {
	t.Helper()
	require.Error(t, err)
	e := AsError(err)
	require.Equal(t, kind, e.Kind, "error: %v", err)
	require.NotEmpty(t, e.Details)
	assert.Equal(t, param, e.Details[0].Param)
	return e.Details[0]
}

func TestParseEmpty(t *testing.T) {
	q, err := Parse("")
	require.NoError(t, err)
	assert.Equal(t, 1, q.Page)
	assert.Equal(t, DefaultLimit, q.Limit)
	assert.Equal(t, 0, q.Offset)
	assert.Empty(t, q.ColumnFilters)
	assert.Nil(t, q.DateRange)
}

func TestParseIgnoresUnknownAndEmpty(t *testing.T) {
	q, err := Parse(encode(map[string]string{
		"unknown":       "whatever",
		"columnFilters": "",
		"sort":          "",
		"searchTerm":    "  ",
		"page":          "",
	}))
	require.NoError(t, err)
	assert.Empty(t, q.SearchTerm)
	assert.Empty(t, q.ColumnFilters)
	assert.Empty(t, q.Sort)
	assert.Equal(t, 1, q.Page)
}

func TestParsePagination(t *testing.T) {
	tests := []struct {
		name                string
		params              map[string]string
		page, limit, offset int
	}{
		{"page", map[string]string{"page": "3", "limit": "10"}, 3, 10, 20},
		{"skip", map[string]string{"skip": "25", "limit": "10"}, 3, 10, 25},
		{"skip wins over page", map[string]string{"skip": "5", "page": "4", "limit": "5"}, 2, 5, 5},
		{"page clamped", map[string]string{"page": "0"}, 1, 20, 0},
		{"negative skip clamped", map[string]string{"skip": "-10"}, 1, 20, 0},
		{"limit clamped high", map[string]string{"limit": "500"}, 1, 200, 0},
		{"limit clamped low", map[string]string{"limit": "0"}, 1, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := Parse(encode(tt.params))
			require.NoError(t, err)
			assert.Equal(t, tt.page, q.Page, "page")
			assert.Equal(t, tt.limit, q.Limit, "limit")
			assert.Equal(t, tt.offset, q.Offset, "offset")
		})
	}
}

func TestParseHugePagination(t *testing.T) {
	q, err := Parse(encode(map[string]string{"page": "9223372036854775807", "limit": "200"}))
	require.NoError(t, err)
	assert.Equal(t, math.MaxInt/200, q.Page)
	assert.Equal(t, (math.MaxInt/200-1)*200, q.Offset)
	assert.GreaterOrEqual(t, q.Offset, 0)

	q, err = Parse(encode(map[string]string{"page": "99999999999999999999999", "limit": "7"}))
	require.NoError(t, err)
	assert.Equal(t, math.MaxInt/7, q.Page)
	assert.GreaterOrEqual(t, q.Offset, 0)

	q, err = Parse(encode(map[string]string{"skip": "99999999999999999999"}))
	require.NoError(t, err)
	assert.Equal(t, math.MaxInt-DefaultLimit, q.Offset)
	assert.Positive(t, q.Page)

	q, err = Parse(encode(map[string]string{"limit": "99999999999999999999"}))
	require.NoError(t, err)
	assert.Equal(t, MaxLimit, q.Limit)

	q, err = Parse(encode(map[string]string{"limit": "-99999999999999999999", "page": "-99999999999999999999"}))
	require.NoError(t, err)
	assert.Equal(t, 1, q.Limit)
	assert.Equal(t, 1, q.Page)
	assert.Equal(t, 0, q.Offset)
}

func TestParseDefaultLimit(t *testing.T) {
	q, err := Parser{DefaultLimit: 50}.Parse("")
	require.NoError(t, err)
	assert.Equal(t, 50, q.Limit)
}

func TestParseNonIntegerPagination(t *testing.T) {
	for _, param := range []string{"page", "skip", "limit"} {
		_, err := Parse(encode(map[string]string{param: "two"}))
		requireFieldError(t, err, InvalidQuery, param)
	}
}

func TestParseColumnFilters(t *testing.T) {
	q, err := Parse(encode(map[string]string{
		"columnFilters": `[["name","car"],["description","product"],["stock",5],["is_active",true],["notes",""],["sku",null]]`,
	}))
	require.NoError(t, err)
	assert.Equal(t, []ColumnFilter{
		{Path: "name", Value: "car"},
		{Path: "description", Value: "product"},
		{Path: "stock", Value: "5"},
		{Path: "is_active", Value: "true"},
	}, q.ColumnFilters)
}

func TestParseColumnFiltersArity(t *testing.T) {
	for _, raw := range []string{
		`[["name"]]`,
		`[["name","a","b"]]`,
		`["name","a"]`,
		`{"name":"a"}`,
		`[[1,"a"]]`,
		`[["name",["a"]]]`,
		`not json`,
	} {
		_, err := Parse(encode(map[string]string{"columnFilters": raw}))
		requireFieldError(t, err, InvalidQuery, ParamColumnFilters)
	}
}

func TestParseStringArrayFilters(t *testing.T) {
	q, err := Parse(encode(map[string]string{
		"stringArrayFilters": `[["tags",["tag1","tag2"]],["labels",[]]]`,
	}))
	require.NoError(t, err)
	assert.Equal(t, []StringArrayFilter{{Path: "tags", Values: []string{"tag1", "tag2"}}}, q.StringArrayFilters)

	_, err = Parse(encode(map[string]string{"stringArrayFilters": `[["tags","tag1"]]`}))
	requireFieldError(t, err, InvalidQuery, ParamStringArrayFilters)
}

func TestParseObjectArrayFilters(t *testing.T) {
	q, err := Parse(encode(map[string]string{
		"objectArrayFilters": `[["attributes",["name","color"],["values",["value","Red"]]]]`,
	}))
	require.NoError(t, err)
	require.Len(t, q.ObjectArrayFilters, 1)

	f := q.ObjectArrayFilters[0]
	assert.Equal(t, "attributes", f.Path)
	assert.Equal(t, []ObjectCondition{
		{Key: "name", Values: []string{"color"}},
		{Key: "values", Nested: &ObjectCondition{Key: "value", Values: []string{"Red"}}},
	}, f.Conditions)

	q, err = Parse(encode(map[string]string{
		"objectArrayFilters": `[["attributes",["values",["value",["Red","Blue"]]]]]`,
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"Red", "Blue"}, q.ObjectArrayFilters[0].Conditions[0].Nested.Values)
}

func TestParseObjectArrayFiltersTooDeep(t *testing.T) {
	_, err := Parse(encode(map[string]string{
		"objectArrayFilters": `[["attributes",["values",["value",["sub",["Red"]]]]]]`,
	}))
	fe := requireFieldError(t, err, InvalidQuery, ParamObjectArrayFilters)
	assert.Equal(t, "attributes", fe.Field)
	assert.Contains(t, fe.Reason, "deeper than 2")
}

func TestParseObjectArrayFiltersBadKey(t *testing.T) {
	for _, raw := range []string{
		`[["attributes",["na'me","color"]]]`,
		`[["attributes",["name"]]]`,
		`[["attributes"]]`,
		`[["attributes",["values",["va lue","Red"]]]]`,
	} {
		_, err := Parse(encode(map[string]string{"objectArrayFilters": raw}))
		requireFieldError(t, err, InvalidQuery, ParamObjectArrayFilters)
	}
}

func TestParseDateRange(t *testing.T) {
	q, err := Parse(encode(map[string]string{"dateRange": `["created_at","01-01-2025","01-12-2025"]`}))
	require.NoError(t, err)
	require.NotNil(t, q.DateRange)
	assert.Equal(t, "created_at", q.DateRange.Column)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), *q.DateRange.From)
	assert.Equal(t, time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), *q.DateRange.To)

	q, err = Parse(encode(map[string]string{"dateRange": `["created_at","01-01-2025",""]`}))
	require.NoError(t, err)
	assert.NotNil(t, q.DateRange.From)
	assert.Nil(t, q.DateRange.To)

	q, err = Parse(encode(map[string]string{"dateRange": `["created_at",null,"31-01-2025"]`}))
	require.NoError(t, err)
	assert.Nil(t, q.DateRange.From)
	assert.NotNil(t, q.DateRange.To)
}

func TestParseDateRangeInvalid(t *testing.T) {
	for _, raw := range []string{
		`["created_at","2025-01-01",""]`,
		`["created_at","31-02-2025",""]`,
		`["created_at","01-01-2025"]`,
		`["created_at",20250101,""]`,
	} {
		_, err := Parse(encode(map[string]string{"dateRange": raw}))
		requireFieldError(t, err, InvalidQuery, ParamDateRange)
	}
}

func TestParseNumberRange(t *testing.T) {
	q, err := Parse(encode(map[string]string{"numberRange": `["amount",0,100000]`}))
	require.NoError(t, err)
	require.NotNil(t, q.NumberRange)
	assert.Equal(t, "0", *q.NumberRange.Lo)
	assert.Equal(t, "100000", *q.NumberRange.Hi)

	q, err = Parse(encode(map[string]string{"numberRange": `["price","9.99",null]`}))
	require.NoError(t, err)
	assert.Equal(t, "9.99", *q.NumberRange.Lo)
	assert.Nil(t, q.NumberRange.Hi)

	_, err = Parse(encode(map[string]string{"numberRange": `["amount",0]`}))
	requireFieldError(t, err, InvalidQuery, ParamNumberRange)

	_, err = Parse(encode(map[string]string{"numberRange": `["amount",true,1]`}))
	requireFieldError(t, err, InvalidQuery, ParamNumberRange)
}

func TestParseSort(t *testing.T) {
	q, err := Parse(encode(map[string]string{"sort": `[["created_at","price"],["asc","DESC"]]`}))
	require.NoError(t, err)
	assert.Equal(t, []SortKey{{Path: "created_at"}, {Path: "price", Desc: true}}, q.Sort)
}

func TestParseSortInvalid(t *testing.T) {
	for _, raw := range []string{
		`[["created_at","price"],["asc"]]`,
		`[["created_at"],["up"]]`,
		`[["created_at"]]`,
		`["created_at","asc"]`,
	} {
		_, err := Parse(encode(map[string]string{"sort": raw}))
		requireFieldError(t, err, InvalidQuery, ParamSort)
	}
}

func TestParseCollectsAllErrors(t *testing.T) {
	_, err := Parse(encode(map[string]string{
		"sort":  `[["a"],[]]`,
		"limit": "x",
	}))
	require.Error(t, err)
	e := AsError(err)
	assert.Len(t, e.Details, 2)
	assert.Equal(t, 400, e.Status())
}
