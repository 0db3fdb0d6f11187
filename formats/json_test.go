package formats

import (
	"encoding/json"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/tobilg/caddyserver-shop-module/listquery"
)

func TestWriteJSON_Envelope(t *testing.T) {
	rec := httptest.NewRecorder()
	if err := WriteJSON(rec, createTestResult(), nil); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	if rec.Code != 200 {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected Content-Type 'application/json', got '%s'", ct)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("Failed to parse JSON response: %v", err)
	}

	for _, key := range []string{"items", "page", "per_page", "total", "total_pages"} {
		if _, ok := result[key]; !ok {
			t.Errorf("Expected '%s' key in response", key)
		}
	}
	if _, ok := result["_links"]; ok {
		t.Error("Did not expect '_links' without links config")
	}

	items, ok := result["items"].([]interface{})
	if !ok {
		t.Fatal("Expected 'items' array in response")
	}
	if len(items) != 3 {
		t.Errorf("Expected 3 items, got %d", len(items))
	}
	if result["total"] != float64(3) || result["total_pages"] != float64(1) || result["per_page"] != float64(20) {
		t.Errorf("Unexpected pagination fields: %v", result)
	}
}

func TestWriteJSON_MoneyAndRawValues(t *testing.T) {
	rec := httptest.NewRecorder()
	if err := WriteJSON(rec, createTestResult(), nil); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	body := rec.Body.String()
	// Money is written as a number literal with two decimals.
	if !strings.Contains(body, `"total_amount":10.57`) {
		t.Errorf("Expected total_amount 10.57 in body: %s", body)
	}
	if !strings.Contains(body, `"total_amount":0.00`) {
		t.Errorf("Expected total_amount 0.00 in body: %s", body)
	}
	// JSON columns are embedded, not quoted.
	if !strings.Contains(body, `"shipping_address":{"city":"Berlin"}`) {
		t.Errorf("Expected embedded shipping_address in body: %s", body)
	}
	if !strings.Contains(body, `"shipping_address":null`) {
		t.Errorf("Expected null shipping_address in body: %s", body)
	}
}

func TestWriteJSON_EmptyResult(t *testing.T) {
	rec := httptest.NewRecorder()
	if err := WriteJSON(rec, createEmptyResult(), nil); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	body := rec.Body.String()
	if !strings.Contains(body, `"items":[]`) {
		t.Errorf("Expected empty items array, got %s", body)
	}
	if !strings.Contains(body, `"total_pages":0`) {
		t.Errorf("Expected total_pages 0, got %s", body)
	}
}

func TestWriteJSON_WithHATEOASLinks(t *testing.T) {
	res := listquery.NewResult(nil, testColumns(), 2, 20, 45)

	rec := httptest.NewRecorder()
	linksConfig := &LinksConfig{
		Enabled:  true,
		BasePath: "/shop/api/orders",
		Query:    url.Values{"limit": []string{"20"}},
	}
	if err := WriteJSON(rec, res, linksConfig); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("Failed to parse JSON response: %v", err)
	}

	links, ok := result["_links"].(map[string]interface{})
	if !ok {
		t.Fatal("Expected '_links' object in response")
	}

	for _, linkName := range []string{"self", "first", "last", "prev", "next"} {
		if _, ok := links[linkName]; !ok {
			t.Errorf("Expected '%s' link", linkName)
		}
	}
	if last := links["last"].(string); !strings.Contains(last, "page=3") {
		t.Errorf("Expected last link to page 3, got %s", last)
	}
}

func TestGenerateHATEOASLinks(t *testing.T) {
	tests := []struct {
		name       string
		page       int
		totalPages int64
		expected   []string
		missing    []string
	}{
		{
			name:       "single page",
			page:       1,
			totalPages: 1,
			expected:   []string{"self", "first", "last"},
			missing:    []string{"prev", "next"},
		},
		{
			name:       "first of many",
			page:       1,
			totalPages: 5,
			expected:   []string{"self", "first", "last", "next"},
			missing:    []string{"prev"},
		},
		{
			name:       "last of many",
			page:       5,
			totalPages: 5,
			expected:   []string{"self", "first", "last", "prev"},
			missing:    []string{"next"},
		},
		{
			name:       "no results",
			page:       1,
			totalPages: 0,
			expected:   []string{"self", "first"},
			missing:    []string{"last", "prev", "next"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			links := generateHATEOASLinks("/shop/api/products", url.Values{}, tt.page, tt.totalPages)
			for _, name := range tt.expected {
				if _, ok := links[name]; !ok {
					t.Errorf("Expected '%s' link", name)
				}
			}
			for _, name := range tt.missing {
				if _, ok := links[name]; ok {
					t.Errorf("Did not expect '%s' link", name)
				}
			}
		})
	}
}

func TestGenerateHATEOASLinks_PreservesQueryParams(t *testing.T) {
	query := url.Values{
		"columnFilters": []string{`[["status","paid"]]`},
		"limit":         []string{"10"},
		"skip":          []string{"20"},
		"links":         []string{"true"},
	}

	links := generateHATEOASLinks("/shop/api/orders", query, 3, 4)

	next, err := url.Parse(links["next"])
	if err != nil {
		t.Fatalf("Failed to parse next link: %v", err)
	}
	if next.Path != "/shop/api/orders" {
		t.Errorf("Expected path /shop/api/orders, got %s", next.Path)
	}
	q := next.Query()
	if got := q.Get("columnFilters"); got != `[["status","paid"]]` {
		t.Errorf("Expected columnFilters to be preserved, got %q", got)
	}
	if got := q.Get("limit"); got != "10" {
		t.Errorf("Expected limit=10, got %q", got)
	}
	if got := q.Get("page"); got != "4" {
		t.Errorf("Expected page=4, got %q", got)
	}
	if q.Has("skip") {
		t.Error("Expected skip to be replaced by page")
	}
	if got := q.Get("links"); got != "true" {
		t.Errorf("Expected links=true, got %q", got)
	}
}
