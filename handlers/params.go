package handlers

import (
	"net/http"
	"strings"
)

// Response formats selectable through the Accept header.
const (
	FormatJSON    = "json"
	FormatCSV     = "csv"
	FormatArrow   = "arrow"
	FormatParquet = "parquet"
)

// ParseLinks checks if links parameter is set to true.
// When true, HATEOAS navigation links are included in JSON responses.
func ParseLinks(r *http.Request) bool {
	links := r.URL.Query().Get("links")
	return links == "true" || links == "1"
}

// GetAcceptFormat returns the preferred response format based on Accept header.
func GetAcceptFormat(r *http.Request) string {
	accept := r.Header.Get("Accept")

	if strings.Contains(accept, "text/csv") {
		return FormatCSV
	}
	if strings.Contains(accept, "application/parquet") {
		return FormatParquet
	}
	if strings.Contains(accept, "application/vnd.apache.arrow") {
		return FormatArrow
	}

	return FormatJSON
}

// ExtractResource returns the resource of a list path such as
// {prefix}/api/orders, or "" when the path is not a list path.
func ExtractResource(path, prefix string) string {
	rest, ok := strings.CutPrefix(path, strings.TrimSuffix(prefix, "/")+"/api/")
	if !ok {
		return ""
	}
	rest = strings.TrimSuffix(rest, "/")
	if rest == "" || strings.Contains(rest, "/") {
		return ""
	}
	return rest
}
