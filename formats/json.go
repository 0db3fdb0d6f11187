package formats

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/tobilg/caddyserver-shop-module/listquery"
)

// LinksConfig contains configuration for generating HATEOAS links.
type LinksConfig struct {
	Enabled  bool       // Whether to include _links in response
	BasePath string     // Base path for generating links (e.g., "/shop/api/orders")
	Query    url.Values // Original query parameters to preserve
}

type envelope struct {
	*listquery.Result
	Links map[string]string `json:"_links,omitempty"`
}

// WriteJSON writes a list result as the paginated JSON envelope.
func WriteJSON(w http.ResponseWriter, res *listquery.Result, linksConfig *LinksConfig) error {
	body := envelope{Result: res}
	if linksConfig != nil && linksConfig.Enabled {
		body.Links = generateHATEOASLinks(linksConfig.BasePath, linksConfig.Query, res.Page, res.TotalPages)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	return nil
}

// generateHATEOASLinks generates navigation links for paginated responses.
// Links always address pages, so skip is dropped in favour of page.
func generateHATEOASLinks(basePath string, query url.Values, page int, totalPages int64) map[string]string {
	links := make(map[string]string)

	buildURL := func(targetPage int64) string {
		q := make(url.Values)
		for key, values := range query {
			if key == listquery.ParamPage || key == listquery.ParamSkip || key == "links" {
				continue
			}
			for _, v := range values {
				q.Add(key, v)
			}
		}
		q.Set(listquery.ParamPage, strconv.FormatInt(targetPage, 10))
		q.Set("links", "true")
		return fmt.Sprintf("%s?%s", basePath, q.Encode())
	}

	current := int64(page)
	links["self"] = buildURL(current)
	links["first"] = buildURL(1)
	if totalPages > 0 {
		links["last"] = buildURL(totalPages)
	}
	if current > 1 {
		links["prev"] = buildURL(current - 1)
	}
	if current < totalPages {
		links["next"] = buildURL(current + 1)
	}

	return links
}
