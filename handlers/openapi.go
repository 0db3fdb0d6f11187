package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/tobilg/caddyserver-shop-module/catalog"
	"github.com/tobilg/caddyserver-shop-module/listquery"
	"github.com/tobilg/caddyserver-shop-module/money"
	"github.com/tobilg/caddyserver-shop-module/schema"
)

// OpenAPIHandler serves the OpenAPI specification.
type OpenAPIHandler struct {
	spec map[string]interface{}
}

// NewOpenAPIHandler builds the OpenAPI document of the catalog endpoints.
// Item schemas are typed from resolver; fields it cannot resolve stay
// untyped.
func NewOpenAPIHandler(ctx context.Context, prefix string, resolver listquery.Resolver) *OpenAPIHandler {
	g := &openAPIGenerator{ctx: ctx, prefix: prefix, resolver: resolver}
	return &OpenAPIHandler{spec: g.generateOpenAPISpec()}
}

// ServeHTTP handles HTTP requests for the OpenAPI specification.
func (h *OpenAPIHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		WriteStatus(w, http.StatusMethodNotAllowed, "Only GET method is allowed for OpenAPI specification")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(h.spec)
}

type openAPIGenerator struct {
	ctx      context.Context
	prefix   string
	resolver listquery.Resolver
}

// generateOpenAPISpec generates the OpenAPI 3.0 specification.
func (g *openAPIGenerator) generateOpenAPISpec() map[string]interface{} {
	return map[string]interface{}{
		"openapi": "3.0.3",
		"info": map[string]interface{}{
			"title":       "Caddy Shop List API",
			"description": "Read-only list endpoints over the shop catalog with filtering, search, sorting and pagination encoded in the query string.",
			"version":     "1.0.0",
			"license": map[string]interface{}{
				"name": "MIT",
				"url":  "https://opensource.org/licenses/MIT",
			},
		},
		"servers": []map[string]interface{}{
			{
				"url":         g.prefix,
				"description": "Shop API base path",
			},
		},
		"tags": []map[string]interface{}{
			{
				"name":        "List",
				"description": "Paginated list endpoints",
			},
			{
				"name":        "OpenAPI",
				"description": "API documentation",
			},
		},
		"paths":      g.generatePaths(),
		"components": g.generateComponents(),
	}
}

// generatePaths generates the paths section of the OpenAPI spec.
func (g *openAPIGenerator) generatePaths() map[string]interface{} {
	paths := map[string]interface{}{
		"/openapi.json": map[string]interface{}{
			"get": map[string]interface{}{
				"tags":        []string{"OpenAPI"},
				"summary":     "Get OpenAPI specification",
				"operationId": "getOpenAPISpec",
				"responses": map[string]interface{}{
					"200": map[string]interface{}{
						"description": "OpenAPI specification",
						"content": map[string]interface{}{
							"application/json": map[string]interface{}{
								"schema": map[string]interface{}{"type": "object"},
							},
						},
					},
				},
			},
		},
		"/health": map[string]interface{}{
			"get": map[string]interface{}{
				"summary":     "Health check",
				"description": "Pings the store",
				"operationId": "health",
				"responses": map[string]interface{}{
					"200": map[string]interface{}{"description": "Store reachable"},
					"503": errorResponseRef("Store unreachable"),
				},
			},
		},
	}

	for _, ep := range catalog.Endpoints() {
		paths["/api/"+ep.Resource] = map[string]interface{}{
			"get": g.generateListOperation(ep),
		}
	}
	return paths
}

// generateListOperation generates the GET operation of one endpoint.
func (g *openAPIGenerator) generateListOperation(ep catalog.Endpoint) map[string]interface{} {
	description := "Lists " + strings.ReplaceAll(ep.Resource, "_", " ") + "."
	if len(ep.SearchColumns) > 0 {
		description += " searchTerm matches " + strings.Join(ep.SearchColumns, ", ") + "."
	}

	parameters := make([]map[string]interface{}, 0, len(listParameters)+1)
	for _, name := range listParameters {
		parameters = append(parameters, map[string]interface{}{"$ref": "#/components/parameters/" + name})
	}
	parameters = append(parameters, map[string]interface{}{"$ref": "#/components/parameters/links"})

	return map[string]interface{}{
		"tags":        []string{"List"},
		"summary":     ep.Summary,
		"description": description,
		"operationId": "list" + camel(ep.Resource),
		"parameters":  parameters,
		"responses": map[string]interface{}{
			"200": map[string]interface{}{
				"description": "One page of " + ep.Resource,
				"content": map[string]interface{}{
					"application/json": map[string]interface{}{
						"schema": g.pageSchema(ep),
					},
					"text/csv": map[string]interface{}{
						"schema": map[string]interface{}{"type": "string"},
					},
					"application/parquet": map[string]interface{}{
						"schema": map[string]interface{}{"type": "string", "format": "binary"},
					},
					"application/vnd.apache.arrow.stream": map[string]interface{}{
						"schema": map[string]interface{}{"type": "string", "format": "binary"},
					},
				},
			},
			"400": errorResponseRef("Malformed query or unknown field"),
			"500": errorResponseRef("Internal error"),
			"503": errorResponseRef("Storage unavailable"),
		},
	}
}

func errorResponseRef(description string) map[string]interface{} {
	return map[string]interface{}{
		"description": description,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{
				"schema": map[string]interface{}{"$ref": "#/components/schemas/ErrorResponse"},
			},
		},
	}
}

func (g *openAPIGenerator) pageSchema(ep catalog.Endpoint) map[string]interface{} {
	return map[string]interface{}{
		"allOf": []map[string]interface{}{
			{"$ref": "#/components/schemas/Page"},
			{
				"type": "object",
				"properties": map[string]interface{}{
					"items": map[string]interface{}{
						"type":  "array",
						"items": g.itemSchema(ep),
					},
				},
			},
		},
	}
}

// itemSchema types the fields of an endpoint's view.
func (g *openAPIGenerator) itemSchema(ep catalog.Endpoint) map[string]interface{} {
	properties := make(map[string]interface{})
	registry := money.Default

	if ep.View == nil {
		if g.resolver != nil {
			if entity, err := g.resolver.Describe(g.ctx, ep.Entity); err == nil {
				for _, c := range entity.Columns {
					properties[c.Name] = propertySchema(c.Kind, c.Nullable, registry.Has(c.Name))
				}
			}
		}
		return map[string]interface{}{"type": "object", "properties": properties}
	}

	for _, f := range ep.View.Fields {
		source := f.Source
		if source == "" {
			source = f.Name
		}
		monetary := f.Monetary || registry.Has(f.Name)
		if g.resolver == nil {
			properties[f.Name] = map[string]interface{}{}
			continue
		}
		p, err := g.resolver.ResolvePath(g.ctx, ep.Entity, source)
		if err != nil {
			properties[f.Name] = map[string]interface{}{}
			continue
		}
		properties[f.Name] = propertySchema(p.Column.Kind, f.Nullable, monetary)
	}
	return map[string]interface{}{"type": "object", "properties": properties}
}

func propertySchema(kind schema.Kind, nullable, monetary bool) map[string]interface{} {
	var s map[string]interface{}
	switch {
	case monetary:
		s = map[string]interface{}{"type": "number", "description": "Amount rounded half-up to two decimals"}
	case kind == schema.KindInt:
		s = map[string]interface{}{"type": "integer", "format": "int64"}
	case kind == schema.KindFloat, kind == schema.KindDecimal:
		s = map[string]interface{}{"type": "number"}
	case kind == schema.KindBool:
		s = map[string]interface{}{"type": "boolean"}
	case kind == schema.KindDatetime:
		s = map[string]interface{}{"type": "string", "format": "date-time"}
	case kind == schema.KindJSON:
		s = map[string]interface{}{"description": "JSON value"}
	default:
		s = map[string]interface{}{"type": "string"}
	}
	if nullable {
		s["nullable"] = true
	}
	return s
}

// camel turns contact_messages into ContactMessages.
func camel(s string) string {
	parts := strings.Split(s, "_")
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, "")
}

// listParameters are the grammar parameters shared by every list endpoint.
var listParameters = []string{
	listquery.ParamSearchTerm,
	listquery.ParamColumnFilters,
	listquery.ParamStringArrayFilters,
	listquery.ParamObjectArrayFilters,
	listquery.ParamDateRange,
	listquery.ParamNumberRange,
	listquery.ParamSort,
	listquery.ParamPage,
	listquery.ParamSkip,
	listquery.ParamLimit,
}

func queryParameter(name, description string, valueSchema map[string]interface{}, example interface{}) map[string]interface{} {
	p := map[string]interface{}{
		"name":        name,
		"in":          "query",
		"description": description,
		"schema":      valueSchema,
	}
	if example != nil {
		p["example"] = example
	}
	return p
}

// generateComponents generates the components section of the OpenAPI spec.
func (g *openAPIGenerator) generateComponents() map[string]interface{} {
	jsonString := map[string]interface{}{"type": "string", "description": "JSON-encoded"}

	return map[string]interface{}{
		"parameters": map[string]interface{}{
			listquery.ParamSearchTerm: queryParameter(listquery.ParamSearchTerm,
				"Case-insensitive substring matched against the endpoint's search columns (any of them)",
				map[string]interface{}{"type": "string"}, "phone"),
			listquery.ParamColumnFilters: queryParameter(listquery.ParamColumnFilters,
				`List of [path, value] pairs. Text columns match by case-insensitive substring, numbers and booleans by equality. Paths may traverse up to two relations ("customer.email").`,
				jsonString, `[["status","paid"],["customer.email","@example.com"]]`),
			listquery.ParamStringArrayFilters: queryParameter(listquery.ParamStringArrayFilters,
				"List of [column, [values]]: the JSON array column holds any of the values",
				jsonString, `[["tags",["sale","new"]]]`),
			listquery.ParamObjectArrayFilters: queryParameter(listquery.ParamObjectArrayFilters,
				"List of [column, [key, value]...]: one object of the JSON array column satisfies every condition. A value may be [subkey, value|[values]] to match inside a nested array.",
				jsonString, `[["attributes",["name","color"],["value","red"]]]`),
			listquery.ParamDateRange: queryParameter(listquery.ParamDateRange,
				`[column, from, to] with dates as DD-MM-YYYY. Either bound may be "" for an open range; "to" includes the whole day.`,
				jsonString, `["created_at","01-01-2025",""]`),
			listquery.ParamNumberRange: queryParameter(listquery.ParamNumberRange,
				`[column, lo, hi], inclusive. Either bound may be "" for an open range.`,
				jsonString, `["total_amount","10",""]`),
			listquery.ParamSort: queryParameter(listquery.ParamSort,
				`[[paths], [directions]] with directions "asc" or "desc". Ties break on the primary key.`,
				jsonString, `[["created_at"],["desc"]]`),
			listquery.ParamPage: queryParameter(listquery.ParamPage, "Page number, starting at 1",
				map[string]interface{}{"type": "integer", "minimum": 1, "default": 1}, nil),
			listquery.ParamSkip: queryParameter(listquery.ParamSkip, "Rows to skip. Takes precedence over page.",
				map[string]interface{}{"type": "integer", "minimum": 0}, nil),
			listquery.ParamLimit: queryParameter(listquery.ParamLimit, "Rows per page",
				map[string]interface{}{"type": "integer", "minimum": 1, "maximum": listquery.MaxLimit, "default": listquery.DefaultLimit}, nil),
			"links": queryParameter("links", "Include HATEOAS navigation links in the JSON response",
				map[string]interface{}{"type": "boolean", "default": false}, nil),
		},
		"schemas": map[string]interface{}{
			"ErrorResponse": map[string]interface{}{
				"type":     "object",
				"required": []string{"status", "message"},
				"properties": map[string]interface{}{
					"status": map[string]interface{}{
						"type":        "integer",
						"description": "HTTP status code",
						"example":     400,
					},
					"message": map[string]interface{}{
						"type":    "string",
						"example": "invalid query parameters",
					},
					"errors": map[string]interface{}{
						"type": "array",
						"items": map[string]interface{}{
							"$ref": "#/components/schemas/FieldError",
						},
					},
				},
			},
			"FieldError": map[string]interface{}{
				"type":     "object",
				"required": []string{"param", "reason"},
				"properties": map[string]interface{}{
					"param":  map[string]interface{}{"type": "string", "example": "columnFilters"},
					"field":  map[string]interface{}{"type": "string", "example": "customer.phone"},
					"reason": map[string]interface{}{"type": "string", "example": "unknown column"},
				},
			},
			"Page": map[string]interface{}{
				"type":     "object",
				"required": []string{"items", "page", "per_page", "total", "total_pages"},
				"properties": map[string]interface{}{
					"items":       map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "object"}},
					"page":        map[string]interface{}{"type": "integer", "example": 1},
					"per_page":    map[string]interface{}{"type": "integer", "example": listquery.DefaultLimit},
					"total":       map[string]interface{}{"type": "integer", "example": 42},
					"total_pages": map[string]interface{}{"type": "integer", "example": 3},
					"_links":      map[string]interface{}{"$ref": "#/components/schemas/HATEOASLinks"},
				},
			},
			"HATEOASLinks": map[string]interface{}{
				"type":        "object",
				"description": "Navigation links (included when links=true)",
				"properties": map[string]interface{}{
					"self":  map[string]interface{}{"type": "string"},
					"first": map[string]interface{}{"type": "string"},
					"last":  map[string]interface{}{"type": "string"},
					"prev":  map[string]interface{}{"type": "string"},
					"next":  map[string]interface{}{"type": "string"},
				},
			},
		},
	}
}
