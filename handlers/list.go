package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tobilg/caddyserver-shop-module/catalog"
	"github.com/tobilg/caddyserver-shop-module/formats"
	"github.com/tobilg/caddyserver-shop-module/listquery"
	"go.uber.org/zap"
)

// Lister runs list queries. *listquery.Engine implements it.
type Lister interface {
	List(ctx context.Context, rawQuery string, searchColumns []string, entity string, view *listquery.View) (*listquery.Result, error)
}

// ListHandler serves GET {prefix}/api/{resource} for the catalog endpoints.
type ListHandler struct {
	engine Lister
	prefix string
	logger *zap.Logger
}

// NewListHandler creates a new list handler.
func NewListHandler(engine Lister, prefix string, logger *zap.Logger) *ListHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ListHandler{
		engine: engine,
		prefix: prefix,
		logger: logger,
	}
}

// ServeHTTP handles HTTP requests for list endpoints.
func (h *ListHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := GetRequestIDFromContext(r.Context())

	resource := ExtractResource(r.URL.Path, h.prefix)
	endpoint, ok := catalog.Lookup(resource)
	if !ok {
		WriteStatus(w, http.StatusNotFound, fmt.Sprintf("unknown resource '%s'", resource))
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		WriteStatus(w, http.StatusMethodNotAllowed, "method not allowed")
		observeList(resource, http.StatusMethodNotAllowed, start)
		return
	}

	res, err := h.engine.List(r.Context(), r.URL.RawQuery, endpoint.SearchColumns, endpoint.Entity, endpoint.View)
	if err != nil {
		WriteError(w, r, h.logger, err)
		observeList(resource, listquery.AsError(err).Status(), start)
		return
	}

	format := GetAcceptFormat(r)

	var linksConfig *formats.LinksConfig
	if ParseLinks(r) {
		linksConfig = &formats.LinksConfig{
			Enabled:  true,
			BasePath: r.URL.Path,
			Query:    r.URL.Query(),
		}
	}

	h.logger.Info("Serving list",
		zap.String("resource", resource),
		zap.String("format", format),
		zap.Int("items", len(res.Items)),
		zap.Int64("total", res.Total),
		zap.String("request_id", requestID),
	)

	if err := h.formatResponse(w, res, format, resource, linksConfig); err != nil {
		// Headers are already on the wire.
		h.logger.Error("Failed to format response", zap.Error(err), zap.String("request_id", requestID))
	}
	observeList(resource, http.StatusOK, start)
}

// formatResponse formats the list result based on the requested format.
func (h *ListHandler) formatResponse(w http.ResponseWriter, res *listquery.Result, format, resource string, linksConfig *formats.LinksConfig) error {
	switch format {
	case FormatCSV:
		return formats.WriteCSV(w, res, resource)
	case FormatParquet:
		return formats.WriteParquet(w, res, resource)
	case FormatArrow:
		return formats.WriteArrowIPC(w, res)
	default:
		return formats.WriteJSON(w, res, linksConfig)
	}
}
