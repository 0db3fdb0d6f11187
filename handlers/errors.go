package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/tobilg/caddyserver-shop-module/listquery"
	"go.uber.org/zap"
)

// ErrorResponse is the error envelope of every endpoint.
type ErrorResponse struct {
	Status  int                    `json:"status"`
	Message string                 `json:"message"`
	Errors  []listquery.FieldError `json:"errors,omitempty"`
}

// WriteStatus writes an error envelope without details.
func WriteStatus(w http.ResponseWriter, statusCode int, message string) {
	writeEnvelope(w, ErrorResponse{Status: statusCode, Message: message})
}

// WriteError writes err as an error envelope. Request errors carry their
// field details. Storage and internal errors are logged and answered with
// a generic message.
func WriteError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	e := listquery.AsError(err)
	status := e.Status()
	requestID := GetRequestIDFromContext(r.Context())

	resp := ErrorResponse{Status: status, Message: e.Message}
	switch e.Kind {
	case listquery.InvalidQuery, listquery.InvalidField:
		resp.Errors = e.Details
		logger.Debug("Rejected list request",
			zap.String("request_id", requestID),
			zap.String("kind", e.Kind.String()),
			zap.Int("errors", len(e.Details)),
		)
	case listquery.StorageUnavailable:
		resp.Message = "storage unavailable"
		logger.Warn("Storage unavailable", zap.Error(e), zap.String("request_id", requestID))
	default:
		resp.Message = "internal error"
		logger.Error("Internal error",
			zap.Error(e),
			zap.String("request_id", requestID),
			zap.Stack("stack"),
		)
	}

	writeEnvelope(w, resp)
}

func writeEnvelope(w http.ResponseWriter, resp ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Status)
	json.NewEncoder(w).Encode(resp)
}
