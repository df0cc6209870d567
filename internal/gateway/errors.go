package gateway

import (
	"encoding/json"
	"net/http"
)

// Stable error codes surfaced in the HTTP envelope.
const (
	CodeBadRequest      = "BAD_REQUEST"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodePayloadTooLarge = "PAYLOAD_TOO_LARGE"
	CodeUnprocessable   = "UNPROCESSABLE"
	CodeRateLimited     = "RATE_LIMITED"
	CodeInternalError   = "INTERNAL_ERROR"
	CodeBackend5xx      = "BACKEND_5XX"
)

// envelope is the body of every non-2xx response.
type envelope struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Status  int            `json:"status"`
	TraceID string         `json:"traceId,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, message, traceID string, details map[string]any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{
		Code:    code,
		Message: message,
		Status:  status,
		TraceID: traceID,
		Details: details,
	})
}
