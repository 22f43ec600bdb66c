package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"kds/internal/staffapi"
	"kds/internal/workflow"
)

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// mapError keeps the backend's message for rejected mutations so the
// screen can show it.
func mapError(err error) (int, string, string) {
	var apiErr *staffapi.APIError
	var urlErr *url.Error
	switch {
	case errors.Is(err, workflow.ErrTerminalStatus):
		return http.StatusConflict, "terminal_status", "status has no next step"
	case errors.Is(err, workflow.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition", "status change is not allowed"
	case errors.Is(err, workflow.ErrUnknownStatus):
		return http.StatusBadRequest, "invalid_status", "unknown status"
	case errors.Is(err, staffapi.ErrInvalidID):
		return http.StatusNotFound, "order_not_found", "order not found"
	case errors.As(err, &apiErr):
		message := apiErr.Message
		switch {
		case apiErr.StatusCode == http.StatusNotFound:
			if message == "" {
				message = "order not found"
			}
			return http.StatusNotFound, "order_not_found", message
		case apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
			if message == "" {
				message = "request rejected by order service"
			}
			return apiErr.StatusCode, "upstream_rejected", message
		default:
			if message == "" {
				message = "order service error"
			}
			return http.StatusBadGateway, "upstream_error", message
		}
	case errors.Is(err, staffapi.ErrDecode), errors.Is(err, staffapi.ErrMissingData):
		return http.StatusBadGateway, "upstream_error", "malformed response from order service"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "upstream_timeout", "order service timed out"
	case errors.As(err, &urlErr):
		return http.StatusBadGateway, "upstream_unreachable", "order service unreachable"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

// isOrderLookupRejected reports whether the backend refused to return an
// order because of its id. A malformed id is as absent as an unknown one.
func isOrderLookupRejected(err error) bool {
	if errors.Is(err, staffapi.ErrInvalidID) {
		return true
	}
	var apiErr *staffapi.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusBadRequest || apiErr.StatusCode == http.StatusNotFound
}

// isOrderMissing reports whether a 404 names the order rather than an item.
func isOrderMissing(err error) bool {
	var apiErr *staffapi.APIError
	if !errors.As(err, &apiErr) {
		return errors.Is(err, staffapi.ErrInvalidID)
	}
	return strings.Contains(strings.ToLower(apiErr.Message), "order")
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
