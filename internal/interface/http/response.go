package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/admissions-hub/admissions-hub/internal/domain/shared"
	"github.com/admissions-hub/admissions-hub/pkg/logger"
)

const apiVersion = "v1"

// JSONResponse is the envelope of every response, errors included.
type JSONResponse struct {
	Success   bool          `json:"success"`
	Data      any           `json:"data,omitempty"`
	Error     *APIError     `json:"error,omitempty"`
	Meta      *ResponseMeta `json:"meta,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ResponseMeta carries paging for list endpoints.
type ResponseMeta struct {
	Timestamp  time.Time `json:"timestamp"`
	Version    string    `json:"version,omitempty"`
	TotalCount int       `json:"total_count,omitempty"`
	Page       int       `json:"page,omitempty"`
	PageSize   int       `json:"page_size,omitempty"`
	HasMore    bool      `json:"has_more,omitempty"`
}

func send(w http.ResponseWriter, status int, body JSONResponse) {
	if body.Meta == nil {
		body.Meta = &ResponseMeta{}
	}
	body.Meta.Timestamp = time.Now().UTC()
	body.Success = status >= 200 && status < 300

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	send(w, status, JSONResponse{Data: data, Meta: &ResponseMeta{Version: apiVersion}})
}

func writeJSONWithMeta(w http.ResponseWriter, r *http.Request, status int, data any, meta *ResponseMeta) {
	if meta == nil {
		meta = &ResponseMeta{}
	}
	meta.Version = apiVersion
	send(w, status, JSONResponse{Data: data, Meta: meta, RequestID: getRequestID(r.Context())})
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	send(w, status, JSONResponse{Error: &APIError{Code: code, Message: message}})
}

// writeDomainError logs and renders err. 5xx details stay in the log.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code := statusFor(err)
	log := logger.FromContext(r.Context())

	message := err.Error()
	if status >= http.StatusInternalServerError {
		log.Error(op+" failed", logger.Err(err))
		if status == http.StatusInternalServerError {
			message = "An unexpected error occurred"
		}
	} else {
		log.Debug(op+" rejected", logger.Err(err), logger.Int("status", status))
	}
	writeJSONError(w, status, code, message)
}

// statusFor maps domain errors to HTTP. The first matching case wins.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, shared.ErrApplicationLocked):
		return http.StatusLocked, "locked"
	case shared.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case shared.IsConflict(err), shared.IsAlreadyExists(err):
		return http.StatusConflict, "conflict"
	case shared.IsValidation(err), errors.Is(err, shared.ErrInvalidFormat):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, shared.ErrStateTransition):
		return http.StatusConflict, "invalid_transition"
	case shared.IsExternalService(err):
		return http.StatusBadGateway, "upstream_error"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST PARSING
// ══════════════════════════════════════════════════════════════════════════════

func getQueryParamInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, shared.NewDomainError("http", "Parse", shared.ErrInvalidInput,
			fmt.Sprintf("%s must be an integer", key))
	}
	return n, nil
}

// decodeJSON rejects unknown fields so typos in client payloads surface as 400.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return shared.WrapError("http", "Decode", shared.ErrInvalidInput, "malformed JSON body", err)
	}
	return nil
}
