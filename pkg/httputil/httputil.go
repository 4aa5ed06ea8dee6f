package httputil

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/datapainel/datapainel-backend/pkg/errors"
)

// JSON sends a JSON response. Payloads go on the wire as-is; the dashboard
// clients consume the documents directly, without an envelope.
func JSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// errorBody is the wire format for typed errors
type errorBody struct {
	Error             string            `json:"error"`
	Details           map[string]string `json:"details,omitempty"`
	RetryAfterSeconds int               `json:"retryAfterSeconds,omitempty"`
}

// Error sends an error response as {"error": "<message>"}. Rate-limit errors
// additionally carry retryAfterSeconds and a matching Retry-After header.
// Untyped errors map to 500 without leaking internals.
func Error(w http.ResponseWriter, err error) {
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		if appErr.RetryAfterSeconds > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(appErr.RetryAfterSeconds))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(appErr.StatusCode)
		json.NewEncoder(w).Encode(errorBody{
			Error:             appErr.Message,
			Details:           appErr.Details,
			RetryAfterSeconds: appErr.RetryAfterSeconds,
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(errorBody{Error: "an unexpected error occurred"})
}

// HTML sends an HTML response
func HTML(w http.ResponseWriter, statusCode int, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(statusCode)
	w.Write([]byte(body))
}

// MethodNotAllowed sends the plain-text 405 the dashboard clients expect
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
}

// Created sends a 201 Created response
func Created(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusCreated, data)
}

// DecodeJSON decodes the request body into the provided struct
func DecodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.BadRequest("invalid JSON body")
	}
	return nil
}
