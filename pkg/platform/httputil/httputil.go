package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	dErrors "lendaudit/pkg/domain-errors"
)

// HandlerFunc is an HTTP handler that reports failure by returning an error
// instead of writing it. Middleware can observe the error before it is
// rendered.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// Adapt renders errors returned by h with WriteError.
func Adapt(h HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			WriteError(w, err)
		}
	}
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates err into the JSON error envelope. Internal errors never
// expose their description.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := dErrors.ToHTTPStatus(code)

	body := map[string]string{"error": string(code)}
	if status != http.StatusInternalServerError {
		body["error_description"] = err.Error()
	}
	WriteJSON(w, status, body)
}

// DecodeJSON decodes the request body into T. An empty or malformed body is a
// bad request.
func DecodeJSON[T any](r *http.Request) (T, error) {
	var out T
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		if errors.Is(err, io.EOF) {
			return out, dErrors.New(dErrors.CodeBadRequest, "request body is required")
		}
		return out, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid JSON body")
	}
	return out, nil
}
