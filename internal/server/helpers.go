package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Request body limits. Screens and ingests carry whole OHLCV datasets.
const (
	maxQueryBody   = 1 << 20
	maxDatasetBody = 32 << 20
)

// ErrorResponse is the JSON body of every non-2xx API response.
// CorrelationID echoes the X-Correlation-ID header so clients can quote it.
type ErrorResponse struct {
	Error         string `json:"error"`
	Code          string `json:"code,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// WriteJSON encodes data before touching the response, so an encoding
// failure still produces a well-formed 500.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		statusCode = http.StatusInternalServerError
		buf.Reset()
		json.NewEncoder(&buf).Encode(ErrorResponse{
			Error:         "failed to encode response",
			Code:          codeInternal,
			CorrelationID: w.Header().Get(correlationHeader),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(buf.Bytes())
}

// WriteError writes an ErrorResponse without a code.
func WriteError(w http.ResponseWriter, statusCode int, message string) {
	WriteErrorWithCode(w, statusCode, message, "")
}

// WriteErrorWithCode writes an ErrorResponse carrying a machine-readable code
// such as empty_query or no_dataset.
func WriteErrorWithCode(w http.ResponseWriter, statusCode int, message, code string) {
	WriteJSON(w, statusCode, ErrorResponse{
		Error:         message,
		Code:          code,
		CorrelationID: w.Header().Get(correlationHeader),
	})
}

// RequireMethod answers 405 with an Allow header unless r uses one of methods.
func RequireMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	return false
}

// DecodeJSON decodes a query-sized request body into v.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	return DecodeJSONLimit(w, r, v, maxQueryBody)
}

// DecodeJSONLimit decodes at most limit bytes of body into v. It answers 413
// for oversized bodies and 400 for missing or malformed ones.
func DecodeJSONLimit(w http.ResponseWriter, r *http.Request, v interface{}, limit int64) bool {
	if r.Body == nil || r.Body == http.NoBody {
		WriteError(w, http.StatusBadRequest, "Request body is required")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	err := json.NewDecoder(r.Body).Decode(v)
	var tooLarge *http.MaxBytesError
	switch {
	case err == nil:
		return true
	case errors.As(err, &tooLarge):
		WriteError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit))
	case errors.Is(err, io.EOF):
		WriteError(w, http.StatusBadRequest, "Request body is required")
	default:
		WriteError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
	}
	return false
}

// DecodeArray decodes a JSON array whose elements are objects or strings
// holding JSON objects. MCP bridges often stringify each bar; both forms may
// be mixed in one payload.
func DecodeArray[T any](raw json.RawMessage) ([]T, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("expected an array: %w", err)
	}

	out := make([]T, 0, len(items))
	for i, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) > 0 && item[0] == '"' {
			var s string
			if err := json.Unmarshal(item, &s); err != nil {
				return nil, fmt.Errorf("item %d: %w", i, err)
			}
			item = json.RawMessage(s)
		}
		var v T
		if err := json.Unmarshal(item, &v); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// pathSymbol returns the upper-cased symbol segment following prefix, so
// /api/bars/bhp.ax yields BHP.AX. Anything after a further slash is ignored.
func pathSymbol(r *http.Request, prefix string) string {
	rest, ok := strings.CutPrefix(r.URL.Path, prefix)
	if !ok {
		return ""
	}
	rest, _, _ = strings.Cut(rest, "/")
	return strings.ToUpper(strings.TrimSpace(rest))
}
