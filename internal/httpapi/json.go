package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
)

var (
	errMethodNotAllowed = errors.New("method not allowed")
	errNotFound         = errors.New("not found")
)

// writeJSON sets the content type, writes the status, and encodes v,
// best-effort (a write failure here has nowhere useful to report to).
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"success": false, "error": err.Error()})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
