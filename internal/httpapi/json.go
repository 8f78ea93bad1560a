package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/reviewdeck/reviewd/internal/reviewerr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError translates a reviewerr.Error (or a plain error, treated as
// internal) into the HTTP status its Kind maps to.
func writeError(w http.ResponseWriter, err error) {
	if rerr, ok := reviewerr.As(err); ok {
		writeJSON(w, rerr.Kind.HTTPStatus(), map[string]any{"error": rerr.Message, "kind": rerr.Kind, "detail": rerr.Detail})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
