package routes

import (
	"encoding/json"
	"net/http"

	"imagegen/imagegen"
	"imagegen/logger"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("Failed to encode response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"statusCode": status,
		"message":    msg,
	})
}

// writeServiceError maps a service error onto a status code. Validation and
// not-found failures are both reported as 404; processing detail is never
// sent to the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch imagegen.KindOf(err) {
	case imagegen.KindValidation, imagegen.KindNotFound:
		writeJSONError(w, http.StatusNotFound, "image not found")
	default:
		logger.Errorf("request %s failed: %v", requestIDFrom(r.Context()), err)
		writeJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}
