package routes

import (
	"net/http"
	"time"

	"imagegen/failures"
	"imagegen/logger"
)

// failureView is what a tenant sees of a failure record. Backend error text
// stays in the server log.
type failureView struct {
	Key       string    `json:"key"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	ObjectKey string    `json:"object_key"`
	Spec      string    `json:"spec"`
	Stage     string    `json:"stage"`
	Message   string    `json:"message"`
}

func stageMessage(stage string) string {
	switch stage {
	case "fetch":
		return "source object could not be fetched"
	case "transform":
		return "source object could not be transformed"
	default:
		return "request failed"
	}
}

func viewOf(rec failures.FailureRecord) failureView {
	return failureView{
		Key:       rec.Hash,
		Status:    "failed",
		Timestamp: rec.Timestamp,
		ObjectKey: rec.ObjectKey,
		Spec:      rec.Spec,
		Stage:     rec.Stage,
		Message:   stageMessage(rec.Stage),
	}
}

// FailureQueryHandler reports whether the request identified by key (the
// hashed cache key) failed for the caller's tenant.
func (s *Server) FailureQueryHandler(w http.ResponseWriter, r *http.Request) {
	hash := r.URL.Query().Get("key")
	if hash == "" {
		writeJSONError(w, http.StatusBadRequest, "key parameter required")
		return
	}
	tenant := tenantFrom(r.Context())

	record, err := s.failures.GetFailure(tenant, hash)
	if err != nil {
		logger.Errorf("Failed to query failure for key %s: %v", hash, err)
		writeJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if record == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"key":    hash,
			"status": "ok",
		})
		return
	}

	writeJSON(w, http.StatusOK, viewOf(*record))
}

// FailureListHandler lists the caller's failure records.
func (s *Server) FailureListHandler(w http.ResponseWriter, r *http.Request) {
	list, err := s.failures.ListFailures(tenantFrom(r.Context()))
	if err != nil {
		logger.Errorf("Failed to list failures: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	views := make([]failureView, 0, len(list))
	for _, rec := range list {
		views = append(views, viewOf(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"failures": views,
		"count":    len(views),
	})
}
