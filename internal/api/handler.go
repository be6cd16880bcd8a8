package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/medassist/triage/internal/intake"
	"github.com/medassist/triage/internal/pipeline"
	"github.com/medassist/triage/internal/refdata"
	apperrors "github.com/medassist/triage/internal/shared/errors"
	"github.com/medassist/triage/internal/shared/events"
	"github.com/medassist/triage/internal/shared/types"
)

// EventPipelineCompleted is published after every finished pipeline run.
const EventPipelineCompleted = "triage.pipeline.completed"

// Handler provides the triage HTTP endpoints.
type Handler struct {
	coordinator *pipeline.Coordinator
	snapshot    *refdata.Snapshot
	bus         events.EventBus
}

// NewHandler creates a new triage handler.
func NewHandler(coordinator *pipeline.Coordinator, snapshot *refdata.Snapshot, bus events.EventBus) *Handler {
	return &Handler{coordinator: coordinator, snapshot: snapshot, bus: bus}
}

// Routes registers the triage routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/triage", h.RunTriage)
	r.Get("/reference/summary", h.ReferenceSummary)

	return r
}

// TriageRequest is the intake payload. The image itself is processed
// upstream; only its statistics summary reaches this service.
type TriageRequest struct {
	Age                int                  `json:"age"`
	Gender             string               `json:"gender"`
	Symptoms           string               `json:"symptoms"`
	SpO2               *int                 `json:"spo2,omitempty"`
	Pincode            string               `json:"pincode"`
	Allergies          []string             `json:"allergies"`
	CurrentMedications []string             `json:"current_medications"`
	ImageFeatures      intake.ImageFeatures `json:"image_features"`
}

// RunTriage validates the request, runs the pipeline and returns the
// outcome variant keyed by its kind.
func (h *Handler) RunTriage(w http.ResponseWriter, r *http.Request) {
	var req TriageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	bundle, err := intake.NewBundle(req.Age, req.Gender, req.Symptoms, req.SpO2,
		req.Pincode, req.Allergies, req.CurrentMedications)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if err := intake.ValidateImageFeatures(req.ImageFeatures); err != nil {
		writeAppError(w, err)
		return
	}

	requestID := types.NewID()
	outcome := h.coordinator.Run(bundle, req.ImageFeatures)

	event := events.NewEvent(EventPipelineCompleted, "triage-api", map[string]any{
		"request_id":  requestID.String(),
		"outcome":     outcome.Kind(),
		"event_count": len(outcome.Log()),
		"warnings":    outcome.Log().HasWarnings(),
	}).WithCorrelation(requestID.String())
	if err := h.bus.Publish(r.Context(), event); err != nil {
		// The outcome is still valid; losing the audit event is not fatal.
		log.Printf("Failed to publish %s event: %v", EventPipelineCompleted, err)
	}

	writeJSON(w, http.StatusOK, triageResponse(requestID, outcome))
}

func triageResponse(requestID types.ID, outcome pipeline.Outcome) map[string]any {
	return map[string]any{
		"request_id": requestID.String(),
		"outcome":    outcome.Kind(),
		"result":     outcome,
		"timestamp":  time.Now().UTC(),
	}
}

// ReferenceSummary reports the loaded snapshot's table sizes.
func (h *Handler) ReferenceSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"tables":    h.snapshot.Counts(),
		"skus":      h.snapshot.SortedSKUs(),
		"timestamp": time.Now().UTC(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeAppError(w http.ResponseWriter, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(appErr.HTTPStatus)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   appErr.Message,
			"code":    appErr.Code,
			"details": appErr.Details,
		})
		return
	}
	writeError(w, http.StatusInternalServerError, "internal server error")
}
