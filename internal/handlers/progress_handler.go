package handlers

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/harvester/internal/interfaces"
)

// ActionCancel is the only supported progress action
const ActionCancel = "cancel"

// ProgressAction is the body of POST /api/scrape/progress
type ProgressAction struct {
	ID     string `json:"id" validate:"required"`
	Action string `json:"action" validate:"required"`
}

// ProgressHandler exposes job records to pollers and accepts cancel requests
type ProgressHandler struct {
	store    interfaces.JobStore
	validate *validator.Validate
	logger   arbor.ILogger
}

func NewProgressHandler(store interfaces.JobStore, validate *validator.Validate, logger arbor.ILogger) *ProgressHandler {
	return &ProgressHandler{
		store:    store,
		validate: validate,
		logger:   logger,
	}
}

// GetProgressHandler returns the job record.
// GET /api/scrape/progress?id=...&cleanup=true
// With cleanup=true a terminal record is removed instead of returned.
func (h *ProgressHandler) GetProgressHandler(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "missing id")
		return
	}

	record, ok := h.store.Get(id)
	if !ok {
		WriteJSON(w, http.StatusNotFound, map[string]string{"error": "not_found", "id": id})
		return
	}

	if r.URL.Query().Get("cleanup") == "true" && record.Status.IsTerminal() {
		h.store.Cleanup(id)
		h.logger.Debug().Str("job_id", id).Msg("Job record cleaned up")
		WriteJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "cleaned": true, "id": id})
		return
	}

	WriteJSON(w, http.StatusOK, record)
}

// ProgressActionHandler applies an action to a job. Cancel only flags the
// record; the running job observes the flag and ends itself.
// POST /api/scrape/progress {id, action:"cancel"}
func (h *ProgressHandler) ProgressActionHandler(w http.ResponseWriter, r *http.Request) {
	var req ProgressAction
	if err := DecodeJSON(w, r, h.validate, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "missing id or action")
		return
	}

	record, ok := h.store.Get(req.ID)
	if !ok {
		WriteJSON(w, http.StatusNotFound, map[string]string{"error": "not_found", "id": req.ID})
		return
	}

	if req.Action != ActionCancel {
		WriteError(w, http.StatusBadRequest, "unsupported_action")
		return
	}

	status := record.Status
	if !record.Status.IsTerminal() {
		h.store.RequestCancel(req.ID, "cancel_requested")
		if updated, ok := h.store.Get(req.ID); ok {
			status = updated.Status
		}
		h.logger.Info().Str("job_id", req.ID).Msg("Cancellation requested")
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "id": req.ID, "status": status})
}
