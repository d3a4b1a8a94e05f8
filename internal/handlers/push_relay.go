package handlers

import (
	"errors"
	"log"
	"net/http"

	"fieldops/internal/models"
	"fieldops/internal/services"
)

// PushRelayHandler accepts hazard reports and relays them to admin devices
type PushRelayHandler struct {
	relay services.HazardRelay
}

// NewPushRelayHandler creates a new push relay handler. A nil relay answers 500.
func NewPushRelayHandler(relay services.HazardRelay) *PushRelayHandler {
	return &PushRelayHandler{relay: relay}
}

func setCORS(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "authorization, x-client-info, apikey, content-type")
}

// HandleHazardReport processes POST /api/push/hazard-report
func (h *PushRelayHandler) HandleHazardReport(w http.ResponseWriter, r *http.Request) {
	setCORS(w.Header())

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if h.relay == nil {
		writeError(w, http.StatusInternalServerError, services.ErrRelayNotConfigured.Error())
		return
	}

	var report models.HazardReport
	if err := decodeJSON(w, r, &report); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	log.Printf("🚨 Hazard report %s from %s", report.ReportID, report.CreatedBy)

	res, err := h.relay.Relay(r.Context(), report)
	if err != nil {
		if !errors.Is(err, services.ErrRelayNotConfigured) {
			log.Printf("❌ Relay of hazard report %s failed: %v", report.ReportID, err)
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}
