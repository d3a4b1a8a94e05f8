package handlers

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"fieldops/internal/auth"
	"fieldops/internal/location"
	"fieldops/internal/models"
	"fieldops/internal/repository"
	"fieldops/internal/services"
)

// ClockRequest is the reading a mobile client uploads with a clock action
type ClockRequest struct {
	Latitude  *float64   `json:"latitude"`
	Longitude *float64   `json:"longitude"`
	AccuracyM *float64   `json:"accuracy_m"`
	Timestamp *time.Time `json:"timestamp"`
}

// position returns the uploaded reading, or nil if the client had none
func (r ClockRequest) position() *models.Position {
	if r.Latitude == nil || r.Longitude == nil {
		return nil
	}
	p := &models.Position{Latitude: *r.Latitude, Longitude: *r.Longitude, AccuracyM: r.AccuracyM}
	if r.Timestamp != nil {
		p.Timestamp = *r.Timestamp
	}
	return p
}

// ClockResponse is the answer to a clock action or a today query
type ClockResponse struct {
	OK      bool                `json:"ok"`
	Status  string              `json:"status,omitempty"`
	Event   string              `json:"event,omitempty"`
	At      *time.Time          `json:"at,omitempty"`
	Message string              `json:"message"`
	Record  *models.ShiftRecord `json:"record,omitempty"`
	Fix     *models.LocationFix `json:"fix,omitempty"`
}

// AttendanceHandler serves the clock-in/clock-out API
type AttendanceHandler struct {
	service services.AttendanceProcessor
	now     func() time.Time
}

// NewAttendanceHandler creates a new attendance handler
func NewAttendanceHandler(service services.AttendanceProcessor) *AttendanceHandler {
	return &AttendanceHandler{service: service, now: time.Now}
}

// HandleClockIn processes clock-in requests
func (h *AttendanceHandler) HandleClockIn(w http.ResponseWriter, r *http.Request) {
	h.handleClock(w, r, h.service.ClockIn)
}

// HandleClockOut processes clock-out requests
func (h *AttendanceHandler) HandleClockOut(w http.ResponseWriter, r *http.Request) {
	h.handleClock(w, r, h.service.ClockOut)
}

type clockFunc func(ctx context.Context, userID string, src location.Source) (*services.ClockResult, error)

func (h *AttendanceHandler) handleClock(w http.ResponseWriter, r *http.Request, clock clockFunc) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, userID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req ClockRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := clock(ctx, userID, location.NewReported(req.position()))
	if err != nil {
		writeError(w, statusFor(err), h.service.Catalog().Message(err))
		return
	}

	status := http.StatusOK
	switch res.Status {
	case services.StatusBusy, services.StatusNotClockedIn, services.StatusVoided:
		status = http.StatusConflict
	}
	writeJSON(w, status, ClockResponse{
		OK:      res.Status == services.StatusDone || res.Status == services.StatusAlreadyDone,
		Status:  string(res.Status),
		Event:   res.Event,
		At:      res.At,
		Message: res.Message,
		Record:  res.Record,
		Fix:     res.Fix,
	})
}

// HandleToday returns the caller's record for the current work date
func (h *AttendanceHandler) HandleToday(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, userID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	rec, err := h.service.Today(ctx, userID)
	if err != nil {
		writeError(w, statusFor(err), h.service.Catalog().Message(err))
		return
	}

	resp := ClockResponse{OK: true, Record: rec}
	switch {
	case rec == nil:
		resp.Message = h.service.Catalog().NoRecordToday()
	case rec.Status == models.ShiftVoid:
		resp.Message = h.service.Catalog().ShiftVoided()
	case !rec.HasClockIn():
		resp.Message = h.service.Catalog().NoRecordToday()
	case rec.HasClockOut():
		resp.Message = h.service.Catalog().ClockedOut(*rec.ClockOutAt)
	default:
		resp.Message = h.service.Catalog().ClockedIn(*rec.ClockInAt)
	}
	writeJSON(w, http.StatusOK, resp)
}

// authenticate reads the caller's PocketBase token and returns a context that forwards it
func (h *AttendanceHandler) authenticate(w http.ResponseWriter, r *http.Request) (context.Context, string, bool) {
	token := auth.FromHeader(r.Header.Get("Authorization"))
	claims, err := auth.ParseUserToken(token, h.now())
	if err != nil {
		log.Printf("🔒 Rejected %s %s: %v", r.Method, r.URL.Path, err)
		writeError(w, http.StatusUnauthorized, err.Error())
		return nil, "", false
	}
	return repository.WithAuthToken(r.Context(), token), claims.ID, true
}

// statusFor maps the operation error taxonomy to an HTTP status
func statusFor(err error) int {
	var (
		denied  *location.PermissionDeniedError
		outside *services.GeofenceViolationError
		timeout *services.TimeoutError
		backend *services.BackendError
		apiErr  *repository.APIError
	)
	switch {
	case errors.As(err, &denied), errors.As(err, &outside):
		return http.StatusForbidden
	case errors.Is(err, location.ErrServiceDisabled), errors.Is(err, location.ErrLocationUnavailable):
		return http.StatusUnprocessableEntity
	case errors.As(err, &timeout):
		return http.StatusGatewayTimeout
	case errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden):
		return apiErr.Status
	case errors.As(err, &backend):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
