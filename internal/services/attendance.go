// Package services implements business logic for the application
package services

import (
	"context"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"fieldops/internal/location"
	"fieldops/internal/models"
	"fieldops/internal/repository"
)

// Defaults for the attendance workflow
const (
	DefaultWatchdog      = 35 * time.Second
	DefaultEventTimeout  = 5 * time.Second
	DefaultNotifyTimeout = 5 * time.Second
	DefaultHistoryDays   = 7
)

// DefaultWorkDateZone is the fixed offset work dates are computed in
var DefaultWorkDateZone = time.FixedZone("KST", 9*60*60)

// AttendanceProcessor defines the interface for attendance processing
type AttendanceProcessor interface {
	ClockIn(ctx context.Context, userID string, src location.Source) (*ClockResult, error)
	ClockOut(ctx context.Context, userID string, src location.Source) (*ClockResult, error)
	Today(ctx context.Context, userID string) (*models.ShiftRecord, error)
	History(ctx context.Context, userID string, days int) ([]models.ShiftRecord, error)
	Catalog() Catalog
}

// BotNotifier defines the interface for bot notifications
type BotNotifier interface {
	SendNotification(message string)
	SendPersonalNotification(chatID int64, message string)
}

// ClockStatus is the outcome of a clock action that did not fail
type ClockStatus string

const (
	StatusDone         ClockStatus = "done"
	StatusAlreadyDone  ClockStatus = "already_done"
	StatusNotClockedIn ClockStatus = "not_clocked_in"
	StatusBusy         ClockStatus = "busy"
	StatusVoided       ClockStatus = "voided"
)

// ClockResult describes a clock action. Only StatusDone wrote to the backend.
type ClockResult struct {
	Status  ClockStatus
	Event   string
	At      *time.Time
	Record  *models.ShiftRecord
	Fix     *models.LocationFix
	Message string
}

// AttendanceConfig tunes AttendanceService
type AttendanceConfig struct {
	Acquirer      *location.Acquirer
	WorkDateZone  *time.Location
	Watchdog      time.Duration
	EventTimeout  time.Duration
	NotifyTimeout time.Duration
	Locale        Locale
	Now           func() time.Time
}

// AttendanceService runs the daily clock-in/clock-out state machine
type AttendanceService struct {
	shiftRepo repository.ShiftRepository
	eventRepo repository.ShiftEventRepository
	notifier  BotNotifier
	acquirer  *location.Acquirer
	zone      *time.Location
	watchdog  time.Duration
	eventTTL  time.Duration
	notifyTTL time.Duration
	catalog   Catalog
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

// NewAttendanceService creates a new attendance service
func NewAttendanceService(
	shiftRepo repository.ShiftRepository,
	eventRepo repository.ShiftEventRepository,
	notifier BotNotifier,
	cfg AttendanceConfig,
) *AttendanceService {
	if cfg.Acquirer == nil {
		cfg.Acquirer = location.NewAcquirer(location.Config{})
	}
	if cfg.WorkDateZone == nil {
		cfg.WorkDateZone = DefaultWorkDateZone
	}
	if cfg.Watchdog <= 0 {
		cfg.Watchdog = DefaultWatchdog
	}
	if cfg.EventTimeout <= 0 {
		cfg.EventTimeout = DefaultEventTimeout
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = DefaultNotifyTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &AttendanceService{
		shiftRepo: shiftRepo,
		eventRepo: eventRepo,
		notifier:  notifier,
		acquirer:  cfg.Acquirer,
		zone:      cfg.WorkDateZone,
		watchdog:  cfg.Watchdog,
		eventTTL:  cfg.EventTimeout,
		notifyTTL: cfg.NotifyTimeout,
		catalog:   NewCatalog(cfg.Locale, cfg.WorkDateZone),
		now:       cfg.Now,
		sessions:  make(map[string]*session),
	}
}

// Catalog returns the message catalog of the service
func (s *AttendanceService) Catalog() Catalog { return s.catalog }

// WorkDate returns the calendar day of t in zone
func WorkDate(t time.Time, zone *time.Location) string {
	return t.In(zone).Format(models.WorkDateLayout)
}

func (s *AttendanceService) session(userID string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok {
		sess = &session{}
		s.sessions[userID] = sess
	}
	return sess
}

// Busy reports whether userID has a clock operation in flight
func (s *AttendanceService) Busy(userID string) bool {
	return s.session(userID).isBusy()
}

// ClockIn records the first clock-in of the current work date
func (s *AttendanceService) ClockIn(ctx context.Context, userID string, src location.Source) (*ClockResult, error) {
	return s.run(ctx, userID, models.EventClockIn, src)
}

// ClockOut closes the current work date's shift
func (s *AttendanceService) ClockOut(ctx context.Context, userID string, src location.Source) (*ClockResult, error) {
	return s.run(ctx, userID, models.EventClockOut, src)
}

// run guards one clock operation with the busy flag and the watchdog. When the watchdog
// fires the operation keeps running detached and a late result still updates the session.
func (s *AttendanceService) run(ctx context.Context, userID, event string, src location.Source) (*ClockResult, error) {
	sess := s.session(userID)
	gen, ok := sess.begin()
	if !ok {
		log.Printf("⏳ %s for user %s ignored: busy", event, userID)
		return &ClockResult{Status: StatusBusy, Event: event, Message: s.catalog.Busy()}, nil
	}

	type outcome struct {
		res *ClockResult
		err error
	}
	phase := newPhaseTracker()
	done := make(chan outcome, 1)
	opCtx := context.WithoutCancel(ctx)

	go func() {
		res, err := s.execute(opCtx, sess, userID, event, src, phase)
		sess.end(gen)
		done <- outcome{res, err}
	}()

	timer := time.NewTimer(s.watchdog)
	defer timer.Stop()

	select {
	case o := <-done:
		if o.err != nil {
			log.Printf("❌ %s for user %s failed: %v", event, userID, o.err)
		}
		return o.res, o.err
	case <-timer.C:
		p := phase.get()
		sess.end(gen)
		log.Printf("⌛ %s for user %s stalled while %s, busy flag cleared", event, userID, p)
		return nil, &TimeoutError{Phase: p}
	}
}

func (s *AttendanceService) execute(ctx context.Context, sess *session, userID, event string, src location.Source, phase *phaseTracker) (*ClockResult, error) {
	now := s.now()
	workDate := WorkDate(now, s.zone)

	phase.set(PhaseLoading)
	rec, err := s.shiftRepo.GetByUserAndDate(ctx, userID, workDate)
	if err != nil {
		return nil, &BackendError{Op: "load shift", Err: err}
	}
	if rec != nil {
		sess.setToday(rec)
	}

	if res := s.precondition(event, rec); res != nil {
		log.Printf("ℹ️ %s for user %s on %s rejected: %s", event, userID, workDate, res.Status)
		return res, nil
	}

	phase.set(PhaseLocating)
	fix, err := s.acquirer.Acquire(ctx, src)
	if err != nil {
		return nil, err
	}
	fence := s.acquirer.Geofence()
	if !fence.Allows(fix.DistanceMeters) {
		return nil, &GeofenceViolationError{DistanceMeters: fix.DistanceMeters, RadiusMeters: fence.RadiusMeters}
	}

	phase.set(PhaseSaving)
	saved, err := s.shiftRepo.Upsert(ctx, userID, workDate, buildPatch(event, now, fix))
	if err != nil {
		return nil, &BackendError{Op: "save shift", Err: err}
	}

	phase.set(PhaseLogging)
	s.logEvent(ctx, saved, userID, event, now, fix, workDate)

	sess.setToday(saved)
	if fix.Fallback {
		s.notifyFallback(ctx, userID, event, now)
	}

	log.Printf("✅ User %s %s at %s (%s, %.0fm)", userID, event, now.In(s.zone).Format("15:04:05"), fix.Source, fix.DistanceMeters)

	msg := s.catalog.ClockedIn(now)
	if event == models.EventClockOut {
		msg = s.catalog.ClockedOut(now)
	}
	return &ClockResult{Status: StatusDone, Event: event, At: &now, Record: saved, Fix: &fix, Message: msg}, nil
}

// precondition returns a rejection when event is not legal for rec, or nil
func (s *AttendanceService) precondition(event string, rec *models.ShiftRecord) *ClockResult {
	// void is terminal; only admins touch such a record
	if rec != nil && rec.Status == models.ShiftVoid {
		return &ClockResult{Status: StatusVoided, Event: event, Record: rec, Message: s.catalog.ShiftVoided()}
	}
	switch event {
	case models.EventClockIn:
		if rec.HasClockIn() {
			return &ClockResult{Status: StatusAlreadyDone, Event: event, At: rec.ClockInAt, Record: rec,
				Message: s.catalog.AlreadyClockedIn(*rec.ClockInAt)}
		}
	case models.EventClockOut:
		if !rec.HasClockIn() {
			return &ClockResult{Status: StatusNotClockedIn, Event: event, Record: rec, Message: s.catalog.NotClockedIn()}
		}
		if rec.HasClockOut() {
			return &ClockResult{Status: StatusAlreadyDone, Event: event, At: rec.ClockOutAt, Record: rec,
				Message: s.catalog.AlreadyClockedOut(*rec.ClockOutAt)}
		}
	}
	return nil
}

func buildPatch(event string, at time.Time, fix models.LocationFix) models.ShiftPatch {
	lat, lng := fix.Latitude, fix.Longitude
	if event == models.EventClockIn {
		return models.ShiftPatch{
			Status:           models.ShiftOpen,
			ClockInAt:        &at,
			ClockInLat:       &lat,
			ClockInLng:       &lng,
			ClockInAccuracyM: fix.AccuracyM,
			ClockInSource:    fix.Source,
		}
	}
	return models.ShiftPatch{
		Status:            models.ShiftClosed,
		ClockOutAt:        &at,
		ClockOutLat:       &lat,
		ClockOutLng:       &lng,
		ClockOutAccuracyM: fix.AccuracyM,
		ClockOutSource:    fix.Source,
	}
}

// logEvent appends the audit entry. Failure never affects the saved shift.
func (s *AttendanceService) logEvent(ctx context.Context, shift *models.ShiftRecord, userID, event string, at time.Time, fix models.LocationFix, workDate string) {
	ev := &models.ShiftEvent{
		ShiftID:    shift.ID,
		UserID:     userID,
		EventType:  event,
		OccurredAt: at,
		Lat:        fix.Latitude,
		Lng:        fix.Longitude,
		AccuracyM:  fix.AccuracyM,
		Source:     fix.Source,
		Payload: map[string]any{
			"work_date":       workDate,
			"client_event_id": uuid.NewString(),
			"distance_m":      math.Round(fix.DistanceMeters),
			"fallback":        fix.Fallback,
		},
	}
	attempt(ctx, s.eventTTL, "shift event append", func(ctx context.Context) error {
		return s.eventRepo.Append(ctx, ev)
	})
}

func (s *AttendanceService) notifyFallback(ctx context.Context, userID, event string, at time.Time) {
	if s.notifier == nil {
		return
	}
	msg := s.catalog.FallbackUsed(userID, event, at)
	attempt(ctx, s.notifyTTL, "fallback notification", func(context.Context) error {
		s.notifier.SendNotification(msg)
		return nil
	})
}

// Today returns the current work date's record, or nil if none exists
func (s *AttendanceService) Today(ctx context.Context, userID string) (*models.ShiftRecord, error) {
	workDate := WorkDate(s.now(), s.zone)
	rec, err := s.shiftRepo.GetByUserAndDate(ctx, userID, workDate)
	if err != nil {
		if cached := s.session(userID).cachedToday(workDate); cached != nil {
			log.Printf("⚠️ Serving cached shift for user %s: %v", userID, err)
			return cached, nil
		}
		return nil, &BackendError{Op: "load shift", Err: err}
	}
	if rec != nil {
		s.session(userID).setToday(rec)
	}
	return rec, nil
}

// History returns the records of the last days work dates, newest first
func (s *AttendanceService) History(ctx context.Context, userID string, days int) ([]models.ShiftRecord, error) {
	if days <= 0 {
		days = DefaultHistoryDays
	}
	since := WorkDate(s.now().AddDate(0, 0, -(days - 1)), s.zone)
	records, err := s.shiftRepo.ListByUser(ctx, userID, since, days)
	if err != nil {
		return nil, &BackendError{Op: "list shifts", Err: err}
	}
	return records, nil
}

var _ AttendanceProcessor = (*AttendanceService)(nil)
