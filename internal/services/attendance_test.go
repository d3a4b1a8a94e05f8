package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"fieldops/internal/geo"
	"fieldops/internal/location"
	"fieldops/internal/models"
)

// mockShiftRepo is an in-memory ShiftRepository
type mockShiftRepo struct {
	mu        sync.Mutex
	records   map[string]*models.ShiftRecord
	upserts   int
	getErr    error
	upsertErr error
	block     chan struct{} // when set, Upsert waits for it to close
}

func newMockShiftRepo() *mockShiftRepo {
	return &mockShiftRepo{records: map[string]*models.ShiftRecord{}}
}

func (m *mockShiftRepo) GetByUserAndDate(ctx context.Context, userID, workDate string) (*models.ShiftRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	rec, ok := m.records[userID+"/"+workDate]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *mockShiftRepo) ListByUser(ctx context.Context, userID, sinceDate string, limit int) ([]models.ShiftRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ShiftRecord
	for _, rec := range m.records {
		if rec.UserID == userID && rec.WorkDate >= sinceDate {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (m *mockShiftRepo) Upsert(ctx context.Context, userID, workDate string, p models.ShiftPatch) (*models.ShiftRecord, error) {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	if m.upsertErr != nil {
		return nil, m.upsertErr
	}

	key := userID + "/" + workDate
	rec, ok := m.records[key]
	if !ok {
		rec = &models.ShiftRecord{ID: "shift-" + key, UserID: userID, WorkDate: workDate}
		m.records[key] = rec
	}
	rec.Status = p.Status
	if p.ClockInAt != nil {
		rec.ClockInAt, rec.ClockInLat, rec.ClockInLng = p.ClockInAt, p.ClockInLat, p.ClockInLng
		rec.ClockInAccuracyM, rec.ClockInSource = p.ClockInAccuracyM, p.ClockInSource
	}
	if p.ClockOutAt != nil {
		rec.ClockOutAt, rec.ClockOutLat, rec.ClockOutLng = p.ClockOutAt, p.ClockOutLat, p.ClockOutLng
		rec.ClockOutAccuracyM, rec.ClockOutSource = p.ClockOutAccuracyM, p.ClockOutSource
	}
	cp := *rec
	return &cp, nil
}

func (m *mockShiftRepo) upsertCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upserts
}

// mockEventRepo records appended events
type mockEventRepo struct {
	mu     sync.Mutex
	events []models.ShiftEvent
	err    error
}

func (m *mockEventRepo) Append(ctx context.Context, ev *models.ShiftEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, *ev)
	return nil
}

// mockNotifier records admin messages
type mockNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (m *mockNotifier) SendNotification(message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, message)
}

func (m *mockNotifier) SendPersonalNotification(chatID int64, message string) {}

func (m *mockNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

// 2026-02-02 09:00 in the work-date zone
var testNow = time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)

func inside() location.Source {
	return location.NewReported(&models.Position{Latitude: geo.DefaultCenterLat + 0.001, Longitude: geo.DefaultCenterLng})
}

func outside() location.Source {
	return location.NewReported(&models.Position{Latitude: geo.DefaultCenterLat + 0.02, Longitude: geo.DefaultCenterLng})
}

func newTestService(shifts *mockShiftRepo, events *mockEventRepo, notifier BotNotifier, mutate func(*AttendanceConfig)) *AttendanceService {
	cfg := AttendanceConfig{
		Locale: LocaleEnglish,
		Now:    func() time.Time { return testNow },
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewAttendanceService(shifts, events, notifier, cfg)
}

func TestClockInTwice(t *testing.T) {
	shifts, events := newMockShiftRepo(), &mockEventRepo{}
	svc := newTestService(shifts, events, nil, nil)
	ctx := context.Background()

	res, err := svc.ClockIn(ctx, "u1", inside())
	if err != nil {
		t.Fatalf("first ClockIn() error = %v", err)
	}
	if res.Status != StatusDone || res.Record.Status != models.ShiftOpen {
		t.Fatalf("first ClockIn() = %+v", res)
	}
	if res.Record.WorkDate != "2026-02-02" {
		t.Errorf("WorkDate = %s, want 2026-02-02", res.Record.WorkDate)
	}

	res, err = svc.ClockIn(ctx, "u1", inside())
	if err != nil {
		t.Fatalf("second ClockIn() error = %v", err)
	}
	if res.Status != StatusAlreadyDone {
		t.Errorf("second ClockIn() status = %v, want %v", res.Status, StatusAlreadyDone)
	}
	if !strings.Contains(res.Message, "09:00") {
		t.Errorf("second ClockIn() message = %q, want original time 09:00", res.Message)
	}
	if got := shifts.upsertCount(); got != 1 {
		t.Errorf("upserts = %d, want 1", got)
	}
	if len(events.events) != 1 || events.events[0].EventType != models.EventClockIn {
		t.Errorf("events = %+v, want one clock_in", events.events)
	}
	if events.events[0].Payload["work_date"] != "2026-02-02" {
		t.Errorf("event payload = %v", events.events[0].Payload)
	}
}

func TestClockOutWithoutClockIn(t *testing.T) {
	shifts := newMockShiftRepo()
	svc := newTestService(shifts, &mockEventRepo{}, nil, nil)

	res, err := svc.ClockOut(context.Background(), "u1", inside())
	if err != nil {
		t.Fatalf("ClockOut() error = %v", err)
	}
	if res.Status != StatusNotClockedIn {
		t.Errorf("status = %v, want %v", res.Status, StatusNotClockedIn)
	}
	if res.Message != svc.Catalog().NotClockedIn() {
		t.Errorf("message = %q", res.Message)
	}
	if got := shifts.upsertCount(); got != 0 {
		t.Errorf("upserts = %d, want 0", got)
	}
}

func TestClockInOutsideGeofenceThenInside(t *testing.T) {
	shifts := newMockShiftRepo()
	svc := newTestService(shifts, &mockEventRepo{}, nil, nil)
	ctx := context.Background()

	_, err := svc.ClockIn(ctx, "u1", outside())
	var violation *GeofenceViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("ClockIn(outside) error = %v, want GeofenceViolationError", err)
	}
	if violation.DistanceMeters < 2000 || violation.DistanceMeters > 2500 {
		t.Errorf("DistanceMeters = %v, want about 2224", violation.DistanceMeters)
	}
	if msg := svc.Catalog().Message(err); !strings.Contains(msg, "2224m") {
		t.Errorf("message = %q, want rounded distance", msg)
	}
	if shifts.upsertCount() != 0 || svc.Busy("u1") {
		t.Errorf("upserts = %d, busy = %v after rejection", shifts.upsertCount(), svc.Busy("u1"))
	}

	res, err := svc.ClockIn(ctx, "u1", inside())
	if err != nil || res.Status != StatusDone {
		t.Fatalf("ClockIn(inside) = %+v, %v", res, err)
	}
}

func TestClockOutFlow(t *testing.T) {
	shifts := newMockShiftRepo()
	svc := newTestService(shifts, &mockEventRepo{}, nil, nil)
	ctx := context.Background()

	if _, err := svc.ClockIn(ctx, "u1", inside()); err != nil {
		t.Fatal(err)
	}
	res, err := svc.ClockOut(ctx, "u1", inside())
	if err != nil {
		t.Fatalf("ClockOut() error = %v", err)
	}
	if res.Status != StatusDone || res.Record.Status != models.ShiftClosed {
		t.Fatalf("ClockOut() = %+v", res)
	}
	if !res.Record.HasClockIn() || res.Record.ClockInSource != models.SourceLastKnown {
		t.Errorf("clock-in fields lost: %+v", res.Record)
	}

	res, err = svc.ClockOut(ctx, "u1", inside())
	if err != nil || res.Status != StatusAlreadyDone {
		t.Errorf("second ClockOut() = %+v, %v", res, err)
	}
	if got := shifts.upsertCount(); got != 2 {
		t.Errorf("upserts = %d, want 2", got)
	}
}

func TestVoidedShiftIsTerminal(t *testing.T) {
	in := testNow.Add(-time.Hour)
	tests := []struct {
		name   string
		record *models.ShiftRecord
		clock  func(*AttendanceService) (*ClockResult, error)
	}{
		{
			name:   "Clock-in on void record",
			record: &models.ShiftRecord{ID: "v1", UserID: "u1", WorkDate: "2026-02-02", Status: models.ShiftVoid},
			clock: func(s *AttendanceService) (*ClockResult, error) {
				return s.ClockIn(context.Background(), "u1", inside())
			},
		},
		{
			name:   "Clock-out on void record with clock-in",
			record: &models.ShiftRecord{ID: "v1", UserID: "u1", WorkDate: "2026-02-02", Status: models.ShiftVoid, ClockInAt: &in},
			clock: func(s *AttendanceService) (*ClockResult, error) {
				return s.ClockOut(context.Background(), "u1", inside())
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shifts := newMockShiftRepo()
			shifts.records["u1/2026-02-02"] = tt.record
			svc := newTestService(shifts, &mockEventRepo{}, nil, nil)

			res, err := tt.clock(svc)
			if err != nil {
				t.Fatalf("error = %v", err)
			}
			if res.Status != StatusVoided || res.Message != svc.Catalog().ShiftVoided() {
				t.Errorf("result = %+v, want voided", res)
			}
			if got := shifts.upsertCount(); got != 0 {
				t.Errorf("upserts = %d, want 0", got)
			}
			if shifts.records["u1/2026-02-02"].Status != models.ShiftVoid {
				t.Errorf("stored status = %s, want void", shifts.records["u1/2026-02-02"].Status)
			}
		})
	}
}

func TestEventAppendFailureSwallowed(t *testing.T) {
	shifts := newMockShiftRepo()
	svc := newTestService(shifts, &mockEventRepo{err: errors.New("insert denied")}, nil, nil)

	res, err := svc.ClockIn(context.Background(), "u1", inside())
	if err != nil {
		t.Fatalf("ClockIn() error = %v, want nil", err)
	}
	if res.Status != StatusDone {
		t.Errorf("status = %v, want done", res.Status)
	}
}

func TestBackendErrorSurfaced(t *testing.T) {
	shifts := newMockShiftRepo()
	shifts.upsertErr = errors.New("403 The request requires valid record authorization token.")
	svc := newTestService(shifts, &mockEventRepo{}, nil, nil)

	_, err := svc.ClockIn(context.Background(), "u1", inside())
	var backend *BackendError
	if !errors.As(err, &backend) {
		t.Fatalf("error = %v, want BackendError", err)
	}
	if msg := svc.Catalog().Message(err); msg != shifts.upsertErr.Error() {
		t.Errorf("message = %q, want raw backend message", msg)
	}
	if svc.Busy("u1") {
		t.Error("busy flag not cleared")
	}
	if svc.session("u1").cachedToday("2026-02-02") != nil {
		t.Error("in-memory record updated after failed write")
	}
}

func TestLocationFailures(t *testing.T) {
	t.Run("Unavailable without fallback", func(t *testing.T) {
		svc := newTestService(newMockShiftRepo(), &mockEventRepo{}, nil, nil)
		_, err := svc.ClockIn(context.Background(), "u1", location.NewReported(nil))
		if !errors.Is(err, location.ErrLocationUnavailable) {
			t.Errorf("error = %v, want ErrLocationUnavailable", err)
		}
		if svc.Busy("u1") {
			t.Error("busy flag not cleared")
		}
	})

	t.Run("Fallback center notifies admin", func(t *testing.T) {
		notifier := &mockNotifier{}
		svc := newTestService(newMockShiftRepo(), &mockEventRepo{}, notifier, func(cfg *AttendanceConfig) {
			cfg.Acquirer = location.NewAcquirer(location.Config{AllowFallbackCenter: true})
		})
		res, err := svc.ClockIn(context.Background(), "u1", location.NewReported(nil))
		if err != nil {
			t.Fatalf("ClockIn() error = %v", err)
		}
		if !res.Fix.Fallback || res.Record.ClockInSource != models.SourceFallbackCenter {
			t.Errorf("result = %+v", res)
		}
		if notifier.count() != 1 {
			t.Errorf("admin notifications = %d, want 1", notifier.count())
		}
	})
}

func TestBusyIsNoOp(t *testing.T) {
	shifts := newMockShiftRepo()
	shifts.block = make(chan struct{})
	svc := newTestService(shifts, &mockEventRepo{}, nil, nil)

	first := make(chan *ClockResult, 1)
	go func() {
		res, _ := svc.ClockIn(context.Background(), "u1", inside())
		first <- res
	}()

	deadline := time.Now().Add(time.Second)
	for !svc.Busy("u1") && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	res, err := svc.ClockIn(context.Background(), "u1", inside())
	if err != nil || res.Status != StatusBusy {
		t.Errorf("concurrent ClockIn() = %+v, %v; want busy", res, err)
	}

	close(shifts.block)
	if res := <-first; res == nil || res.Status != StatusDone {
		t.Errorf("first ClockIn() = %+v, want done", res)
	}
	if got := shifts.upsertCount(); got != 1 {
		t.Errorf("upserts = %d, want 1", got)
	}
}

func TestWatchdog(t *testing.T) {
	shifts := newMockShiftRepo()
	shifts.block = make(chan struct{})
	svc := newTestService(shifts, &mockEventRepo{}, nil, func(cfg *AttendanceConfig) {
		cfg.Watchdog = 50 * time.Millisecond
	})

	_, err := svc.ClockIn(context.Background(), "u1", inside())
	var timeout *TimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("error = %v, want TimeoutError", err)
	}
	if timeout.Phase != PhaseSaving {
		t.Errorf("phase = %v, want %v", timeout.Phase, PhaseSaving)
	}
	if svc.Busy("u1") {
		t.Error("busy flag not cleared by watchdog")
	}

	// The stalled write completes later and is still applied.
	close(shifts.block)
	deadline := time.Now().Add(time.Second)
	for svc.session("u1").cachedToday("2026-02-02") == nil {
		if time.Now().After(deadline) {
			t.Fatal("late result was not applied")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestWorkDate(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{"Morning KST", time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC), "2026-02-02"},
		{"Just before midnight KST", time.Date(2026, 2, 2, 14, 59, 0, 0, time.UTC), "2026-02-02"},
		{"After midnight KST", time.Date(2026, 2, 2, 15, 0, 0, 0, time.UTC), "2026-02-03"},
		{"Host zone does not matter", time.Date(2026, 2, 2, 10, 0, 0, 0, time.FixedZone("PST", -8*3600)), "2026-02-03"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WorkDate(tt.at, DefaultWorkDateZone); got != tt.want {
				t.Errorf("WorkDate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCatalogMessage(t *testing.T) {
	c := NewCatalog(LocaleEnglish, nil)

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"Permission denied", &location.PermissionDeniedError{SettingsURL: "app-settings:"}, "app-settings:"},
		{"Service disabled", location.ErrServiceDisabled, "location services"},
		{"Unavailable", location.ErrLocationUnavailable, "Could not determine"},
		{"Timeout", &TimeoutError{Phase: PhaseLocating}, "locating"},
		{"Geofence", &GeofenceViolationError{DistanceMeters: 1234.4, RadiusMeters: 1000}, "1234m"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Message(tt.err); !strings.Contains(got, tt.want) {
				t.Errorf("Message() = %q, want it to contain %q", got, tt.want)
			}
		})
	}

	if NewCatalog("fr", nil).Locale() != LocaleKorean {
		t.Error("unknown locale should fall back to Korean")
	}
}

func TestHistory(t *testing.T) {
	shifts := newMockShiftRepo()
	old := time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC)
	shifts.records["u1/2026-01-20"] = &models.ShiftRecord{ID: "a", UserID: "u1", WorkDate: "2026-01-20", ClockInAt: &old}
	shifts.records["u1/2026-01-30"] = &models.ShiftRecord{ID: "b", UserID: "u1", WorkDate: "2026-01-30", ClockInAt: &old}
	svc := newTestService(shifts, &mockEventRepo{}, nil, nil)

	records, err := svc.History(context.Background(), "u1", 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].ID != "b" {
		t.Errorf("History() = %+v, want only 2026-01-30", records)
	}
}
