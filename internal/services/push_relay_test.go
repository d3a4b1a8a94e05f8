package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"fieldops/internal/models"
	"fieldops/internal/push"
)

type mockUserRepo struct {
	users []models.User
	err   error
}

func (m *mockUserRepo) GetByTelegramChatID(ctx context.Context, chatID int64) (*models.User, error) {
	for _, u := range m.users {
		if u.TelegramChatID == chatID {
			return &u, nil
		}
	}
	return nil, errors.New("not found")
}

func (m *mockUserRepo) ListPushEligible(ctx context.Context) ([]models.User, error) {
	return m.users, m.err
}

// mockSender fails the calls whose first token is in failFor
type mockSender struct {
	mu      sync.Mutex
	calls   []push.Message
	failFor map[string]bool
	onSend  func()
}

func (m *mockSender) Send(ctx context.Context, msg push.Message) (*push.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, msg)
	if m.onSend != nil {
		m.onSend()
	}
	if m.failFor[msg.To[0]] {
		return nil, &push.GatewayError{Status: 502, Body: "bad gateway"}
	}
	tickets := make([]push.Ticket, len(msg.To))
	for i := range tickets {
		tickets[i] = push.Ticket{Status: "ok"}
	}
	return &push.Response{Status: 200, Tickets: tickets}, nil
}

func adminsWithTokens(n int) []models.User {
	users := make([]models.User, n)
	for i := range users {
		users[i] = models.User{
			ID:        fmt.Sprintf("admin%d", i),
			IsAdmin:   true,
			PushToken: fmt.Sprintf("ExponentPushToken[tok%03d]", i),
		}
	}
	return users
}

func TestRelayBatches(t *testing.T) {
	users := adminsWithTokens(250)
	sender := &mockSender{failFor: map[string]bool{users[90].PushToken: true}}
	relay := NewPushRelay(&mockUserRepo{users: users}, sender, nil, PushRelayConfig{})

	res, err := relay.Relay(context.Background(), models.HazardReport{ReportID: "r1", Comment: "Loose scaffold"})
	if err != nil {
		t.Fatalf("Relay() error = %v", err)
	}

	if len(sender.calls) != 3 {
		t.Fatalf("gateway calls = %d, want 3", len(sender.calls))
	}
	sizes := map[int]int{}
	for _, c := range sender.calls {
		sizes[len(c.To)]++
	}
	if sizes[90] != 2 || sizes[70] != 1 {
		t.Errorf("batch sizes = %v, want two of 90 and one of 70", sizes)
	}

	if !res.OK || res.AdminCountWithToken != 250 {
		t.Errorf("result = %+v", res)
	}
	// the failed second batch drops only its own 90 tokens
	if res.Sent != 160 {
		t.Errorf("Sent = %d, want 160", res.Sent)
	}
	if len(res.Results) != 3 {
		t.Fatalf("Results = %d, want 3", len(res.Results))
	}
	if res.Results[1].OK || res.Results[1].Status != 502 {
		t.Errorf("second batch = %+v, want failed with 502", res.Results[1])
	}
	if !res.Results[0].OK || !res.Results[2].OK || res.Results[2].Count != 70 {
		t.Errorf("batches = %+v", res.Results)
	}
}

// gatedNotifier holds every admin message until release is closed
type gatedNotifier struct {
	mockNotifier
	release chan struct{}
}

func (g *gatedNotifier) SendNotification(message string) {
	<-g.release
	g.mockNotifier.SendNotification(message)
}

func TestRelayMirrorRunsAlongsideGateway(t *testing.T) {
	notifier := &gatedNotifier{release: make(chan struct{})}
	var once sync.Once
	sender := &mockSender{onSend: func() { once.Do(func() { close(notifier.release) }) }}
	relay := NewPushRelay(&mockUserRepo{users: adminsWithTokens(3)}, sender, notifier,
		PushRelayConfig{MirrorTimeout: 2 * time.Second})

	start := time.Now()
	res, err := relay.Relay(context.Background(), models.HazardReport{ReportID: "r1", Comment: "Gas leak"})
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("Relay() error = %v", err)
	}

	if res.Sent != 3 {
		t.Errorf("Sent = %d, want 3", res.Sent)
	}
	if elapsed > time.Second {
		t.Errorf("Relay() took %s, the mirror must not hold up the gateway", elapsed)
	}
	if got := notifier.count(); got != 1 {
		t.Errorf("admin messages = %d, want 1", got)
	}
}

func TestRelayNoTokens(t *testing.T) {
	users := []models.User{
		{ID: "a", IsAdmin: true, PushToken: "not-a-token"},
		{ID: "b", IsAdmin: true, PushToken: ""},
	}
	sender := &mockSender{}
	relay := NewPushRelay(&mockUserRepo{users: users}, sender, nil, PushRelayConfig{})

	res, err := relay.Relay(context.Background(), models.HazardReport{ReportID: "r1"})
	if err != nil {
		t.Fatalf("Relay() error = %v", err)
	}
	if !res.OK || res.Sent != 0 || res.Reason != ReasonNoAdminTokens {
		t.Errorf("result = %+v, want no_admin_tokens", res)
	}
	if len(sender.calls) != 0 {
		t.Errorf("gateway calls = %d, want 0", len(sender.calls))
	}
}

func TestRelayFiltersAndDedupes(t *testing.T) {
	users := []models.User{
		{ID: "a", PushToken: "ExpoPushToken[abc]"},
		{ID: "b", PushToken: " ExpoPushToken[abc] "},
		{ID: "c", PushToken: "ExponentPushToken[def]"},
		{ID: "d", PushToken: "fcm:xyz"},
	}
	sender := &mockSender{}
	relay := NewPushRelay(&mockUserRepo{users: users}, sender, nil, PushRelayConfig{})

	res, err := relay.Relay(context.Background(), models.HazardReport{ReportID: "r1"})
	if err != nil {
		t.Fatal(err)
	}
	if res.AdminCountWithToken != 2 || res.Sent != 2 {
		t.Errorf("result = %+v, want 2 tokens", res)
	}
}

func TestRelayMessage(t *testing.T) {
	sender := &mockSender{}
	notifier := &mockNotifier{}
	relay := NewPushRelay(&mockUserRepo{users: adminsWithTokens(1)}, sender, notifier,
		PushRelayConfig{Catalog: NewCatalog(LocaleEnglish, nil)})

	report := models.HazardReport{
		ReportID:  "r9",
		Comment:   strings.Repeat("가", 60),
		PhotoURL:  "https://files.example.com/r9.jpg",
		CreatedBy: "user7",
	}
	if _, err := relay.Relay(context.Background(), report); err != nil {
		t.Fatal(err)
	}

	msg := sender.calls[0]
	if n := utf8.RuneCountInString(msg.Title); n != hazardTitleRunes {
		t.Errorf("title runes = %d, want %d", n, hazardTitleRunes)
	}
	if msg.Sound != "default" || msg.Priority != "high" {
		t.Errorf("sound/priority = %s/%s", msg.Sound, msg.Priority)
	}
	if msg.Data["type"] != "hazard_report" || msg.Data["report_id"] != "r9" || msg.Data["photo_url"] != report.PhotoURL {
		t.Errorf("data = %v", msg.Data)
	}
	if notifier.count() != 1 {
		t.Errorf("admin mirror messages = %d, want 1", notifier.count())
	}

	sender.calls = nil
	if _, err := relay.Relay(context.Background(), models.HazardReport{ReportID: "r10", Comment: "  "}); err != nil {
		t.Fatal(err)
	}
	if sender.calls[0].Title != "🚨 New hazard report" {
		t.Errorf("empty comment title = %q", sender.calls[0].Title)
	}
}

func TestRelayErrors(t *testing.T) {
	var nilRelay *PushRelay
	if _, err := nilRelay.Relay(context.Background(), models.HazardReport{}); !errors.Is(err, ErrRelayNotConfigured) {
		t.Errorf("nil relay error = %v", err)
	}

	relay := NewPushRelay(&mockUserRepo{err: errors.New("connection refused")}, &mockSender{}, nil, PushRelayConfig{})
	_, err := relay.Relay(context.Background(), models.HazardReport{})
	var backend *BackendError
	if !errors.As(err, &backend) {
		t.Errorf("error = %v, want BackendError", err)
	}
}
