package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"fieldops/internal/models"
	"fieldops/internal/push"
	"fieldops/internal/repository"
)

// ReasonNoAdminTokens is reported when nobody is eligible for the notification
const ReasonNoAdminTokens = "no_admin_tokens"

const (
	hazardTitleRunes  = 40
	defaultRelayLimit = 4
)

// ErrRelayNotConfigured is returned when the relay lacks a token source or gateway
var ErrRelayNotConfigured = errors.New("push relay is not configured")

// HazardRelay forwards hazard reports to admins
type HazardRelay interface {
	Relay(ctx context.Context, report models.HazardReport) (*RelayResult, error)
}

// BatchResult is the gateway outcome for one batch
type BatchResult struct {
	Batch  int    `json:"batch"`
	Count  int    `json:"count"`
	OK     bool   `json:"ok"`
	Status int    `json:"status,omitempty"`
	Failed int    `json:"failedTickets,omitempty"`
	Error  string `json:"error,omitempty"`
}

// RelayResult is the relay response body
type RelayResult struct {
	OK                  bool          `json:"ok"`
	AdminCountWithToken int           `json:"adminCountWithToken,omitempty"`
	Sent                int           `json:"sent"`
	Reason              string        `json:"reason,omitempty"`
	Results             []BatchResult `json:"results,omitempty"`
}

// PushRelayConfig tunes PushRelay
type PushRelayConfig struct {
	BatchSize     int
	Concurrency   int
	MirrorTimeout time.Duration
	Catalog       Catalog
}

// PushRelay fans a hazard report out to every eligible admin device
type PushRelay struct {
	users       repository.UserRepository
	gateway     push.Sender
	notifier    BotNotifier
	batchSize   int
	concurrency int
	mirrorTTL   time.Duration
	catalog     Catalog
}

// NewPushRelay creates a relay. notifier is optional and receives a copy for the admin chat.
func NewPushRelay(users repository.UserRepository, gateway push.Sender, notifier BotNotifier, cfg PushRelayConfig) *PushRelay {
	if cfg.BatchSize <= 0 || cfg.BatchSize > push.MaxBatchSize {
		cfg.BatchSize = push.MaxBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultRelayLimit
	}
	if cfg.MirrorTimeout <= 0 {
		cfg.MirrorTimeout = DefaultNotifyTimeout
	}
	if cfg.Catalog.locale == "" {
		cfg.Catalog = NewCatalog(LocaleKorean, nil)
	}
	return &PushRelay{
		users:       users,
		gateway:     gateway,
		notifier:    notifier,
		batchSize:   cfg.BatchSize,
		concurrency: cfg.Concurrency,
		mirrorTTL:   cfg.MirrorTimeout,
		catalog:     cfg.Catalog,
	}
}

// Relay sends report to every eligible token. Gateway failures are reported per batch
// and never fail the call; only a failed recipient lookup does.
func (p *PushRelay) Relay(ctx context.Context, report models.HazardReport) (*RelayResult, error) {
	if p == nil || p.users == nil || p.gateway == nil {
		return nil, ErrRelayNotConfigured
	}

	mirrored := make(chan struct{})
	go func() {
		defer close(mirrored)
		p.mirror(ctx, report)
	}()
	defer func() { <-mirrored }()

	users, err := p.users.ListPushEligible(ctx)
	if err != nil {
		return nil, &BackendError{Op: "list push recipients", Err: err}
	}

	tokens := eligibleTokens(users)
	if len(tokens) == 0 {
		log.Printf("📭 Hazard report %s: no admin tokens", report.ReportID)
		return &RelayResult{OK: true, Sent: 0, Reason: ReasonNoAdminTokens}, nil
	}

	batches := push.Batches(tokens, p.batchSize)
	results := make([]BatchResult, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, batch := range batches {
		g.Go(func() error {
			results[i] = p.sendBatch(gctx, i, batch, report)
			return nil
		})
	}
	_ = g.Wait()

	sent := 0
	for _, r := range results {
		if r.OK {
			sent += r.Count
		}
	}

	log.Printf("📨 Hazard report %s: sent to %d of %d tokens in %d batches", report.ReportID, sent, len(tokens), len(batches))
	return &RelayResult{
		OK:                  true,
		AdminCountWithToken: len(tokens),
		Sent:                sent,
		Results:             results,
	}, nil
}

func (p *PushRelay) sendBatch(ctx context.Context, i int, tokens []string, report models.HazardReport) BatchResult {
	res := BatchResult{Batch: i, Count: len(tokens)}

	resp, err := p.gateway.Send(ctx, p.message(tokens, report))
	if err != nil {
		var gwErr *push.GatewayError
		if errors.As(err, &gwErr) {
			res.Status = gwErr.Status
		}
		res.Error = err.Error()
		log.Printf("❌ Push batch %d (%d tokens) failed: %v", i, len(tokens), err)
		return res
	}

	res.OK = true
	res.Status = resp.Status
	for _, t := range resp.Tickets {
		if t.Status != "ok" {
			res.Failed++
		}
	}
	return res
}

func (p *PushRelay) message(tokens []string, report models.HazardReport) push.Message {
	return push.Message{
		To:       tokens,
		Title:    p.title(report.Comment),
		Body:     p.catalog.HazardBody(),
		Sound:    "default",
		Priority: "high",
		Data: map[string]any{
			"type":       "hazard_report",
			"report_id":  report.ReportID,
			"comment":    report.Comment,
			"photo_url":  report.PhotoURL,
			"created_by": report.CreatedBy,
		},
	}
}

func (p *PushRelay) title(comment string) string {
	comment = strings.Join(strings.Fields(comment), " ")
	if comment == "" {
		return p.catalog.HazardTitle()
	}
	return truncateRunes(comment, hazardTitleRunes)
}

// mirror copies the report to the admin chat. It runs beside the push fan-out.
func (p *PushRelay) mirror(ctx context.Context, report models.HazardReport) {
	if p.notifier == nil {
		return
	}
	msg := p.catalog.HazardAdmin(report.Comment, report.PhotoURL, report.CreatedBy)
	attempt(ctx, p.mirrorTTL, "hazard admin mirror", func(context.Context) error {
		p.notifier.SendNotification(msg)
		return nil
	})
}

// eligibleTokens keeps well-formed tokens, dropping duplicates
func eligibleTokens(users []models.User) []string {
	seen := make(map[string]bool, len(users))
	var tokens []string
	for _, u := range users {
		t := strings.TrimSpace(u.PushToken)
		if !push.IsPushToken(t) || seen[t] {
			continue
		}
		seen[t] = true
		tokens = append(tokens, t)
	}
	return tokens
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

var _ HazardRelay = (*PushRelay)(nil)
