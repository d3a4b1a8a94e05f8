package bot

import (
	"context"
	"sync"
	"time"

	"fieldops/internal/location"
	"fieldops/internal/models"
)

// DefaultLocationMaxAge is how long a shared location counts as last-known
const DefaultLocationMaxAge = 2 * time.Minute

// LocationHub collects the locations users share in their chats. A one-off location
// answers the next Current call; live-location edits stream into active watches.
type LocationHub struct {
	mu     sync.Mutex
	maxAge time.Duration
	now    func() time.Time
	chats  map[int64]*chatLocations
}

type chatLocations struct {
	last *models.Position
	subs map[*hubSubscription]struct{}
}

// NewLocationHub creates an empty hub
func NewLocationHub(maxAge time.Duration) *LocationHub {
	if maxAge <= 0 {
		maxAge = DefaultLocationMaxAge
	}
	return &LocationHub{maxAge: maxAge, now: time.Now, chats: make(map[int64]*chatLocations)}
}

func (h *LocationHub) chat(chatID int64) *chatLocations {
	c, ok := h.chats[chatID]
	if !ok {
		c = &chatLocations{subs: make(map[*hubSubscription]struct{})}
		h.chats[chatID] = c
	}
	return c
}

// Publish records p for chatID and hands it to every waiting subscriber
func (h *LocationHub) Publish(chatID int64, p models.Position) {
	if p.Timestamp.IsZero() {
		p.Timestamp = h.now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	c := h.chat(chatID)
	c.last = &p
	for sub := range c.subs {
		select {
		case sub.ch <- p:
		default:
			// subscriber has not consumed the previous reading
		}
	}
}

// HasFresh reports whether chatID shared a location recently enough to be used as is
func (h *LocationHub) HasFresh(chatID int64) bool {
	return h.lastKnown(chatID) != nil
}

func (h *LocationHub) lastKnown(chatID int64) *models.Position {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.chats[chatID]
	if !ok || c.last == nil || h.now().Sub(c.last.Timestamp) > h.maxAge {
		return nil
	}
	p := *c.last
	return &p
}

func (h *LocationHub) subscribe(chatID int64) *hubSubscription {
	sub := &hubSubscription{hub: h, chatID: chatID, ch: make(chan models.Position, 1)}
	h.mu.Lock()
	h.chat(chatID).subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *LocationHub) unsubscribe(sub *hubSubscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.chats[sub.chatID]; ok {
		delete(c.subs, sub)
	}
}

func (h *LocationHub) subscribers(chatID int64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.chats[chatID]; ok {
		return len(c.subs)
	}
	return 0
}

// Source returns the location source of one chat
func (h *LocationHub) Source(chatID int64) location.Source {
	return &chatSource{hub: h, chatID: chatID}
}

type hubSubscription struct {
	hub    *LocationHub
	chatID int64
	ch     chan models.Position
	once   sync.Once
}

func (s *hubSubscription) Positions() <-chan models.Position { return s.ch }

func (s *hubSubscription) Stop() {
	s.once.Do(func() { s.hub.unsubscribe(s) })
}

// chatSource adapts the hub to location.Source. Sharing a location is the user's
// consent, so the source is always enabled and granted.
type chatSource struct {
	hub    *LocationHub
	chatID int64
}

func (s *chatSource) ServicesEnabled(ctx context.Context) (bool, error) { return true, nil }

func (s *chatSource) Permission(ctx context.Context) (location.Permission, error) {
	return location.PermissionGranted, nil
}

func (s *chatSource) RequestPermission(ctx context.Context) (location.Permission, error) {
	return location.PermissionGranted, nil
}

func (s *chatSource) LastKnown(ctx context.Context) (*models.Position, error) {
	return s.hub.lastKnown(s.chatID), nil
}

// Current waits for the next location shared in the chat
func (s *chatSource) Current(ctx context.Context, accuracy location.Accuracy) (models.Position, error) {
	sub := s.hub.subscribe(s.chatID)
	defer sub.Stop()

	select {
	case p := <-sub.ch:
		return p, nil
	case <-ctx.Done():
		return models.Position{}, ctx.Err()
	}
}

// Watch streams live-location updates until stopped
func (s *chatSource) Watch(ctx context.Context, accuracy location.Accuracy) (location.Subscription, error) {
	return s.hub.subscribe(s.chatID), nil
}

var (
	_ location.Source       = (*chatSource)(nil)
	_ location.Subscription = (*hubSubscription)(nil)
)
