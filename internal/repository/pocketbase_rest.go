// Package repository provides PocketBase REST API implementations
package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"

	"fieldops/internal/models"
)

const (
	shiftRecordsPath = "/api/collections/shift_records/records"
	shiftEventsPath  = "/api/collections/shift_events/records"
	usersPath        = "/api/collections/users/records"
)

type listResponse[T any] struct {
	Page       int `json:"page"`
	PerPage    int `json:"perPage"`
	TotalPages int `json:"totalPages"`
	Items      []T `json:"items"`
}

type shiftRecordDTO struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	WorkDate string `json:"work_date"`
	Status   string `json:"status"`

	ClockInAt        string   `json:"clock_in_at"`
	ClockInLat       *float64 `json:"clock_in_lat"`
	ClockInLng       *float64 `json:"clock_in_lng"`
	ClockInAccuracyM *float64 `json:"clock_in_accuracy_m"`
	ClockInSource    string   `json:"clock_in_source"`

	ClockOutAt        string   `json:"clock_out_at"`
	ClockOutLat       *float64 `json:"clock_out_lat"`
	ClockOutLng       *float64 `json:"clock_out_lng"`
	ClockOutAccuracyM *float64 `json:"clock_out_accuracy_m"`
	ClockOutSource    string   `json:"clock_out_source"`

	Created string `json:"created"`
	Updated string `json:"updated"`
}

func (d shiftRecordDTO) toModel() (*models.ShiftRecord, error) {
	rec := &models.ShiftRecord{
		ID:                d.ID,
		UserID:            d.UserID,
		WorkDate:          d.WorkDate,
		Status:            d.Status,
		ClockInLat:        d.ClockInLat,
		ClockInLng:        d.ClockInLng,
		ClockInAccuracyM:  d.ClockInAccuracyM,
		ClockInSource:     d.ClockInSource,
		ClockOutLat:       d.ClockOutLat,
		ClockOutLng:       d.ClockOutLng,
		ClockOutAccuracyM: d.ClockOutAccuracyM,
		ClockOutSource:    d.ClockOutSource,
	}

	var err error
	if rec.ClockInAt, err = parseTime(d.ClockInAt); err != nil {
		return nil, fmt.Errorf("clock_in_at: %w", err)
	}
	if rec.ClockOutAt, err = parseTime(d.ClockOutAt); err != nil {
		return nil, fmt.Errorf("clock_out_at: %w", err)
	}
	if t, _ := parseTime(d.Created); t != nil {
		rec.CreatedAt = *t
	}
	if t, _ := parseTime(d.Updated); t != nil {
		rec.UpdatedAt = *t
	}
	return rec, nil
}

// patchBody renders only the fields set in p
func patchBody(p models.ShiftPatch) map[string]any {
	data := map[string]any{}
	if p.Status != "" {
		data["status"] = p.Status
	}
	if p.ClockInAt != nil {
		data["clock_in_at"] = formatTime(*p.ClockInAt)
	}
	if p.ClockInLat != nil {
		data["clock_in_lat"] = *p.ClockInLat
	}
	if p.ClockInLng != nil {
		data["clock_in_lng"] = *p.ClockInLng
	}
	if p.ClockInAccuracyM != nil {
		data["clock_in_accuracy_m"] = *p.ClockInAccuracyM
	}
	if p.ClockInSource != "" {
		data["clock_in_source"] = p.ClockInSource
	}
	if p.ClockOutAt != nil {
		data["clock_out_at"] = formatTime(*p.ClockOutAt)
	}
	if p.ClockOutLat != nil {
		data["clock_out_lat"] = *p.ClockOutLat
	}
	if p.ClockOutLng != nil {
		data["clock_out_lng"] = *p.ClockOutLng
	}
	if p.ClockOutAccuracyM != nil {
		data["clock_out_accuracy_m"] = *p.ClockOutAccuracyM
	}
	if p.ClockOutSource != "" {
		data["clock_out_source"] = p.ClockOutSource
	}
	return data
}

// PocketBaseShiftRepository implements ShiftRepository
type PocketBaseShiftRepository struct {
	client *Client
}

// NewPocketBaseShiftRepository creates repository
func NewPocketBaseShiftRepository(client *Client) *PocketBaseShiftRepository {
	return &PocketBaseShiftRepository{client: client}
}

func (r *PocketBaseShiftRepository) GetByUserAndDate(ctx context.Context, userID, workDate string) (*models.ShiftRecord, error) {
	filter := fmt.Sprintf("user_id=%s && work_date=%s", quote(userID), quote(workDate))
	apiURL := fmt.Sprintf("%s?filter=%s&perPage=1&skipTotal=1", shiftRecordsPath, url.QueryEscape(filter))

	log.Printf("🔍 Loading shift for user %s on %s", userID, workDate)

	var result listResponse[shiftRecordDTO]
	if err := r.client.do(ctx, http.MethodGet, apiURL, nil, &result); err != nil {
		return nil, fmt.Errorf("failed to get shift record: %w", err)
	}
	if len(result.Items) == 0 {
		return nil, nil
	}
	return result.Items[0].toModel()
}

func (r *PocketBaseShiftRepository) ListByUser(ctx context.Context, userID, sinceDate string, limit int) ([]models.ShiftRecord, error) {
	if limit <= 0 {
		limit = 30
	}
	filter := fmt.Sprintf("user_id=%s && work_date>=%s", quote(userID), quote(sinceDate))
	apiURL := fmt.Sprintf("%s?filter=%s&sort=-work_date&perPage=%d&skipTotal=1", shiftRecordsPath, url.QueryEscape(filter), limit)

	var result listResponse[shiftRecordDTO]
	if err := r.client.do(ctx, http.MethodGet, apiURL, nil, &result); err != nil {
		return nil, fmt.Errorf("failed to list shift records: %w", err)
	}

	records := make([]models.ShiftRecord, 0, len(result.Items))
	for _, item := range result.Items {
		rec, err := item.toModel()
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, nil
}

// Upsert patches the existing (user, work date) row or creates it. A create that loses a
// race against another writer hits the unique index and is retried as a patch.
func (r *PocketBaseShiftRepository) Upsert(ctx context.Context, userID, workDate string, patch models.ShiftPatch) (*models.ShiftRecord, error) {
	existing, err := r.GetByUserAndDate(ctx, userID, workDate)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return r.update(ctx, existing.ID, patch)
	}

	data := patchBody(patch)
	data["user_id"] = userID
	data["work_date"] = workDate

	var created shiftRecordDTO
	err = r.client.do(ctx, http.MethodPost, shiftRecordsPath, data, &created)
	if err == nil {
		log.Printf("💾 Created shift %s for user %s on %s", created.ID, userID, workDate)
		return created.toModel()
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest {
		return nil, fmt.Errorf("failed to create shift record: %w", err)
	}

	existing, getErr := r.GetByUserAndDate(ctx, userID, workDate)
	if getErr != nil || existing == nil {
		return nil, fmt.Errorf("failed to create shift record: %w", err)
	}
	log.Printf("⚠️ Shift for user %s on %s created concurrently, overwriting %s", userID, workDate, existing.ID)
	return r.update(ctx, existing.ID, patch)
}

func (r *PocketBaseShiftRepository) update(ctx context.Context, id string, patch models.ShiftPatch) (*models.ShiftRecord, error) {
	var updated shiftRecordDTO
	if err := r.client.do(ctx, http.MethodPatch, shiftRecordsPath+"/"+url.PathEscape(id), patchBody(patch), &updated); err != nil {
		return nil, fmt.Errorf("failed to update shift record: %w", err)
	}
	log.Printf("💾 Updated shift %s (status %s)", id, updated.Status)
	return updated.toModel()
}

// PocketBaseShiftEventRepository implements ShiftEventRepository
type PocketBaseShiftEventRepository struct {
	client *Client
}

func NewPocketBaseShiftEventRepository(client *Client) *PocketBaseShiftEventRepository {
	return &PocketBaseShiftEventRepository{client: client}
}

func (r *PocketBaseShiftEventRepository) Append(ctx context.Context, event *models.ShiftEvent) error {
	data := map[string]any{
		"shift_id":    event.ShiftID,
		"user_id":     event.UserID,
		"event_type":  event.EventType,
		"occurred_at": formatTime(event.OccurredAt),
		"lat":         event.Lat,
		"lng":         event.Lng,
		"source":      event.Source,
		"payload":     event.Payload,
	}
	if event.AccuracyM != nil {
		data["accuracy_m"] = *event.AccuracyM
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := r.client.do(ctx, http.MethodPost, shiftEventsPath, data, &result); err != nil {
		return fmt.Errorf("failed to create shift event: %w", err)
	}

	event.ID = result.ID
	log.Printf("💾 Logged %s event %s for shift %s", event.EventType, event.ID, event.ShiftID)
	return nil
}

type userDTO struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	TelegramChatID int64  `json:"telegram_chat_id"`
	IsAdmin        bool   `json:"is_admin"`
	PushToken      string `json:"expo_push_token"`
}

func (d userDTO) toModel() models.User {
	return models.User{
		ID:             d.ID,
		Name:           d.Name,
		TelegramChatID: d.TelegramChatID,
		IsAdmin:        d.IsAdmin,
		PushToken:      d.PushToken,
	}
}

// PocketBaseUserRepository implements UserRepository
type PocketBaseUserRepository struct {
	client  *Client
	perPage int
}

func NewPocketBaseUserRepository(client *Client) *PocketBaseUserRepository {
	return &PocketBaseUserRepository{client: client, perPage: 200}
}

func (r *PocketBaseUserRepository) GetByTelegramChatID(ctx context.Context, chatID int64) (*models.User, error) {
	filter := fmt.Sprintf("telegram_chat_id=%d", chatID)
	apiURL := fmt.Sprintf("%s?filter=%s&perPage=1&skipTotal=1", usersPath, url.QueryEscape(filter))

	log.Printf("🔍 Looking up user by chat: %d", chatID)

	var result listResponse[userDTO]
	if err := r.client.do(ctx, http.MethodGet, apiURL, nil, &result); err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if len(result.Items) == 0 {
		return nil, ErrNotFound
	}

	user := result.Items[0].toModel()
	return &user, nil
}

// ListPushEligible walks every page of eligible admins
func (r *PocketBaseUserRepository) ListPushEligible(ctx context.Context) ([]models.User, error) {
	filter := url.QueryEscape("is_admin=true && push_enabled=true && expo_push_token!=''")

	var users []models.User
	for page := 1; ; page++ {
		apiURL := fmt.Sprintf("%s?filter=%s&page=%d&perPage=%d&fields=id,name,telegram_chat_id,is_admin,expo_push_token",
			usersPath, filter, page, r.perPage)

		var result listResponse[userDTO]
		if err := r.client.do(ctx, http.MethodGet, apiURL, nil, &result); err != nil {
			return nil, fmt.Errorf("failed to list push recipients: %w", err)
		}
		for _, item := range result.Items {
			users = append(users, item.toModel())
		}
		if len(result.Items) == 0 || page >= result.TotalPages {
			break
		}
	}

	log.Printf("🔍 Found %d push-eligible admins", len(users))
	return users, nil
}

// Ensure implementations satisfy the interfaces
var (
	_ ShiftRepository      = (*PocketBaseShiftRepository)(nil)
	_ ShiftEventRepository = (*PocketBaseShiftEventRepository)(nil)
	_ UserRepository       = (*PocketBaseUserRepository)(nil)
)
