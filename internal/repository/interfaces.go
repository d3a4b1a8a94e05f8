// Package repository defines repository interfaces for data access
package repository

import (
	"context"

	"fieldops/internal/models"
)

// ShiftRepository defines the interface for daily shift record access
type ShiftRepository interface {
	// GetByUserAndDate returns the record for (user, work date), or nil if none exists
	GetByUserAndDate(ctx context.Context, userID, workDate string) (*models.ShiftRecord, error)
	// ListByUser returns records on or after sinceDate, newest first
	ListByUser(ctx context.Context, userID, sinceDate string, limit int) ([]models.ShiftRecord, error)
	// Upsert writes patch to the record keyed by (user, work date), creating it if needed
	Upsert(ctx context.Context, userID, workDate string, patch models.ShiftPatch) (*models.ShiftRecord, error)
}

// ShiftEventRepository defines the interface for the append-only clock event log
type ShiftEventRepository interface {
	// Append inserts a new event
	Append(ctx context.Context, event *models.ShiftEvent) error
}

// UserRepository defines the interface for user data access
type UserRepository interface {
	// GetByTelegramChatID retrieves a user bound to a Telegram chat
	GetByTelegramChatID(ctx context.Context, chatID int64) (*models.User, error)
	// ListPushEligible returns every admin flagged for push with a token set
	ListPushEligible(ctx context.Context) ([]models.User, error)
}
