// Package pbapp reads backend records in-process when running inside the PocketBase host
package pbapp

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"

	"fieldops/internal/models"
	"fieldops/internal/repository"
)

const (
	usersCollection = "users"
	pageSize        = 200
)

// UserRepository implements repository.UserRepository on a running PocketBase app
type UserRepository struct {
	app core.App
}

func NewUserRepository(app core.App) *UserRepository {
	return &UserRepository{app: app}
}

func (r *UserRepository) GetByTelegramChatID(ctx context.Context, chatID int64) (*models.User, error) {
	rec, err := r.app.FindFirstRecordByFilter(usersCollection, "telegram_chat_id = {:chat}", dbx.Params{"chat": chatID})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by chat %d: %w", chatID, err)
	}
	u := toUser(rec)
	return &u, nil
}

func (r *UserRepository) ListPushEligible(ctx context.Context) ([]models.User, error) {
	var users []models.User
	for offset := 0; ; offset += pageSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		records, err := r.app.FindRecordsByFilter(usersCollection,
			"is_admin = true && push_enabled = true && expo_push_token != ''", "id", pageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("failed to list push recipients: %w", err)
		}
		for _, rec := range records {
			users = append(users, toUser(rec))
		}
		if len(records) < pageSize {
			return users, nil
		}
	}
}

func toUser(rec *core.Record) models.User {
	return models.User{
		ID:             rec.Id,
		Name:           rec.GetString("name"),
		TelegramChatID: int64(rec.GetInt("telegram_chat_id")),
		IsAdmin:        rec.GetBool("is_admin"),
		PushToken:      rec.GetString("expo_push_token"),
	}
}

var _ repository.UserRepository = (*UserRepository)(nil)
