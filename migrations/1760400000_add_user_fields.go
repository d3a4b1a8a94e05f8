package migrations

import (
	"github.com/pocketbase/pocketbase/core"
)

func init() {
	core.AppMigrations.Register(func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("users")
		if err != nil {
			return err
		}

		// Telegram chat the bot resolves to this user
		collection.Fields.Add(&core.NumberField{
			Id:      "usr_tg_chat",
			Name:    "telegram_chat_id",
			OnlyInt: true,
		})

		collection.Fields.Add(&core.BoolField{
			Id:   "usr_admin",
			Name: "is_admin",
		})

		// Hazard report push recipients
		collection.Fields.Add(&core.BoolField{
			Id:   "usr_push_on",
			Name: "push_enabled",
		})
		collection.Fields.Add(&core.TextField{
			Id:   "usr_push_tok",
			Name: "expo_push_token",
			Max:  255,
		})

		collection.AddIndex("idx_users_telegram_chat_id", false, "telegram_chat_id", "telegram_chat_id != 0")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("users")
		if err != nil {
			return err
		}

		collection.RemoveIndex("idx_users_telegram_chat_id")
		collection.Fields.RemoveById("usr_tg_chat")
		collection.Fields.RemoveById("usr_admin")
		collection.Fields.RemoveById("usr_push_on")
		collection.Fields.RemoveById("usr_push_tok")

		return app.Save(collection)
	})
}
