// pbserver runs PocketBase with the fieldops collections and the hazard push relay
package main

import (
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"

	"fieldops/bot"
	"fieldops/config"
	"fieldops/internal/handlers"
	"fieldops/internal/push"
	"fieldops/internal/repository/pbapp"
	"fieldops/internal/services"
	_ "fieldops/migrations"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	app := pocketbase.New()

	// auto-create migration files only while developing with go run
	isGoRun := strings.HasPrefix(os.Args[0], os.TempDir())
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Dir:          "migrations",
		TemplateLang: migratecmd.TemplateLangGo,
		Automigrate:  isGoRun,
	})

	var notifier services.BotNotifier
	if cfg.TelegramBotToken != "" {
		api, err := bot.NewAPI(cfg.TelegramBotToken)
		if err != nil {
			log.Printf("Warning: Failed to init Telegram Bot: %v", err)
		} else {
			notifier = bot.NewNotifier(api, cfg.AuthorizedChatID)
		}
	}

	app.OnServe().BindFunc(func(se *core.ServeEvent) error {
		relay := services.NewPushRelay(
			pbapp.NewUserRepository(se.App),
			push.NewClient(cfg.ExpoPushURL, cfg.ExpoAccessToken),
			notifier,
			services.PushRelayConfig{Catalog: services.NewCatalog(services.Locale(cfg.Locale), cfg.WorkDateZone)},
		)
		handler := handlers.NewPushRelayHandler(relay)

		se.Router.Any("/api/push/hazard-report", apis.WrapStdHandler(http.HandlerFunc(handler.HandleHazardReport)))
		log.Println("Hazard push relay mounted on /api/push/hazard-report")
		return se.Next()
	})

	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
}
