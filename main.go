package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fieldops/bot"
	"fieldops/config"
	"fieldops/internal/handlers"
	"fieldops/internal/location"
	"fieldops/internal/push"
	"fieldops/internal/repository"
	"fieldops/internal/services"
)

// application holds the wired dependencies
type application struct {
	attendance *handlers.AttendanceHandler
	relay      *handlers.PushRelayHandler
	bot        *bot.Bot
}

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Println("Config loaded successfully")

	// Create application context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Shutdown signal received, initiating graceful shutdown...")
		cancel()
	}()

	// Initialize application dependencies
	app := initApplication(cfg)

	if app.bot != nil {
		app.bot.StartPolling(ctx)
		log.Println("Telegram Bot Initialized")
	}

	// Setup HTTP server
	mux := http.NewServeMux()
	mux.HandleFunc("/api/attendance/clock-in", app.attendance.HandleClockIn)
	mux.HandleFunc("/api/attendance/clock-out", app.attendance.HandleClockOut)
	mux.HandleFunc("/api/attendance/today", app.attendance.HandleToday)
	mux.HandleFunc("/api/push/hazard-report", app.relay.HandleHazardReport)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// clock actions may run until the attendance watchdog fires
	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handlers.RequestLogger(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: services.DefaultWatchdog + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	if cfg.Watchdog > services.DefaultWatchdog {
		server.WriteTimeout = cfg.Watchdog + 10*time.Second
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server starting on %s", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped gracefully")
}

// initApplication initializes all application dependencies
func initApplication(cfg *config.Config) *application {
	// Initialize repositories with PocketBase REST API
	client := repository.NewClient(cfg.PocketBaseURL, cfg.PocketBaseToken)
	shiftRepo := repository.NewPocketBaseShiftRepository(client)
	eventRepo := repository.NewPocketBaseShiftEventRepository(client)
	userRepo := repository.NewPocketBaseUserRepository(client)

	// Telegram is optional; without it admin notifications are dropped
	var notifier services.BotNotifier
	api, err := bot.NewAPI(cfg.TelegramBotToken)
	if err != nil {
		log.Printf("Warning: Failed to init Telegram Bot: %v", err)
	} else {
		notifier = bot.NewNotifier(api, cfg.AuthorizedChatID)
	}

	acquirer := location.NewAcquirer(location.Config{
		AllowFallbackCenter: cfg.AllowFallbackCenter,
		Geofence:            cfg.Geofence,
	})
	if cfg.AllowFallbackCenter {
		log.Println("⚠️ Fallback center enabled: clock actions without a fix are recorded at the site center")
	}

	// Initialize services
	attendanceService := services.NewAttendanceService(shiftRepo, eventRepo, notifier, services.AttendanceConfig{
		Acquirer:     acquirer,
		WorkDateZone: cfg.WorkDateZone,
		Watchdog:     cfg.Watchdog,
		Locale:       services.Locale(cfg.Locale),
	})
	relay := services.NewPushRelay(userRepo, push.NewClient(cfg.ExpoPushURL, cfg.ExpoAccessToken), notifier,
		services.PushRelayConfig{Catalog: attendanceService.Catalog()})

	app := &application{
		attendance: handlers.NewAttendanceHandler(attendanceService),
		relay:      handlers.NewPushRelayHandler(relay),
	}
	if api != nil {
		app.bot = bot.New(api, userRepo, attendanceService, bot.NewLocationHub(0))
	}
	return app
}
