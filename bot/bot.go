package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"fieldops/internal/location"
	"fieldops/internal/models"
	"fieldops/internal/repository"
	"fieldops/internal/services"
)

// Bot is the Telegram front end of the attendance workflow
type Bot struct {
	api        *tgbotapi.BotAPI
	send       Messenger
	users      repository.UserRepository
	attendance services.AttendanceProcessor
	hub        *LocationHub
}

// NewAPI connects to Telegram with token
func NewAPI(token string) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	api.Debug = false
	log.Printf("Authorized on account %s", api.Self.UserName)
	return api, nil
}

// New creates a bot serving attendance commands over api
func New(api *tgbotapi.BotAPI, users repository.UserRepository, attendance services.AttendanceProcessor, hub *LocationHub) *Bot {
	b := newBot(api, users, attendance, hub)
	b.api = api
	return b
}

func newBot(send Messenger, users repository.UserRepository, attendance services.AttendanceProcessor, hub *LocationHub) *Bot {
	if hub == nil {
		hub = NewLocationHub(0)
	}
	return &Bot{send: send, users: users, attendance: attendance, hub: hub}
}

// StartPolling starts the update loop. It stops when ctx is done.
func (b *Bot) StartPolling(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				b.api.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				b.handleUpdate(ctx, update)
			}
		}
	}()
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	// live locations arrive as edits of the original message
	if msg := update.EditedMessage; msg != nil && msg.Location != nil {
		b.handleLocation(msg)
		return
	}

	msg := update.Message
	if msg == nil {
		return
	}
	if msg.Location != nil {
		b.handleLocation(msg)
		return
	}
	if msg.IsCommand() {
		// clock commands wait for a location, so each command gets its own goroutine
		go b.handleCommand(ctx, msg)
	}
}

func (b *Bot) handleLocation(msg *tgbotapi.Message) {
	loc := msg.Location
	p := models.Position{Latitude: loc.Latitude, Longitude: loc.Longitude}
	if loc.HorizontalAccuracy > 0 {
		acc := loc.HorizontalAccuracy
		p.AccuracyM = &acc
	}
	b.hub.Publish(msg.Chat.ID, p)
}

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	catalog := b.attendance.Catalog()
	chatID := message.Chat.ID

	msg := tgbotapi.NewMessage(chatID, "")

	switch message.Command() {
	case "start":
		msg.Text = catalog.Help()

	case "getid":
		msg.Text = fmt.Sprintf("Chat ID: `%d`", chatID)
		msg.ParseMode = tgbotapi.ModeMarkdown

	case "clockin":
		b.clock(ctx, chatID, models.EventClockIn, &msg)

	case "clockout":
		b.clock(ctx, chatID, models.EventClockOut, &msg)

	case "today":
		b.today(ctx, chatID, &msg)

	case "history":
		b.history(ctx, chatID, &msg)

	default:
		msg.Text = catalog.Help()
	}

	b.reply(msg)
}

func (b *Bot) reply(msg tgbotapi.MessageConfig) {
	if _, err := b.send.Send(msg); err != nil {
		log.Printf("Bot send error: %v", err)
	}
}

// user resolves the backend user of chatID. On failure msg carries the reply.
func (b *Bot) user(ctx context.Context, chatID int64, msg *tgbotapi.MessageConfig) (*models.User, bool) {
	user, err := b.users.GetByTelegramChatID(ctx, chatID)
	if errors.Is(err, repository.ErrNotFound) {
		msg.Text = b.attendance.Catalog().NotRegistered(chatID)
		return nil, false
	}
	if err != nil {
		log.Printf("❌ User lookup for chat %d failed: %v", chatID, err)
		msg.Text = err.Error()
		return nil, false
	}
	return user, true
}

func (b *Bot) clock(ctx context.Context, chatID int64, event string, msg *tgbotapi.MessageConfig) {
	user, ok := b.user(ctx, chatID, msg)
	if !ok {
		return
	}

	run := b.attendance.ClockIn
	if event == models.EventClockOut {
		run = b.attendance.ClockOut
	}
	src := &promptingSource{Source: b.hub.Source(chatID), prompt: func() { b.promptLocation(chatID) }}
	res, err := run(ctx, user.ID, src)
	if err != nil {
		msg.Text = b.attendance.Catalog().Message(err)
	} else {
		msg.Text = res.Message
	}
	msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
}

// promptLocation shows a one-tap location button
func (b *Bot) promptLocation(chatID int64) {
	text := b.attendance.Catalog().ShareLocation()
	keyboard := tgbotapi.NewReplyKeyboard(tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButtonLocation(text)))
	keyboard.OneTimeKeyboard = true

	prompt := tgbotapi.NewMessage(chatID, text)
	prompt.ReplyMarkup = keyboard
	b.reply(prompt)
}

// promptingSource asks the chat for a location the first time a fresh reading is awaited
type promptingSource struct {
	location.Source
	prompt func()
	once   sync.Once
}

func (s *promptingSource) Current(ctx context.Context, accuracy location.Accuracy) (models.Position, error) {
	s.once.Do(s.prompt)
	return s.Source.Current(ctx, accuracy)
}

func (s *promptingSource) Watch(ctx context.Context, accuracy location.Accuracy) (location.Subscription, error) {
	s.once.Do(s.prompt)
	return s.Source.Watch(ctx, accuracy)
}

func (b *Bot) today(ctx context.Context, chatID int64, msg *tgbotapi.MessageConfig) {
	user, ok := b.user(ctx, chatID, msg)
	if !ok {
		return
	}
	catalog := b.attendance.Catalog()

	rec, err := b.attendance.Today(ctx, user.ID)
	switch {
	case err != nil:
		msg.Text = catalog.Message(err)
	case rec == nil:
		msg.Text = catalog.NoRecordToday()
	default:
		msg.Text = "📊 " + formatShift(catalog, rec)
	}
}

func (b *Bot) history(ctx context.Context, chatID int64, msg *tgbotapi.MessageConfig) {
	user, ok := b.user(ctx, chatID, msg)
	if !ok {
		return
	}
	catalog := b.attendance.Catalog()

	records, err := b.attendance.History(ctx, user.ID, services.DefaultHistoryDays)
	if err != nil {
		msg.Text = catalog.Message(err)
		return
	}
	if len(records) == 0 {
		msg.Text = catalog.NoHistory()
		return
	}

	var sb strings.Builder
	sb.WriteString("📅\n")
	for i := range records {
		sb.WriteString(formatShift(catalog, &records[i]))
		sb.WriteByte('\n')
	}
	msg.Text = sb.String()
}

// formatShift renders one record as "2026-02-02 09:00 → 18:05 (closed)"
func formatShift(c services.Catalog, rec *models.ShiftRecord) string {
	in, out := "--:--", "--:--"
	if rec.HasClockIn() {
		in = c.Clock(*rec.ClockInAt)
	}
	if rec.HasClockOut() {
		out = c.Clock(*rec.ClockOutAt)
	}
	return fmt.Sprintf("%s %s → %s (%s)", rec.WorkDate, in, out, rec.Status)
}
