// Package bot provides the Telegram front end and the admin notifier
package bot

import (
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Messenger is the part of tgbotapi.BotAPI used to send messages
type Messenger interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier implements services.BotNotifier on top of a Telegram bot
type Notifier struct {
	api         Messenger
	adminChatID int64
}

// NewNotifier creates a new bot notifier. Admin notifications are dropped when adminChatID is 0.
func NewNotifier(api Messenger, adminChatID int64) *Notifier {
	return &Notifier{api: api, adminChatID: adminChatID}
}

// SendNotification sends a notification to the admin chat
func (n *Notifier) SendNotification(message string) {
	if n.adminChatID == 0 {
		return
	}
	n.send(n.adminChatID, message)
}

// SendPersonalNotification sends a notification to a specific user
func (n *Notifier) SendPersonalNotification(chatID int64, message string) {
	n.send(chatID, message)
}

// send tries Markdown first. User-supplied text can break entity parsing, so a
// rejected message is resent as plain text.
func (n *Notifier) send(chatID int64, text string) {
	if n == nil || n.api == nil {
		return
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	_, err := n.api.Send(msg)
	if err == nil {
		return
	}
	log.Printf("Markdown send to %d failed, retrying as plain text: %v", chatID, err)

	msg.ParseMode = ""
	if _, err := n.api.Send(msg); err != nil {
		log.Printf("Failed to send to %d: %v", chatID, err)
	}
}

// Ensure Notifier implements the BotNotifier interface
var _ interface {
	SendNotification(message string)
	SendPersonalNotification(chatID int64, message string)
} = (*Notifier)(nil)
