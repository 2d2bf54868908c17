package integration

import (
	"context"
	"fmt"
	"log"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/abelzeko/alerts-sync/internal/entities"
)

// maxListedAlerts caps how many new alerts a notification spells out
const maxListedAlerts = 10

// Notifier is told about alerts that were just published
type Notifier interface {
	NotifyPublished(ctx context.Context, message string, added []entities.Alert) error
}

// TelegramNotifier posts publish summaries to a Telegram chat
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramNotifier creates a notifier for the given chat. apiEndpoint may
// be empty to use the public Telegram API.
func NewTelegramNotifier(botToken, apiEndpoint string, chatID int64) (*TelegramNotifier, error) {
	if apiEndpoint == "" {
		apiEndpoint = tgbotapi.APIEndpoint
	}
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(botToken, apiEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %v", err)
	}
	log.Printf("Publish notifications go to chat %d via %s", chatID, bot.Self.UserName)
	return &TelegramNotifier{bot: bot, chatID: chatID}, nil
}

// NotifyPublished sends the commit message and the first few new alerts
func (n *TelegramNotifier) NotifyPublished(ctx context.Context, message string, added []entities.Alert) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("notification skipped: %w", err)
	}
	msg := tgbotapi.NewMessage(n.chatID, FormatPublished(message, added))
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send notification: %v", err)
	}
	return nil
}

// FormatPublished formats a publish summary for display
func FormatPublished(message string, added []entities.Alert) string {
	var result strings.Builder
	result.WriteString(fmt.Sprintf("📥 %s\n", message))

	for i, a := range added {
		if i == maxListedAlerts {
			result.WriteString(fmt.Sprintf("… and %d more\n", len(added)-maxListedAlerts))
			break
		}
		result.WriteString(fmt.Sprintf("#%s %s %s\n", a.ID, a.Date, a.Time))
	}

	return strings.TrimRight(result.String(), "\n")
}
