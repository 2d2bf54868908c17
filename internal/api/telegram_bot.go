package api

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/abelzeko/alerts-sync/internal/entities"
	"github.com/abelzeko/alerts-sync/internal/usecases"
)

// historyLimit is how many runs /history lists
const historyLimit = 5

// RunHistory is a SyncRunner that can also list recent runs
type RunHistory interface {
	SyncRunner
	GetRecentRuns(limit int) ([]entities.SyncRun, error)
}

// TelegramBot handles interactions with the Telegram API
type TelegramBot struct {
	bot        *tgbotapi.BotAPI
	runner     RunHistory
	runTimeout time.Duration
}

// NewTelegramBot creates a new Telegram bot handler
func NewTelegramBot(botToken string, runner RunHistory, runTimeout time.Duration) (*TelegramBot, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %v", err)
	}

	return &TelegramBot{
		bot:        bot,
		runner:     runner,
		runTimeout: runTimeout,
	}, nil
}

// Start begins listening for and handling Telegram messages until ctx is done
func (t *TelegramBot) Start(ctx context.Context) {
	log.Printf("Authorized on Telegram account %s", t.bot.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := t.bot.GetUpdatesChan(u)
	log.Println("Bot is now listening for messages...")

	for {
		select {
		case <-ctx.Done():
			t.bot.StopReceivingUpdates()
			log.Printf("Bot stopped: %v", ctx.Err())
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil {
				continue
			}

			// Log incoming messages
			log.Printf("Received message from %s (ID: %d): %s",
				update.Message.From.UserName,
				update.Message.From.ID,
				update.Message.Text)

			t.handleMessage(ctx, update)
		}
	}
}

// handleMessage processes a Telegram message update
func (t *TelegramBot) handleMessage(ctx context.Context, update tgbotapi.Update) {
	msg := tgbotapi.NewMessage(update.Message.Chat.ID, "")

	if update.Message.IsCommand() {
		t.handleCommand(ctx, update.Message, &msg)
	} else {
		msg.Text = "I don't understand. Use /help to see available commands."
	}

	log.Printf("Sending response to user %s", update.Message.From.UserName)
	if _, err := t.bot.Send(msg); err != nil {
		log.Printf("Error sending message: %v", err)
	}
}

// handleCommand processes commands like /start, /help, etc.
func (t *TelegramBot) handleCommand(ctx context.Context, message *tgbotapi.Message, msg *tgbotapi.MessageConfig) {
	user := ""
	if message.From != nil {
		user = message.From.UserName
	}

	switch message.Command() {
	case "start":
		log.Printf("Handling /start command for user %s", user)
		msg.Text = "Welcome to the alerts sync bot! Use /status to see the last sync run or /help for more information."

	case "help":
		log.Printf("Handling /help command for user %s", user)
		msg.Text = "Available commands:\n" +
			"/start - Start the bot\n" +
			"/sync - Run a sync now\n" +
			"/status - Show the last sync run\n" +
			"/history - List the most recent sync runs\n" +
			"/help - Show this help message"

	case "sync":
		log.Printf("Handling /sync command for user %s", user)
		t.handleSyncCommand(ctx, msg)

	case "status":
		log.Printf("Handling /status command for user %s", user)
		t.handleStatusCommand(msg)

	case "history":
		log.Printf("Handling /history command for user %s", user)
		t.handleHistoryCommand(msg)

	default:
		log.Printf("Received unknown command /%s from user %s", message.Command(), user)
		msg.Text = "Unknown command. Use /help to see available commands."
	}
}

// handleSyncCommand processes the /sync command
func (t *TelegramBot) handleSyncCommand(ctx context.Context, msg *tgbotapi.MessageConfig) {
	if t.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.runTimeout)
		defer cancel()
	}

	run, err := t.runner.Run(ctx)
	if err != nil && run == nil {
		msg.Text = fmt.Sprintf("Sync failed: %v", err)
		return
	}
	msg.Text = usecases.FormatRun(run)
}

// handleStatusCommand processes the /status command
func (t *TelegramBot) handleStatusCommand(msg *tgbotapi.MessageConfig) {
	run, err := t.runner.GetLastRun()
	if err != nil {
		msg.Text = "Error reading the run ledger. Please try again later."
		log.Printf("Error reading run ledger: %v", err)
		return
	}
	msg.Text = usecases.FormatRun(run)
}

// handleHistoryCommand processes the /history command
func (t *TelegramBot) handleHistoryCommand(msg *tgbotapi.MessageConfig) {
	runs, err := t.runner.GetRecentRuns(historyLimit)
	if err != nil {
		msg.Text = "Error reading the run ledger. Please try again later."
		log.Printf("Error reading run ledger: %v", err)
		return
	}
	msg.Text = FormatHistory(runs)
}

// FormatHistory formats recent runs one per line, newest first
func FormatHistory(runs []entities.SyncRun) string {
	if len(runs) == 0 {
		return "No sync runs recorded yet."
	}

	result := "Recent sync runs:\n"
	for _, run := range runs {
		status := "✅"
		if !run.Succeeded() {
			status = "❌ " + run.Stage
		}
		result += fmt.Sprintf("%s %s: %d added\n", status, run.StartedAt.Format("2006-01-02 15:04:05"), run.Added)
	}
	return strings.TrimRight(result, "\n")
}
