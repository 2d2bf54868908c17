package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/abelzeko/alerts-sync/internal/api"
)

// NewBotCommand creates the bot command.
func NewBotCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bot",
		Short: "Answer /sync, /status and /history commands over Telegram",
		Long: `Start a Telegram bot that triggers sync runs on /sync and reports the
last recorded run on /status and the most recent runs on /history.
Requires TELEGRAM_BOT_TOKEN.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd, rootOpts)
		},
	}
	return cmd
}

func runBot(cmd *cobra.Command, opts *RootOptions) error {
	a, err := newApp(opts)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.Telegram.BotToken == "" {
		return errors.New("TELEGRAM_BOT_TOKEN environment variable is not set")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telegramBot, err := api.NewTelegramBot(a.cfg.Telegram.BotToken, a.sync, a.cfg.Server.RunTimeout)
	if err != nil {
		return fmt.Errorf("failed to initialize Telegram bot: %v", err)
	}

	telegramBot.Start(ctx)
	return nil
}
