package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobalert/internal/notifier"
)

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Notification subcommands",
}

var notifyTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Send a test message",
	Long:  "Sends a test message to every active subscriber through the Bot API.",
	RunE:  runNotifyTest,
}

func init() {
	rootCmd.AddCommand(notifyCmd)
	notifyCmd.AddCommand(notifyTestCmd)
}

func runNotifyTest(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug, os.Stdout)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	subs, err := openStore(cfg)
	if err != nil {
		logger.Error("failed to open subscriber store", "error", err)
		os.Exit(1)
	}
	defer subs.Close()

	ctx := context.Background()
	recipients, err := subs.ActiveRecipients(ctx)
	if err != nil {
		logger.Error("failed to read subscribers", "error", err)
		os.Exit(1)
	}
	if len(recipients) == 0 {
		logger.Warn("no active subscribers, nothing to send")
		return nil
	}

	api, err := connectBot(cfg)
	if err != nil {
		logger.Error("failed to connect to telegram", "error", err)
		os.Exit(1)
	}

	res := buildDispatcher(cfg, notifier.NewTelegramSender(api), logger).SendTest(ctx, recipients)
	if len(res.Failed) > 0 {
		logger.Error("test message failed for some subscribers", "failed", len(res.Failed), "delivered", res.Delivered.Cardinality())
		os.Exit(1)
	}
	logger.Info("test message sent successfully", "delivered", res.Delivered.Cardinality())
	return nil
}
