package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobalert/internal/model"
	"github.com/amishk599/jobalert/internal/notifier"
	"github.com/amishk599/jobalert/internal/poller"
)

var checkSend bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one cycle and print the digest",
	Long:  "One-shot cycle: searches the configured matrix and prints the digest to stdout. With --send the digest is also delivered to every active subscriber.",
	RunE:  runCheck,
}

func init() {
	checkCmd.Flags().BoolVar(&checkSend, "send", false, "deliver the digest to active subscribers")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	// Logs go to stderr so stdout carries only the digest.
	logger := setupLogger(debug, os.Stderr)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !checkSend {
		p := poller.NewCyclePoller(buildAggregator(cfg, logger), buildPlan(cfg), buildFormatter(cfg), nil, nil, logger)
		d, err := p.Discover(ctx)
		if err != nil {
			logger.Error("check interrupted", "error", err)
			os.Exit(1)
		}
		for i, chunk := range d.Digest.Chunks {
			if i > 0 {
				fmt.Println("\n-----")
			}
			fmt.Println(chunk)
		}
		logger.Info("check complete",
			"queries", d.Result.Stats.Queries,
			"fetch_errors", d.Result.Stats.FetchErrors,
			"candidates", d.Result.Stats.Candidates,
			"duplicates", d.Result.Stats.Duplicates,
			"rejected", d.Result.Stats.Rejected,
			"postings", d.Digest.Count,
		)
		return nil
	}

	subs, err := openStore(cfg)
	if err != nil {
		logger.Error("failed to open subscriber store", "error", err)
		os.Exit(1)
	}
	defer subs.Close()

	api, err := connectBot(cfg)
	if err != nil {
		logger.Error("failed to connect to telegram", "error", err)
		os.Exit(1)
	}

	p := poller.NewCyclePoller(buildAggregator(cfg, logger), buildPlan(cfg), buildFormatter(cfg), subs,
		buildDispatcher(cfg, notifier.NewTelegramSender(api), logger), logger)
	report, err := p.Poll(ctx, model.Trigger{Kind: model.TriggerManual})
	if err != nil {
		logger.Error("check interrupted", "error", err)
		os.Exit(1)
	}
	fmt.Printf("%d postings, delivered to %d, failed %d\n", report.Postings, report.Delivered, report.Failed)
	return nil
}
