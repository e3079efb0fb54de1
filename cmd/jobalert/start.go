package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/amishk599/jobalert/internal/bot"
	"github.com/amishk599/jobalert/internal/health"
	"github.com/amishk599/jobalert/internal/model"
	"github.com/amishk599/jobalert/internal/notifier"
	"github.com/amishk599/jobalert/internal/poller"
	"github.com/amishk599/jobalert/internal/scheduler"
	"github.com/amishk599/jobalert/internal/store"
)

var dryRun bool

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the alert daemon",
	Long:  "Start the scheduler, the bot command listener and the health endpoint; blocks until SIGINT/SIGTERM.",
	RunE:  runStart,
}

func init() {
	startCmd.Flags().BoolVar(&dryRun, "dry-run", false, "run one cycle, log the digest instead of sending it, then exit")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug, os.Stdout)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("config loaded",
		"schedule", cfg.Schedule,
		"terms", len(cfg.Search.Terms),
		"locations", len(cfg.Search.Locations),
		"skills", len(cfg.Filters.RequiredSkills),
		"excludes", len(cfg.Filters.ExcludeKeywords),
		"backend", cfg.Subscribers.Backend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if dryRun {
		logger.Info("dry-run mode enabled, nothing will be sent or persisted")
		subs := store.NewMemoryStore()
		if _, err := store.Seed(ctx, subs, cfg.Telegram.ChatIDs); err != nil {
			logger.Error("seeding subscribers", "error", err)
			os.Exit(1)
		}
		p := poller.NewCyclePoller(buildAggregator(cfg, logger), buildPlan(cfg), buildFormatter(cfg), subs,
			buildDispatcher(cfg, notifier.NewLogSender(logger), logger), logger)
		if _, err := p.Poll(ctx, model.Trigger{Kind: model.TriggerScheduled}); err != nil {
			logger.Error("dry-run cycle failed", "error", err)
		}
		logger.Info("dry-run complete")
		return nil
	}

	subs, err := openStore(cfg)
	if err != nil {
		logger.Error("failed to open subscriber store", "error", err)
		os.Exit(1)
	}
	defer subs.Close()

	if added, err := store.Seed(ctx, subs, cfg.Telegram.ChatIDs); err != nil {
		logger.Error("seeding subscribers", "error", err)
	} else if added > 0 {
		logger.Info("seeded subscribers from config", "added", added)
	}

	// Missing delivery credentials is the one fatal startup condition.
	api, err := connectBot(cfg)
	if err != nil {
		logger.Error("failed to connect to telegram", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to telegram", "bot", api.Self.UserName)

	p := poller.NewCyclePoller(buildAggregator(cfg, logger), buildPlan(cfg), buildFormatter(cfg), subs,
		buildDispatcher(cfg, notifier.NewTelegramSender(api), logger), logger)

	sched, err := scheduler.New(p, cfg.Schedule, cfg.RunOnStart, cfg.Location, logger)
	if err != nil {
		logger.Error("invalid schedule", "error", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.RunCycleOnSchedule(gctx) })

	if cfg.Telegram.Commands {
		updates, err := connectUpdates(cfg)
		if err != nil {
			logger.Error("failed to connect the update stream", "error", err)
			os.Exit(1)
		}
		b := bot.New(api, updates, bot.DefaultPollTimeout, logger)
		b.SetHandler(bot.NewHandler(subs, sched, b, cfg.Location, logger))
		g.Go(func() error { return b.Run(gctx) })
	}

	if cfg.Health.Addr != "" {
		srv := health.NewServer(sched, subs, health.DefaultLockWait, logger)
		g.Go(func() error { return srv.Run(gctx, cfg.Health.Addr) })
	}

	if err := g.Wait(); err != nil {
		logger.Error("daemon error", "error", err)
		os.Exit(1)
	}

	logger.Info("goodbye")
	return nil
}
