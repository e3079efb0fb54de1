package main

import (
	"io"
	"log/slog"
	"net/http"
	"os"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"

	"github.com/amishk599/jobalert/internal/bot"
	"github.com/amishk599/jobalert/internal/config"
	"github.com/amishk599/jobalert/internal/digest"
	"github.com/amishk599/jobalert/internal/discovery"
	"github.com/amishk599/jobalert/internal/extract"
	"github.com/amishk599/jobalert/internal/fetcher"
	"github.com/amishk599/jobalert/internal/filter"
	"github.com/amishk599/jobalert/internal/model"
	"github.com/amishk599/jobalert/internal/notifier"
	"github.com/amishk599/jobalert/internal/ratelimit"
	"github.com/amishk599/jobalert/internal/retry"
	"github.com/amishk599/jobalert/internal/secrets"
	"github.com/amishk599/jobalert/internal/store"
)

var (
	cfgPath string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "jobalert",
	Short: "LinkedIn job alerts delivered to Telegram",
	Long:  "jobalert searches LinkedIn for fresh openings matching your skills and sends a digest to Telegram subscribers.",
	// Default to `start` so that `jobalert` with no args runs the daemon.
	RunE: runStart,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default: JOBALERT_CONFIG env var or ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.SilenceUsage = true
}

// loadConfig resolves the config path and parses it.
// Priority: explicit path arg > JOBALERT_CONFIG env var > "./config.yaml"
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if env := os.Getenv("JOBALERT_CONFIG"); env != "" {
			path = env
		} else {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func setupLogger(dbg bool, w io.Writer) *slog.Logger {
	logLevel := slog.LevelInfo
	if dbg {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel}))
}

// buildFetcher stacks the listing fetcher decorators:
// cache → retry → pacing → LinkedIn.
func buildFetcher(cfg *config.Config, logger *slog.Logger) model.PageFetcher {
	httpClient := &http.Client{}
	var f model.PageFetcher = fetcher.NewLinkedInFetcher(cfg.Search.BaseURL, fetcher.Params{
		RecencyWindow:    cfg.Search.RecencyWindow,
		SortBy:           cfg.Search.SortBy,
		ExperienceLevels: cfg.Search.ExperienceLevels,
	}, httpClient, cfg.Search.Timeout)

	f = ratelimit.NewRateLimitedFetcher(f, ratelimit.NewPacer(cfg.Search.RequestDelay), "linkedin")
	if cfg.Search.Retries > 0 {
		f = retry.NewRetryFetcher(f, cfg.Search.Retries, cfg.Search.RetryDelay, logger)
	}
	if cfg.Search.CacheTTL > 0 {
		f = fetcher.NewCachedFetcher(f, cfg.Search.CacheTTL)
	}
	return f
}

func buildAggregator(cfg *config.Config, logger *slog.Logger) *discovery.Aggregator {
	return discovery.NewAggregator(
		buildFetcher(cfg, logger),
		extract.NewHTMLExtractor(extract.DefaultStrategies()),
		filter.NewProfileMatcher(cfg.Filters.RequiredSkills, cfg.Filters.ExcludeKeywords),
		cfg.Search.Concurrency,
		logger,
	)
}

func buildPlan(cfg *config.Config) discovery.Plan {
	return discovery.Plan{
		Terms:          cfg.Search.Terms,
		Locations:      cfg.Search.Locations,
		PerCategoryCap: cfg.Search.PerCategoryCap,
		GlobalCap:      cfg.Search.GlobalCap,
	}
}

func buildFormatter(cfg *config.Config) *digest.Formatter {
	return digest.NewFormatter(cfg.Digest.Title, cfg.Digest.MaxLength, digest.Profile{
		Terms:     cfg.Search.Terms,
		Locations: cfg.Search.Locations,
		Skills:    cfg.Filters.RequiredSkills,
		Excludes:  cfg.Filters.ExcludeKeywords,
	}, cfg.Location)
}

func openStore(cfg *config.Config) (model.SubscriberStore, error) {
	return store.Open(cfg.Subscribers.Backend, cfg.Subscribers.Path)
}

// connectBot resolves the bot token and authenticates against the Bot API.
// Sends through the returned client are bounded by telegram.timeout.
func connectBot(cfg *config.Config) (*tgbotapi.BotAPI, error) {
	token, err := secrets.BotToken(cfg.Telegram.Token, cfg.Telegram.KeyringAccount)
	if err != nil {
		return nil, err
	}
	return notifier.NewBot(token, cfg.Telegram.Timeout)
}

// connectUpdates authenticates a second client for the command update
// stream. Its timeout outlasts the long-poll, unlike the send client's.
func connectUpdates(cfg *config.Config) (*tgbotapi.BotAPI, error) {
	token, err := secrets.BotToken(cfg.Telegram.Token, cfg.Telegram.KeyringAccount)
	if err != nil {
		return nil, err
	}
	return notifier.NewBotWithEndpoint(token, tgbotapi.APIEndpoint, bot.PollClient(bot.DefaultPollTimeout))
}

func buildDispatcher(cfg *config.Config, sender model.Sender, logger *slog.Logger) *notifier.Dispatcher {
	return notifier.NewDispatcher(sender, ratelimit.NewPacer(cfg.Telegram.SendDelay), logger)
}
