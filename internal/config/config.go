package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the job alert bot.
type Config struct {
	Schedule    string // "@every 2h", "@hourly" or a 5-field cron expression
	RunOnStart  bool
	Location    *time.Location
	Search      SearchConfig
	Filters     FilterConfig
	Digest      DigestConfig
	Telegram    TelegramConfig
	Subscribers SubscribersConfig
	Health      HealthConfig
}

// SearchConfig describes the search matrix and how the listing source is fetched.
type SearchConfig struct {
	Terms            []string
	Locations        []string
	BaseURL          string
	RecencyWindow    string // f_TPR value, e.g. "r86400"
	SortBy           string
	ExperienceLevels []string
	PerCategoryCap   int
	GlobalCap        int
	Timeout          time.Duration
	RequestDelay     time.Duration
	Concurrency      int
	CacheTTL         time.Duration // zero disables the page cache
	Retries          int
	RetryDelay       time.Duration
}

// FilterConfig holds the keyword sets used by the matcher.
type FilterConfig struct {
	RequiredSkills  []string
	ExcludeKeywords []string
}

// DigestConfig controls digest rendering.
type DigestConfig struct {
	Title     string
	MaxLength int
}

// TelegramConfig controls the messaging transport and command surface.
type TelegramConfig struct {
	Token          string // expanded from env var by Load; may be empty
	KeyringAccount string
	ChatIDs        []int64 // seeded into the registry at startup
	SendDelay      time.Duration
	Timeout        time.Duration
	Commands       bool // consume the bot update stream
}

// SubscribersConfig selects the registry backend.
type SubscribersConfig struct {
	Backend string `yaml:"backend"` // "sqlite" or "file"
	Path    string `yaml:"path"`
}

// HealthConfig controls the operator HTTP endpoint. Empty Addr disables it.
type HealthConfig struct {
	Addr string `yaml:"addr"`
}

const (
	defaultSchedule  = "@every 2h"
	defaultBaseURL   = "https://www.linkedin.com/jobs/search/"
	defaultTitle     = "Latest LinkedIn Openings"
	defaultMaxLength = 4000
)

// rawConfig is used for YAML unmarshaling (snake_case fields and duration as string).
type rawConfig struct {
	Schedule    string            `yaml:"schedule"`
	RunOnStart  *bool             `yaml:"run_on_start"`
	Timezone    string            `yaml:"timezone"`
	Search      rawSearchConfig   `yaml:"search"`
	Filters     rawFilterConfig   `yaml:"filters"`
	Digest      rawDigestConfig   `yaml:"digest"`
	Telegram    rawTelegramConfig `yaml:"telegram"`
	Subscribers SubscribersConfig `yaml:"subscribers"`
	Health      HealthConfig      `yaml:"health"`
}

type rawSearchConfig struct {
	Terms            []string `yaml:"terms"`
	Locations        []string `yaml:"locations"`
	BaseURL          string   `yaml:"base_url"`
	RecencyWindow    string   `yaml:"recency_window"`
	SortBy           string   `yaml:"sort_by"`
	ExperienceLevels []string `yaml:"experience_levels"`
	PerCategoryCap   int      `yaml:"per_category_cap"`
	GlobalCap        int      `yaml:"global_cap"`
	Timeout          string   `yaml:"timeout"`
	RequestDelay     string   `yaml:"request_delay"`
	Concurrency      int      `yaml:"concurrency"`
	CacheTTL         string   `yaml:"cache_ttl"`
	Retries          *int     `yaml:"retries"`
	RetryDelay       string   `yaml:"retry_delay"`
}

type rawFilterConfig struct {
	RequiredSkills  []string `yaml:"required_skills"`
	ExcludeKeywords []string `yaml:"exclude_keywords"`
}

type rawDigestConfig struct {
	Title     string `yaml:"title"`
	MaxLength int    `yaml:"max_length"`
}

type rawTelegramConfig struct {
	Token          string  `yaml:"token"`
	KeyringAccount string  `yaml:"keyring_account"`
	ChatIDs        []int64 `yaml:"chat_ids"`
	SendDelay      string  `yaml:"send_delay"`
	Timeout        string  `yaml:"timeout"`
	Commands       *bool   `yaml:"commands"`
}

// Load reads and parses the YAML config file at path, validates it, and returns Config.
// A .env file next to the working directory is loaded first so ${VARS} in the
// YAML can refer to it; variables already set in the environment win.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg := &Config{
		Schedule:   raw.Schedule,
		RunOnStart: boolOr(raw.RunOnStart, true),
		Search: SearchConfig{
			Terms:            trimAll(raw.Search.Terms),
			Locations:        trimAll(raw.Search.Locations),
			BaseURL:          raw.Search.BaseURL,
			RecencyWindow:    raw.Search.RecencyWindow,
			SortBy:           raw.Search.SortBy,
			ExperienceLevels: raw.Search.ExperienceLevels,
			PerCategoryCap:   raw.Search.PerCategoryCap,
			GlobalCap:        raw.Search.GlobalCap,
			Concurrency:      raw.Search.Concurrency,
			Retries:          intOr(raw.Search.Retries, 1),
		},
		Filters: FilterConfig{
			RequiredSkills:  trimAll(raw.Filters.RequiredSkills),
			ExcludeKeywords: trimAll(raw.Filters.ExcludeKeywords),
		},
		Digest: DigestConfig{
			Title:     raw.Digest.Title,
			MaxLength: raw.Digest.MaxLength,
		},
		Telegram: TelegramConfig{
			Token:          strings.TrimSpace(raw.Telegram.Token),
			KeyringAccount: raw.Telegram.KeyringAccount,
			ChatIDs:        raw.Telegram.ChatIDs,
			Commands:       boolOr(raw.Telegram.Commands, true),
		},
		Subscribers: raw.Subscribers,
		Health:      raw.Health,
	}

	applyDefaults(cfg)

	if raw.Timezone != "" {
		cfg.Location, err = time.LoadLocation(raw.Timezone)
		if err != nil {
			return nil, fmt.Errorf("parse timezone %q: %w", raw.Timezone, err)
		}
	}

	durations := []struct {
		key string
		raw string
		def time.Duration
		dst *time.Duration
	}{
		{"search.timeout", raw.Search.Timeout, 15 * time.Second, &cfg.Search.Timeout},
		{"search.request_delay", raw.Search.RequestDelay, 2 * time.Second, &cfg.Search.RequestDelay},
		{"search.cache_ttl", raw.Search.CacheTTL, 5 * time.Minute, &cfg.Search.CacheTTL},
		{"search.retry_delay", raw.Search.RetryDelay, 3 * time.Second, &cfg.Search.RetryDelay},
		{"telegram.send_delay", raw.Telegram.SendDelay, 1 * time.Second, &cfg.Telegram.SendDelay},
		{"telegram.timeout", raw.Telegram.Timeout, 15 * time.Second, &cfg.Telegram.Timeout},
	}
	for _, d := range durations {
		*d.dst = d.def
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return nil, fmt.Errorf("parse %s %q: %w", d.key, d.raw, err)
		}
		*d.dst = v
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Schedule == "" {
		cfg.Schedule = defaultSchedule
	}
	cfg.Location = time.Local
	if cfg.Search.BaseURL == "" {
		cfg.Search.BaseURL = defaultBaseURL
	}
	if cfg.Search.RecencyWindow == "" {
		cfg.Search.RecencyWindow = "r86400"
	}
	if cfg.Search.SortBy == "" {
		cfg.Search.SortBy = "DD"
	}
	if cfg.Search.PerCategoryCap == 0 {
		cfg.Search.PerCategoryCap = 5
	}
	if cfg.Search.GlobalCap == 0 {
		cfg.Search.GlobalCap = 20
	}
	if cfg.Search.Concurrency == 0 {
		cfg.Search.Concurrency = 1
	}
	if cfg.Digest.Title == "" {
		cfg.Digest.Title = defaultTitle
	}
	if cfg.Digest.MaxLength == 0 {
		cfg.Digest.MaxLength = defaultMaxLength
	}
	if cfg.Subscribers.Backend == "" {
		cfg.Subscribers.Backend = "sqlite"
	}
	if cfg.Subscribers.Path == "" {
		if cfg.Subscribers.Backend == "file" {
			cfg.Subscribers.Path = "subscribers.json"
		} else {
			cfg.Subscribers.Path = "subscribers.db"
		}
	}
}

func validate(cfg *Config) error {
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return fmt.Errorf("schedule %q: %w", cfg.Schedule, err)
	}
	if len(cfg.Search.Terms) == 0 {
		return fmt.Errorf("search.terms must list at least one term")
	}
	if len(cfg.Search.Locations) == 0 {
		return fmt.Errorf("search.locations must list at least one location")
	}
	for _, list := range [][]string{cfg.Search.Terms, cfg.Search.Locations} {
		for _, s := range list {
			if s == "" {
				return fmt.Errorf("search terms and locations must be non-empty")
			}
		}
	}
	if len(cfg.Filters.RequiredSkills) == 0 {
		return fmt.Errorf("filters.required_skills must list at least one skill")
	}
	if cfg.Search.PerCategoryCap < 1 || cfg.Search.GlobalCap < 1 {
		return fmt.Errorf("search caps must be positive, got per_category_cap=%d global_cap=%d",
			cfg.Search.PerCategoryCap, cfg.Search.GlobalCap)
	}
	if cfg.Search.Concurrency < 1 {
		return fmt.Errorf("search.concurrency must be positive, got %d", cfg.Search.Concurrency)
	}
	if cfg.Search.Retries < 0 {
		return fmt.Errorf("search.retries must not be negative, got %d", cfg.Search.Retries)
	}
	if cfg.Search.Timeout <= 0 || cfg.Telegram.Timeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if cfg.Digest.MaxLength < 200 || cfg.Digest.MaxLength > 4096 {
		return fmt.Errorf("digest.max_length must be between 200 and 4096, got %d", cfg.Digest.MaxLength)
	}
	switch cfg.Subscribers.Backend {
	case "sqlite", "file":
	default:
		return fmt.Errorf("subscribers.backend must be \"sqlite\" or \"file\", got %q", cfg.Subscribers.Backend)
	}
	return nil
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.TrimSpace(s))
	}
	return out
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}
