package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Feed    FeedConfig    `toml:"feed"`
	Storage StorageConfig `toml:"storage"`
	Sources SourcesConfig `toml:"sources"`
	Server  ServerConfig  `toml:"server"`
	Notify  NotifyConfig  `toml:"notify"`
}

type FeedConfig struct {
	Interval         string `toml:"interval"`
	RunOnce          bool   `toml:"run_once"`
	Limit            int    `toml:"limit"`
	PerSourceTimeout string `toml:"per_source_timeout"`
	TotalBudget      string `toml:"total_budget"`
}

type StorageConfig struct {
	Type      string `toml:"type"`
	Path      string `toml:"path"`
	Container string `toml:"container"`
	LatestKey string `toml:"latest_key"`
}

type SourcesConfig struct {
	Disabled []string      `toml:"disabled"`
	Reddit   RedditConfig  `toml:"reddit"`
	Bluesky  BlueskyConfig `toml:"bluesky"`
	RSS      RSSConfig     `toml:"rss"`
}

type RedditConfig struct {
	Subreddits []string `toml:"subreddits"`
}

type BlueskyConfig struct {
	Actor string `toml:"actor"`
}

type RSSConfig struct {
	Feeds []string `toml:"feeds"`
}

type ServerConfig struct {
	Port     string `toml:"port"`
	CacheTTL string `toml:"cache_ttl"`
}

type NotifyConfig struct {
	ChannelID string `toml:"channel_id"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func validateConfig(config *Config) error {
	if config.Feed.Interval == "" {
		config.Feed.Interval = "1h"
	}
	if _, err := time.ParseDuration(config.Feed.Interval); err != nil {
		return fmt.Errorf("invalid interval: %w", err)
	}

	if config.Feed.Limit == 0 {
		config.Feed.Limit = 25
	}
	if config.Feed.Limit < 0 {
		return fmt.Errorf("limit must be positive")
	}

	if config.Feed.PerSourceTimeout == "" {
		config.Feed.PerSourceTimeout = "30s"
	}
	if _, err := time.ParseDuration(config.Feed.PerSourceTimeout); err != nil {
		return fmt.Errorf("invalid per_source_timeout: %w", err)
	}

	if config.Feed.TotalBudget == "" {
		config.Feed.TotalBudget = "2m"
	}
	if _, err := time.ParseDuration(config.Feed.TotalBudget); err != nil {
		return fmt.Errorf("invalid total_budget: %w", err)
	}

	if config.Storage.Type == "" {
		config.Storage.Type = "fs"
	}
	if config.Storage.Path == "" {
		config.Storage.Path = "./data"
	}
	if config.Storage.Container == "" {
		config.Storage.Container = "feeds"
	}
	if config.Storage.LatestKey == "" {
		config.Storage.LatestKey = "latest.json"
	}

	if config.Server.Port == "" {
		config.Server.Port = "8080"
	}
	if config.Server.CacheTTL == "" {
		config.Server.CacheTTL = "5m"
	}
	if _, err := time.ParseDuration(config.Server.CacheTTL); err != nil {
		return fmt.Errorf("invalid cache_ttl: %w", err)
	}

	return nil
}

// Duration returns an already-validated duration field.
func Duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
