// Package config loads the alerts-sync configuration from defaults, an
// optional YAML file and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type DatasetConfig struct {
	RemoteURL   string `yaml:"remote_url"`   // https://github.com/<owner>/<repo>
	Branch      string `yaml:"branch"`       // default: main
	WorkDir     string `yaml:"work_dir"`     // local working copy
	FileName    string `yaml:"file_name"`    // default: israel-alerts.csv
	CloneDepth  int    `yaml:"clone_depth"`  // 0 = full history
	AccessToken string `yaml:"access_token"` // usually from GITHUB_ACCESS_TOKEN
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`
}

type FeedConfig struct {
	URL       string        `yaml:"url"`
	Lang      string        `yaml:"lang"`
	Mode      string        `yaml:"mode"`
	ProxyURL  string        `yaml:"proxy_url"` // usually from PROXY_URL
	UserAgent string        `yaml:"user_agent"`
	Timeout   time.Duration `yaml:"timeout"`   // 0 = bounded by the run timeout only
	TimeZone  string        `yaml:"time_zone"` // zone of the feed's date/time fields
}

type ServerConfig struct {
	ListenAddress string        `yaml:"listen_address"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
	RunTimeout    time.Duration `yaml:"run_timeout"` // per-run deadline imposed by triggers
}

type TelegramConfig struct {
	BotToken    string `yaml:"bot_token"`
	ChatID      int64  `yaml:"chat_id"` // publish notifications; 0 disables
	APIEndpoint string `yaml:"api_endpoint"`
}

type LedgerConfig struct {
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention"` // 0 keeps every run
}

type Config struct {
	Dataset  DatasetConfig  `yaml:"dataset"`
	Feed     FeedConfig     `yaml:"feed"`
	Server   ServerConfig   `yaml:"server"`
	Telegram TelegramConfig `yaml:"telegram"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Schedule string         `yaml:"schedule"` // cron spec; empty disables scheduled runs
}

// Default returns the configuration used when nothing overrides it
func Default() Config {
	return Config{
		Dataset: DatasetConfig{
			RemoteURL:   "https://github.com/dleshem/israel-alerts-data",
			Branch:      "main",
			WorkDir:     filepath.Join(os.TempDir(), "israel-alerts-data"),
			FileName:    "israel-alerts.csv",
			CloneDepth:  1,
			AuthorName:  "alerts-sync",
			AuthorEmail: "alerts-sync@users.noreply.github.com",
		},
		Feed: FeedConfig{
			Lang:     "he",
			Mode:     "0",
			TimeZone: "UTC",
		},
		Server: ServerConfig{
			ListenAddress: ":8080",
			ReadTimeout:   10 * time.Second,
			WriteTimeout:  10 * time.Minute,
			IdleTimeout:   60 * time.Second,
			RunTimeout:    5 * time.Minute,
		},
		Ledger: LedgerConfig{
			Path:      filepath.Join("data", "runs.db"),
			Retention: 90 * 24 * time.Hour,
		},
	}
}

// Load builds the configuration. A .env file in the working directory is
// loaded first when present; path may be empty to skip the YAML file.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := c.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("GITHUB_ACCESS_TOKEN"); v != "" {
		c.Dataset.AccessToken = v
	}
	if v := os.Getenv("PROXY_URL"); v != "" {
		c.Feed.ProxyURL = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("TELEGRAM_CHAT_ID: %w", err)
		}
		c.Telegram.ChatID = id
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Server.ListenAddress = ":" + v
	}
	if v := os.Getenv("ALERTS_SCHEDULE"); v != "" {
		c.Schedule = v
	}
	return nil
}

// Validate checks the fields every command depends on
func (c Config) Validate() error {
	if strings.TrimSpace(c.Dataset.RemoteURL) == "" {
		return errors.New("dataset.remote_url is required")
	}
	if strings.TrimSpace(c.Dataset.WorkDir) == "" {
		return errors.New("dataset.work_dir is required")
	}
	if strings.TrimSpace(c.Dataset.FileName) == "" {
		return errors.New("dataset.file_name is required")
	}
	if c.Dataset.CloneDepth < 0 {
		return fmt.Errorf("dataset.clone_depth must not be negative, got %d", c.Dataset.CloneDepth)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Feed.ProxyURL != "" {
		if _, err := url.Parse(c.Feed.ProxyURL); err != nil {
			return fmt.Errorf("feed.proxy_url: %w", err)
		}
	}
	if c.Telegram.ChatID != 0 && c.Telegram.BotToken == "" {
		return errors.New("telegram.chat_id is set but no bot token is configured")
	}
	return nil
}

// Location resolves the feed time zone
func (c Config) Location() (*time.Location, error) {
	name := c.Feed.TimeZone
	if name == "" {
		name = "UTC"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("feed.time_zone %q: %w", name, err)
	}
	return loc, nil
}
