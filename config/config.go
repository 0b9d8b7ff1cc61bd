/*
Package config loads service settings.

Settings come from three layers, later layers overriding earlier ones:
built-in defaults, an optional YAML file, and environment variables
(a .env file is honored when present). The result is an explicitly
constructed Config value handed to the rest of the service at startup -
no ambient global state.
*/
package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all service settings.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Feed     FeedConfig     `yaml:"feed"`
	Admin    AdminConfig    `yaml:"admin"`
	Sync     SyncConfig     `yaml:"sync"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type FeedConfig struct {
	SourceURL      string `yaml:"source_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type AdminConfig struct {
	// Token is the shared secret expected in the X-Admin-Token header
	// of the sync trigger.
	Token string `yaml:"token"`
}

type SyncConfig struct {
	// Schedule is a cron expression for automatic syncs. Empty disables
	// the scheduler; syncs then run only via the admin trigger.
	Schedule string `yaml:"schedule"`
}

// DefaultSourceURL is the city's published carnival batch feed.
const DefaultSourceURL = "https://www.carnavalderua.rio/api/carnaval-rio-2026/batch.json"

// Load reads configuration from the optional YAML file at configPath,
// applying defaults and environment overrides.
func Load(configPath string) (*Config, error) {
	// Optional .env for local development; missing file is fine.
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port: "8000",
		},
		Database: DatabaseConfig{
			Path: "data/agenda.db",
		},
		Feed: FeedConfig{
			SourceURL:      DefaultSourceURL,
			TimeoutSeconds: 30,
		},
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, err
			}
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		} else {
			log.Printf("config file %s not found, using defaults", configPath)
		}
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Port = port
	}
	if dbPath := os.Getenv("DB_PATH"); dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if url := os.Getenv("FEED_SOURCE_URL"); url != "" {
		cfg.Feed.SourceURL = url
	}
	if token := os.Getenv("ADMIN_TOKEN"); token != "" {
		cfg.Admin.Token = token
	}
	if schedule := os.Getenv("SYNC_SCHEDULE"); schedule != "" {
		cfg.Sync.Schedule = schedule
	}

	if cfg.Admin.Token == "" {
		return nil, errors.New("admin token is required (set ADMIN_TOKEN or admin.token)")
	}
	if cfg.Feed.TimeoutSeconds <= 0 {
		cfg.Feed.TimeoutSeconds = 30
	}

	return cfg, nil
}

// ServerAddress returns the listen address for the HTTP server.
func (c *Config) ServerAddress() string {
	if _, err := strconv.Atoi(c.Server.Port); err == nil {
		return ":" + c.Server.Port
	}
	return c.Server.Port
}

// FeedTimeout returns the fetch timeout as a duration.
func (c *Config) FeedTimeout() time.Duration {
	return time.Duration(c.Feed.TimeoutSeconds) * time.Second
}
