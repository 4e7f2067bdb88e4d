package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/0xPuncker/task-watcher/pkg/types"
)

type Config struct {
	LogLevel  string                  `json:"log_level"`
	Server    ServerConfig            `json:"server"`
	Backend   BackendConfig           `json:"backend"`
	Manifest  ManifestConfig          `json:"manifest"`
	Inventory InventoryConfig         `json:"inventory"`
	Poller    PollerConfig            `json:"poller"`
	Slack     SlackConfig             `json:"slack"`
	Jobs      types.MaintenanceConfig `json:"jobs"`
}

type ServerConfig struct {
	Port         string `json:"port"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
}

// BackendConfig selects the task service: "windows", "memory" or "auto".
type BackendConfig struct {
	Kind string `json:"kind"`
}

type ManifestConfig struct {
	Path         string `json:"path"`
	ApplyOnStart bool   `json:"apply_on_start"`
}

type InventoryConfig struct {
	TTL          string   `json:"ttl"`
	WatchFolders []string `json:"watch_folders"`
}

type PollerConfig struct {
	Enabled  bool   `json:"enabled"`
	Interval string `json:"interval"`
}

type SlackConfig struct {
	WebhookURL string `json:"webhook_url"`
}

// Load reads the JSON config at configPath. When the file cannot be read the
// config is built from the environment, after loading .env or .env.local.
func Load(configPath string) (*Config, error) {
	var config *Config

	data, err := os.ReadFile(configPath)
	if err != nil {
		if err := godotenv.Load(); err != nil {
			if err := godotenv.Load(".env.local"); err != nil {
				fmt.Printf("No .env or .env.local file found. Using environment variables.\n")
			}
		}
		config = FromEnv()
	} else {
		config = &Config{}
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// FromEnv builds a config from environment variables alone.
func FromEnv() *Config {
	config := &Config{
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
		},
		Backend: BackendConfig{
			Kind: getEnv("TASK_BACKEND", "auto"),
		},
		Manifest: ManifestConfig{
			Path:         getEnv("MANIFEST_PATH", ""),
			ApplyOnStart: getEnv("MANIFEST_APPLY_ON_START", "false") == "true",
		},
		Inventory: InventoryConfig{
			TTL:          getEnv("INVENTORY_TTL", "5m"),
			WatchFolders: splitList(getEnv("WATCH_FOLDERS", `\`)),
		},
		Poller: PollerConfig{
			Enabled:  getEnv("POLLER_ENABLED", "true") == "true",
			Interval: getEnv("POLLER_INTERVAL", "1m"),
		},
		Slack: SlackConfig{
			WebhookURL: getEnv("SLACK_WEBHOOK_URL", ""),
		},
	}
	return config
}

func DefaultConfig() *Config {
	config := &Config{}
	config.applyDefaults()
	return config
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.ReadTimeout == "" {
		c.Server.ReadTimeout = "15s"
	}
	if c.Server.WriteTimeout == "" {
		c.Server.WriteTimeout = "15s"
	}
	if c.Backend.Kind == "" {
		c.Backend.Kind = "auto"
	}
	if c.Inventory.TTL == "" {
		c.Inventory.TTL = "5m"
	}
	if len(c.Inventory.WatchFolders) == 0 {
		c.Inventory.WatchFolders = []string{`\`}
	}
	if c.Poller.Interval == "" {
		c.Poller.Interval = "1m"
	}
	if c.Jobs.MaxConcurrent <= 0 {
		c.Jobs.MaxConcurrent = 2
	}
	if len(c.Jobs.Predefined) == 0 {
		c.Jobs.Predefined = []types.MaintenanceTask{
			{
				Name:        "reapply-manifest",
				Schedule:    "0 */15 * * * *",
				TaskName:    "apply-manifest",
				Enabled:     c.Manifest.Path != "",
				Description: "Re-applies the job manifest",
			},
			{
				Name:        "refresh-inventory",
				Schedule:    "0 */5 * * * *",
				TaskName:    "refresh-inventory",
				Enabled:     true,
				Description: "Re-lists every watched folder",
			},
		}
	}
}

// Validate checks every duration and the log level.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}

	for field, raw := range map[string]string{
		"server.read_timeout":  c.Server.ReadTimeout,
		"server.write_timeout": c.Server.WriteTimeout,
		"inventory.ttl":        c.Inventory.TTL,
		"poller.interval":      c.Poller.Interval,
	} {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", field, raw, err)
		}
		if d <= 0 {
			return fmt.Errorf("invalid %s %q: must be positive", field, raw)
		}
	}

	for i, task := range c.Jobs.Predefined {
		if task.Name == "" || task.TaskName == "" || task.Schedule == "" {
			return fmt.Errorf("jobs.predefined[%d]: name, task and schedule are required", i)
		}
	}
	return nil
}

func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

func (c *Config) ReadTimeout() time.Duration  { return mustDuration(c.Server.ReadTimeout) }
func (c *Config) WriteTimeout() time.Duration { return mustDuration(c.Server.WriteTimeout) }
func (c *Config) InventoryTTL() time.Duration { return mustDuration(c.Inventory.TTL) }

func (c *Config) PollerInterval() time.Duration { return mustDuration(c.Poller.Interval) }

// mustDuration parses a duration already checked by Validate.
func mustDuration(raw string) time.Duration {
	d, _ := time.ParseDuration(raw)
	return d
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
