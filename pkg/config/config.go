package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	Database   DatabaseConfig   `toml:"database"`
	Site       SiteConfig       `toml:"site"`
	Scan       ScanConfig       `toml:"scan"`
	Enrichment EnrichmentConfig `toml:"enrichment"`
	AI         AIConfig         `toml:"ai"`
	Notify     NotifyConfig     `toml:"notify"`
	Importer   ImporterConfig   `toml:"importer"`
	Server     ServerConfig     `toml:"server"`
	Logging    LoggingConfig    `toml:"logging"`
}

type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
}

type SiteConfig struct {
	URL       string   `toml:"url"`
	Name      string   `toml:"name"`
	Types     []string `toml:"types"`
	Timezone  string   `toml:"timezone"`
	AdminMail string   `toml:"admin_email"`
}

type ScanConfig struct {
	SliceSize  int    `toml:"slice_size"`
	FirstDelay string `toml:"first_delay"`
	NextDelay  string `toml:"next_delay"`
	LockTTL    string `toml:"lock_ttl"`
}

type EnrichmentConfig struct {
	FlagTTL string `toml:"flag_ttl"`
}

type AIConfig struct {
	APIKey   string `toml:"api_key"`
	Model    string `toml:"model"`
	BaseURL  string `toml:"base_url"`
	Timeout  string `toml:"timeout"`
	Mode     string `toml:"mode"`
	CacheTTL string `toml:"cache_ttl"`
	Fixtures bool   `toml:"fixtures"`
}

type NotifyConfig struct {
	WeeklyEmail    bool       `toml:"weekly_email"`
	EmailTo        string     `toml:"email_to"`
	SMTP           SMTPConfig `toml:"smtp"`
	WebhookURL     string     `toml:"webhook_url"`
	WebhookTimeout string     `toml:"webhook_timeout"`
	ReportInterval string     `toml:"report_interval"`
}

type SMTPConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
	User string `toml:"user"`
	Pass string `toml:"pass"`
	From string `toml:"from"`
}

type ImporterConfig struct {
	UserAgent string `toml:"user_agent"`
	SeedsFile string `toml:"seeds_file"`
	Delay     string `toml:"delay"`
	ItemType  string `toml:"item_type"`
	Workers   int    `toml:"workers"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

// Default returns the configuration used when a key is absent from the file.
func Default() *Config {
	var cfg Config
	cfg.Database.Driver = "sqlite"
	cfg.Database.DSN = "airank.db"
	cfg.Site.Types = []string{"post", "page"}
	cfg.Site.Timezone = "UTC"
	cfg.Scan.SliceSize = 3
	cfg.Scan.FirstDelay = "5s"
	cfg.Scan.NextDelay = "10s"
	cfg.Scan.LockTTL = "30s"
	cfg.Enrichment.FlagTTL = "60s"
	cfg.AI.Model = "gpt-4.1-mini"
	cfg.AI.Timeout = "30s"
	cfg.AI.Mode = "full"
	cfg.AI.CacheTTL = "0s"
	cfg.Notify.SMTP.Port = 587
	cfg.Notify.WebhookTimeout = "10s"
	cfg.Notify.ReportInterval = "168h"
	cfg.Importer.UserAgent = "airank/1.0"
	cfg.Importer.SeedsFile = "seeds.txt"
	cfg.Importer.Delay = "1s"
	cfg.Importer.ItemType = "page"
	cfg.Importer.Workers = 2
	cfg.Server.Addr = ":8080"
	cfg.Logging.Format = "text"
	cfg.Logging.Level = "info"
	return &cfg
}

// Load reads the TOML file at path over the defaults, then overlays secrets
// from .env and the environment. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	if err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	// .env is optional
	_ = godotenv.Load()
	cfg.applyEnv()

	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("AIRANK_DB_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("AIRANK_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.AI.APIKey = v
	}
	if v := os.Getenv("SMTP_PASS"); v != "" {
		c.Notify.SMTP.Pass = v
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

func (c *ScanConfig) GetFirstDelay() time.Duration { return parseDuration(c.FirstDelay, 5*time.Second) }
func (c *ScanConfig) GetNextDelay() time.Duration  { return parseDuration(c.NextDelay, 10*time.Second) }
func (c *ScanConfig) GetLockTTL() time.Duration    { return parseDuration(c.LockTTL, 30*time.Second) }

func (c *EnrichmentConfig) GetFlagTTL() time.Duration {
	return parseDuration(c.FlagTTL, 60*time.Second)
}

func (c *AIConfig) GetTimeout() time.Duration  { return parseDuration(c.Timeout, 30*time.Second) }
func (c *AIConfig) GetCacheTTL() time.Duration { return parseDuration(c.CacheTTL, 0) }

func (c *NotifyConfig) GetWebhookTimeout() time.Duration {
	return parseDuration(c.WebhookTimeout, 10*time.Second)
}

func (c *NotifyConfig) GetReportInterval() time.Duration {
	return parseDuration(c.ReportInterval, 7*24*time.Hour)
}

func (c *ImporterConfig) GetDelay() time.Duration {
	return parseDuration(c.Delay, 1*time.Second) // Fallback
}

// Location resolves the site timezone, falling back to UTC.
func (c *SiteConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
