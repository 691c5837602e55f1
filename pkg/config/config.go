// Package config provides the engine's layered configuration: defaults,
// an optional YAML file, then environment variables, in increasing order
// of precedence. It mirrors the recognized option set from the engine
// specification (database, queue, per-provider OAuth, scheduler/reaper
// timing, log retention, worker concurrency, webhook timeout) plus the two
// resolved open-question knobs (oldest-first scheduling pick and
// drop-on-failure for terminal job failures).
package config

import "time"

// Config is the root configuration object for the engine.
type Config struct {
	Database  DatabaseConfig  `json:"database"   yaml:"database"   mapstructure:"database"`
	Queue     QueueConfig     `json:"queue"      yaml:"queue"      mapstructure:"queue"`
	Providers ProvidersConfig `json:"providers"  yaml:"providers"  mapstructure:"providers"`
	Scheduler SchedulerConfig `json:"scheduler"  yaml:"scheduler"  mapstructure:"scheduler"`
	Log       LogConfig       `json:"log"        yaml:"log"        mapstructure:"log"`
	Worker    WorkerConfig    `json:"worker"     yaml:"worker"     mapstructure:"worker"`
	Webhook   WebhookConfig   `json:"webhook"    yaml:"webhook"    mapstructure:"webhook"`
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	DSN      SensitiveString `json:"dsn,omitempty" yaml:"dsn,omitempty" mapstructure:"dsn"`
	Host     string          `json:"host"           yaml:"host"           mapstructure:"host"`
	Port     string          `json:"port"           yaml:"port"           mapstructure:"port"`
	User     string          `json:"user"           yaml:"user"           mapstructure:"user"`
	Password SensitiveString `json:"password"       yaml:"password"       mapstructure:"password"`
	Name     string          `json:"name"           yaml:"name"           mapstructure:"name"`
	SSLMode  string          `json:"ssl_mode"       yaml:"ssl_mode"       mapstructure:"ssl_mode"`
}

// QueueConfig holds the durable job queue's Redis connection parameters.
type QueueConfig struct {
	URL      string          `json:"url,omitempty" yaml:"url,omitempty" mapstructure:"url"`
	Host     string          `json:"host"           yaml:"host"           mapstructure:"host"`
	Port     string          `json:"port"           yaml:"port"           mapstructure:"port"`
	Password SensitiveString `json:"password"       yaml:"password"       mapstructure:"password"`
	DB       int             `json:"db"             yaml:"db"             mapstructure:"db"`
}

// ProviderCredentials is one SaaS provider's OAuth client configuration.
type ProviderCredentials struct {
	ClientID     string          `json:"client_id"     yaml:"client_id"     mapstructure:"client_id"`
	ClientSecret SensitiveString `json:"client_secret"  yaml:"client_secret"  mapstructure:"client_secret"`
	RedirectURI  string          `json:"redirect_uri"   yaml:"redirect_uri"   mapstructure:"redirect_uri"`
	TokenURL     string          `json:"token_url"      yaml:"token_url"      mapstructure:"token_url"`
}

// ProvidersConfig carries OAuth client config for every supported app.
type ProvidersConfig struct {
	Gmail  ProviderCredentials `json:"gmail"  yaml:"gmail"  mapstructure:"gmail"`
	Slack  ProviderCredentials `json:"slack"  yaml:"slack"  mapstructure:"slack"`
	GitHub ProviderCredentials `json:"github" yaml:"github" mapstructure:"github"`
}

// SchedulerConfig tunes the poll sweep and log reaper.
type SchedulerConfig struct {
	Tick               time.Duration `json:"tick"                  yaml:"tick"                  mapstructure:"tick"`
	ReaperInterval     time.Duration `json:"reaper_interval"       yaml:"reaper_interval"       mapstructure:"reaper_interval"`
	LogRetentionDays   int           `json:"log_retention_days"    yaml:"log_retention_days"    mapstructure:"log_retention_days"`
	PickOldestFirst    bool          `json:"pick_oldest_first"     yaml:"pick_oldest_first"     mapstructure:"pick_oldest_first"`
	DropOnTerminalFail bool          `json:"drop_on_terminal_fail" yaml:"drop_on_terminal_fail" mapstructure:"drop_on_terminal_fail"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level string `json:"level" yaml:"level" mapstructure:"level"`
	JSON  bool   `json:"json"  yaml:"json"  mapstructure:"json"`
}

// WorkerConfig tunes the executor worker pool.
type WorkerConfig struct {
	Concurrency int `json:"concurrency" yaml:"concurrency" mapstructure:"concurrency"`
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts" mapstructure:"max_attempts"`
}

// WebhookConfig tunes the send_webhook action.
type WebhookConfig struct {
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
}

// Default returns the engine's built-in default configuration, matching
// the defaults named in the specification.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    "5432",
			SSLMode: "disable",
		},
		Queue: QueueConfig{
			Host: "localhost",
			Port: "6379",
		},
		Scheduler: SchedulerConfig{
			Tick:               30 * time.Second,
			ReaperInterval:      24 * time.Hour,
			LogRetentionDays:   30,
			PickOldestFirst:    true,
			DropOnTerminalFail: true,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
		Worker: WorkerConfig{
			Concurrency: 5,
			MaxAttempts: 3,
		},
		Webhook: WebhookConfig{
			Timeout: 10 * time.Second,
		},
	}
}

// PollingInterval returns the default poll interval for a trigger app,
// per spec.md §4.6.
func PollingInterval(appName string) time.Duration {
	switch appName {
	case "gmail":
		return 60 * time.Second
	case "slack":
		return 30 * time.Second
	case "github":
		return 60 * time.Second
	case "webhook":
		return 0
	default:
		return 60 * time.Second
	}
}
