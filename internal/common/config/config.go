// internal/common/config/config.go
package config

import (
	"fmt"
	"time"

	"match-workers/internal/matching"
)

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Camunda       CamundaConfig           `mapstructure:"camunda"`
	Database      DatabaseConfig          `mapstructure:"database"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	Matching      MatchingConfig          `mapstructure:"matching"`
	Dispatch      DispatchConfig          `mapstructure:"dispatch"`
	Outcomes      OutcomesConfig          `mapstructure:"outcomes"`
	Search        SearchConfig            `mapstructure:"search"`
	Notifications NotificationConfig      `mapstructure:"notifications"`
	Logging       LoggingConfig           `mapstructure:"logging"`
	Metrics       MetricsConfig           `mapstructure:"metrics"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	URL       string   `mapstructure:"url"` // Single URL for backwards compatibility
}

// GetAddresses returns Addresses, or URL when no list is configured.
func (e ElasticsearchConfig) GetAddresses() []string {
	if len(e.Addresses) > 0 {
		return e.Addresses
	}
	if e.URL != "" {
		return []string{e.URL}
	}
	return nil
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// --- Matching Configuration ---

// MatchingConfig bounds the batch windows and selects the scoring weights.
type MatchingConfig struct {
	CandidateFetchLimit   int              `mapstructure:"candidate_fetch_limit"`
	JobFetchLimit         int              `mapstructure:"job_fetch_limit"`
	DefaultCandidatesTopK int              `mapstructure:"default_candidates_top_k"`
	DefaultJobsTopK       int              `mapstructure:"default_jobs_top_k"`
	InvalidRecordPolicy   string           `mapstructure:"invalid_record_policy"`
	Parallelism           int              `mapstructure:"parallelism"`      // 0 = GOMAXPROCS
	ConflictRetries       int              `mapstructure:"conflict_retries"` // 0 = default, <0 = off
	Weights               matching.Weights `mapstructure:"weights"`
}

// DispatchConfig selects which dispatchers feed the batch runner.
type DispatchConfig struct {
	ZeebeEnabled *bool      `mapstructure:"zeebe_enabled"`
	AMQP         AMQPConfig `mapstructure:"amqp"`
}

// Zeebe reports whether zeebe dispatch is on; it defaults to true.
func (d DispatchConfig) Zeebe() bool {
	return d.ZeebeEnabled == nil || *d.ZeebeEnabled
}

type AMQPConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	URL      string `mapstructure:"url"`
	Queue    string `mapstructure:"queue"`
	Workers  int    `mapstructure:"workers"`
	Prefetch int    `mapstructure:"prefetch"`
}

type OutcomesConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type SearchConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Index   string `mapstructure:"index"`
}

// NotificationConfig holds settings for the matches refreshed events.
type NotificationConfig struct {
	SNS struct {
		Enabled    bool   `mapstructure:"enabled"`
		Region     string `mapstructure:"region"`
		TopicARN   string `mapstructure:"topic_arn"`
		TopMatches int    `mapstructure:"top_matches"`
	} `mapstructure:"sns"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

type MetricsConfig struct {
	Address string `mapstructure:"address"`
}
