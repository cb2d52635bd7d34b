// internal/common/config/loader.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"match-workers/internal/matching"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	defaultQueue       = "matching"
	defaultAMQPWorkers = 3
	defaultMetricsAddr = ":8080"
	defaultOutcomesTTL = 24 * time.Hour
	defaultSearchIndex = "job_matches"
)

// Load reads .env, configs/config.yaml and configs/config.<APP_ENVIRONMENT>.yaml,
// then environment overrides.
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // ignore error if not found

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func finish(v *viper.Viper) (*Config, error) {
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// bindEnv registers keys that may be absent from the yaml so that
// AutomaticEnv can still populate them on Unmarshal.
func bindEnv(v *viper.Viper) {
	for _, key := range []string{
		"camunda.broker_address",
		"database.postgres.host",
		"database.postgres.port",
		"database.postgres.database",
		"database.postgres.user",
		"database.postgres.password",
		"database.redis.address",
		"database.redis.password",
		"database.elasticsearch.url",
		"dispatch.zeebe_enabled",
		"dispatch.amqp.enabled",
		"dispatch.amqp.url",
		"matching.invalid_record_policy",
		"outcomes.enabled",
		"search.enabled",
		"notifications.sns.enabled",
		"notifications.sns.region",
		"notifications.sns.topic_arn",
		"logging.level",
		"logging.format",
	} {
		_ = v.BindEnv(key)
	}
}

// loadEnvFile loads the first .env found walking up to the project root.
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

// Direct override if config values are still empty after expansion
func overrideEmptyConfig(cfg *Config) {
	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}
	if cfg.Dispatch.AMQP.URL == "" {
		if val := os.Getenv("CELERY_BROKER_URL"); val != "" {
			cfg.Dispatch.AMQP.URL = val
		}
	}
	if cfg.Notifications.SNS.Region == "" {
		if val := os.Getenv("AWS_REGION"); val != "" {
			cfg.Notifications.SNS.Region = val
		}
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	// Camunda defaults
	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 30000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}

	// Database defaults
	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}

	// Matching defaults
	m := &cfg.Matching
	if m.CandidateFetchLimit == 0 {
		m.CandidateFetchLimit = 1000
	}
	if m.JobFetchLimit == 0 {
		m.JobFetchLimit = 500
	}
	if m.DefaultCandidatesTopK == 0 {
		m.DefaultCandidatesTopK = matching.DefaultCandidatesTopK
	}
	if m.DefaultJobsTopK == 0 {
		m.DefaultJobsTopK = matching.DefaultJobsTopK
	}
	if m.InvalidRecordPolicy == "" {
		m.InvalidRecordPolicy = "abort"
	}
	if m.Weights == (matching.Weights{}) {
		m.Weights = matching.DefaultWeights()
	}

	// Dispatch defaults
	if cfg.Dispatch.AMQP.Queue == "" {
		cfg.Dispatch.AMQP.Queue = defaultQueue
	}
	if cfg.Dispatch.AMQP.Workers == 0 {
		cfg.Dispatch.AMQP.Workers = defaultAMQPWorkers
	}
	if cfg.Dispatch.AMQP.Prefetch == 0 {
		cfg.Dispatch.AMQP.Prefetch = cfg.Dispatch.AMQP.Workers
	}

	if cfg.Outcomes.TTL == 0 {
		cfg.Outcomes.TTL = defaultOutcomesTTL
	}
	if cfg.Search.Index == "" {
		cfg.Search.Index = defaultSearchIndex
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = defaultMetricsAddr
	}

	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 5
		}
		if worker.Timeout == 0 {
			worker.Timeout = 30000
		}
		if worker.MaxRetries == 0 {
			worker.MaxRetries = 3
		}
		cfg.Workers[key] = worker
	}
}

// validateConfig validates critical configuration fields. Weights are checked
// when the engine is built.
func validateConfig(cfg *Config) error {
	if cfg.Dispatch.Zeebe() && cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("camunda.broker_address is required")
	}

	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if cfg.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}

	if cfg.Outcomes.Enabled && cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required when outcomes are enabled")
	}
	if cfg.Search.Enabled && len(cfg.Database.Elasticsearch.GetAddresses()) == 0 {
		return fmt.Errorf("database.elasticsearch.addresses or url is required when search is enabled")
	}
	if cfg.Dispatch.AMQP.Enabled && cfg.Dispatch.AMQP.URL == "" {
		return fmt.Errorf("dispatch.amqp.url is required when amqp is enabled")
	}
	if cfg.Notifications.SNS.Enabled && cfg.Notifications.SNS.TopicARN == "" {
		return fmt.Errorf("notifications.sns.topic_arn is required when sns is enabled")
	}

	if cfg.Matching.CandidateFetchLimit < 0 || cfg.Matching.JobFetchLimit < 0 {
		return fmt.Errorf("matching fetch limits must be positive")
	}
	switch cfg.Matching.InvalidRecordPolicy {
	case "abort", "skip":
	default:
		return fmt.Errorf("matching.invalid_record_policy must be abort or skip, got %q", cfg.Matching.InvalidRecordPolicy)
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// LookupWorkerConfig returns the workers.<name> section when it is configured.
func LookupWorkerConfig(cfg *Config, workerName string) (WorkerConfig, bool) {
	if cfg == nil {
		return WorkerConfig{}, false
	}
	worker, exists := cfg.Workers[workerName]
	return worker, exists
}
