// Package app builds the matching runner and its side effects from the
// loaded configuration. Both binaries share it.
package app

import (
	"context"
	"fmt"
	"time"

	"match-workers/internal/batch"
	"match-workers/internal/common/aws"
	"match-workers/internal/common/config"
	"match-workers/internal/common/database"
	"match-workers/internal/common/logger"
	"match-workers/internal/common/observability"
	"match-workers/internal/matching"
	"match-workers/internal/notify"
	"match-workers/internal/store/outcomes"
	"match-workers/internal/store/postgres"
	"match-workers/internal/store/search"

	"go.uber.org/zap"
)

// NewLogger builds the zap logger from the logging section and wraps it.
func NewLogger(cfg config.LoggingConfig) (logger.Logger, *zap.Logger, error) {
	zapLog, err := logger.New(logger.Options{
		Level:  cfg.Level,
		Format: cfg.Format,
		Output: cfg.Output,
	})
	if err != nil {
		return nil, nil, err
	}
	return logger.NewZapAdapter(zapLog), zapLog, nil
}

// RetryWithBackoff runs operation up to maxRetries times, doubling the delay
// after each failure.
func RetryWithBackoff(ctx context.Context, log logger.Logger, name string, maxRetries int, initialDelay time.Duration, operation func() error) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		if err = operation(); err == nil {
			return nil
		}
		if i == maxRetries-1 {
			break
		}

		log.Warn(name+" failed, retrying", map[string]interface{}{
			"error":       err,
			"attempt":     i + 1,
			"maxRetries":  maxRetries,
			"nextRetryIn": delay.String(),
		})
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", name, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}

	return fmt.Errorf("%s failed after %d attempts: %w", name, maxRetries, err)
}

// RunnerOptions converts the matching section into runner options.
func RunnerOptions(cfg config.MatchingConfig) (batch.Options, error) {
	policy, err := batch.ParsePolicy(cfg.InvalidRecordPolicy)
	if err != nil {
		return batch.Options{}, err
	}
	return batch.Options{
		CandidateFetchLimit: cfg.CandidateFetchLimit,
		JobFetchLimit:       cfg.JobFetchLimit,
		CandidatesTopK:      cfg.DefaultCandidatesTopK,
		JobsTopK:            cfg.DefaultJobsTopK,
		Policy:              policy,
		ConflictRetries:     cfg.ConflictRetries,
	}, nil
}

// NewRanker validates the configured weights and builds the ranker.
func NewRanker(cfg config.MatchingConfig) (*matching.Ranker, error) {
	engine, err := matching.NewEngine(cfg.Weights)
	if err != nil {
		return nil, err
	}
	return matching.NewRanker(engine, cfg.Parallelism), nil
}

// Resources holds the connections opened for the optional observers.
type Resources struct {
	Redis    *database.RedisClient
	Search   *database.ElasticsearchClient
	Recorder *outcomes.Recorder
	Indexer  *search.Indexer
}

// Close releases whatever was opened.
func (r *Resources) Close() {
	if r.Redis != nil {
		_ = r.Redis.Close()
	}
}

// NewObservers opens the backends of every enabled observer. Observers run
// in the returned order: outcome record first, then the search index, then
// the notification.
func NewObservers(ctx context.Context, cfg *config.Config, log logger.Logger) ([]batch.Observer, *Resources, error) {
	res := &Resources{}
	var observers []batch.Observer

	if cfg.Outcomes.Enabled {
		res.Redis = database.NewRedis(cfg.Database.Redis)
		if err := res.Redis.Ping(ctx); err != nil {
			res.Close()
			return nil, nil, fmt.Errorf("outcome store: %w", err)
		}
		res.Recorder = outcomes.NewRecorder(res.Redis.Client, cfg.Outcomes.TTL)
		observers = append(observers, res.Recorder)
		log.Info("outcome recorder enabled", map[string]interface{}{"ttl": cfg.Outcomes.TTL.String()})
	}

	if cfg.Search.Enabled {
		es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			res.Close()
			return nil, nil, fmt.Errorf("search index: %w", err)
		}
		res.Search = es
		res.Indexer = search.NewIndexer(es.Client, cfg.Search.Index)
		created, err := res.Indexer.EnsureIndex(ctx)
		if err != nil {
			res.Close()
			return nil, nil, fmt.Errorf("search index: %w", err)
		}
		observers = append(observers, res.Indexer)
		log.Info("search indexer enabled", map[string]interface{}{"index": cfg.Search.Index, "created": created})
	}

	if sns := cfg.Notifications.SNS; sns.Enabled {
		client, err := aws.NewSNSClient(ctx, sns.Region, sns.TopicARN)
		if err != nil {
			res.Close()
			return nil, nil, fmt.Errorf("notifications: %w", err)
		}
		observers = append(observers, notify.NewPublisher(client, sns.TopMatches))
		log.Info("match notifications enabled", map[string]interface{}{"topicArn": sns.TopicARN})
	}

	return observers, res, nil
}

// NewRunner wires the postgres store, the ranker and the observers into a
// batch runner.
func NewRunner(cfg *config.Config, pg *database.PostgresClient, log logger.Logger, obs *observability.Observability, observers ...batch.Observer) (*batch.Runner, error) {
	opts, err := RunnerOptions(cfg.Matching)
	if err != nil {
		return nil, err
	}
	ranker, err := NewRanker(cfg.Matching)
	if err != nil {
		return nil, err
	}
	return batch.NewRunner(postgres.New(pg.DB), ranker, opts, log, obs, observers...), nil
}
