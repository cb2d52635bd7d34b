// Package outcomes keeps the latest batch outcome per anchor in redis so that
// operators and callers can poll the state of a run.
package outcomes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"match-workers/internal/batch"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix       = "match:outcome:"
	historyKey      = keyPrefix + "history"
	historyLength   = 100
	DefaultTTL      = 24 * time.Hour
	observerName    = "outcomes"
	anchorJob       = "job"
	anchorCandidate = "candidate"
)

// Recorder stores outcomes under match:outcome:<job|candidate>:<id> and
// keeps a capped list of recent outcomes.
type Recorder struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRecorder(client redis.Cmdable, ttl time.Duration) *Recorder {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Recorder{client: client, ttl: ttl}
}

func (r *Recorder) Name() string { return observerName }

// Observe records every outcome, successful or not.
func (r *Recorder) Observe(ctx context.Context, outcome batch.Outcome, _ []batch.MatchRecord) error {
	key, err := keyFor(outcome.TaskType, outcome.AnchorID())
	if err != nil {
		return err
	}

	data, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}

	if err := r.client.Set(ctx, key, string(data), r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	if err := r.client.LPush(ctx, historyKey, string(data)).Err(); err != nil {
		return fmt.Errorf("redis lpush history: %w", err)
	}
	if err := r.client.LTrim(ctx, historyKey, 0, historyLength-1).Err(); err != nil {
		return fmt.Errorf("redis ltrim history: %w", err)
	}
	return nil
}

// Latest returns the most recent outcome for the anchor, or false when none
// is recorded or it has expired.
func (r *Recorder) Latest(ctx context.Context, taskType, anchorID string) (batch.Outcome, bool, error) {
	key, err := keyFor(taskType, anchorID)
	if err != nil {
		return batch.Outcome{}, false, err
	}

	data, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return batch.Outcome{}, false, nil
	}
	if err != nil {
		return batch.Outcome{}, false, fmt.Errorf("redis get %s: %w", key, err)
	}

	var outcome batch.Outcome
	if err := json.Unmarshal([]byte(data), &outcome); err != nil {
		return batch.Outcome{}, false, fmt.Errorf("decode outcome %s: %w", key, err)
	}
	return outcome, true, nil
}

// Recent returns up to n outcomes, newest first.
func (r *Recorder) Recent(ctx context.Context, n int) ([]batch.Outcome, error) {
	if n <= 0 {
		return []batch.Outcome{}, nil
	}
	items, err := r.client.LRange(ctx, historyKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange history: %w", err)
	}

	out := make([]batch.Outcome, 0, len(items))
	for _, item := range items {
		var outcome batch.Outcome
		if err := json.Unmarshal([]byte(item), &outcome); err != nil {
			continue
		}
		out = append(out, outcome)
	}
	return out, nil
}

func keyFor(taskType, anchorID string) (string, error) {
	switch taskType {
	case batch.TaskMatchCandidatesForJob:
		return keyPrefix + anchorJob + ":" + anchorID, nil
	case batch.TaskMatchJobsForCandidate:
		return keyPrefix + anchorCandidate + ":" + anchorID, nil
	default:
		return "", fmt.Errorf("no outcome key for task type %q", taskType)
	}
}
