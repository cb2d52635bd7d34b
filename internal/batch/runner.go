// Package batch runs the match batches: fetch the anchor and a bounded window
// of counterparts, rank them, and upsert the top results in one transaction.
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "match-workers/internal/common/errors"
	"match-workers/internal/common/logger"
	"match-workers/internal/common/metrics"
	"match-workers/internal/common/observability"
	"match-workers/internal/matching"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// InvalidRecordPolicy decides what happens when a fetched counterpart record
// fails validation. The anchor entity is always validated strictly.
type InvalidRecordPolicy string

const (
	// PolicyAbort fails the whole batch and writes nothing.
	PolicyAbort InvalidRecordPolicy = "abort"
	// PolicySkip drops the record, logs it and counts it in the outcome.
	PolicySkip InvalidRecordPolicy = "skip"
)

func ParsePolicy(s string) (InvalidRecordPolicy, error) {
	switch InvalidRecordPolicy(s) {
	case "", PolicyAbort:
		return PolicyAbort, nil
	case PolicySkip:
		return PolicySkip, nil
	default:
		return "", fmt.Errorf("unknown invalid record policy %q", s)
	}
}

const (
	DefaultCandidateFetchLimit = 1000
	DefaultJobFetchLimit       = 500
	DefaultConflictRetries     = 3
)

// Options bound the fetch windows. Populations larger than a limit are
// truncated without any signal in the outcome.
type Options struct {
	CandidateFetchLimit int
	JobFetchLimit       int
	CandidatesTopK      int
	JobsTopK            int
	Policy              InvalidRecordPolicy
	// ConflictRetries is how many times a run that lost a write race to a
	// concurrent batch is repeated. Zero means DefaultConflictRetries,
	// negative disables the retry.
	ConflictRetries int
}

func DefaultOptions() Options {
	return Options{
		CandidateFetchLimit: DefaultCandidateFetchLimit,
		JobFetchLimit:       DefaultJobFetchLimit,
		CandidatesTopK:      matching.DefaultCandidatesTopK,
		JobsTopK:            matching.DefaultJobsTopK,
		Policy:              PolicyAbort,
		ConflictRetries:     DefaultConflictRetries,
	}
}

// Observer is notified after every run. Observers run after the transaction
// has been committed or rolled back; their errors are logged and counted but
// never change the outcome.
type Observer interface {
	Name() string
	Observe(ctx context.Context, outcome Outcome, records []MatchRecord) error
}

// Runner executes batch runs. It never returns a raw error: failures are
// reported through Outcome.
type Runner struct {
	store     Store
	ranker    *matching.Ranker
	opts      Options
	logger    logger.Logger
	obs       *observability.Observability
	observers []Observer
}

func NewRunner(store Store, ranker *matching.Ranker, opts Options, log logger.Logger, obs *observability.Observability, observers ...Observer) *Runner {
	if opts.CandidateFetchLimit <= 0 {
		opts.CandidateFetchLimit = DefaultCandidateFetchLimit
	}
	if opts.JobFetchLimit <= 0 {
		opts.JobFetchLimit = DefaultJobFetchLimit
	}
	if opts.CandidatesTopK == 0 {
		opts.CandidatesTopK = matching.DefaultCandidatesTopK
	}
	if opts.JobsTopK == 0 {
		opts.JobsTopK = matching.DefaultJobsTopK
	}
	if opts.Policy == "" {
		opts.Policy = PolicyAbort
	}
	if opts.ConflictRetries == 0 {
		opts.ConflictRetries = DefaultConflictRetries
	}
	if opts.ConflictRetries < 0 {
		opts.ConflictRetries = 0
	}
	if obs == nil {
		obs = observability.NewNoop()
	}
	return &Runner{
		store:     store,
		ranker:    ranker,
		opts:      opts,
		logger:    log,
		obs:       obs,
		observers: observers,
	}
}

// Run dispatches a Request to the matching operation.
func (r *Runner) Run(ctx context.Context, req Request) Outcome {
	switch req.TaskType {
	case TaskMatchCandidatesForJob:
		topK := r.opts.CandidatesTopK
		if req.TopK != nil {
			topK = *req.TopK
		}
		return r.MatchCandidatesForJob(ctx, req.AnchorID, topK)
	case TaskMatchJobsForCandidate:
		topK := r.opts.JobsTopK
		if req.TopK != nil {
			topK = *req.TopK
		}
		return r.MatchJobsForCandidate(ctx, req.AnchorID, topK)
	default:
		return Outcome{
			Status:    StatusError,
			TaskType:  req.TaskType,
			Error:     fmt.Sprintf("unknown task type %q", req.TaskType),
			ErrorCode: string(apperrors.ErrCodeInvalidInput),
			RunID:     uuid.NewString(),
		}
	}
}

// MatchCandidatesForJob ranks up to CandidateFetchLimit candidates against
// the job and upserts the best topK.
func (r *Runner) MatchCandidatesForJob(ctx context.Context, jobID string, topK int) Outcome {
	base := Outcome{TaskType: TaskMatchCandidatesForJob, JobID: jobID}

	return r.run(ctx, base, func(ctx context.Context, tx Tx) ([]MatchRecord, int, error) {
		job, err := tx.FetchJob(ctx, jobID)
		if err != nil {
			return nil, 0, err
		}
		if err := job.Validate(); err != nil {
			return nil, 0, err
		}

		candidates, err := tx.FetchCandidates(ctx, r.opts.CandidateFetchLimit)
		if err != nil {
			return nil, 0, err
		}
		candidates, skipped, err := filterValid(r.opts.Policy, candidates, r.skipLogger(TaskMatchCandidatesForJob, jobID))
		if err != nil {
			return nil, skipped, err
		}

		ranked, err := r.ranker.RankCandidates(ctx, candidates, job, topK)
		if err != nil {
			return nil, skipped, err
		}

		records := make([]MatchRecord, 0, len(ranked))
		for _, rc := range ranked {
			records = append(records, MatchRecord{
				JobID:           job.ID,
				CandidateID:     rc.CandidateID,
				Score:           rc.Score,
				Reasons:         rc.Reasons,
				ComponentScores: rc.ComponentScores,
			})
		}
		return records, skipped, upsertAll(ctx, tx, records)
	})
}

// MatchJobsForCandidate ranks up to JobFetchLimit active jobs against the
// candidate and upserts the best topK.
func (r *Runner) MatchJobsForCandidate(ctx context.Context, candidateID string, topK int) Outcome {
	base := Outcome{TaskType: TaskMatchJobsForCandidate, CandidateID: candidateID}

	return r.run(ctx, base, func(ctx context.Context, tx Tx) ([]MatchRecord, int, error) {
		candidate, err := tx.FetchCandidate(ctx, candidateID)
		if err != nil {
			return nil, 0, err
		}
		if err := candidate.Validate(); err != nil {
			return nil, 0, err
		}

		jobs, err := tx.FetchActiveJobs(ctx, r.opts.JobFetchLimit)
		if err != nil {
			return nil, 0, err
		}
		jobs, skipped, err := filterValid(r.opts.Policy, jobs, r.skipLogger(TaskMatchJobsForCandidate, candidateID))
		if err != nil {
			return nil, skipped, err
		}

		ranked, err := r.ranker.RankJobs(ctx, candidate, jobs, topK)
		if err != nil {
			return nil, skipped, err
		}

		records := make([]MatchRecord, 0, len(ranked))
		for _, rj := range ranked {
			records = append(records, MatchRecord{
				JobID:           rj.JobID,
				CandidateID:     candidate.ID,
				Score:           rj.Score,
				Reasons:         rj.Reasons,
				ComponentScores: rj.ComponentScores,
			})
		}
		return records, skipped, upsertAll(ctx, tx, records)
	})
}

type batchFunc func(ctx context.Context, tx Tx) ([]MatchRecord, int, error)

func (r *Runner) run(ctx context.Context, outcome Outcome, fn batchFunc) Outcome {
	start := time.Now()
	outcome.RunID = uuid.NewString()

	ctx, span := r.obs.StartSpan(ctx, "batch."+outcome.TaskType,
		attribute.String("task_type", outcome.TaskType),
		attribute.String("anchor_id", outcome.AnchorID()),
		attribute.String("run_id", outcome.RunID),
	)
	defer span.End()

	log := r.logger.WithFields(map[string]interface{}{
		"taskType": outcome.TaskType,
		"anchorId": outcome.AnchorID(),
		"runId":    outcome.RunID,
	})

	var (
		records []MatchRecord
		skipped int
		err     error
	)
	// A run that lost a write race is repeated on a new snapshot, so
	// overlapping batches resolve as last write wins.
	for attempt := 0; ; attempt++ {
		err = r.runInTx(ctx, log, func(ctx context.Context, tx Tx) error {
			var err error
			records, skipped, err = fn(ctx, tx)
			return err
		})
		if err == nil || !errors.Is(err, ErrConflict) || attempt >= r.opts.ConflictRetries || ctx.Err() != nil {
			break
		}
		log.Warn("concurrent write conflict, repeating match batch", map[string]interface{}{
			"attempt": attempt + 1,
			"error":   err.Error(),
		})
	}

	duration := time.Since(start)
	outcome.SkippedCount = skipped
	outcome.DurationMs = duration.Milliseconds()
	outcome.CompletedAt = time.Now().UTC()

	if err != nil {
		stdErr := Classify(err)
		records = nil
		outcome.Status = StatusError
		outcome.Error = err.Error()
		outcome.ErrorCode = string(stdErr.Code)

		span.RecordError(err)
		span.SetStatus(codes.Error, outcome.ErrorCode)
		log.Error("match batch failed", map[string]interface{}{
			"errorCode":  outcome.ErrorCode,
			"error":      outcome.Error,
			"retryable":  stdErr.Retryable,
			"skipped":    skipped,
			"durationMs": outcome.DurationMs,
		})
	} else {
		outcome.Status = StatusSuccess
		outcome.MatchesCount = len(records)

		span.SetAttributes(attribute.Int("matches_count", outcome.MatchesCount))
		log.Info("match batch completed", map[string]interface{}{
			"matchesCount": outcome.MatchesCount,
			"skipped":      skipped,
			"durationMs":   outcome.DurationMs,
		})
		metrics.MatchRowsUpserted.WithLabelValues(outcome.TaskType).Add(float64(outcome.MatchesCount))
	}

	metrics.MatchBatchesTotal.WithLabelValues(outcome.TaskType, outcome.Status).Inc()
	metrics.MatchBatchDuration.WithLabelValues(outcome.TaskType).Observe(duration.Seconds())
	r.obs.RecordJobProcessed(ctx, outcome.TaskType, outcome.Status)
	r.obs.RecordJobDuration(ctx, outcome.TaskType, duration, outcome.Status)
	if skipped > 0 {
		metrics.MatchRecordsSkipped.WithLabelValues(outcome.TaskType).Add(float64(skipped))
	}

	r.notify(ctx, log, outcome, records)
	return outcome
}

// runInTx commits when fn succeeds and rolls back otherwise. A panic inside fn
// is converted into an error after rollback.
func (r *Runner) runInTx(ctx context.Context, log logger.Logger, fn func(context.Context, Tx) error) (err error) {
	tx, err := r.store.Begin(ctx)
	if err != nil {
		return persistenceError("begin transaction", err)
	}

	defer func() {
		if p := recover(); p != nil {
			r.rollback(tx, log)
			err = fmt.Errorf("panic during match batch: %v", p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		r.rollback(tx, log)
		return err
	}

	if err := tx.Commit(); err != nil {
		return persistenceError("commit", err)
	}
	return nil
}

func (r *Runner) rollback(tx Tx, log logger.Logger) {
	if err := tx.Rollback(); err != nil {
		log.Warn("rollback failed", map[string]interface{}{"error": err.Error()})
	}
}

func (r *Runner) notify(ctx context.Context, log logger.Logger, outcome Outcome, records []MatchRecord) {
	for _, o := range r.observers {
		if err := o.Observe(ctx, outcome, records); err != nil {
			metrics.MatchObserverFailures.WithLabelValues(o.Name()).Inc()
			log.Warn("post-run side effect failed", map[string]interface{}{
				"observer": o.Name(),
				"error":    err.Error(),
			})
		}
	}
}

func (r *Runner) skipLogger(taskType, anchorID string) func(error) {
	return func(err error) {
		r.logger.Warn("skipping malformed record", map[string]interface{}{
			"taskType": taskType,
			"anchorId": anchorID,
			"error":    err.Error(),
		})
	}
}

func upsertAll(ctx context.Context, tx Tx, records []MatchRecord) error {
	for _, rec := range records {
		if err := tx.UpsertMatch(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func filterValid[T interface{ Validate() error }](policy InvalidRecordPolicy, items []T, onSkip func(error)) ([]T, int, error) {
	valid := make([]T, 0, len(items))
	skipped := 0
	for _, item := range items {
		if err := item.Validate(); err != nil {
			if policy != PolicySkip {
				return nil, skipped, err
			}
			onSkip(err)
			skipped++
			continue
		}
		valid = append(valid, item)
	}
	return valid, skipped, nil
}

func persistenceError(op string, err error) error {
	if errors.Is(err, ErrPersistence) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrPersistence, op, err)
}
