// Package postgres implements the match store over database/sql and lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"match-workers/internal/batch"
	"match-workers/internal/matching"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ActiveJobStatuses are the lower-cased jobs.status values treated as open.
var ActiveJobStatuses = []string{"active"}

const (
	selectJobColumns = `SELECT id::text,
		COALESCE(requirements, '[]'::jsonb),
		COALESCE(nice_to_have, '[]'::jsonb),
		COALESCE(experience_required, 0),
		COALESCE(location, ''),
		COALESCE(salary_max, 0),
		COALESCE(NULLIF(job_type, ''), 'full-time')
	FROM jobs`

	selectCandidateColumns = `SELECT id::text,
		COALESCE(skills, '[]'::jsonb),
		COALESCE(experience_years, 0),
		COALESCE(location, ''),
		COALESCE(preferences, '{}'::jsonb)
	FROM candidate_profiles`

	queryJobByID         = selectJobColumns + ` WHERE id::text = $1`
	queryActiveJobs      = selectJobColumns + ` WHERE lower(status::text) = ANY($1) ORDER BY id LIMIT $2`
	queryCandidateByID   = selectCandidateColumns + ` WHERE id::text = $1`
	queryCandidateWindow = selectCandidateColumns + ` ORDER BY id LIMIT $1`

	upsertMatch = `INSERT INTO job_matches
		(id, job_id, candidate_id, match_score, match_reasons, component_scores, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
	ON CONFLICT (job_id, candidate_id) DO UPDATE SET
		match_score = EXCLUDED.match_score,
		match_reasons = EXCLUDED.match_reasons,
		component_scores = EXCLUDED.component_scores,
		updated_at = NOW()`
)

// Store opens repeatable-read transactions so that the anchor and the
// counterpart window come from one snapshot. Upserts that collide with a
// concurrently committed batch surface as batch.ErrConflict.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Begin(ctx context.Context) (batch.Tx, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return nil, persistenceError("begin", err)
	}
	return &Tx{tx: tx}, nil
}

// Tx implements batch.Tx.
type Tx struct {
	tx *sql.Tx
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (t *Tx) FetchJob(ctx context.Context, jobID string) (matching.JobPosting, error) {
	job, err := scanJob(t.tx.QueryRowContext(ctx, queryJobByID, jobID))
	if errors.Is(err, sql.ErrNoRows) {
		return matching.JobPosting{}, fmt.Errorf("%w: job %s", batch.ErrNotFound, jobID)
	}
	if err != nil {
		return matching.JobPosting{}, classify("fetch job", err)
	}
	return job, nil
}

func (t *Tx) FetchCandidate(ctx context.Context, candidateID string) (matching.CandidateProfile, error) {
	c, err := scanCandidate(t.tx.QueryRowContext(ctx, queryCandidateByID, candidateID))
	if errors.Is(err, sql.ErrNoRows) {
		return matching.CandidateProfile{}, fmt.Errorf("%w: candidate %s", batch.ErrNotFound, candidateID)
	}
	if err != nil {
		return matching.CandidateProfile{}, classify("fetch candidate", err)
	}
	return c, nil
}

func (t *Tx) FetchCandidates(ctx context.Context, limit int) ([]matching.CandidateProfile, error) {
	rows, err := t.tx.QueryContext(ctx, queryCandidateWindow, limit)
	if err != nil {
		return nil, persistenceError("fetch candidates", err)
	}
	defer rows.Close()

	out := make([]matching.CandidateProfile, 0)
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, classify("fetch candidates", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceError("fetch candidates", err)
	}
	return out, nil
}

func (t *Tx) FetchActiveJobs(ctx context.Context, limit int) ([]matching.JobPosting, error) {
	rows, err := t.tx.QueryContext(ctx, queryActiveJobs, pq.Array(ActiveJobStatuses), limit)
	if err != nil {
		return nil, persistenceError("fetch active jobs", err)
	}
	defer rows.Close()

	out := make([]matching.JobPosting, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, classify("fetch active jobs", err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceError("fetch active jobs", err)
	}
	return out, nil
}

func (t *Tx) UpsertMatch(ctx context.Context, record batch.MatchRecord) error {
	reasons := record.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	reasonsJSON, err := json.Marshal(reasons)
	if err != nil {
		return fmt.Errorf("marshal reasons: %w", err)
	}
	components := record.ComponentScores
	if components == nil {
		components = map[string]float64{}
	}
	componentsJSON, err := json.Marshal(components)
	if err != nil {
		return fmt.Errorf("marshal component scores: %w", err)
	}

	_, err = t.tx.ExecContext(ctx, upsertMatch,
		uuid.NewString(),
		record.JobID,
		record.CandidateID,
		record.Score,
		reasonsJSON,
		componentsJSON,
	)
	if err != nil {
		return persistenceError("upsert match", err)
	}
	return nil
}

func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return persistenceError("commit", err)
	}
	return nil
}

// Rollback is a no-op once the transaction has been committed.
func (t *Tx) Rollback() error {
	err := t.tx.Rollback()
	if err == nil || errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return persistenceError("rollback", err)
}

func scanJob(row rowScanner) (matching.JobPosting, error) {
	var (
		job              matching.JobPosting
		required, niceTo []byte
	)
	if err := row.Scan(&job.ID, &required, &niceTo, &job.ExperienceRequired, &job.Location, &job.SalaryMax, &job.JobType); err != nil {
		return matching.JobPosting{}, err
	}

	var err error
	if job.RequiredSkills, err = decodeSkills(required); err != nil {
		return matching.JobPosting{}, decodeError("job", job.ID, err)
	}
	if job.NiceToHaveSkills, err = decodeSkills(niceTo); err != nil {
		return matching.JobPosting{}, decodeError("job", job.ID, err)
	}
	return job, nil
}

func scanCandidate(row rowScanner) (matching.CandidateProfile, error) {
	var (
		c           matching.CandidateProfile
		skills, pre []byte
	)
	if err := row.Scan(&c.ID, &skills, &c.ExperienceYears, &c.Location, &pre); err != nil {
		return matching.CandidateProfile{}, err
	}

	var err error
	if c.Skills, err = decodeSkills(skills); err != nil {
		return matching.CandidateProfile{}, decodeError("candidate", c.ID, err)
	}
	if c.Preferences, c.SalaryExpectation, err = decodePreferences(pre); err != nil {
		return matching.CandidateProfile{}, decodeError("candidate", c.ID, err)
	}
	return c, nil
}

func decodeError(entity, id string, err error) error {
	return fmt.Errorf("%w: %s %s: %v", matching.ErrPreconditionViolation, entity, id, err)
}

// classify leaves decode errors untouched and wraps driver errors.
func classify(op string, err error) error {
	if errors.Is(err, matching.ErrPreconditionViolation) {
		return err
	}
	return persistenceError(op, err)
}

func persistenceError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if isConflict(pqErr) {
			return fmt.Errorf("%w: %w: %s: %s (sqlstate %s)", batch.ErrPersistence, batch.ErrConflict, op, pqErr.Message, pqErr.Code)
		}
		return fmt.Errorf("%w: %s: %s (sqlstate %s)", batch.ErrPersistence, op, pqErr.Message, pqErr.Code)
	}
	return fmt.Errorf("%w: %s: %v", batch.ErrPersistence, op, err)
}

// isConflict reports serialization failures and deadlocks. Under repeatable
// read an upsert of a row committed by a concurrent batch after this
// snapshot fails with 40001; the runner repeats the batch on a new snapshot.
func isConflict(err *pq.Error) bool {
	switch err.Code {
	case "40001", "40P01":
		return true
	}
	return false
}
