package batch

import (
	"context"
	"errors"

	"match-workers/internal/matching"
)

var (
	// ErrNotFound is returned when the anchor job or candidate does not exist.
	ErrNotFound = errors.New("NOT_FOUND")
	// ErrPersistence wraps any storage failure during fetch, upsert or commit.
	ErrPersistence = errors.New("PERSISTENCE_ERROR")
	// ErrConflict marks a storage failure caused by a concurrent writer
	// (serialization failure or deadlock). It is always wrapped together with
	// ErrPersistence; the whole run can be repeated on a fresh snapshot.
	ErrConflict = errors.New("SERIALIZATION_CONFLICT")
)

// MatchRecord is one persisted match row. At most one exists per
// (JobID, CandidateID); writing it again overwrites the previous values.
type MatchRecord struct {
	JobID           string             `json:"job_id"`
	CandidateID     string             `json:"candidate_id"`
	Score           float64            `json:"score"`
	Reasons         []string           `json:"reasons"`
	ComponentScores map[string]float64 `json:"component_scores"`
}

// Store opens unit-of-work transactions over candidates, jobs and matches.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
}

// Tx is a single unit of work. Reads observe a consistent snapshot and writes
// become visible only after Commit. Rollback after Commit is a no-op.
type Tx interface {
	FetchJob(ctx context.Context, jobID string) (matching.JobPosting, error)
	FetchCandidate(ctx context.Context, candidateID string) (matching.CandidateProfile, error)
	FetchCandidates(ctx context.Context, limit int) ([]matching.CandidateProfile, error)
	FetchActiveJobs(ctx context.Context, limit int) ([]matching.JobPosting, error)
	UpsertMatch(ctx context.Context, record MatchRecord) error
	Commit() error
	Rollback() error
}
