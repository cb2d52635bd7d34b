package batch

import (
	"time"

	apperrors "match-workers/internal/common/errors"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Task types shared by the zeebe workers and the amqp consumer.
const (
	TaskMatchCandidatesForJob = "match-candidates-for-job"
	TaskMatchJobsForCandidate = "match-jobs-for-candidate"
)

// Outcome is the structured result of one batch run. It is returned for
// every run, including failed ones.
type Outcome struct {
	Status       string    `json:"status"`
	TaskType     string    `json:"task_type"`
	JobID        string    `json:"job_id,omitempty"`
	CandidateID  string    `json:"candidate_id,omitempty"`
	MatchesCount int       `json:"matches_count"`
	SkippedCount int       `json:"skipped_count"`
	Error        string    `json:"error,omitempty"`
	ErrorCode    string    `json:"error_code,omitempty"`
	RunID        string    `json:"run_id"`
	DurationMs   int64     `json:"duration_ms"`
	CompletedAt  time.Time `json:"completed_at"`
}

func (o Outcome) Succeeded() bool {
	return o.Status == StatusSuccess
}

// AnchorID is the id of the job or candidate the run matched against.
func (o Outcome) AnchorID() string {
	if o.TaskType == TaskMatchJobsForCandidate {
		return o.CandidateID
	}
	return o.JobID
}

// Err rebuilds the classified error of a failed outcome so dispatchers can
// report it. It returns nil for successful runs.
func (o Outcome) Err() *apperrors.StandardError {
	if o.Succeeded() {
		return nil
	}
	code := apperrors.ErrorCode(o.ErrorCode)
	if code == "" {
		code = apperrors.ErrCodeInternal
	}
	ts := o.CompletedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &apperrors.StandardError{
		Code:      code,
		Message:   "Match batch failed",
		Details:   o.Error,
		Retryable: apperrors.IsRetryableErrorCode(code),
		Metadata:  map[string]interface{}{"taskType": o.TaskType, "runId": o.RunID},
		Timestamp: ts,
	}
}

// Request describes a run independently of the dispatcher that received it.
// A nil TopK selects the task's default.
type Request struct {
	TaskType string
	AnchorID string
	TopK     *int
}
