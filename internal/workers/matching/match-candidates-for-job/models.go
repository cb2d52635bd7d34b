// internal/workers/matching/match-candidates-for-job/models.go
package matchcandidatesforjob

import "match-workers/internal/batch"

type Input struct {
	JobID string `mapstructure:"jobId"`
	TopK  *int   `mapstructure:"topK"`
}

// Output is completed onto the process instance as-is.
type Output = batch.Outcome

func errorVariables(o batch.Outcome) map[string]interface{} {
	return map[string]interface{}{
		"status":        o.Status,
		"job_id":        o.JobID,
		"matches_count": o.MatchesCount,
		"run_id":        o.RunID,
	}
}
