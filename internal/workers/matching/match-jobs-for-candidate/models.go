// internal/workers/matching/match-jobs-for-candidate/models.go
package matchjobsforcandidate

import "match-workers/internal/batch"

type Input struct {
	CandidateID string `mapstructure:"candidateId"`
	TopK        *int   `mapstructure:"topK"`
}

// Output is the batch outcome; its JSON form becomes the process variables.
type Output = batch.Outcome

func errorVariables(o batch.Outcome) map[string]interface{} {
	return map[string]interface{}{
		"status":        o.Status,
		"candidate_id":  o.CandidateID,
		"matches_count": o.MatchesCount,
		"run_id":        o.RunID,
	}
}
