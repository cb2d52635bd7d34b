package registry

const (
	TaskMatchCandidatesForJob = "match-candidates-for-job"
	TaskMatchJobsForCandidate = "match-jobs-for-candidate"

	CeleryMatchCandidatesForJob = "workers.tasks.matching.match_candidates_for_job"
	CeleryMatchJobsForCandidate = "workers.tasks.matching.match_jobs_for_candidate"
)

var matchErrorCodes = []string{
	"MATCH_ANCHOR_NOT_FOUND",
	"MATCH_PERSISTENCE_FAILED",
	"MATCH_PRECONDITION_VIOLATION",
	"MATCH_INVALID_INPUT",
	"MATCH_INVALID_WEIGHTS",
}

func topKSchema() map[string]interface{} {
	return map[string]interface{}{"type": "integer", "minimum": 0}
}

func idSchema() map[string]interface{} {
	return map[string]interface{}{"type": "string", "minLength": 1}
}

func outcomeSchema(anchorField string) map[string]interface{} {
	return map[string]interface{}{
		"type":     "object",
		"required": []interface{}{"status", anchorField, "matches_count"},
		"properties": map[string]interface{}{
			"status":        map[string]interface{}{"type": "string", "enum": []interface{}{"success", "error"}},
			anchorField:     idSchema(),
			"matches_count": map[string]interface{}{"type": "integer", "minimum": 0},
			"error":         map[string]interface{}{"type": "string"},
		},
	}
}

// Default returns the registry of the matching activities.
func Default() *ActivityRegistry {
	return &ActivityRegistry{
		Version:     "1.0.0",
		LastUpdated: "2026-03-01T00:00:00Z",
		Activities: []Activity{
			{
				ID:                   "matching.candidates.rank",
				DisplayName:          "Match Candidates For Job",
				Description:          "Scores the candidate window against one job and upserts the top matches",
				Category:             "matching",
				Version:              "1.0.0",
				TaskType:             TaskMatchCandidatesForJob,
				CeleryTask:           CeleryMatchCandidatesForJob,
				ImplementationStatus: "completed",
				InputSchema: map[string]interface{}{
					"type":     "object",
					"required": []interface{}{"jobId"},
					"properties": map[string]interface{}{
						"jobId": idSchema(),
						"topK":  topKSchema(),
					},
				},
				OutputSchema: outcomeSchema("job_id"),
				ErrorCodes:   matchErrorCodes,
				Timeout:      "120s",
				Retries:      3,
				Workflows:    []string{"job-published", "job-updated"},
				Tags:         []string{"matching", "batch"},
			},
			{
				ID:                   "matching.jobs.rank",
				DisplayName:          "Match Jobs For Candidate",
				Description:          "Scores the active jobs against one candidate and upserts the top matches",
				Category:             "matching",
				Version:              "1.0.0",
				TaskType:             TaskMatchJobsForCandidate,
				CeleryTask:           CeleryMatchJobsForCandidate,
				ImplementationStatus: "completed",
				InputSchema: map[string]interface{}{
					"type":     "object",
					"required": []interface{}{"candidateId"},
					"properties": map[string]interface{}{
						"candidateId": idSchema(),
						"topK":        topKSchema(),
					},
				},
				OutputSchema: outcomeSchema("candidate_id"),
				ErrorCodes:   matchErrorCodes,
				Timeout:      "120s",
				Retries:      3,
				Workflows:    []string{"candidate-profile-updated"},
				Tags:         []string{"matching", "batch"},
			},
		},
	}
}
