package main

import (
	"encoding/json"
	"fmt"
	"os"

	"match-workers/internal/matching"

	"github.com/spf13/cobra"
)

type scoreOutput struct {
	CandidateID string `json:"candidate_id"`
	JobID       string `json:"job_id"`
	matching.Result
}

func newScoreCmd() *cobra.Command {
	var (
		candidatePath string
		jobPath       string
		weightsPath   string
	)

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score one candidate against one job from JSON files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var candidate matching.CandidateProfile
			if err := readJSON(candidatePath, &candidate); err != nil {
				return err
			}
			var job matching.JobPosting
			if err := readJSON(jobPath, &job); err != nil {
				return err
			}

			weights := matching.DefaultWeights()
			if weightsPath != "" {
				if err := readJSON(weightsPath, &weights); err != nil {
					return err
				}
			}

			engine, err := matching.NewEngine(weights)
			if err != nil {
				return err
			}
			result, err := engine.Calculate(candidate, job)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), scoreOutput{
				CandidateID: candidate.ID,
				JobID:       job.ID,
				Result:      result,
			})
		},
	}

	cmd.Flags().StringVar(&candidatePath, "candidate", "", "candidate profile JSON file")
	cmd.Flags().StringVar(&jobPath, "job", "", "job posting JSON file")
	cmd.Flags().StringVar(&weightsPath, "weights", "", "factor weights JSON file (default weights when unset)")
	_ = cmd.MarkFlagRequired("candidate")
	_ = cmd.MarkFlagRequired("job")
	return cmd
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
