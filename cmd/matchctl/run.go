package main

import (
	"fmt"

	"match-workers/internal/app"
	"match-workers/internal/batch"
	"match-workers/internal/common/database"
	"match-workers/internal/common/observability"

	"github.com/spf13/cobra"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one match batch against the configured database",
	}
	cmd.AddCommand(
		newRunTaskCmd(opts, "job <job-id>", "Rank candidates for a job and upsert the top matches", batch.TaskMatchCandidatesForJob),
		newRunTaskCmd(opts, "candidate <candidate-id>", "Rank active jobs for a candidate and upsert the top matches", batch.TaskMatchJobsForCandidate),
	)
	return cmd
}

func newRunTaskCmd(opts *rootOptions, use, short, taskType string) *cobra.Command {
	var topK int

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			log, err := opts.newLogger(cfg)
			if err != nil {
				return err
			}

			pg, err := database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			defer pg.Close()

			observers, resources, err := app.NewObservers(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer resources.Close()

			runner, err := app.NewRunner(cfg, pg, log, observability.NewNoop(), observers...)
			if err != nil {
				return err
			}

			req := batch.Request{TaskType: taskType, AnchorID: args[0]}
			if cmd.Flags().Changed("top-k") {
				if topK < 0 {
					return fmt.Errorf("--top-k must not be negative")
				}
				req.TopK = &topK
			}

			outcome := runner.Run(cmd.Context(), req)
			if err := printJSON(cmd.OutOrStdout(), outcome); err != nil {
				return err
			}
			if !outcome.Succeeded() {
				return fmt.Errorf("match batch failed: %s", outcome.ErrorCode)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&topK, "top-k", 0, "number of matches to keep (default from config)")
	return cmd
}
