package main

import (
	"fmt"

	"match-workers/internal/batch"
	"match-workers/internal/common/database"
	"match-workers/internal/store/outcomes"

	"github.com/spf13/cobra"
)

var anchorTaskTypes = map[string]string{
	"job":       batch.TaskMatchCandidatesForJob,
	"candidate": batch.TaskMatchJobsForCandidate,
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var recent int

	cmd := &cobra.Command{
		Use:   "status [job|candidate <id>]",
		Short: "Show recorded batch outcomes",
		Long: "Show the latest outcome recorded for a job or candidate, or with --recent\n" +
			"the newest outcomes across all anchors.",
		Args: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("recent") {
				return cobra.NoArgs(cmd, args)
			}
			if err := cobra.ExactArgs(2)(cmd, args); err != nil {
				return err
			}
			if _, ok := anchorTaskTypes[args[0]]; !ok {
				return fmt.Errorf("unknown anchor kind %q, expected job or candidate", args[0])
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			rc := database.NewRedis(cfg.Database.Redis)
			defer rc.Close()
			recorder := outcomes.NewRecorder(rc.Client, cfg.Outcomes.TTL)

			if cmd.Flags().Changed("recent") {
				list, err := recorder.Recent(cmd.Context(), recent)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), list)
			}

			outcome, found, err := recorder.Latest(cmd.Context(), anchorTaskTypes[args[0]], args[1])
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("no outcome recorded for %s %s", args[0], args[1])
			}
			return printJSON(cmd.OutOrStdout(), outcome)
		},
	}
	cmd.Flags().IntVar(&recent, "recent", 10, "list the newest N outcomes instead")
	return cmd
}
