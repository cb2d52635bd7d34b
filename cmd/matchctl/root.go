package main

import (
	"encoding/json"
	"fmt"
	"io"

	"match-workers/internal/app"
	"match-workers/internal/common/config"
	"match-workers/internal/common/logger"

	"github.com/spf13/cobra"
)

const cliName = "matchctl"

// Actual version can be specified in build command.
var version = "unknown"

type rootOptions struct {
	configPath string
	debug      bool
	json       bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:          cliName,
		Short:        "matchctl runs and inspects candidate/job match batches",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "a config file (default is configs/config.yaml)")
	cmd.PersistentFlags().BoolVarP(&opts.debug, "debug", "d", false, "verbose/debug output")
	cmd.PersistentFlags().BoolVarP(&opts.json, "json", "j", false, "json format for logging")

	cmd.AddCommand(
		newRunCmd(opts),
		newScoreCmd(),
		newStatusCmd(opts),
		newMigrateCmd(opts),
		newRegistryCmd(),
		newVersionCmd(),
	)
	return cmd
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	if o.configPath != "" {
		return config.LoadFromFile(o.configPath)
	}
	return config.Load()
}

// newLogger applies the --debug and --json flags over the logging section.
func (o *rootOptions) newLogger(cfg *config.Config) (logger.Logger, error) {
	logCfg := cfg.Logging
	if o.debug {
		logCfg.Level = "debug"
	}
	if o.json {
		logCfg.Format = "json"
	}
	if logCfg.Output == "" || logCfg.Output == "stdout" {
		// keep stdout for command output
		logCfg.Output = "stderr"
	}
	log, _, err := app.NewLogger(logCfg)
	return log, err
}

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
