package main

import (
	"fmt"

	"match-workers/internal/common/database"
	"match-workers/internal/store/postgres"
	"match-workers/internal/store/search"

	"github.com/spf13/cobra"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and create the search index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
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

			applied, err := postgres.Migrate(cmd.Context(), pg.DB)
			if err != nil {
				return err
			}
			for _, name := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", name)
			}

			if !cfg.Search.Enabled {
				return nil
			}
			es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			created, err := search.NewIndexer(es.Client, cfg.Search.Index).EnsureIndex(cmd.Context())
			if err != nil {
				return err
			}
			log.Info("search index checked", map[string]interface{}{"index": cfg.Search.Index, "created": created})
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "created index %s\n", cfg.Search.Index)
			}
			return nil
		},
	}
}
