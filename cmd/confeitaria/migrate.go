package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/confeitaria/pkg/pg"
	"github.com/dmitrymomot/confeitaria/svc/billing"
)

func migrateCmd(envFiles *[]string) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|status]",
		Short:     "Apply or inspect database migrations",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{string(pg.MigrateUp), string(pg.MigrateDown), string(pg.MigrateStatus)},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*envFiles)
			if err != nil {
				return err
			}
			command := pg.MigrateUp
			if len(args) == 1 {
				command = pg.MigrateCommand(args[0])
			}

			ctx := cmd.Context()
			log := newLogger(cfg)
			pool, err := pg.Connect(ctx, cfg.Postgres)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := pg.Migrate(ctx, pool, cfg.Postgres, billing.Migrations, billing.MigrationsDir, command, log); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrate %s: done\n", command)
			return nil
		},
	}
}
