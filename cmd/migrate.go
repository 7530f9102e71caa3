package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/rooftop-cli/internal/config"
	"github.com/sells-group/rooftop-cli/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the solar schema migrations",
	Long:  "Creates the boundary, building and results tables in the solar schema. Migrations are applied once, in filename order.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(config.ModeMigrate); err != nil {
			return err
		}
		ctx := cmd.Context()

		pg, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, poolConfig())
		if err != nil {
			return err
		}
		defer pg.Close() //nolint:errcheck

		if err := pg.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate")
		}
		zap.L().Info("all migrations applied successfully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
