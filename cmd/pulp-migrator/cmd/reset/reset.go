package reset

import (
	"fmt"

	"github.com/spf13/cobra"

	"opencsg.com/pulp-migrator/builder/store/database"
	"opencsg.com/pulp-migrator/cmd/pulp-migrator/cmd/migrate"
	"opencsg.com/pulp-migrator/common/config"
	"opencsg.com/pulp-migrator/migrator"
)

var planFile string

func init() {
	Cmd.Flags().StringVarP(&planFile, "plan", "p", "", "migration plan file, - for stdin (required)")
	_ = Cmd.MarkFlagRequired("plan")
}

var Cmd = &cobra.Command{
	Use:   "reset",
	Short: "Tear down everything previous runs created for the plan's families",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}
		err = database.InitDB(database.DBConfig{
			Dialect: database.DatabaseDialect(cfg.Database.Driver),
			DSN:     cfg.Database.DSN,
		})
		if err != nil {
			return fmt.Errorf("initializing DB connection: %w", err)
		}

		planDoc, err := migrate.ReadPlan(planFile)
		if err != nil {
			return fmt.Errorf("reading plan file: %w", err)
		}

		m, err := migrator.NewMigrator(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		return m.Reset(cmd.Context(), planDoc)
	},
}
