package migrate

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"opencsg.com/pulp-migrator/builder/store/database"
	"opencsg.com/pulp-migrator/common/config"
	"opencsg.com/pulp-migrator/migrator"
)

var (
	planFile      string
	validateOnly  bool
	dryRun        bool
	skipCorrupted bool
)

func init() {
	Cmd.Flags().StringVarP(&planFile, "plan", "p", "", "migration plan file, - for stdin (required)")
	Cmd.Flags().BoolVar(&validateOnly, "validate", false, "validate the plan against the legacy server and exit")
	Cmd.Flags().BoolVar(&dryRun, "dry-run", false, "pre-migrate only, create no target entities")
	Cmd.Flags().BoolVar(&skipCorrupted, "skip-corrupted", false, "count corrupted content instead of failing on it")
	_ = Cmd.MarkFlagRequired("plan")
}

// ReadPlan loads a plan document from a file or, for "-", stdin.
func ReadPlan(planFile string) ([]byte, error) {
	if planFile == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(planFile)
}

var Cmd = &cobra.Command{
	Use:     "migrate",
	Short:   "Run a migration plan",
	Example: example(),
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

		planDoc, err := ReadPlan(planFile)
		if err != nil {
			return fmt.Errorf("reading plan file: %w", err)
		}

		if skipCorrupted {
			cfg.Migration.SkipCorrupted = true
		}

		m, err := migrator.NewMigrator(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		return m.Migrate(cmd.Context(), planDoc, migrator.RunOptions{
			ValidateOnly: validateOnly,
			DryRun:       dryRun,
		})
	},
}

func example() string {
	return `
# migrate everything the plan names
pulp-migrator migrate --plan plan.json

# check the plan against the legacy server without touching anything
pulp-migrator migrate --plan plan.json --validate
`
}
