package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/stead/internal/config"
)

// MigratedSource reports the tables ensured on one data source.
type MigratedSource struct {
	Name       string   `json:"name"`
	Driver     string   `json:"driver"`
	Statements []string `json:"statements,omitempty"`
	Digest     string   `json:"schema_digest,omitempty"`
}

// MigrateResult holds the migrate command's output.
type MigrateResult struct {
	DataSources []MigratedSource `json:"datasources"`
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the tables of every class and relation",
		Long: `Create missing tables in every sqlite data source named by the config.

Each data source receives the tables of the classes and relations assigned
to it. Existing tables are left untouched. The schema digest is recorded so
later runs can tell which schema a database was created for.

Example:
  stead migrate --config ./stead.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(rootOpts, cmd)
		},
	}
	return cmd
}

func runMigrate(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx := cmd.Context()

	env, err := openFromFlags(ctx, opts, formatter)
	if err != nil {
		return err
	}
	defer env.Close()

	result := MigrateResult{DataSources: []MigratedSource{}}
	for _, name := range env.Config.DataSourceNames() {
		entry := MigratedSource{Name: name, Driver: env.Config.DataSources[name].Driver}
		if st, ok := env.Stores[name]; ok {
			stmts, err := st.EnsureSchema(ctx)
			if err != nil {
				return commandError(formatter, ErrCodeDataSource, err.Error())
			}
			digest, err := st.SchemaDigest(ctx)
			if err != nil {
				return commandError(formatter, ErrCodeDataSource, err.Error())
			}
			entry.Statements = stmts
			entry.Digest = digest
			formatter.VerboseLog("Migrated %s: %d statement(s)", name, len(stmts))
		}
		result.DataSources = append(result.DataSources, entry)
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintln(formatter.Writer, "✓ Migration complete")
	for _, ds := range result.DataSources {
		if ds.Driver == config.DriverMemory {
			fmt.Fprintf(formatter.Writer, "  %s: in-memory, nothing to create\n", ds.Name)
			continue
		}
		fmt.Fprintf(formatter.Writer, "  %s: %d table(s) ensured\n", ds.Name, len(ds.Statements))
	}
	return nil
}
