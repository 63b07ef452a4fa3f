package commands

import (
	"context"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configFile  string
	configEnv   string
	secretsFile string
	envFile     string
}

// appFactory builds the collaborators a command runs against. Tests swap it for an
// in-memory one.
type appFactory func(ctx context.Context, opts *rootOptions) (*app, error)

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	return newRootCommand(newApp)
}

func newRootCommand(factory appFactory) *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "plaidsync",
		Short: "Sync bank transactions from plaid into postgres",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configFile, "config", "./config.yml", "configuration file")
	rootCmd.PersistentFlags().StringVar(&opts.configEnv, "config-env", "PLAIDSYNC_CONFIG", "environment variable holding the whole configuration document")
	rootCmd.PersistentFlags().StringVar(&opts.secretsFile, "secrets", "./secrets.json", "ejson secrets file")
	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading secrets")

	// withApp opens the collaborators for the lifetime of one command run.
	withApp := func(run func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			a, err := factory(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			return run(cmd, a, args)
		}
	}

	rootCmd.AddCommand(
		newMigrateCommand(withApp),
		newLinkCommand(withApp),
		newLinkTokenCommand(withApp),
		newInitialSyncCommand(withApp),
		newSyncCommand(withApp),
		newPopulateCommand(withApp),
		newClassifyCommand(withApp),
		newTransactionsCommand(withApp),
		newSummaryCommand(withApp),
		newServeCommand(withApp),
	)

	return rootCmd
}

type runWithApp func(run func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error
