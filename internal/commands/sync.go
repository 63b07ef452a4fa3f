package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"k8s.io/klog"

	"github.com/bcaldwell/plaidsync/pkg/finance"
	"github.com/bcaldwell/plaidsync/pkg/syncengine"
)

func newLinkCommand(withApp runWithApp) *cobra.Command {
	var userID string
	var institution string

	cmd := &cobra.Command{
		Use:   "link [public-token]",
		Short: "Link a bank item and run its initial fetch",
		Args:  cobra.MaximumNArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			publicToken := ""
			if len(args) > 0 {
				publicToken = args[0]
			}
			sandbox := publicToken == ""

			if sandbox {
				if institution == "" {
					return errors.New("a public token or --sandbox-institution is required")
				}
				if a.sandboxToken == nil {
					return errors.New("sandbox tokens are not available")
				}

				token, err := a.sandboxToken(cmd.Context(), institution)
				if err != nil {
					return fmt.Errorf("failed to create sandbox public token: %w", err)
				}
				publicToken = token
			}

			result, err := a.engine.Link(cmd.Context(), userID, publicToken)
			if err != nil {
				return err
			}

			// Sandbox items only report new transactions after a DEFAULT_UPDATE webhook.
			if sandbox && a.fireSandboxWebhook != nil {
				if _, err := a.fireSandboxWebhook(cmd.Context(), result.Account.AccessToken); err != nil {
					klog.Warningf("Failed to fire sandbox webhook for account %s: %v\n", result.Account.ID, err)
				}
			}

			out := struct {
				Account finance.AccountView `json:"account"`
				syncengine.LinkResult
				InitialError string `json:"initialError,omitempty"`
			}{
				Account:    result.Account.View(),
				LinkResult: result,
			}
			if result.InitialErr != nil {
				out.InitialError = result.InitialErr.Error()
			}

			return printJSON(cmd.OutOrStdout(), out)
		}),
	}

	cmd.Flags().StringVar(&userID, "user", "", "user the account belongs to (required)")
	_ = cmd.MarkFlagRequired("user")
	cmd.Flags().StringVar(&institution, "sandbox-institution", "", "create a sandbox public token for this institution instead")

	return cmd
}

func newLinkTokenCommand(withApp runWithApp) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "link-token",
		Short: "Create a Plaid Link token for a user",
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			if a.linkToken == nil {
				return errors.New("link tokens are not available")
			}

			token, err := a.linkToken(cmd.Context(), userID)
			if err != nil {
				return fmt.Errorf("failed to create link token: %w", err)
			}

			return printJSON(cmd.OutOrStdout(), token)
		}),
	}

	cmd.Flags().StringVar(&userID, "user", "", "user the token is issued for (required)")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func newInitialSyncCommand(withApp runWithApp) *cobra.Command {
	var accountID string

	cmd := &cobra.Command{
		Use:   "initial-sync",
		Short: "Fetch the trailing window for an account",
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			account, err := a.store.GetAccount(cmd.Context(), accountID)
			if err != nil {
				return fmt.Errorf("failed to load account %s: %w", accountID, err)
			}

			result, err := a.engine.RunInitialSync(cmd.Context(), account.ID, account.AccessToken)
			if err != nil {
				return err
			}

			klog.Infof("Wrote %d transactions for account %s\n", result.Created, account.ID)

			return printJSON(cmd.OutOrStdout(), result)
		}),
	}

	cmd.Flags().StringVar(&accountID, "account", "", "account id (required)")
	_ = cmd.MarkFlagRequired("account")

	return cmd
}

type syncOutput struct {
	syncengine.UserSyncResult
	Totals   syncengine.IncrementalSyncResult `json:"totals"`
	Failures []string                         `json:"failures"`
}

func newSyncCommand(withApp runWithApp) *cobra.Command {
	var userID string
	var accountID string
	var window rangeFlags
	var toInflux bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Apply the provider's changes since the last sync",
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			r, err := window.dateRange(a.today(), a.conf.Sync.InitialWindowDays)
			if err != nil {
				return err
			}
			opts := syncengine.IncrementalOptions{Window: &r}

			if accountID != "" {
				result, err := a.engine.RunIncrementalSync(cmd.Context(), userID, accountID, opts)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			}

			result, err := syncUser(cmd.Context(), a, userID, opts, toInflux)
			if err != nil {
				return err
			}

			return printJSON(cmd.OutOrStdout(), syncOutput{
				UserSyncResult: result,
				Totals:         result.Totals(),
				Failures:       errorStrings(result.Failures),
			})
		}),
	}

	cmd.Flags().StringVar(&userID, "user", "", "user to sync (required)")
	_ = cmd.MarkFlagRequired("user")
	cmd.Flags().StringVar(&accountID, "account", "", "sync only this account")
	cmd.Flags().BoolVar(&toInflux, "influx", false, "write per account counts to influx")
	window.register(cmd, "re-fetched when the provider has no cursor")

	return cmd
}

// syncUser runs the multi account sync and optionally exports its counts.
func syncUser(ctx context.Context, a *app, userID string, opts syncengine.IncrementalOptions, toInflux bool) (syncengine.UserSyncResult, error) {
	result, err := a.engine.SyncUser(ctx, userID, opts)
	if err != nil {
		return result, err
	}

	totals := result.Totals()
	klog.Infof("Synced %d accounts for %s: %d added, %d modified, %d removed, %d failed\n",
		len(result.Accounts), userID, totals.Added, totals.Modified, totals.Removed, len(result.Failures))

	if toInflux || a.conf.Influx.Enabled {
		exporter, err := a.influx()
		if err != nil {
			return result, err
		}
		if err := exporter.WriteSyncResult(result, a.now()); err != nil {
			return result, err
		}
	}

	return result, nil
}

func newPopulateCommand(withApp runWithApp) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "populate",
		Short: "Run the initial fetch for every account with no stored transactions",
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			result, err := a.engine.EnsurePopulated(cmd.Context(), userID)
			if err != nil {
				return err
			}

			return printJSON(cmd.OutOrStdout(), struct {
				syncengine.PopulateResult
				Failures []string `json:"failures"`
			}{result, errorStrings(result.Failures)})
		}),
	}

	cmd.Flags().StringVar(&userID, "user", "", "user to populate (required)")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
