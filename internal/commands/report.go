package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"k8s.io/klog"

	"github.com/bcaldwell/plaidsync/pkg/classifier"
	"github.com/bcaldwell/plaidsync/pkg/finance"
)

func newClassifyCommand(withApp runWithApp) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Label transactions that have no ai category",
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			c, err := a.newClassifier(cmd.Context())
			if err != nil {
				return err
			}

			result, err := classifier.NewRunner(a.store, c, a.log).ClassifyUnlabeled(cmd.Context(), userID)
			if err != nil {
				return err
			}

			klog.Infof("Classified %d transactions for %s, %d failed\n", result.Classified, userID, result.Failed)

			return printJSON(cmd.OutOrStdout(), struct {
				classifier.Result
				Failures []string `json:"failures"`
			}{result, errorStrings(result.Failures)})
		}),
	}

	cmd.Flags().StringVar(&userID, "user", "", "user to classify (required)")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

// populate runs the initial fetch for empty accounts before a read.
func populate(cmd *cobra.Command, a *app, userID string) error {
	result, err := a.engine.EnsurePopulated(cmd.Context(), userID)
	if err != nil {
		return fmt.Errorf("failed to populate %s: %w", userID, err)
	}
	for _, failure := range result.Failures {
		a.log.Warn("populate failed", "user_id", userID, "error", failure)
	}
	return nil
}

func newTransactionsCommand(withApp runWithApp) *cobra.Command {
	var userID string
	var category string
	var window rangeFlags

	cmd := &cobra.Command{
		Use:   "transactions",
		Short: "List a user's stored transactions, newest first",
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			query := finance.TransactionQuery{Category: category}
			if window.set() {
				r, err := window.dateRange(a.today(), a.conf.Sync.InitialWindowDays)
				if err != nil {
					return err
				}
				query.Range = &r
			}

			if err := populate(cmd, a, userID); err != nil {
				return err
			}

			transactions, err := a.store.ListForUser(cmd.Context(), userID, query)
			if err != nil {
				return fmt.Errorf("failed to list transactions: %w", err)
			}

			return printJSON(cmd.OutOrStdout(), finance.Views(transactions))
		}),
	}

	cmd.Flags().StringVar(&userID, "user", "", "user to list (required)")
	_ = cmd.MarkFlagRequired("user")
	cmd.Flags().StringVar(&category, "category", "", "only transactions with this category")
	window.register(cmd, "to list")

	return cmd
}

func newSummaryCommand(withApp runWithApp) *cobra.Command {
	var userID string
	var window rangeFlags
	var toInflux bool

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Spending by category with income and net totals",
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			r, err := window.dateRange(a.today(), a.conf.Sync.InitialWindowDays)
			if err != nil {
				return err
			}

			if err := populate(cmd, a, userID); err != nil {
				return err
			}

			summary, err := a.aggregate.Summarize(cmd.Context(), userID, r.Start, r.End)
			if err != nil {
				return err
			}

			if toInflux || a.conf.Influx.Enabled {
				exporter, err := a.influx()
				if err != nil {
					return err
				}
				if err := exporter.WriteSummary(userID, summary, a.now()); err != nil {
					return err
				}
			}

			return printJSON(cmd.OutOrStdout(), summary.View())
		}),
	}

	cmd.Flags().StringVar(&userID, "user", "", "user to summarize (required)")
	_ = cmd.MarkFlagRequired("user")
	cmd.Flags().BoolVar(&toInflux, "influx", false, "write the breakdown to influx")
	window.register(cmd, "of the summary")

	return cmd
}
