package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron"
	"github.com/spf13/cobra"
	"k8s.io/klog"

	"github.com/bcaldwell/plaidsync/pkg/finance"
	"github.com/bcaldwell/plaidsync/pkg/syncengine"
)

func newMigrateCommand(withApp runWithApp) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the tables and indexes",
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			m, ok := a.store.(migrator)
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "store has no schema to migrate")
				return nil
			}

			if err := m.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("failed to migrate: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "migrated")
			return nil
		}),
	}
}

func newServeCommand(withApp runWithApp) *cobra.Command {
	var singleRun bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Sync the configured users on the update schedule",
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			if len(a.conf.Sync.Users) == 0 {
				return errors.New("sync.users is empty")
			}

			if m, ok := a.store.(migrator); ok {
				if err := m.Migrate(cmd.Context()); err != nil {
					return fmt.Errorf("failed to migrate: %w", err)
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			run := func() {
				fmt.Fprintln(cmd.OutOrStdout(), a.now().Format(time.RFC850))
				runScheduledSync(ctx, a)
			}

			run()

			if singleRun {
				return nil
			}

			c := cron.New()
			if err := c.AddFunc(a.conf.Sync.UpdateFrequency, run); err != nil {
				return fmt.Errorf("invalid sync.updateFrequency %q: %w", a.conf.Sync.UpdateFrequency, err)
			}

			c.Start()
			defer c.Stop()

			<-ctx.Done()
			return nil
		}),
	}

	cmd.Flags().BoolVar(&singleRun, "single-run", false, "sync once and exit (disable cron)")

	return cmd
}

// runScheduledSync syncs every configured user. Errors are logged so the schedule keeps going.
func runScheduledSync(ctx context.Context, a *app) {
	for _, userID := range a.conf.Sync.Users {
		r := finance.TrailingWindow(a.today(), a.conf.Sync.InitialWindowDays)

		if _, err := syncUser(ctx, a, userID, syncengine.IncrementalOptions{Window: &r}, false); err != nil {
			klog.Errorf("sync for %s failed: %v\n", userID, err)
		}
	}
}
