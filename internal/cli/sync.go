package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"example.com/fittrack/internal/gateway"
	"example.com/fittrack/internal/replay"
)

func newSyncCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Send queued workouts to the server now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := a.tracker.SyncNow(cmd.Context())
			if err != nil {
				return err
			}
			if a.flags.JSON {
				return a.printJSON(report)
			}
			a.printReport(report)
			return nil
		},
	}
}

func (a *app) printReport(report replay.Report) {
	if len(report.Outcomes) == 0 {
		a.printf("Nothing to sync.\n")
		return
	}
	tw := a.table()
	for _, o := range report.Outcomes {
		switch o.Status {
		case replay.StatusSuccess:
			fmt.Fprintf(tw, "synced\t#%d\t%s\t%s\n", o.Entry.TempID, o.Entry.Name, o.Workout.ID)
		default:
			fmt.Fprintf(tw, "failed\t#%d\t%s\t%s\n", o.Entry.TempID, o.Entry.Name, o.Reason)
		}
	}
	_ = tw.Flush()
	a.printf("%d synced, %d still pending.\n", report.Synced(), report.Failed())
}

func newQueueCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect workouts waiting to sync",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List queued workouts in the order they will be sent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pending := a.tracker.Pending(cmd.Context())
			if a.flags.JSON {
				return a.printJSON(pending)
			}
			if len(pending) == 0 {
				a.printf("No workouts waiting to sync.\n")
				return nil
			}
			tw := a.table()
			fmt.Fprintln(tw, "TEMP ID\tQUEUED\tNAME\tTYPE\tMIN\tKCAL")
			for _, e := range pending {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%d\n",
					e.TempID, e.QueuedAt.Local().Format("2006-01-02 15:04"), e.Name, e.Type, e.DurationMinutes, e.Calories)
			}
			return tw.Flush()
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "cancel TEMP_ID",
		Short: "Drop a queued workout without sending it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tempID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid temp id %q", args[0])
			}
			if !a.tracker.CancelPending(cmd.Context(), tempID) {
				return fmt.Errorf("no queued workout #%d", tempID)
			}
			a.printf("Cancelled queued workout #%d.\n", tempID)
			return nil
		},
	})
	return cmd
}

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stay running and sync whenever the server becomes reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.watch(ctx)
		},
	}
}

// watch runs the connectivity monitor and the replay coordinator until ctx
// ends.
func (a *app) watch(ctx context.Context) error {
	logger := log.New(a.errOut, "[watch] ", log.LstdFlags)

	coordinator := replay.NewCoordinator(a.tracker.Replayer(),
		replay.WithCoordinatorLogger(logger),
		replay.WithReportHandler(func(report replay.Report) {
			if len(report.Outcomes) > 0 {
				a.printReport(report)
			}
		}),
	)
	monitor := replay.NewMonitor(a.tracker.Client(), coordinator.Signal, a.bus,
		replay.WithProbeInterval(a.cfg.ProbeIntervalDuration()),
		replay.WithMonitorLogger(logger),
	)

	a.printf("Watching %s every %s (Ctrl+C to stop).\n", a.cfg.ServerURL, a.cfg.ProbeIntervalDuration())
	go coordinator.Run(ctx)

	// Queued work left by an earlier session registers a background sync.
	if a.tracker.PendingCount(ctx) > 0 {
		coordinator.BackgroundSync(a.cfg.Sync.Tag)
	}

	monitor.Run(ctx)
	coordinator.Wait()
	return nil
}

func newHealthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check whether the server is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			health, err := a.tracker.Client().Health(cmd.Context())
			if errors.Is(err, gateway.ErrNetworkUnavailable) {
				return fmt.Errorf("%s is unreachable", a.cfg.ServerURL)
			}
			if err != nil {
				return describeErr(err)
			}
			if a.flags.JSON {
				return a.printJSON(health)
			}
			uptime := time.Duration(health.Uptime * float64(time.Second)).Round(time.Second)
			a.printf("%s is %s (up %s).\n", a.cfg.ServerURL, health.Status, uptime)
			return nil
		},
	}
}
