package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"example.com/fittrack/internal/domain"
	"example.com/fittrack/internal/gateway"
	"example.com/fittrack/internal/tracker"
)

func newWorkoutsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "workouts",
		Aliases: []string{"workout", "w"},
		Short:   "List, record and delete workouts",
	}
	cmd.AddCommand(newWorkoutsListCmd(a))
	cmd.AddCommand(newWorkoutsAddCmd(a))
	cmd.AddCommand(newWorkoutsDeleteCmd(a))
	return cmd
}

func newWorkoutsListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recorded workouts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			workouts, source, err := a.tracker.Workouts(cmd.Context())
			if err != nil {
				return describeErr(err)
			}
			if a.flags.JSON {
				return a.printJSON(struct {
					Source   gateway.Source   `json:"source"`
					Workouts []domain.Workout `json:"workouts"`
				}{source, workouts})
			}

			sourceNote(a.out, source)
			if len(workouts) == 0 {
				a.printf("No workouts recorded.\n")
			} else {
				tw := a.table()
				fmt.Fprintln(tw, "ID\tDATE\tNAME\tTYPE\tMIN\tKCAL")
				for _, w := range workouts {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\n",
						w.ID, w.Date.Local().Format("2006-01-02 15:04"), w.Name, w.Type, w.DurationMinutes, w.Calories)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
			}
			if pending := a.tracker.PendingCount(cmd.Context()); pending > 0 {
				a.printf("%d workout(s) waiting to sync.\n", pending)
			}
			return nil
		},
	}
}

func newWorkoutsAddCmd(a *app) *cobra.Command {
	var (
		workoutType string
		duration    int
		calories    int
		date        string
		favorite    bool
	)

	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Record a workout",
		Long: `Record a workout. When the server cannot be reached the workout is
queued on this device and sent later, keeping the time it was recorded.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := domain.Workout{
				Name:            strings.Join(args, " "),
				Type:            domain.WorkoutType(workoutType),
				DurationMinutes: duration,
				Calories:        calories,
			}
			if date != "" {
				at, err := time.Parse(time.RFC3339, date)
				if err != nil {
					return fmt.Errorf("invalid --date (want RFC 3339): %w", err)
				}
				w.Date = at
			}

			res, err := a.tracker.AddWorkout(cmd.Context(), w)
			if err != nil {
				return describeErr(err)
			}
			if favorite {
				a.tracker.Library().AddFavorite(cmd.Context(), res.Workout, time.Now())
			}
			if a.flags.JSON {
				return a.printJSON(res)
			}
			switch res.Status {
			case tracker.StatusSaved:
				a.printf("Saved workout %s.\n", res.Workout.ID)
			case tracker.StatusQueued:
				a.printf("Queued workout #%d; it will sync when the server is reachable.\n", res.Pending.TempID)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&workoutType, "type", "t", string(domain.WorkoutTypeCardio), "workout type: cardio, strength, flexibility, sports")
	cmd.Flags().IntVarP(&duration, "duration", "d", 0, "duration in minutes")
	cmd.Flags().IntVarP(&calories, "calories", "k", 0, "calories burned")
	cmd.Flags().StringVar(&date, "date", "", "when the workout happened (RFC 3339, default now)")
	cmd.Flags().BoolVar(&favorite, "favorite", false, "also save the workout as a favorite")
	_ = cmd.MarkFlagRequired("duration")
	_ = cmd.MarkFlagRequired("calories")
	return cmd
}

func newWorkoutsDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a workout on the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.tracker.DeleteWorkout(cmd.Context(), args[0]); err != nil {
				return describeErr(err)
			}
			if !a.flags.JSON {
				a.printf("Deleted workout %s.\n", args[0])
			}
			return nil
		},
	}
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show workout totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, source, err := a.tracker.Stats(cmd.Context())
			if err != nil {
				return describeErr(err)
			}
			if a.flags.JSON {
				return a.printJSON(struct {
					Source gateway.Source `json:"source"`
					domain.Stats
				}{source, stats})
			}
			sourceNote(a.out, source)
			tw := a.table()
			fmt.Fprintf(tw, "Workouts\t%d\n", stats.TotalWorkouts)
			fmt.Fprintf(tw, "This week\t%d\n", stats.ThisWeek)
			fmt.Fprintf(tw, "Minutes\t%d\n", stats.TotalDuration)
			fmt.Fprintf(tw, "Calories\t%d\n", stats.TotalCalories)
			fmt.Fprintf(tw, "Avg calories\t%d\n", stats.AvgCaloriesPerWorkout)
			return tw.Flush()
		},
	}
}
