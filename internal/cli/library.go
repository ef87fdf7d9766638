package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"example.com/fittrack/internal/domain"
	"example.com/fittrack/internal/storage"
)

func newProgressCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "progress",
		Short: "Show streaks, totals and achievements",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger := a.tracker.Progress(cmd.Context())
			if a.flags.JSON {
				return a.printJSON(ledger)
			}
			week := ledger.Week(time.Now())
			tw := a.table()
			fmt.Fprintf(tw, "Workouts\t%d\n", ledger.TotalWorkouts)
			fmt.Fprintf(tw, "Minutes\t%d\n", ledger.TotalMinutes)
			fmt.Fprintf(tw, "Calories\t%d\n", ledger.TotalCalories)
			fmt.Fprintf(tw, "Streak\t%d days (best %d)\n", ledger.CurrentStreak, ledger.LongestStreak)
			fmt.Fprintf(tw, "This week\t%d workouts, %d min, %d kcal\n", week.Workouts, week.Minutes, week.Calories)
			if err := tw.Flush(); err != nil {
				return err
			}
			if len(ledger.Achievements) > 0 {
				a.printf("\nAchievements:\n")
				for _, ach := range ledger.Achievements {
					a.printf("  %s  %s\n", ach.Date.Local().Format("2006-01-02"), ach.Name)
				}
			}
			return nil
		},
	}
}

func newHistoryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List workouts completed on this device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			history := a.tracker.Library().History(cmd.Context())
			if a.flags.JSON {
				return a.printJSON(history)
			}
			if len(history) == 0 {
				a.printf("No workouts completed on this device.\n")
				return nil
			}
			tw := a.table()
			for _, h := range history {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d min\n", h.RecordedAt.Local().Format("2006-01-02 15:04"), h.Name, h.Type, h.DurationMinutes)
			}
			return tw.Flush()
		},
	}
}

func newFavoritesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "favorites",
		Short: "Manage favorite workouts",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List favorite workouts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			favorites := a.tracker.Library().Favorites(cmd.Context())
			if a.flags.JSON {
				return a.printJSON(favorites)
			}
			tw := a.table()
			for _, f := range favorites {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d min\t%d kcal\n", f.FavoriteID, f.Name, f.Type, f.DurationMinutes, f.Calories)
			}
			return tw.Flush()
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "remove FAVORITE_ID",
		Short: "Remove a favorite",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid favorite id %q", args[0])
			}
			if !a.tracker.Library().RemoveFavorite(cmd.Context(), id) {
				return fmt.Errorf("no favorite %d", id)
			}
			a.printf("Removed favorite %d.\n", id)
			return nil
		},
	})
	return cmd
}

func newTemplatesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "List or add workout templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			templates := a.tracker.Library().Templates(cmd.Context())
			if a.flags.JSON {
				return a.printJSON(templates)
			}
			tw := a.table()
			for _, t := range templates {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d min\t%d kcal\t%s\n", t.ID, t.Name, t.Type, t.EstimatedDuration, t.EstimatedCalories, t.Description)
			}
			return tw.Flush()
		},
	}

	var tmpl storage.Template
	var workoutType string
	add := &cobra.Command{
		Use:   "add NAME",
		Short: "Save a workout template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tmpl.Name = args[0]
			tmpl.Type = domain.WorkoutType(workoutType)
			if !tmpl.Type.Valid() {
				return fmt.Errorf("unknown workout type %q", workoutType)
			}
			saved, ok := a.tracker.Library().AddTemplate(cmd.Context(), tmpl, time.Now())
			if !ok {
				return fmt.Errorf("template not saved")
			}
			a.printf("Saved template %d.\n", saved.ID)
			return nil
		},
	}
	add.Flags().StringVarP(&workoutType, "type", "t", string(domain.WorkoutTypeCardio), "workout type")
	add.Flags().IntVarP(&tmpl.EstimatedDuration, "duration", "d", 30, "estimated minutes")
	add.Flags().IntVarP(&tmpl.EstimatedCalories, "calories", "k", 200, "estimated calories")
	add.Flags().StringVar(&tmpl.Description, "description", "", "short description")
	add.Flags().StringSliceVar(&tmpl.Exercises, "exercise", nil, "exercise included (repeatable)")
	cmd.AddCommand(add)
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export settings, history, favorites, templates and progress as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc := a.tracker.Library().Export(cmd.Context(), time.Now())
			if file == "" {
				return a.printJSON(doc)
			}
			data, err := json.MarshalIndent(doc, "", "  ")
			if err != nil {
				return err
			}
			if err := os.WriteFile(file, data, 0o600); err != nil {
				return fmt.Errorf("write export: %w", err)
			}
			a.printf("Exported to %s.\n", file)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "write to file instead of stdout")
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Import a document written by export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read import: %w", err)
			}
			var doc storage.ExportDocument
			if err := json.Unmarshal(data, &doc); err != nil {
				return fmt.Errorf("invalid export document: %w", err)
			}
			if doc.Version != storage.ExportVersion {
				return fmt.Errorf("unsupported export version %q", doc.Version)
			}
			if !a.tracker.Library().Import(cmd.Context(), doc) {
				return fmt.Errorf("import incomplete; see warnings above")
			}
			a.printf("Imported %s.\n", args[0])
			return nil
		},
	}
}

func newCacheCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage cached server responses",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Drop every cached server response",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			removed := a.tracker.ClearCache(cmd.Context())
			a.printf("Removed %d cached response(s).\n", removed)
			return nil
		},
	})
	return cmd
}
