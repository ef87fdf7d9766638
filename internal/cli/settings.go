package cli

import (
	"github.com/spf13/cobra"

	"example.com/fittrack/internal/domain"
)

func newSettingsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change preferences",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the current preferences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := a.tracker.Settings(cmd.Context())
			if err != nil {
				return describeErr(err)
			}
			return a.printJSON(settings)
		},
	})
	cmd.AddCommand(newSettingsSetCmd(a))
	return cmd
}

func newSettingsSetCmd(a *app) *cobra.Command {
	var next domain.Settings

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change preferences",
		Long: `Change preferences. Only the flags given are changed. The new
preferences are kept on this device even when the server cannot be reached.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			current, err := a.tracker.Settings(cmd.Context())
			if err != nil {
				return describeErr(err)
			}
			applySettingsFlags(cmd, &current, next)

			remote, err := a.tracker.UpdateSettings(cmd.Context(), current)
			if err != nil {
				return describeErr(err)
			}
			if a.flags.JSON {
				return a.printJSON(current)
			}
			if remote {
				a.printf("Settings updated.\n")
			} else {
				a.printf("Settings saved on this device only.\n")
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&next.Theme, "theme", "", "dark or light")
	f.StringVar(&next.Language, "language", "", "interface language, e.g. es or en")
	f.StringVar(&next.Units, "units", "", "metric or imperial")
	f.BoolVar(&next.Notifications.Enabled, "notifications", true, "enable notifications")
	f.BoolVar(&next.Notifications.WorkoutReminders, "reminders", true, "send workout reminders")
	f.StringSliceVar(&next.Notifications.ReminderTimes, "reminder-times", nil, "reminder times, e.g. 09:00,18:00")
	f.BoolVar(&next.Privacy.ShareLocation, "share-location", false, "attach location to workouts")
	f.IntVar(&next.Goals.WeeklyWorkouts, "weekly-workouts", 0, "weekly workout goal")
	f.IntVar(&next.Goals.WeeklyMinutes, "weekly-minutes", 0, "weekly minutes goal")
	f.IntVar(&next.Goals.WeeklyCalories, "weekly-calories", 0, "weekly calories goal")
	return cmd
}

// applySettingsFlags copies the explicitly set flags from next into dst.
func applySettingsFlags(cmd *cobra.Command, dst *domain.Settings, next domain.Settings) {
	f := cmd.Flags()
	if f.Changed("theme") {
		dst.Theme = next.Theme
	}
	if f.Changed("language") {
		dst.Language = next.Language
	}
	if f.Changed("units") {
		dst.Units = next.Units
	}
	if f.Changed("notifications") {
		dst.Notifications.Enabled = next.Notifications.Enabled
	}
	if f.Changed("reminders") {
		dst.Notifications.WorkoutReminders = next.Notifications.WorkoutReminders
	}
	if f.Changed("reminder-times") {
		dst.Notifications.ReminderTimes = next.Notifications.ReminderTimes
	}
	if f.Changed("share-location") {
		dst.Privacy.ShareLocation = next.Privacy.ShareLocation
	}
	if f.Changed("weekly-workouts") {
		dst.Goals.WeeklyWorkouts = next.Goals.WeeklyWorkouts
	}
	if f.Changed("weekly-minutes") {
		dst.Goals.WeeklyMinutes = next.Goals.WeeklyMinutes
	}
	if f.Changed("weekly-calories") {
		dst.Goals.WeeklyCalories = next.Goals.WeeklyCalories
	}
}
