package domain

import "time"

// NotificationSettings controls which reminders the client schedules.
type NotificationSettings struct {
	Enabled              bool     `json:"enabled"`
	WorkoutReminders     bool     `json:"workoutReminders"`
	GoalNotifications    bool     `json:"goalNotifications"`
	MotivationalMessages bool     `json:"motivationalMessages"`
	ReminderTimes        []string `json:"reminderTimes"`
}

// PrivacySettings controls what the user shares.
type PrivacySettings struct {
	ShareLocation bool `json:"shareLocation"`
	ShareWorkouts bool `json:"shareWorkouts"`
	PublicProfile bool `json:"publicProfile"`
}

// Goals holds the weekly targets.
type Goals struct {
	WeeklyWorkouts int `json:"weeklyWorkouts"`
	WeeklyMinutes  int `json:"weeklyMinutes"`
	WeeklyCalories int `json:"weeklyCalories"`
}

// Settings is the user preference document.
type Settings struct {
	Theme         string               `json:"theme"`
	Language      string               `json:"language"`
	Units         string               `json:"units"`
	Notifications NotificationSettings `json:"notifications"`
	Privacy       PrivacySettings      `json:"privacy"`
	Goals         Goals                `json:"goals"`
}

// DefaultSettings returns the preferences applied before the user changes anything.
func DefaultSettings() Settings {
	return Settings{
		Theme:    "dark",
		Language: "es",
		Units:    "metric",
		Notifications: NotificationSettings{
			Enabled:              true,
			WorkoutReminders:     true,
			GoalNotifications:    true,
			MotivationalMessages: true,
			ReminderTimes:        []string{"09:00", "18:00"},
		},
		Goals: Goals{
			WeeklyWorkouts: 4,
			WeeklyMinutes:  150,
			WeeklyCalories: 1500,
		},
	}
}

// User is the single profile the deployment serves.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Email     string    `json:"email,omitempty"`
	Settings  Settings  `json:"settings"`
	CreatedAt time.Time `json:"createdAt"`
}

// PushKeys carries the client keys of a push subscription.
type PushKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// PushSubscription is the browser-issued endpoint for web push delivery.
type PushSubscription struct {
	Endpoint       string   `json:"endpoint"`
	ExpirationTime *int64   `json:"expirationTime,omitempty"`
	Keys           PushKeys `json:"keys"`
}

// Validate ensures the subscription can be used for delivery.
func (s PushSubscription) Validate() error {
	if s.Endpoint == "" {
		return &ValidationError{Field: "endpoint", Reason: "required"}
	}
	if s.Keys.P256dh == "" || s.Keys.Auth == "" {
		return &ValidationError{Field: "keys", Reason: "p256dh and auth are required"}
	}
	return nil
}
