package domain

import (
	"math"
	"time"
)

// Stats summarises the stored workouts.
type Stats struct {
	TotalWorkouts         int `json:"totalWorkouts"`
	TotalCalories         int `json:"totalCalories"`
	TotalDuration         int `json:"totalDuration"`
	ThisWeek              int `json:"thisWeek"`
	AvgCaloriesPerWorkout int `json:"avgCaloriesPerWorkout"`
}

// WeekStart returns Sunday 00:00 of the week containing now, in now's location.
func WeekStart(now time.Time) time.Time {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return day.AddDate(0, 0, -int(day.Weekday()))
}

// ComputeStats aggregates workouts relative to now.
func ComputeStats(workouts []Workout, now time.Time) Stats {
	var stats Stats
	weekStart := WeekStart(now)
	for _, w := range workouts {
		stats.TotalWorkouts++
		stats.TotalCalories += w.Calories
		stats.TotalDuration += w.DurationMinutes
		if !w.Date.Before(weekStart) {
			stats.ThisWeek++
		}
	}
	if stats.TotalWorkouts > 0 {
		stats.AvgCaloriesPerWorkout = int(math.Round(float64(stats.TotalCalories) / float64(stats.TotalWorkouts)))
	}
	return stats
}
