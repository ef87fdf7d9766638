// Package progress keeps the on-device progress ledger: running totals, day
// streaks, weekly buckets and milestone achievements.
package progress

import (
	"fmt"
	"time"

	"example.com/fittrack/internal/domain"
)

const dayLayout = "2006-01-02"

// Kind groups milestones.
type Kind string

const (
	KindWorkouts Kind = "workouts"
	KindStreak   Kind = "streak"
	KindCalories Kind = "calories"
)

var milestones = []struct {
	kind   Kind
	values []int
}{
	{KindWorkouts, []int{1, 5, 10, 25, 50, 100, 250, 500}},
	{KindStreak, []int{3, 7, 14, 30, 60, 100}},
	{KindCalories, []int{1000, 5000, 10000, 25000, 50000}},
}

// Achievement is an awarded milestone.
type Achievement struct {
	Type        Kind      `json:"type"`
	Value       int       `json:"value"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
}

// WeekStats accumulates one week, keyed in the ledger by its Sunday.
type WeekStats struct {
	Workouts int `json:"workouts"`
	Minutes  int `json:"minutes"`
	Calories int `json:"calories"`
}

// Ledger is the persisted progress document.
type Ledger struct {
	TotalWorkouts   int                  `json:"totalWorkouts"`
	TotalMinutes    int                  `json:"totalMinutes"`
	TotalCalories   int                  `json:"totalCalories"`
	CurrentStreak   int                  `json:"currentStreak"`
	LongestStreak   int                  `json:"longestStreak"`
	LastWorkoutDate string               `json:"lastWorkoutDate,omitempty"`
	WeeklyStats     map[string]WeekStats `json:"weeklyStats"`
	Achievements    []Achievement        `json:"achievements"`
}

// Has reports whether the milestone was already awarded.
func (l Ledger) Has(kind Kind, value int) bool {
	for _, a := range l.Achievements {
		if a.Type == kind && a.Value == value {
			return true
		}
	}
	return false
}

// Week returns the bucket for the week containing at.
func (l Ledger) Week(at time.Time) WeekStats {
	return l.WeeklyStats[domain.WeekStart(at).Format(dayLayout)]
}

// Record adds w, completed at the local time at, and returns the milestones
// it unlocked. Each milestone is awarded at most once.
func (l *Ledger) Record(w domain.Workout, at time.Time) []Achievement {
	l.TotalWorkouts++
	l.TotalMinutes += w.DurationMinutes
	l.TotalCalories += w.Calories

	today := at.Format(dayLayout)
	yesterday := at.AddDate(0, 0, -1).Format(dayLayout)
	switch l.LastWorkoutDate {
	case today:
		if l.CurrentStreak == 0 {
			l.CurrentStreak = 1
		}
	case yesterday:
		l.CurrentStreak++
	default:
		l.CurrentStreak = 1
	}
	if l.CurrentStreak > l.LongestStreak {
		l.LongestStreak = l.CurrentStreak
	}
	l.LastWorkoutDate = today

	if l.WeeklyStats == nil {
		l.WeeklyStats = make(map[string]WeekStats)
	}
	week := domain.WeekStart(at).Format(dayLayout)
	bucket := l.WeeklyStats[week]
	bucket.Workouts++
	bucket.Minutes += w.DurationMinutes
	bucket.Calories += w.Calories
	l.WeeklyStats[week] = bucket

	return l.award(at)
}

func (l *Ledger) award(at time.Time) []Achievement {
	var unlocked []Achievement
	for _, group := range milestones {
		reached := l.metric(group.kind)
		for _, value := range group.values {
			if reached < value || l.Has(group.kind, value) {
				continue
			}
			a := newAchievement(group.kind, value, at)
			l.Achievements = append(l.Achievements, a)
			unlocked = append(unlocked, a)
		}
	}
	return unlocked
}

func (l *Ledger) metric(kind Kind) int {
	switch kind {
	case KindWorkouts:
		return l.TotalWorkouts
	case KindStreak:
		return l.CurrentStreak
	case KindCalories:
		return l.TotalCalories
	}
	return 0
}

func newAchievement(kind Kind, value int, at time.Time) Achievement {
	a := Achievement{Type: kind, Value: value, Date: at.UTC()}
	switch kind {
	case KindWorkouts:
		a.Name = fmt.Sprintf("%d Workouts", value)
		a.Description = fmt.Sprintf("You have completed %d workouts", value)
	case KindStreak:
		a.Name = fmt.Sprintf("%d-Day Streak", value)
		a.Description = fmt.Sprintf("You have trained %d days in a row", value)
	case KindCalories:
		a.Name = fmt.Sprintf("%d Calories", value)
		a.Description = fmt.Sprintf("You have burned %d calories in total", value)
	}
	return a
}
