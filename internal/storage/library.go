package storage

import (
	"context"
	"sort"
	"time"

	"example.com/fittrack/internal/domain"
)

// Keys used by the client, relative to the namespace.
const (
	KeyPendingWorkouts  = "pending_workouts"
	KeyUserSettings     = "user_settings"
	KeyCachedWorkouts   = "cached_workouts"
	KeyCachedStats      = "cached_stats"
	KeyWorkoutHistory   = "workout_history"
	KeyFavoriteWorkouts = "favorite_workouts"
	KeyWorkoutTemplates = "workout_templates"
	KeyUserProgress     = "user_progress"

	// CachePrefix marks gateway response cache entries.
	CachePrefix = "cache_"
)

const (
	cachedWorkoutsTTL = 24 * time.Hour
	cachedStatsTTL    = time.Hour
	historyLimit      = 100
)

// HistoryEntry is a workout the user completed on this device.
type HistoryEntry struct {
	domain.Workout
	RecordedAt time.Time `json:"recordedAt"`
}

// Favorite is a workout saved for quick re-entry.
type Favorite struct {
	domain.Workout
	FavoriteID int64     `json:"favoriteId"`
	AddedDate  time.Time `json:"addedDate"`
}

// Template is a reusable workout plan.
type Template struct {
	ID                int64              `json:"id"`
	Name              string             `json:"name"`
	Type              domain.WorkoutType `json:"type"`
	EstimatedDuration int                `json:"estimatedDuration"`
	EstimatedCalories int                `json:"estimatedCalories"`
	Description       string             `json:"description"`
	Exercises         []string           `json:"exercises"`
	CreatedDate       *time.Time         `json:"createdDate,omitempty"`
}

// DefaultTemplates returns the templates offered before the user saves any.
func DefaultTemplates() []Template {
	return []Template{
		{
			ID:                1,
			Name:              "Cardio Básico",
			Type:              domain.WorkoutTypeCardio,
			EstimatedDuration: 30,
			EstimatedCalories: 300,
			Description:       "Entrenamiento cardiovascular básico",
			Exercises:         []string{"Correr", "Saltar cuerda", "Burpees"},
		},
		{
			ID:                2,
			Name:              "Fuerza Completa",
			Type:              domain.WorkoutTypeStrength,
			EstimatedDuration: 45,
			EstimatedCalories: 400,
			Description:       "Entrenamiento de fuerza para todo el cuerpo",
			Exercises:         []string{"Sentadillas", "Flexiones", "Dominadas", "Plancha"},
		},
		{
			ID:                3,
			Name:              "Flexibilidad",
			Type:              domain.WorkoutTypeFlexibility,
			EstimatedDuration: 20,
			EstimatedCalories: 80,
			Description:       "Estiramientos y yoga",
			Exercises:         []string{"Yoga", "Estiramientos", "Meditación"},
		},
	}
}

// Library groups the typed client-side collections kept in the store.
type Library struct {
	store *Store
}

// NewLibrary wraps store.
func NewLibrary(store *Store) *Library {
	return &Library{store: store}
}

// Settings returns the saved preferences merged over the defaults.
func (l *Library) Settings(ctx context.Context) domain.Settings {
	settings := domain.DefaultSettings()
	l.store.Get(ctx, KeyUserSettings, &settings)
	return settings
}

// SaveSettings persists preferences without expiry.
func (l *Library) SaveSettings(ctx context.Context, settings domain.Settings) bool {
	return l.store.Set(ctx, KeyUserSettings, settings, 0)
}

// CacheWorkouts keeps the last fetched workout list for a day.
func (l *Library) CacheWorkouts(ctx context.Context, workouts []domain.Workout) bool {
	if workouts == nil {
		workouts = []domain.Workout{}
	}
	return l.store.Set(ctx, KeyCachedWorkouts, workouts, cachedWorkoutsTTL)
}

// CachedWorkouts returns the cached workout list, empty when absent.
func (l *Library) CachedWorkouts(ctx context.Context) []domain.Workout {
	workouts := []domain.Workout{}
	l.store.Get(ctx, KeyCachedWorkouts, &workouts)
	return workouts
}

// WorkoutSaved folds a workout the server acknowledged into the saved list,
// when there is one, and drops the saved stats so offline reads recompute
// them from the list.
func (l *Library) WorkoutSaved(ctx context.Context, w domain.Workout) {
	var workouts []domain.Workout
	l.store.Update(ctx, KeyCachedWorkouts, &workouts, cachedWorkoutsTTL, func(found bool) any {
		if !found {
			return nil
		}
		merged := make([]domain.Workout, 0, len(workouts)+1)
		merged = append(merged, w)
		for _, existing := range workouts {
			if existing.ID != w.ID {
				merged = append(merged, existing)
			}
		}
		sort.SliceStable(merged, func(i, j int) bool {
			return merged[i].Date.After(merged[j].Date)
		})
		return merged
	})
	l.store.Remove(ctx, KeyCachedStats)
}

// WorkoutDeleted removes id from the saved list and drops the saved stats.
func (l *Library) WorkoutDeleted(ctx context.Context, id string) {
	var workouts []domain.Workout
	l.store.Update(ctx, KeyCachedWorkouts, &workouts, cachedWorkoutsTTL, func(found bool) any {
		if !found {
			return nil
		}
		kept := make([]domain.Workout, 0, len(workouts))
		for _, existing := range workouts {
			if existing.ID != id {
				kept = append(kept, existing)
			}
		}
		if len(kept) == len(workouts) {
			return nil
		}
		return kept
	})
	l.store.Remove(ctx, KeyCachedStats)
}

// CacheStats keeps the last fetched stats for an hour.
func (l *Library) CacheStats(ctx context.Context, stats domain.Stats) bool {
	return l.store.Set(ctx, KeyCachedStats, stats, cachedStatsTTL)
}

// CachedStats returns the cached stats, if still live.
func (l *Library) CachedStats(ctx context.Context) (domain.Stats, bool) {
	var stats domain.Stats
	ok := l.store.Get(ctx, KeyCachedStats, &stats)
	return stats, ok
}

// AddToHistory records a completed workout, newest first, keeping the last 100.
func (l *Library) AddToHistory(ctx context.Context, workout domain.Workout, at time.Time) bool {
	var history []HistoryEntry
	return l.store.Update(ctx, KeyWorkoutHistory, &history, 0, func(bool) any {
		history = append([]HistoryEntry{{Workout: workout, RecordedAt: at.UTC()}}, history...)
		if len(history) > historyLimit {
			history = history[:historyLimit]
		}
		return history
	})
}

// History returns the recorded workouts, newest first.
func (l *Library) History(ctx context.Context) []HistoryEntry {
	history := []HistoryEntry{}
	l.store.Get(ctx, KeyWorkoutHistory, &history)
	return history
}

// AddFavorite saves workout unless a favorite with the same name and type
// exists. It reports whether a favorite was added.
func (l *Library) AddFavorite(ctx context.Context, workout domain.Workout, at time.Time) bool {
	var favorites []Favorite
	return l.store.Update(ctx, KeyFavoriteWorkouts, &favorites, 0, func(bool) any {
		var lastID int64
		for _, f := range favorites {
			if f.Name == workout.Name && f.Type == workout.Type {
				return nil
			}
			if f.FavoriteID > lastID {
				lastID = f.FavoriteID
			}
		}
		id := at.UnixMilli()
		if id <= lastID {
			id = lastID + 1
		}
		return append(favorites, Favorite{Workout: workout, FavoriteID: id, AddedDate: at.UTC()})
	})
}

// RemoveFavorite deletes the favorite with favoriteID.
func (l *Library) RemoveFavorite(ctx context.Context, favoriteID int64) bool {
	var favorites []Favorite
	return l.store.Update(ctx, KeyFavoriteWorkouts, &favorites, 0, func(found bool) any {
		if !found {
			return nil
		}
		kept := make([]Favorite, 0, len(favorites))
		for _, f := range favorites {
			if f.FavoriteID != favoriteID {
				kept = append(kept, f)
			}
		}
		if len(kept) == len(favorites) {
			return nil
		}
		return kept
	})
}

// Favorites returns the saved favorites in insertion order.
func (l *Library) Favorites(ctx context.Context) []Favorite {
	favorites := []Favorite{}
	l.store.Get(ctx, KeyFavoriteWorkouts, &favorites)
	return favorites
}

// Templates returns the saved templates, or the defaults when none are saved.
func (l *Library) Templates(ctx context.Context) []Template {
	var templates []Template
	if !l.store.Get(ctx, KeyWorkoutTemplates, &templates) || templates == nil {
		return DefaultTemplates()
	}
	return templates
}

// AddTemplate appends a template, assigning its id and creation date.
func (l *Library) AddTemplate(ctx context.Context, template Template, at time.Time) (Template, bool) {
	var templates []Template
	ok := l.store.Update(ctx, KeyWorkoutTemplates, &templates, 0, func(found bool) any {
		if !found || templates == nil {
			templates = DefaultTemplates()
		}
		created := at.UTC()
		template.ID = at.UnixMilli()
		for _, t := range templates {
			if t.ID >= template.ID {
				template.ID = t.ID + 1
			}
		}
		template.CreatedDate = &created
		return append(templates, template)
	})
	return template, ok
}

// Progress decodes the saved progress ledger into dst.
func (l *Library) Progress(ctx context.Context, dst any) bool {
	return l.store.Get(ctx, KeyUserProgress, dst)
}

// UpdateProgress runs fn over the saved ledger under the store lock.
func (l *Library) UpdateProgress(ctx context.Context, dst any, fn func(found bool) any) bool {
	return l.store.Update(ctx, KeyUserProgress, dst, 0, fn)
}
