package storage

import (
	"context"
	"encoding/json"
	"time"

	"example.com/fittrack/internal/domain"
)

// ExportVersion tags documents produced by Export.
const ExportVersion = "1.0"

// ExportDocument is a portable snapshot of the client collections.
type ExportDocument struct {
	Settings   *domain.Settings `json:"settings,omitempty"`
	Workouts   []domain.Workout `json:"workouts,omitempty"`
	History    []HistoryEntry   `json:"history,omitempty"`
	Favorites  []Favorite       `json:"favorites,omitempty"`
	Templates  []Template       `json:"templates,omitempty"`
	Progress   json.RawMessage  `json:"progress,omitempty"`
	ExportDate time.Time        `json:"exportDate"`
	Version    string           `json:"version"`
}

// Export snapshots every collection.
func (l *Library) Export(ctx context.Context, at time.Time) ExportDocument {
	settings := l.Settings(ctx)
	doc := ExportDocument{
		Settings:   &settings,
		Workouts:   l.CachedWorkouts(ctx),
		History:    l.History(ctx),
		Favorites:  l.Favorites(ctx),
		Templates:  l.Templates(ctx),
		ExportDate: at.UTC(),
		Version:    ExportVersion,
	}
	var progress json.RawMessage
	if l.Progress(ctx, &progress) {
		doc.Progress = progress
	}
	return doc
}

// Import writes back the collections present in doc. The progress ledger is
// derived locally and is not imported.
func (l *Library) Import(ctx context.Context, doc ExportDocument) bool {
	ok := true
	if doc.Settings != nil {
		ok = l.SaveSettings(ctx, *doc.Settings) && ok
	}
	if doc.Workouts != nil {
		ok = l.CacheWorkouts(ctx, doc.Workouts) && ok
	}
	if doc.History != nil {
		ok = l.store.Set(ctx, KeyWorkoutHistory, doc.History, 0) && ok
	}
	if doc.Favorites != nil {
		ok = l.store.Set(ctx, KeyFavoriteWorkouts, doc.Favorites, 0) && ok
	}
	if doc.Templates != nil {
		ok = l.store.Set(ctx, KeyWorkoutTemplates, doc.Templates, 0) && ok
	}
	return ok
}
