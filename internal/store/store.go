// Package store persists batch runs and their per-facility resolutions.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/siteresolve/internal/model"
)

// ErrNotFound is returned, wrapped, when a run does not exist. Test with
// eris.Is.
var ErrNotFound = eris.New("not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status       model.RunStatus `json:"status,omitempty"`
	CreatedAfter time.Time       `json:"created_after,omitempty"`
	Limit        int             `json:"limit,omitempty"`
	Offset       int             `json:"offset,omitempty"`
}

// ResolutionFilter specifies criteria for listing a run's resolutions.
type ResolutionFilter struct {
	// Via restricts to "name", "brand" or "none".
	Via    string `json:"via,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// Store defines the persistence interface for batch runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run model.NewRun) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, stats *model.RunStats) error
	FailRun(ctx context.Context, runID string, runErr string, stats *model.RunStats) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Resolutions
	SaveResolutions(ctx context.Context, runID string, resolutions []model.Resolution) (int64, error)
	ListResolutions(ctx context.Context, runID string, filter ResolutionFilter) ([]model.Resolution, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const (
	defaultListLimit       = 100
	defaultResolutionLimit = 1000
)

func limitOr(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return limit
}

// viaValue maps the "none" filter to the empty via stored for unresolved rows.
func viaValue(via string) string {
	if via == "none" {
		return ""
	}
	return via
}
