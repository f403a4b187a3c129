package model

import (
	"time"

	"github.com/sells-group/siteresolve/internal/sitematch"
)

// RunStatus represents the current state of a batch run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Valid reports whether s is a known status.
func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusRunning, RunStatusComplete, RunStatusFailed:
		return true
	}
	return false
}

// Run is one execution of the filter command over a facility table.
type Run struct {
	ID     string    `json:"id"`
	Source string    `json:"source"`
	Output string    `json:"output,omitempty"`
	Mode   string    `json:"mode"`
	Status RunStatus `json:"status"`
	Stats  *RunStats `json:"stats,omitempty"`
	Error  string    `json:"error,omitempty"`
	// BrandEntries is the size of the registry the run resolved against.
	BrandEntries int       `json:"brand_entries"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewRun holds the fields known when a run starts.
type NewRun struct {
	Source       string
	Output       string
	Mode         string
	BrandEntries int
}

// RunStats summarizes the outcomes of a run.
type RunStats struct {
	Rows       int   `json:"rows"`
	Resolved   int   `json:"resolved"`
	ByName     int   `json:"by_name"`
	ByBrand    int   `json:"by_brand"`
	None       int   `json:"none"`
	KnownBrand int   `json:"known_brand"`
	Malformed  int   `json:"malformed_urls"`
	Unreadable int   `json:"unreadable_rows"`
	DurationMs int64 `json:"duration_ms"`
}

// Add folds one facility result into the stats.
func (s *RunStats) Add(r sitematch.Result) {
	s.Rows++
	s.Malformed += r.Malformed
	if r.IsKnownBrand {
		s.KnownBrand++
	}
	switch r.Via {
	case sitematch.ViaName:
		s.Resolved++
		s.ByName++
	case sitematch.ViaBrand:
		s.Resolved++
		s.ByBrand++
	default:
		s.None++
	}
}

// MatchRate is the share of rows that got a website.
func (s RunStats) MatchRate() float64 {
	if s.Rows == 0 {
		return 0
	}
	return float64(s.Resolved) / float64(s.Rows)
}

// Resolution is the stored outcome for one facility row of a run.
type Resolution struct {
	RunID          string  `json:"run_id"`
	RowIndex       int     `json:"row_index"`
	FacilityName   string  `json:"facility_name"`
	Website        string  `json:"website"`
	IsKnownBrand   bool    `json:"is_known_brand"`
	Via            string  `json:"via,omitempty"`
	Ratio          float64 `json:"ratio"`
	MatchedBrand   string  `json:"matched_brand,omitempty"`
	CandidateCount int     `json:"candidate_count"`
	Malformed      int     `json:"malformed_urls"`
}

// NewResolution builds the stored form of a facility result.
func NewResolution(runID string, row int, f sitematch.Facility, r sitematch.Result) Resolution {
	return Resolution{
		RunID:          runID,
		RowIndex:       row,
		FacilityName:   f.Name,
		Website:        r.Website(),
		IsKnownBrand:   r.IsKnownBrand,
		Via:            string(r.Via),
		Ratio:          r.Ratio,
		MatchedBrand:   r.MatchedBrand,
		CandidateCount: len(f.CandidateURLs),
		Malformed:      r.Malformed,
	}
}
