package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/flightmap/tracker/history"
	"github.com/flightmap/tracker/opensky"
	"github.com/flightmap/tracker/render"
)

// State is the orchestrator's current step.
type State int32

const (
	Idle State = iota
	Fetching
	Storing
	Rendering
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Fetching:
		return "fetching"
	case Storing:
		return "storing"
	case Rendering:
		return "rendering"
	default:
		return "unknown"
	}
}

// Cycle kinds.
const (
	CycleIngest = "ingest"
	CycleRender = "render"
)

// Cycle outcomes, used as metric labels and in status reports.
const (
	OutcomeOK       = "ok"
	OutcomeNetwork  = "network"
	OutcomeStorage  = "storage"
	OutcomeEmpty    = "empty"
	OutcomeCanceled = "canceled"
	OutcomeError    = "error"
)

// Classify maps a cycle error onto its outcome class.
func Classify(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, opensky.ErrNetwork):
		return OutcomeNetwork
	case errors.Is(err, history.ErrStorage):
		return OutcomeStorage
	case errors.Is(err, render.ErrEmptyDataset):
		return OutcomeEmpty
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCanceled
	default:
		return OutcomeError
	}
}

// IngestReport summarises one ingestion cycle.
type IngestReport struct {
	CycleID          string        `json:"cycle_id"`
	StartedAt        time.Time     `json:"started_at"`
	Duration         time.Duration `json:"duration_ns"`
	Received         int           `json:"received"`
	Stored           int           `json:"stored"`
	Duplicates       int           `json:"duplicates"`
	SkippedMalformed int           `json:"skipped_malformed"`
	SkippedRegion    int           `json:"skipped_region"`
}

// RenderReport summarises one render cycle.
type RenderReport struct {
	CycleID   string        `json:"cycle_id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
	Samples   int           `json:"samples"`
	Aircraft  int           `json:"aircraft"`
	Paths     int           `json:"paths"`
	Path      string        `json:"path"`
}

// RefreshReport pairs the two cycles of a refresh. Render is nil when
// ingestion failed.
type RefreshReport struct {
	Ingest *IngestReport `json:"ingest,omitempty"`
	Render *RenderReport `json:"render,omitempty"`
}

// CycleError records the most recent failure.
type CycleError struct {
	Cycle   string    `json:"cycle"`
	Class   string    `json:"class"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Status is returned by Orchestrator.Status.
type Status struct {
	State      string        `json:"state"`
	LastIngest *IngestReport `json:"last_ingest,omitempty"`
	LastRender *RenderReport `json:"last_render,omitempty"`
	LastError  *CycleError   `json:"last_error,omitempty"`
}
