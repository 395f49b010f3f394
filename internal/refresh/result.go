package refresh

import (
	"time"

	"github.com/google/uuid"
)

// Sub-resource names recorded in refresh_state.
const (
	ResourceResolve    = "resolve"
	ResourceSupergroup = "supergroup"
	ResourceFullInfo   = "full_info"
	ResourceHistory    = "history"
	ResourceComments   = "comments"
	ResourceSimilar    = "similar"
)

// Status is the outcome of one sub-resource step.
type Status string

const (
	StatusOK            Status = "ok"
	StatusSkipped       Status = "skipped"
	StatusFailed        Status = "failed"
	StatusNotApplicable Status = "not_applicable"
)

// StepResult is the outcome of one sub-resource of one entity.
type StepResult struct {
	Resource  string `json:"resource"`
	Status    Status `json:"status"`
	ErrorCode int    `json:"error_code,omitempty"`
	Error     string `json:"error,omitempty"`
}

// EntityResult is the outcome of one target name.
type EntityResult struct {
	Name   string `json:"name"`
	ChatID int64  `json:"chat_id,omitempty"`
	// Skipped is set when the entity was fresh and no call was made.
	Skipped        bool         `json:"skipped,omitempty"`
	Error          string       `json:"error,omitempty"`
	Steps          []StepResult `json:"steps,omitempty"`
	UpdatesApplied int          `json:"updates_applied"`
}

// Step returns the result of resource, if that step ran.
func (r *EntityResult) Step(resource string) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Resource == resource {
			return s, true
		}
	}
	return StepResult{}, false
}

func (r *EntityResult) record(resource string, status Status, err error, code int) {
	s := StepResult{Resource: resource, Status: status, ErrorCode: code}
	if err != nil {
		s.Error = err.Error()
	}
	r.Steps = append(r.Steps, s)
}

// Failed reports whether the entity or any of its steps failed.
func (r *EntityResult) Failed() bool {
	if r.Error != "" {
		return true
	}
	for _, s := range r.Steps {
		if s.Status == StatusFailed {
			return true
		}
	}
	return false
}

// RunSummary is the outcome of one pass over the target list.
type RunSummary struct {
	RunID      uuid.UUID      `json:"run_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Entities   []EntityResult `json:"entities"`
	// Aborted is set when a flood condition or cancellation ended the run.
	Aborted bool `json:"aborted"`
}

// Counts returns how many entities were refreshed, skipped and failed.
func (s *RunSummary) Counts() (refreshed, skipped, failed int) {
	for i := range s.Entities {
		e := &s.Entities[i]
		switch {
		case e.Failed():
			failed++
		case e.Skipped:
			skipped++
		default:
			refreshed++
		}
	}
	return refreshed, skipped, failed
}
