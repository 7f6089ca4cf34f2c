package status

import (
	"time"
)

// RunStatus is the state reported for a synchronization run
type RunStatus string

const (
	// RunStatusIdle means no run has happened yet
	RunStatusIdle RunStatus = "idle"

	// RunStatusInProgress means a run is walking the feed
	RunStatusInProgress RunStatus = "in-progress"

	// RunStatusCompleted means the run finished, including early stops
	RunStatusCompleted RunStatus = "completed"

	// RunStatusFailed means the run aborted with an error
	RunStatusFailed RunStatus = "failed"

	// RunStatusAlreadyInProgress is returned to a trigger that arrived while another run was active
	RunStatusAlreadyInProgress RunStatus = "already-in-progress"
)

// Message returns the human readable form of the status
func (s RunStatus) Message() string {
	switch s {
	case RunStatusInProgress:
		return "Update in progress"
	case RunStatusCompleted:
		return "Update completed"
	case RunStatusFailed:
		return "Update failed"
	case RunStatusAlreadyInProgress:
		return "Update already in progress"
	default:
		return "No update has been run"
	}
}

// StopReason records why a walk ended
type StopReason string

const (
	// StopEndOfFeed means an empty page or the last page was reached
	StopEndOfFeed StopReason = "end-of-feed"

	// StopCursorReached means a record no newer than the cursor was seen
	StopCursorReached StopReason = "cursor-reached"

	// StopPageLimit means the configured page cap was hit
	StopPageLimit StopReason = "page-limit"

	// StopRecordLimit means the configured record cap was hit
	StopRecordLimit StopReason = "record-limit"

	// StopError means a page fetch failed
	StopError StopReason = "error"
)

// RunSummary describes the current or latest synchronization run
type RunSummary struct {
	RunID   string    `json:"run_id,omitempty"`
	Status  RunStatus `json:"status"`
	Message string    `json:"message"`
	Force   bool      `json:"force"`
	Reason  string    `json:"reason,omitempty"`

	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Duration   string     `json:"duration,omitempty"`

	// StartCursor is the cursor resolved when the run began, in provider format
	StartCursor string `json:"start_cursor,omitempty"`

	// FinalCursor is the newest timestamp written by the run, in provider format
	FinalCursor string `json:"final_cursor,omitempty"`

	PagesWalked       int `json:"pages_walked"`
	RecordsProcessed  int `json:"records_processed"`
	RecordsUpdated    int `json:"records_updated"`
	RecordsSkipped    int `json:"records_skipped"`
	NotificationsSent int `json:"notifications_sent"`

	StopReason StopReason `json:"stop_reason,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Idle returns the summary reported before any run
func Idle() *RunSummary {
	return &RunSummary{Status: RunStatusIdle, Message: RunStatusIdle.Message()}
}

// AlreadyInProgress returns the summary handed to a rejected trigger
func AlreadyInProgress() *RunSummary {
	return &RunSummary{Status: RunStatusAlreadyInProgress, Message: RunStatusAlreadyInProgress.Message()}
}

// SetStatus updates the status and its message
func (s *RunSummary) SetStatus(status RunStatus) {
	s.Status = status
	s.Message = status.Message()
}

// Finish closes the run at t
func (s *RunSummary) Finish(t time.Time) {
	s.FinishedAt = &t
	if s.StartedAt != nil {
		s.Duration = t.Sub(*s.StartedAt).String()
	}
}

// Clone returns a copy safe to hand out while the run continues
func (s *RunSummary) Clone() *RunSummary {
	if s == nil {
		return nil
	}
	c := *s
	if s.StartedAt != nil {
		started := *s.StartedAt
		c.StartedAt = &started
	}
	if s.FinishedAt != nil {
		finished := *s.FinishedAt
		c.FinishedAt = &finished
	}
	return &c
}
