package queue

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle of a chapter job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusFetching   Status = "fetching"
	StatusPacking    Status = "packing"
	StatusDelivering Status = "delivering"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// DaemonStopReason is the error message set on jobs interrupted by a daemon restart.
const DaemonStopReason = "Interrupted by daemon restart"

var allStatuses = []Status{
	StatusPending,
	StatusFetching,
	StatusPacking,
	StatusDelivering,
	StatusDone,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var processingStatuses = map[Status]struct{}{
	StatusFetching:   {},
	StatusPacking:    {},
	StatusDelivering: {},
}

// transitions lists the only forward moves a job may make. Failed is reachable
// from every processing status; pending may fail only through cancellation.
var transitions = map[Status][]Status{
	StatusPending:    {StatusFetching, StatusFailed},
	StatusFetching:   {StatusPacking, StatusFailed},
	StatusPacking:    {StatusDelivering, StatusFailed},
	StatusDelivering: {StatusDone, StatusFailed},
}

// AllStatuses returns every known status in lifecycle order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus converts user input into a Status.
func ParseStatus(value string) (Status, bool) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	_, ok := statusSet[status]
	return status, ok
}

// IsTerminal reports whether the status ends the job lifecycle.
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusFailed
}

// IsProcessing reports whether a worker currently owns the job.
func (s Status) IsProcessing() bool {
	_, ok := processingStatuses[s]
	return ok
}

// CanTransition reports whether a job may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Job is a chapter packaging request persisted in SQLite.
type Job struct {
	ID            int64
	RequesterID   int64
	SourceID      string
	ChapterID     string
	Title         string
	Format        string
	PageURLs      []string
	Status        Status
	ErrorMessage  string
	ProgressDone  int
	ProgressTotal int
	ArtifactPath  string
	Attempts      int
	CreatedAt     time.Time
	UpdatedAt     time.Time
	FinishedAt    *time.Time
}

// Advance moves the job to the next status, refusing moves that skip a stage.
func (j *Job) Advance(to Status) error {
	if !CanTransition(j.Status, to) {
		return fmt.Errorf("job %d: invalid transition %s -> %s", j.ID, j.Status, to)
	}
	j.Status = to
	if to.IsTerminal() {
		now := time.Now().UTC()
		j.FinishedAt = &now
	}
	return nil
}

// Fail moves the job to StatusFailed with the given message.
func (j *Job) Fail(message string) error {
	if err := j.Advance(StatusFailed); err != nil {
		return err
	}
	j.ErrorMessage = message
	return nil
}

// DisplayTitle returns a human-readable label for logs and tables.
func (j *Job) DisplayTitle() string {
	if title := strings.TrimSpace(j.Title); title != "" {
		return title
	}
	return j.ChapterID
}

// ProgressPercent returns fetch completion as 0-100.
func (j *Job) ProgressPercent() float64 {
	if j.ProgressTotal <= 0 {
		return 0
	}
	return float64(j.ProgressDone) * 100 / float64(j.ProgressTotal)
}
