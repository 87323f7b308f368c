package model

import (
	"time"

	"github.com/oklog/ulid/v2"

	"research-gateway/internal/domain"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed out of s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

func (s JobStatus) rank() int {
	switch s {
	case JobStatusPending:
		return 0
	case JobStatusInProgress:
		return 1
	case JobStatusCompleted, JobStatusFailed:
		return 2
	default:
		return -1
	}
}

// CanTransition reports whether moving from s to next keeps the lifecycle monotonic.
// Staying in the same non-terminal status is allowed.
func (s JobStatus) CanTransition(next JobStatus) bool {
	if s.IsTerminal() || next.rank() < 0 {
		return false
	}
	return next.rank() >= s.rank()
}

// ContentBlock is one piece of job output.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ErrorInfo is the persisted form of a normalized failure on a failed job.
type ErrorInfo struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	UserAction string `json:"userAction"`
}

type Job struct {
	ID          string         `json:"id"`
	Status      JobStatus      `json:"status"`
	Outputs     []ContentBlock `json:"outputs"`
	Provider    string         `json:"provider"`
	Model       string         `json:"model"`
	RemoteID    string         `json:"remoteId,omitempty"`
	WasFallback bool           `json:"wasFallback"`
	Input       string         `json:"input,omitempty"`
	Error       *ErrorInfo     `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// Clone returns a deep copy so callers never share slices with the registry.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	cp.Outputs = append([]ContentBlock(nil), j.Outputs...)
	if cp.Outputs == nil {
		cp.Outputs = []ContentBlock{}
	}
	if j.Error != nil {
		e := *j.Error
		cp.Error = &e
	}
	return &cp
}

// JobPatch describes a requested mutation. Nil fields are left untouched.
type JobPatch struct {
	Status   *JobStatus
	Outputs  []ContentBlock
	RemoteID *string
	Error    *ErrorInfo
}

// NewJobID returns a fresh ULID string.
func NewJobID() string {
	return ulid.Make().String()
}

// Apply mutates j according to p. It returns domain.ErrTerminalState when j is
// already terminal and domain.ErrInvalidTransition for a backwards move; in both
// cases j is left untouched.
func (j *Job) Apply(p JobPatch, now time.Time) error {
	if j.Status.IsTerminal() {
		return domain.ErrTerminalState
	}
	next := j.Status
	if p.Status != nil {
		if !j.Status.CanTransition(*p.Status) {
			return domain.ErrInvalidTransition
		}
		next = *p.Status
	}
	if p.RemoteID != nil {
		j.RemoteID = *p.RemoteID
	}
	switch next {
	case JobStatusCompleted:
		j.Outputs = append([]ContentBlock{}, p.Outputs...)
	case JobStatusFailed:
		if p.Error != nil {
			e := *p.Error
			j.Error = &e
		}
	}
	j.Status = next
	j.UpdatedAt = now
	return nil
}
