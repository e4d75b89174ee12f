package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobID identifies one classification run and its downstream artifacts.
type JobID string

// NewJobID returns a fresh random job id.
func NewJobID() JobID {
	return JobID(uuid.New().String())
}

// ParseJobID validates a client supplied job id.
func ParseJobID(s string) (JobID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidJobID, s)
	}
	return JobID(id.String()), nil
}

func (id JobID) String() string { return string(id) }

// JobRecord is the durable state of a classification job
type JobRecord struct {
	ID          JobID          `json:"id"`
	Status      JobStatus      `json:"status"`
	Progress    int            `json:"progress"`
	TrackCount  int            `json:"trackCount"`
	Result      *GroupedTracks `json:"result,omitempty"`
	Error       *string        `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	StartedAt   *time.Time     `json:"startedAt,omitempty"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
}

// NewJobRecord returns a pending record for a snapshot of trackCount tracks.
func NewJobRecord(id JobID, trackCount int, now time.Time) *JobRecord {
	return &JobRecord{
		ID:         id,
		Status:     JobStatusPending,
		TrackCount: trackCount,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Clone returns a deep copy so callers never share mutable state with a store.
func (r *JobRecord) Clone() *JobRecord {
	if r == nil {
		return nil
	}
	out := *r
	if r.Result != nil {
		grouped := r.Result.Clone()
		out.Result = &grouped
	}
	if r.Error != nil {
		msg := *r.Error
		out.Error = &msg
	}
	if r.StartedAt != nil {
		t := *r.StartedAt
		out.StartedAt = &t
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

// StartJobRequest represents the request to start classification
type StartJobRequest struct {
	JobID string `json:"jobId" validate:"required,uuid"`
}

// StartJobResponse acknowledges an accepted job
type StartJobResponse struct {
	JobID  JobID     `json:"jobId"`
	Status JobStatus `json:"status"`
}

// JobStatusResponse represents the state of a job as seen by clients
type JobStatusResponse struct {
	JobID       JobID      `json:"jobId"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"`
	TrackCount  int        `json:"trackCount"`
	Error       *string    `json:"error"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	StartedAt   *time.Time `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt"`
}

// NewJobStatusResponse builds the client view of a record.
func NewJobStatusResponse(r *JobRecord) *JobStatusResponse {
	return &JobStatusResponse{
		JobID:       r.ID,
		Status:      r.Status,
		Progress:    r.Progress,
		TrackCount:  r.TrackCount,
		Error:       r.Error,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
	}
}
