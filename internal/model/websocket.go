package model

// ProgressEvent is one step of a job's progress stream.
type ProgressEvent struct {
	JobID   JobID     `json:"jobId"`
	Percent int       `json:"percentage"`
	Status  JobStatus `json:"status"`
	Error   string    `json:"error,omitempty"`
}

// Terminal reports whether the event ends the stream. Consumers stop on a
// terminal status whatever the percentage says.
func (e ProgressEvent) Terminal() bool {
	return e.Status.IsTerminal()
}

// EventFromRecord describes the current state of a record as an event.
func EventFromRecord(r *JobRecord) ProgressEvent {
	ev := ProgressEvent{
		JobID:   r.ID,
		Percent: r.Progress,
		Status:  r.Status,
	}
	if r.Error != nil {
		ev.Error = *r.Error
	}
	return ev
}

// WebSocket message types
const (
	WSMessageTypeProgress = "progress"
	WSMessageTypeComplete = "complete"
	WSMessageTypeError    = "error"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSProgressMessage represents a progress update
type WSProgressMessage struct {
	Type     string    `json:"type"`
	JobID    JobID     `json:"jobId"`
	Progress int       `json:"progress"`
	Status   JobStatus `json:"status"`
}

// WSCompleteMessage represents job completion
type WSCompleteMessage struct {
	Type     string    `json:"type"`
	JobID    JobID     `json:"jobId"`
	Progress int       `json:"progress"`
	Status   JobStatus `json:"status"`
}

// WSErrorMessage represents an error
type WSErrorMessage struct {
	Type   string    `json:"type"`
	JobID  JobID     `json:"jobId"`
	Status JobStatus `json:"status,omitempty"`
	Error  WSError   `json:"error"`
}

// WSError represents error details
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewWSMessage converts an event into the matching WebSocket message.
func NewWSMessage(ev ProgressEvent) interface{} {
	switch ev.Status {
	case JobStatusCompleted:
		return WSCompleteMessage{
			Type:     WSMessageTypeComplete,
			JobID:    ev.JobID,
			Progress: ev.Percent,
			Status:   ev.Status,
		}
	case JobStatusFailed:
		return WSErrorMessage{
			Type:   WSMessageTypeError,
			JobID:  ev.JobID,
			Status: ev.Status,
			Error: WSError{
				Code:    "JOB_FAILED",
				Message: ev.Error,
			},
		}
	default:
		return WSProgressMessage{
			Type:     WSMessageTypeProgress,
			JobID:    ev.JobID,
			Progress: ev.Percent,
			Status:   ev.Status,
		}
	}
}
