// Package store holds job records and their source snapshots.
package store

import (
	"context"
	"time"

	"github.com/genresorter/api/internal/model"
)

// Store is the single durable holder of job records. Reads return copies;
// writes to one record are serialized.
type Store interface {
	// CreateSnapshot stores tracks under a fresh job id with a pending record.
	CreateSnapshot(ctx context.Context, tracks []model.Track) (model.JobID, error)
	Snapshot(ctx context.Context, id model.JobID) (*model.SourceSnapshot, error)
	Get(ctx context.Context, id model.JobID) (*model.JobRecord, error)

	// MarkRunning moves a pending record to running, or fails with
	// model.ErrAlreadyStarted.
	MarkRunning(ctx context.Context, id model.JobID) error
	UpdateProgress(ctx context.Context, id model.JobID, percent int, status model.JobStatus) error
	Fail(ctx context.Context, id model.JobID, reason string) error
	SetResult(ctx context.Context, id model.JobID, grouped model.GroupedTracks) error

	Delete(ctx context.Context, id model.JobID) error
	// Sweep removes terminal records last updated before olderThan.
	Sweep(ctx context.Context, olderThan time.Time) (int, error)
}
