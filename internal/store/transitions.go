package store

import (
	"fmt"
	"time"

	"github.com/genresorter/api/internal/model"
)

// The apply functions hold the lifecycle rules shared by every Store. They
// mutate rec in place and leave it untouched when they return an error.

func applyStart(rec *model.JobRecord, now time.Time) error {
	if rec.Status != model.JobStatusPending {
		return fmt.Errorf("%w: job %s is %s", model.ErrAlreadyStarted, rec.ID, rec.Status)
	}
	rec.Status = model.JobStatusRunning
	rec.UpdatedAt = now
	rec.StartedAt = &now
	return nil
}

func applyProgress(rec *model.JobRecord, percent int, status model.JobStatus, now time.Time) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", model.ErrInvalidTransition, status)
	}
	if rec.Status.IsTerminal() {
		return fmt.Errorf("%w: job %s is already %s", model.ErrInvalidTransition, rec.ID, rec.Status)
	}
	if status.Rank() < rec.Status.Rank() {
		return fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, rec.Status, status)
	}
	if status == model.JobStatusCompleted {
		return fmt.Errorf("%w: completion requires a result", model.ErrInvalidTransition)
	}
	if status == model.JobStatusFailed {
		return applyFail(rec, "failed", now)
	}

	percent = clampPercent(percent)
	if percent > rec.Progress {
		rec.Progress = percent
	}
	if rec.Status == model.JobStatusPending && status == model.JobStatusRunning {
		rec.StartedAt = &now
	}
	rec.Status = status
	rec.UpdatedAt = now
	return nil
}

func applyFail(rec *model.JobRecord, reason string, now time.Time) error {
	if rec.Status.IsTerminal() {
		return fmt.Errorf("%w: job %s is already %s", model.ErrInvalidTransition, rec.ID, rec.Status)
	}
	rec.Status = model.JobStatusFailed
	rec.Error = &reason
	rec.UpdatedAt = now
	rec.CompletedAt = &now
	return nil
}

func applyResult(rec *model.JobRecord, grouped model.GroupedTracks, now time.Time) error {
	if rec.Status.IsTerminal() {
		return fmt.Errorf("%w: job %s is already %s", model.ErrInvalidTransition, rec.ID, rec.Status)
	}
	if err := grouped.Validate(); err != nil {
		return fmt.Errorf("%w: %v", model.ErrInvalidTransition, err)
	}
	result := grouped.Clone()
	if result == nil {
		result = model.GroupedTracks{}
	}
	rec.Status = model.JobStatusCompleted
	rec.Progress = 100
	rec.Result = &result
	rec.UpdatedAt = now
	rec.CompletedAt = &now
	return nil
}

func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

func isSweepable(rec *model.JobRecord, olderThan time.Time) bool {
	return rec.Status.IsTerminal() && rec.UpdatedAt.Before(olderThan)
}
