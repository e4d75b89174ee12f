package store

import (
	"context"
	"time"

	"github.com/go-logr/logr"
)

// RunSweeper removes terminal jobs older than retention every interval until
// ctx is done.
func RunSweeper(ctx context.Context, s Store, interval, retention time.Duration, log logr.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := s.Sweep(ctx, now.Add(-retention))
			if err != nil {
				log.Error(err, "sweep jobs")
				continue
			}
			if n > 0 {
				log.V(1).Info("swept jobs", "removed", n)
			}
		}
	}
}
