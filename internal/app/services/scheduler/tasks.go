package scheduler

import (
	"context"
	"time"

	"github.com/shopforge/shopforge/internal/jobqueue"
)

// DefaultJobRetention is how long settled jobs are kept before the purge
// task removes them.
const DefaultJobRetention = 30 * 24 * time.Hour

// PurgeSettledJobsTask deletes settled jobs older than the retention window.
// Runs daily at 03:00.
func PurgeSettledJobsTask(strategy jobqueue.Strategy, retention time.Duration) Task {
	if retention <= 0 {
		retention = DefaultJobRetention
	}
	return Task{
		ID:       "purge-settled-jobs",
		Schedule: "0 3 * * *",
		Run: func(ctx context.Context) error {
			_, err := strategy.RemoveSettled(ctx, "", time.Now().UTC().Add(-retention))
			return err
		},
	}
}

// CollectionRebuilder schedules a full collection membership rebuild.
type CollectionRebuilder interface {
	ScheduleRebuild(ctx context.Context, id string) error
}

// RebuildCollectionsTask enqueues a nightly full rebuild at 04:00, catching
// drift from filter edits that raced with catalog changes.
func RebuildCollectionsTask(collections CollectionRebuilder) Task {
	return Task{
		ID:       "rebuild-collections",
		Schedule: "0 4 * * *",
		Run: func(ctx context.Context) error {
			return collections.ScheduleRebuild(ctx, "")
		},
	}
}
