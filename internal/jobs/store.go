package jobs

import "context"

// Store persists job states for queue restart recovery.
type Store interface {
	LoadJobs(ctx context.Context) ([]*DockingJob, error)
	UpsertJob(ctx context.Context, job *DockingJob) error
	DeleteJob(ctx context.Context, jobID string) error
	// DeleteJobData removes all auxiliary data (pose files, temp outputs) for a job.
	DeleteJobData(ctx context.Context, jobID string) error
}
