package jobcontext

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type KeyContext string

var (
	keyJobID        KeyContext = "job_id"
	keyStage        KeyContext = "stage"
	keyWorkerID     KeyContext = "worker_id"
	keyJobStartTime KeyContext = "job_start_time"
)

// jobTimeout bounds one stage execution. Long recordings with many chunks
// still finish well inside this; a hung provider call must not pin a worker
// slot forever.
const jobTimeout = 30 * time.Minute

// JobMetadata holds metadata for a job execution
type JobMetadata struct {
	JobID     uuid.UUID
	Stage     string
	WorkerID  int
	StartTime time.Time
}

// JobBegin initializes a job context with metadata and timeout
func JobBegin(parentCtx context.Context, jobID uuid.UUID, stage string, workerID int) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parentCtx, jobTimeout)

	ctx = context.WithValue(ctx, keyJobID, jobID)
	ctx = context.WithValue(ctx, keyStage, stage)
	ctx = context.WithValue(ctx, keyWorkerID, workerID)
	ctx = context.WithValue(ctx, keyJobStartTime, time.Now())

	return ctx, cancel
}

// GetJobID extracts job ID from context
func GetJobID(ctx context.Context) (uuid.UUID, bool) {
	jobID, ok := ctx.Value(keyJobID).(uuid.UUID)
	return jobID, ok
}

// GetStage extracts the pipeline stage from context
func GetStage(ctx context.Context) (string, bool) {
	stage, ok := ctx.Value(keyStage).(string)
	return stage, ok
}

// GetWorkerID extracts worker ID from context
func GetWorkerID(ctx context.Context) (int, bool) {
	workerID, ok := ctx.Value(keyWorkerID).(int)
	return workerID, ok
}

// GetStartTime extracts job start time from context
func GetStartTime(ctx context.Context) (time.Time, bool) {
	start, ok := ctx.Value(keyJobStartTime).(time.Time)
	return start, ok
}

// Elapsed returns how long the job has been running
func Elapsed(ctx context.Context) time.Duration {
	if start, ok := GetStartTime(ctx); ok {
		return time.Since(start)
	}
	return 0
}

// Metadata collects all job metadata from the context
func Metadata(ctx context.Context) JobMetadata {
	meta := JobMetadata{}
	if id, ok := GetJobID(ctx); ok {
		meta.JobID = id
	}
	if stage, ok := GetStage(ctx); ok {
		meta.Stage = stage
	}
	if workerID, ok := GetWorkerID(ctx); ok {
		meta.WorkerID = workerID
	}
	if start, ok := GetStartTime(ctx); ok {
		meta.StartTime = start
	}
	return meta
}
