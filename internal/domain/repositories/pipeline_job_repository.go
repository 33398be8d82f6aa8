package repositories

import (
	"context"

	"github.com/google/uuid"

	"github.com/hoangnm-dev/meeting-scribe/internal/domain/entities"
)

// PipelineJobRepository defines queue operations for pipeline jobs
type PipelineJobRepository interface {
	Create(ctx context.Context, job *entities.PipelineJob) error
	FindByID(ctx context.Context, id uuid.UUID) (*entities.PipelineJob, error)

	// HasOpenJob reports whether a waiting or active job already exists for
	// the meeting and stage, enforcing at most one unit per meeting per stage.
	HasOpenJob(ctx context.Context, meetingID uuid.UUID, stage entities.PipelineStage) (bool, error)

	// ClaimNextWaiting atomically flips the oldest waiting job of the stage
	// to active and returns it; nil when the queue is empty.
	ClaimNextWaiting(ctx context.Context, stage entities.PipelineStage) (*entities.PipelineJob, error)

	// CancelWaiting removes queued jobs for the meeting before any worker
	// claims them. Returns the number of jobs cancelled.
	CancelWaiting(ctx context.Context, meetingID uuid.UUID) (int64, error)

	MarkCompleted(ctx context.Context, jobID uuid.UUID) error
	MarkFailed(ctx context.Context, jobID uuid.UUID, errMsg string) error

	// RequeueForRetry puts a failed attempt back in the waiting state with an
	// incremented attempt count.
	RequeueForRetry(ctx context.Context, jobID uuid.UUID, errMsg string) error

	// ListActiveByMeetingID returns jobs currently running for the meeting.
	ListActiveByMeetingID(ctx context.Context, meetingID uuid.UUID) ([]entities.PipelineJob, error)
}
