package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hoangnm-dev/meeting-scribe/internal/domain/entities"
)

// PipelineJobRepository handles pipeline job queue operations
type PipelineJobRepository struct {
	db *gorm.DB
}

// NewPipelineJobRepository creates a new pipeline job repository
func NewPipelineJobRepository(db *gorm.DB) *PipelineJobRepository {
	return &PipelineJobRepository{db: db}
}

// Create creates a new pipeline job
func (r *PipelineJobRepository) Create(ctx context.Context, job *entities.PipelineJob) error {
	if job == nil {
		return errors.New("job cannot be nil")
	}
	return r.db.WithContext(ctx).Create(job).Error
}

// FindByID retrieves a pipeline job by ID
func (r *PipelineJobRepository) FindByID(ctx context.Context, id uuid.UUID) (*entities.PipelineJob, error) {
	var job entities.PipelineJob
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

// HasOpenJob reports whether a waiting or active job exists for the meeting
// and stage
func (r *PipelineJobRepository) HasOpenJob(ctx context.Context, meetingID uuid.UUID, stage entities.PipelineStage) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&entities.PipelineJob{}).
		Where("meeting_id = ? AND stage = ? AND state IN ?",
			meetingID, stage,
			[]entities.PipelineJobState{entities.JobStateWaiting, entities.JobStateActive}).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ClaimNextWaiting atomically claims the oldest waiting job of the stage.
// The conditional update guarantees only one worker wins even when several
// poll the same row; zero rows affected means another worker got there first.
func (r *PipelineJobRepository) ClaimNextWaiting(ctx context.Context, stage entities.PipelineStage) (*entities.PipelineJob, error) {
	var job entities.PipelineJob
	err := r.db.WithContext(ctx).
		Where("stage = ? AND state = ?", stage, entities.JobStateWaiting).
		Order("created_at ASC").
		First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&entities.PipelineJob{}).
		Where("id = ? AND state = ?", job.ID, entities.JobStateWaiting).
		Updates(map[string]interface{}{
			"state":         entities.JobStateActive,
			"attempt_count": gorm.Expr("attempt_count + 1"),
			"started_at":    now,
			"updated_at":    now,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}

	job.State = entities.JobStateActive
	job.AttemptCount++
	job.StartedAt = &now
	return &job, nil
}

// CancelWaiting removes queued jobs for the meeting before a worker claims
// them. Returns the number of jobs cancelled.
func (r *PipelineJobRepository) CancelWaiting(ctx context.Context, meetingID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&entities.PipelineJob{}).
		Where("meeting_id = ? AND state = ?", meetingID, entities.JobStateWaiting).
		Updates(map[string]interface{}{
			"state":      entities.JobStateCancelled,
			"updated_at": time.Now(),
		})
	return result.RowsAffected, result.Error
}

// MarkCompleted marks a job as completed
func (r *PipelineJobRepository) MarkCompleted(ctx context.Context, jobID uuid.UUID) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&entities.PipelineJob{}).
		Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"state":        entities.JobStateCompleted,
			"completed_at": now,
			"updated_at":   now,
		}).Error
}

// MarkFailed marks a job as failed with error message
func (r *PipelineJobRepository) MarkFailed(ctx context.Context, jobID uuid.UUID, errMsg string) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&entities.PipelineJob{}).
		Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"state":        entities.JobStateFailed,
			"last_error":   errMsg,
			"completed_at": now,
			"updated_at":   now,
		}).Error
}

// RequeueForRetry puts a failed attempt back in the waiting state
func (r *PipelineJobRepository) RequeueForRetry(ctx context.Context, jobID uuid.UUID, errMsg string) error {
	return r.db.WithContext(ctx).
		Model(&entities.PipelineJob{}).
		Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"state":      entities.JobStateWaiting,
			"last_error": errMsg,
			"updated_at": time.Now(),
		}).Error
}

// ListActiveByMeetingID returns jobs currently running for the meeting
func (r *PipelineJobRepository) ListActiveByMeetingID(ctx context.Context, meetingID uuid.UUID) ([]entities.PipelineJob, error) {
	var jobs []entities.PipelineJob
	if err := r.db.WithContext(ctx).
		Where("meeting_id = ? AND state = ?", meetingID, entities.JobStateActive).
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}
