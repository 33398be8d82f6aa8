package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hoangnm-dev/meeting-scribe/internal/domain/entities"
)

// MeetingRepository handles meeting data operations
type MeetingRepository struct {
	db *gorm.DB
}

// NewMeetingRepository creates a new meeting repository
func NewMeetingRepository(db *gorm.DB) *MeetingRepository {
	return &MeetingRepository{db: db}
}

// Create creates a new meeting
func (r *MeetingRepository) Create(ctx context.Context, meeting *entities.Meeting) error {
	if meeting == nil {
		return errors.New("meeting cannot be nil")
	}
	return r.db.WithContext(ctx).Create(meeting).Error
}

// FindByID retrieves a meeting by ID
func (r *MeetingRepository) FindByID(ctx context.Context, id uuid.UUID) (*entities.Meeting, error) {
	var meeting entities.Meeting
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&meeting).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &meeting, nil
}

// ListByUserID returns the user's meetings, newest first
func (r *MeetingRepository) ListByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]entities.Meeting, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var meetings []entities.Meeting
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&meetings).Error; err != nil {
		return nil, err
	}
	return meetings, nil
}

// UpdateStatus transitions the meeting status and records the failure reason
func (r *MeetingRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status entities.MeetingStatus, failureReason *string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"status":            status,
		"last_processed_at": now,
		"updated_at":        now,
		"failure_reason":    failureReason,
	}
	return r.db.WithContext(ctx).
		Model(&entities.Meeting{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// AcquireLease atomically writes the fencing token while transitioning the
// status. Only one worker's conditional update can match the fromStatus row.
func (r *MeetingRepository) AcquireLease(ctx context.Context, id uuid.UUID, token uuid.UUID, fromStatus, toStatus entities.MeetingStatus) (bool, error) {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&entities.Meeting{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(map[string]interface{}{
			"status":            toStatus,
			"lease_token":       token,
			"last_processed_at": now,
			"updated_at":        now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// HoldsLease reports whether token is still the meeting's current lease
func (r *MeetingRepository) HoldsLease(ctx context.Context, id uuid.UUID, token uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&entities.Meeting{}).
		Where("id = ? AND lease_token = ?", id, token).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// UpdateMetrics persists the pipeline quality metrics
func (r *MeetingRepository) UpdateMetrics(ctx context.Context, id uuid.UUID, qualityScore float64, inaudibleCount int, avgSpeakerConfidence float64) error {
	return r.db.WithContext(ctx).
		Model(&entities.Meeting{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"quality_score":          qualityScore,
			"inaudible_count":        inaudibleCount,
			"avg_speaker_confidence": avgSpeakerConfidence,
			"updated_at":             time.Now(),
		}).Error
}
