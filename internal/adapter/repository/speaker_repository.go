package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hoangnm-dev/meeting-scribe/internal/domain/entities"
)

// SpeakerRepository handles speaker data operations
type SpeakerRepository struct {
	db *gorm.DB
}

// NewSpeakerRepository creates a new speaker repository
func NewSpeakerRepository(db *gorm.DB) *SpeakerRepository {
	return &SpeakerRepository{db: db}
}

// Create creates a new speaker
func (r *SpeakerRepository) Create(ctx context.Context, speaker *entities.Speaker) error {
	if speaker == nil {
		return errors.New("speaker cannot be nil")
	}
	return r.db.WithContext(ctx).Create(speaker).Error
}

// Update updates a speaker's name attribution fields
func (r *SpeakerRepository) Update(ctx context.Context, speaker *entities.Speaker) error {
	if speaker == nil {
		return errors.New("speaker cannot be nil")
	}
	return r.db.WithContext(ctx).
		Model(&entities.Speaker{}).
		Where("id = ?", speaker.ID).
		Updates(map[string]interface{}{
			"display_name":    speaker.DisplayName,
			"is_unknown":      speaker.IsUnknown,
			"name_confidence": speaker.NameConfidence,
			"is_confirmed":    speaker.IsConfirmed,
			"updated_at":      speaker.UpdatedAt,
		}).Error
}

// DeleteByMeetingID removes all speakers of a meeting
func (r *SpeakerRepository) DeleteByMeetingID(ctx context.Context, meetingID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("meeting_id = ?", meetingID).
		Delete(&entities.Speaker{}).Error
}

// ListByMeetingID returns speakers ordered by first appearance
func (r *SpeakerRepository) ListByMeetingID(ctx context.Context, meetingID uuid.UUID) ([]entities.Speaker, error) {
	var speakers []entities.Speaker
	if err := r.db.WithContext(ctx).
		Where("meeting_id = ?", meetingID).
		Order("first_seen_order ASC").
		Find(&speakers).Error; err != nil {
		return nil, err
	}
	return speakers, nil
}
