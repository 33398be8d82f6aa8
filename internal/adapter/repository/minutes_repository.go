package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hoangnm-dev/meeting-scribe/internal/domain/entities"
)

// MinutesRepository handles meeting minutes data operations
type MinutesRepository struct {
	db *gorm.DB
}

// NewMinutesRepository creates a new minutes repository
func NewMinutesRepository(db *gorm.DB) *MinutesRepository {
	return &MinutesRepository{db: db}
}

// Save upserts the minutes for a meeting (one row per meeting)
func (r *MinutesRepository) Save(ctx context.Context, minutes *entities.MeetingMinutes) error {
	if minutes == nil {
		return errors.New("minutes cannot be nil")
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "meeting_id"}},
			UpdateAll: true,
		}).
		Create(minutes).Error
}

// FindByMeetingID retrieves the minutes for a meeting
func (r *MinutesRepository) FindByMeetingID(ctx context.Context, meetingID uuid.UUID) (*entities.MeetingMinutes, error) {
	var minutes entities.MeetingMinutes
	if err := r.db.WithContext(ctx).Where("meeting_id = ?", meetingID).First(&minutes).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &minutes, nil
}
