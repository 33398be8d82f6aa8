package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hoangnm-dev/meeting-scribe/internal/domain/entities"
)

// SegmentRepository handles transcript segment data operations
type SegmentRepository struct {
	db *gorm.DB
}

// NewSegmentRepository creates a new segment repository
func NewSegmentRepository(db *gorm.DB) *SegmentRepository {
	return &SegmentRepository{db: db}
}

// CreateBatch inserts normalized segments in one transaction
func (r *SegmentRepository) CreateBatch(ctx context.Context, segments []entities.TranscriptSegment) error {
	if len(segments) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(segments, 100).Error
}

// ListByMeetingID returns segments ordered by start time
func (r *SegmentRepository) ListByMeetingID(ctx context.Context, meetingID uuid.UUID) ([]entities.TranscriptSegment, error) {
	var segments []entities.TranscriptSegment
	if err := r.db.WithContext(ctx).
		Where("meeting_id = ?", meetingID).
		Order("start_time ASC").
		Find(&segments).Error; err != nil {
		return nil, err
	}
	return segments, nil
}

// CountByMeetingID counts segments for a meeting
func (r *SegmentRepository) CountByMeetingID(ctx context.Context, meetingID uuid.UUID) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&entities.TranscriptSegment{}).
		Where("meeting_id = ?", meetingID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// UpdateText rewrites one segment's text
func (r *SegmentRepository) UpdateText(ctx context.Context, segmentID uuid.UUID, text string) error {
	return r.db.WithContext(ctx).
		Model(&entities.TranscriptSegment{}).
		Where("id = ?", segmentID).
		Updates(map[string]interface{}{
			"text":       text,
			"updated_at": time.Now(),
		}).Error
}

// DeleteByMeetingID removes all segments for a meeting (full reprocess)
func (r *SegmentRepository) DeleteByMeetingID(ctx context.Context, meetingID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("meeting_id = ?", meetingID).
		Delete(&entities.TranscriptSegment{}).Error
}
