package repositories

import (
	"context"

	"github.com/google/uuid"

	"github.com/hoangnm-dev/meeting-scribe/internal/domain/entities"
)

// SegmentRepository defines persistence operations for transcript segments
type SegmentRepository interface {
	// CreateBatch inserts normalized segments in one transaction.
	CreateBatch(ctx context.Context, segments []entities.TranscriptSegment) error

	// ListByMeetingID returns segments ordered by start time.
	ListByMeetingID(ctx context.Context, meetingID uuid.UUID) ([]entities.TranscriptSegment, error)

	CountByMeetingID(ctx context.Context, meetingID uuid.UUID) (int64, error)

	// UpdateText rewrites one segment's text (enhancement / redaction).
	UpdateText(ctx context.Context, segmentID uuid.UUID, text string) error

	DeleteByMeetingID(ctx context.Context, meetingID uuid.UUID) error
}
