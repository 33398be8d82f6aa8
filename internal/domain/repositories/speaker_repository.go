package repositories

import (
	"context"

	"github.com/google/uuid"

	"github.com/hoangnm-dev/meeting-scribe/internal/domain/entities"
)

// SpeakerRepository defines persistence operations for meeting speakers
type SpeakerRepository interface {
	Create(ctx context.Context, speaker *entities.Speaker) error
	Update(ctx context.Context, speaker *entities.Speaker) error

	// ListByMeetingID returns speakers ordered by first appearance.
	ListByMeetingID(ctx context.Context, meetingID uuid.UUID) ([]entities.Speaker, error)

	// DeleteByMeetingID removes all speakers of a meeting so a rerun of the
	// transcription stage can persist a fresh registry.
	DeleteByMeetingID(ctx context.Context, meetingID uuid.UUID) error
}
