package repositories

import (
	"context"

	"github.com/google/uuid"

	"github.com/hoangnm-dev/meeting-scribe/internal/domain/entities"
)

// MinutesRepository defines persistence operations for generated minutes
type MinutesRepository interface {
	Save(ctx context.Context, minutes *entities.MeetingMinutes) error
	FindByMeetingID(ctx context.Context, meetingID uuid.UUID) (*entities.MeetingMinutes, error)
}
