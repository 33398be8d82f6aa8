package repositories

import (
	"context"

	"github.com/google/uuid"

	"github.com/hoangnm-dev/meeting-scribe/internal/domain/entities"
)

// MeetingRepository defines persistence operations for meetings
type MeetingRepository interface {
	Create(ctx context.Context, meeting *entities.Meeting) error
	FindByID(ctx context.Context, id uuid.UUID) (*entities.Meeting, error)

	// ListByUserID returns the user's meetings, newest first.
	ListByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]entities.Meeting, error)

	// UpdateStatus transitions the meeting status and records the failure
	// reason when transitioning to failed. Passing nil clears the reason.
	UpdateStatus(ctx context.Context, id uuid.UUID, status entities.MeetingStatus, failureReason *string) error

	// AcquireLease atomically writes the fencing token while moving the
	// meeting from fromStatus to toStatus. Returns false when another worker
	// won the race (no rows affected).
	AcquireLease(ctx context.Context, id uuid.UUID, token uuid.UUID, fromStatus, toStatus entities.MeetingStatus) (bool, error)

	// HoldsLease reports whether token is still the meeting's lease.
	HoldsLease(ctx context.Context, id uuid.UUID, token uuid.UUID) (bool, error)

	// UpdateMetrics persists the pipeline quality metrics.
	UpdateMetrics(ctx context.Context, id uuid.UUID, qualityScore float64, inaudibleCount int, avgSpeakerConfidence float64) error
}
