package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Speaker is one distinct voice within a meeting. Identity is stable for the
// meeting's lifetime; only the display name and its confidence may upgrade.
type Speaker struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	MeetingID   uuid.UUID `json:"meeting_id" gorm:"type:uuid;not null;uniqueIndex:idx_speakers_meeting_name"`
	DisplayName string    `json:"display_name" gorm:"type:varchar(255);not null;uniqueIndex:idx_speakers_meeting_name"`
	IsUnknown   bool      `json:"is_unknown" gorm:"not null;default:true"`

	// NameConfidence is only raised from zero, never overwritten once set,
	// so a later chunk cannot flip-flop an already attributed name.
	NameConfidence float64 `json:"name_confidence" gorm:"type:double precision;default:0"`
	IsConfirmed    bool    `json:"is_confirmed" gorm:"not null;default:false"`

	// FirstSeenOrder is the append-only position in the meeting's speaker
	// registry (first distinct voice = 1).
	FirstSeenOrder int `json:"first_seen_order" gorm:"type:integer;not null"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// NewSpeaker creates an anonymous speaker placeholder for a first appearance
func NewSpeaker(meetingID uuid.UUID, order int) *Speaker {
	return &Speaker{
		ID:             uuid.New(),
		MeetingID:      meetingID,
		DisplayName:    fmt.Sprintf("Speaker %d", order),
		IsUnknown:      true,
		FirstSeenOrder: order,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
}

// PromoteName upgrades the placeholder to a real name when the provider
// reports explicit evidence. The confidence floor prevents downgrades.
func (s *Speaker) PromoteName(name string, confidence float64) bool {
	if name == "" {
		return false
	}
	if s.NameConfidence > 0 {
		return false
	}
	s.DisplayName = name
	s.IsUnknown = false
	s.NameConfidence = confidence
	s.UpdatedAt = time.Now()
	return true
}

// TableName specifies the table name for GORM
func (Speaker) TableName() string {
	return "speakers"
}
