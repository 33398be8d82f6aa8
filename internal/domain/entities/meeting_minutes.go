package entities

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// MeetingMinutes holds the AI-generated minutes for a completed transcript.
type MeetingMinutes struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	MeetingID uuid.UUID `json:"meeting_id" gorm:"type:uuid;not null;uniqueIndex"`

	ExecutiveSummary string         `json:"executive_summary" gorm:"type:text"`
	KeyPoints        datatypes.JSON `json:"key_points,omitempty" gorm:"type:jsonb;default:'[]'"`
	Decisions        datatypes.JSON `json:"decisions,omitempty" gorm:"type:jsonb;default:'[]'"`
	ActionItems      datatypes.JSON `json:"action_items,omitempty" gorm:"type:jsonb;default:'[]'"`
	OpenQuestions    datatypes.JSON `json:"open_questions,omitempty" gorm:"type:jsonb;default:'[]'"`

	ProcessingTimeMs int `json:"processing_time_ms" gorm:"type:integer;default:0"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// NewMeetingMinutes creates an empty minutes record for a meeting
func NewMeetingMinutes(meetingID uuid.UUID) *MeetingMinutes {
	return &MeetingMinutes{
		ID:        uuid.New(),
		MeetingID: meetingID,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

// TableName specifies the table name for GORM
func (MeetingMinutes) TableName() string {
	return "meeting_minutes"
}
