package entities

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// TranscriptSegment is one timestamped span of transcript text attributed to
// a speaker. Segments are created in batch after normalization and are
// immutable afterwards except by explicit user edit.
type TranscriptSegment struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	MeetingID uuid.UUID `json:"meeting_id" gorm:"type:uuid;not null;index"`
	SpeakerID uuid.UUID `json:"speaker_id" gorm:"type:uuid;not null;index"`

	// Seconds from the start of the recording; StartTime < EndTime always
	// holds after normalization.
	StartTime float64 `json:"start_time" gorm:"type:double precision;not null;index"`
	EndTime   float64 `json:"end_time" gorm:"type:double precision;not null"`

	Text          string                      `json:"text" gorm:"type:text;not null"`
	LanguagesUsed datatypes.JSONSlice[string] `json:"languages_used,omitempty" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// Duration returns the segment length in seconds
func (s *TranscriptSegment) Duration() float64 {
	return s.EndTime - s.StartTime
}

// TableName specifies the table name for GORM
func (TranscriptSegment) TableName() string {
	return "transcript_segments"
}
