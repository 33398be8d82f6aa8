package entities

import (
	"time"

	"github.com/google/uuid"
)

// MeetingStatus represents the processing state of a meeting recording
type MeetingStatus string

const (
	MeetingStatusUploaded              MeetingStatus = "uploaded"
	MeetingStatusProcessingTranscript  MeetingStatus = "processing_transcript"
	MeetingStatusTranscriptReady       MeetingStatus = "transcript_ready"
	MeetingStatusProcessingEnhancement MeetingStatus = "processing_enhancement"
	MeetingStatusProcessingRedaction   MeetingStatus = "processing_redaction"
	MeetingStatusProcessingMinutes     MeetingStatus = "processing_minutes"
	MeetingStatusCompleted             MeetingStatus = "completed"
	MeetingStatusFailed                MeetingStatus = "failed"
	MeetingStatusCancelled             MeetingStatus = "cancelled"
)

// Meeting is the aggregate root for one uploaded recording and everything
// the pipeline derives from it.
type Meeting struct {
	ID              uuid.UUID     `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	UserID          uuid.UUID     `json:"user_id" gorm:"type:uuid;not null;index"`
	Title           string        `json:"title" gorm:"type:varchar(255)"`
	Status          MeetingStatus `json:"status" gorm:"type:varchar(50);not null;index;default:'uploaded'"`
	DurationSeconds float64       `json:"duration_seconds" gorm:"type:double precision;not null;default:0"`
	FileRef         string        `json:"file_ref" gorm:"type:text;not null"`
	MimeType        string        `json:"mime_type" gorm:"type:varchar(100)"`

	// Quality metrics accumulated by the pipeline
	QualityScore         float64 `json:"quality_score" gorm:"type:double precision;default:1.0"`
	InaudibleCount       int     `json:"inaudible_count" gorm:"type:integer;default:0"`
	AvgSpeakerConfidence float64 `json:"avg_speaker_confidence" gorm:"type:double precision;default:0"`

	// LeaseToken fences concurrent workers: a stage writes its token here when
	// it starts and every later write re-checks it still holds the lease.
	LeaseToken *uuid.UUID `json:"-" gorm:"type:uuid;index"`

	LastProcessedAt *time.Time `json:"last_processed_at,omitempty" gorm:"type:timestamp"`
	FailureReason   *string    `json:"failure_reason,omitempty" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// NewMeeting creates a meeting in the uploaded state
func NewMeeting(userID uuid.UUID, title, fileRef, mimeType string, durationSeconds float64) *Meeting {
	return &Meeting{
		ID:              uuid.New(),
		UserID:          userID,
		Title:           title,
		Status:          MeetingStatusUploaded,
		DurationSeconds: durationSeconds,
		FileRef:         fileRef,
		MimeType:        mimeType,
		QualityScore:    1.0,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
}

// IsTerminal reports whether no further pipeline work is possible without an
// explicit retry.
func (m *Meeting) IsTerminal() bool {
	switch m.Status {
	case MeetingStatusCompleted, MeetingStatusFailed, MeetingStatusCancelled:
		return true
	}
	return false
}

// IsProcessing reports whether a pipeline stage is currently running
func (m *Meeting) IsProcessing() bool {
	switch m.Status {
	case MeetingStatusProcessingTranscript,
		MeetingStatusProcessingEnhancement,
		MeetingStatusProcessingRedaction,
		MeetingStatusProcessingMinutes:
		return true
	}
	return false
}

// validTransitions encodes the monotonic status machine. FAILED is reachable
// from any processing state; CANCELLED from any non-terminal state.
var validTransitions = map[MeetingStatus][]MeetingStatus{
	MeetingStatusUploaded:              {MeetingStatusProcessingTranscript, MeetingStatusCancelled, MeetingStatusFailed},
	MeetingStatusProcessingTranscript:  {MeetingStatusTranscriptReady, MeetingStatusFailed, MeetingStatusCancelled},
	MeetingStatusTranscriptReady:       {MeetingStatusProcessingEnhancement, MeetingStatusProcessingMinutes, MeetingStatusFailed, MeetingStatusCancelled},
	MeetingStatusProcessingEnhancement: {MeetingStatusProcessingRedaction, MeetingStatusProcessingMinutes, MeetingStatusFailed, MeetingStatusCancelled},
	MeetingStatusProcessingRedaction:   {MeetingStatusProcessingMinutes, MeetingStatusFailed, MeetingStatusCancelled},
	MeetingStatusProcessingMinutes:     {MeetingStatusCompleted, MeetingStatusFailed, MeetingStatusCancelled},
	// Explicit retry is the only way out of a terminal state.
	MeetingStatusFailed:    {MeetingStatusProcessingTranscript, MeetingStatusProcessingMinutes, MeetingStatusCompleted},
	MeetingStatusCancelled: {MeetingStatusProcessingTranscript},
}

// CanTransitionTo checks the status machine
func (m *Meeting) CanTransitionTo(next MeetingStatus) bool {
	for _, allowed := range validTransitions[m.Status] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TableName specifies the table name for GORM
func (Meeting) TableName() string {
	return "meetings"
}
