package entities

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PipelineStage is one step of the processing pipeline with its own queue
// and retry budget.
type PipelineStage string

const (
	StageTranscription PipelineStage = "transcription"
	StageEnhancement   PipelineStage = "enhancement"
	StageRedaction     PipelineStage = "redaction"
	StageMinutes       PipelineStage = "minutes"
)

// Stages lists every stage in pipeline order.
var Stages = []PipelineStage{StageTranscription, StageEnhancement, StageRedaction, StageMinutes}

// Valid reports whether the stage tag is one of the known stages.
func (s PipelineStage) Valid() bool {
	switch s {
	case StageTranscription, StageEnhancement, StageRedaction, StageMinutes:
		return true
	}
	return false
}

// PipelineJobState represents the queue state of a unit of work
type PipelineJobState string

const (
	JobStateWaiting   PipelineJobState = "waiting"
	JobStateActive    PipelineJobState = "active"
	JobStateCompleted PipelineJobState = "completed"
	JobStateFailed    PipelineJobState = "failed"
	JobStateCancelled PipelineJobState = "cancelled"
)

// JobPayload is the typed payload attached to a pipeline job. One schema per
// stage tag, validated at the queue boundary instead of dispatching on loose
// blobs.
type JobPayload struct {
	FileRef          string  `json:"file_ref,omitempty"`
	DurationSeconds  float64 `json:"duration_seconds,omitempty"`
	SkipDownstream   bool    `json:"skip_downstream,omitempty"`
	RedactionEnabled bool    `json:"redaction_enabled,omitempty"`
}

// Scan implements sql.Scanner interface for GORM
func (p *JobPayload) Scan(value interface{}) error {
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, &p)
}

// Value implements driver.Valuer interface for GORM
func (p JobPayload) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// ValidateFor checks the payload carries what the given stage needs.
func (p JobPayload) ValidateFor(stage PipelineStage) error {
	switch stage {
	case StageTranscription:
		if p.FileRef == "" {
			return fmt.Errorf("transcription payload requires file_ref")
		}
		if p.DurationSeconds <= 0 {
			return fmt.Errorf("transcription payload requires positive duration_seconds")
		}
	case StageEnhancement, StageRedaction, StageMinutes:
		// These stages read persisted segments; no payload fields required.
	default:
		return fmt.Errorf("unknown stage %q", stage)
	}
	return nil
}

// PipelineJob is one unit of pipeline work for a meeting
type PipelineJob struct {
	ID        uuid.UUID        `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	MeetingID uuid.UUID        `json:"meeting_id" gorm:"type:uuid;not null;index"`
	UserID    uuid.UUID        `json:"user_id" gorm:"type:uuid;not null;index"`
	Stage     PipelineStage    `json:"stage" gorm:"type:varchar(50);not null;index"`
	State     PipelineJobState `json:"state" gorm:"type:varchar(50);not null;index;default:'waiting'"`

	Payload JobPayload `json:"payload" gorm:"type:jsonb;serializer:json"`

	AttemptCount int     `json:"attempt_count" gorm:"type:integer;default:0"`
	MaxAttempts  int     `json:"max_attempts" gorm:"type:integer;default:3"`
	LastError    *string `json:"last_error,omitempty" gorm:"type:text"`

	StartedAt   *time.Time `json:"started_at,omitempty" gorm:"type:timestamp"`
	CompletedAt *time.Time `json:"completed_at,omitempty" gorm:"type:timestamp"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// NewPipelineJob creates a waiting job for a stage
func NewPipelineJob(meetingID, userID uuid.UUID, stage PipelineStage, payload JobPayload) *PipelineJob {
	return &PipelineJob{
		ID:          uuid.New(),
		MeetingID:   meetingID,
		UserID:      userID,
		Stage:       stage,
		State:       JobStateWaiting,
		Payload:     payload,
		MaxAttempts: 3,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
}

// HasAttemptsLeft reports whether the job is within its retry budget
func (j *PipelineJob) HasAttemptsLeft() bool {
	return j.AttemptCount < j.MaxAttempts
}

// TableName specifies the table name for GORM
func (PipelineJob) TableName() string {
	return "pipeline_jobs"
}
