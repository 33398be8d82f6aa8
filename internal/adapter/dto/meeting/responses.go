package meeting

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/hoangnm-dev/meeting-scribe/internal/domain/entities"
	usecase "github.com/hoangnm-dev/meeting-scribe/internal/usecase/meeting"
)

// UploadSessionResponse describes a resumable upload session
type UploadSessionResponse struct {
	SessionID     uuid.UUID `json:"session_id"`
	ObjectName    string    `json:"object_name"`
	ReceivedBytes int64     `json:"received_bytes"`
	TotalSize     int64     `json:"total_size"`
	ExpiresInSec  int       `json:"expires_in_sec"`
}

// MeetingResponse is the list/summary shape of a meeting
type MeetingResponse struct {
	ID                   uuid.UUID  `json:"id"`
	Title                string     `json:"title"`
	Status               string     `json:"status"`
	DurationSeconds      float64    `json:"duration_seconds"`
	QualityScore         float64    `json:"quality_score"`
	InaudibleCount       int        `json:"inaudible_count"`
	AvgSpeakerConfidence float64    `json:"avg_speaker_confidence"`
	FailureReason        *string    `json:"failure_reason,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	LastProcessedAt      *time.Time `json:"last_processed_at,omitempty"`
}

// SpeakerResponse is one attributed voice
type SpeakerResponse struct {
	ID             uuid.UUID `json:"id"`
	DisplayName    string    `json:"display_name"`
	IsUnknown      bool      `json:"is_unknown"`
	NameConfidence float64   `json:"name_confidence"`
	FirstSeenOrder int       `json:"first_seen_order"`
}

// SegmentResponse is one transcript span
type SegmentResponse struct {
	ID            uuid.UUID `json:"id"`
	SpeakerID     uuid.UUID `json:"speaker_id"`
	StartTime     float64   `json:"start_time"`
	EndTime       float64   `json:"end_time"`
	Text          string    `json:"text"`
	LanguagesUsed []string  `json:"languages_used,omitempty"`
}

// MinutesResponse is the generated meeting minutes
type MinutesResponse struct {
	ExecutiveSummary string   `json:"executive_summary"`
	KeyPoints        []string `json:"key_points"`
	Decisions        []string `json:"decisions"`
	ActionItems      []string `json:"action_items"`
	OpenQuestions    []string `json:"open_questions"`
}

// MeetingDetailResponse is the full meeting view
type MeetingDetailResponse struct {
	Meeting  MeetingResponse   `json:"meeting"`
	Speakers []SpeakerResponse `json:"speakers"`
	Segments []SegmentResponse `json:"segments"`
	Minutes  *MinutesResponse  `json:"minutes,omitempty"`
}

// QuotaResponse reports the caller's remaining weekly uploads
type QuotaResponse struct {
	RemainingUploads int `json:"remaining_uploads"`
	WeeklyLimit      int `json:"weekly_limit"`
}

// ToMeetingResponse maps an entity to its response shape
func ToMeetingResponse(m *entities.Meeting) MeetingResponse {
	return MeetingResponse{
		ID:                   m.ID,
		Title:                m.Title,
		Status:               string(m.Status),
		DurationSeconds:      m.DurationSeconds,
		QualityScore:         m.QualityScore,
		InaudibleCount:       m.InaudibleCount,
		AvgSpeakerConfidence: m.AvgSpeakerConfidence,
		FailureReason:        m.FailureReason,
		CreatedAt:            m.CreatedAt,
		LastProcessedAt:      m.LastProcessedAt,
	}
}

// ToDetailResponse maps the usecase detail aggregate
func ToDetailResponse(d *usecase.Detail) MeetingDetailResponse {
	resp := MeetingDetailResponse{
		Meeting:  ToMeetingResponse(d.Meeting),
		Speakers: make([]SpeakerResponse, 0, len(d.Speakers)),
		Segments: make([]SegmentResponse, 0, len(d.Segments)),
	}

	for _, sp := range d.Speakers {
		resp.Speakers = append(resp.Speakers, SpeakerResponse{
			ID:             sp.ID,
			DisplayName:    sp.DisplayName,
			IsUnknown:      sp.IsUnknown,
			NameConfidence: sp.NameConfidence,
			FirstSeenOrder: sp.FirstSeenOrder,
		})
	}
	for _, seg := range d.Segments {
		resp.Segments = append(resp.Segments, SegmentResponse{
			ID:            seg.ID,
			SpeakerID:     seg.SpeakerID,
			StartTime:     seg.StartTime,
			EndTime:       seg.EndTime,
			Text:          seg.Text,
			LanguagesUsed: seg.LanguagesUsed,
		})
	}

	if d.Minutes != nil {
		m := MinutesResponse{ExecutiveSummary: d.Minutes.ExecutiveSummary}
		_ = json.Unmarshal(d.Minutes.KeyPoints, &m.KeyPoints)
		_ = json.Unmarshal(d.Minutes.Decisions, &m.Decisions)
		_ = json.Unmarshal(d.Minutes.ActionItems, &m.ActionItems)
		_ = json.Unmarshal(d.Minutes.OpenQuestions, &m.OpenQuestions)
		resp.Minutes = &m
	}

	return resp
}
