package ai

import (
	"context"
	"fmt"
	"strings"
)

// Segment is one raw transcript span as returned by a provider for a single
// chunk. Timestamps are relative to the chunk until the caller applies the
// chunk's offset.
type Segment struct {
	SpeakerLabel   string   `json:"speaker"`
	SpeakerName    string   `json:"speaker_name,omitempty"`
	NameConfidence float64  `json:"name_confidence,omitempty"`
	// NameEvidence is set when the provider saw explicit evidence for the
	// name (self-introduction or direct address), not just a guess.
	NameEvidence bool     `json:"name_evidence,omitempty"`
	Start        float64  `json:"start"`
	End          float64  `json:"end"`
	Text         string   `json:"text"`
	Languages    []string `json:"languages,omitempty"`
	Inaudible    bool     `json:"inaudible,omitempty"`
}

// SpeakerRef pairs a provider-facing label with the display name known so far.
type SpeakerRef struct {
	Label string
	Name  string
}

// ContextSegment is one recent line carried into the next chunk's request.
type ContextSegment struct {
	Speaker string
	Start   float64
	End     float64
	Text    string
}

// ChunkContext is the continuity payload threaded into every chunk after the
// first so the provider keeps speaker numbering and narrative context stable.
type ChunkContext struct {
	Speakers       []SpeakerRef
	RecentSegments []ContextSegment
}

// IsEmpty reports whether there is nothing to carry forward.
func (c *ChunkContext) IsEmpty() bool {
	return c == nil || (len(c.Speakers) == 0 && len(c.RecentSegments) == 0)
}

// Render serializes the context into the prompt block the provider receives.
func (c *ChunkContext) Render() string {
	if c.IsEmpty() {
		return ""
	}
	var sb strings.Builder
	if len(c.Speakers) > 0 {
		sb.WriteString("Known speakers so far (keep this numbering):\n")
		for _, sp := range c.Speakers {
			sb.WriteString(fmt.Sprintf("- %s: %s\n", sp.Label, sp.Name))
		}
	}
	if len(c.RecentSegments) > 0 {
		sb.WriteString("Last lines of the previous chunk:\n")
		for _, seg := range c.RecentSegments {
			sb.WriteString(fmt.Sprintf("[%.1f-%.1f %s]: %s\n", seg.Start, seg.End, seg.Speaker, seg.Text))
		}
	}
	return sb.String()
}

// TranscribeRequest describes one chunk submission.
type TranscribeRequest struct {
	LocalPath       string
	MimeType        string
	ChunkIndex      int
	TimestampOffset float64
	Context         *ChunkContext
}

// EnhanceResult is the provider's answer for a transcript cleanup pass.
type EnhanceResult struct {
	Corrections  []TextCorrection  `json:"corrections"`
	SpeakerNames map[string]string `json:"speaker_names"`
}

// TextCorrection replaces one span of transcript text.
type TextCorrection struct {
	SegmentIndex int    `json:"segment_index"`
	Text         string `json:"text"`
}

// RedactResult carries the redacted replacement text per segment.
type RedactResult struct {
	RedactedSegments []TextCorrection `json:"redacted_segments"`
}

// MinutesResult is the structured minutes payload from the provider.
type MinutesResult struct {
	ExecutiveSummary string   `json:"executive_summary"`
	KeyPoints        []string `json:"key_points"`
	Decisions        []string `json:"decisions"`
	ActionItems      []string `json:"action_items"`
	OpenQuestions    []string `json:"open_questions"`
}

// TranscriptionProvider is the only external call surface of the pipeline's
// hot path. Transcribe is chunked; the text operations are single-shot.
type TranscriptionProvider interface {
	Transcribe(ctx context.Context, req TranscribeRequest) ([]Segment, error)
	Enhance(ctx context.Context, transcript string) (*EnhanceResult, error)
	Redact(ctx context.Context, transcript string) (*RedactResult, error)
	GenerateMinutes(ctx context.Context, transcript string) (*MinutesResult, error)
}
