package pipeline

import (
	"github.com/hoangnm-dev/meeting-scribe/pkg/ai"
)

// contextWindow is how many trailing segments of the previous chunk are
// carried into the next chunk's request.
const contextWindow = 10

// speakerRecord is one entry of the append-only speaker registry. Records are
// keyed by provider label and never re-indexed; Order is the first-appearance
// position within the meeting.
type speakerRecord struct {
	Label      string
	Name       string
	Confidence float64
	Order      int
}

// ContinuityTracker threads speaker identity and narrative context across the
// sequential chunk loop. The registry is append-only so speaker numbering
// stays stable no matter what later chunks report.
type ContinuityTracker struct {
	registry map[string]*speakerRecord
	order    []string
	recent   []ai.ContextSegment
}

// NewContinuityTracker creates an empty tracker for one job
func NewContinuityTracker() *ContinuityTracker {
	return &ContinuityTracker{
		registry: make(map[string]*speakerRecord),
	}
}

// Observe records one chunk's segments: new speaker labels are appended to
// the registry in first-appearance order and the recent-segment window is
// replaced with the chunk's tail. Timestamps must already carry the chunk
// offset so the context shows absolute positions.
func (t *ContinuityTracker) Observe(segments []ai.Segment) {
	for _, seg := range segments {
		rec, ok := t.registry[seg.SpeakerLabel]
		if !ok {
			rec = &speakerRecord{
				Label: seg.SpeakerLabel,
				Order: len(t.order) + 1,
			}
			t.registry[seg.SpeakerLabel] = rec
			t.order = append(t.order, seg.SpeakerLabel)
		}

		// A name only sticks when the provider saw explicit evidence, and a
		// recorded nonzero confidence is never overwritten. Flip-flopping a
		// name across chunks is worse than keeping the first attribution.
		if seg.NameEvidence && seg.SpeakerName != "" && rec.Confidence == 0 && seg.NameConfidence > 0 {
			rec.Name = seg.SpeakerName
			rec.Confidence = seg.NameConfidence
		}
	}

	start := len(segments) - contextWindow
	if start < 0 {
		start = 0
	}
	t.recent = t.recent[:0]
	for _, seg := range segments[start:] {
		t.recent = append(t.recent, ai.ContextSegment{
			Speaker: t.displayName(seg.SpeakerLabel),
			Start:   seg.Start,
			End:     seg.End,
			Text:    seg.Text,
		})
	}
}

// Context builds the continuity payload for the next chunk. Returns an empty
// context before anything has been observed.
func (t *ContinuityTracker) Context() *ai.ChunkContext {
	ctx := &ai.ChunkContext{}
	for _, label := range t.order {
		rec := t.registry[label]
		name := rec.Name
		if name == "" {
			name = "unknown"
		}
		ctx.Speakers = append(ctx.Speakers, ai.SpeakerRef{Label: label, Name: name})
	}
	ctx.RecentSegments = append(ctx.RecentSegments, t.recent...)
	return ctx
}

// Speakers returns the registry in first-appearance order
func (t *ContinuityTracker) Speakers() []speakerRecord {
	out := make([]speakerRecord, 0, len(t.order))
	for _, label := range t.order {
		out = append(out, *t.registry[label])
	}
	return out
}

// Order returns the first-appearance position of a label, or 0 if unknown
func (t *ContinuityTracker) Order(label string) int {
	if rec, ok := t.registry[label]; ok {
		return rec.Order
	}
	return 0
}

func (t *ContinuityTracker) displayName(label string) string {
	if rec, ok := t.registry[label]; ok && rec.Name != "" {
		return rec.Name
	}
	return label
}
