package pipeline

import (
	"fmt"
	"testing"

	"github.com/hoangnm-dev/meeting-scribe/pkg/ai"
)

func TestContinuity_EmptyBeforeFirstChunk(t *testing.T) {
	tracker := NewContinuityTracker()
	if !tracker.Context().IsEmpty() {
		t.Fatalf("expected empty context before any observation")
	}
}

func TestContinuity_RegistryIsAppendOnly(t *testing.T) {
	tracker := NewContinuityTracker()

	tracker.Observe([]ai.Segment{
		{SpeakerLabel: "speaker_1", Start: 0, End: 5, Text: "hello"},
		{SpeakerLabel: "speaker_2", Start: 5, End: 10, Text: "hi"},
	})
	// Second chunk only hears speaker_2 plus a newcomer.
	tracker.Observe([]ai.Segment{
		{SpeakerLabel: "speaker_2", Start: 1805, End: 1810, Text: "continuing"},
		{SpeakerLabel: "speaker_3", Start: 1810, End: 1815, Text: "joining"},
	})

	if got := tracker.Order("speaker_1"); got != 1 {
		t.Fatalf("speaker_1 order changed to %d", got)
	}
	if got := tracker.Order("speaker_2"); got != 2 {
		t.Fatalf("speaker_2 order changed to %d", got)
	}
	if got := tracker.Order("speaker_3"); got != 3 {
		t.Fatalf("speaker_3 should be third, got %d", got)
	}

	speakers := tracker.Speakers()
	if len(speakers) != 3 {
		t.Fatalf("expected 3 registry entries, got %d", len(speakers))
	}
}

func TestContinuity_ContextCarriesSpeakersAndRecentLines(t *testing.T) {
	tracker := NewContinuityTracker()
	tracker.Observe([]ai.Segment{
		{SpeakerLabel: "speaker_1", Start: 0, End: 5, Text: "opening remarks"},
	})

	ctx := tracker.Context()
	if ctx.IsEmpty() {
		t.Fatalf("expected non-empty context after first chunk")
	}
	if len(ctx.Speakers) != 1 || ctx.Speakers[0].Label != "speaker_1" {
		t.Fatalf("unexpected speakers: %+v", ctx.Speakers)
	}
	if ctx.Speakers[0].Name != "unknown" {
		t.Fatalf("unnamed speaker should render as unknown, got %q", ctx.Speakers[0].Name)
	}
	if len(ctx.RecentSegments) != 1 || ctx.RecentSegments[0].Text != "opening remarks" {
		t.Fatalf("unexpected recent segments: %+v", ctx.RecentSegments)
	}
}

func TestContinuity_RecentWindowIsBounded(t *testing.T) {
	tracker := NewContinuityTracker()

	var segs []ai.Segment
	for i := 0; i < 25; i++ {
		segs = append(segs, ai.Segment{
			SpeakerLabel: "speaker_1",
			Start:        float64(i),
			End:          float64(i + 1),
			Text:         fmt.Sprintf("line %d", i),
		})
	}
	tracker.Observe(segs)

	ctx := tracker.Context()
	if len(ctx.RecentSegments) != contextWindow {
		t.Fatalf("expected %d recent segments, got %d", contextWindow, len(ctx.RecentSegments))
	}
	if ctx.RecentSegments[0].Text != "line 15" {
		t.Fatalf("window should hold the chunk tail, got %q first", ctx.RecentSegments[0].Text)
	}
}

func TestContinuity_NamePromotionRequiresEvidence(t *testing.T) {
	tracker := NewContinuityTracker()

	// A name without evidence is a guess; it must not stick.
	tracker.Observe([]ai.Segment{
		{SpeakerLabel: "speaker_1", SpeakerName: "Alice", NameConfidence: 0.9, NameEvidence: false, Text: "a"},
	})
	if tracker.Speakers()[0].Name != "" {
		t.Fatalf("name without evidence must not be recorded")
	}

	tracker.Observe([]ai.Segment{
		{SpeakerLabel: "speaker_1", SpeakerName: "Alice", NameConfidence: 0.9, NameEvidence: true, Text: "hi, Alice here"},
	})
	if got := tracker.Speakers()[0].Name; got != "Alice" {
		t.Fatalf("expected Alice, got %q", got)
	}

	// A later chunk cannot overwrite an attributed name.
	tracker.Observe([]ai.Segment{
		{SpeakerLabel: "speaker_1", SpeakerName: "Bob", NameConfidence: 0.95, NameEvidence: true, Text: "b"},
	})
	if got := tracker.Speakers()[0].Name; got != "Alice" {
		t.Fatalf("attributed name was overwritten to %q", got)
	}
}

func TestContinuity_NamedSpeakerInRecentLines(t *testing.T) {
	tracker := NewContinuityTracker()
	tracker.Observe([]ai.Segment{
		{SpeakerLabel: "speaker_1", SpeakerName: "Alice", NameConfidence: 0.9, NameEvidence: true, Text: "intro"},
	})
	tracker.Observe([]ai.Segment{
		{SpeakerLabel: "speaker_1", Start: 1800, End: 1805, Text: "more"},
	})

	ctx := tracker.Context()
	if ctx.RecentSegments[0].Speaker != "Alice" {
		t.Fatalf("recent line should use the attributed name, got %q", ctx.RecentSegments[0].Speaker)
	}
}

func TestContinuity_OrderUnknownLabel(t *testing.T) {
	tracker := NewContinuityTracker()
	if got := tracker.Order("speaker_9"); got != 0 {
		t.Fatalf("expected 0 for unknown label, got %d", got)
	}
}
