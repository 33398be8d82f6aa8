package pipeline

import (
	"sort"

	"github.com/hoangnm-dev/meeting-scribe/internal/domain/entities"
)

const (
	// minSegmentDuration is the floor enforced on every emitted segment.
	minSegmentDuration = 0.5
	// corruptEndRepair replaces an end timestamp that precedes its start.
	corruptEndRepair = 5.0
)

// QualityReport counts the defects the normalizer repaired. Anomalies are not
// errors; they feed the meeting's quality score.
type QualityReport struct {
	TimestampAnomalies int
	OverlapsNudged     int
	ShortExtended      int
	Dropped            int
}

// SegmentNormalizer repairs ordering, overlap and out-of-range defects in the
// concatenated provider output. Deterministic and idempotent: running it on
// its own output changes nothing.
type SegmentNormalizer struct{}

// NewSegmentNormalizer creates a normalizer
func NewSegmentNormalizer() *SegmentNormalizer {
	return &SegmentNormalizer{}
}

// Normalize applies the repair passes in order: sort, negative clip,
// end<start repair, overlap nudge, minimum duration, range clamp. Segments
// pushed entirely past the audio duration are dropped.
func (n *SegmentNormalizer) Normalize(segments []entities.TranscriptSegment, audioDuration float64) ([]entities.TranscriptSegment, QualityReport) {
	report := QualityReport{}
	if len(segments) == 0 {
		return segments, report
	}

	out := make([]entities.TranscriptSegment, len(segments))
	copy(out, segments)

	// 1. Chronological order by start time.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime < out[j].StartTime
	})

	for i := range out {
		// 2. Negative timestamps cannot exist in the recording. Clip both
		// ends to 0 before the end<start repair so the passes agree.
		if out[i].StartTime < 0 {
			out[i].StartTime = 0
		}
		if out[i].EndTime < 0 {
			out[i].EndTime = 0
		}

		// 3. end<start means the provider emitted corrupted timestamps,
		// typically minute.second notation read as a float. Guessing the
		// intended value is riskier than a fixed repair window.
		if out[i].EndTime < out[i].StartTime {
			out[i].EndTime = out[i].StartTime + corruptEndRepair
			report.TimestampAnomalies++
		}

		// 4. Nudge overlapping starts forward to the previous end. Text is
		// never discarded, only shifted.
		if i > 0 && out[i].StartTime < out[i-1].EndTime {
			out[i].StartTime = out[i-1].EndTime
			if out[i].EndTime < out[i].StartTime {
				out[i].EndTime = out[i].StartTime + corruptEndRepair
			}
			report.OverlapsNudged++
		}

		// 5. Enforce the minimum duration by extending the end.
		if out[i].EndTime-out[i].StartTime < minSegmentDuration {
			out[i].EndTime = out[i].StartTime + minSegmentDuration
			report.ShortExtended++
		}
	}

	// 6. Clamp ends past the audio duration. Segments starting at or past
	// the boundary have nothing left to say and are dropped.
	kept := out[:0]
	for _, seg := range out {
		if audioDuration > 0 {
			if seg.StartTime >= audioDuration {
				report.Dropped++
				continue
			}
			if seg.EndTime > audioDuration {
				seg.EndTime = audioDuration
			}
		}
		kept = append(kept, seg)
	}

	return kept, report
}
