package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	apperrors "github.com/hoangnm-dev/meeting-scribe/errors"
	"github.com/hoangnm-dev/meeting-scribe/internal/domain/entities"
	"github.com/hoangnm-dev/meeting-scribe/pkg/ai"
)

// runEnhancement asks the provider for transcript corrections and speaker
// name attributions, then applies both.
func (o *Orchestrator) runEnhancement(ctx context.Context, job *entities.PipelineJob, meeting *entities.Meeting, token uuid.UUID) error {
	segments, speakers, err := o.loadTranscript(ctx, meeting.ID)
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return apperrors.ErrMeetingInvalidState(meeting.ID.String(), string(meeting.Status))
	}

	transcript := renderTranscript(segments, speakers, true)

	var result *ai.EnhanceResult
	err = ai.CallWithRetry(ctx, ai.DefaultBackoffPolicy(), func() error {
		out, perr := o.provider.Enhance(ctx, transcript)
		if perr != nil {
			return perr
		}
		result = out
		return nil
	}, nil)
	if err != nil {
		return apperrors.ErrTranscriptionFailed(err)
	}

	if err := o.applyCorrections(ctx, meeting, token, segments, result.Corrections); err != nil {
		return err
	}

	// Speaker names from enhancement follow the same promotion policy as the
	// chunk loop: a nonzero confidence already on record wins.
	promoted := 0
	for label, name := range result.SpeakerNames {
		order := speakerOrderFromLabel(label)
		if order == 0 || name == "" {
			continue
		}
		for i := range speakers {
			if speakers[i].FirstSeenOrder != order {
				continue
			}
			if speakers[i].PromoteName(name, 0.9) {
				if err := o.speakerRepo.Update(ctx, &speakers[i]); err != nil {
					return apperrors.ErrDBQueryFailed("speaker update", err)
				}
				promoted++
			}
		}
	}

	if o.logger != nil {
		o.logger.Info("✅ Enhancement stage complete",
			zap.String("meeting_id", meeting.ID.String()),
			zap.Int("corrections", len(result.Corrections)),
			zap.Int("names_promoted", promoted),
		)
	}
	return nil
}

// runRedaction removes personal data from the persisted transcript
func (o *Orchestrator) runRedaction(ctx context.Context, job *entities.PipelineJob, meeting *entities.Meeting, token uuid.UUID) error {
	segments, speakers, err := o.loadTranscript(ctx, meeting.ID)
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return apperrors.ErrMeetingInvalidState(meeting.ID.String(), string(meeting.Status))
	}

	transcript := renderTranscript(segments, speakers, true)

	var result *ai.RedactResult
	err = ai.CallWithRetry(ctx, ai.DefaultBackoffPolicy(), func() error {
		out, perr := o.provider.Redact(ctx, transcript)
		if perr != nil {
			return perr
		}
		result = out
		return nil
	}, nil)
	if err != nil {
		return apperrors.ErrTranscriptionFailed(err)
	}

	if err := o.applyCorrections(ctx, meeting, token, segments, result.RedactedSegments); err != nil {
		return err
	}

	if o.logger != nil {
		o.logger.Info("✅ Redaction stage complete",
			zap.String("meeting_id", meeting.ID.String()),
			zap.Int("redacted_segments", len(result.RedactedSegments)),
		)
	}
	return nil
}

// runMinutes generates structured minutes from the final transcript, saves
// them and exports a JSON artifact.
func (o *Orchestrator) runMinutes(ctx context.Context, job *entities.PipelineJob, meeting *entities.Meeting, token uuid.UUID) error {
	segments, speakers, err := o.loadTranscript(ctx, meeting.ID)
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return apperrors.ErrMeetingInvalidState(meeting.ID.String(), string(meeting.Status))
	}

	transcript := renderTranscript(segments, speakers, false)
	started := time.Now()

	var result *ai.MinutesResult
	err = ai.CallWithRetry(ctx, ai.DefaultBackoffPolicy(), func() error {
		out, perr := o.provider.GenerateMinutes(ctx, transcript)
		if perr != nil {
			return perr
		}
		result = out
		return nil
	}, nil)
	if err != nil {
		return apperrors.ErrMinutesFailed(err)
	}

	held, lerr := o.meetingRepo.HoldsLease(ctx, meeting.ID, token)
	if lerr != nil {
		return apperrors.ErrDBQueryFailed("lease check", lerr)
	}
	if !held {
		return apperrors.ErrStageLeaseLost(meeting.ID.String())
	}

	minutes := entities.NewMeetingMinutes(meeting.ID)
	minutes.ExecutiveSummary = result.ExecutiveSummary
	minutes.KeyPoints = mustJSON(result.KeyPoints)
	minutes.Decisions = mustJSON(result.Decisions)
	minutes.ActionItems = mustJSON(result.ActionItems)
	minutes.OpenQuestions = mustJSON(result.OpenQuestions)
	minutes.ProcessingTimeMs = int(time.Since(started).Milliseconds())

	if err := o.minutesRepo.Save(ctx, minutes); err != nil {
		return apperrors.ErrDBQueryFailed("minutes save", err)
	}

	// Best-effort artifact export; the DB row is the source of truth.
	if artifact, merr := json.MarshalIndent(minutes, "", "  "); merr == nil {
		objectName := fmt.Sprintf("minutes/%s.json", meeting.ID)
		if uerr := o.storage.UploadArtifact(ctx, objectName, artifact, "application/json"); uerr != nil {
			if o.logger != nil {
				o.logger.Warn("failed to export minutes artifact",
					zap.String("meeting_id", meeting.ID.String()),
					zap.Error(uerr),
				)
			}
		}
	}

	if o.logger != nil {
		o.logger.Info("✅ Minutes stage complete",
			zap.String("meeting_id", meeting.ID.String()),
			zap.Int("processing_time_ms", minutes.ProcessingTimeMs),
		)
	}
	return nil
}

// loadTranscript fetches the persisted segments and speakers for a meeting
func (o *Orchestrator) loadTranscript(ctx context.Context, meetingID uuid.UUID) ([]entities.TranscriptSegment, []entities.Speaker, error) {
	segments, err := o.segmentRepo.ListByMeetingID(ctx, meetingID)
	if err != nil {
		return nil, nil, apperrors.ErrDBQueryFailed("segment list", err)
	}
	speakers, err := o.speakerRepo.ListByMeetingID(ctx, meetingID)
	if err != nil {
		return nil, nil, apperrors.ErrDBQueryFailed("speaker list", err)
	}
	return segments, speakers, nil
}

// applyCorrections rewrites segment text by index, re-checking the lease
// before the first write.
func (o *Orchestrator) applyCorrections(ctx context.Context, meeting *entities.Meeting, token uuid.UUID, segments []entities.TranscriptSegment, corrections []ai.TextCorrection) error {
	if len(corrections) == 0 {
		return nil
	}

	held, err := o.meetingRepo.HoldsLease(ctx, meeting.ID, token)
	if err != nil {
		return apperrors.ErrDBQueryFailed("lease check", err)
	}
	if !held {
		return apperrors.ErrStageLeaseLost(meeting.ID.String())
	}

	for _, c := range corrections {
		if c.SegmentIndex < 0 || c.SegmentIndex >= len(segments) || c.Text == "" {
			continue
		}
		if err := o.segmentRepo.UpdateText(ctx, segments[c.SegmentIndex].ID, c.Text); err != nil {
			return apperrors.ErrDBQueryFailed("segment text update", err)
		}
	}
	return nil
}

// renderTranscript formats segments for a provider prompt. With indices the
// provider can address segments for correction; without, the text reads as a
// plain attributed transcript for minutes generation.
func renderTranscript(segments []entities.TranscriptSegment, speakers []entities.Speaker, withIndices bool) string {
	names := make(map[uuid.UUID]string, len(speakers))
	for _, sp := range speakers {
		names[sp.ID] = sp.DisplayName
	}

	var sb strings.Builder
	for i, seg := range segments {
		name := names[seg.SpeakerID]
		if name == "" {
			name = "Unknown"
		}
		if withIndices {
			sb.WriteString(fmt.Sprintf("[%d] %s (%.1f-%.1f): %s\n", i, name, seg.StartTime, seg.EndTime, seg.Text))
		} else {
			sb.WriteString(fmt.Sprintf("%s: %s\n", name, seg.Text))
		}
	}
	return sb.String()
}

// speakerOrderFromLabel parses "speaker_3" style labels into the registry
// order, 0 when unparseable.
func speakerOrderFromLabel(label string) int {
	idx := strings.LastIndexByte(label, '_')
	if idx < 0 || idx+1 >= len(label) {
		return 0
	}
	n, err := strconv.Atoi(label[idx+1:])
	if err != nil || n <= 0 {
		return 0
	}
	return n
}

func mustJSON(v interface{}) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(b)
}
