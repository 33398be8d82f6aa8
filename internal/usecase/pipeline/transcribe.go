package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	apperrors "github.com/hoangnm-dev/meeting-scribe/errors"
	"github.com/hoangnm-dev/meeting-scribe/internal/domain/entities"
	"github.com/hoangnm-dev/meeting-scribe/internal/usecase/progress"
	"github.com/hoangnm-dev/meeting-scribe/pkg/ai"
)

// runTranscription executes the transcription stage: download, chunk, the
// sequential per-chunk provider loop with continuity threading, normalization
// and persistence. Chunk transcription is deliberately sequential; chunk i+1
// needs chunk i's speakers and tail segments in its context.
func (o *Orchestrator) runTranscription(ctx context.Context, job *entities.PipelineJob, meeting *entities.Meeting, token uuid.UUID) error {
	localPath, err := o.downloadSource(ctx, job.Payload.FileRef)
	if err != nil {
		return err
	}
	defer os.Remove(localPath)

	duration := job.Payload.DurationSeconds
	if probed, perr := o.chunker.ProbeDuration(ctx, localPath); perr == nil && probed > 0 {
		duration = probed
	}

	chunks, err := o.chunker.Split(ctx, localPath, duration)
	if err != nil {
		return apperrors.ErrTranscriptionFailed(err)
	}
	defer o.chunker.Cleanup(chunks)

	tracker := NewContinuityTracker()
	var collected []ai.Segment
	failedChunks := 0
	policy := ai.DefaultBackoffPolicy()

	for i, chunk := range chunks {
		// Cooperative cancellation: checked at chunk boundaries only, an
		// in-flight provider call is allowed to finish.
		cancelled, cerr := o.cancels.IsRequested(ctx, meeting.ID.String())
		if cerr == nil && cancelled {
			return apperrors.ErrJobCancelled(meeting.ID.String())
		}

		held, lerr := o.meetingRepo.HoldsLease(ctx, meeting.ID, token)
		if lerr != nil {
			return apperrors.ErrDBQueryFailed("lease check", lerr)
		}
		if !held {
			return apperrors.ErrStageLeaseLost(meeting.ID.String())
		}

		req := ai.TranscribeRequest{
			LocalPath:       chunk.Path,
			MimeType:        meeting.MimeType,
			ChunkIndex:      chunk.Index,
			TimestampOffset: chunk.StartOffset,
		}
		if i > 0 {
			req.Context = tracker.Context()
		}

		var segments []ai.Segment
		callErr := ai.CallWithRetry(ctx, policy, func() error {
			out, terr := o.provider.Transcribe(ctx, req)
			if terr != nil {
				return terr
			}
			segments = out
			return nil
		}, func(attempt int, delay time.Duration, rerr error) {
			o.broadcaster.Publish(ctx, meeting.UserID, meeting.ID,
				progress.StepTranscription, progress.StatusRetrying,
				chunkProgress(i, len(chunks)), rerr.Error())
			if o.logger != nil {
				o.logger.Warn("🔁 Chunk transcription retrying",
					zap.String("meeting_id", meeting.ID.String()),
					zap.Int("chunk_index", chunk.Index),
					zap.Int("attempt", attempt),
					zap.Duration("delay", delay),
					zap.Error(rerr),
				)
			}
		})
		if callErr != nil {
			// One bad chunk must not lose the whole recording. Record the
			// failure and keep going; the half-failed rule decides later.
			failedChunks++
			if o.logger != nil {
				o.logger.Error("❌ Chunk failed after retries",
					zap.String("meeting_id", meeting.ID.String()),
					zap.Int("chunk_index", chunk.Index),
					zap.Error(callErr),
				)
			}
			continue
		}

		// Shift chunk-relative timestamps to absolute before the tracker sees
		// them, so the context shows real positions.
		for j := range segments {
			segments[j].Start += chunk.StartOffset
			segments[j].End += chunk.StartOffset
		}
		tracker.Observe(segments)
		collected = append(collected, segments...)

		o.broadcaster.Publish(ctx, meeting.UserID, meeting.ID,
			progress.StepTranscription, progress.StatusProcessing,
			chunkProgress(i+1, len(chunks)), "")
	}

	maxFailureRate := o.cfg.Pipeline.MaxChunkFailureRate
	if maxFailureRate <= 0 {
		maxFailureRate = 0.5
	}
	if float64(failedChunks) > maxFailureRate*float64(len(chunks)) {
		return apperrors.ErrTranscriptionFailed(
			fmt.Errorf("%d of %d chunks failed", failedChunks, len(chunks)))
	}
	if len(collected) == 0 {
		return apperrors.ErrTranscriptionFailed(fmt.Errorf("provider returned no segments"))
	}

	// A previous attempt may have persisted speakers or segments before
	// failing; the unique (meeting_id, display_name) index would reject the
	// re-insert. Clear both so every attempt writes a fresh set.
	if err := o.speakerRepo.DeleteByMeetingID(ctx, meeting.ID); err != nil {
		return apperrors.ErrDBQueryFailed("speaker cleanup", err)
	}
	if err := o.segmentRepo.DeleteByMeetingID(ctx, meeting.ID); err != nil {
		return apperrors.ErrDBQueryFailed("segment cleanup", err)
	}

	speakerIDs, avgConfidence, err := o.persistSpeakers(ctx, meeting.ID, tracker)
	if err != nil {
		return err
	}

	rows := make([]entities.TranscriptSegment, 0, len(collected))
	inaudible := 0
	for _, seg := range collected {
		if seg.Inaudible {
			inaudible++
		}
		rows = append(rows, entities.TranscriptSegment{
			ID:            uuid.New(),
			MeetingID:     meeting.ID,
			SpeakerID:     speakerIDs[seg.SpeakerLabel],
			StartTime:     seg.Start,
			EndTime:       seg.End,
			Text:          seg.Text,
			LanguagesUsed: datatypes.JSONSlice[string](seg.Languages),
		})
	}

	normalized, report := o.normalizer.Normalize(rows, duration)
	if err := o.segmentRepo.CreateBatch(ctx, normalized); err != nil {
		return apperrors.ErrDBQueryFailed("segment batch insert", err)
	}

	score := qualityScore(len(chunks), failedChunks, len(normalized), report, inaudible)
	if err := o.meetingRepo.UpdateMetrics(ctx, meeting.ID, score, inaudible, avgConfidence); err != nil {
		return apperrors.ErrDBQueryFailed("metrics update", err)
	}

	if o.logger != nil {
		o.logger.Info("✅ Transcription stage complete",
			zap.String("meeting_id", meeting.ID.String()),
			zap.Int("segments", len(normalized)),
			zap.Int("failed_chunks", failedChunks),
			zap.Int("timestamp_anomalies", report.TimestampAnomalies),
			zap.Float64("quality_score", score),
		)
	}
	return nil
}

// downloadSource fetches the recording to a local temp file. Transient
// storage hiccups are retried; a missing object surfaces as FILE_MISSING so
// the client can prompt re-upload instead of blindly retrying.
func (o *Orchestrator) downloadSource(ctx context.Context, fileRef string) (string, error) {
	if fileRef == "" {
		return "", apperrors.ErrFileMissing(fileRef)
	}

	if err := os.MkdirAll(o.cfg.Pipeline.ChunkDir, 0o755); err != nil {
		return "", apperrors.ErrStorageFailed("prepare work dir", err)
	}
	localPath := filepath.Join(o.cfg.Pipeline.ChunkDir,
		fmt.Sprintf("source_%s%s", uuid.New().String(), filepath.Ext(fileRef)))

	if _, err := o.storage.StatAudio(ctx, fileRef); err != nil {
		return "", apperrors.ErrFileMissing(fileRef)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 2 * time.Second
	bo.MaxInterval = 10 * time.Second
	bo.MaxElapsedTime = 30 * time.Second

	downloadFn := func() error {
		_, err := o.storage.DownloadAudio(ctx, fileRef, localPath)
		return err
	}
	if err := backoff.Retry(downloadFn, backoff.WithContext(bo, ctx)); err != nil {
		os.Remove(localPath)
		return "", apperrors.ErrStorageFailed("download recording", err)
	}
	return localPath, nil
}

// persistSpeakers writes the tracker's registry and returns the label to
// speaker-id mapping plus the mean confidence of attributed names.
func (o *Orchestrator) persistSpeakers(ctx context.Context, meetingID uuid.UUID, tracker *ContinuityTracker) (map[string]uuid.UUID, float64, error) {
	ids := make(map[string]uuid.UUID)
	var confSum float64
	var confN int

	for _, rec := range tracker.Speakers() {
		speaker := entities.NewSpeaker(meetingID, rec.Order)
		if rec.Name != "" {
			speaker.PromoteName(rec.Name, rec.Confidence)
			confSum += rec.Confidence
			confN++
		}
		if err := o.speakerRepo.Create(ctx, speaker); err != nil {
			return nil, 0, apperrors.ErrDBQueryFailed("speaker insert", err)
		}
		ids[rec.Label] = speaker.ID
	}

	avg := 0.0
	if confN > 0 {
		avg = confSum / float64(confN)
	}
	return ids, avg, nil
}

// chunkProgress maps chunk completion onto the 10..90 band; the edges are
// reserved for queueing and persistence.
func chunkProgress(done, total int) int {
	if total <= 0 {
		return 10
	}
	return 10 + (80*done)/total
}

// qualityScore folds chunk failures, timestamp anomalies and inaudible spans
// into one 0..1 signal. Absorbed defects lower the score instead of failing
// the job.
func qualityScore(totalChunks, failedChunks, totalSegments int, report QualityReport, inaudible int) float64 {
	score := 1.0
	if totalChunks > 0 {
		score -= 0.5 * float64(failedChunks) / float64(totalChunks)
	}
	if totalSegments > 0 {
		score -= 0.2 * float64(report.TimestampAnomalies) / float64(totalSegments)
		score -= 0.2 * float64(inaudible) / float64(totalSegments)
	}
	if score < 0 {
		return 0
	}
	return score
}
