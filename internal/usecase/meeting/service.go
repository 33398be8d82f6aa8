package meeting

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/hoangnm-dev/meeting-scribe/errors"
	"github.com/hoangnm-dev/meeting-scribe/internal/domain/entities"
	"github.com/hoangnm-dev/meeting-scribe/internal/domain/repositories"
	"github.com/hoangnm-dev/meeting-scribe/internal/infrastructure/cache"
	"github.com/hoangnm-dev/meeting-scribe/internal/infrastructure/storage"
	"github.com/hoangnm-dev/meeting-scribe/internal/usecase/pipeline"
	"github.com/hoangnm-dev/meeting-scribe/internal/usecase/progress"
	"github.com/hoangnm-dev/meeting-scribe/internal/usecase/quota"
	"github.com/hoangnm-dev/meeting-scribe/pkg/config"
)

// allowedMimeTypes lists the audio containers the pipeline can process
var allowedMimeTypes = map[string]bool{
	"audio/mpeg": true,
	"audio/mp3":  true,
	"audio/mp4":  true,
	"audio/m4a":  true,
	"audio/x-m4a": true,
	"audio/wav":  true,
	"audio/x-wav": true,
	"audio/ogg":  true,
	"audio/webm": true,
	"video/mp4":  true,
	"video/webm": true,
}

// Detail is a meeting with everything the pipeline derived from it
type Detail struct {
	Meeting  *entities.Meeting
	Speakers []entities.Speaker
	Segments []entities.TranscriptSegment
	Minutes  *entities.MeetingMinutes
}

// Service handles meeting intake and reads. Writes past intake belong to the
// pipeline orchestrator.
type Service struct {
	meetingRepo  repositories.MeetingRepository
	speakerRepo  repositories.SpeakerRepository
	segmentRepo  repositories.SegmentRepository
	minutesRepo  repositories.MinutesRepository
	storage      *storage.MinIOClient
	sessions     *cache.UploadSessionStore
	ledger       *quota.Ledger
	orchestrator *pipeline.Orchestrator
	broadcaster  *progress.Broadcaster
	chunker      *pipeline.AudioChunker
	cfg          *config.Config
	logger       *zap.Logger
}

// NewService constructs the meeting service
func NewService(
	meetingRepo repositories.MeetingRepository,
	speakerRepo repositories.SpeakerRepository,
	segmentRepo repositories.SegmentRepository,
	minutesRepo repositories.MinutesRepository,
	store *storage.MinIOClient,
	sessions *cache.UploadSessionStore,
	ledger *quota.Ledger,
	orchestrator *pipeline.Orchestrator,
	broadcaster *progress.Broadcaster,
	cfg *config.Config,
	logger *zap.Logger,
) *Service {
	return &Service{
		meetingRepo:  meetingRepo,
		speakerRepo:  speakerRepo,
		segmentRepo:  segmentRepo,
		minutesRepo:  minutesRepo,
		storage:      store,
		sessions:     sessions,
		ledger:       ledger,
		orchestrator: orchestrator,
		broadcaster:  broadcaster,
		chunker: pipeline.NewAudioChunker(
			cfg.Pipeline.ChunkThresholdSec,
			cfg.Pipeline.ChunkDir,
			time.Duration(cfg.Pipeline.ChunkSweepAfterMin)*time.Minute,
			logger,
		),
		cfg:    cfg,
		logger: logger,
	}
}

// InitUpload opens a resumable upload session. The weekly quota count is
// checked up front so a user at the limit fails before sending any bytes.
func (s *Service) InitUpload(ctx context.Context, userID uuid.UUID, fileName, mimeType string, totalSize int64) (*cache.UploadSession, error) {
	if fileName == "" || totalSize <= 0 {
		return nil, apperrors.ErrInvalidArgument("file_name and total_size are required")
	}
	if !allowedMimeTypes[mimeType] {
		return nil, apperrors.ErrInvalidArgument(fmt.Sprintf("unsupported mime type %q", mimeType))
	}
	if err := s.ledger.Enforce(ctx, userID, 0); err != nil {
		return nil, err
	}

	session := &cache.UploadSession{
		ID:         uuid.New(),
		UserID:     userID,
		FileName:   fileName,
		MimeType:   mimeType,
		TotalSize:  totalSize,
		ObjectName: fmt.Sprintf("recordings/%s/%s%s", userID, uuid.New(), filepath.Ext(fileName)),
		CreatedAt:  time.Now(),
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, apperrors.ErrCacheFailed("session save", err)
	}
	return session, nil
}

// AppendChunk stages one upload part. Parts must arrive in order; the
// session's received byte count is the resume offset a client should use.
func (s *Service) AppendChunk(ctx context.Context, userID, sessionID uuid.UUID, part io.Reader) (*cache.UploadSession, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if err == cache.ErrSessionNotFound {
			return nil, apperrors.ErrUploadSessionExpired(sessionID.String())
		}
		return nil, apperrors.ErrCacheFailed("session load", err)
	}
	if session.UserID != userID {
		return nil, apperrors.ErrPermissionDenied("write to this upload session")
	}

	stagingPath := s.stagingPath(session)
	if err := os.MkdirAll(filepath.Dir(stagingPath), 0o755); err != nil {
		return nil, apperrors.ErrUploadFailed(err)
	}
	f, err := os.OpenFile(stagingPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, apperrors.ErrUploadFailed(err)
	}
	n, err := io.Copy(f, part)
	f.Close()
	if err != nil {
		return nil, apperrors.ErrUploadFailed(err)
	}

	session.ReceivedBytes += n
	if session.ReceivedBytes > session.TotalSize {
		os.Remove(stagingPath)
		_ = s.sessions.Delete(ctx, sessionID)
		return nil, apperrors.ErrUploadFailed(fmt.Errorf("received %d bytes, expected at most %d", session.ReceivedBytes, session.TotalSize))
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, apperrors.ErrCacheFailed("session save", err)
	}
	return session, nil
}

// CompleteUpload finalizes the session: the staged file is probed, quota is
// enforced against the real duration, the audio lands in object storage, and
// the transcription stage is enqueued. Quota is committed only after the
// meeting is accepted, so a rejected upload has no side effects.
func (s *Service) CompleteUpload(ctx context.Context, userID, sessionID uuid.UUID, title string) (*entities.Meeting, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if err == cache.ErrSessionNotFound {
			return nil, apperrors.ErrUploadSessionExpired(sessionID.String())
		}
		return nil, apperrors.ErrCacheFailed("session load", err)
	}
	if session.UserID != userID {
		return nil, apperrors.ErrPermissionDenied("complete this upload session")
	}
	if session.ReceivedBytes != session.TotalSize {
		return nil, apperrors.ErrUploadFailed(
			fmt.Errorf("upload incomplete: %d of %d bytes received", session.ReceivedBytes, session.TotalSize))
	}

	stagingPath := s.stagingPath(session)
	defer os.Remove(stagingPath)
	defer func() { _ = s.sessions.Delete(ctx, sessionID) }()

	return s.accept(ctx, userID, title, stagingPath, session.ObjectName, session.MimeType)
}

// DirectUpload accepts a small file in one request, bypassing sessions
func (s *Service) DirectUpload(ctx context.Context, userID uuid.UUID, title, fileName, mimeType string, body io.Reader) (*entities.Meeting, error) {
	if !allowedMimeTypes[mimeType] {
		return nil, apperrors.ErrInvalidArgument(fmt.Sprintf("unsupported mime type %q", mimeType))
	}
	if err := s.ledger.Enforce(ctx, userID, 0); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(s.cfg.Pipeline.ChunkDir, 0o755); err != nil {
		return nil, apperrors.ErrUploadFailed(err)
	}
	stagingPath := filepath.Join(s.cfg.Pipeline.ChunkDir, fmt.Sprintf("upload_%s%s", uuid.New(), filepath.Ext(fileName)))
	f, err := os.Create(stagingPath)
	if err != nil {
		return nil, apperrors.ErrUploadFailed(err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(stagingPath)
		return nil, apperrors.ErrUploadFailed(err)
	}
	f.Close()
	defer os.Remove(stagingPath)

	objectName := fmt.Sprintf("recordings/%s/%s%s", userID, uuid.New(), filepath.Ext(fileName))
	return s.accept(ctx, userID, title, stagingPath, objectName, mimeType)
}

// accept is the shared tail of both upload paths
func (s *Service) accept(ctx context.Context, userID uuid.UUID, title, stagingPath, objectName, mimeType string) (*entities.Meeting, error) {
	duration, err := s.chunker.ProbeDuration(ctx, stagingPath)
	if err != nil {
		return nil, apperrors.ErrUploadFailed(fmt.Errorf("could not read audio duration: %w", err))
	}
	if err := s.ledger.Enforce(ctx, userID, duration); err != nil {
		return nil, err
	}

	f, err := os.Open(stagingPath)
	if err != nil {
		return nil, apperrors.ErrUploadFailed(err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, apperrors.ErrUploadFailed(err)
	}
	if err := s.storage.UploadAudio(ctx, objectName, f, info.Size(), mimeType); err != nil {
		return nil, apperrors.ErrStorageFailed("upload recording", err)
	}

	if title == "" {
		title = fmt.Sprintf("Meeting %s", time.Now().Format("2006-01-02 15:04"))
	}
	m := entities.NewMeeting(userID, title, objectName, mimeType, duration)
	if err := s.meetingRepo.Create(ctx, m); err != nil {
		return nil, apperrors.ErrDBQueryFailed("meeting insert", err)
	}

	if err := s.orchestrator.Enqueue(ctx, m.ID, userID, entities.StageTranscription, entities.JobPayload{
		FileRef:          objectName,
		DurationSeconds:  duration,
		RedactionEnabled: s.cfg.Pipeline.RedactionEnabled,
	}); err != nil {
		return nil, err
	}

	if err := s.ledger.Commit(ctx, userID, duration); err != nil && s.logger != nil {
		// The job is already queued; a failed commit is an accounting gap,
		// not a reason to reject the upload.
		s.logger.Error("quota commit failed", zap.Error(err))
	}

	s.broadcaster.Publish(ctx, userID, m.ID, progress.StepUpload, progress.StatusCompleted, 100, "")
	if s.logger != nil {
		s.logger.Info("📥 Recording accepted",
			zap.String("meeting_id", m.ID.String()),
			zap.String("user_id", userID.String()),
			zap.Float64("duration_seconds", duration),
		)
	}
	return m, nil
}

// Get returns a meeting with its transcript and minutes
func (s *Service) Get(ctx context.Context, userID, meetingID uuid.UUID) (*Detail, error) {
	m, err := s.meetingRepo.FindByID(ctx, meetingID)
	if err != nil {
		return nil, apperrors.ErrDBQueryFailed("meeting lookup", err)
	}
	if m == nil {
		return nil, apperrors.ErrMeetingNotFound(meetingID.String())
	}
	if m.UserID != userID {
		return nil, apperrors.ErrPermissionDenied("view this meeting")
	}

	speakers, err := s.speakerRepo.ListByMeetingID(ctx, meetingID)
	if err != nil {
		return nil, apperrors.ErrDBQueryFailed("speaker list", err)
	}
	segments, err := s.segmentRepo.ListByMeetingID(ctx, meetingID)
	if err != nil {
		return nil, apperrors.ErrDBQueryFailed("segment list", err)
	}
	minutes, err := s.minutesRepo.FindByMeetingID(ctx, meetingID)
	if err != nil {
		return nil, apperrors.ErrDBQueryFailed("minutes lookup", err)
	}

	return &Detail{
		Meeting:  m,
		Speakers: speakers,
		Segments: segments,
		Minutes:  minutes,
	}, nil
}

// List returns the user's meetings, newest first
func (s *Service) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]entities.Meeting, error) {
	meetings, err := s.meetingRepo.ListByUserID(ctx, userID, limit, offset)
	if err != nil {
		return nil, apperrors.ErrDBQueryFailed("meeting list", err)
	}
	return meetings, nil
}

// QuotaRemaining reports how many uploads the user has left this week
func (s *Service) QuotaRemaining(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.ledger.Remaining(ctx, userID)
}

func (s *Service) stagingPath(session *cache.UploadSession) string {
	return filepath.Join(s.cfg.Pipeline.ChunkDir, "uploads", session.ID.String()+filepath.Ext(session.FileName))
}
