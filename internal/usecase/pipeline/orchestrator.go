package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/hoangnm-dev/meeting-scribe/errors"
	"github.com/hoangnm-dev/meeting-scribe/internal/domain/entities"
	"github.com/hoangnm-dev/meeting-scribe/internal/domain/repositories"
	"github.com/hoangnm-dev/meeting-scribe/internal/infrastructure/cache"
	"github.com/hoangnm-dev/meeting-scribe/internal/usecase/progress"
	"github.com/hoangnm-dev/meeting-scribe/internal/usecase/quota"
	"github.com/hoangnm-dev/meeting-scribe/pkg/ai"
	"github.com/hoangnm-dev/meeting-scribe/pkg/config"
	"github.com/hoangnm-dev/meeting-scribe/pkg/jobcontext"
	"github.com/hoangnm-dev/meeting-scribe/pkg/notify"
)

// ObjectStore is the slice of object storage the pipeline needs
type ObjectStore interface {
	StatAudio(ctx context.Context, objectName string) (int64, error)
	DownloadAudio(ctx context.Context, objectName, localPath string) (int64, error)
	UploadArtifact(ctx context.Context, objectName string, content []byte, contentType string) error
}

// Orchestrator drives the meeting status machine across the pipeline stages.
// Each stage runs on its own worker pool with bounded concurrency; within one
// job, work is strictly sequential.
type Orchestrator struct {
	meetingRepo repositories.MeetingRepository
	speakerRepo repositories.SpeakerRepository
	segmentRepo repositories.SegmentRepository
	jobRepo     repositories.PipelineJobRepository
	minutesRepo repositories.MinutesRepository

	provider    ai.TranscriptionProvider
	storage     ObjectStore
	chunker     *AudioChunker
	normalizer  *SegmentNormalizer
	cancels     *cache.CancelFlags
	broadcaster *progress.Broadcaster
	ledger      *quota.Ledger
	notifier    *notify.Notifier

	cfg    *config.Config
	logger *zap.Logger

	workerStopChan chan struct{}
	workerWg       sync.WaitGroup
	running        bool
	workerMutex    sync.Mutex
}

// NewOrchestrator constructs the pipeline orchestrator
func NewOrchestrator(
	meetingRepo repositories.MeetingRepository,
	speakerRepo repositories.SpeakerRepository,
	segmentRepo repositories.SegmentRepository,
	jobRepo repositories.PipelineJobRepository,
	minutesRepo repositories.MinutesRepository,
	provider ai.TranscriptionProvider,
	store ObjectStore,
	cancels *cache.CancelFlags,
	broadcaster *progress.Broadcaster,
	ledger *quota.Ledger,
	notifier *notify.Notifier,
	cfg *config.Config,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		meetingRepo: meetingRepo,
		speakerRepo: speakerRepo,
		segmentRepo: segmentRepo,
		jobRepo:     jobRepo,
		minutesRepo: minutesRepo,
		provider:    provider,
		storage:     store,
		chunker: NewAudioChunker(
			cfg.Pipeline.ChunkThresholdSec,
			cfg.Pipeline.ChunkDir,
			time.Duration(cfg.Pipeline.ChunkSweepAfterMin)*time.Minute,
			logger,
		),
		normalizer:  NewSegmentNormalizer(),
		cancels:     cancels,
		broadcaster: broadcaster,
		ledger:      ledger,
		notifier:    notifier,
		cfg:         cfg,
		logger:      logger,
	}
}

// StartWorkerPool starts the per-stage worker pools and the chunk sweeper
func (o *Orchestrator) StartWorkerPool(ctx context.Context) error {
	o.workerMutex.Lock()
	defer o.workerMutex.Unlock()

	if o.running {
		return fmt.Errorf("worker pool already running")
	}
	o.running = true
	o.workerStopChan = make(chan struct{})

	pools := []struct {
		stage entities.PipelineStage
		count int
	}{
		{entities.StageTranscription, o.cfg.Pipeline.TranscribeWorkers},
		{entities.StageEnhancement, o.cfg.Pipeline.EnhanceWorkers},
		{entities.StageRedaction, o.cfg.Pipeline.EnhanceWorkers},
		{entities.StageMinutes, o.cfg.Pipeline.MinutesWorkers},
	}

	if o.logger != nil {
		o.logger.Info("🚀 Starting pipeline worker pools",
			zap.Int("transcribe_workers", o.cfg.Pipeline.TranscribeWorkers),
			zap.Int("enhance_workers", o.cfg.Pipeline.EnhanceWorkers),
			zap.Int("minutes_workers", o.cfg.Pipeline.MinutesWorkers),
		)
	}

	for _, pool := range pools {
		for i := 0; i < pool.count; i++ {
			o.workerWg.Add(1)
			go o.stageWorker(ctx, pool.stage, i)
		}
	}

	o.workerWg.Add(1)
	go o.sweepWorker()

	return nil
}

// StopWorkerPool gracefully stops all workers
func (o *Orchestrator) StopWorkerPool() error {
	o.workerMutex.Lock()
	defer o.workerMutex.Unlock()

	if !o.running {
		return fmt.Errorf("worker pool not running")
	}

	if o.logger != nil {
		o.logger.Info("🛑 Stopping pipeline worker pools...")
	}

	close(o.workerStopChan)
	o.workerWg.Wait()
	o.running = false

	if o.logger != nil {
		o.logger.Info("✅ Pipeline worker pools stopped")
	}
	return nil
}

// stageWorker polls one stage's queue and executes claimed jobs
func (o *Orchestrator) stageWorker(parentCtx context.Context, stage entities.PipelineStage, workerID int) {
	defer o.workerWg.Done()

	interval := time.Duration(o.cfg.Pipeline.PollIntervalSec) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-o.workerStopChan:
			return
		case <-ticker.C:
			job, err := o.jobRepo.ClaimNextWaiting(parentCtx, stage)
			if err != nil {
				if o.logger != nil {
					o.logger.Error("❌ Failed to claim job",
						zap.String("stage", string(stage)),
						zap.Int("worker_id", workerID),
						zap.Error(err),
					)
				}
				continue
			}
			if job == nil {
				continue
			}
			o.executeJob(parentCtx, job, workerID)
		}
	}
}

// sweepWorker periodically removes chunk files orphaned by crashed jobs
func (o *Orchestrator) sweepWorker() {
	defer o.workerWg.Done()

	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-o.workerStopChan:
			return
		case <-ticker.C:
			o.chunker.Sweep()
		}
	}
}

// leaseSources lists the meeting statuses a stage may legally take over from.
// A stage's own processing status is included so a requeued retry can
// re-acquire after a previous attempt already transitioned the row.
func leaseSources(stage entities.PipelineStage) (entities.MeetingStatus, []entities.MeetingStatus) {
	switch stage {
	case entities.StageTranscription:
		return entities.MeetingStatusProcessingTranscript, []entities.MeetingStatus{
			entities.MeetingStatusUploaded,
			entities.MeetingStatusFailed,
			entities.MeetingStatusCancelled,
			entities.MeetingStatusProcessingTranscript,
		}
	case entities.StageEnhancement:
		return entities.MeetingStatusProcessingEnhancement, []entities.MeetingStatus{
			entities.MeetingStatusTranscriptReady,
			entities.MeetingStatusProcessingEnhancement,
		}
	case entities.StageRedaction:
		return entities.MeetingStatusProcessingRedaction, []entities.MeetingStatus{
			entities.MeetingStatusProcessingEnhancement,
			entities.MeetingStatusProcessingRedaction,
		}
	default:
		return entities.MeetingStatusProcessingMinutes, []entities.MeetingStatus{
			entities.MeetingStatusTranscriptReady,
			entities.MeetingStatusProcessingEnhancement,
			entities.MeetingStatusProcessingRedaction,
			entities.MeetingStatusProcessingMinutes,
			entities.MeetingStatusFailed,
		}
	}
}

func stageStep(stage entities.PipelineStage) progress.Step {
	switch stage {
	case entities.StageTranscription:
		return progress.StepTranscription
	case entities.StageEnhancement:
		return progress.StepEnhancement
	case entities.StageRedaction:
		return progress.StepRedaction
	default:
		return progress.StepMinutes
	}
}

// executeJob runs one claimed job through lease acquisition, the stage
// function and the completion/failure bookkeeping.
func (o *Orchestrator) executeJob(parentCtx context.Context, job *entities.PipelineJob, workerID int) {
	ctx, cancel := jobcontext.JobBegin(parentCtx, job.ID, string(job.Stage), workerID)
	defer cancel()

	step := stageStep(job.Stage)

	meeting, err := o.meetingRepo.FindByID(ctx, job.MeetingID)
	if err != nil || meeting == nil {
		_ = o.jobRepo.MarkFailed(ctx, job.ID, "meeting not found")
		return
	}

	if err := job.Payload.ValidateFor(job.Stage); err != nil {
		o.failJob(ctx, job, meeting, step, apperrors.ErrInvalidArgument(err.Error()))
		return
	}

	// Cancellation requested while the job sat in the queue.
	if cancelled, cerr := o.cancels.IsRequested(ctx, meeting.ID.String()); cerr == nil && cancelled {
		o.cancelJob(ctx, job, meeting, step)
		return
	}

	// Fencing: write our token into the meeting row before touching anything.
	// Losing this race means another worker owns the meeting; back off without
	// side effects.
	token := uuid.New()
	toStatus, fromStatuses := leaseSources(job.Stage)
	acquired := false
	for _, from := range fromStatuses {
		ok, lerr := o.meetingRepo.AcquireLease(ctx, meeting.ID, token, from, toStatus)
		if lerr != nil {
			o.failJob(ctx, job, meeting, step, apperrors.ErrDBQueryFailed("lease acquire", lerr))
			return
		}
		if ok {
			acquired = true
			break
		}
	}
	if !acquired {
		_ = o.jobRepo.MarkFailed(ctx, job.ID,
			fmt.Sprintf("meeting %s not in a claimable state for stage %s", meeting.ID, job.Stage))
		return
	}
	meeting.Status = toStatus

	o.broadcaster.Publish(ctx, meeting.UserID, meeting.ID, step, progress.StatusProcessing, 5, "")
	if o.logger != nil {
		o.logger.Info("👷 Worker claimed job",
			zap.Int("worker_id", workerID),
			zap.String("stage", string(job.Stage)),
			zap.String("job_id", job.ID.String()),
			zap.String("meeting_id", meeting.ID.String()),
			zap.Int("attempt", job.AttemptCount),
		)
	}

	var stageErr error
	func() {
		defer func() {
			if p := recover(); p != nil {
				stageErr = fmt.Errorf("panic recovered: %v", p)
			}
		}()
		switch job.Stage {
		case entities.StageTranscription:
			stageErr = o.runTranscription(ctx, job, meeting, token)
		case entities.StageEnhancement:
			stageErr = o.runEnhancement(ctx, job, meeting, token)
		case entities.StageRedaction:
			stageErr = o.runRedaction(ctx, job, meeting, token)
		case entities.StageMinutes:
			stageErr = o.runMinutes(ctx, job, meeting, token)
		default:
			stageErr = fmt.Errorf("unknown stage %q", job.Stage)
		}
	}()

	if stageErr == nil {
		o.completeJob(ctx, job, meeting, step)
		return
	}

	var appErr apperrors.AppError
	if errors.As(stageErr, &appErr) {
		switch appErr.Code {
		case apperrors.ErrorCode_JOB_CANCELLED:
			o.cancelJob(ctx, job, meeting, step)
			return
		case apperrors.ErrorCode_STAGE_LEASE_LOST:
			// Another worker is authoritative now; fail only our job record.
			_ = o.jobRepo.MarkFailed(ctx, job.ID, stageErr.Error())
			return
		case apperrors.ErrorCode_FILE_MISSING, apperrors.ErrorCode_PROVIDER_PERMANENT,
			apperrors.ErrorCode_INVALID_ARGUMENT, apperrors.ErrorCode_MEETING_INVALID_STATE:
			o.failJob(ctx, job, meeting, step, stageErr)
			return
		}
	}

	if job.HasAttemptsLeft() {
		o.requeueJob(ctx, job, meeting, step, stageErr)
		return
	}
	o.failJob(ctx, job, meeting, step, stageErr)
}

// completeJob records success, advances the meeting status at stage
// boundaries and auto-enqueues the next stage.
func (o *Orchestrator) completeJob(ctx context.Context, job *entities.PipelineJob, meeting *entities.Meeting, step progress.Step) {
	if err := o.jobRepo.MarkCompleted(ctx, job.ID); err != nil && o.logger != nil {
		o.logger.Error("failed to mark job completed", zap.Error(err))
	}

	switch job.Stage {
	case entities.StageTranscription:
		_ = o.meetingRepo.UpdateStatus(ctx, meeting.ID, entities.MeetingStatusTranscriptReady, nil)
	case entities.StageMinutes:
		_ = o.meetingRepo.UpdateStatus(ctx, meeting.ID, entities.MeetingStatusCompleted, nil)
	}

	o.broadcaster.Publish(ctx, meeting.UserID, meeting.ID, step, progress.StatusCompleted, 100, "")

	if job.Stage == entities.StageMinutes {
		o.notifier.PipelineCompleted(ctx, meeting.UserID, meeting.ID, meeting.Title)
		return
	}

	if job.Payload.SkipDownstream {
		return
	}
	next := o.nextStage(job)
	if next == "" {
		return
	}
	if err := o.Enqueue(ctx, meeting.ID, job.UserID, next, entities.JobPayload{
		RedactionEnabled: job.Payload.RedactionEnabled,
	}); err != nil && o.logger != nil {
		o.logger.Error("failed to enqueue next stage",
			zap.String("meeting_id", meeting.ID.String()),
			zap.String("next_stage", string(next)),
			zap.Error(err),
		)
	}
}

// nextStage returns the stage that follows this job, skipping redaction when
// it was not requested.
func (o *Orchestrator) nextStage(job *entities.PipelineJob) entities.PipelineStage {
	switch job.Stage {
	case entities.StageTranscription:
		return entities.StageEnhancement
	case entities.StageEnhancement:
		if job.Payload.RedactionEnabled {
			return entities.StageRedaction
		}
		return entities.StageMinutes
	case entities.StageRedaction:
		return entities.StageMinutes
	}
	return ""
}

// requeueJob puts the job back in the queue after a stage-level backoff.
// The sleep blocks only this worker slot.
func (o *Orchestrator) requeueJob(ctx context.Context, job *entities.PipelineJob, meeting *entities.Meeting, step progress.Step, stageErr error) {
	base := time.Duration(o.cfg.Pipeline.StageBackoffBaseSec) * time.Second
	if base <= 0 {
		base = 5 * time.Second
	}
	delay := base * time.Duration(1<<uint(job.AttemptCount-1))

	o.broadcaster.Publish(ctx, meeting.UserID, meeting.ID, step, progress.StatusRetrying, 0, stageErr.Error())
	if o.logger != nil {
		o.logger.Warn("🔁 Stage failed, requeueing",
			zap.String("job_id", job.ID.String()),
			zap.String("stage", string(job.Stage)),
			zap.Int("attempt", job.AttemptCount),
			zap.Duration("backoff", delay),
			zap.Error(stageErr),
		)
	}

	select {
	case <-o.workerStopChan:
		// Shutting down; leave the job waiting for the next process.
	case <-ctx.Done():
	case <-time.After(delay):
	}

	if err := o.jobRepo.RequeueForRetry(ctx, job.ID, stageErr.Error()); err != nil && o.logger != nil {
		o.logger.Error("failed to requeue job", zap.Error(err))
	}
}

// failJob records a terminal stage failure: job failed, meeting FAILED,
// quota reconciled, subscribers and the user notified.
func (o *Orchestrator) failJob(ctx context.Context, job *entities.PipelineJob, meeting *entities.Meeting, step progress.Step, stageErr error) {
	reason := stageErr.Error()
	_ = o.jobRepo.MarkFailed(ctx, job.ID, reason)
	_ = o.meetingRepo.UpdateStatus(ctx, meeting.ID, entities.MeetingStatusFailed, &reason)

	if err := o.ledger.Reconcile(ctx, meeting.UserID, meeting.DurationSeconds); err != nil && o.logger != nil {
		o.logger.Error("quota reconcile failed", zap.Error(err))
	}

	o.broadcaster.Publish(ctx, meeting.UserID, meeting.ID, step, progress.StatusFailed, 0, reason)
	o.notifier.PipelineFailed(ctx, meeting.UserID, meeting.ID, meeting.Title, reason)

	if o.logger != nil {
		o.logger.Error("❌ Pipeline stage failed terminally",
			zap.String("job_id", job.ID.String()),
			zap.String("meeting_id", meeting.ID.String()),
			zap.String("stage", string(job.Stage)),
			zap.String("reason", reason),
		)
	}
}

// cancelJob honors a cooperative cancellation request
func (o *Orchestrator) cancelJob(ctx context.Context, job *entities.PipelineJob, meeting *entities.Meeting, step progress.Step) {
	reason := "cancelled by user"
	_ = o.jobRepo.MarkFailed(ctx, job.ID, reason)
	_ = o.meetingRepo.UpdateStatus(ctx, meeting.ID, entities.MeetingStatusCancelled, &reason)
	_ = o.cancels.Clear(ctx, meeting.ID.String())

	o.broadcaster.Publish(ctx, meeting.UserID, meeting.ID, step, progress.StatusCancelled, 0, reason)

	if o.logger != nil {
		o.logger.Info("🚫 Job cancelled",
			zap.String("job_id", job.ID.String()),
			zap.String("meeting_id", meeting.ID.String()),
		)
	}
}

// Enqueue appends a unit of work for a stage. At most one open (waiting or
// active) unit per meeting per stage; duplicates are dropped silently so the
// call is idempotent.
func (o *Orchestrator) Enqueue(ctx context.Context, meetingID, userID uuid.UUID, stage entities.PipelineStage, payload entities.JobPayload) error {
	if !stage.Valid() {
		return apperrors.ErrInvalidArgument(fmt.Sprintf("unknown stage %q", stage))
	}
	if err := payload.ValidateFor(stage); err != nil {
		return apperrors.ErrInvalidArgument(err.Error())
	}

	open, err := o.jobRepo.HasOpenJob(ctx, meetingID, stage)
	if err != nil {
		return apperrors.ErrDBQueryFailed("open job check", err)
	}
	if open {
		return nil
	}

	job := entities.NewPipelineJob(meetingID, userID, stage, payload)
	job.MaxAttempts = o.cfg.Pipeline.MaxStageAttempts
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = 3
	}
	if err := o.jobRepo.Create(ctx, job); err != nil {
		return apperrors.ErrDBQueryFailed("job insert", err)
	}

	o.broadcaster.Publish(ctx, userID, meetingID, stageStep(stage), progress.StatusQueued, 0, "")
	return nil
}

// Retry is an idempotent resume: it inspects persisted state and does the
// minimal work to finish the meeting instead of recomputing from scratch.
func (o *Orchestrator) Retry(ctx context.Context, meetingID, userID uuid.UUID) error {
	meeting, err := o.meetingRepo.FindByID(ctx, meetingID)
	if err != nil {
		return apperrors.ErrDBQueryFailed("meeting lookup", err)
	}
	if meeting == nil {
		return apperrors.ErrMeetingNotFound(meetingID.String())
	}
	if meeting.UserID != userID {
		return apperrors.ErrPermissionDenied("retry this meeting")
	}
	if meeting.IsProcessing() {
		return apperrors.ErrMeetingInvalidState(meetingID.String(), string(meeting.Status))
	}

	segmentCount, err := o.segmentRepo.CountByMeetingID(ctx, meetingID)
	if err != nil {
		return apperrors.ErrDBQueryFailed("segment count", err)
	}
	minutes, err := o.minutesRepo.FindByMeetingID(ctx, meetingID)
	if err != nil {
		return apperrors.ErrDBQueryFailed("minutes lookup", err)
	}

	_ = o.cancels.Clear(ctx, meetingID.String())

	switch {
	case segmentCount > 0 && minutes != nil:
		// Everything already exists; the failure was bookkeeping. Settle the
		// status and recompute nothing.
		return o.meetingRepo.UpdateStatus(ctx, meetingID, entities.MeetingStatusCompleted, nil)

	case segmentCount > 0:
		// Transcript survived; jump straight to minutes.
		return o.Enqueue(ctx, meetingID, userID, entities.StageMinutes, entities.JobPayload{
			SkipDownstream: true,
		})

	default:
		// Full restart. Fail fast if the source audio is gone so the client
		// can prompt a re-upload.
		if _, serr := o.storage.StatAudio(ctx, meeting.FileRef); serr != nil {
			reason := "source audio file is no longer available"
			_ = o.meetingRepo.UpdateStatus(ctx, meetingID, entities.MeetingStatusFailed, &reason)
			return apperrors.ErrFileMissing(meeting.FileRef)
		}
		if derr := o.segmentRepo.DeleteByMeetingID(ctx, meetingID); derr != nil {
			return apperrors.ErrDBQueryFailed("segment cleanup", derr)
		}
		if derr := o.speakerRepo.DeleteByMeetingID(ctx, meetingID); derr != nil {
			return apperrors.ErrDBQueryFailed("speaker cleanup", derr)
		}
		return o.Enqueue(ctx, meetingID, userID, entities.StageTranscription, entities.JobPayload{
			FileRef:          meeting.FileRef,
			DurationSeconds:  meeting.DurationSeconds,
			RedactionEnabled: o.cfg.Pipeline.RedactionEnabled,
		})
	}
}

// Cancel removes queued work and signals cooperative cancellation to running
// work. The meeting becomes CANCELLED either way.
func (o *Orchestrator) Cancel(ctx context.Context, meetingID, userID uuid.UUID) error {
	meeting, err := o.meetingRepo.FindByID(ctx, meetingID)
	if err != nil {
		return apperrors.ErrDBQueryFailed("meeting lookup", err)
	}
	if meeting == nil {
		return apperrors.ErrMeetingNotFound(meetingID.String())
	}
	if meeting.UserID != userID {
		return apperrors.ErrPermissionDenied("cancel this meeting")
	}
	if meeting.Status == entities.MeetingStatusCompleted {
		return apperrors.ErrMeetingInvalidState(meetingID.String(), string(meeting.Status))
	}

	removed, err := o.jobRepo.CancelWaiting(ctx, meetingID)
	if err != nil {
		return apperrors.ErrDBQueryFailed("cancel waiting jobs", err)
	}

	active, err := o.jobRepo.ListActiveByMeetingID(ctx, meetingID)
	if err != nil {
		return apperrors.ErrDBQueryFailed("active job lookup", err)
	}
	if len(active) > 0 {
		// A worker is mid-stage; it checks the flag at the next chunk or
		// stage boundary and finishes the cancellation itself.
		if err := o.cancels.Request(ctx, meetingID.String()); err != nil {
			return apperrors.ErrCacheFailed("cancel flag", err)
		}
	} else {
		reason := "cancelled by user"
		if err := o.meetingRepo.UpdateStatus(ctx, meetingID, entities.MeetingStatusCancelled, &reason); err != nil {
			return apperrors.ErrDBQueryFailed("status update", err)
		}
		o.broadcaster.Publish(ctx, userID, meetingID, progress.StepTranscription, progress.StatusCancelled, 0, reason)
	}

	if o.logger != nil {
		o.logger.Info("🚫 Cancellation requested",
			zap.String("meeting_id", meetingID.String()),
			zap.Int64("queued_jobs_removed", removed),
			zap.Int("active_jobs_signalled", len(active)),
		)
	}
	return nil
}
