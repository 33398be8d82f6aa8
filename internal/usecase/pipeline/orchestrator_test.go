package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	apperrors "github.com/hoangnm-dev/meeting-scribe/errors"
	"github.com/hoangnm-dev/meeting-scribe/internal/domain/entities"
	"github.com/hoangnm-dev/meeting-scribe/internal/infrastructure/cache"
	"github.com/hoangnm-dev/meeting-scribe/internal/usecase/quota"
	"github.com/hoangnm-dev/meeting-scribe/pkg/ai"
	"github.com/hoangnm-dev/meeting-scribe/pkg/config"
	"github.com/hoangnm-dev/meeting-scribe/pkg/notify"
)

// --- in-memory fakes ---

type fakeMeetingRepo struct {
	mu       sync.Mutex
	meetings map[uuid.UUID]*entities.Meeting
}

func newFakeMeetingRepo() *fakeMeetingRepo {
	return &fakeMeetingRepo{meetings: make(map[uuid.UUID]*entities.Meeting)}
}

func (r *fakeMeetingRepo) Create(_ context.Context, m *entities.Meeting) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.meetings[m.ID] = m
	return nil
}

func (r *fakeMeetingRepo) FindByID(_ context.Context, id uuid.UUID) (*entities.Meeting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.meetings[id]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (r *fakeMeetingRepo) ListByUserID(_ context.Context, userID uuid.UUID, _, _ int) ([]entities.Meeting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entities.Meeting
	for _, m := range r.meetings {
		if m.UserID == userID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (r *fakeMeetingRepo) UpdateStatus(_ context.Context, id uuid.UUID, status entities.MeetingStatus, reason *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.meetings[id]
	if !ok {
		return errors.New("not found")
	}
	m.Status = status
	m.FailureReason = reason
	return nil
}

func (r *fakeMeetingRepo) AcquireLease(_ context.Context, id, token uuid.UUID, from, to entities.MeetingStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.meetings[id]
	if !ok || m.Status != from {
		return false, nil
	}
	m.Status = to
	m.LeaseToken = &token
	return true, nil
}

func (r *fakeMeetingRepo) HoldsLease(_ context.Context, id, token uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.meetings[id]
	return ok && m.LeaseToken != nil && *m.LeaseToken == token, nil
}

func (r *fakeMeetingRepo) UpdateMetrics(_ context.Context, id uuid.UUID, score float64, inaudible int, confidence float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.meetings[id]; ok {
		m.QualityScore = score
		m.InaudibleCount = inaudible
		m.AvgSpeakerConfidence = confidence
	}
	return nil
}

type fakeJobRepo struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*entities.PipelineJob
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{jobs: make(map[uuid.UUID]*entities.PipelineJob)}
}

func (r *fakeJobRepo) Create(_ context.Context, j *entities.PipelineJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[j.ID] = j
	return nil
}

func (r *fakeJobRepo) FindByID(_ context.Context, id uuid.UUID) (*entities.PipelineJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jobs[id], nil
}

func (r *fakeJobRepo) HasOpenJob(_ context.Context, meetingID uuid.UUID, stage entities.PipelineStage) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.MeetingID == meetingID && j.Stage == stage &&
			(j.State == entities.JobStateWaiting || j.State == entities.JobStateActive) {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeJobRepo) ClaimNextWaiting(_ context.Context, stage entities.PipelineStage) (*entities.PipelineJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.Stage == stage && j.State == entities.JobStateWaiting {
			j.State = entities.JobStateActive
			j.AttemptCount++
			return j, nil
		}
	}
	return nil, nil
}

func (r *fakeJobRepo) CancelWaiting(_ context.Context, meetingID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, j := range r.jobs {
		if j.MeetingID == meetingID && j.State == entities.JobStateWaiting {
			j.State = entities.JobStateCancelled
			n++
		}
	}
	return n, nil
}

func (r *fakeJobRepo) MarkCompleted(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.jobs[id]; ok {
		j.State = entities.JobStateCompleted
	}
	return nil
}

func (r *fakeJobRepo) MarkFailed(_ context.Context, id uuid.UUID, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.jobs[id]; ok {
		j.State = entities.JobStateFailed
		j.LastError = &msg
	}
	return nil
}

func (r *fakeJobRepo) RequeueForRetry(_ context.Context, id uuid.UUID, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.jobs[id]; ok {
		j.State = entities.JobStateWaiting
		j.LastError = &msg
	}
	return nil
}

func (r *fakeJobRepo) ListActiveByMeetingID(_ context.Context, meetingID uuid.UUID) ([]entities.PipelineJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entities.PipelineJob
	for _, j := range r.jobs {
		if j.MeetingID == meetingID && j.State == entities.JobStateActive {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (r *fakeJobRepo) byStage(stage entities.PipelineStage) []*entities.PipelineJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.PipelineJob
	for _, j := range r.jobs {
		if j.Stage == stage {
			out = append(out, j)
		}
	}
	return out
}

type fakeSpeakerRepo struct {
	mu       sync.Mutex
	speakers []*entities.Speaker
}

func (r *fakeSpeakerRepo) Create(_ context.Context, s *entities.Speaker) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Mirrors the unique (meeting_id, display_name) index on the real table.
	for _, existing := range r.speakers {
		if existing.MeetingID == s.MeetingID && existing.DisplayName == s.DisplayName {
			return fmt.Errorf("duplicate key value violates unique constraint %q", "idx_speakers_meeting_name")
		}
	}
	r.speakers = append(r.speakers, s)
	return nil
}

func (r *fakeSpeakerRepo) Update(_ context.Context, _ *entities.Speaker) error { return nil }

func (r *fakeSpeakerRepo) DeleteByMeetingID(_ context.Context, meetingID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.speakers[:0]
	for _, s := range r.speakers {
		if s.MeetingID != meetingID {
			kept = append(kept, s)
		}
	}
	r.speakers = kept
	return nil
}

func (r *fakeSpeakerRepo) ListByMeetingID(_ context.Context, meetingID uuid.UUID) ([]entities.Speaker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entities.Speaker
	for _, s := range r.speakers {
		if s.MeetingID == meetingID {
			out = append(out, *s)
		}
	}
	return out, nil
}

type fakeSegmentRepo struct {
	mu          sync.Mutex
	segments    []entities.TranscriptSegment
	failBatches int
}

func (r *fakeSegmentRepo) CreateBatch(_ context.Context, segs []entities.TranscriptSegment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failBatches > 0 {
		r.failBatches--
		return errors.New("connection reset by peer")
	}
	r.segments = append(r.segments, segs...)
	return nil
}

func (r *fakeSegmentRepo) ListByMeetingID(_ context.Context, meetingID uuid.UUID) ([]entities.TranscriptSegment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entities.TranscriptSegment
	for _, s := range r.segments {
		if s.MeetingID == meetingID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeSegmentRepo) CountByMeetingID(_ context.Context, meetingID uuid.UUID) (int64, error) {
	segs, _ := r.ListByMeetingID(context.Background(), meetingID)
	return int64(len(segs)), nil
}

func (r *fakeSegmentRepo) UpdateText(_ context.Context, _ uuid.UUID, _ string) error { return nil }

func (r *fakeSegmentRepo) DeleteByMeetingID(_ context.Context, meetingID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.segments[:0]
	for _, s := range r.segments {
		if s.MeetingID != meetingID {
			kept = append(kept, s)
		}
	}
	r.segments = kept
	return nil
}

type fakeMinutesRepo struct {
	mu      sync.Mutex
	minutes map[uuid.UUID]*entities.MeetingMinutes
}

func newFakeMinutesRepo() *fakeMinutesRepo {
	return &fakeMinutesRepo{minutes: make(map[uuid.UUID]*entities.MeetingMinutes)}
}

func (r *fakeMinutesRepo) Save(_ context.Context, m *entities.MeetingMinutes) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.minutes[m.MeetingID] = m
	return nil
}

func (r *fakeMinutesRepo) FindByMeetingID(_ context.Context, meetingID uuid.UUID) (*entities.MeetingMinutes, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.minutes[meetingID], nil
}

type fakeStore struct {
	missing map[string]bool
}

func (s *fakeStore) StatAudio(_ context.Context, objectName string) (int64, error) {
	if s.missing[objectName] {
		return 0, fmt.Errorf("object not found")
	}
	return 1024, nil
}

func (s *fakeStore) DownloadAudio(_ context.Context, _, _ string) (int64, error) { return 1024, nil }

func (s *fakeStore) UploadArtifact(_ context.Context, _ string, _ []byte, _ string) error {
	return nil
}

type fakeProvider struct{}

func (p *fakeProvider) Transcribe(_ context.Context, _ ai.TranscribeRequest) ([]ai.Segment, error) {
	return []ai.Segment{
		{SpeakerLabel: "speaker_1", Start: 0, End: 5, Text: "hello everyone"},
		{SpeakerLabel: "speaker_2", Start: 5, End: 10, Text: "hi there"},
	}, nil
}
func (p *fakeProvider) Enhance(_ context.Context, _ string) (*ai.EnhanceResult, error) {
	return &ai.EnhanceResult{}, nil
}
func (p *fakeProvider) Redact(_ context.Context, _ string) (*ai.RedactResult, error) {
	return &ai.RedactResult{}, nil
}
func (p *fakeProvider) GenerateMinutes(_ context.Context, _ string) (*ai.MinutesResult, error) {
	return &ai.MinutesResult{}, nil
}

// --- harness ---

type harness struct {
	orch     *Orchestrator
	meetings *fakeMeetingRepo
	speakers *fakeSpeakerRepo
	jobs     *fakeJobRepo
	segments *fakeSegmentRepo
	minutes  *fakeMinutesRepo
	store    *fakeStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cfg := &config.Config{
		Pipeline: config.PipelineConfig{
			ChunkThresholdSec:   1800,
			ChunkDir:            t.TempDir(),
			ChunkSweepAfterMin:  60,
			MaxStageAttempts:    3,
			StageBackoffBaseSec: 5,
			MaxChunkFailureRate: 0.5,
		},
		Quota: config.QuotaConfig{WeeklyUploadLimit: 10, MaxUploadDuration: 14400},
	}

	h := &harness{
		meetings: newFakeMeetingRepo(),
		speakers: &fakeSpeakerRepo{},
		jobs:     newFakeJobRepo(),
		segments: &fakeSegmentRepo{},
		minutes:  newFakeMinutesRepo(),
		store:    &fakeStore{missing: make(map[string]bool)},
	}
	h.orch = NewOrchestrator(
		h.meetings,
		h.speakers,
		h.segments,
		h.jobs,
		h.minutes,
		&fakeProvider{},
		h.store,
		cache.NewCancelFlags(client),
		nil,
		quota.NewLedger(client, &cfg.Quota, nil),
		notify.NewNotifier(nil, nil),
		cfg,
		nil,
	)
	return h
}

func (h *harness) addMeeting(status entities.MeetingStatus) *entities.Meeting {
	m := entities.NewMeeting(uuid.New(), "weekly sync", "recordings/u/a.mp3", "audio/mpeg", 600)
	m.Status = status
	_ = h.meetings.Create(context.Background(), m)
	return m
}

// --- tests ---

func TestEnqueue_RejectsInvalidPayload(t *testing.T) {
	h := newHarness(t)
	m := h.addMeeting(entities.MeetingStatusUploaded)

	err := h.orch.Enqueue(context.Background(), m.ID, m.UserID, entities.StageTranscription, entities.JobPayload{})
	if err == nil {
		t.Fatal("transcription enqueue without file_ref must fail")
	}

	err = h.orch.Enqueue(context.Background(), m.ID, m.UserID, "polish", entities.JobPayload{})
	if err == nil {
		t.Fatal("unknown stage must be rejected")
	}
}

func TestEnqueue_IdempotentPerMeetingAndStage(t *testing.T) {
	h := newHarness(t)
	m := h.addMeeting(entities.MeetingStatusUploaded)
	payload := entities.JobPayload{FileRef: m.FileRef, DurationSeconds: 600}

	for i := 0; i < 3; i++ {
		if err := h.orch.Enqueue(context.Background(), m.ID, m.UserID, entities.StageTranscription, payload); err != nil {
			t.Fatalf("enqueue %d failed: %v", i, err)
		}
	}

	if got := len(h.jobs.byStage(entities.StageTranscription)); got != 1 {
		t.Fatalf("expected 1 open transcription job, got %d", got)
	}
}

func TestEnqueue_AppliesConfiguredAttemptBudget(t *testing.T) {
	h := newHarness(t)
	m := h.addMeeting(entities.MeetingStatusUploaded)

	if err := h.orch.Enqueue(context.Background(), m.ID, m.UserID, entities.StageMinutes, entities.JobPayload{}); err != nil {
		t.Fatal(err)
	}
	jobs := h.jobs.byStage(entities.StageMinutes)
	if len(jobs) != 1 || jobs[0].MaxAttempts != 3 {
		t.Fatalf("expected MaxAttempts 3 from config, got %+v", jobs)
	}
}

func TestRetry_SettlesStatusWhenEverythingExists(t *testing.T) {
	h := newHarness(t)
	m := h.addMeeting(entities.MeetingStatusFailed)
	_ = h.segments.CreateBatch(context.Background(), []entities.TranscriptSegment{
		{ID: uuid.New(), MeetingID: m.ID, StartTime: 0, EndTime: 5, Text: "hello"},
	})
	_ = h.minutes.Save(context.Background(), entities.NewMeetingMinutes(m.ID))

	if err := h.orch.Retry(context.Background(), m.ID, m.UserID); err != nil {
		t.Fatalf("retry failed: %v", err)
	}

	got, _ := h.meetings.FindByID(context.Background(), m.ID)
	if got.Status != entities.MeetingStatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", got.Status)
	}
	if len(h.jobs.byStage(entities.StageTranscription)) != 0 || len(h.jobs.byStage(entities.StageMinutes)) != 0 {
		t.Fatal("no work should be enqueued when artifacts already exist")
	}
}

func TestRetry_ResumesFromTranscript(t *testing.T) {
	h := newHarness(t)
	m := h.addMeeting(entities.MeetingStatusFailed)
	_ = h.segments.CreateBatch(context.Background(), []entities.TranscriptSegment{
		{ID: uuid.New(), MeetingID: m.ID, StartTime: 0, EndTime: 5, Text: "hello"},
	})

	if err := h.orch.Retry(context.Background(), m.ID, m.UserID); err != nil {
		t.Fatalf("retry failed: %v", err)
	}

	jobs := h.jobs.byStage(entities.StageMinutes)
	if len(jobs) != 1 {
		t.Fatalf("expected 1 minutes job, got %d", len(jobs))
	}
	if !jobs[0].Payload.SkipDownstream {
		t.Fatal("resumed minutes job must not cascade downstream work")
	}
	if len(h.jobs.byStage(entities.StageTranscription)) != 0 {
		t.Fatal("transcription must not be redone when segments survived")
	}
}

func TestRetry_FullRestartClearsPartialSegments(t *testing.T) {
	h := newHarness(t)
	m := h.addMeeting(entities.MeetingStatusFailed)
	_ = h.speakers.Create(context.Background(), entities.NewSpeaker(m.ID, 1))

	if err := h.orch.Retry(context.Background(), m.ID, m.UserID); err != nil {
		t.Fatalf("retry failed: %v", err)
	}

	jobs := h.jobs.byStage(entities.StageTranscription)
	if len(jobs) != 1 {
		t.Fatalf("expected 1 transcription job, got %d", len(jobs))
	}
	if jobs[0].Payload.FileRef != m.FileRef || jobs[0].Payload.DurationSeconds != 600 {
		t.Fatalf("restart payload must carry the source reference: %+v", jobs[0].Payload)
	}
	speakers, _ := h.speakers.ListByMeetingID(context.Background(), m.ID)
	if len(speakers) != 0 {
		t.Fatalf("restart must clear leftover speakers, found %d", len(speakers))
	}
}

func TestTranscription_SecondAttemptSurvivesLeftoverSpeakers(t *testing.T) {
	h := newHarness(t)
	m := h.addMeeting(entities.MeetingStatusUploaded)
	ctx := context.Background()

	token := uuid.New()
	ok, _ := h.meetings.AcquireLease(ctx, m.ID, token,
		entities.MeetingStatusUploaded, entities.MeetingStatusProcessingTranscript)
	if !ok {
		t.Fatal("setup: lease not acquired")
	}
	job := entities.NewPipelineJob(m.ID, m.UserID, entities.StageTranscription, entities.JobPayload{
		FileRef:         m.FileRef,
		DurationSeconds: 600,
	})
	meeting, _ := h.meetings.FindByID(ctx, m.ID)

	// Attempt 1 persists speakers, then the segment insert fails transiently.
	h.segments.failBatches = 1
	if err := h.orch.runTranscription(ctx, job, meeting, token); err == nil {
		t.Fatal("first attempt must surface the segment insert failure")
	}
	leftover, _ := h.speakers.ListByMeetingID(ctx, m.ID)
	if len(leftover) == 0 {
		t.Fatal("setup: first attempt should have left speakers behind")
	}

	// Attempt 2 must not trip over the unique speaker index.
	if err := h.orch.runTranscription(ctx, job, meeting, token); err != nil {
		t.Fatalf("second attempt must succeed: %v", err)
	}

	speakers, _ := h.speakers.ListByMeetingID(ctx, m.ID)
	if len(speakers) != 2 {
		t.Fatalf("expected 2 speakers after retry, got %d", len(speakers))
	}
	segs, _ := h.segments.ListByMeetingID(ctx, m.ID)
	if len(segs) == 0 {
		t.Fatal("segments must be persisted on the retry")
	}
}

func TestRetry_FailsFastWhenSourceAudioGone(t *testing.T) {
	h := newHarness(t)
	m := h.addMeeting(entities.MeetingStatusFailed)
	h.store.missing[m.FileRef] = true

	err := h.orch.Retry(context.Background(), m.ID, m.UserID)
	if err == nil {
		t.Fatal("expected file missing error")
	}
	var appErr apperrors.AppError
	if !errors.As(err, &appErr) || appErr.Code != apperrors.ErrorCode_FILE_MISSING {
		t.Fatalf("expected FILE_MISSING, got %v", err)
	}

	got, _ := h.meetings.FindByID(context.Background(), m.ID)
	if got.Status != entities.MeetingStatusFailed || got.FailureReason == nil {
		t.Fatalf("meeting must be FAILED with a reason, got %s", got.Status)
	}
	if len(h.jobs.byStage(entities.StageTranscription)) != 0 {
		t.Fatal("no job may be enqueued without source audio")
	}
}

func TestRetry_RejectsWhileProcessing(t *testing.T) {
	h := newHarness(t)
	m := h.addMeeting(entities.MeetingStatusProcessingTranscript)

	err := h.orch.Retry(context.Background(), m.ID, m.UserID)
	var appErr apperrors.AppError
	if !errors.As(err, &appErr) || appErr.Code != apperrors.ErrorCode_MEETING_INVALID_STATE {
		t.Fatalf("expected MEETING_INVALID_STATE, got %v", err)
	}
}

func TestRetry_RejectsForeignMeeting(t *testing.T) {
	h := newHarness(t)
	m := h.addMeeting(entities.MeetingStatusFailed)

	err := h.orch.Retry(context.Background(), m.ID, uuid.New())
	var appErr apperrors.AppError
	if !errors.As(err, &appErr) || appErr.Code != apperrors.ErrorCode_PERMISSION_DENIED {
		t.Fatalf("expected PERMISSION_DENIED, got %v", err)
	}
}

func TestCancel_QueuedJobsCancelImmediately(t *testing.T) {
	h := newHarness(t)
	m := h.addMeeting(entities.MeetingStatusUploaded)
	_ = h.orch.Enqueue(context.Background(), m.ID, m.UserID, entities.StageTranscription,
		entities.JobPayload{FileRef: m.FileRef, DurationSeconds: 600})

	if err := h.orch.Cancel(context.Background(), m.ID, m.UserID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	got, _ := h.meetings.FindByID(context.Background(), m.ID)
	if got.Status != entities.MeetingStatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", got.Status)
	}
	jobs := h.jobs.byStage(entities.StageTranscription)
	if len(jobs) != 1 || jobs[0].State != entities.JobStateCancelled {
		t.Fatalf("queued job must be cancelled, got %+v", jobs)
	}
}

func TestCancel_RunningJobGetsCooperativeFlag(t *testing.T) {
	h := newHarness(t)
	m := h.addMeeting(entities.MeetingStatusProcessingTranscript)
	_ = h.orch.Enqueue(context.Background(), m.ID, m.UserID, entities.StageMinutes, entities.JobPayload{})
	claimed, _ := h.jobs.ClaimNextWaiting(context.Background(), entities.StageMinutes)
	if claimed == nil {
		t.Fatal("setup: no job claimed")
	}

	if err := h.orch.Cancel(context.Background(), m.ID, m.UserID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	// The running worker owns the transition; status must be untouched.
	got, _ := h.meetings.FindByID(context.Background(), m.ID)
	if got.Status != entities.MeetingStatusProcessingTranscript {
		t.Fatalf("status must stay processing, got %s", got.Status)
	}
	flagged, err := h.orch.cancels.IsRequested(context.Background(), m.ID.String())
	if err != nil || !flagged {
		t.Fatalf("cancel flag must be set for the running worker, got %v (%v)", flagged, err)
	}
}

func TestCancel_RejectsCompletedMeeting(t *testing.T) {
	h := newHarness(t)
	m := h.addMeeting(entities.MeetingStatusCompleted)

	err := h.orch.Cancel(context.Background(), m.ID, m.UserID)
	var appErr apperrors.AppError
	if !errors.As(err, &appErr) || appErr.Code != apperrors.ErrorCode_MEETING_INVALID_STATE {
		t.Fatalf("expected MEETING_INVALID_STATE, got %v", err)
	}
}

func TestNextStage_SkipsRedactionUnlessRequested(t *testing.T) {
	h := newHarness(t)

	job := &entities.PipelineJob{Stage: entities.StageEnhancement}
	if got := h.orch.nextStage(job); got != entities.StageMinutes {
		t.Fatalf("expected minutes after enhancement, got %s", got)
	}

	job.Payload.RedactionEnabled = true
	if got := h.orch.nextStage(job); got != entities.StageRedaction {
		t.Fatalf("expected redaction when requested, got %s", got)
	}

	job = &entities.PipelineJob{Stage: entities.StageRedaction, Payload: entities.JobPayload{RedactionEnabled: true}}
	if got := h.orch.nextStage(job); got != entities.StageMinutes {
		t.Fatalf("expected minutes after redaction, got %s", got)
	}

	job = &entities.PipelineJob{Stage: entities.StageMinutes}
	if got := h.orch.nextStage(job); got != entities.PipelineStage("") {
		t.Fatalf("minutes is terminal, got %s", got)
	}
}

func TestLeaseSources_RetryCanReacquireOwnProcessingStatus(t *testing.T) {
	for _, stage := range entities.Stages {
		to, froms := leaseSources(stage)
		found := false
		for _, from := range froms {
			if from == to {
				found = true
			}
		}
		if !found {
			t.Errorf("stage %s cannot re-acquire its own processing status %s", stage, to)
		}
	}
}
