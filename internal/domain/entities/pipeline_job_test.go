package entities

import (
	"testing"

	"github.com/google/uuid"
)

func TestJobPayload_ValidateFor(t *testing.T) {
	cases := []struct {
		name    string
		stage   PipelineStage
		payload JobPayload
		wantErr bool
	}{
		{"transcription complete", StageTranscription, JobPayload{FileRef: "recordings/a.mp3", DurationSeconds: 600}, false},
		{"transcription missing file", StageTranscription, JobPayload{DurationSeconds: 600}, true},
		{"transcription zero duration", StageTranscription, JobPayload{FileRef: "recordings/a.mp3"}, true},
		{"enhancement empty", StageEnhancement, JobPayload{}, false},
		{"redaction empty", StageRedaction, JobPayload{}, false},
		{"minutes empty", StageMinutes, JobPayload{}, false},
		{"unknown stage", PipelineStage("polish"), JobPayload{}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.payload.ValidateFor(tc.stage)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ValidateFor(%s) error = %v, wantErr %v", tc.stage, err, tc.wantErr)
			}
		})
	}
}

func TestPipelineStage_Valid(t *testing.T) {
	for _, stage := range Stages {
		if !stage.Valid() {
			t.Errorf("%s should be valid", stage)
		}
	}
	if PipelineStage("polish").Valid() {
		t.Error("unknown stage must be invalid")
	}
}

func TestPipelineJob_AttemptBudget(t *testing.T) {
	job := NewPipelineJob(uuid.New(), uuid.New(), StageMinutes, JobPayload{})
	if job.State != JobStateWaiting {
		t.Fatalf("new job must wait, got %s", job.State)
	}

	for job.AttemptCount < job.MaxAttempts {
		if !job.HasAttemptsLeft() {
			t.Fatalf("budget exhausted early at attempt %d", job.AttemptCount)
		}
		job.AttemptCount++
	}
	if job.HasAttemptsLeft() {
		t.Fatal("budget must be exhausted at MaxAttempts")
	}
}
