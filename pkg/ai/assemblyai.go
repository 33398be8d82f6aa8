package ai

import (
	"context"
	"fmt"
	"os"

	aai "github.com/AssemblyAI/assemblyai-go-sdk"

	"github.com/hoangnm-dev/meeting-scribe/pkg/config"
)

// AssemblyAIProvider is the alternate transcription backend built on the
// official SDK. Diarized utterances map onto segments; text-only operations
// (enhance, redact, minutes) are delegated to the LLM client because
// AssemblyAI has no equivalent endpoints.
type AssemblyAIProvider struct {
	client *aai.Client
	text   *LLMClient
}

// NewAssemblyAIProvider creates the provider. If cfg is nil, falls back to
// environment variables.
func NewAssemblyAIProvider(cfg *config.ProviderConfig, text *LLMClient) *AssemblyAIProvider {
	var apiKey string
	if cfg != nil {
		apiKey = cfg.AssemblyAIKey
	}
	if apiKey == "" {
		apiKey = os.Getenv("ASSEMBLYAI_API_KEY")
	}
	return &AssemblyAIProvider{
		client: aai.NewClient(apiKey),
		text:   text,
	}
}

// Transcribe uploads the chunk and blocks until the transcript is ready.
// The continuity context cannot be passed verbatim; known speaker names are
// forwarded as word boosts so recurring names keep being recognized.
func (p *AssemblyAIProvider) Transcribe(ctx context.Context, req TranscribeRequest) ([]Segment, error) {
	f, err := os.Open(req.LocalPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open chunk file: %w", err)
	}
	defer f.Close()

	uploadURL, err := p.client.Upload(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to upload to AssemblyAI: %w", err)
	}

	params := &aai.TranscriptOptionalParams{
		SpeakerLabels:     aai.Bool(true),
		LanguageDetection: aai.Bool(true),
	}
	if !req.Context.IsEmpty() {
		var boost []string
		for _, sp := range req.Context.Speakers {
			if sp.Name != "" && sp.Name != "unknown" {
				boost = append(boost, sp.Name)
			}
		}
		params.WordBoost = boost
	}

	transcript, err := p.client.Transcripts.TranscribeFromURL(ctx, uploadURL, params)
	if err != nil {
		return nil, err
	}
	if transcript.ID == nil {
		return nil, fmt.Errorf("assemblyai returned no transcript id")
	}

	transcript, err = p.client.Transcripts.Wait(ctx, *transcript.ID)
	if err != nil {
		return nil, err
	}
	if transcript.Status == aai.TranscriptStatusError {
		msg := "assemblyai transcription failed"
		if transcript.Error != nil {
			msg = *transcript.Error
		}
		return nil, fmt.Errorf("%s", msg)
	}

	language := ""
	if transcript.LanguageCode != "" {
		language = string(transcript.LanguageCode)
	}

	segments := make([]Segment, 0, len(transcript.Utterances))
	for _, utt := range transcript.Utterances {
		seg := Segment{}
		if utt.Speaker != nil {
			seg.SpeakerLabel = "speaker_" + *utt.Speaker
		}
		if utt.Text != nil {
			seg.Text = *utt.Text
		}
		if utt.Start != nil {
			seg.Start = float64(*utt.Start) / 1000.0 // ms to seconds
		}
		if utt.End != nil {
			seg.End = float64(*utt.End) / 1000.0
		}
		if utt.Confidence != nil && *utt.Confidence < 0.3 {
			seg.Inaudible = true
		}
		if language != "" {
			seg.Languages = []string{language}
		}
		segments = append(segments, seg)
	}
	return segments, nil
}

// Enhance delegates to the LLM backend.
func (p *AssemblyAIProvider) Enhance(ctx context.Context, transcript string) (*EnhanceResult, error) {
	return p.text.Enhance(ctx, transcript)
}

// Redact delegates to the LLM backend.
func (p *AssemblyAIProvider) Redact(ctx context.Context, transcript string) (*RedactResult, error) {
	return p.text.Redact(ctx, transcript)
}

// GenerateMinutes delegates to the LLM backend.
func (p *AssemblyAIProvider) GenerateMinutes(ctx context.Context, transcript string) (*MinutesResult, error) {
	return p.text.GenerateMinutes(ctx, transcript)
}
