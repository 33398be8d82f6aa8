package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hoangnm-dev/meeting-scribe/pkg/config"
)

// LLMClient talks to an OpenAI-compatible multimodal endpoint for
// transcription, enhancement, redaction and minutes generation.
type LLMClient struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

// NewLLMClient creates a client using values from the provided config.
// Pass a nil config to fall back to environment variables.
func NewLLMClient(cfg *config.ProviderConfig) *LLMClient {
	var apiKey, base, model string
	timeout := 300 * time.Second
	if cfg != nil {
		apiKey = cfg.APIKey
		base = cfg.BaseURL
		model = cfg.Model
		if cfg.TimeoutSec > 0 {
			timeout = time.Duration(cfg.TimeoutSec) * time.Second
		}
	}
	if apiKey == "" {
		apiKey = os.Getenv("PROVIDER_API_KEY")
	}
	if base == "" {
		base = os.Getenv("PROVIDER_BASE_URL")
		if base == "" {
			base = "https://api.groq.com"
		}
	}
	if model == "" {
		model = "whisper-large-v3"
	}

	return &LLMClient{
		apiKey:  apiKey,
		baseURL: base,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

// ChatRequest is the shape for chat completion requests
type ChatRequest struct {
	Model          string      `json:"model,omitempty"`
	Messages       interface{} `json:"messages,omitempty"`
	Temperature    float64     `json:"temperature,omitempty"`
	MaxTokens      int         `json:"max_tokens,omitempty"`
	ResponseFormat interface{} `json:"response_format,omitempty"`
}

// ChatResponse is a minimal response shape
type ChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

const transcribePrompt = `You are a meeting transcription engine. Transcribe the audio into JSON:
{"segments":[{"speaker":"speaker_1","speaker_name":"","name_confidence":0,"name_evidence":false,"start":0.0,"end":0.0,"text":"","languages":["en"],"inaudible":false}]}
Rules:
- Timestamps are seconds relative to the start of THIS audio chunk.
- Number new speakers in order of first appearance, continuing any numbering given below.
- Only set speaker_name when the audio contains explicit evidence (self-introduction or direct address); record that with name_evidence=true.
- Mark unintelligible spans with inaudible=true instead of guessing.`

// Transcribe submits one audio chunk, threading the continuity context into
// the prompt so speaker numbering survives across chunks.
func (g *LLMClient) Transcribe(ctx context.Context, req TranscribeRequest) ([]Segment, error) {
	audio, err := os.ReadFile(req.LocalPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read chunk file: %w", err)
	}

	system := transcribePrompt
	if !req.Context.IsEmpty() {
		system += "\n\nContinuity from the previous chunk:\n" + req.Context.Render()
	}

	format := "mp3"
	if i := strings.LastIndex(req.MimeType, "/"); i >= 0 && i+1 < len(req.MimeType) {
		format = req.MimeType[i+1:]
	}

	messages := []map[string]interface{}{
		{"role": "system", "content": system},
		{"role": "user", "content": []map[string]interface{}{
			{"type": "input_audio", "input_audio": map[string]string{
				"data":   base64.StdEncoding.EncodeToString(audio),
				"format": format,
			}},
		}},
	}

	content, err := g.complete(ctx, messages, 0.1)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Segments []Segment `json:"segments"`
	}
	if err := json.Unmarshal([]byte(extractJSON(content)), &parsed); err != nil {
		return nil, fmt.Errorf("malformed transcription response: %w", err)
	}
	return parsed.Segments, nil
}

// Enhance asks the model for corrections and speaker name attributions.
func (g *LLMClient) Enhance(ctx context.Context, transcript string) (*EnhanceResult, error) {
	prompt := "Review this meeting transcript. Return JSON {\"corrections\":[{\"segment_index\":0,\"text\":\"\"}],\"speaker_names\":{\"speaker_1\":\"\"}} with fixed mishearings and any speaker names the transcript itself proves. Leave out entries you are not sure about.\n\n" + transcript
	content, err := g.complete(ctx, userMessage(prompt), 0.2)
	if err != nil {
		return nil, err
	}
	var out EnhanceResult
	if err := json.Unmarshal([]byte(extractJSON(content)), &out); err != nil {
		return nil, fmt.Errorf("malformed enhancement response: %w", err)
	}
	return &out, nil
}

// Redact asks the model to remove personal data from each segment.
func (g *LLMClient) Redact(ctx context.Context, transcript string) (*RedactResult, error) {
	prompt := "Redact personal data (names of non-participants, phone numbers, addresses, account numbers) from this transcript. Return JSON {\"redacted_segments\":[{\"segment_index\":0,\"text\":\"\"}]} listing only segments that changed.\n\n" + transcript
	content, err := g.complete(ctx, userMessage(prompt), 0.0)
	if err != nil {
		return nil, err
	}
	var out RedactResult
	if err := json.Unmarshal([]byte(extractJSON(content)), &out); err != nil {
		return nil, fmt.Errorf("malformed redaction response: %w", err)
	}
	return &out, nil
}

// GenerateMinutes produces structured meeting minutes from the transcript.
func (g *LLMClient) GenerateMinutes(ctx context.Context, transcript string) (*MinutesResult, error) {
	prompt := "Write meeting minutes for this transcript. Return JSON {\"executive_summary\":\"\",\"key_points\":[],\"decisions\":[],\"action_items\":[],\"open_questions\":[]}.\n\n" + transcript
	content, err := g.complete(ctx, userMessage(prompt), 0.3)
	if err != nil {
		return nil, err
	}
	var out MinutesResult
	if err := json.Unmarshal([]byte(extractJSON(content)), &out); err != nil {
		return nil, fmt.Errorf("malformed minutes response: %w", err)
	}
	return &out, nil
}

func userMessage(prompt string) []map[string]string {
	return []map[string]string{{"role": "user", "content": prompt}}
}

// complete performs one chat completion call and returns the assistant content.
func (g *LLMClient) complete(ctx context.Context, messages interface{}, temperature float64) (string, error) {
	reqBody := ChatRequest{
		Model:          g.model,
		Messages:       messages,
		Temperature:    temperature,
		MaxTokens:      8000,
		ResponseFormat: map[string]string{"type": "json_object"},
	}

	b, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	endpoint := g.baseURL + "/openai/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	var cr ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", err
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("empty response from provider")
	}
	return cr.Choices[0].Message.Content, nil
}

// extractJSON strips markdown fences some models wrap around JSON output.
func extractJSON(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		if i := strings.LastIndex(content, "```"); i >= 0 {
			content = content[:i]
		}
	}
	return strings.TrimSpace(content)
}
