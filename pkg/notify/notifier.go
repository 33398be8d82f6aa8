package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hoangnm-dev/meeting-scribe/pkg/config"
)

// Notifier delivers end-of-pipeline notifications through external push and
// email gateways. Best effort only: a dead gateway is logged, never
// propagated.
type Notifier struct {
	pushURL  string
	emailURL string
	apiKey   string
	client   *http.Client
	logger   *zap.Logger
}

// NewNotifier creates a notifier. An unconfigured gateway makes that channel
// a silent no-op.
func NewNotifier(cfg *config.NotifyConfig, logger *zap.Logger) *Notifier {
	var pushURL, emailURL, key string
	if cfg != nil {
		pushURL = cfg.PushGatewayURL
		emailURL = cfg.EmailGatewayURL
		key = cfg.APIKey
	}
	return &Notifier{
		pushURL:  pushURL,
		emailURL: emailURL,
		apiKey:   key,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
	}
}

type pushMessage struct {
	UserID    uuid.UUID `json:"user_id"`
	MeetingID uuid.UUID `json:"meeting_id"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

type emailMessage struct {
	UserID    uuid.UUID `json:"user_id"`
	MeetingID uuid.UUID `json:"meeting_id"`
	Kind      string    `json:"kind"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

// PipelineCompleted tells the user their minutes are ready
func (n *Notifier) PipelineCompleted(ctx context.Context, userID, meetingID uuid.UUID, meetingTitle string) {
	now := time.Now()
	body := fmt.Sprintf("Transcript and minutes for %q are ready.", meetingTitle)
	n.sendPush(ctx, pushMessage{
		UserID:    userID,
		MeetingID: meetingID,
		Kind:      "pipeline_completed",
		Title:     "Meeting minutes ready",
		Body:      body,
		Timestamp: now,
	})
	n.sendEmail(ctx, emailMessage{
		UserID:    userID,
		MeetingID: meetingID,
		Kind:      "pipeline_completed",
		Subject:   "Meeting minutes ready",
		Body:      body,
		Timestamp: now,
	})
}

// PipelineFailed tells the user processing gave up
func (n *Notifier) PipelineFailed(ctx context.Context, userID, meetingID uuid.UUID, meetingTitle, reason string) {
	now := time.Now()
	body := fmt.Sprintf("Processing %q failed: %s", meetingTitle, reason)
	n.sendPush(ctx, pushMessage{
		UserID:    userID,
		MeetingID: meetingID,
		Kind:      "pipeline_failed",
		Title:     "Meeting processing failed",
		Body:      body,
		Timestamp: now,
	})
	n.sendEmail(ctx, emailMessage{
		UserID:    userID,
		MeetingID: meetingID,
		Kind:      "pipeline_failed",
		Subject:   "Meeting processing failed",
		Body:      body,
		Timestamp: now,
	})
}

func (n *Notifier) sendPush(ctx context.Context, msg pushMessage) {
	if n == nil || n.pushURL == "" {
		return
	}
	n.post(ctx, "push", n.pushURL, msg.Kind, msg)
}

func (n *Notifier) sendEmail(ctx context.Context, msg emailMessage) {
	if n == nil || n.emailURL == "" {
		return
	}
	n.post(ctx, "email", n.emailURL, msg.Kind, msg)
}

func (n *Notifier) post(ctx context.Context, channel, url, kind string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if n.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+n.apiKey)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		if n.logger != nil {
			n.logger.Warn("notification delivery failed",
				zap.String("channel", channel),
				zap.String("kind", kind),
				zap.Error(err),
			)
		}
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && n.logger != nil {
		n.logger.Warn("notification gateway rejected message",
			zap.String("channel", channel),
			zap.String("kind", kind),
			zap.Int("status", resp.StatusCode),
		)
	}
}
