package progress

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Step identifies which pipeline phase an event belongs to
type Step string

const (
	StepUpload        Step = "upload"
	StepTranscription Step = "transcription"
	StepEnhancement   Step = "enhancement"
	StepRedaction     Step = "redaction"
	StepMinutes       Step = "minutes"
)

// Status is the event's phase within a step
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusRetrying   Status = "retrying"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Event is one progress update for a meeting's pipeline run
type Event struct {
	MeetingID uuid.UUID `json:"meeting_id"`
	UserID    uuid.UUID `json:"user_id"`
	Step      Step      `json:"step"`
	Status    Status    `json:"status"`
	Progress  int       `json:"progress"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Broadcaster publishes progress events over Redis pub/sub. Fire and forget:
// no delivery guarantee, no backpressure. If nobody subscribed the event is
// dropped, which is exactly what we want from a progress channel.
type Broadcaster struct {
	client *redis.Client
	logger *zap.Logger
}

// NewBroadcaster creates a progress broadcaster
func NewBroadcaster(client *redis.Client, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{client: client, logger: logger}
}

func channelFor(userID, meetingID uuid.UUID) string {
	return "progress:" + userID.String() + ":" + meetingID.String()
}

// Publish sends one event. Errors are logged, never propagated; progress must
// not be able to fail a pipeline stage.
func (b *Broadcaster) Publish(ctx context.Context, userID, meetingID uuid.UUID, step Step, status Status, progress int, errMsg string) {
	if b == nil || b.client == nil {
		return
	}

	event := Event{
		MeetingID: meetingID,
		UserID:    userID,
		Step:      step,
		Status:    status,
		Progress:  progress,
		Error:     errMsg,
		Timestamp: time.Now(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return
	}

	if err := b.client.Publish(ctx, channelFor(userID, meetingID), payload).Err(); err != nil {
		if b.logger != nil {
			b.logger.Warn("failed to publish progress event",
				zap.String("meeting_id", meetingID.String()),
				zap.Error(err),
			)
		}
	}
}

// Subscribe opens a live event stream for one meeting. The returned channel
// closes when ctx is cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context, userID, meetingID uuid.UUID) (<-chan Event, error) {
	sub := b.client.Subscribe(ctx, channelFor(userID, meetingID))
	if _, err := sub.Receive(ctx); err != nil {
		return nil, err
	}

	out := make(chan Event, 16)
	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					continue
				}
				select {
				case out <- event:
				default:
					// Slow subscriber; drop rather than block the reader.
				}
			}
		}
	}()
	return out, nil
}
