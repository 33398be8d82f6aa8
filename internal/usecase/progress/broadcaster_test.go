package progress

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func testBroadcaster(t *testing.T) *Broadcaster {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewBroadcaster(client, nil)
}

func TestBroadcaster_PublishSubscribe(t *testing.T) {
	b := testBroadcaster(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	userID := uuid.New()
	meetingID := uuid.New()

	events, err := b.Subscribe(ctx, userID, meetingID)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	b.Publish(ctx, userID, meetingID, StepTranscription, StatusProcessing, 42, "")

	select {
	case event := <-events:
		if event.MeetingID != meetingID || event.Step != StepTranscription {
			t.Fatalf("unexpected event: %+v", event)
		}
		if event.Status != StatusProcessing || event.Progress != 42 {
			t.Fatalf("unexpected status/progress: %+v", event)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no event received")
	}
}

func TestBroadcaster_ChannelIsolation(t *testing.T) {
	b := testBroadcaster(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	userID := uuid.New()
	mine := uuid.New()
	other := uuid.New()

	events, err := b.Subscribe(ctx, userID, mine)
	if err != nil {
		t.Fatal(err)
	}

	// An event for another meeting must not leak into this stream.
	b.Publish(ctx, userID, other, StepMinutes, StatusCompleted, 100, "")
	b.Publish(ctx, userID, mine, StepMinutes, StatusCompleted, 100, "")

	select {
	case event := <-events:
		if event.MeetingID != mine {
			t.Fatalf("received foreign event: %+v", event)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no event received")
	}
}

func TestBroadcaster_SubscriptionClosesWithContext(t *testing.T) {
	b := testBroadcaster(t)
	ctx, cancel := context.WithCancel(context.Background())

	events, err := b.Subscribe(ctx, uuid.New(), uuid.New())
	if err != nil {
		t.Fatal(err)
	}
	cancel()

	select {
	case _, open := <-events:
		if open {
			t.Fatal("expected closed channel after cancellation")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("channel did not close")
	}
}

func TestBroadcaster_NilSafePublish(t *testing.T) {
	var b *Broadcaster
	// Must not panic.
	b.Publish(context.Background(), uuid.New(), uuid.New(), StepUpload, StatusQueued, 0, "")
}
