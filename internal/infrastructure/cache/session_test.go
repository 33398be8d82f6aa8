package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func testRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestUploadSessionStore_RoundTrip(t *testing.T) {
	_, client := testRedis(t)
	store := NewUploadSessionStore(client, time.Hour)
	ctx := context.Background()

	session := &UploadSession{
		ID:            uuid.New(),
		UserID:        uuid.New(),
		FileName:      "standup.mp3",
		MimeType:      "audio/mpeg",
		TotalSize:     1 << 20,
		ReceivedBytes: 512,
		ObjectName:    "recordings/u/abc.mp3",
		CreatedAt:     time.Now().UTC(),
	}
	if err := store.Save(ctx, session); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := store.Get(ctx, session.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.FileName != session.FileName || got.ReceivedBytes != 512 || got.UserID != session.UserID {
		t.Fatalf("session round trip mismatch: %+v", got)
	}
}

func TestUploadSessionStore_MissingSession(t *testing.T) {
	_, client := testRedis(t)
	store := NewUploadSessionStore(client, time.Hour)

	_, err := store.Get(context.Background(), uuid.New())
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestUploadSessionStore_ExpiryAndDelete(t *testing.T) {
	mr, client := testRedis(t)
	store := NewUploadSessionStore(client, time.Minute)
	ctx := context.Background()

	session := &UploadSession{ID: uuid.New(), UserID: uuid.New()}
	if err := store.Save(ctx, session); err != nil {
		t.Fatal(err)
	}

	mr.FastForward(2 * time.Minute)
	if _, err := store.Get(ctx, session.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected expiry, got %v", err)
	}

	if err := store.Save(ctx, session); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(ctx, session.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(ctx, session.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected deleted session to be gone, got %v", err)
	}
}

func TestCancelFlags_Lifecycle(t *testing.T) {
	_, client := testRedis(t)
	flags := NewCancelFlags(client)
	ctx := context.Background()
	meetingID := uuid.New().String()

	requested, err := flags.IsRequested(ctx, meetingID)
	if err != nil || requested {
		t.Fatalf("fresh meeting must have no flag, got %v (%v)", requested, err)
	}

	if err := flags.Request(ctx, meetingID); err != nil {
		t.Fatal(err)
	}
	requested, err = flags.IsRequested(ctx, meetingID)
	if err != nil || !requested {
		t.Fatalf("expected flag after request, got %v (%v)", requested, err)
	}

	if err := flags.Clear(ctx, meetingID); err != nil {
		t.Fatal(err)
	}
	requested, _ = flags.IsRequested(ctx, meetingID)
	if requested {
		t.Fatal("flag must be gone after clear")
	}
}

func TestCancelFlags_Expiry(t *testing.T) {
	mr, client := testRedis(t)
	flags := NewCancelFlags(client)
	ctx := context.Background()
	meetingID := uuid.New().String()

	if err := flags.Request(ctx, meetingID); err != nil {
		t.Fatal(err)
	}
	mr.FastForward(25 * time.Hour)
	requested, err := flags.IsRequested(ctx, meetingID)
	if err != nil {
		t.Fatal(err)
	}
	if requested {
		t.Fatal("stale cancel flag must expire")
	}
}
