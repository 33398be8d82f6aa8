package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrSessionNotFound is returned when an upload session is missing or expired
var ErrSessionNotFound = errors.New("upload session not found or expired")

// UploadSession is the transient state of a resumable upload. It lives in
// Redis with a TTL; an expired session means the client must start over.
type UploadSession struct {
	ID            uuid.UUID `json:"id"`
	UserID        uuid.UUID `json:"user_id"`
	FileName      string    `json:"file_name"`
	MimeType      string    `json:"mime_type"`
	TotalSize     int64     `json:"total_size"`
	ReceivedBytes int64     `json:"received_bytes"`
	ObjectName    string    `json:"object_name"`
	CreatedAt     time.Time `json:"created_at"`
}

// UploadSessionStore keeps upload sessions in Redis with a sliding TTL
type UploadSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewUploadSessionStore creates a session store. Sessions expire after ttl
// of inactivity.
func NewUploadSessionStore(client *redis.Client, ttl time.Duration) *UploadSessionStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &UploadSessionStore{client: client, ttl: ttl}
}

func sessionKey(id uuid.UUID) string {
	return "upload:session:" + id.String()
}

// Save writes the session and refreshes its TTL
func (s *UploadSessionStore) Save(ctx context.Context, session *UploadSession) error {
	b, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, sessionKey(session.ID), b, s.ttl).Err()
}

// Get retrieves a session, returning ErrSessionNotFound when expired
func (s *UploadSessionStore) Get(ctx context.Context, id uuid.UUID) (*UploadSession, error) {
	b, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	var session UploadSession
	if err := json.Unmarshal(b, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Delete removes a finished or abandoned session
func (s *UploadSessionStore) Delete(ctx context.Context, id uuid.UUID) error {
	return s.client.Del(ctx, sessionKey(id)).Err()
}
