package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hoangnm-dev/meeting-scribe/pkg/config"
)

// MinIOClient wraps MinIO operations over the audio and artifact buckets
type MinIOClient struct {
	client         *minio.Client
	audioBucket    string
	artifactBucket string
	publicURL      string // Public URL for generating accessible URLs (e.g., https://minio.example.com)
}

// NewMinIOClient creates a new MinIO client
func NewMinIOClient(cfg *config.StorageConfig) (*MinIOClient, error) {
	// Initialize MinIO client
	minioClient, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	client := &MinIOClient{
		client:         minioClient,
		audioBucket:    cfg.AudioBucket,
		artifactBucket: cfg.ArtifactBucket,
		publicURL:      cfg.PublicURL,
	}

	ctx := context.Background()
	for _, bucket := range []string{cfg.AudioBucket, cfg.ArtifactBucket} {
		if err := client.ensureBucket(ctx, bucket); err != nil {
			return nil, fmt.Errorf("failed to initialize bucket %s: %w", bucket, err)
		}
	}

	return client, nil
}

// ensureBucket ensures the bucket exists
func (m *MinIOClient) ensureBucket(ctx context.Context, bucket string) error {
	exists, err := m.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = m.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return nil
}

// UploadAudio uploads an audio file to the audio bucket
func (m *MinIOClient) UploadAudio(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error {
	_, err := m.client.PutObject(ctx, m.audioBucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload file: %w", err)
	}

	return nil
}

// DownloadAudio streams an audio object into a local file and returns its size
func (m *MinIOClient) DownloadAudio(ctx context.Context, objectName, localPath string) (int64, error) {
	obj, err := m.client.GetObject(ctx, m.audioBucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return 0, fmt.Errorf("failed to get object: %w", err)
	}
	defer obj.Close()

	f, err := os.Create(localPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create local file: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, obj)
	if err != nil {
		return 0, fmt.Errorf("failed to download object: %w", err)
	}

	return n, nil
}

// DeleteAudio removes an audio object
func (m *MinIOClient) DeleteAudio(ctx context.Context, objectName string) error {
	if err := m.client.RemoveObject(ctx, m.audioBucket, objectName, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// StatAudio checks that an audio object exists and returns its size
func (m *MinIOClient) StatAudio(ctx context.Context, objectName string) (int64, error) {
	info, err := m.client.StatObject(ctx, m.audioBucket, objectName, minio.StatObjectOptions{})
	if err != nil {
		return 0, fmt.Errorf("failed to stat object: %w", err)
	}
	return info.Size, nil
}

// UploadArtifact uploads text content (transcript exports, minutes) to the
// artifact bucket
func (m *MinIOClient) UploadArtifact(ctx context.Context, objectName string, content []byte, contentType string) error {
	_, err := m.client.PutObject(ctx, m.artifactBucket, objectName, bytes.NewReader(content), int64(len(content)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload artifact: %w", err)
	}
	return nil
}

// GetFileURL gets a presigned URL for accessing an audio file
func (m *MinIOClient) GetFileURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	url, err := m.client.PresignedGetObject(ctx, m.audioBucket, objectName, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	// If MinIO sits behind a reverse proxy, swap the internal endpoint for
	// the public one so clients outside the network can reach it.
	if m.publicURL != "" {
		urlStr := url.String()
		bucketPos := len(url.Scheme) + 3 + len(url.Host)
		if bucketPos < len(urlStr) {
			pathAndQuery := urlStr[bucketPos:]
			return m.publicURL + pathAndQuery, nil
		}
	}

	return url.String(), nil
}

// ListFiles lists audio objects under a prefix
func (m *MinIOClient) ListFiles(ctx context.Context, prefix string) ([]string, error) {
	var files []string

	objectCh := m.client.ListObjects(ctx, m.audioBucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	for object := range objectCh {
		if object.Err != nil {
			return nil, fmt.Errorf("error listing objects: %w", object.Err)
		}
		files = append(files, object.Key)
	}

	return files, nil
}
