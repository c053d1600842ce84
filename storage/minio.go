package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"queuesync/config"
	"queuesync/model"
)

var minioClient *minio.Client

// InitMinio initializes the MinIO client. Returns (false, nil) when no
// endpoint is configured; object storage is optional for this service.
func InitMinio(cfg *config.Config) (bool, error) {
	if cfg.MinioEndpoint == "" {
		return false, nil
	}

	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return false, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}

	minioClient = client
	return true, nil
}

// GetMinioClient returns the shared MinIO client, or nil if not configured.
func GetMinioClient() *minio.Client {
	return minioClient
}

// MediaStore resolves track audio objects into presigned URLs.
type MediaStore struct {
	client *minio.Client
	bucket string
}

// NewMediaStore creates a media store over the given client and bucket.
func NewMediaStore(client *minio.Client, bucket string) *MediaStore {
	return &MediaStore{client: client, bucket: bucket}
}

// ResolveAudioURL returns a presigned URL for the track's audio object.
// Objects are laid out as audio/<file_id>.<file_type>.
func (s *MediaStore) ResolveAudioURL(ctx context.Context, track *model.Track) (string, error) {
	object := fmt.Sprintf("audio/%s", track.FileID)
	if track.FileType != "" {
		object = fmt.Sprintf("audio/%s.%s", track.FileID, track.FileType)
	}

	u, err := s.client.PresignedGetObject(ctx, s.bucket, object, time.Hour, nil)
	if err != nil {
		return "", fmt.Errorf("failed to presign audio object %s: %w", object, err)
	}
	return u.String(), nil
}
