package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Store keeps snapshots as S3 objects, one per session, so resumable
// sessions survive process restarts and can be picked up by any replica.
//
//	cfg, _ := config.LoadDefaultConfig(ctx)
//	store := remote.NewS3Store(s3.NewFromConfig(cfg), "my-bucket", "loom/sessions/")
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Store wraps an S3 client. prefix namespaces the session objects
// within the bucket, e.g. "loom/sessions/".
func NewS3Store(client *s3.Client, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Store) key(sessionID string) string {
	return s.prefix + sessionID
}

func (s *S3Store) Save(ctx context.Context, sessionID string, data []byte, expiresAt time.Time) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(sessionID)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"expires-at": expiresAt.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return fmt.Errorf("remote: s3 save snapshot: %w", err)
	}
	return nil
}

func (s *S3Store) Load(ctx context.Context, sessionID string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(sessionID)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, nil
		}
		return nil, fmt.Errorf("remote: s3 load snapshot: %w", err)
	}
	defer out.Body.Close()

	// The resume window is enforced by object metadata, since S3 lifecycle
	// rules operate on days, not minutes.
	if exp, ok := out.Metadata["expires-at"]; ok {
		t, err := time.Parse(time.RFC3339, exp)
		if err == nil && time.Now().After(t) {
			return nil, nil
		}
	}
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("remote: s3 read snapshot: %w", err)
	}
	return data, nil
}

func (s *S3Store) Delete(ctx context.Context, sessionID string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(sessionID)),
	})
	if err != nil {
		return fmt.Errorf("remote: s3 delete snapshot: %w", err)
	}
	return nil
}

func (s *S3Store) Close() error { return nil }
