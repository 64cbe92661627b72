package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3API is the subset of *s3.Client used by S3Store.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store keeps one JSON object per session under bucket/prefix.
//
// Example usage:
//
//	cfg, _ := config.LoadDefaultConfig(ctx)
//	st := store.NewS3Store(s3.NewFromConfig(cfg), "my-bucket", "sessions/")
type S3Store struct {
	client S3API
	bucket string
	prefix string
	closed atomic.Bool
}

// Object metadata keys.
const (
	metaHot          = "is-hot"
	metaLastActivity = "last-activity"
)

// NewS3Store creates a store writing to bucket with keys "<prefix><sessionID>.json".
func NewS3Store(client S3API, bucket, prefix string) *S3Store {
	return &S3Store{
		client: client,
		bucket: bucket,
		prefix: prefix,
	}
}

// Key returns the object key used for sessionID.
func (s *S3Store) Key(sessionID string) string {
	return s.prefix + sessionID + ".json"
}

// Load fetches the session object. A missing key is reported as (nil, nil).
func (s *S3Store) Load(ctx context.Context, sessionID string) ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.Key(sessionID)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: s3 get %q: %w", sessionID, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("store: s3 read %q: %w", sessionID, err)
	}
	return data, nil
}

// Save overwrites the session object.
func (s *S3Store) Save(ctx context.Context, rec Record) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	if rec.SessionID == "" {
		return ErrEmptySessionID
	}

	lastActivity := rec.LastActivity
	if lastActivity.IsZero() {
		lastActivity = time.Now()
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.Key(rec.SessionID)),
		Body:        bytes.NewReader(rec.State),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			metaHot:          strconv.FormatBool(rec.Hot),
			metaLastActivity: lastActivity.UTC().Format(time.RFC3339Nano),
		},
	})
	if err != nil {
		return fmt.Errorf("store: s3 put %q: %w", rec.SessionID, err)
	}
	return nil
}

// Close marks the store closed. The S3 client holds no resources to release.
func (s *S3Store) Close() error {
	s.closed.Store(true)
	return nil
}

func isS3NotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
