package gcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/documentextraction/internal/extraction"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// BucketStore stages objects in a single GCS bucket.
type BucketStore struct {
	client *storage.Client
	bucket string
}

var _ extraction.ObjectStore = (*BucketStore)(nil)

// NewBucketStore wraps an existing storage client.
func NewBucketStore(client *storage.Client, bucket string) *BucketStore {
	return &BucketStore{client: client, bucket: bucket}
}

func (s *BucketStore) Bucket() string { return s.bucket }

// URI returns the gs:// reference the analysis service reads from.
func (s *BucketStore) URI(key string) string {
	return fmt.Sprintf("gs://%s/%s", s.bucket, key)
}

// Put writes data to key only if the object doesn't already exist.
// A precondition failure is reported as extraction.ErrObjectExists.
func (s *BucketStore) Put(ctx context.Context, key string, data []byte) error {
	writer := s.client.Bucket(s.bucket).Object(key).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)

	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		_ = writer.Close()
		if isPreconditionFailed(err) {
			return fmt.Errorf("gs://%s/%s: %w", s.bucket, key, extraction.ErrObjectExists)
		}
		return fmt.Errorf("failed to write to GCS: %w", err)
	}

	// The precondition is usually only evaluated when the upload is finalized.
	if err := writer.Close(); err != nil {
		if isPreconditionFailed(err) {
			return fmt.Errorf("gs://%s/%s: %w", s.bucket, key, extraction.ErrObjectExists)
		}
		return fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return nil
}

// Delete removes the object. A missing object counts as deleted.
func (s *BucketStore) Delete(ctx context.Context, key string) error {
	err := s.client.Bucket(s.bucket).Object(key).Delete(ctx)
	if err == nil || errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	return fmt.Errorf("failed to delete gs://%s/%s: %w", s.bucket, key, err)
}

// ListOlder returns the keys under prefix created before the cutoff.
func (s *BucketStore) ListOlder(ctx context.Context, prefix string, before time.Time) ([]string, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: prefix})

	var keys []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list objects in gs://%s/%s: %w", s.bucket, prefix, err)
		}
		if attrs.Created.Before(before) {
			keys = append(keys, attrs.Name)
		}
	}
	return keys, nil
}

// ReadObject downloads a gs:// URI into memory.
func ReadObject(ctx context.Context, client *storage.Client, gcsURI string) ([]byte, error) {
	bucket, object, err := ParseGCSURI(gcsURI)
	if err != nil {
		return nil, err
	}
	reader, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get GCS object reader for %s: %w", gcsURI, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", gcsURI, err)
	}
	slog.Debug("Downloaded GCS object.", "gcsUri", gcsURI, "bytes", len(data))
	return data, nil
}

// ParseGCSURI splits gs://bucket/object into its parts.
func ParseGCSURI(uri string) (bucket, object string, err error) {
	rest, ok := strings.CutPrefix(uri, "gs://")
	if !ok {
		return "", "", fmt.Errorf("not a gs:// uri: %q", uri)
	}
	bucket, object, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("gs:// uri must name a bucket and an object: %q", uri)
	}
	return bucket, object, nil
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}
