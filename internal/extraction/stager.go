package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/Lllllllleong/documentextraction/internal/models"
	"github.com/google/uuid"
)

// ObjectStore is the remote storage the stager copies documents into.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	Bucket() string
	URI(key string) string
}

const (
	maxKeyAttempts = 3
	releaseTimeout = 30 * time.Second
)

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Stager uploads documents to an ObjectStore and releases them afterwards.
type Stager struct {
	store  ObjectStore
	prefix string
	logger *slog.Logger
	now    func() time.Time
}

// NewStager creates a Stager writing under prefix.
func NewStager(store ObjectStore, prefix string, logger *slog.Logger) *Stager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stager{
		store:  store,
		prefix: strings.Trim(prefix, "/"),
		logger: logger,
		now:    time.Now,
	}
}

// Stage copies data to remote storage under a fresh key. A key collision is
// retried with a new key; any other write failure is a *StagingError.
func (s *Stager) Stage(ctx context.Context, data []byte, name string) (models.StagedResource, error) {
	var lastErr error
	for i := 0; i < maxKeyAttempts; i++ {
		id := uuid.NewString()
		key := s.key(id, name)
		err := s.store.Put(ctx, key, data)
		if err == nil {
			return models.StagedResource{
				ID:     id,
				Key:    key,
				Bucket: s.store.Bucket(),
				URI:    s.store.URI(key),
			}, nil
		}
		lastErr = err
		if !errors.Is(err, ErrObjectExists) {
			break
		}
		s.logger.Warn("Staging key collision, retrying with a new key.", "key", key, "attempt", i+1)
	}
	return models.StagedResource{}, &StagingError{Name: name, Err: lastErr}
}

// Release deletes the staged object. Failures are logged and swallowed.
// The delete runs even if ctx has been cancelled.
func (s *Stager) Release(ctx context.Context, res models.StagedResource) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := s.store.Delete(rctx, res.Key); err != nil {
		s.logger.Error("Failed to release staged resource.", "bucket", res.Bucket, "key", res.Key, "error", err)
		return
	}
	s.logger.Debug("Released staged resource.", "key", res.Key)
}

func (s *Stager) key(id, name string) string {
	base := unsafeKeyChars.ReplaceAllString(path.Base(name), "_")
	if base == "" || base == "." || base == "_" {
		base = "document"
	}
	object := fmt.Sprintf("%d-%s-%s", s.now().UnixMilli(), id[:8], base)
	if s.prefix == "" {
		return object
	}
	return s.prefix + "/" + object
}

// KeyPrefix is the prefix all staged keys share, with a trailing slash.
func (s *Stager) KeyPrefix() string {
	if s.prefix == "" {
		return ""
	}
	return s.prefix + "/"
}

// ReleaseKey deletes an object by key, returning the error instead of logging it.
// It is used when cleaning up orphans found outside a running pipeline.
func (s *Stager) ReleaseKey(ctx context.Context, key string) error {
	if err := s.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to delete staged object %s: %w", key, err)
	}
	return nil
}
