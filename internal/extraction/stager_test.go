package extraction

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageWritesUnderPrefix(t *testing.T) {
	store := newMemStore()
	s := NewStager(store, "/staging/", discardLogger())

	res, err := s.Stage(context.Background(), []byte("data"), "invoices/March Invoice.pdf")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(res.Key, "staging/"), res.Key)
	assert.True(t, strings.HasSuffix(res.Key, "-March_Invoice.pdf"), res.Key)
	assert.Equal(t, "test-bucket", res.Bucket)
	assert.Equal(t, "mem://test-bucket/"+res.Key, res.URI)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, "staging/", s.KeyPrefix())
}

func TestStageSameNameGetsDistinctKeys(t *testing.T) {
	store := newMemStore()
	s := NewStager(store, "staging", discardLogger())

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		res, err := s.Stage(context.Background(), []byte("x"), "invoice.pdf")
		require.NoError(t, err)
		assert.False(t, seen[res.Key], "duplicate key %s", res.Key)
		seen[res.Key] = true
	}
}

func TestStageRetriesOnCollision(t *testing.T) {
	store := newMemStore()
	calls := 0
	store.putErr = func(string, []byte) error {
		calls++
		if calls == 1 {
			return ErrObjectExists
		}
		return nil
	}
	s := NewStager(store, "staging", discardLogger())

	_, err := s.Stage(context.Background(), []byte("x"), "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestStageFailureIsStagingError(t *testing.T) {
	store := newMemStore()
	s := NewStager(store, "staging", discardLogger())

	_, err := s.Stage(context.Background(), []byte(contentFailStage), "broken.pdf")
	require.Error(t, err)

	var stagingErr *StagingError
	require.True(t, errors.As(err, &stagingErr))
	assert.Equal(t, "broken.pdf", stagingErr.Name)
	assert.Contains(t, err.Error(), "bucket unavailable")
	assert.Empty(t, store.stagedKeys())
}

func TestReleaseSwallowsErrors(t *testing.T) {
	store := newMemStore()
	s := NewStager(store, "staging", discardLogger())
	res, err := s.Stage(context.Background(), []byte("x"), "a.pdf")
	require.NoError(t, err)

	store.deleteErr = errors.New("permission denied")
	assert.NotPanics(t, func() { s.Release(context.Background(), res) })
	assert.Equal(t, 1, store.deleteCount(res.Key))
}

func TestReleaseRunsAfterCancellation(t *testing.T) {
	store := newMemStore()
	s := NewStager(store, "staging", discardLogger())
	res, err := s.Stage(context.Background(), []byte("x"), "a.pdf")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Release(ctx, res)

	_, ok := store.content(res.URI)
	assert.False(t, ok)
}

func TestReleaseKeyReturnsError(t *testing.T) {
	store := newMemStore()
	store.deleteErr = errors.New("gone wrong")
	s := NewStager(store, "", discardLogger())

	err := s.ReleaseKey(context.Background(), "orphan.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "orphan.pdf")
	assert.Equal(t, "", s.KeyPrefix())
}
