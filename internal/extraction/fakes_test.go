package extraction

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Lllllllleong/documentextraction/internal/models"
)

// Document contents that steer the fakes.
const (
	contentFailStage    = "fail-stage"
	contentFailSubmit   = "fail-submit"
	contentFailAnalysis = "fail-analysis"
	contentHang         = "hang"
	contentPanicPoll    = "panic-poll"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	puts      []string
	deletes   map[string]int
	putErr    func(key string, data []byte) error
	deleteErr error
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}, deletes: map[string]int{}}
}

func (s *memStore) Put(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		if err := s.putErr(key, data); err != nil {
			return err
		}
	}
	if string(data) == contentFailStage {
		return errors.New("bucket unavailable")
	}
	if _, ok := s.objects[key]; ok {
		return ErrObjectExists
	}
	s.objects[key] = data
	s.puts = append(s.puts, key)
	return nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes[key]++
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.objects, key)
	return nil
}

func (s *memStore) Bucket() string { return "test-bucket" }

func (s *memStore) URI(key string) string { return "mem://test-bucket/" + key }

func (s *memStore) content(uri string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[strings.TrimPrefix(uri, "mem://test-bucket/")]
	return data, ok
}

func (s *memStore) stagedKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.puts...)
}

func (s *memStore) deleteCount(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deletes[key]
}

type fakeJob struct {
	content string
	polls   int
	polling bool
	done    bool
}

// fakeService succeeds a job after pollsToFinish status queries and returns
// the document content, split by line, as fragments.
type fakeService struct {
	store         *memStore
	pollsToFinish int
	delay         time.Duration

	mu        sync.Mutex
	seq       int
	jobs      map[string]*fakeJob
	active    int
	maxActive int
	starts    int
}

func newFakeService(store *memStore) *fakeService {
	return &fakeService{store: store, pollsToFinish: 2, jobs: map[string]*fakeJob{}}
}

func (f *fakeService) StartJob(_ context.Context, locationRef string) (string, error) {
	data, ok := f.store.content(locationRef)
	if !ok {
		return "", fmt.Errorf("no object at %s", locationRef)
	}
	if string(data) == contentFailSubmit {
		return "", errors.New("quota exceeded")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.starts++
	id := fmt.Sprintf("job-%d", f.seq)
	f.jobs[id] = &fakeJob{content: string(data)}
	return id, nil
}

func (f *fakeService) GetJobStatus(_ context.Context, jobID string) (models.JobStatusReport, error) {
	f.mu.Lock()
	j, ok := f.jobs[jobID]
	if !ok {
		f.mu.Unlock()
		return models.JobStatusReport{}, fmt.Errorf("unknown job %s", jobID)
	}
	j.polls++
	if !j.polling {
		j.polling = true
		f.active++
		f.maxActive = max(f.maxActive, f.active)
	}
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	switch j.content {
	case contentPanicPoll:
		panic("analysis client exploded")
	case contentHang:
		return models.JobStatusReport{State: models.ServiceInProgress}, nil
	case contentFailAnalysis:
		f.complete(j)
		return models.JobStatusReport{State: models.ServiceFailed, Reason: "unsupported document"}, nil
	}

	f.mu.Lock()
	ready := j.polls >= f.pollsToFinish
	f.mu.Unlock()
	if !ready {
		return models.JobStatusReport{State: models.ServiceInProgress}, nil
	}
	f.complete(j)
	return models.JobStatusReport{State: models.ServiceSucceeded, Fragments: strings.Split(j.content, "\n")}, nil
}

func (f *fakeService) complete(j *fakeJob) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !j.done {
		j.done = true
		f.active--
	}
}

func (f *fakeService) peakActive() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxActive
}

type memJournal struct {
	mu      sync.Mutex
	records map[string]models.JobRecord
	history []string
}

func newMemJournal() *memJournal {
	return &memJournal{records: map[string]models.JobRecord{}}
}

func (j *memJournal) Put(_ context.Context, rec models.JobRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records[rec.Resource.ID] = rec
	j.history = append(j.history, rec.Resource.ID+":"+rec.Status)
	return nil
}

func (j *memJournal) Delete(_ context.Context, id string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.records, id)
	j.history = append(j.history, id+":DELETED")
	return nil
}

// faultHandler panics when asked to handle a record with the given message.
type faultHandler struct {
	message string
}

func (h faultHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h faultHandler) Handle(_ context.Context, r slog.Record) error {
	if r.Message == h.message {
		panic("handler fault")
	}
	return nil
}

func (h faultHandler) WithAttrs([]slog.Attr) slog.Handler { return h }

func (h faultHandler) WithGroup(string) slog.Handler { return h }
