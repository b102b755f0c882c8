package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/documentextraction/internal/models"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// resultsCollection holds one document per ExtractionResult under each
// tracking record, keeping the record itself well below the document size
// limit however large the batch.
const resultsCollection = "results"

// FirestoreStore keeps tracking records in a Firestore collection, one
// document per tracking id.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

var _ Store = (*FirestoreStore)(nil)

func NewFirestoreStore(client *firestore.Client, collection string) *FirestoreStore {
	return &FirestoreStore{client: client, collection: collection}
}

func (s *FirestoreStore) Create(ctx context.Context, rec models.TrackingRecord) error {
	rec.Results = nil
	if _, err := s.client.Collection(s.collection).Doc(rec.ID).Create(ctx, rec); err != nil {
		return fmt.Errorf("failed to create tracking record %s: %w", rec.ID, err)
	}
	return nil
}

// Update writes rec. Results go to the results subcollection first, so a
// reader that sees the final status also sees every result.
func (s *FirestoreStore) Update(ctx context.Context, rec models.TrackingRecord) error {
	ref := s.client.Collection(s.collection).Doc(rec.ID)
	if len(rec.Results) > 0 {
		if err := s.writeResults(ctx, ref, rec.Results); err != nil {
			return fmt.Errorf("failed to write results for tracking record %s: %w", rec.ID, err)
		}
	}
	rec.Results = nil
	if _, err := ref.Set(ctx, rec); err != nil {
		return fmt.Errorf("failed to update tracking record %s: %w", rec.ID, err)
	}
	return nil
}

func (s *FirestoreStore) writeResults(ctx context.Context, ref *firestore.DocumentRef, results []models.ExtractionResult) error {
	bw := s.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(results))
	for i, r := range results {
		job, err := bw.Set(ref.Collection(resultsCollection).Doc(resultDocID(i)), r)
		if err != nil {
			bw.End()
			return err
		}
		jobs = append(jobs, job)
	}
	bw.End()

	var errs []error
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// resultDocID keeps completion order under lexical document id order.
func resultDocID(pos int) string {
	return fmt.Sprintf("%06d", pos)
}

func (s *FirestoreStore) Get(ctx context.Context, id string) (models.TrackingRecord, error) {
	ref := s.client.Collection(s.collection).Doc(id)
	snap, err := ref.Get(ctx)
	if status.Code(err) == codes.NotFound {
		return models.TrackingRecord{}, ErrNotFound
	}
	if err != nil {
		return models.TrackingRecord{}, fmt.Errorf("failed to read tracking record %s: %w", id, err)
	}
	var rec models.TrackingRecord
	if err := snap.DataTo(&rec); err != nil {
		return models.TrackingRecord{}, fmt.Errorf("failed to decode tracking record %s: %w", id, err)
	}
	if rec.Status != models.TrackingCompleted {
		return rec, nil
	}

	docs, err := ref.Collection(resultsCollection).OrderBy(firestore.DocumentID, firestore.Asc).Documents(ctx).GetAll()
	if err != nil {
		return models.TrackingRecord{}, fmt.Errorf("failed to read results for tracking record %s: %w", id, err)
	}
	rec.Results = make([]models.ExtractionResult, 0, len(docs))
	for _, d := range docs {
		var r models.ExtractionResult
		if err := d.DataTo(&r); err != nil {
			return models.TrackingRecord{}, fmt.Errorf("failed to decode result %s/%s: %w", id, d.Ref.ID, err)
		}
		rec.Results = append(rec.Results, r)
	}
	return rec, nil
}

func (s *FirestoreStore) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	q := s.client.Collection(s.collection).Where("expiresAt", "<", before)
	return deleteWhereBefore(ctx, q, func(ref *firestore.DocumentRef) error {
		results, err := ref.Collection(resultsCollection).DocumentRefs(ctx).GetAll()
		if err != nil {
			return err
		}
		for _, r := range results {
			if _, err := r.Delete(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

// FirestoreJournal persists job records so orphaned staged objects can be
// found after a restart.
type FirestoreJournal struct {
	client     *firestore.Client
	collection string
}

var _ JobJournal = (*FirestoreJournal)(nil)

func NewFirestoreJournal(client *firestore.Client, collection string) *FirestoreJournal {
	return &FirestoreJournal{client: client, collection: collection}
}

func (j *FirestoreJournal) Put(ctx context.Context, rec models.JobRecord) error {
	if _, err := j.client.Collection(j.collection).Doc(rec.Resource.ID).Set(ctx, rec); err != nil {
		return fmt.Errorf("failed to write job record %s: %w", rec.Resource.ID, err)
	}
	return nil
}

func (j *FirestoreJournal) Delete(ctx context.Context, id string) error {
	if _, err := j.client.Collection(j.collection).Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete job record %s: %w", id, err)
	}
	return nil
}

func (j *FirestoreJournal) ListStale(ctx context.Context, before time.Time) ([]models.JobRecord, error) {
	it := j.client.Collection(j.collection).Where("updatedAt", "<", before).Documents(ctx)
	defer it.Stop()

	var out []models.JobRecord
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to query stale job records: %w", err)
		}
		var rec models.JobRecord
		if err := snap.DataTo(&rec); err != nil {
			return nil, fmt.Errorf("failed to decode job record %s: %w", snap.Ref.ID, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// deleteWhereBefore deletes every document q matches, calling children
// first on each when it is set.
func deleteWhereBefore(ctx context.Context, q firestore.Query, children func(*firestore.DocumentRef) error) (int, error) {
	it := q.Documents(ctx)
	defer it.Stop()

	n := 0
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return n, fmt.Errorf("failed to query expired records: %w", err)
		}
		if children != nil {
			if err := children(snap.Ref); err != nil {
				return n, fmt.Errorf("failed to delete children of %s: %w", snap.Ref.ID, err)
			}
		}
		if _, err := snap.Ref.Delete(ctx); err != nil {
			return n, fmt.Errorf("failed to delete %s: %w", snap.Ref.ID, err)
		}
		n++
	}
	return n, nil
}
