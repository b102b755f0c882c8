package models

import "time"

// TrackingStatus is the state of an asynchronously dispatched batch.
type TrackingStatus string

const (
	TrackingProcessing TrackingStatus = "processing"
	TrackingCompleted  TrackingStatus = "completed"
	TrackingFailed     TrackingStatus = "failed"
)

// TrackingRecord represents one dispatched batch in the tracking store.
// Results is only populated once Status is completed.
type TrackingRecord struct {
	ID           string             `json:"trackingId" firestore:"id"`
	Status       TrackingStatus     `json:"status" firestore:"status"`
	Total        int                `json:"total" firestore:"total"`
	Completed    int                `json:"completed" firestore:"completed"`
	SuccessCount int                `json:"successCount" firestore:"successCount"`
	FailureCount int                `json:"failureCount" firestore:"failureCount"`
	CurrentBatch int                `json:"currentBatch" firestore:"currentBatch"`
	BatchCount   int                `json:"batchCount" firestore:"batchCount"`
	Results      []ExtractionResult `json:"results,omitempty" firestore:"results,omitempty"`
	ErrorDetails string             `json:"error,omitempty" firestore:"errorDetails,omitempty"`
	CreatedAt    time.Time          `json:"createdAt" firestore:"createdAt"`
	UpdatedAt    time.Time          `json:"updatedAt" firestore:"updatedAt"`
	ExpiresAt    time.Time          `json:"expiresAt" firestore:"expiresAt"`
}

// JobRecord is the persisted state of a staged resource and its analysis job,
// kept so a restarted process can find and release orphaned objects.
type JobRecord struct {
	Resource     StagedResource `firestore:"resource"`
	DocumentName string         `firestore:"documentName"`
	JobID        string         `firestore:"jobId,omitempty"`
	Status       string         `firestore:"status"`
	UpdatedAt    time.Time      `firestore:"updatedAt"`
}

const (
	JobRecordStaged    = "STAGED"
	JobRecordSubmitted = "SUBMITTED"
)
