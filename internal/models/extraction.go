package models

import "time"

// Document is one input file handed to the orchestrator.
type Document struct {
	Name    string
	Content []byte
}

// StagedResource identifies where a Document's bytes live in remote storage.
type StagedResource struct {
	ID     string `json:"id" firestore:"id"`
	Key    string `json:"key" firestore:"key"`
	Bucket string `json:"bucket" firestore:"bucket"`
	URI    string `json:"uri" firestore:"uri"`
}

// JobStatus is the lifecycle state of an ExtractionJob.
type JobStatus string

const (
	JobSubmitted JobStatus = "SUBMITTED"
	JobPolling   JobStatus = "POLLING"
	JobSucceeded JobStatus = "SUCCEEDED"
	JobFailed    JobStatus = "FAILED"
	JobTimedOut  JobStatus = "TIMED_OUT"
)

// Terminal reports whether no further transitions are allowed from s.
func (s JobStatus) Terminal() bool {
	return s == JobSucceeded || s == JobFailed || s == JobTimedOut
}

// ExtractionJob is one in-flight request to the analysis service.
type ExtractionJob struct {
	ID       string
	Resource StagedResource
	Status   JobStatus
	Attempts int
}

// ServiceState is the status vocabulary reported by the analysis service.
type ServiceState string

const (
	ServiceInProgress ServiceState = "IN_PROGRESS"
	ServiceSucceeded  ServiceState = "SUCCEEDED"
	ServiceFailed     ServiceState = "FAILED"
)

// JobStatusReport is a single answer to a status query.
type JobStatusReport struct {
	State     ServiceState
	Fragments []string
	Reason    string
}

// ExtractionRecord holds the fields recognized in a document's raw text.
type ExtractionRecord struct {
	InvoiceNumber *string  `json:"invoiceNumber,omitempty" firestore:"invoiceNumber,omitempty"`
	Counterparty  *string  `json:"counterparty,omitempty" firestore:"counterparty,omitempty"`
	Amount        *float64 `json:"amount,omitempty" firestore:"amount,omitempty"`
	Currency      *string  `json:"currency,omitempty" firestore:"currency,omitempty"`
	IssueDate     *string  `json:"issueDate,omitempty" firestore:"issueDate,omitempty"`
	DueDate       *string  `json:"dueDate,omitempty" firestore:"dueDate,omitempty"`
	Confidence    float64  `json:"confidence" firestore:"confidence"`
	RawText       string   `json:"rawText" firestore:"rawText"`
}

// ExtractionResult is the per-document outcome returned to callers.
// Index is the document's position in the submitted input.
type ExtractionResult struct {
	Index   int               `json:"index" firestore:"index"`
	Name    string            `json:"name" firestore:"name"`
	Success bool              `json:"success" firestore:"success"`
	Record  *ExtractionRecord `json:"record,omitempty" firestore:"record,omitempty"`
	Error   string            `json:"error,omitempty" firestore:"error,omitempty"`
	Elapsed time.Duration     `json:"elapsedNs" firestore:"elapsedNs"`
}

// ProgressSnapshot is emitted once per completed batch.
type ProgressSnapshot struct {
	Completed    int
	Total        int
	CurrentBatch int
	BatchCount   int
	SuccessCount int
	FailureCount int
	Results      []ExtractionResult
}

// ProgressFunc receives progress snapshots. It is called from the orchestrator's
// control goroutine, never concurrently.
type ProgressFunc func(ProgressSnapshot)
