package extraction

import (
	"errors"
	"fmt"
)

// ErrObjectExists is returned by an ObjectStore when the key is already taken.
var ErrObjectExists = errors.New("object already exists")

// StagingError means the document's bytes could not be written to remote storage.
type StagingError struct {
	Name string
	Err  error
}

func (e *StagingError) Error() string {
	return fmt.Sprintf("staging %q failed: %v", e.Name, e.Err)
}

func (e *StagingError) Unwrap() error { return e.Err }

// SubmissionError means the analysis service rejected the job.
type SubmissionError struct {
	Location string
	Err      error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submitting analysis job for %s failed: %v", e.Location, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// AnalysisFailedError means the job reached a terminal failure status, or a
// status query itself failed.
type AnalysisFailedError struct {
	JobID  string
	Reason string
	Err    error
}

func (e *AnalysisFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("analysis job %s failed: %s: %v", e.JobID, e.Reason, e.Err)
	}
	return fmt.Sprintf("analysis job %s failed: %s", e.JobID, e.Reason)
}

func (e *AnalysisFailedError) Unwrap() error { return e.Err }

// AnalysisTimeoutError means the poll ceiling was exhausted with no terminal status.
type AnalysisTimeoutError struct {
	JobID    string
	Attempts int
}

func (e *AnalysisTimeoutError) Error() string {
	return fmt.Sprintf("analysis job %s timed out after %d poll attempts", e.JobID, e.Attempts)
}
