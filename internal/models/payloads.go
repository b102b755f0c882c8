package models

// These structs define the JSON payloads exchanged between the analysis
// workflow, the page recognizer, and callers of the extraction API.

// AnalysisArgument is the execution argument passed to the analysis workflow.
type AnalysisArgument struct {
	GCSUri string `json:"gcsUri"`
}

// RecognizeRequest is the input for the page-recognizer function.
type RecognizeRequest struct {
	GCSUri      string `json:"gcsUri"`
	ExecutionID string `json:"executionId"`
}

// RecognizeResponse is the output of the page-recognizer function and the
// result the analysis workflow returns on success.
type RecognizeResponse struct {
	Status    string   `json:"status"`
	PageCount int      `json:"pageCount"`
	Fragments []string `json:"fragments"`
}

// SubmitBatchResponse is returned when a batch is accepted by the extraction API.
type SubmitBatchResponse struct {
	TrackingID string         `json:"trackingId"`
	Status     TrackingStatus `json:"status"`
	Total      int            `json:"total"`
}

// SweepReport summarizes one run of the tracking sweeper.
type SweepReport struct {
	ExpiredRecords   int `json:"expiredRecords"`
	OrphansReleased  int `json:"orphansReleased"`
	OrphanReleaseErr int `json:"orphanReleaseErrors"`
}
