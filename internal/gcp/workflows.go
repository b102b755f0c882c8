package gcp

import (
	"context"
	"encoding/json"
	"fmt"

	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
	"github.com/Lllllllleong/documentextraction/internal/extraction"
	"github.com/Lllllllleong/documentextraction/internal/models"
)

// WorkflowService runs one analysis workflow execution per document. The
// execution name is the job id.
type WorkflowService struct {
	client *executions.Client
	parent string
}

var (
	_ extraction.AnalysisService = (*WorkflowService)(nil)
	_ extraction.JobCanceller    = (*WorkflowService)(nil)
)

// WorkflowParent builds the resource name executions are created under.
func WorkflowParent(projectID, location, workflowID string) string {
	return fmt.Sprintf("projects/%s/locations/%s/workflows/%s", projectID, location, workflowID)
}

// NewWorkflowService creates an executions client for the given workflow.
func NewWorkflowService(ctx context.Context, projectID, location, workflowID string) (*WorkflowService, error) {
	if projectID == "" || location == "" || workflowID == "" {
		return nil, fmt.Errorf("NewWorkflowService: projectID, location and workflowID cannot be empty")
	}
	client, err := executions.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
	}
	return &WorkflowService{client: client, parent: WorkflowParent(projectID, location, workflowID)}, nil
}

// StartJob triggers an execution with the document's location as its argument.
func (s *WorkflowService) StartJob(ctx context.Context, locationRef string) (string, error) {
	payload, err := json.Marshal(models.AnalysisArgument{GCSUri: locationRef})
	if err != nil {
		return "", fmt.Errorf("failed to marshal workflow payload: %w", err)
	}
	exec, err := s.client.CreateExecution(ctx, &executionspb.CreateExecutionRequest{
		Parent:    s.parent,
		Execution: &executionspb.Execution{Argument: string(payload)},
	})
	if err != nil {
		return "", fmt.Errorf("failed to trigger workflow execution: %w", err)
	}
	return exec.GetName(), nil
}

// GetJobStatus reads the execution and maps it onto the service vocabulary.
func (s *WorkflowService) GetJobStatus(ctx context.Context, jobID string) (models.JobStatusReport, error) {
	exec, err := s.client.GetExecution(ctx, &executionspb.GetExecutionRequest{Name: jobID})
	if err != nil {
		return models.JobStatusReport{}, fmt.Errorf("failed to get workflow execution %s: %w", jobID, err)
	}
	return reportFromExecution(exec), nil
}

// CancelJob stops a running execution.
func (s *WorkflowService) CancelJob(ctx context.Context, jobID string) error {
	if _, err := s.client.CancelExecution(ctx, &executionspb.CancelExecutionRequest{Name: jobID}); err != nil {
		return fmt.Errorf("failed to cancel workflow execution %s: %w", jobID, err)
	}
	return nil
}

func (s *WorkflowService) Close() error {
	return s.client.Close()
}

func reportFromExecution(exec *executionspb.Execution) models.JobStatusReport {
	switch exec.GetState() {
	case executionspb.Execution_SUCCEEDED:
		var res models.RecognizeResponse
		if err := json.Unmarshal([]byte(exec.GetResult()), &res); err != nil {
			return models.JobStatusReport{
				State:  models.ServiceFailed,
				Reason: fmt.Sprintf("could not decode workflow result: %v", err),
			}
		}
		return models.JobStatusReport{State: models.ServiceSucceeded, Fragments: res.Fragments}
	case executionspb.Execution_FAILED, executionspb.Execution_CANCELLED, executionspb.Execution_UNAVAILABLE:
		reason := exec.GetError().GetPayload()
		if reason == "" {
			reason = "execution " + exec.GetState().String()
		}
		return models.JobStatusReport{State: models.ServiceFailed, Reason: reason}
	default:
		return models.JobStatusReport{State: models.ServiceInProgress}
	}
}
