package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/vertexai/genai"
)

// --- Recognizer Model Prompts ---
const RecognizerSystemPrompt = "You are an OCR engine for business documents. You transcribe the text of a single document page exactly as printed. You never summarize, translate, or comment."
const RecognizerUserPrompt = `Transcribe all text on this page.

Rules:
1. Output plain text only, no markdown and no code fences.
2. Keep one printed line per output line, top to bottom, left to right.
3. Keep labels next to their values on the same line, e.g. "Invoice Number: 1042" or "Total Due: $120.00".
4. Reproduce numbers, currency symbols, and dates exactly as printed.
5. For tables, write each row on its own line with cells separated by two spaces.
6. If the page has no text, output nothing.`

// VertexClient holds the pre-configured generative model used for recognition.
type VertexClient struct {
	RecognizerModel *genai.GenerativeModel
	baseClient      *genai.Client
}

// NewVertexClient creates a new client configured for page transcription.
func NewVertexClient(ctx context.Context, projectID, region, modelName string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}
	if modelName == "" {
		modelName = "gemini-1.5-pro"
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	recognizerModel := baseClient.GenerativeModel(modelName)
	recognizerModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(RecognizerSystemPrompt)},
	}
	recognizerModel.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "text/plain",
		Temperature:      genai.Ptr[float32](0.0), // Transcription must be deterministic.
	}

	return &VertexClient{
		RecognizerModel: recognizerModel,
		baseClient:      baseClient,
	}, nil
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}
