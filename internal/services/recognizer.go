package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"cloud.google.com/go/vertexai/genai"
	"github.com/Lllllllleong/documentextraction/internal/config"
	"github.com/Lllllllleong/documentextraction/internal/gcp"
	"github.com/Lllllllleong/documentextraction/internal/models"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/sync/errgroup"
)

// pageConcurrency caps concurrent model calls for one document.
const pageConcurrency = 4

// PageTranscriber turns one page image or single-page PDF into text.
type PageTranscriber interface {
	Transcribe(ctx context.Context, mimeType string, data []byte) (string, error)
}

// ObjectReader fetches a staged object by its gs:// reference.
type ObjectReader func(ctx context.Context, gcsURI string) ([]byte, error)

// RecognizerFunction is the worker the analysis workflow calls for each
// staged document.
type RecognizerFunction struct {
	read        ObjectReader
	transcriber PageTranscriber
	logger      *slog.Logger
	closers     []func() error
}

// NewRecognizer creates a RecognizerFunction backed by GCS and Gemini.
func NewRecognizer(ctx context.Context, cfg config.Config, logger *slog.Logger) (*RecognizerFunction, error) {
	if err := cfg.ValidateRecognizer(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	vertexClient, err := gcp.NewVertexClient(ctx, cfg.ProjectID, cfg.Vertex.Region, cfg.Vertex.Model)
	if err != nil {
		storageClient.Close()
		return nil, fmt.Errorf("failed to create vertex client: %w", err)
	}

	r := NewRecognizerWith(
		func(ctx context.Context, uri string) ([]byte, error) {
			return gcp.ReadObject(ctx, storageClient, uri)
		},
		&GeminiTranscriber{model: vertexClient.RecognizerModel, logger: logger},
		logger,
	)
	r.closers = []func() error{storageClient.Close, vertexClient.Close}
	return r, nil
}

// NewRecognizerWith creates a RecognizerFunction from explicit dependencies.
func NewRecognizerWith(read ObjectReader, transcriber PageTranscriber, logger *slog.Logger) *RecognizerFunction {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecognizerFunction{read: read, transcriber: transcriber, logger: logger}
}

// Process downloads the staged document and returns its text, one fragment per
// page in page order.
func (f *RecognizerFunction) Process(ctx context.Context, req *models.RecognizeRequest) (*models.RecognizeResponse, error) {
	logCtx := f.logger.With("gcsUri", req.GCSUri, "executionId", req.ExecutionID)
	if req.GCSUri == "" {
		return nil, fmt.Errorf("gcsUri is required")
	}
	logCtx.Info("Starting recognition.")

	data, err := f.read(ctx, req.GCSUri)
	if err != nil {
		logCtx.Error("Failed to download staged document.", "error", err)
		return nil, fmt.Errorf("failed to download %s: %w", req.GCSUri, err)
	}

	mimeType := detectMIMEType(req.GCSUri, data)
	logCtx = logCtx.With("mimeType", mimeType)

	pages := [][]byte{data}
	if mimeType == "application/pdf" {
		pages, err = splitPDF(data)
		if err != nil {
			logCtx.Error("Failed to split PDF.", "error", err)
			return nil, err
		}
	}

	fragments, err := f.transcribePages(ctx, logCtx, mimeType, pages)
	if err != nil {
		logCtx.Error("Recognition failed.", "error", err)
		return nil, err
	}

	logCtx.Info("Recognition complete.", "pageCount", len(pages))
	return &models.RecognizeResponse{
		Status:    "success",
		PageCount: len(pages),
		Fragments: fragments,
	}, nil
}

func (f *RecognizerFunction) Close() error {
	var firstErr error
	for _, c := range f.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (f *RecognizerFunction) transcribePages(ctx context.Context, logCtx *slog.Logger, mimeType string, pages [][]byte) ([]string, error) {
	fragments := make([]string, len(pages))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(pageConcurrency)

	for i, page := range pages {
		eg.Go(func() error {
			text, err := f.transcriber.Transcribe(gctx, mimeType, page)
			if err != nil {
				return fmt.Errorf("page %d: %w", i+1, err)
			}
			if text == "" {
				logCtx.Warn("No text recognized on page.", "page", i+1)
			}
			fragments[i] = text
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return fragments, nil
}

var extensionTypes = map[string]string{
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
}

// detectMIMEType sniffs the content first and falls back to the extension,
// which staged keys preserve from the original file name.
func detectMIMEType(name string, data []byte) string {
	sniffed := http.DetectContentType(data)
	if i := strings.IndexByte(sniffed, ';'); i >= 0 {
		sniffed = sniffed[:i]
	}
	if sniffed != "application/octet-stream" && sniffed != "text/plain" {
		return sniffed
	}
	if t, ok := extensionTypes[strings.ToLower(path.Ext(name))]; ok {
		return t
	}
	return sniffed
}

// splitPDF validates and optimizes the document, then returns each page as a
// standalone PDF.
func splitPDF(data []byte) ([][]byte, error) {
	tempDir, err := os.MkdirTemp("", "page-recognizer-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	source := filepath.Join(tempDir, "source.pdf")
	if err := os.WriteFile(source, data, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write source PDF: %w", err)
	}
	optimized := filepath.Join(tempDir, "optimized.pdf")
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	if err := api.OptimizeFile(source, optimized, cfg); err != nil {
		return nil, fmt.Errorf("failed to validate/optimize PDF: %w", err)
	}
	pageCount, err := api.PageCountFile(optimized)
	if err != nil {
		return nil, fmt.Errorf("failed to get page count: %w", err)
	}
	if pageCount == 1 {
		page, err := os.ReadFile(optimized)
		if err != nil {
			return nil, fmt.Errorf("failed to read optimized PDF: %w", err)
		}
		return [][]byte{page}, nil
	}

	if err := api.SplitFile(optimized, tempDir, 1, cfg); err != nil {
		return nil, fmt.Errorf("failed to split PDF: %w", err)
	}
	base := strings.TrimSuffix(optimized, filepath.Ext(optimized))
	pages := make([][]byte, pageCount)
	for i := range pages {
		page, err := os.ReadFile(fmt.Sprintf("%s_%d.pdf", base, i+1))
		if err != nil {
			return nil, fmt.Errorf("failed to read page %d: %w", i+1, err)
		}
		pages[i] = page
	}
	return pages, nil
}

// GeminiTranscriber transcribes pages with a Vertex AI generative model.
type GeminiTranscriber struct {
	model  *genai.GenerativeModel
	logger *slog.Logger
}

func (t *GeminiTranscriber) Transcribe(ctx context.Context, mimeType string, data []byte) (string, error) {
	resp, err := t.model.GenerateContent(ctx, genai.Blob{MIMEType: mimeType, Data: data}, genai.Text(gcp.RecognizerUserPrompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content from gemini: %w", err)
	}
	text := extractText(resp)
	if isRefusal(text) {
		t.logger.Warn("Model refused to transcribe page, treating as empty.", "response", text)
		return "", nil
	}
	return text, nil
}

// extractText concatenates the text parts of the first candidate and strips
// any code fence the model wrapped them in.
func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	text := strings.TrimSpace(b.String())
	text = strings.TrimPrefix(text, "```text")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

var refusalPhrases = []string{
	"i am unable to",
	"i cannot fulfill",
	"i cannot answer",
	"i cannot provide",
	"as a large language model",
}

func isRefusal(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
