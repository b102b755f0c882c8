package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Lllllllleong/documentextraction/internal/models"
	"github.com/Lllllllleong/documentextraction/internal/tracking"
)

const (
	maxUploadBytes = 64 << 20
	formFilesKey   = "files"
)

// BatchDispatcher starts batches and reports on them by tracking id.
type BatchDispatcher interface {
	Submit(ctx context.Context, docs []models.Document, maxConcurrency int) (models.TrackingRecord, error)
	Status(ctx context.Context, id string) (models.TrackingRecord, error)
}

// ExtractionAPI accepts document batches over HTTP and reports their progress.
type ExtractionAPI struct {
	dispatcher         BatchDispatcher
	defaultConcurrency int
	logger             *slog.Logger
}

func NewExtractionAPI(dispatcher BatchDispatcher, defaultConcurrency int, logger *slog.Logger) *ExtractionAPI {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExtractionAPI{
		dispatcher:         dispatcher,
		defaultConcurrency: defaultConcurrency,
		logger:             logger,
	}
}

func (a *ExtractionAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.submit(w, r)
	case http.MethodGet:
		a.status(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

func (a *ExtractionAPI) submit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		a.logger.Warn("Could not parse upload.", "error", err)
		http.Error(w, "Bad Request: expected multipart form with files", http.StatusBadRequest)
		return
	}

	maxConcurrency := a.defaultConcurrency
	if raw := r.FormValue("maxConcurrency"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "Bad Request: maxConcurrency must be an integer", http.StatusBadRequest)
			return
		}
		maxConcurrency = n
	}

	docs, err := readDocuments(r)
	if err != nil {
		a.logger.Warn("Could not read uploaded files.", "error", err)
		http.Error(w, "Bad Request: could not read uploaded files", http.StatusBadRequest)
		return
	}

	rec, err := a.dispatcher.Submit(r.Context(), docs, maxConcurrency)
	if err != nil {
		a.logger.Error("Failed to dispatch batch.", "error", err)
		http.Error(w, "Internal Server Error: could not start batch", http.StatusInternalServerError)
		return
	}
	a.logger.Info("Batch accepted.", "trackingId", rec.ID, "documents", len(docs), "maxConcurrency", maxConcurrency)

	writeJSON(w, a.logger, http.StatusAccepted, models.SubmitBatchResponse{
		TrackingID: rec.ID,
		Status:     rec.Status,
		Total:      rec.Total,
	})
}

func (a *ExtractionAPI) status(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Bad Request: id is required", http.StatusBadRequest)
		return
	}
	rec, err := a.dispatcher.Status(r.Context(), id)
	if errors.Is(err, tracking.ErrNotFound) {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	if err != nil {
		a.logger.Error("Failed to read tracking record.", "trackingId", id, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, a.logger, http.StatusOK, rec)
}

func readDocuments(r *http.Request) ([]models.Document, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	headers := r.MultipartForm.File[formFilesKey]
	docs := make([]models.Document, 0, len(headers))
	for _, fh := range headers {
		file, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", fh.Filename, err)
		}
		content, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", fh.Filename, err)
		}
		docs = append(docs, models.Document{Name: fh.Filename, Content: content})
	}
	return docs, nil
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to write response.", "error", err)
	}
}
