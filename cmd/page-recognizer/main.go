package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/documentextraction/internal/config"
	"github.com/Lllllllleong/documentextraction/internal/logging"
	"github.com/Lllllllleong/documentextraction/internal/models"
	"github.com/Lllllllleong/documentextraction/internal/services"
)

var (
	recognizerInstance *services.RecognizerFunction
	once               sync.Once
	initErr            error
)

func init() {
	slog.SetDefault(logging.NewFunctionLogger(slog.LevelInfo))

	// "HandleRecognize" is the entry point the analysis workflow calls.
	functions.HTTP("HandleRecognize", handleRecognize)
}

// main is required by the Go Functions Framework.
func main() {}

func handleRecognize(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		var cfg config.Config
		cfg, initErr = config.Load("")
		if initErr != nil {
			return
		}
		recognizerInstance, initErr = services.NewRecognizer(context.Background(), cfg, slog.Default())
	})
	if initErr != nil {
		slog.Error("Recognizer initialization failed.", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	var req models.RecognizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Could not decode request body.", "error", err)
		http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
		return
	}

	res, err := recognizerInstance.Process(r.Context(), &req)
	if err != nil {
		// Already logged with context; a 5xx lets the workflow retry the step.
		http.Error(w, "Internal Server Error: processing failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		slog.Error("Failed to write response.", "error", err)
	}
}
