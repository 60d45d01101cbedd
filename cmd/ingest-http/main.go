package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/clinicaltrialexplorer/internal/ingest"
	"github.com/Lllllllleong/clinicaltrialexplorer/internal/models"
	"github.com/Lllllllleong/clinicaltrialexplorer/internal/services"
)

var (
	ingesterInstance *services.IngestFunction
	once             sync.Once
	initErr          error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// "HandleIngest" is the entry point name we'll see in GCP.
	functions.HTTP("HandleIngest", handleIngest)
}

// main is required by the Go Functions Framework.
func main() {}

// handleIngest ingests a JSON batch of base64 PDFs and answers with per-file outcomes.
func handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	once.Do(func() {
		ingesterInstance, initErr = services.NewIngester(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	var req models.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Could not decode request body", "error", err)
		http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
		return
	}

	res, err := ingesterInstance.Process(r.Context(), &req)
	if errors.Is(err, ingest.ErrEmptyBatch) {
		http.Error(w, "Bad Request: no files", http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, "Bad Request: "+err.Error(), http.StatusBadRequest)
		return
	}

	status := http.StatusOK
	for _, o := range res.Outcomes {
		if !o.Succeeded() {
			status = http.StatusMultiStatus
			break
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(res); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}
