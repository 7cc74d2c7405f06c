package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/danuarta/suaraniaga/internal/intent"
	"github.com/danuarta/suaraniaga/internal/pipeline"
	"github.com/danuarta/suaraniaga/internal/storage"
)

// maxUploadSize matches the provider's audio upload cap.
const maxUploadSize = 25 << 20 // 25MB

const defaultTransactionsLimit = 10

// VoicePipeline runs the voice-to-intent chain.
type VoicePipeline interface {
	Process(ctx context.Context, audioPath string) (intent.ExtractedIntent, pipeline.Meta)
}

// TransactionStore is the persistence surface the API needs.
type TransactionStore interface {
	SaveTransaction(customerName *string, isDebt bool, items []storage.TransactionItem) (storage.Transaction, error)
	RecentTransactions(limit int) ([]storage.Transaction, error)
	SearchProducts(query string) ([]storage.Product, error)
}

// Deps holds the long-lived handles shared across requests.
type Deps struct {
	Store          TransactionStore
	Pipeline       VoicePipeline
	FrontendOrigin string
	Environment    string
	// TempDir overrides where uploads are buffered; empty means os.TempDir().
	TempDir string
}

// NewHandler returns the HTTP handler for the voice-processing API.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(CORS(deps.FrontendOrigin))

	r.Get("/health", handleHealth(deps))
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/transcribe", handleTranscribe(deps))
		r.Get("/transactions", handleTransactions(deps))
		r.Get("/products/search", handleProductSearch(deps))
	})

	return r
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":      "healthy",
			"environment": deps.Environment,
			"service":     "suaraniaga",
		})
	}
}

// handleTranscribe accepts a multipart audio upload, buffers it to a
// uuid-named temp file for the duration of the pipeline run, and dispatches
// persistence based on the extracted intent. The temp file is removed on
// every exit path.
func handleTranscribe(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

		file, header, err := r.FormFile("file")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid file provided: %v", err)
			return
		}
		defer file.Close()
		if header.Filename == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid file provided")
			return
		}

		tmpDir := deps.TempDir
		if tmpDir == "" {
			tmpDir = os.TempDir()
		}
		tmpPath := filepath.Join(tmpDir, fmt.Sprintf("temp_%s_%s", uuid.New().String(), filepath.Base(header.Filename)))
		defer os.Remove(tmpPath)

		if err := bufferUpload(tmpPath, file); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "buffering audio upload: %v", err)
			return
		}

		result, meta := deps.Pipeline.Process(r.Context(), tmpPath)
		if meta.Degraded {
			slog.Warn("voice pipeline degraded", "cause", meta.Cause, "duration_ms", meta.DurationMs)
		}

		if result.Intent == intent.IntentTransaction {
			saved, err := deps.Store.SaveTransaction(result.CustomerName, result.IsDebt, toStorageItems(result.Items))
			if err != nil {
				slog.Error("transaction persistence failed", "error", err)
				result.DBStatus = "error: " + err.Error()
			} else {
				result.TransactionID = saved.ID
				result.DBStatus = "saved"
			}
		} else {
			result.DBStatus = "skipped"
		}

		writeJSON(w, http.StatusOK, envelope{Status: "success", Data: result})
	}
}

func bufferUpload(path string, src io.Reader) error {
	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

func toStorageItems(items []intent.Item) []storage.TransactionItem {
	out := make([]storage.TransactionItem, len(items))
	for i, item := range items {
		out[i] = storage.TransactionItem{
			ProductName: item.Name,
			Quantity:    item.Qty,
			Unit:        item.Unit,
		}
	}
	return out
}

func handleTransactions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", defaultTransactionsLimit, 100)

		transactions, err := deps.Store.RecentTransactions(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "database query failed: %v", err)
			return
		}
		if transactions == nil {
			transactions = []storage.Transaction{}
		}

		writeJSON(w, http.StatusOK, envelope{Status: "success", Data: transactions})
	}
}

func handleProductSearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("q")
		if query == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query parameter q is required")
			return
		}

		products, err := deps.Store.SearchProducts(query)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "product search failed: %v", err)
			return
		}
		if products == nil {
			products = []storage.Product{}
		}

		writeJSON(w, http.StatusOK, envelope{Status: "success", Data: products})
	}
}

// envelope is the response wrapper the frontend expects.
type envelope struct {
	Status string `json:"status"`
	Data   any    `json:"data"`
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
