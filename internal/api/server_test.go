package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/danuarta/suaraniaga/internal/intent"
	"github.com/danuarta/suaraniaga/internal/pipeline"
	"github.com/danuarta/suaraniaga/internal/storage"
)

// mockPipeline returns a canned result and records the audio path it was
// given, plus whether the buffered file existed at call time.
type mockPipeline struct {
	result        intent.ExtractedIntent
	meta          pipeline.Meta
	gotPath       string
	fileExistedAt bool
}

func (m *mockPipeline) Process(ctx context.Context, audioPath string) (intent.ExtractedIntent, pipeline.Meta) {
	m.gotPath = audioPath
	_, err := os.Stat(audioPath)
	m.fileExistedAt = err == nil
	return m.result, m.meta
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testHandler(t *testing.T, store TransactionStore, p VoicePipeline) (http.Handler, string) {
	t.Helper()
	tmpDir := t.TempDir()
	h := NewHandler(Deps{
		Store:          store,
		Pipeline:       p,
		FrontendOrigin: "http://localhost:3000",
		Environment:    "test",
		TempDir:        tmpDir,
	})
	return h, tmpDir
}

func audioRequest(t *testing.T, filename string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("creating form file: %v", err)
		}
		part.Write([]byte("fake-audio-bytes"))
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/transcribe", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) (string, json.RawMessage) {
	t.Helper()
	var env struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&env); err != nil {
		t.Fatalf("decoding response envelope: %v", err)
	}
	return env.Status, env.Data
}

func TestHealth(t *testing.T) {
	h, _ := testHandler(t, openTestStore(t), &mockPipeline{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var body map[string]string
	json.NewDecoder(rr.Body).Decode(&body)
	if body["status"] != "healthy" || body["service"] != "suaraniaga" || body["environment"] != "test" {
		t.Errorf("body = %v", body)
	}
}

func TestTranscribe_TransactionSaved(t *testing.T) {
	store := openTestStore(t)
	p := &mockPipeline{
		result: intent.ExtractedIntent{
			Intent:        intent.IntentTransaction,
			Items:         []intent.Item{{Name: "gula", Qty: 2, Unit: "kg"}},
			Transcription: "saya mau beli gula dua kilo",
		},
	}
	h, tmpDir := testHandler(t, store, p)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, audioRequest(t, "utterance.webm"))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}
	status, data := decodeEnvelope(t, rr)
	if status != "success" {
		t.Errorf("status = %q, want success", status)
	}

	var result intent.ExtractedIntent
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("decoding data: %v", err)
	}
	if result.DBStatus != "saved" {
		t.Errorf("db_status = %q, want saved", result.DBStatus)
	}
	if result.TransactionID == "" {
		t.Error("transaction_id empty, want generated id")
	}
	if result.Transcription != "saya mau beli gula dua kilo" {
		t.Errorf("transcription = %q", result.Transcription)
	}

	// Items round-trip into item rows referencing the new header.
	saved, err := store.RecentTransactions(10)
	if err != nil {
		t.Fatalf("RecentTransactions: %v", err)
	}
	if len(saved) != 1 {
		t.Fatalf("transactions = %d, want 1", len(saved))
	}
	if saved[0].ID != result.TransactionID {
		t.Errorf("stored id %q != reported transaction_id %q", saved[0].ID, result.TransactionID)
	}
	if len(saved[0].Items) != 1 || saved[0].Items[0].ProductName != "gula" ||
		saved[0].Items[0].Quantity != 2 || saved[0].Items[0].Unit != "kg" {
		t.Errorf("stored items = %+v", saved[0].Items)
	}

	// Buffered audio existed during processing and is gone afterwards.
	if !p.fileExistedAt {
		t.Error("temp audio file did not exist during pipeline run")
	}
	leftovers, _ := os.ReadDir(tmpDir)
	if len(leftovers) != 0 {
		t.Errorf("temp dir not empty after request: %v", leftovers)
	}
}

func TestTranscribe_CheckStockSkipsPersistence(t *testing.T) {
	store := openTestStore(t)
	p := &mockPipeline{
		result: intent.ExtractedIntent{
			Intent:        intent.IntentCheckStock,
			Items:         []intent.Item{},
			Transcription: "stok beras ada gak",
		},
	}
	h, _ := testHandler(t, store, p)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, audioRequest(t, "utterance.webm"))

	_, data := decodeEnvelope(t, rr)
	var result intent.ExtractedIntent
	json.Unmarshal(data, &result)

	if result.DBStatus != "skipped" {
		t.Errorf("db_status = %q, want skipped", result.DBStatus)
	}
	if result.TransactionID != "" {
		t.Errorf("transaction_id = %q, want empty", result.TransactionID)
	}
	saved, _ := store.RecentTransactions(10)
	if len(saved) != 0 {
		t.Errorf("transactions = %d, want 0", len(saved))
	}
}

// failingStore simulates a store whose header insert fails.
type failingStore struct {
	TransactionStore
}

func (f *failingStore) SaveTransaction(customerName *string, isDebt bool, items []storage.TransactionItem) (storage.Transaction, error) {
	return storage.Transaction{}, fmt.Errorf("inserting transaction header: connection lost")
}

func TestTranscribe_PersistenceFailureStillSucceeds(t *testing.T) {
	p := &mockPipeline{
		result: intent.ExtractedIntent{
			Intent:        intent.IntentTransaction,
			Items:         []intent.Item{{Name: "gula", Qty: 2, Unit: "kg"}},
			Transcription: "saya mau beli gula dua kilo",
		},
	}
	h, tmpDir := testHandler(t, &failingStore{}, p)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, audioRequest(t, "utterance.webm"))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 despite persistence failure", rr.Code)
	}
	_, data := decodeEnvelope(t, rr)
	var result intent.ExtractedIntent
	json.Unmarshal(data, &result)

	if result.DBStatus != "error: inserting transaction header: connection lost" {
		t.Errorf("db_status = %q", result.DBStatus)
	}
	if result.TransactionID != "" {
		t.Errorf("transaction_id = %q, want empty on failure", result.TransactionID)
	}
	// Extracted fields survive the persistence failure.
	if len(result.Items) != 1 || result.Transcription == "" {
		t.Errorf("extracted fields lost: %+v", result)
	}
	leftovers, _ := os.ReadDir(tmpDir)
	if len(leftovers) != 0 {
		t.Errorf("temp dir not empty after request: %v", leftovers)
	}
}

func TestTranscribe_DegradedPipelineStillSucceeds(t *testing.T) {
	p := &mockPipeline{
		result: func() intent.ExtractedIntent {
			out := intent.Fallback()
			out.Transcription = "Gagal memproses suara."
			out.Error = "transcribing audio: upstream down"
			return out
		}(),
		meta: pipeline.Meta{Degraded: true, Cause: "transcribing audio: upstream down"},
	}
	h, tmpDir := testHandler(t, openTestStore(t), p)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, audioRequest(t, "utterance.webm"))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 on degraded pipeline", rr.Code)
	}
	_, data := decodeEnvelope(t, rr)
	var result intent.ExtractedIntent
	json.Unmarshal(data, &result)

	if result.Intent != intent.IntentUnknown || result.DBStatus != "skipped" {
		t.Errorf("intent = %q db_status = %q", result.Intent, result.DBStatus)
	}
	if result.Error == "" {
		t.Error("error field empty, want degradation cause")
	}
	leftovers, _ := os.ReadDir(tmpDir)
	if len(leftovers) != 0 {
		t.Errorf("temp dir not empty after degraded request: %v", leftovers)
	}
}

func TestTranscribe_MissingFileRejected(t *testing.T) {
	p := &mockPipeline{}
	h, _ := testHandler(t, openTestStore(t), p)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, audioRequest(t, ""))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	if p.gotPath != "" {
		t.Error("pipeline ran despite invalid upload")
	}
}

func TestTransactions_LimitAndOrder(t *testing.T) {
	store := openTestStore(t)
	for i := range 12 {
		name := fmt.Sprintf("customer-%d", i)
		if _, err := store.SaveTransaction(&name, false, []storage.TransactionItem{{ProductName: "gula", Quantity: 1, Unit: "kg"}}); err != nil {
			t.Fatalf("SaveTransaction %d: %v", i, err)
		}
	}
	h, _ := testHandler(t, store, &mockPipeline{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/transactions?limit=5", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	_, data := decodeEnvelope(t, rr)
	var transactions []storage.Transaction
	if err := json.Unmarshal(data, &transactions); err != nil {
		t.Fatalf("decoding transactions: %v", err)
	}
	if len(transactions) != 5 {
		t.Fatalf("len = %d, want 5", len(transactions))
	}
	if transactions[0].CustomerName == nil || *transactions[0].CustomerName != "customer-11" {
		t.Errorf("first transaction = %+v, want newest (customer-11)", transactions[0])
	}
	for _, tx := range transactions {
		if len(tx.Items) != 1 {
			t.Errorf("transaction %s items = %d, want 1", tx.ID, len(tx.Items))
		}
	}
}

func TestTransactions_DefaultLimit(t *testing.T) {
	store := openTestStore(t)
	for range 12 {
		if _, err := store.SaveTransaction(nil, false, nil); err != nil {
			t.Fatalf("SaveTransaction: %v", err)
		}
	}
	h, _ := testHandler(t, store, &mockPipeline{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/transactions", nil))

	_, data := decodeEnvelope(t, rr)
	var transactions []storage.Transaction
	json.Unmarshal(data, &transactions)
	if len(transactions) != 10 {
		t.Errorf("len = %d, want default 10", len(transactions))
	}
}

func TestProductSearch(t *testing.T) {
	store := openTestStore(t)
	for _, name := range []string{"Gula Pasir", "gula merah", "beras"} {
		if err := store.UpsertProduct(storage.Product{Name: name, Unit: "kg"}); err != nil {
			t.Fatalf("UpsertProduct: %v", err)
		}
	}
	h, _ := testHandler(t, store, &mockPipeline{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/products/search?q=gula", nil))

	_, data := decodeEnvelope(t, rr)
	var products []storage.Product
	json.Unmarshal(data, &products)
	if len(products) != 2 {
		t.Errorf("len = %d, want 2: %+v", len(products), products)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/products/search", nil))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status without q = %d, want 400", rr.Code)
	}
}

func TestCORS(t *testing.T) {
	h, _ := testHandler(t, openTestStore(t), &mockPipeline{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Allow-Origin = %q", got)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/api/v1/transcribe", nil))
	if rr.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", rr.Code)
	}
}
