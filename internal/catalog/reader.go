package catalog

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/danuarta/suaraniaga/internal/storage"
)

// Context injection is budgeted: an oversized inventory dump risks
// truncation and cost overruns downstream, so serialization caps out at
// roughly 4k tokens worth of JSON.
const maxContextBytes = 16 << 10

// ProductLister is the catalog surface of the store.
type ProductLister interface {
	ListProducts() ([]storage.Product, error)
}

// Reader fetches the current product list for prompt context. Retrieval is
// best-effort: the pipeline must still answer without inventory grounding.
type Reader struct {
	store ProductLister
}

// NewReader creates a Reader backed by the given product store.
func NewReader(store ProductLister) *Reader {
	return &Reader{store: store}
}

// Snapshot returns the current catalog. Any retrieval failure is absorbed
// into an empty snapshot and logged, never surfaced to the caller.
func (r *Reader) Snapshot() []storage.Product {
	products, err := r.store.ListProducts()
	if err != nil {
		slog.Warn("catalog snapshot failed, continuing without inventory context", "error", err)
		return nil
	}
	return products
}

// ContextJSON serializes products as a compact JSON array for prompt
// injection. Products beyond the byte budget are dropped from the tail.
func ContextJSON(products []storage.Product) string {
	if len(products) == 0 {
		return "[]"
	}

	var sb strings.Builder
	sb.WriteByte('[')
	for _, p := range products {
		entry, err := json.Marshal(p)
		if err != nil {
			continue
		}
		// +2 covers the separator and the closing bracket.
		if sb.Len()+len(entry)+2 > maxContextBytes {
			break
		}
		if sb.Len() > 1 {
			sb.WriteByte(',')
		}
		sb.Write(entry)
	}
	sb.WriteByte(']')
	return sb.String()
}
