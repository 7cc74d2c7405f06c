package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/danuarta/suaraniaga/internal/catalog"
	"github.com/danuarta/suaraniaga/internal/intent"
	"github.com/danuarta/suaraniaga/internal/storage"
)

// failedTranscription is the user-facing transcription placeholder when the
// pipeline degrades before a transcript exists.
const failedTranscription = "Gagal memproses suara."

// Meta captures diagnostic information about a pipeline run. Degradation is
// a visible value here, not hidden control flow: Degraded is set whenever a
// step failed and a fallback result was substituted.
type Meta struct {
	Degraded   bool
	Cause      string
	DurationMs int64
}

// Transcriber converts an audio file into transcript text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// Extractor turns a transcript plus system prompt into an ExtractedIntent.
type Extractor interface {
	Extract(ctx context.Context, transcript, systemPrompt string) (intent.ExtractedIntent, error)
}

// Catalog provides the best-effort product snapshot.
type Catalog interface {
	Snapshot() []storage.Product
}

// Pipeline chains transcription, catalog retrieval, prompt construction,
// and intent extraction.
type Pipeline struct {
	transcriber Transcriber
	catalog     Catalog
	extractor   Extractor
}

// New creates a Pipeline wired to its three collaborators.
func New(transcriber Transcriber, cat Catalog, extractor Extractor) *Pipeline {
	return &Pipeline{
		transcriber: transcriber,
		catalog:     cat,
		extractor:   extractor,
	}
}

// Process runs the full chain on the audio file at audioPath. It always
// returns a populated ExtractedIntent: a transcription failure yields the
// fallback intent with a failure transcription and the cause on the Error
// field; an extraction failure yields the fallback intent merged with the
// transcript that was obtained. Catalog loss alone never degrades the run.
func (p *Pipeline) Process(ctx context.Context, audioPath string) (out intent.ExtractedIntent, meta Meta) {
	start := time.Now()
	defer func() {
		meta.DurationMs = time.Since(start).Milliseconds()
	}()

	transcript, err := p.transcriber.Transcribe(ctx, audioPath)
	if err != nil {
		slog.Warn("pipeline degraded: transcription failed", "error", err)
		out = intent.Fallback()
		out.Transcription = failedTranscription
		out.Error = err.Error()
		meta.Degraded = true
		meta.Cause = err.Error()
		return
	}

	products := p.catalog.Snapshot()
	prompt := intent.BuildPrompt(catalog.ContextJSON(products))

	out, err = p.extractor.Extract(ctx, transcript, prompt)
	if err != nil {
		meta.Degraded = true
		meta.Cause = err.Error()
	}
	out.Transcription = transcript

	slog.Debug("pipeline complete",
		"intent", out.Intent,
		"degraded", meta.Degraded,
		"catalog_products", len(products),
	)
	return
}
