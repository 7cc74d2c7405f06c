package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/danuarta/suaraniaga/internal/groq"
)

// Chatter is the chat-completion surface of the Groq client.
type Chatter interface {
	ChatJSON(ctx context.Context, model string, messages []groq.Message) (string, error)
}

// Extractor turns a transcript into an ExtractedIntent via the LLM.
type Extractor struct {
	client Chatter
	model  string
}

// NewExtractor creates an Extractor using the given client and model name.
func NewExtractor(client Chatter, model string) *Extractor {
	return &Extractor{client: client, model: model}
}

// Extract sends the transcript with the composed system prompt and decodes
// the strict JSON response. On provider failure, malformed JSON, or an
// intent value outside the known set it returns Fallback() together with a
// non-nil error describing the cause, so callers see degradation as an
// explicit value rather than a crashed request.
func (e *Extractor) Extract(ctx context.Context, transcript, systemPrompt string) (ExtractedIntent, error) {
	raw, err := e.client.ChatJSON(ctx, e.model, []groq.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: transcript},
	})
	if err != nil {
		slog.Warn("intent extraction call failed", "error", err)
		return Fallback(), fmt.Errorf("extraction call: %w", err)
	}

	var result ExtractedIntent
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		slog.Warn("malformed intent JSON from model", "error", err, "response", raw)
		return Fallback(), fmt.Errorf("parsing extraction response: %w", err)
	}
	if !validIntent(result.Intent) {
		slog.Warn("model returned out-of-schema intent", "intent", result.Intent)
		return Fallback(), fmt.Errorf("out-of-schema intent %q", result.Intent)
	}
	if result.Items == nil {
		result.Items = []Item{}
	}
	return result, nil
}
