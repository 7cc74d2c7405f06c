package intent

// Intent classifications the extractor may produce.
const (
	IntentTransaction = "TRANSACTION"
	IntentCheckStock  = "CHECK_STOCK"
	IntentUnknown     = "UNKNOWN"
)

// Item is one extracted line item from the utterance.
type Item struct {
	Name string  `json:"name"`
	Qty  float64 `json:"qty"`
	Unit string  `json:"unit"`
}

// ExtractedIntent is the structured result of the voice pipeline. It is
// built fresh per request and doubles as the response payload; the
// persistence fields (TransactionID, DBStatus) are annotated by the handler
// after the save dispatch.
type ExtractedIntent struct {
	Intent            string  `json:"intent"`
	CustomerName      *string `json:"customer_name"`
	IsDebt            bool    `json:"is_debt"`
	Items             []Item  `json:"items"`
	AssistantResponse string  `json:"assistant_response"`
	Transcription     string  `json:"transcription"`
	TransactionID     string  `json:"transaction_id,omitempty"`
	DBStatus          string  `json:"db_status,omitempty"`
	Error             string  `json:"error,omitempty"`
}

// Fallback is the fixed fail-safe result: malformed model output or a
// provider failure must never crash the request path.
func Fallback() ExtractedIntent {
	return ExtractedIntent{
		Intent: IntentUnknown,
		IsDebt: false,
		Items:  []Item{},
	}
}

func validIntent(v string) bool {
	switch v {
	case IntentTransaction, IntentCheckStock, IntentUnknown:
		return true
	}
	return false
}
