package intent

import (
	"fmt"
	"strings"
)

// basePrompt is the static extraction ruleset: debt slang, number slang,
// fractional units, stock inquiries, and the strict output schema.
const basePrompt = `ROLE: Assistant Cashier for Indonesian Warung.
GOAL: Extract structured data from informal speech.

RULES:
1. Identify "ngutang/kasbon" as is_debt: true.
2. Convert slang: "goceng" (5000), "ceban" (10000).
3. Convert units: "seperempat" (0.25 kg).
4. If user asks about availability (e.g. "Stok ada gak?"), intent is "CHECK_STOCK".
5. OUTPUT MUST BE VALID JSON.

OUTPUT SCHEMA:
{
  "intent": "TRANSACTION" | "CHECK_STOCK" | "UNKNOWN",
  "customer_name": "string or null",
  "is_debt": boolean,
  "items": [
    {"name": "string", "qty": number, "unit": "string"}
  ],
  "assistant_response": "string (short natural language response based on context)"
}`

// BuildPrompt composes the system prompt from the static ruleset and a
// compact JSON serialization of the current inventory. It is a pure function
// of its inputs.
func BuildPrompt(inventoryJSON string) string {
	var sb strings.Builder
	sb.WriteString(basePrompt)
	fmt.Fprintf(&sb, "\n\nCURRENT INVENTORY CONTEXT (Use this to answer stock questions or match product names):\n%s", inventoryJSON)
	return sb.String()
}
