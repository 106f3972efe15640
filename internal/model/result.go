// Package model holds the shared domain types: the content bundle handed to
// vision providers and the structured extraction result they return.
package model

// Provider identifies a vision AI backend.
type Provider string

const (
	ProviderGemini    Provider = "gemini"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// Risk levels reported by the fraud analysis.
const (
	RiskLow    = "LOW"
	RiskMedium = "MEDIUM"
	RiskHigh   = "HIGH"
)

// Content is the extracted document bundle sent to a provider: page text
// (PDFs), base64 page images (scans and photos), or both.
type Content struct {
	Text             string
	PageCount        int
	Images           []string
	ExtractionMethod string
}

// TokenUsage records the token accounting for one provider call.
type TokenUsage struct {
	PromptTokens int64  `json:"prompt_tokens"`
	OutputTokens int64  `json:"output_tokens"`
	TotalTokens  int64  `json:"total_tokens"`
	Model        string `json:"model,omitempty"`
}

// ExtractionResult is the structured output of one document analysis.
// TokenUsage leads the struct so it serializes first; it is injected by the
// pipeline, never emitted by the model itself.
type ExtractionResult struct {
	TokenUsage *TokenUsage `json:"token_usage,omitempty"`

	FileInfo  FileInfo `json:"file_info"`
	Header    Header   `json:"header"`
	Pages     []Page   `json:"pages,omitempty"`
	// LineItems is the flat fallback some model outputs use instead of the
	// per-page layout.
	LineItems []LineItem `json:"line_items,omitempty"`

	Financials    Financials    `json:"financials"`
	FraudAnalysis FraudAnalysis `json:"fraud_analysis"`
}

// FileInfo describes the analyzed document.
type FileInfo struct {
	FileName      string `json:"file_name"`
	PageCount     int    `json:"page_count"`
	DocumentType  string `json:"document_type,omitempty"`
	DocumentTitle string `json:"document_title,omitempty"`
	PrintedOn     string `json:"printed_on,omitempty"`
}

// Header holds the invoice identity fields.
type Header struct {
	ID            string `json:"id,omitempty"`
	Date          string `json:"date,omitempty"`
	VendorName    string `json:"vendor_name,omitempty"`
	RecipientName string `json:"recipient_name,omitempty"`
}

// Page maps line items to the page they appear on.
type Page struct {
	PageNumber    int        `json:"page_number"`
	LineItems     []LineItem `json:"line_items,omitempty"`
	PageAnomalies []string   `json:"page_anomalies,omitempty"`
}

// LineItem is one billed row.
type LineItem struct {
	Description string `json:"description,omitempty"`
	Quantity    Number `json:"quantity"`
	UnitPrice   Number `json:"unit_price"`
	Amount      Number `json:"amount"`
}

// Financials holds the model-reported totals plus the locally recomputed sum.
// IsMatch is tri-state: nil means the comparison was indeterminate because no
// usable extracted total was present.
type Financials struct {
	Subtotal        Number  `json:"subtotal"`
	Tax             Number  `json:"tax"`
	ExtractedTotal  Number  `json:"extracted_total"`
	CalculatedTotal float64 `json:"calculated_total"`
	IsMatch         *bool   `json:"is_match"`
}

// FraudAnalysis is the model's risk verdict, amended by reconciliation.
type FraudAnalysis struct {
	RiskLevel              string   `json:"risk_level"`
	PixelAnomaliesDetected bool     `json:"pixel_anomalies_detected"`
	DuplicatesDetected     bool     `json:"duplicates_detected"`
	Flags                  []string `json:"flags,omitempty"`
	MathMismatchDetected   bool     `json:"math_mismatch_detected"`
	Reasoning              string   `json:"reasoning,omitempty"`
}

// AllLineItems returns the document's line items regardless of layout:
// per-page lists when present, otherwise the flat fallback list.
func (r *ExtractionResult) AllLineItems() []LineItem {
	if len(r.Pages) > 0 {
		var items []LineItem
		for _, p := range r.Pages {
			items = append(items, p.LineItems...)
		}
		return items
	}
	return r.LineItems
}
