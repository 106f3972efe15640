package gateway

import "fmt"

const auditPromptTemplate = `You are an expert Forensic Auditor. Analyze this document (Filename: %s, Pages: %d).

INSTRUCTIONS:
1. **EXTRACTION**: Extract all visible data. If a Total is clearly the final amount to be paid, extract it.
2. **PAGE MAPPING**: Assign items to their correct pages based on visual markers.
3. **ANALYSIS**: Flag visual anomalies (edits, fonts) and duplicate items.

TASK:
1. Extract Header Info.
2. Extract Line Items (Description, Qty, Unit Price, Amount).
3. Extract Financial Totals (Subtotal, Tax, Total).

OUTPUT JSON STRUCTURE:
{
    "file_info": {
        "file_name": "%s",
        "page_count": %d,
        "document_type": "Invoice/Receipt/Bill/Statement",
        "document_title": "string",
        "printed_on": "string or null"
    },
    "header": {
        "id": "string",
        "date": "YYYY-MM-DD",
        "vendor_name": "string",
        "recipient_name": "string"
    },
    "pages": [
        {
            "page_number": 1,
            "line_items": [
                {"description": "string", "quantity": number, "unit_price": number, "amount": number}
            ],
            "page_anomalies": ["list", "of", "visual", "issues"]
        }
    ],
    "financials": {
        "subtotal": number,
        "tax": number,
        "extracted_total": number
    },
    "fraud_analysis": {
        "risk_level": "LOW/MEDIUM/HIGH",
        "pixel_anomalies_detected": boolean,
        "duplicates_detected": boolean,
        "flags": ["list", "of", "issues"],
        "reasoning": "detailed explanation"
    }
}`

// auditPrompt renders the shared instruction prompt every provider receives.
func auditPrompt(documentName string, pageCount int) string {
	return fmt.Sprintf(auditPromptTemplate, documentName, pageCount, documentName, pageCount)
}
