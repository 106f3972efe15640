// Package reconcile recomputes an invoice total from its line items and
// compares it to the model-reported total, recording any arithmetic
// inconsistency in the result's financial and fraud sections.
package reconcile

import (
	"fmt"
	"math"

	"github.com/sells-group/billscan/internal/model"
)

const (
	// totalTolerance is the maximum absolute difference between the
	// extracted and calculated totals still counted as a match.
	totalTolerance = 0.10

	// escalationThreshold is the discrepancy above which a mismatch also
	// bumps the risk level from LOW to MEDIUM.
	escalationThreshold = 1.00
)

// Apply recomputes the total from line items and mutates the result's
// financials and fraud analysis in place. It is idempotent: it reads only
// the line items and the original extracted total, neither of which it
// writes, so re-running reproduces the same outcome.
//
// Anomalies (missing totals, non-numeric amounts, no line items) never fail
// the document; they degrade to an indeterminate or mismatched outcome.
func Apply(result *model.ExtractionResult) *model.ExtractionResult {
	var sum float64
	for _, item := range result.AllLineItems() {
		if item.Amount.Valid {
			sum += item.Amount.Float64
		}
	}
	calculated := round2(sum)
	result.Financials.CalculatedTotal = calculated

	// Tri-state match: nil when there is no usable extracted total. Callers
	// must not conflate "indeterminate" with "match".
	result.Financials.IsMatch = nil
	if result.Financials.ExtractedTotal.Valid {
		extracted := result.Financials.ExtractedTotal.Float64
		match := math.Abs(extracted-calculated) < totalTolerance
		result.Financials.IsMatch = &match

		if !match {
			result.FraudAnalysis.MathMismatchDetected = true
			appendFlag(&result.FraudAnalysis, fmt.Sprintf(
				"Math mismatch: Extracted %v vs Calculated %v", extracted, calculated))
			if math.Abs(extracted-calculated) > escalationThreshold &&
				result.FraudAnalysis.RiskLevel == model.RiskLow {
				result.FraudAnalysis.RiskLevel = model.RiskMedium
			}
			return result
		}
	}

	result.FraudAnalysis.MathMismatchDetected = false
	return result
}

// appendFlag adds a flag unless the same literal string is already present.
func appendFlag(fa *model.FraudAnalysis, flag string) {
	for _, f := range fa.Flags {
		if f == flag {
			return
		}
	}
	fa.Flags = append(fa.Flags, flag)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
