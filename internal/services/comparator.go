package services

import (
	"github.com/shopspring/decimal"

	"github.com/nidscan/nid-ocr-service/internal/extract"
	"github.com/nidscan/nid-ocr-service/internal/fuzzy"
	"github.com/nidscan/nid-ocr-service/internal/models"
)

// Comparison statuses
const (
	StatusNoComparisonData = "no_comparison_data_provided"
	StatusNoExtractedValue = "no_extracted_value"
	StatusMatch            = "match"
	StatusMismatch         = "mismatch"
	StatusCompared         = "compared"
)

// DefaultMatchThreshold is the similarity at or above which two values match
const DefaultMatchThreshold = 0.85

// Comparator checks extracted fields against caller-supplied reference values
type Comparator struct {
	threshold float64
}

// NewComparator creates a comparator. A non-positive threshold selects the default.
func NewComparator(threshold float64) *Comparator {
	if threshold <= 0 {
		threshold = DefaultMatchThreshold
	}
	return &Comparator{threshold: threshold}
}

// Threshold returns the configured match threshold
func (c *Comparator) Threshold() float64 {
	return c.threshold
}

// Compare scores one extracted field against a reference. A missing reference and
// a missing extraction are reported as statuses, never as a low similarity.
func (c *Comparator) Compare(field *extract.Field, reference string) *models.FieldComparison {
	ref := fuzzy.Canonical(reference)
	if ref == "" {
		return &models.FieldComparison{Status: StatusNoComparisonData}
	}
	if field == nil {
		return &models.FieldComparison{Status: StatusNoExtractedValue, Reference: reference}
	}

	// Dates are compared in their canonical rendering so layouts don't matter
	if field.Kind == extract.KindDateOfBirth {
		if d, ok := extract.ParseDate(reference); ok {
			ref = fuzzy.Canonical(extract.FormatDate(d))
		}
	}

	ratio := fuzzy.Ratio(fuzzy.Canonical(field.Value), ref)
	match := ratio >= c.threshold
	similarity := round2(ratio)

	status := StatusMismatch
	if match {
		status = StatusMatch
	}
	return &models.FieldComparison{
		Status:     status,
		Similarity: &similarity,
		Match:      &match,
		Extracted:  field.Value,
		Reference:  reference,
	}
}

// CompareAll compares every field. Once any reference is supplied each field
// carries a status, with no_comparison_data_provided for fields the caller left
// out. When no reference was supplied at all the block carries only the
// no-data status.
func (c *Comparator) CompareAll(res extract.Result, references map[extract.Kind]string) *models.ComparisonBlock {
	block := &models.ComparisonBlock{Status: StatusNoComparisonData}
	for _, kind := range extract.Kinds {
		if fuzzy.Canonical(references[kind]) != "" {
			block.Status = StatusCompared
		}
	}
	if block.Status != StatusCompared {
		return block
	}

	block.Name = c.Compare(res.Field(extract.KindName), references[extract.KindName])
	block.DateOfBirth = c.Compare(res.Field(extract.KindDateOfBirth), references[extract.KindDateOfBirth])
	block.IDNumber = c.Compare(res.Field(extract.KindIDNumber), references[extract.KindIDNumber])
	return block
}

// round2 rounds to 2 decimal places
func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
