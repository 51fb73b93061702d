package extract

import (
	"iter"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/nidscan/nid-ocr-service/internal/errors"
)

// Kind identifies one of the card fields.
type Kind string

const (
	KindName        Kind = "name"
	KindDateOfBirth Kind = "date_of_birth"
	KindIDNumber    Kind = "id_number"
)

// Kinds lists every field in response order.
var Kinds = []Kind{KindName, KindDateOfBirth, KindIDNumber}

// Field is an extracted value with its provenance. Never mutated after creation.
type Field struct {
	Kind       Kind
	Value      string
	Strategy   string
	Confidence float64
	Line       int
	Date       time.Time // set for KindDateOfBirth only
}

// Match is what a strategy reports before it is turned into a Field.
type Match struct {
	Value string
	Date  time.Time
	Line  Line
}

// Strategy is one way of locating a field. Find must be pure: it only reads the
// sequence and may be called again on the same sequence.
type Strategy struct {
	Name   string
	Weight float64
	Find   func(lines iter.Seq[Line]) (Match, error)
}

// runStrategies tries strategies in priority order. FIELD_INVALID stops the search
// because the field was located but its value is unusable; FIELD_NOT_FOUND moves on.
func runStrategies(kind Kind, strategies []Strategy, lines iter.Seq[Line]) (*Field, error) {
	var lastErr error
	for _, s := range strategies {
		m, err := s.Find(lines)
		if err == nil {
			return &Field{
				Kind:       kind,
				Value:      m.Value,
				Strategy:   s.Name,
				Confidence: decimal.NewFromFloat(m.Line.Confidence * s.Weight).Round(2).InexactFloat64(),
				Line:       m.Line.Index,
				Date:       m.Date,
			}, nil
		}
		if apperrors.Is(err, apperrors.ErrorFieldInvalid) {
			return nil, err
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = notFound(kind)
	}
	return nil, lastErr
}

func notFound(kind Kind) error {
	return apperrors.NewFieldNotFoundError(string(kind), "no "+label(kind)+" found in transcript")
}

func label(kind Kind) string {
	switch kind {
	case KindName:
		return "name"
	case KindDateOfBirth:
		return "date of birth"
	case KindIDNumber:
		return "ID number"
	}
	return string(kind)
}
