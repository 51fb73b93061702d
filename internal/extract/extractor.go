// Package extract turns an OCR transcript into canonical lines and pulls the
// card fields out of them with ordered, independent strategies.
package extract

import (
	"iter"
	"time"
)

// Defaults used by DefaultConfig. MinBirthYear and NameKeywordThreshold also
// replace zero values; MinAge only replaces negative ones since zero disables
// the age check.
const (
	DefaultMinBirthYear         = 1900
	DefaultMinAge               = 18
	DefaultNameKeywordThreshold = 0.75
)

// Config tunes field validation.
type Config struct {
	MinBirthYear         int
	MinAge               int
	NameKeywordThreshold float64
	Now                  func() time.Time
}

// DefaultConfig returns the production validation settings.
func DefaultConfig() Config {
	return Config{
		MinBirthYear:         DefaultMinBirthYear,
		MinAge:               DefaultMinAge,
		NameKeywordThreshold: DefaultNameKeywordThreshold,
		Now:                  time.Now,
	}
}

// Result holds the outcome of every field. A field is either set or has an error.
type Result struct {
	Name        *Field
	DateOfBirth *Field
	IDNumber    *Field
	Errors      map[Kind]error
}

// Field returns the extracted field of the given kind, or nil.
func (r Result) Field(kind Kind) *Field {
	switch kind {
	case KindName:
		return r.Name
	case KindDateOfBirth:
		return r.DateOfBirth
	case KindIDNumber:
		return r.IDNumber
	}
	return nil
}

// Extractor runs the per-field strategy lists over normalized lines.
type Extractor struct {
	cfg Config
	id  []Strategy
}

// NewExtractor creates an extractor, filling unset config values with defaults
func NewExtractor(cfg Config) *Extractor {
	if cfg.MinBirthYear == 0 {
		cfg.MinBirthYear = DefaultMinBirthYear
	}
	if cfg.MinAge < 0 {
		cfg.MinAge = DefaultMinAge
	}
	if cfg.NameKeywordThreshold == 0 {
		cfg.NameKeywordThreshold = DefaultNameKeywordThreshold
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Extractor{cfg: cfg, id: idStrategies()}
}

// Extract locates all three fields. Each field is searched independently, so a
// failure on one never affects the others.
func (e *Extractor) Extract(lines iter.Seq[Line]) Result {
	res := Result{Errors: make(map[Kind]error)}
	for _, kind := range Kinds {
		f, err := e.ExtractField(kind, lines)
		if err != nil {
			res.Errors[kind] = err
			continue
		}
		switch kind {
		case KindName:
			res.Name = f
		case KindDateOfBirth:
			res.DateOfBirth = f
		case KindIDNumber:
			res.IDNumber = f
		}
	}
	return res
}

// ExtractField runs the strategies of a single field.
func (e *Extractor) ExtractField(kind Kind, lines iter.Seq[Line]) (*Field, error) {
	switch kind {
	case KindName:
		return runStrategies(kind, nameStrategies(e.cfg.NameKeywordThreshold), lines)
	case KindDateOfBirth:
		return runStrategies(kind, dobStrategies(e.birthRange()), lines)
	case KindIDNumber:
		return runStrategies(kind, e.id, lines)
	}
	return nil, notFound(kind)
}

// birthRange is computed per call so a long-running process rolls over years.
func (e *Extractor) birthRange() birthRange {
	now := e.cfg.Now()
	return birthRange{
		minYear: e.cfg.MinBirthYear,
		maxYear: now.Year() - e.cfg.MinAge,
		now:     now,
	}
}
