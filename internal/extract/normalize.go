package extract

import (
	"iter"
	"sort"
	"strings"
	"unicode"

	"github.com/nidscan/nid-ocr-service/internal/ocr"
)

// DefaultLineTolerance is the fraction of the smaller fragment height within which
// two vertical centres are considered the same printed line.
const DefaultLineTolerance = 0.5

// minNumericSpan is the shortest run of digit-like characters treated as a number.
const minNumericSpan = 6

// digitConfusions maps characters OCR commonly reads in place of digits.
var digitConfusions = map[rune]rune{
	'O': '0', 'o': '0', 'Q': '0', 'D': '0',
	'I': '1', 'l': '1', 'L': '1', '|': '1',
	'Z': '2', 'z': '2',
	'S': '5', 's': '5',
	'G': '6',
	'T': '7',
	'B': '8',
}

// Line is one canonical line of card text.
type Line struct {
	Index      int
	Text       string  // uppercase canonical form
	Original   string  // same cleaning, case preserved
	Confidence float64 // mean fragment confidence
}

// Normalizer turns raw OCR fragments into canonical lines
type Normalizer struct {
	tolerance float64
}

// NewNormalizer creates a normalizer. A non-positive tolerance selects DefaultLineTolerance.
func NewNormalizer(tolerance float64) *Normalizer {
	if tolerance <= 0 {
		tolerance = DefaultLineTolerance
	}
	return &Normalizer{tolerance: tolerance}
}

// Lines buckets fragments into printed lines and returns them as a restartable
// sequence. Cleaning runs lazily, so a consumer that stops early pays only for
// the lines it saw.
func (n *Normalizer) Lines(t ocr.Transcript) iter.Seq[Line] {
	groups := n.bucket(t.Fragments)
	return func(yield func(Line) bool) {
		index := 0
		for _, g := range groups {
			line, ok := buildLine(index, g)
			if !ok {
				continue
			}
			if !yield(line) {
				return
			}
			index++
		}
	}
}

// bucket groups fragments into lines. Consecutive positioned fragments are ordered
// by vertical centre and grouped by tolerance; a fragment without a box is a line
// of its own and keeps its reading-order position.
func (n *Normalizer) bucket(fragments []ocr.Fragment) [][]ocr.Fragment {
	var groups [][]ocr.Fragment
	var segment []ocr.Fragment
	flush := func() {
		groups = append(groups, n.bucketSegment(segment)...)
		segment = nil
	}
	for _, f := range fragments {
		if f.Box.IsEmpty() {
			flush()
			groups = append(groups, []ocr.Fragment{f})
			continue
		}
		segment = append(segment, f)
	}
	flush()
	return groups
}

func (n *Normalizer) bucketSegment(segment []ocr.Fragment) [][]ocr.Fragment {
	if len(segment) == 0 {
		return nil
	}
	sorted := make([]ocr.Fragment, len(segment))
	copy(sorted, segment)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Box.CenterY() < sorted[j].Box.CenterY()
	})

	var groups [][]ocr.Fragment
	var current []ocr.Fragment
	var centre, height float64
	for _, f := range sorted {
		h := float64(f.Box.Height)
		if len(current) > 0 {
			tol := n.tolerance * minFloat(h, height)
			if abs(f.Box.CenterY()-centre) <= tol {
				current = append(current, f)
				k := float64(len(current))
				centre += (f.Box.CenterY() - centre) / k
				height += (h - height) / k
				continue
			}
			groups = append(groups, current)
		}
		current = []ocr.Fragment{f}
		centre, height = f.Box.CenterY(), h
	}
	groups = append(groups, current)

	for _, g := range groups {
		sort.SliceStable(g, func(i, j int) bool { return g[i].Box.X < g[j].Box.X })
	}
	return groups
}

func buildLine(index int, group []ocr.Fragment) (Line, bool) {
	parts := make([]string, 0, len(group))
	var conf float64
	for _, f := range group {
		parts = append(parts, f.Text)
		conf += f.Confidence
	}
	original := fixNumericSpans(cleanText(strings.Join(parts, " ")))
	if original == "" {
		return Line{}, false
	}
	return Line{
		Index:      index,
		Text:       strings.ToUpper(original),
		Original:   original,
		Confidence: conf / float64(len(group)),
	}, true
}

// cleanText drops non-printable runes and collapses whitespace.
func cleanText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		case unicode.IsPrint(r):
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func isDigitLike(r rune) bool {
	if r >= '0' && r <= '9' {
		return true
	}
	_, ok := digitConfusions[r]
	return ok
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

// fixNumericSpans replaces digit look-alikes inside numeric runs. A run counts as
// numeric when it has at least minNumericSpan characters and real digits are the
// majority. Look-alikes at the edge of a run that is glued to a word ("NO9116...")
// belong to the word and are left alone.
func fixNumericSpans(s string) string {
	runes := []rune(s)
	for i := 0; i < len(runes); {
		if !isDigitLike(runes[i]) {
			i++
			continue
		}
		j := i
		for j < len(runes) && isDigitLike(runes[j]) {
			j++
		}
		start, end := i, j
		for start < end && !isDigit(runes[start]) && start > 0 && unicode.IsLetter(runes[start-1]) {
			start++
		}
		for end > start && !isDigit(runes[end-1]) && end < len(runes) && unicode.IsLetter(runes[end]) {
			end--
		}
		if end-start >= minNumericSpan {
			digits := 0
			for _, r := range runes[start:end] {
				if isDigit(r) {
					digits++
				}
			}
			if digits*2 > end-start {
				for k := start; k < end; k++ {
					if d, ok := digitConfusions[runes[k]]; ok {
						runes[k] = d
					}
				}
			}
		}
		i = j
	}
	return string(runes)
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
