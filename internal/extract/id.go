package extract

import (
	"iter"
	"regexp"
	"strings"
)

var (
	digitRunRe = regexp.MustCompile(`\d+`)
	idLabelRe  = regexp.MustCompile(`\b(?:NATIONAL\s*ID|NID|ID)\b(?:\s*(?:NO|NUMBER|NUM)\b\.?|\s*#)?`)
	idGroupRe  = regexp.MustCompile(`\d+(?:[ \-]\d+)+`)
)

// validIDLength reports the ID formats issued so far: 10-digit smart cards and
// 17-digit laminated cards.
func validIDLength(n int) bool {
	return n == 10 || n == 17
}

// idCandidates returns the digit runs in text, starting at or after offset, whose
// length is a valid ID length. Runs are maximal so a longer number never yields a
// 10-digit prefix.
func idCandidates(text string, offset int) []string {
	var out []string
	for _, loc := range digitRunRe.FindAllStringIndex(text, -1) {
		if loc[0] < offset {
			continue
		}
		if run := text[loc[0]:loc[1]]; validIDLength(len(run)) {
			out = append(out, run)
		}
	}
	return out
}

func idStrategies() []Strategy {
	return []Strategy{
		{Name: "label", Weight: 1.0, Find: findLabelledID},
		{Name: "first", Weight: 0.85, Find: findFirstID},
		{Name: "grouped", Weight: 0.8, Find: findGroupedID},
	}
}

// findLabelledID looks for an ID after an ID label on the same line, or on the
// line below when the label stands alone.
func findLabelledID(lines iter.Seq[Line]) (Match, error) {
	pending := false
	for line := range lines {
		if pending {
			if c := idCandidates(line.Text, 0); len(c) > 0 {
				return Match{Value: c[0], Line: line}, nil
			}
			pending = false
		}
		loc := idLabelRe.FindStringIndex(line.Text)
		if loc == nil {
			continue
		}
		if c := idCandidates(line.Text, loc[1]); len(c) > 0 {
			return Match{Value: c[0], Line: line}, nil
		}
		pending = true
	}
	return Match{}, notFound(KindIDNumber)
}

func findFirstID(lines iter.Seq[Line]) (Match, error) {
	for line := range lines {
		if c := idCandidates(line.Text, 0); len(c) > 0 {
			return Match{Value: c[0], Line: line}, nil
		}
	}
	return Match{}, notFound(KindIDNumber)
}

// findGroupedID accepts IDs printed or read in groups ("911 621 7028"). The whole
// span is tried first, then spans dropping leading groups, then spans dropping
// trailing groups, so a year or serial printed on the same line is skipped.
func findGroupedID(lines iter.Seq[Line]) (Match, error) {
	for line := range lines {
		for _, span := range idGroupRe.FindAllString(line.Text, -1) {
			groups := strings.FieldsFunc(span, func(r rune) bool { return r == ' ' || r == '-' })
			if v, ok := joinGroups(groups); ok {
				return Match{Value: v, Line: line}, nil
			}
		}
	}
	return Match{}, notFound(KindIDNumber)
}

func joinGroups(groups []string) (string, bool) {
	for i := 0; i < len(groups); i++ {
		if v := strings.Join(groups[i:], ""); validIDLength(len(v)) {
			return v, true
		}
	}
	for j := len(groups) - 1; j > 1; j-- {
		if v := strings.Join(groups[:j], ""); validIDLength(len(v)) {
			return v, true
		}
	}
	return "", false
}
