package extract

import (
	"iter"
	"strings"

	"github.com/nidscan/nid-ocr-service/internal/fuzzy"
)

const nameKeyword = "NAME"

// minNameLetters is the shortest name accepted after cleaning.
const minNameLetters = 3

var honorifics = map[string]bool{
	"MR": true, "MRS": true, "MS": true, "MISS": true, "DR": true,
	"PROF": true, "JANAB": true, "SHRI": true, "SRI": true,
}

// boilerplate words never appear in a holder's name; a candidate containing one
// is a card heading or a label.
var boilerplate = map[string]bool{
	"NATIONAL": true, "CARD": true, "BANGLADESH": true, "GOVERNMENT": true,
	"GOVERMENT": true, "PEOPLES": true, "REPUBLIC": true, "SIGNATURE": true,
	"ELECTION": true, "COMMISSION": true, "BIRTH": true, "DATE": true,
	"NAME": true, "FATHER": true, "MOTHER": true, "HUSBAND": true,
	"NID": true, "ID": true, "NO": true, "NUMBER": true,
}

// cleanName drops honorifics and noise tokens and rejects headings. "MD" is part
// of many Bangladeshi names and is kept.
func cleanName(s string) (string, bool) {
	var kept []string
	letters := 0
	for _, tok := range strings.Fields(strings.ToUpper(s)) {
		tok = strings.Trim(tok, ".,:;'\"-_()")
		if tok == "" || honorifics[tok] {
			continue
		}
		if boilerplate[tok] {
			return "", false
		}
		if !isLatinWord(tok) {
			continue
		}
		kept = append(kept, tok)
		letters += len(tok)
	}
	if letters < minNameLetters {
		return "", false
	}
	return strings.Join(kept, " "), true
}

func isLatinWord(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return s != ""
}

func nameStrategies(keywordThreshold float64) []Strategy {
	return []Strategy{
		{Name: "label", Weight: 1.0, Find: labelledName(keywordThreshold)},
		{Name: "uppercase", Weight: 0.6, Find: findUppercaseName},
	}
}

// labelledName finds a line whose first token is close to NAME and takes the rest
// of that line, or the next line when the rest is empty or unusable.
func labelledName(threshold float64) func(iter.Seq[Line]) (Match, error) {
	return func(lines iter.Seq[Line]) (Match, error) {
		pending := false
		for line := range lines {
			if pending {
				pending = false
				if v, ok := cleanName(line.Text); ok {
					return Match{Value: v, Line: line}, nil
				}
			}
			tokens := strings.Fields(strings.ReplaceAll(line.Text, ":", " "))
			if len(tokens) == 0 || fuzzy.Ratio(tokens[0], nameKeyword) < threshold {
				continue
			}
			if v, ok := cleanName(strings.Join(tokens[1:], " ")); ok {
				return Match{Value: v, Line: line}, nil
			}
			pending = true
		}
		return Match{}, notFound(KindName)
	}
}

// findUppercaseName picks the longest line printed entirely in capitals, which is
// how the English name appears on the card.
func findUppercaseName(lines iter.Seq[Line]) (Match, error) {
	var best Match
	found := false
	for line := range lines {
		if !isUppercaseLine(line.Original) {
			continue
		}
		v, ok := cleanName(line.Original)
		if !ok {
			continue
		}
		if !found || len(v) > len(best.Value) {
			best = Match{Value: v, Line: line}
			found = true
		}
	}
	if !found {
		return Match{}, notFound(KindName)
	}
	return best, nil
}

func isUppercaseLine(s string) bool {
	hasLetter := false
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			hasLetter = true
		case r == ' ' || r == '.':
		default:
			return false
		}
	}
	return hasLetter
}
