package extract

import (
	"iter"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/nidscan/nid-ocr-service/internal/errors"
)

// DateLayout is the canonical rendering of a date of birth, e.g. "07 Jun 1972".
const DateLayout = "02 Jan 2006"

const monthPattern = `(JAN(?:UARY)?|FEB(?:RUARY)?|MAR(?:CH)?|APR(?:IL)?|MAY|JUNE?|JULY?|AUG(?:UST)?|SEP(?:T(?:EMBER)?)?|OCT(?:OBER)?|NOV(?:EMBER)?|DEC(?:EMBER)?)\.?`

const (
	orderDMY = iota
	orderMDY
	orderYMD
)

type datePattern struct {
	re    *regexp.Regexp
	order int
	named bool
}

var datePatterns = []datePattern{
	{re: regexp.MustCompile(`(\d{1,2})(?:ST|ND|RD|TH)?[\s\-/.,]*` + monthPattern + `[\s\-/.,]*(\d{4})`), order: orderDMY, named: true},
	{re: regexp.MustCompile(monthPattern + `[\s\-/.,]*(\d{1,2})(?:ST|ND|RD|TH)?[\s\-/.,]*(\d{4})`), order: orderMDY, named: true},
	{re: regexp.MustCompile(`(\d{4})[\-/.](\d{1,2})[\-/.](\d{1,2})`), order: orderYMD},
	{re: regexp.MustCompile(`(\d{1,2})[\-/.](\d{1,2})[\-/.](\d{4})`), order: orderDMY},
}

var dobLabelRe = regexp.MustCompile(`DATE\s*[O0]F\s*B[I1]RTH|\bDOB\b|\bBIRTH\b`)

var monthNumbers = map[string]time.Month{
	"JAN": time.January, "FEB": time.February, "MAR": time.March,
	"APR": time.April, "MAY": time.May, "JUN": time.June,
	"JUL": time.July, "AUG": time.August, "SEP": time.September,
	"OCT": time.October, "NOV": time.November, "DEC": time.December,
}

type dateHit struct {
	date       time.Time
	start, end int
}

// findDates returns every calendar-valid date in text, in order of position.
// Matches glued to further digits are rejected so "123-06-19721" yields nothing.
func findDates(text string) []dateHit {
	var hits []dateHit
	for _, p := range datePatterns {
		for _, loc := range p.re.FindAllStringSubmatchIndex(text, -1) {
			if loc[0] > 0 && isDigit(rune(text[loc[0]-1])) {
				continue
			}
			if loc[1] < len(text) && isDigit(rune(text[loc[1]])) {
				continue
			}
			if d, ok := p.parse(text, loc); ok {
				hits = append(hits, dateHit{date: d, start: loc[0], end: loc[1]})
			}
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].start < hits[j].start })

	// Overlapping hits from different layouts keep the leftmost.
	out := hits[:0]
	lastEnd := -1
	for _, h := range hits {
		if h.start < lastEnd {
			continue
		}
		out = append(out, h)
		lastEnd = h.end
	}
	return out
}

func (p datePattern) parse(text string, loc []int) (time.Time, bool) {
	group := func(i int) string { return text[loc[2*i]:loc[2*i+1]] }
	var dayS, monthS, yearS string
	switch p.order {
	case orderDMY:
		dayS, monthS, yearS = group(1), group(2), group(3)
	case orderMDY:
		monthS, dayS, yearS = group(1), group(2), group(3)
	case orderYMD:
		yearS, monthS, dayS = group(1), group(2), group(3)
	}

	day, err := strconv.Atoi(dayS)
	if err != nil {
		return time.Time{}, false
	}
	year, err := strconv.Atoi(yearS)
	if err != nil {
		return time.Time{}, false
	}
	var month time.Month
	if p.named {
		m, ok := monthNumbers[monthS[:3]]
		if !ok {
			return time.Time{}, false
		}
		month = m
	} else {
		n, err := strconv.Atoi(monthS)
		if err != nil {
			return time.Time{}, false
		}
		month = time.Month(n)
	}
	return calendarDate(year, month, day)
}

// calendarDate rejects values time.Date would normalize, like 31 Feb.
func calendarDate(year int, month time.Month, day int) (time.Time, bool) {
	if month < time.January || month > time.December || day < 1 {
		return time.Time{}, false
	}
	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if d.Year() != year || d.Month() != month || d.Day() != day {
		return time.Time{}, false
	}
	return d, true
}

// ParseDate returns the first date found in s in any supported layout.
func ParseDate(s string) (time.Time, bool) {
	hits := findDates(strings.ToUpper(fixNumericSpans(cleanText(s))))
	if len(hits) == 0 {
		return time.Time{}, false
	}
	return hits[0].date, true
}

// FormatDate renders d in DateLayout.
func FormatDate(d time.Time) string {
	return d.Format(DateLayout)
}

// birthRange bounds plausible birth dates.
type birthRange struct {
	minYear int
	maxYear int
	now     time.Time
}

func (r birthRange) contains(d time.Time) bool {
	return d.Year() >= r.minYear && d.Year() <= r.maxYear && !d.After(r.now)
}

func (r birthRange) invalid(d time.Time) error {
	return apperrors.NewFieldInvalidError(string(KindDateOfBirth), FormatDate(d),
		"date of birth outside plausible range "+strconv.Itoa(r.minYear)+"-"+strconv.Itoa(r.maxYear))
}

func dobStrategies(r birthRange) []Strategy {
	return []Strategy{
		{Name: "label", Weight: 1.0, Find: r.findLabelledDate},
		{Name: "scan", Weight: 0.85, Find: r.scanDates},
	}
}

// findLabelledDate reads the date printed after a birth-date label, or on the
// following line when the label stands alone.
func (r birthRange) findLabelledDate(lines iter.Seq[Line]) (Match, error) {
	pending := false
	for line := range lines {
		if pending {
			pending = false
			if hits := findDates(line.Text); len(hits) > 0 {
				return r.accept(hits[0].date, line)
			}
		}
		loc := dobLabelRe.FindStringIndex(line.Text)
		if loc == nil {
			continue
		}
		if hits := findDates(line.Text[loc[1]:]); len(hits) > 0 {
			return r.accept(hits[0].date, line)
		}
		pending = true
	}
	return Match{}, notFound(KindDateOfBirth)
}

func (r birthRange) accept(d time.Time, line Line) (Match, error) {
	if !r.contains(d) {
		return Match{}, r.invalid(d)
	}
	return Match{Value: FormatDate(d), Date: d, Line: line}, nil
}

// scanDates takes the first plausible date anywhere in the transcript.
func (r birthRange) scanDates(lines iter.Seq[Line]) (Match, error) {
	var rejected *time.Time
	for line := range lines {
		for _, h := range findDates(line.Text) {
			if r.contains(h.date) {
				return Match{Value: FormatDate(h.date), Date: h.date, Line: line}, nil
			}
			if rejected == nil {
				d := h.date
				rejected = &d
			}
		}
	}
	if rejected != nil {
		return Match{}, r.invalid(*rejected)
	}
	return Match{}, notFound(KindDateOfBirth)
}
