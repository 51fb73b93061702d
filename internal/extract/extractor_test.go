package extract

import (
	"iter"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/nidscan/nid-ocr-service/internal/errors"
	"github.com/nidscan/nid-ocr-service/internal/ocr"
)

var fixedNow = time.Date(2026, time.October, 18, 12, 0, 0, 0, time.UTC)

func testExtractor() *Extractor {
	cfg := DefaultConfig()
	cfg.Now = func() time.Time { return fixedNow }
	return NewExtractor(cfg)
}

func linesOf(rows ...string) iter.Seq[Line] {
	fragments := make([]ocr.Fragment, 0, len(rows))
	for _, r := range rows {
		fragments = append(fragments, ocr.Fragment{Text: r, Confidence: 0.9})
	}
	return NewNormalizer(0).Lines(ocr.Transcript{Fragments: fragments})
}

func TestExtractCardTranscript(t *testing.T) {
	res := testExtractor().Extract(linesOf(
		"NAME", "MD SAMIM MIA", "DATE OF BIRTH", "07 JUN 1972", "NID NO", "9116217028",
	))

	assert.Empty(t, res.Errors)
	require.NotNil(t, res.Name)
	require.NotNil(t, res.DateOfBirth)
	require.NotNil(t, res.IDNumber)

	assert.Equal(t, "MD SAMIM MIA", res.Name.Value)
	assert.Equal(t, "label", res.Name.Strategy)
	assert.Equal(t, 1, res.Name.Line)
	assert.InDelta(t, 0.9, res.Name.Confidence, 1e-9)

	assert.Equal(t, "07 Jun 1972", res.DateOfBirth.Value)
	assert.Equal(t, time.Date(1972, time.June, 7, 0, 0, 0, 0, time.UTC), res.DateOfBirth.Date)

	assert.Equal(t, "9116217028", res.IDNumber.Value)
	assert.Equal(t, KindIDNumber, res.IDNumber.Kind)
	assert.Same(t, res.IDNumber, res.Field(KindIDNumber))
}

func TestExtractFieldsAreIndependent(t *testing.T) {
	res := testExtractor().Extract(linesOf("GOVERNMENT OF THE PEOPLES REPUBLIC", "NID NO 9116217028"))

	assert.Nil(t, res.Name)
	assert.Nil(t, res.DateOfBirth)
	require.NotNil(t, res.IDNumber)
	assert.True(t, apperrors.Is(res.Errors[KindName], apperrors.ErrorFieldNotFound))
	assert.True(t, apperrors.Is(res.Errors[KindDateOfBirth], apperrors.ErrorFieldNotFound))
}

func TestExtractIDNumber(t *testing.T) {
	tests := []struct {
		name     string
		rows     []string
		want     string
		strategy string
	}{
		{"label same line", []string{"NID NO: 9116217028"}, "9116217028", "label"},
		{"label next line", []string{"ID NUMBER", "19721234567890123"}, "19721234567890123", "label"},
		{"label glued", []string{"ID NO9116217028"}, "9116217028", "label"},
		{"label wins over earlier run", []string{"1234567890", "NID 9116217028"}, "9116217028", "label"},
		{"first unlabelled", []string{"CARD", "5555555555 6666666666"}, "5555555555", "first"},
		{"grouped", []string{"ID NO", "911 621 7028"}, "9116217028", "grouped"},
		{"grouped with hyphens", []string{"911-621-7028"}, "9116217028", "grouped"},
		{"grouped skips leading year", []string{"1972 911 621 7028"}, "9116217028", "grouped"},
		{"confusions repaired", []string{"NID NO 9l162I7O28"}, "9116217028", "label"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := testExtractor().ExtractField(KindIDNumber, linesOf(tt.rows...))
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Value)
			assert.Equal(t, tt.strategy, f.Strategy)
		})
	}
}

func TestExtractIDNumberNotFound(t *testing.T) {
	for _, rows := range [][]string{
		{"NID NO 123456789012"},
		{"NID NO 91162170"},
		{"NAME", "MD SAMIM MIA"},
		{},
	} {
		_, err := testExtractor().ExtractField(KindIDNumber, linesOf(rows...))
		assert.True(t, apperrors.Is(err, apperrors.ErrorFieldNotFound), "%v", rows)
	}
}

func TestParseDateLayouts(t *testing.T) {
	for _, in := range []string{
		"1972/06/07", "1972-06-07", "1972.6.7",
		"07-06-1972", "07/06/1972", "7.6.1972",
		"7 June 1972", "07 JUN 1972", "07-Jun-1972", "7th June, 1972",
		"June 7 1972", "Jun 07, 1972", "07JUN1972",
	} {
		d, ok := ParseDate(in)
		require.True(t, ok, in)
		assert.Equal(t, "07 Jun 1972", FormatDate(d), in)
	}
}

func TestParseDateRejects(t *testing.T) {
	for _, in := range []string{"", "31 Feb 1990", "1990-13-01", "123-06-19721", "Jun 1972", "00/06/1972"} {
		_, ok := ParseDate(in)
		assert.False(t, ok, in)
	}
}

func TestExtractDateOfBirth(t *testing.T) {
	tests := []struct {
		name     string
		rows     []string
		want     string
		strategy string
	}{
		{"label same line", []string{"Date of Birth: 07 Jun 1972"}, "07 Jun 1972", "label"},
		{"label ocr zero", []string{"DATE 0F B1RTH 1972/06/07"}, "07 Jun 1972", "label"},
		{"dob abbreviation", []string{"DOB 07-06-1972"}, "07 Jun 1972", "label"},
		{"label next line", []string{"DATE OF BIRTH", "7 June 1972"}, "07 Jun 1972", "label"},
		{"label wins over earlier date", []string{"ISSUE 01 Jan 2015", "BIRTH 07 JUN 1972"}, "07 Jun 1972", "label"},
		{"scan skips implausible", []string{"ISSUE 01 Jan 2015", "07 JUN 1972"}, "07 Jun 1972", "scan"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := testExtractor().ExtractField(KindDateOfBirth, linesOf(tt.rows...))
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Value)
			assert.Equal(t, tt.strategy, f.Strategy)
		})
	}
}

func TestExtractDateOfBirthInvalid(t *testing.T) {
	tests := []struct {
		name string
		rows []string
	}{
		{"labelled year 1850", []string{"DATE OF BIRTH", "07 JUN 1850"}},
		{"unlabelled year 1850", []string{"07 JUN 1850"}},
		{"under age", []string{"DOB 01 Jan 2010"}},
		{"future", []string{"DOB 01 Jan 2030"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := testExtractor().ExtractField(KindDateOfBirth, linesOf(tt.rows...))
			assert.True(t, apperrors.Is(err, apperrors.ErrorFieldInvalid), "got %v", err)
		})
	}
}

func TestExtractDateOfBirthConfigurableRange(t *testing.T) {
	e := NewExtractor(Config{MinBirthYear: 1800, Now: func() time.Time { return fixedNow }})
	f, err := e.ExtractField(KindDateOfBirth, linesOf("DOB 07 JUN 1850"))
	require.NoError(t, err)
	assert.Equal(t, "07 Jun 1850", f.Value)
}

func TestExtractDateOfBirthZeroMinAge(t *testing.T) {
	rows := linesOf("DOB 07 Jun 2015")

	_, err := testExtractor().ExtractField(KindDateOfBirth, rows)
	assert.True(t, apperrors.Is(err, apperrors.ErrorFieldInvalid), "minimum age applies by default")

	cfg := DefaultConfig()
	cfg.MinAge = 0
	cfg.Now = func() time.Time { return fixedNow }
	f, err := NewExtractor(cfg).ExtractField(KindDateOfBirth, rows)
	require.NoError(t, err)
	assert.Equal(t, "07 Jun 2015", f.Value)

	// A future date is still rejected without an age limit
	_, err = NewExtractor(cfg).ExtractField(KindDateOfBirth, linesOf("DOB 07 Jun 2030"))
	assert.True(t, apperrors.Is(err, apperrors.ErrorFieldInvalid))
}

func TestExtractDateOfBirthNotFound(t *testing.T) {
	_, err := testExtractor().ExtractField(KindDateOfBirth, linesOf("DATE OF BIRTH", "UNKNOWN"))
	assert.True(t, apperrors.Is(err, apperrors.ErrorFieldNotFound))
}

func TestExtractName(t *testing.T) {
	tests := []struct {
		name     string
		rows     []string
		want     string
		strategy string
	}{
		{"label same line", []string{"Name: Md. Samim Mia"}, "MD SAMIM MIA", "label"},
		{"fuzzy label", []string{"NAM: MD SAMIM MIA"}, "MD SAMIM MIA", "label"},
		{"honorific dropped", []string{"NAME", "Mr. Karim Uddin"}, "KARIM UDDIN", "label"},
		{"noise dropped", []string{"NAME", "MD SAMIM MIA 1234"}, "MD SAMIM MIA", "label"},
		{"uppercase fallback", []string{"GOVERNMENT OF THE PEOPLES REPUBLIC OF BANGLADESH", "NATIONAL ID CARD", "MD SAMIM MIA", "Signature"}, "MD SAMIM MIA", "uppercase"},
		{"longest uppercase", []string{"MD ALI", "RAHIMA KHATUN BEGUM"}, "RAHIMA KHATUN BEGUM", "uppercase"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := testExtractor().ExtractField(KindName, linesOf(tt.rows...))
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Value)
			assert.Equal(t, tt.strategy, f.Strategy)
		})
	}
}

func TestExtractNameNotFound(t *testing.T) {
	for _, rows := range [][]string{
		{"NAME", "AB"},
		{"Father: Abdul Karim"},
		{"NATIONAL ID CARD"},
	} {
		_, err := testExtractor().ExtractField(KindName, linesOf(rows...))
		assert.True(t, apperrors.Is(err, apperrors.ErrorFieldNotFound), "%v", rows)
	}
}

func TestCleanName(t *testing.T) {
	v, ok := cleanName("  dr.  md   samim  mia ")
	assert.True(t, ok)
	assert.Equal(t, "MD SAMIM MIA", v)

	_, ok = cleanName("MR XY")
	assert.False(t, ok)

	_, ok = cleanName("NID NO")
	assert.False(t, ok)
}
