package ocr

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreprocessFitsAndGrays(t *testing.T) {
	src := imaging.New(4000, 1000, color.NRGBA{R: 200, G: 10, B: 10, A: 255})

	out := NewPreprocessor().Preprocess(src)

	b := out.Bounds()
	assert.Equal(t, 2000, b.Dx())
	assert.Equal(t, 500, b.Dy())
	r, g, bl, _ := out.At(10, 10).RGBA()
	assert.Equal(t, r, g)
	assert.Equal(t, g, bl)
}

func TestPreprocessKeepsSmallImages(t *testing.T) {
	out := NewPreprocessor().Preprocess(image.NewGray(image.Rect(0, 0, 300, 200)))
	assert.Equal(t, image.Rect(0, 0, 300, 200), out.Bounds())
}

func TestPreprocessImageFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "card.png")
	require.NoError(t, imaging.Save(imaging.New(40, 20, color.White), path))

	out, err := NewPreprocessor().PreprocessImage(path)
	require.NoError(t, err)
	assert.Equal(t, 40, out.Bounds().Dx())
}

func TestPreprocessImageRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "card.png")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o600))

	_, err := NewPreprocessor().PreprocessImage(path)
	assert.ErrorContains(t, err, "failed to decode image")
}

func TestTranscriptText(t *testing.T) {
	tr := Transcript{Fragments: []Fragment{{Text: " NAME "}, {Text: ""}, {Text: "MD SAMIM MIA"}}}
	assert.Equal(t, "NAME MD SAMIM MIA", tr.Text())
	assert.False(t, tr.IsEmpty())
	assert.True(t, Transcript{Fragments: []Fragment{{Text: "  "}}}.IsEmpty())
}
