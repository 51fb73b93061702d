package ocr

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

const (
	defaultMaxDimension = 2000
	defaultContrast     = 20
	defaultSharpen      = 1.0
)

// Preprocessor handles image preprocessing for optimal OCR results
type Preprocessor struct {
	maxDimension int
	contrast     float64
	sharpen      float64
}

// NewPreprocessor creates a new image preprocessor with the default filter chain
func NewPreprocessor() *Preprocessor {
	return &Preprocessor{
		maxDimension: defaultMaxDimension,
		contrast:     defaultContrast,
		sharpen:      defaultSharpen,
	}
}

// PreprocessImage decodes an image file and enhances it for OCR.
// EXIF orientation is honoured so phone photos come out upright.
func (p *Preprocessor) PreprocessImage(imagePath string) (image.Image, error) {
	src, err := imaging.Open(imagePath, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return p.Preprocess(src), nil
}

// Preprocess applies the filter chain:
// resize (if too large) -> grayscale -> contrast -> sharpen
func (p *Preprocessor) Preprocess(src image.Image) image.Image {
	img := imaging.Fit(src, p.maxDimension, p.maxDimension, imaging.Lanczos)
	img = imaging.Grayscale(img)
	img = imaging.AdjustContrast(img, p.contrast)
	return imaging.Sharpen(img, p.sharpen)
}
