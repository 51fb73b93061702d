package ocr

import (
	"context"
	"image"
	"strings"
)

// Engine turns a preprocessed card image into an ordered transcript.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, img image.Image) (Transcript, error)
}

// Fragment is one piece of recognized text with its confidence and location
type Fragment struct {
	Text       string
	Confidence float64 // 0-1
	Box        BoundingBox
}

// BoundingBox represents the location of text in the image
type BoundingBox struct {
	X      int
	Y      int
	Width  int
	Height int
}

// CenterY returns the vertical centre of the box.
func (b BoundingBox) CenterY() float64 {
	return float64(b.Y) + float64(b.Height)/2
}

// IsEmpty reports whether the engine supplied no geometry.
func (b BoundingBox) IsEmpty() bool {
	return b.Height <= 0
}

// Transcript is the full set of fragments recognized from one image, in reading order.
type Transcript struct {
	Fragments []Fragment
}

// Text concatenates fragment texts with single spaces.
func (t Transcript) Text() string {
	parts := make([]string, 0, len(t.Fragments))
	for _, f := range t.Fragments {
		if s := strings.TrimSpace(f.Text); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// IsEmpty reports whether no text was detected.
func (t Transcript) IsEmpty() bool {
	for _, f := range t.Fragments {
		if strings.TrimSpace(f.Text) != "" {
			return false
		}
	}
	return true
}
