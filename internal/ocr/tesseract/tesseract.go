package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/nidscan/nid-ocr-service/internal/ocr"
)

// Config holds Tesseract configuration
type Config struct {
	Language    string
	PageSegMode int
	Variables   map[string]string
}

// Engine implements ocr.Engine using the gosseract client.
// A fresh client is created per call so concurrent requests never share state.
type Engine struct {
	cfg           Config
	clientFactory func() *gosseract.Client
}

// NewEngine creates a new Tesseract engine
func NewEngine(cfg Config) *Engine {
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	return &Engine{cfg: cfg, clientFactory: gosseract.NewClient}
}

func (e *Engine) Name() string { return "tesseract" }

// Version reports the linked libtesseract version, used by the health check.
func (e *Engine) Version() string {
	c := e.clientFactory()
	defer c.Close()
	return c.Version()
}

// Recognize runs OCR and returns word-level fragments with their boxes.
func (e *Engine) Recognize(ctx context.Context, img image.Image) (ocr.Transcript, error) {
	if err := ctx.Err(); err != nil {
		return ocr.Transcript{}, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return ocr.Transcript{}, fmt.Errorf("encode image: %w", err)
	}

	c := e.clientFactory()
	defer c.Close()

	if err := c.SetLanguage(strings.Split(e.cfg.Language, "+")...); err != nil {
		return ocr.Transcript{}, fmt.Errorf("set language: %w", err)
	}
	if e.cfg.PageSegMode > 0 {
		if err := c.SetPageSegMode(gosseract.PageSegMode(e.cfg.PageSegMode)); err != nil {
			return ocr.Transcript{}, fmt.Errorf("set page segmentation mode: %w", err)
		}
	}
	for k, v := range e.cfg.Variables {
		if err := c.SetVariable(gosseract.SettableVariable(k), v); err != nil {
			return ocr.Transcript{}, fmt.Errorf("set variable %s: %w", k, err)
		}
	}
	if err := c.SetImageFromBytes(buf.Bytes()); err != nil {
		return ocr.Transcript{}, fmt.Errorf("set image: %w", err)
	}

	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return ocr.Transcript{}, fmt.Errorf("tesseract OCR failed: %w", err)
	}
	return toTranscript(boxes), nil
}

func toTranscript(boxes []gosseract.BoundingBox) ocr.Transcript {
	fragments := make([]ocr.Fragment, 0, len(boxes))
	for _, b := range boxes {
		if strings.TrimSpace(b.Word) == "" {
			continue
		}
		fragments = append(fragments, ocr.Fragment{
			Text:       b.Word,
			Confidence: b.Confidence / 100.0,
			Box: ocr.BoundingBox{
				X:      b.Box.Min.X,
				Y:      b.Box.Min.Y,
				Width:  b.Box.Dx(),
				Height: b.Box.Dy(),
			},
		})
	}
	return ocr.Transcript{Fragments: fragments}
}
