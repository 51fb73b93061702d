// Package vision adapts multimodal language models to the ocr.Engine interface.
// The model is asked for a plain line-by-line transcript; each returned line is
// placed on its own row so the normalizer keeps the model's reading order.
package vision

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/nidscan/nid-ocr-service/internal/ocr"
)

const (
	// Vision models do not report per-line confidence.
	lineConfidence = 0.8
	rowHeight      = 40
)

const transcriptPrompt = `You are an OCR engine. Transcribe every line of text printed on this identity card exactly as it appears, top to bottom.
Rules:
- Output one printed line per output line.
- Keep labels (for example "Name", "Date of Birth", "ID NO") on their own line when they are printed on their own line.
- Do not translate, correct, summarise or explain anything.
- Skip text that is not in Latin script or digits.
- Output only the transcript, no markdown.`

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// linesToTranscript converts a model reply into one fragment per non-empty line.
func linesToTranscript(reply string) ocr.Transcript {
	backticks := "```"
	cleaned := strings.ReplaceAll(reply, backticks+"text", "")
	cleaned = strings.ReplaceAll(cleaned, backticks, "")

	var fragments []ocr.Fragment
	for _, line := range strings.Split(cleaned, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		row := len(fragments)
		fragments = append(fragments, ocr.Fragment{
			Text:       line,
			Confidence: lineConfidence,
			Box:        ocr.BoundingBox{X: 0, Y: row * rowHeight * 2, Width: len(line), Height: rowHeight},
		})
	}
	return ocr.Transcript{Fragments: fragments}
}
