package vision

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/nidscan/nid-ocr-service/internal/ocr"
)

// GeminiEngine transcribes card images with a Google Gemini model
type GeminiEngine struct {
	client *genai.Client
	model  string
}

// NewGeminiEngine opens a Gemini client. Call Close when done.
func NewGeminiEngine(ctx context.Context, apiKey, model string) (*GeminiEngine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if model == "" {
		model = "gemini-1.5-flash"
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiEngine{client: client, model: model}, nil
}

func (e *GeminiEngine) Name() string { return "gemini" }

// Close releases the underlying client
func (e *GeminiEngine) Close() error {
	return e.client.Close()
}

// Recognize sends the PNG-encoded image with the transcript prompt
func (e *GeminiEngine) Recognize(ctx context.Context, img image.Image) (ocr.Transcript, error) {
	data, err := encodePNG(img)
	if err != nil {
		return ocr.Transcript{}, err
	}

	model := e.client.GenerativeModel(e.model)
	model.SetTemperature(0)

	resp, err := model.GenerateContent(ctx, genai.ImageData("png", data), genai.Text(transcriptPrompt))
	if err != nil {
		return ocr.Transcript{}, fmt.Errorf("gemini request failed: %w", err)
	}

	return linesToTranscript(responseText(resp)), nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String()
}
