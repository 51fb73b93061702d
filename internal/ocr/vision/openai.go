package vision

import (
	"context"
	"encoding/base64"
	"fmt"
	"image"

	"github.com/sashabaranov/go-openai"

	"github.com/nidscan/nid-ocr-service/internal/ocr"
)

// OpenAIEngine transcribes card images with an OpenAI-compatible vision model
type OpenAIEngine struct {
	client *openai.Client
	model  string
}

// NewOpenAIEngine creates a new engine. baseURL may point at any
// OpenAI-compatible endpoint; empty means the public API.
func NewOpenAIEngine(apiKey, baseURL, model string) *OpenAIEngine {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = "gpt-4o"
	}
	return &OpenAIEngine{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func (e *OpenAIEngine) Name() string { return "openai" }

// Recognize sends the image as a data URL and parses the transcript reply
func (e *OpenAIEngine) Recognize(ctx context.Context, img image.Image) (ocr.Transcript, error) {
	data, err := encodePNG(img)
	if err != nil {
		return ocr.Transcript{}, err
	}
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: transcriptPrompt},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL,
							Detail: openai.ImageURLDetailHigh,
						},
					},
				},
			},
		},
	})
	if err != nil {
		return ocr.Transcript{}, fmt.Errorf("openai vision request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return ocr.Transcript{}, fmt.Errorf("openai vision returned no choices")
	}

	return linesToTranscript(resp.Choices[0].Message.Content), nil
}
