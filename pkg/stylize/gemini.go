package stylize

import (
	"context"
	"errors"
	"fmt"
	"image"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/menta2k/uwuifier/pkg/processing"
)

// DefaultGeminiModel is an image-output Gemini model
const DefaultGeminiModel = "gemini-2.5-flash-image"

// GeminiStylizer restyles the crop with a Gemini model that returns images
type GeminiStylizer struct {
	client    *genai.Client
	model     string
	processor *processing.Processor
	logger    *zap.Logger
}

// NewGeminiStylizer creates the backend. baseURL overrides the API
// endpoint when non-empty.
func NewGeminiStylizer(ctx context.Context, apiKey, model, baseURL string, logger *zap.Logger) (*GeminiStylizer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if model == "" {
		model = DefaultGeminiModel
	}

	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiStylizer{
		client:    client,
		model:     model,
		processor: processing.NewProcessor(),
		logger:    logger,
	}, nil
}

// Name returns "gemini"
func (s *GeminiStylizer) Name() string {
	return "gemini"
}

// Stylize asks the model for an image response
func (s *GeminiStylizer) Stylize(ctx context.Context, img image.Image, req Request) (image.Image, error) {
	data, err := encodePNG(Prepare(img, req.size()))
	if err != nil {
		return nil, fmt.Errorf("failed to encode input image: %w", err)
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: "Redraw this portrait. " + foldNegative(req.Prompt, req.NegativePrompt)},
				{InlineData: &genai.Blob{Data: data, MIMEType: "image/png"}},
			},
		},
	}
	seed := int32(req.Seed)
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
		Seed:               &seed,
	}

	result, err := s.client.Models.GenerateContent(ctx, s.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini API error: %w", err)
	}

	for _, cand := range result.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return s.processor.DecodeImage(part.InlineData.Data)
			}
		}
	}

	if text := result.Text(); text != "" {
		s.logger.Warn("gemini answered without an image", zap.String("text", text))
	}
	return nil, errors.New("no image in Gemini response")
}
