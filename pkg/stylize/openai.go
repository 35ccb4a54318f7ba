package stylize

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/menta2k/uwuifier/pkg/processing"
)

// DefaultOpenAIModel edits images with the GPT image model
const DefaultOpenAIModel = "gpt-image-1"

// OpenAIStylizer restyles the crop through the OpenAI Images edit API. The
// API has no seed, so results are not reproducible.
type OpenAIStylizer struct {
	client    *openai.Client
	model     string
	processor *processing.Processor
	logger    *zap.Logger
}

// NewOpenAIStylizer creates the backend. Extra options (base URL, retries)
// are passed to the SDK client.
func NewOpenAIStylizer(apiKey, model string, logger *zap.Logger, opts ...option.RequestOption) *OpenAIStylizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	client := openai.NewClient(opts...)
	return &OpenAIStylizer{
		client:    &client,
		model:     model,
		processor: processing.NewProcessor(),
		logger:    logger,
	}
}

// Name returns "openai"
func (s *OpenAIStylizer) Name() string {
	return "openai"
}

// Stylize sends the resized crop with the prompt to the edit endpoint
func (s *OpenAIStylizer) Stylize(ctx context.Context, img image.Image, req Request) (image.Image, error) {
	data, err := encodePNG(Prepare(img, req.size()))
	if err != nil {
		return nil, fmt.Errorf("failed to encode input image: %w", err)
	}

	s.logger.Debug("openai image edit does not accept a seed", zap.Int64("seed", req.Seed))

	params := openai.ImageEditParams{
		Image: openai.ImageEditParamsImageUnion{
			OfFile: openai.File(bytes.NewReader(data), "input.png", "image/png"),
		},
		Prompt: foldNegative(req.Prompt, req.NegativePrompt),
		Model:  openai.ImageModel(s.model),
		N:      openai.Int(1),
	}
	if s.model == string(openai.ImageModelDallE2) {
		params.ResponseFormat = openai.ImageEditParamsResponseFormatB64JSON
	}

	resp, err := s.client.Images.Edit(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("no image from OpenAI")
	}

	out, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("failed to decode OpenAI image: %w", err)
	}
	return s.processor.DecodeImage(out)
}
