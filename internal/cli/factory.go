package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/menta2k/uwuifier/internal/config"
	"github.com/menta2k/uwuifier/pkg/client"
	"github.com/menta2k/uwuifier/pkg/cropper"
	"github.com/menta2k/uwuifier/pkg/detection"
	"github.com/menta2k/uwuifier/pkg/hub"
	"github.com/menta2k/uwuifier/pkg/llamacpp"
	"github.com/menta2k/uwuifier/pkg/ollama"
	"github.com/menta2k/uwuifier/pkg/pipeline"
	"github.com/menta2k/uwuifier/pkg/processing"
	"github.com/menta2k/uwuifier/pkg/stylize"
	"github.com/menta2k/uwuifier/pkg/upscale"
)

// progressWriter is where progress bars go when enabled
var progressWriter io.Writer = os.Stderr

func newProcessor(cfg *config.Config) *processing.Processor {
	p := processing.NewProcessor()
	p.Quality = cfg.Output.Quality
	p.Lossless = cfg.Output.Lossless
	return p
}

func newHub(cfg *config.Config, logger *zap.Logger) *hub.Client {
	h := hub.NewClient(cfg.Hub.CacheDir, cfg.Hub.Token, logger)
	if cfg.Hub.Endpoint != "" {
		h.Endpoint = cfg.Hub.Endpoint
	}
	if cfg.Pipeline.Progress {
		h.Progress = progressWriter
	}
	return h
}

func newVisionClient(backend string, cfg *config.Config) (client.VisionClient, config.VisionModelConfig, error) {
	switch backend {
	case "ollama":
		c, err := ollama.NewClient(cfg.Detection.Ollama.URL)
		if err != nil {
			return nil, cfg.Detection.Ollama, fmt.Errorf("failed to create Ollama client: %w", err)
		}
		return c, cfg.Detection.Ollama, nil
	case "llamacpp":
		c, err := llamacpp.NewClient(cfg.Detection.LlamaCpp.URL)
		if err != nil {
			return nil, cfg.Detection.LlamaCpp, fmt.Errorf("failed to create llama.cpp client: %w", err)
		}
		return c, cfg.Detection.LlamaCpp, nil
	default:
		return nil, config.VisionModelConfig{}, fmt.Errorf("%s is not a vision model backend", backend)
	}
}

func newLocator(cfg *config.Config, h *hub.Client, logger *zap.Logger) (detection.Locator, error) {
	switch cfg.Detection.Backend {
	case "yolo":
		params := cfg.Detection.YOLO
		if cfg.Detection.MinConfidence > params.Confidence {
			params.Confidence = cfg.Detection.MinConfidence
		}
		return detection.NewYOLOLocator(params, h, cfg.ONNX.LibraryPath, logger), nil
	case "pigo":
		l, err := detection.NewPigoLocator(cfg.Detection.Pigo.CascadePath, cfg.Detection.Pigo.PigoParams, logger)
		if err != nil {
			return nil, err
		}
		return l, nil
	case "ollama", "llamacpp":
		c, mc, err := newVisionClient(cfg.Detection.Backend, cfg)
		if err != nil {
			return nil, err
		}
		l := detection.NewVisionLocator(c, cfg.Detection.Backend, mc.Model, logger)
		l.MinConfidence = cfg.Detection.MinConfidence
		return l, nil
	default:
		return nil, fmt.Errorf("unknown detection backend: %s", cfg.Detection.Backend)
	}
}

func newStylizer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (stylize.Stylizer, error) {
	switch cfg.Stylize.Backend {
	case "sdwebui":
		return stylize.NewSDWebUIStylizer(cfg.Stylize.SDWebUI, logger), nil
	case "openai":
		var opts []option.RequestOption
		if cfg.Stylize.OpenAI.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(cfg.Stylize.OpenAI.BaseURL))
		}
		return stylize.NewOpenAIStylizer(cfg.Stylize.OpenAI.APIKey, cfg.Stylize.OpenAI.Model, logger, opts...), nil
	case "gemini":
		s, err := stylize.NewGeminiStylizer(ctx, cfg.Stylize.Gemini.APIKey, cfg.Stylize.Gemini.Model, cfg.Stylize.Gemini.BaseURL, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown stylize backend: %s", cfg.Stylize.Backend)
	}
}

func newUpscaler(cfg *config.Config, h *hub.Client, logger *zap.Logger) (upscale.Upscaler, error) {
	switch cfg.Upscale.Backend {
	case "onnx":
		return upscale.NewONNXUpscaler(cfg.Upscale.ONNX, h, cfg.ONNX.LibraryPath, logger), nil
	case "resample":
		return upscale.NewResampler(cfg.Upscale.Scale), nil
	default:
		return nil, fmt.Errorf("unknown upscale backend: %s", cfg.Upscale.Backend)
	}
}

func newCropper(cfg *config.Config, p *processing.Processor, h *hub.Client, logger *zap.Logger) (*cropper.Cropper, error) {
	locator, err := newLocator(cfg, h, logger)
	if err != nil {
		return nil, err
	}
	c := cropper.New(locator, p, logger)
	c.Debug = cfg.Pipeline.Debug
	return c, nil
}

// newDriver wires every stage from cfg
func newDriver(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*pipeline.Driver, *processing.Processor, error) {
	p := newProcessor(cfg)
	h := newHub(cfg, logger)

	c, err := newCropper(cfg, p, h, logger)
	if err != nil {
		return nil, nil, err
	}

	s, err := newStylizer(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	u, err := newUpscaler(cfg, h, logger)
	if err != nil {
		return nil, nil, err
	}

	opts := pipeline.Options{
		OutputDir:      cfg.Pipeline.OutputDir,
		Prompt:         cfg.Pipeline.Prompt,
		NegativePrompt: cfg.Pipeline.NegativePrompt,
		Seed:           cfg.Pipeline.Seed,
		Steps:          cfg.Pipeline.Steps,
		Size:           cfg.Pipeline.Size,
	}
	if cfg.Pipeline.Progress {
		opts.Progress = progressWriter
	}
	return pipeline.New(c, s, u, p, opts, logger), p, nil
}
