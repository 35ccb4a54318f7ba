package detection

import (
	"context"
	"fmt"
	"image"

	"go.uber.org/zap"

	"github.com/menta2k/uwuifier/pkg/client"
	"github.com/menta2k/uwuifier/pkg/processing"
	"github.com/menta2k/uwuifier/pkg/types"
)

// Locator finds faces in an image. Boxes are in the pixel space of img.
type Locator interface {
	Name() string
	Locate(ctx context.Context, img image.Image) ([]types.BoundingBox, error)
}

// SimpleTestPrompt for testing if the model can see images
const SimpleTestPrompt = `What do you see in this image? Describe it briefly.`

// FacePrompt is the default prompt for face localisation
const FacePrompt = `You are a face locator.

Return JSON only:
{
  "faces": [
    {"x0": 0.0, "y0": 0.0, "x1": 0.0, "y1": 0.0, "confidence": 0.0}
  ],
  "description": "short neutral sentence (≤ 20 words)"
}

HARD RULES
- One entry per visible human face. Do not merge faces. Do not invent faces.
- All coordinates are normalized to [0,1] (NOT pixels); (x0,y0) is the top-left corner, (x1,y1) the bottom-right.
- Each box tightly encloses one face from forehead to chin and ear to ear.
- confidence is your certainty in [0,1].
- If there is no face, return {"faces": [], "description": "..."}.
- Description must be brief and factual. Do not guess real identities.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// VisionLocator asks a vision-language model where the faces are
type VisionLocator struct {
	client    client.VisionClient
	processor *processing.Processor
	model     string
	backend   string
	logger    *zap.Logger

	// Prompt overrides FacePrompt when set
	Prompt string
	// MaxDimension bounds the image sent to the model
	MaxDimension int
	// MinConfidence drops faces the model is unsure about
	MinConfidence float64
}

// NewVisionLocator creates a locator backed by a vision client. backend names
// the client (ollama, llamacpp) in logs and manifests.
func NewVisionLocator(c client.VisionClient, backend, model string, logger *zap.Logger) *VisionLocator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VisionLocator{
		client:       c,
		processor:    processing.NewProcessor(),
		model:        model,
		backend:      backend,
		logger:       logger,
		MaxDimension: 1024,
	}
}

// Name returns the backend name
func (l *VisionLocator) Name() string {
	return l.backend
}

// Locate sends img to the model and converts its normalized answer to pixels
func (l *VisionLocator) Locate(ctx context.Context, img image.Image) ([]types.BoundingBox, error) {
	imgB64, err := l.processor.PrepareImageForModel(img, "jpg", l.MaxDimension, 85)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image for %s: %w", l.backend, err)
	}

	prompt := l.Prompt
	if prompt == "" {
		prompt = FacePrompt
	}

	report, err := l.client.LocateFaces(ctx, l.model, prompt, imgB64)
	if err != nil {
		return nil, fmt.Errorf("%s face query failed: %w", l.backend, err)
	}

	b := img.Bounds()
	boxes := make([]types.BoundingBox, 0, len(report.Faces))
	for _, f := range report.Faces {
		box := toPixelBox(f, b.Dx(), b.Dy())
		if box.Area() == 0 {
			l.logger.Debug("dropping degenerate face box", zap.Any("face", f))
			continue
		}
		boxes = append(boxes, box)
	}
	boxes = FilterConfidence(boxes, l.MinConfidence)

	l.logger.Debug("vision model located faces",
		zap.String("backend", l.backend),
		zap.String("model", l.model),
		zap.Int("faces", len(boxes)),
		zap.String("description", report.Description))
	return boxes, nil
}

// TestVision checks that the model can actually see the image
func (l *VisionLocator) TestVision(ctx context.Context, img image.Image) (string, error) {
	imgB64, err := l.processor.PrepareImageForModel(img, "jpg", l.MaxDimension, 85)
	if err != nil {
		return "", err
	}
	return l.client.SimpleQuery(ctx, l.model, SimpleTestPrompt, imgB64)
}

// FilterConfidence keeps boxes scoring at least minConfidence. Boxes without
// a score are kept.
func FilterConfidence(boxes []types.BoundingBox, minConfidence float64) []types.BoundingBox {
	if minConfidence <= 0 {
		return boxes
	}
	out := boxes[:0:0]
	for _, b := range boxes {
		if b.Confidence == 0 || b.Confidence >= minConfidence {
			out = append(out, b)
		}
	}
	return out
}

// clamp ensures a value is within the given bounds
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// toPixelBox scales a normalized face to image pixels. Models sometimes
// answer in pixels despite the prompt; any coordinate above 1 is taken as
// a sign of that.
func toPixelBox(f types.NormalizedFace, imgW, imgH int) types.BoundingBox {
	w, h := float64(imgW), float64(imgH)
	sx, sy := w, h
	if f.X0 > 1 || f.Y0 > 1 || f.X1 > 1 || f.Y1 > 1 {
		sx, sy = 1, 1
	}

	x0, x1 := f.X0*sx, f.X1*sx
	y0, y1 := f.Y0*sy, f.Y1*sy
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}

	return types.BoundingBox{
		X0:         clamp(x0, 0, w),
		Y0:         clamp(y0, 0, h),
		X1:         clamp(x1, 0, w),
		Y1:         clamp(y1, 0, h),
		Confidence: clamp(f.Confidence, 0, 1),
	}
}
