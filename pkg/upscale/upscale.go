// Package upscale enlarges the stylized image, by default with an ONNX
// super-resolution model.
package upscale

import (
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/menta2k/uwuifier/pkg/processing"
)

// Upscaler returns a higher-resolution version of img
type Upscaler interface {
	Name() string
	Upscale(ctx context.Context, img image.Image) (image.Image, error)
}

// File upscales the image at inputPath and writes the result to outputPath
func File(ctx context.Context, up Upscaler, p *processing.Processor, inputPath, outputPath string) (image.Image, error) {
	if p == nil {
		p = processing.NewProcessor()
	}
	img, err := p.LoadImage(inputPath)
	if err != nil {
		return nil, err
	}

	out, err := up.Upscale(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("%s upscale failed: %w", up.Name(), err)
	}

	if err := p.SaveImage(out, outputPath); err != nil {
		return nil, fmt.Errorf("failed to save upscaled image: %w", err)
	}
	return out, nil
}

// Resampler upscales with Lanczos interpolation and needs no model
type Resampler struct {
	Scale float64
}

// NewResampler creates a resampler; scale defaults to 2
func NewResampler(scale float64) *Resampler {
	if scale <= 0 {
		scale = 2
	}
	return &Resampler{Scale: scale}
}

// Name returns "resample"
func (r *Resampler) Name() string {
	return "resample"
}

// Upscale resizes img by the configured factor
func (r *Resampler) Upscale(ctx context.Context, img image.Image) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := img.Bounds()
	w := int(float64(b.Dx())*r.Scale + 0.5)
	h := int(float64(b.Dy())*r.Scale + 0.5)
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("invalid target size %dx%d", w, h)
	}
	return imaging.Resize(img, w, h, imaging.Lanczos), nil
}
