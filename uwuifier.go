// Package uwuifier turns a portrait photo into upscaled anime art.
//
// A run has three stages. The photo is cropped to the largest square that
// keeps its single face as close to the center as the image edges allow;
// the square is restyled by a diffusion backend; the stylized image is
// upscaled by a super-resolution model. Each stage writes its output file
// before the next one starts.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"log"
//
//		"github.com/menta2k/uwuifier"
//		"github.com/menta2k/uwuifier/pkg/detection"
//		"github.com/menta2k/uwuifier/pkg/pipeline"
//		"github.com/menta2k/uwuifier/pkg/stylize"
//		"github.com/menta2k/uwuifier/pkg/upscale"
//	)
//
//	func main() {
//		locator, err := detection.NewPigoLocator("facefinder", detection.DefaultPigoParams(), nil)
//		if err != nil {
//			log.Fatal(err)
//		}
//		u := uwuifier.New(locator,
//			stylize.NewSDWebUIStylizer(stylize.DefaultSDWebUIConfig(), nil),
//			upscale.NewResampler(2),
//			pipeline.Options{OutputDir: "out"}, nil)
//
//		m, err := u.Run(context.Background(), "me.jpg")
//		if err != nil {
//			log.Fatal(err)
//		}
//		log.Printf("wrote %s with seed %d", m.UpscaledPath, m.Seed)
//	}
//
// The package wraps these components:
//
//  1. Detection (pkg/detection): face locators (YOLO ONNX, pigo, vision models)
//  2. Cropper (pkg/cropper): face-centered square crop
//  3. Stylize (pkg/stylize): SD WebUI ControlNet, OpenAI and Gemini backends
//  4. Upscale (pkg/upscale): ONNX super-resolution and Lanczos resampling
//  5. Pipeline (pkg/pipeline): stage sequencing, seeds and the run manifest
//
// Photos with no face or with several faces are rejected with an error
// matching cropper.ErrUnsupportedInput.
package uwuifier

import (
	"context"
	"image"

	"go.uber.org/zap"

	"github.com/menta2k/uwuifier/pkg/cropper"
	"github.com/menta2k/uwuifier/pkg/detection"
	"github.com/menta2k/uwuifier/pkg/pipeline"
	"github.com/menta2k/uwuifier/pkg/processing"
	"github.com/menta2k/uwuifier/pkg/stylize"
	"github.com/menta2k/uwuifier/pkg/types"
	"github.com/menta2k/uwuifier/pkg/upscale"
)

// Version of the uwuifier library
const Version = "0.1.0"

// Errors returned for photos the cropper cannot handle
var (
	ErrUnsupportedInput = cropper.ErrUnsupportedInput
	ErrNoFace           = cropper.ErrNoFace
	ErrMultipleFaces    = cropper.ErrMultipleFaces
)

// Uwuifier provides a high-level interface over the pipeline
type Uwuifier struct {
	processor *processing.Processor
	cropper   *cropper.Cropper
	driver    *pipeline.Driver
}

// New creates an Uwuifier from its three stages
func New(locator detection.Locator, s stylize.Stylizer, u upscale.Upscaler, opts pipeline.Options, logger *zap.Logger) *Uwuifier {
	p := processing.NewProcessor()
	c := cropper.New(locator, p, logger)
	return &Uwuifier{
		processor: p,
		cropper:   c,
		driver:    pipeline.New(c, s, u, p, opts, logger),
	}
}

// Run processes inputPath through crop, stylize and upscale
func (u *Uwuifier) Run(ctx context.Context, inputPath string) (*types.Manifest, error) {
	return u.driver.Run(ctx, inputPath)
}

// RunWithSeed is Run with a fixed generation seed
func (u *Uwuifier) RunWithSeed(ctx context.Context, inputPath string, seed int64) (*types.Manifest, error) {
	return u.driver.WithSeed(seed).Run(ctx, inputPath)
}

// Crop writes the face-centered square of inputPath to outputPath
func (u *Uwuifier) Crop(ctx context.Context, inputPath, outputPath string) (*cropper.Result, error) {
	return u.cropper.CropFile(ctx, inputPath, outputPath)
}

// CropImage returns the face-centered square of img
func (u *Uwuifier) CropImage(ctx context.Context, img image.Image) (*cropper.Result, error) {
	return u.cropper.CropImage(ctx, img)
}

// DetectFaces returns the face boxes found in the image at path
func (u *Uwuifier) DetectFaces(ctx context.Context, path string) ([]types.BoundingBox, error) {
	return u.cropper.DetectFaces(ctx, path)
}

// LoadImage loads an image from a file path or an http(s) URL
func (u *Uwuifier) LoadImage(ctx context.Context, source string) (image.Image, error) {
	return u.processor.LoadImageSmart(ctx, source)
}

// SaveImage saves an image, choosing the format from the extension
func (u *Uwuifier) SaveImage(img image.Image, path string) error {
	return u.processor.SaveImage(img, path)
}

// SquareRegion computes the square crop for a face box in a width x height
// image
func SquareRegion(width, height int, face types.BoundingBox) types.CropRegion {
	return cropper.SquareRegion(width, height, face)
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
