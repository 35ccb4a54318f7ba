// Package cropper cuts a photo down to the largest square centered on its
// single face.
package cropper

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/menta2k/uwuifier/pkg/detection"
	"github.com/menta2k/uwuifier/pkg/processing"
	"github.com/menta2k/uwuifier/pkg/types"
)

// ErrUnsupportedInput is returned when an image does not contain exactly
// one face
var ErrUnsupportedInput = errors.New("unsupported input")

var (
	// ErrNoFace means the locator found no face
	ErrNoFace = fmt.Errorf("%w: no face detected", ErrUnsupportedInput)
	// ErrMultipleFaces means the locator found more than one face
	ErrMultipleFaces = fmt.Errorf("%w: more than one face detected", ErrUnsupportedInput)
)

// SquareRegion returns the min(width,height) square centered on box,
// shifted as little as needed to stay inside the image
func SquareRegion(width, height int, box types.BoundingBox) types.CropRegion {
	cx, cy := box.Center()
	s := float64(min(width, height))

	left := clamp(cx-s/2, 0, float64(width)-s)
	top := clamp(cy-s/2, 0, float64(height)-s)

	return types.CropRegion{Left: left, Top: top, Right: left + s, Bottom: top + s}
}

// SelectFace returns the only box, or an unsupported-input error
func SelectFace(boxes []types.BoundingBox) (types.BoundingBox, error) {
	switch len(boxes) {
	case 0:
		return types.BoundingBox{}, ErrNoFace
	case 1:
		return boxes[0], nil
	default:
		return types.BoundingBox{}, fmt.Errorf("%w (found %d)", ErrMultipleFaces, len(boxes))
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}

// Result describes one crop
type Result struct {
	Image  image.Image
	Face   types.BoundingBox
	Region types.CropRegion
	Source types.ImageInfo
	// Path and DebugPath are set by CropFile
	Path      string
	DebugPath string
}

// Cropper locates the face and applies the square crop
type Cropper struct {
	locator   detection.Locator
	processor *processing.Processor
	logger    *zap.Logger

	// Debug writes <stem>_debug.png next to the output, showing the face
	// box and the crop square
	Debug bool
}

// New creates a cropper using locator to find faces
func New(locator detection.Locator, processor *processing.Processor, logger *zap.Logger) *Cropper {
	if processor == nil {
		processor = processing.NewProcessor()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cropper{locator: locator, processor: processor, logger: logger}
}

// Locator returns the face locator in use
func (c *Cropper) Locator() detection.Locator {
	return c.locator
}

// CropImage finds the single face in img and returns the square crop
func (c *Cropper) CropImage(ctx context.Context, img image.Image) (*Result, error) {
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("invalid image dimensions %dx%d", b.Dx(), b.Dy())
	}

	boxes, err := c.locator.Locate(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("face detection failed: %w", err)
	}

	face, err := SelectFace(boxes)
	if err != nil {
		return nil, err
	}
	face = face.Clamp(b.Dx(), b.Dy())

	region := SquareRegion(b.Dx(), b.Dy(), face)
	cropped := imaging.Crop(img, region.Rect().Add(b.Min))

	c.logger.Debug("square crop computed",
		zap.String("locator", c.locator.Name()),
		zap.Any("face", face),
		zap.Any("region", region))

	return &Result{
		Image:  cropped,
		Face:   face,
		Region: region,
		Source: processing.GetImageInfo(img),
	}, nil
}

// CropFile loads inputPath, crops it and saves the square to outputPath.
// Nothing is written when the crop fails.
func (c *Cropper) CropFile(ctx context.Context, inputPath, outputPath string) (*Result, error) {
	img, err := c.processor.LoadImage(inputPath)
	if err != nil {
		return nil, err
	}

	res, err := c.CropImage(ctx, img)
	if err != nil {
		return nil, err
	}

	if err := c.processor.SaveImage(res.Image, outputPath); err != nil {
		return nil, fmt.Errorf("failed to save square crop: %w", err)
	}
	res.Path = outputPath

	if c.Debug {
		res.DebugPath = debugPath(outputPath)
		overlay := c.processor.CreateDebugOverlay(img, res.Face, res.Region)
		if err := c.processor.SaveImage(overlay, res.DebugPath); err != nil {
			return nil, fmt.Errorf("failed to save debug overlay: %w", err)
		}
	}

	return res, nil
}

// DetectFaces returns the face boxes found in the image at path
func (c *Cropper) DetectFaces(ctx context.Context, path string) ([]types.BoundingBox, error) {
	img, err := c.processor.LoadImage(path)
	if err != nil {
		return nil, err
	}
	return c.locator.Locate(ctx, img)
}

func debugPath(outputPath string) string {
	ext := filepath.Ext(outputPath)
	return strings.TrimSuffix(outputPath, ext) + "_debug.png"
}
