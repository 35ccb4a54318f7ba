package types

import (
	"image"
	"math"
	"time"
)

// BoundingBox is an axis-aligned face rectangle in image pixel space
type BoundingBox struct {
	X0         float64 `json:"x0"`
	Y0         float64 `json:"y0"`
	X1         float64 `json:"x1"`
	Y1         float64 `json:"y1"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Center returns the midpoint of the box
func (b BoundingBox) Center() (float64, float64) {
	return (b.X0 + b.X1) / 2, (b.Y0 + b.Y1) / 2
}

// Width returns the horizontal extent of the box
func (b BoundingBox) Width() float64 {
	return b.X1 - b.X0
}

// Height returns the vertical extent of the box
func (b BoundingBox) Height() float64 {
	return b.Y1 - b.Y0
}

// Area returns the box area, zero for degenerate boxes
func (b BoundingBox) Area() float64 {
	if b.X1 <= b.X0 || b.Y1 <= b.Y0 {
		return 0
	}
	return b.Width() * b.Height()
}

// Within reports whether the box is non-empty and lies inside [0,w]x[0,h]
func (b BoundingBox) Within(w, h int) bool {
	return b.X0 >= 0 && b.Y0 >= 0 &&
		b.X0 < b.X1 && b.Y0 < b.Y1 &&
		b.X1 <= float64(w) && b.Y1 <= float64(h)
}

// Clamp returns the box limited to [0,w]x[0,h]
func (b BoundingBox) Clamp(w, h int) BoundingBox {
	fw, fh := float64(w), float64(h)
	return BoundingBox{
		X0:         math.Max(0, math.Min(b.X0, fw)),
		Y0:         math.Max(0, math.Min(b.Y0, fh)),
		X1:         math.Max(0, math.Min(b.X1, fw)),
		Y1:         math.Max(0, math.Min(b.Y1, fh)),
		Confidence: b.Confidence,
	}
}

// IoU returns the intersection over union of two boxes
func (b BoundingBox) IoU(o BoundingBox) float64 {
	inter := BoundingBox{
		X0: math.Max(b.X0, o.X0),
		Y0: math.Max(b.Y0, o.Y0),
		X1: math.Min(b.X1, o.X1),
		Y1: math.Min(b.Y1, o.Y1),
	}.Area()
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// CropRegion is a square crop rectangle derived from a face box
type CropRegion struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}

// Side returns the side length of the square
func (r CropRegion) Side() float64 {
	return r.Right - r.Left
}

// Rect converts the region to a pixel rectangle. Left and Top are rounded
// and the integer side is added, so the rectangle stays square.
func (r CropRegion) Rect() image.Rectangle {
	x0 := int(math.Round(r.Left))
	y0 := int(math.Round(r.Top))
	side := int(math.Round(r.Side()))
	return image.Rect(x0, y0, x0+side, y0+side)
}

// FaceReport is the structured answer expected from a vision-language model
type FaceReport struct {
	Faces       []NormalizedFace `json:"faces"`
	Description string           `json:"description"`
}

// NormalizedFace is a face box with coordinates in [0,1]
type NormalizedFace struct {
	X0         float64 `json:"x0"`
	Y0         float64 `json:"y0"`
	X1         float64 `json:"x1"`
	Y1         float64 `json:"y1"`
	Confidence float64 `json:"confidence"`
}

// ImageInfo contains basic image metadata
type ImageInfo struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	AspectRatio float64 `json:"aspect_ratio"`
	Format      string  `json:"format,omitempty"`
}

// StageTiming records how long a pipeline stage took
type StageTiming struct {
	Stage    string        `json:"stage"`
	Duration time.Duration `json:"duration"`
}

// Manifest describes one completed pipeline run
type Manifest struct {
	RunID          string        `json:"run_id"`
	StartedAt      time.Time     `json:"started_at"`
	Input          string        `json:"input"`
	SquarePath     string        `json:"square_path"`
	ControlPath    string        `json:"control_path,omitempty"`
	StylizedPath   string        `json:"stylized_path"`
	UpscaledPath   string        `json:"upscaled_path"`
	Seed           int64         `json:"seed"`
	Prompt         string        `json:"prompt"`
	NegativePrompt string        `json:"negative_prompt"`
	Source         ImageInfo     `json:"source"`
	Face           BoundingBox   `json:"face"`
	Crop           CropRegion    `json:"crop"`
	Locator        string        `json:"locator"`
	Stylizer       string        `json:"stylizer"`
	Upscaler       string        `json:"upscaler"`
	Timings        []StageTiming `json:"timings"`
}
