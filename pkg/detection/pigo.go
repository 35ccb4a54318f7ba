package detection

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/disintegration/imaging"
	pigo "github.com/esimov/pigo/core"
	"go.uber.org/zap"

	"github.com/menta2k/uwuifier/pkg/types"
)

// PigoParams tunes the cascade scan
type PigoParams struct {
	MinSize      int     `json:"min_size" yaml:"min_size"`
	MaxSize      int     `json:"max_size" yaml:"max_size"`
	ShiftFactor  float64 `json:"shift_factor" yaml:"shift_factor"`
	ScaleFactor  float64 `json:"scale_factor" yaml:"scale_factor"`
	IoUThreshold float64 `json:"iou_threshold" yaml:"iou_threshold"`
	// MinQuality drops clustered detections with a lower cascade score
	MinQuality float32 `json:"min_quality" yaml:"min_quality"`
}

// DefaultPigoParams returns parameters suited to portrait photos
func DefaultPigoParams() PigoParams {
	return PigoParams{
		MinSize:      60,
		MaxSize:      2000,
		ShiftFactor:  0.1,
		ScaleFactor:  1.1,
		IoUThreshold: 0.2,
		MinQuality:   5.0,
	}
}

// PigoLocator runs the pigo pixel-intensity-comparison face cascade. It
// needs no runtime or network and is the cheapest locator.
type PigoLocator struct {
	classifier *pigo.Pigo
	params     PigoParams
	logger     *zap.Logger

	mu sync.Mutex
}

// NewPigoLocator unpacks the cascade file at cascadePath
func NewPigoLocator(cascadePath string, params PigoParams, logger *zap.Logger) (*PigoLocator, error) {
	data, err := os.ReadFile(cascadePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read pigo cascade: %w", err)
	}
	return NewPigoLocatorFromBytes(data, params, logger)
}

// NewPigoLocatorFromBytes unpacks an in-memory cascade
func NewPigoLocatorFromBytes(cascade []byte, params PigoParams, logger *zap.Logger) (*PigoLocator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack pigo cascade: %w", err)
	}
	return &PigoLocator{classifier: classifier, params: params, logger: logger}, nil
}

// Name returns "pigo"
func (l *PigoLocator) Name() string {
	return "pigo"
}

// Locate scans img and converts the clustered detections to boxes
func (l *PigoLocator) Locate(ctx context.Context, img image.Image) ([]types.BoundingBox, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b := img.Bounds()
	cols, rows := b.Dx(), b.Dy()
	maxSize := l.params.MaxSize
	if maxSize <= 0 || maxSize > min(cols, rows) {
		maxSize = min(cols, rows)
	}

	cParams := pigo.CascadeParams{
		MinSize:     l.params.MinSize,
		MaxSize:     maxSize,
		ShiftFactor: l.params.ShiftFactor,
		ScaleFactor: l.params.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: pigo.RgbToGrayscale(imaging.Clone(img)),
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	l.mu.Lock()
	dets := l.classifier.RunCascade(cParams, 0.0)
	dets = l.classifier.ClusterDetections(dets, l.params.IoUThreshold)
	l.mu.Unlock()

	boxes := make([]types.BoundingBox, 0, len(dets))
	for _, d := range dets {
		if d.Q < l.params.MinQuality {
			continue
		}
		boxes = append(boxes, detectionToBox(d, cols, rows))
	}

	l.logger.Debug("pigo located faces", zap.Int("raw", len(dets)), zap.Int("faces", len(boxes)))
	return boxes, nil
}

// detectionToBox converts a pigo detection (center row/col and side) to a
// clamped box. The score is kept as the box confidence.
func detectionToBox(d pigo.Detection, w, h int) types.BoundingBox {
	half := float64(d.Scale) / 2
	return types.BoundingBox{
		X0:         float64(d.Col) - half,
		Y0:         float64(d.Row) - half,
		X1:         float64(d.Col) + half,
		Y1:         float64(d.Row) + half,
		Confidence: float64(d.Q),
	}.Clamp(w, h)
}
