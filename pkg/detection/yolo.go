package detection

import (
	"context"
	"fmt"
	"image"
	"image/color"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
	"golang.org/x/image/draw"

	"github.com/menta2k/uwuifier/internal/ortenv"
	"github.com/menta2k/uwuifier/pkg/hub"
	"github.com/menta2k/uwuifier/pkg/tensor"
	"github.com/menta2k/uwuifier/pkg/types"
)

// DefaultYOLOModel is the YOLOv11n face detector on the Hugging Face Hub
var DefaultYOLOModel = hub.File{
	RepoID:   "AdamCodd/YOLOv11n-face-detection",
	Filename: "model.onnx",
}

// YOLOParams tunes the ONNX face detector
type YOLOParams struct {
	// ModelPath is a local model file; when empty Model is downloaded
	ModelPath    string   `json:"model_path" yaml:"model_path"`
	Model        hub.File `json:"model" yaml:"model"`
	InputSize    int      `json:"input_size" yaml:"input_size"`
	Confidence   float64  `json:"confidence" yaml:"confidence"`
	IoUThreshold float64  `json:"iou_threshold" yaml:"iou_threshold"`
	Threads      int      `json:"threads" yaml:"threads"`
}

// DefaultYOLOParams returns the detector defaults
func DefaultYOLOParams() YOLOParams {
	return YOLOParams{
		Model:        DefaultYOLOModel,
		InputSize:    640,
		Confidence:   0.25,
		IoUThreshold: 0.7,
	}
}

// letterboxFill is the padding gray used by YOLO preprocessing
var letterboxFill = color.NRGBA{114, 114, 114, 255}

// YOLOLocator runs a single-class YOLO face model through ONNX Runtime.
// A session is created per call and destroyed afterwards.
type YOLOLocator struct {
	params  YOLOParams
	hub     *hub.Client
	libPath string
	logger  *zap.Logger
}

// NewYOLOLocator creates the locator. libPath is the onnxruntime shared
// library; empty uses ortenv.DefaultLibraryPath.
func NewYOLOLocator(params YOLOParams, h *hub.Client, libPath string, logger *zap.Logger) *YOLOLocator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if params.InputSize <= 0 {
		params.InputSize = 640
	}
	return &YOLOLocator{params: params, hub: h, libPath: libPath, logger: logger}
}

// Name returns "yolo"
func (l *YOLOLocator) Name() string {
	return "yolo"
}

// Locate runs the model on img and returns the surviving boxes
func (l *YOLOLocator) Locate(ctx context.Context, img image.Image) ([]types.BoundingBox, error) {
	modelPath, err := l.modelPath(ctx)
	if err != nil {
		return nil, err
	}
	if err := ortenv.Init(l.libPath); err != nil {
		return nil, err
	}

	inInfo, outInfo, err := ortenv.IONames(modelPath)
	if err != nil {
		return nil, err
	}

	size := l.params.InputSize
	if dims := inInfo.Dimensions; len(dims) == 4 && dims[2] > 0 && dims[3] > 0 {
		size = int(dims[2])
	}

	lb := Letterbox(img, size)
	input, err := ort.NewTensor(ort.NewShape(1, 3, int64(size), int64(size)), tensor.FromImage(lb.Image))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer input.Destroy()

	opts, err := ortenv.NewSessionOptions(l.params.Threads)
	if err != nil {
		return nil, err
	}
	defer opts.Destroy()

	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{inInfo.Name}, []string{outInfo.Name}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create yolo session: %w", err)
	}
	defer session.Destroy()

	outputs := []ort.Value{nil}
	if err := session.Run([]ort.Value{input}, outputs); err != nil {
		return nil, fmt.Errorf("yolo inference failed: %w", err)
	}
	defer outputs[0].Destroy()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected yolo output type %T", outputs[0])
	}

	shape := out.GetShape()
	if len(shape) != 3 || shape[1] < 5 {
		return nil, fmt.Errorf("unexpected yolo output shape %v", shape)
	}

	b := img.Bounds()
	boxes := DecodeYOLO(out.GetData(), int(shape[1]), int(shape[2]), lb, b.Dx(), b.Dy(), l.params.Confidence)
	boxes = NMS(boxes, l.params.IoUThreshold)

	l.logger.Debug("yolo located faces", zap.Int("faces", len(boxes)), zap.String("model", modelPath))
	return boxes, nil
}

func (l *YOLOLocator) modelPath(ctx context.Context) (string, error) {
	if l.params.ModelPath != "" || l.hub == nil {
		if l.params.ModelPath == "" {
			return "", fmt.Errorf("yolo: no model path and no hub client")
		}
		return l.params.ModelPath, nil
	}
	model := l.params.Model
	if model.RepoID == "" {
		model = DefaultYOLOModel
	}
	return l.hub.Resolve(ctx, "", model)
}

// LetterboxResult is an image resized into a square canvas with padding
type LetterboxResult struct {
	Image *image.NRGBA
	Scale float64
	PadX  int
	PadY  int
}

// Letterbox scales img to fit a size×size canvas keeping its aspect ratio
// and centers it on gray padding
func Letterbox(img image.Image, size int) LetterboxResult {
	b := img.Bounds()
	scale := min(float64(size)/float64(b.Dx()), float64(size)/float64(b.Dy()))
	nw := max(1, int(float64(b.Dx())*scale+0.5))
	nh := max(1, int(float64(b.Dy())*scale+0.5))
	padX := (size - nw) / 2
	padY := (size - nh) / 2

	dst := image.NewNRGBA(image.Rect(0, 0, size, size))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(letterboxFill), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, image.Rect(padX, padY, padX+nw, padY+nh), img, b, draw.Src, nil)

	return LetterboxResult{Image: dst, Scale: scale, PadX: padX, PadY: padY}
}

// DecodeYOLO turns a channel-major [channels, anchors] prediction with rows
// (cx, cy, w, h, score...) into boxes in source image pixels. Only the first
// class score is read.
func DecodeYOLO(data []float32, channels, anchors int, lb LetterboxResult, imgW, imgH int, minConfidence float64) []types.BoundingBox {
	if len(data) < channels*anchors || channels < 5 {
		return nil
	}

	var boxes []types.BoundingBox
	for i := 0; i < anchors; i++ {
		score := float64(data[4*anchors+i])
		if score < minConfidence {
			continue
		}
		cx := float64(data[i])
		cy := float64(data[anchors+i])
		w := float64(data[2*anchors+i])
		h := float64(data[3*anchors+i])

		box := types.BoundingBox{
			X0:         (cx - w/2 - float64(lb.PadX)) / lb.Scale,
			Y0:         (cy - h/2 - float64(lb.PadY)) / lb.Scale,
			X1:         (cx + w/2 - float64(lb.PadX)) / lb.Scale,
			Y1:         (cy + h/2 - float64(lb.PadY)) / lb.Scale,
			Confidence: score,
		}.Clamp(imgW, imgH)
		if box.Area() > 0 {
			boxes = append(boxes, box)
		}
	}
	return boxes
}
