package upscale

import (
	"context"
	"fmt"
	"image"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/menta2k/uwuifier/internal/ortenv"
	"github.com/menta2k/uwuifier/pkg/hub"
	"github.com/menta2k/uwuifier/pkg/tensor"
)

// DefaultModel is the 2x AnimeSharp RCAN model in half precision
var DefaultModel = hub.File{
	RepoID:   "Kim2091/2x-AnimeSharpV4",
	Filename: "2x-AnimeSharpV4_Fast_RCAN_PU_fp16_opset17.onnx",
	Revision: "main",
}

// ONNXParams configures the model upscaler
type ONNXParams struct {
	// ModelPath is a local model file; when empty Model is downloaded
	ModelPath string   `json:"model_path" yaml:"model_path"`
	Model     hub.File `json:"model" yaml:"model"`
	Threads   int      `json:"threads" yaml:"threads"`
	// Scale resolves dynamic output dimensions; defaults to 2
	Scale int `json:"scale" yaml:"scale"`
}

// ONNXUpscaler runs a single-image super-resolution model. The input
// element type (float16 or float32) is read from the model.
type ONNXUpscaler struct {
	params  ONNXParams
	hub     *hub.Client
	libPath string
	logger  *zap.Logger
}

// NewONNXUpscaler creates the upscaler
func NewONNXUpscaler(params ONNXParams, h *hub.Client, libPath string, logger *zap.Logger) *ONNXUpscaler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ONNXUpscaler{params: params, hub: h, libPath: libPath, logger: logger}
}

// Name returns "onnx"
func (u *ONNXUpscaler) Name() string {
	return "onnx"
}

// Upscale runs the model on img
func (u *ONNXUpscaler) Upscale(ctx context.Context, img image.Image) (image.Image, error) {
	modelPath, err := u.modelPath(ctx)
	if err != nil {
		return nil, err
	}
	if err := ortenv.Init(u.libPath); err != nil {
		return nil, err
	}

	inInfo, outInfo, err := ortenv.IONames(modelPath)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	shape := ort.NewShape(1, 3, int64(h), int64(w))
	data := tensor.FromImage(img)
	half := inInfo.DataType == ort.TensorElementDataTypeFloat16

	var input ort.Value
	if half {
		input, err = ort.NewCustomDataTensor(shape, tensor.Float16Bytes(data), ort.TensorElementDataTypeFloat16)
	} else {
		input, err = ort.NewTensor(shape, data)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer input.Destroy()

	opts, err := ortenv.NewSessionOptions(u.params.Threads)
	if err != nil {
		return nil, err
	}
	defer opts.Destroy()

	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{inInfo.Name}, []string{outInfo.Name}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create upscaler session: %w", err)
	}
	defer session.Destroy()

	u.logger.Debug("running upscaler",
		zap.String("model", modelPath),
		zap.Bool("fp16", half),
		zap.Int("width", w),
		zap.Int("height", h))

	scale := u.params.Scale
	if scale <= 0 {
		scale = 2
	}
	outShape, err := outputShape(outInfo.Dimensions, scale, h, w)
	if err != nil {
		return nil, err
	}

	// self-allocated custom tensors are sized by element count, not bytes
	var output ort.Value
	outHalf := outInfo.DataType == ort.TensorElementDataTypeFloat16
	if outHalf {
		output, err = ort.NewCustomDataTensor(outShape, make([]byte, 2*outShape.FlattenedSize()), ort.TensorElementDataTypeFloat16)
	} else {
		output, err = ort.NewEmptyTensor[float32](outShape)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer output.Destroy()

	if err := session.Run([]ort.Value{input}, []ort.Value{output}); err != nil {
		return nil, fmt.Errorf("upscaler inference failed: %w", err)
	}

	switch out := output.(type) {
	case *ort.Tensor[float32]:
		return decodeFloat32Output(out.GetData(), outShape)
	case *ort.CustomDataTensor:
		return decodeFloat16Output(out.GetData(), outShape)
	default:
		return nil, fmt.Errorf("unexpected upscaler output type %T", output)
	}
}

// outputShape resolves the model's declared NCHW output shape, filling
// dynamic dimensions from the input size and scale
func outputShape(dims ort.Shape, scale, h, w int) (ort.Shape, error) {
	if len(dims) != 4 {
		return nil, fmt.Errorf("unexpected upscaler output rank %d", len(dims))
	}
	fill := []int64{1, 3, int64(scale * h), int64(scale * w)}
	shape := make(ort.Shape, 4)
	for i, d := range dims {
		if d <= 0 {
			d = fill[i]
		}
		shape[i] = d
	}
	if shape[0] != 1 || shape[1] != 3 {
		return nil, fmt.Errorf("unexpected upscaler output shape %v", shape)
	}
	return shape, nil
}

func decodeFloat32Output(values []float32, shape ort.Shape) (image.Image, error) {
	return tensor.ToImage(values, int(shape[3]), int(shape[2]))
}

func decodeFloat16Output(b []byte, shape ort.Shape) (image.Image, error) {
	if int64(len(b)) != 2*shape.FlattenedSize() {
		return nil, fmt.Errorf("fp16 output holds %d bytes, want %d for shape %v", len(b), 2*shape.FlattenedSize(), shape)
	}
	return decodeFloat32Output(tensor.FromFloat16Bytes(b), shape)
}

func (u *ONNXUpscaler) modelPath(ctx context.Context) (string, error) {
	if u.params.ModelPath != "" || u.hub == nil {
		if u.params.ModelPath == "" {
			return "", fmt.Errorf("upscale: no model path and no hub client")
		}
		return u.params.ModelPath, nil
	}
	model := u.params.Model
	if model.RepoID == "" {
		model = DefaultModel
	}
	return u.hub.Resolve(ctx, "", model)
}
