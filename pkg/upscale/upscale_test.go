package upscale

import (
	"context"
	"errors"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/menta2k/uwuifier/pkg/processing"
	"github.com/menta2k/uwuifier/pkg/tensor"
)

// createTestImage creates a simple test image
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 3), uint8(y * 3), 90, 255})
		}
	}
	return img
}

type failingUpscaler struct{}

func (failingUpscaler) Name() string { return "broken" }

func (failingUpscaler) Upscale(ctx context.Context, img image.Image) (image.Image, error) {
	return nil, errors.New("session failed")
}

func TestResampler(t *testing.T) {
	r := NewResampler(0)

	out, err := r.Upscale(context.Background(), createTestImage(64, 48))
	require.NoError(t, err)

	assert.Equal(t, image.Rect(0, 0, 128, 96), out.Bounds())
	assert.Equal(t, "resample", r.Name())
}

func TestResamplerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewResampler(2).Upscale(ctx, createTestImage(4, 4))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFile(t *testing.T) {
	dir := t.TempDir()
	p := processing.NewProcessor()
	in := filepath.Join(dir, "me_square_anime.png")
	out := filepath.Join(dir, "me_square_anime_upscaled.png")
	require.NoError(t, p.SaveImage(createTestImage(32, 32), in))

	img, err := File(context.Background(), NewResampler(3), p, in, out)
	require.NoError(t, err)
	assert.Equal(t, 96, img.Bounds().Dx())

	saved, err := p.LoadImage(out)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 96, 96), saved.Bounds())
}

func TestFileErrors(t *testing.T) {
	dir := t.TempDir()
	p := processing.NewProcessor()

	_, err := File(context.Background(), NewResampler(2), p, filepath.Join(dir, "missing.png"), filepath.Join(dir, "out.png"))
	assert.Error(t, err)

	in := filepath.Join(dir, "in.png")
	require.NoError(t, p.SaveImage(createTestImage(8, 8), in))
	_, err = File(context.Background(), failingUpscaler{}, p, in, filepath.Join(dir, "out.png"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken upscale failed")
	assert.NoFileExists(t, filepath.Join(dir, "out.png"))
}

func TestONNXUpscalerWithoutModel(t *testing.T) {
	u := NewONNXUpscaler(ONNXParams{}, nil, "", nil)

	_, err := u.Upscale(context.Background(), createTestImage(8, 8))
	assert.Error(t, err)
	assert.Equal(t, "onnx", u.Name())
}

func TestDefaultModel(t *testing.T) {
	assert.Equal(t, "Kim2091/2x-AnimeSharpV4", DefaultModel.RepoID)
	assert.Equal(t, "2x-AnimeSharpV4_Fast_RCAN_PU_fp16_opset17.onnx", DefaultModel.Filename)
}

func TestOutputShapeFillsDynamicDims(t *testing.T) {
	shape, err := outputShape(ort.NewShape(-1, 3, -1, -1), 2, 30, 40)
	require.NoError(t, err)
	assert.Equal(t, ort.NewShape(1, 3, 60, 80), shape)

	shape, err = outputShape(ort.NewShape(1, 3, 128, 96), 2, 30, 40)
	require.NoError(t, err)
	assert.Equal(t, ort.NewShape(1, 3, 128, 96), shape, "static dims are kept")

	_, err = outputShape(ort.NewShape(1, 3, -1), 2, 30, 40)
	assert.Error(t, err)
	_, err = outputShape(ort.NewShape(1, 4, -1, -1), 2, 30, 40)
	assert.Error(t, err)
}

func TestDecodeFloat16Output(t *testing.T) {
	src := createTestImage(8, 6)
	shape := ort.NewShape(1, 3, 6, 8)
	buf := tensor.Float16Bytes(tensor.FromImage(src))
	require.Len(t, buf, int(2*shape.FlattenedSize()))

	out, err := decodeFloat16Output(buf, shape)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 8, 6), out.Bounds())

	for y := 0; y < 6; y++ {
		for x := 0; x < 8; x++ {
			wr, wg, wb, _ := src.At(x, y).RGBA()
			gr, gg, gb, _ := out.At(x, y).RGBA()
			require.Equal(t, []uint32{wr >> 8, wg >> 8, wb >> 8}, []uint32{gr >> 8, gg >> 8, gb >> 8}, "pixel %d,%d", x, y)
		}
	}
}

func TestDecodeFloat16OutputRejectsElementSizedBuffer(t *testing.T) {
	shape := ort.NewShape(1, 3, 8, 8)

	_, err := decodeFloat16Output(make([]byte, shape.FlattenedSize()), shape)

	assert.ErrorContains(t, err, "want 384")
}
