package detection

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/uwuifier/pkg/types"
)

type fakeVisionClient struct {
	report *types.FaceReport
	err    error
	prompt string
	imgB64 string
}

func (f *fakeVisionClient) SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error) {
	return "a person", f.err
}

func (f *fakeVisionClient) LocateFaces(ctx context.Context, model, prompt, imgB64 string) (*types.FaceReport, error) {
	f.prompt = prompt
	f.imgB64 = imgB64
	return f.report, f.err
}

// createTestImage creates a flat test image
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{200, 180, 160, 255})
		}
	}
	return img
}

func TestVisionLocatorConvertsToPixels(t *testing.T) {
	fake := &fakeVisionClient{report: &types.FaceReport{
		Faces: []types.NormalizedFace{
			{X0: 0.4, Y0: 0.2, X1: 0.6, Y1: 0.6, Confidence: 0.9},
		},
	}}
	l := NewVisionLocator(fake, "ollama", "qwen2.5vl", nil)

	boxes, err := l.Locate(context.Background(), createTestImage(1000, 500))
	require.NoError(t, err)
	require.Len(t, boxes, 1)

	assert.InDelta(t, 400, boxes[0].X0, 1e-9)
	assert.InDelta(t, 100, boxes[0].Y0, 1e-9)
	assert.InDelta(t, 600, boxes[0].X1, 1e-9)
	assert.InDelta(t, 300, boxes[0].Y1, 1e-9)
	assert.Equal(t, FacePrompt, fake.prompt)
	assert.NotEmpty(t, fake.imgB64)
	assert.Equal(t, "ollama", l.Name())
}

func TestVisionLocatorDropsDegenerateAndUnsure(t *testing.T) {
	fake := &fakeVisionClient{report: &types.FaceReport{
		Faces: []types.NormalizedFace{
			{X0: 0.5, Y0: 0.5, X1: 0.5, Y1: 0.7, Confidence: 0.9},
			{X0: 0.1, Y0: 0.1, X1: 0.2, Y1: 0.2, Confidence: 0.1},
			{X0: 0.6, Y0: 0.1, X1: 0.8, Y1: 0.4, Confidence: 0.8},
		},
	}}
	l := NewVisionLocator(fake, "llamacpp", "llava", nil)
	l.MinConfidence = 0.5

	boxes, err := l.Locate(context.Background(), createTestImage(100, 100))
	require.NoError(t, err)
	require.Len(t, boxes, 1)
	assert.InDelta(t, 60, boxes[0].X0, 1e-9)
}

func TestVisionLocatorError(t *testing.T) {
	fake := &fakeVisionClient{err: errors.New("connection refused")}
	l := NewVisionLocator(fake, "ollama", "m", nil)

	_, err := l.Locate(context.Background(), createTestImage(10, 10))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestToPixelBox(t *testing.T) {
	tests := []struct {
		name string
		face types.NormalizedFace
		want types.BoundingBox
	}{
		{
			name: "normalized",
			face: types.NormalizedFace{X0: 0.25, Y0: 0.5, X1: 0.75, Y1: 1, Confidence: 0.5},
			want: types.BoundingBox{X0: 50, Y0: 50, X1: 150, Y1: 100, Confidence: 0.5},
		},
		{
			name: "already pixels",
			face: types.NormalizedFace{X0: 20, Y0: 10, X1: 60, Y1: 50},
			want: types.BoundingBox{X0: 20, Y0: 10, X1: 60, Y1: 50},
		},
		{
			name: "swapped corners",
			face: types.NormalizedFace{X0: 0.5, Y0: 0.5, X1: 0.25, Y1: 0.25},
			want: types.BoundingBox{X0: 50, Y0: 25, X1: 100, Y1: 50},
		},
		{
			name: "out of range",
			face: types.NormalizedFace{X0: -0.1, Y0: 0.2, X1: 1.0, Y1: 0.9, Confidence: 3},
			want: types.BoundingBox{X0: 0, Y0: 20, X1: 200, Y1: 90, Confidence: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := toPixelBox(tt.face, 200, 100)
			assert.InDelta(t, tt.want.X0, got.X0, 1e-9)
			assert.InDelta(t, tt.want.Y0, got.Y0, 1e-9)
			assert.InDelta(t, tt.want.X1, got.X1, 1e-9)
			assert.InDelta(t, tt.want.Y1, got.Y1, 1e-9)
			assert.InDelta(t, tt.want.Confidence, got.Confidence, 1e-9)
		})
	}
}

func TestFilterConfidence(t *testing.T) {
	boxes := []types.BoundingBox{
		{X1: 1, Y1: 1, Confidence: 0.9},
		{X1: 1, Y1: 1, Confidence: 0.2},
		{X1: 1, Y1: 1},
	}

	assert.Len(t, FilterConfidence(boxes, 0), 3)
	assert.Len(t, FilterConfidence(boxes, 0.5), 2)
}
