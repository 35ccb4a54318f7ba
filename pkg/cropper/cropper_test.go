package cropper

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/uwuifier/pkg/processing"
	"github.com/menta2k/uwuifier/pkg/types"
)

// createTestImage creates an image whose pixels encode their own coordinates
func createTestImage(width, height int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{uint8(x), uint8(y), uint8(x >> 8), 255})
		}
	}
	return img
}

type fakeLocator struct {
	boxes []types.BoundingBox
	err   error
	calls int
}

func (f *fakeLocator) Name() string { return "fake" }

func (f *fakeLocator) Locate(ctx context.Context, img image.Image) ([]types.BoundingBox, error) {
	f.calls++
	return f.boxes, f.err
}

func TestSquareRegionExample(t *testing.T) {
	region := SquareRegion(1000, 500, types.BoundingBox{X0: 480, Y0: 230, X1: 520, Y1: 270})

	assert.Equal(t, types.CropRegion{Left: 250, Top: 0, Right: 750, Bottom: 500}, region)
}

func TestSquareRegionCorner(t *testing.T) {
	region := SquareRegion(1000, 500, types.BoundingBox{X0: 0, Y0: 0, X1: 0.5, Y1: 0.5})

	assert.Equal(t, 0.0, region.Left)
	assert.Equal(t, 0.0, region.Top)
	assert.Equal(t, 500.0, region.Side())
}

func TestSquareRegionFarCorner(t *testing.T) {
	region := SquareRegion(400, 900, types.BoundingBox{X0: 350, Y0: 850, X1: 400, Y1: 900})

	assert.Equal(t, types.CropRegion{Left: 0, Top: 500, Right: 400, Bottom: 900}, region)
}

func TestSquareRegionCenteredFaceIsNotClamped(t *testing.T) {
	// 1200x600: s=600, face center (700,300) is at least 300 from every edge
	face := types.BoundingBox{X0: 650, Y0: 250, X1: 750, Y1: 350}

	region := SquareRegion(1200, 600, face)

	cx, cy := face.Center()
	assert.Equal(t, cx, (region.Left+region.Right)/2)
	assert.Equal(t, cy, (region.Top+region.Bottom)/2)
}

func TestSquareRegionSquareImage(t *testing.T) {
	region := SquareRegion(300, 300, types.BoundingBox{X0: 10, Y0: 200, X1: 50, Y1: 260})

	assert.Equal(t, types.CropRegion{Left: 0, Top: 0, Right: 300, Bottom: 300}, region)
}

func TestSquareRegionProperties(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))

	for i := 0; i < 2000; i++ {
		w := 1 + r.IntN(3000)
		h := 1 + r.IntN(3000)
		x0 := r.Float64() * float64(w)
		x1 := x0 + r.Float64()*(float64(w)-x0)
		y0 := r.Float64() * float64(h)
		y1 := y0 + r.Float64()*(float64(h)-y0)

		region := SquareRegion(w, h, types.BoundingBox{X0: x0, Y0: y0, X1: x1, Y1: y1})

		s := float64(min(w, h))
		require.InDelta(t, s, region.Side(), 1e-9, "w=%d h=%d", w, h)
		require.InDelta(t, s, region.Bottom-region.Top, 1e-9, "w=%d h=%d", w, h)
		require.GreaterOrEqual(t, region.Left, 0.0)
		require.GreaterOrEqual(t, region.Top, 0.0)
		require.LessOrEqual(t, region.Right, float64(w))
		require.LessOrEqual(t, region.Bottom, float64(h))

		rect := region.Rect()
		require.True(t, rect.In(image.Rect(0, 0, w, h)), "rect %v outside %dx%d", rect, w, h)
		require.Equal(t, min(w, h), rect.Dx())
		require.Equal(t, min(w, h), rect.Dy())
	}
}

func TestSelectFace(t *testing.T) {
	one := types.BoundingBox{X0: 1, Y0: 1, X1: 2, Y1: 2}

	face, err := SelectFace([]types.BoundingBox{one})
	require.NoError(t, err)
	assert.Equal(t, one, face)

	_, err = SelectFace(nil)
	assert.ErrorIs(t, err, ErrNoFace)
	assert.ErrorIs(t, err, ErrUnsupportedInput)

	_, err = SelectFace([]types.BoundingBox{one, one})
	assert.ErrorIs(t, err, ErrMultipleFaces)
	assert.ErrorIs(t, err, ErrUnsupportedInput)
	assert.NotErrorIs(t, err, ErrNoFace)
}

func TestCropImage(t *testing.T) {
	loc := &fakeLocator{boxes: []types.BoundingBox{{X0: 480, Y0: 230, X1: 520, Y1: 270, Confidence: 0.9}}}
	c := New(loc, nil, nil)

	res, err := c.CropImage(context.Background(), createTestImage(1000, 500))
	require.NoError(t, err)

	assert.Equal(t, image.Rect(0, 0, 500, 500), res.Image.Bounds())
	// top-left pixel of the crop is source pixel (250,0)
	assert.Equal(t, color.NRGBA{uint8(250), 0, 0, 255}, color.NRGBAModel.Convert(res.Image.At(0, 0)))
	assert.Equal(t, 1000, res.Source.Width)
	assert.Equal(t, 0.9, res.Face.Confidence)
}

func TestCropImageIsDeterministic(t *testing.T) {
	loc := &fakeLocator{boxes: []types.BoundingBox{{X0: 100.3, Y0: 40.7, X1: 180.1, Y1: 120.2}}}
	c := New(loc, nil, nil)
	img := createTestImage(640, 360)

	a, err := c.CropImage(context.Background(), img)
	require.NoError(t, err)
	b, err := c.CropImage(context.Background(), img)
	require.NoError(t, err)

	assert.Equal(t, a.Image.(*image.NRGBA).Pix, b.Image.(*image.NRGBA).Pix)
}

func TestCropFile(t *testing.T) {
	dir := t.TempDir()
	p := processing.NewProcessor()
	in := filepath.Join(dir, "me.png")
	require.NoError(t, p.SaveImage(createTestImage(300, 200), in))

	loc := &fakeLocator{boxes: []types.BoundingBox{{X0: 250, Y0: 50, X1: 290, Y1: 90}}}
	c := New(loc, p, nil)
	c.Debug = true
	out := filepath.Join(dir, "me_square.png")

	res, err := c.CropFile(context.Background(), in, out)
	require.NoError(t, err)
	assert.Equal(t, types.CropRegion{Left: 100, Top: 0, Right: 300, Bottom: 200}, res.Region)

	saved, err := p.LoadImage(out)
	require.NoError(t, err)
	assert.Equal(t, 200, saved.Bounds().Dx())
	assert.Equal(t, 200, saved.Bounds().Dy())

	assert.Equal(t, filepath.Join(dir, "me_square_debug.png"), res.DebugPath)
	assert.FileExists(t, res.DebugPath)
}

func TestCropFileUnsupportedInputWritesNothing(t *testing.T) {
	dir := t.TempDir()
	p := processing.NewProcessor()
	in := filepath.Join(dir, "group.png")
	require.NoError(t, p.SaveImage(createTestImage(120, 80), in))

	cases := map[string][]types.BoundingBox{
		"no face":   nil,
		"two faces": {{X0: 1, Y0: 1, X1: 10, Y1: 10}, {X0: 50, Y0: 1, X1: 60, Y1: 10}},
	}
	for name, boxes := range cases {
		t.Run(name, func(t *testing.T) {
			c := New(&fakeLocator{boxes: boxes}, p, nil)
			out := filepath.Join(dir, name+".png")

			_, err := c.CropFile(context.Background(), in, out)

			require.ErrorIs(t, err, ErrUnsupportedInput)
			_, statErr := os.Stat(out)
			assert.True(t, os.IsNotExist(statErr))
		})
	}
}

func TestCropImageLocatorError(t *testing.T) {
	boom := errors.New("model load failed")
	c := New(&fakeLocator{err: boom}, nil, nil)

	_, err := c.CropImage(context.Background(), createTestImage(10, 10))

	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrUnsupportedInput)
}

func TestDetectFaces(t *testing.T) {
	dir := t.TempDir()
	p := processing.NewProcessor()
	in := filepath.Join(dir, "me.jpg")
	require.NoError(t, p.SaveImage(createTestImage(50, 40), in))

	loc := &fakeLocator{boxes: []types.BoundingBox{{X0: 1, Y0: 2, X1: 3, Y1: 4}}}
	boxes, err := New(loc, p, nil).DetectFaces(context.Background(), in)

	require.NoError(t, err)
	assert.Len(t, boxes, 1)
	assert.Equal(t, 1, loc.calls)
}

func BenchmarkSquareRegion(b *testing.B) {
	box := types.BoundingBox{X0: 480, Y0: 230, X1: 520, Y1: 270}
	for i := 0; i < b.N; i++ {
		_ = SquareRegion(1000, 500, box)
	}
}

func BenchmarkCropImage(b *testing.B) {
	c := New(&fakeLocator{boxes: []types.BoundingBox{{X0: 900, Y0: 400, X1: 1100, Y1: 650}}}, nil, nil)
	img := createTestImage(1920, 1080)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = c.CropImage(context.Background(), img)
	}
}
