package processing

import (
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/uwuifier/pkg/types"
)

// createTestImage creates a gradient test image
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 255 / width), uint8(y * 255 / height), 128, 255})
		}
	}
	return img
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	p := NewProcessor()
	dir := t.TempDir()

	for _, ext := range []string{"png", "jpg", "webp"} {
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(dir, "out."+ext)
			require.NoError(t, p.SaveImage(createTestImage(64, 48), path))

			img, err := p.LoadImage(path)
			require.NoError(t, err)
			assert.Equal(t, 64, img.Bounds().Dx())
			assert.Equal(t, 48, img.Bounds().Dy())
		})
	}
}

func TestSaveImageUnsupportedFormat(t *testing.T) {
	p := NewProcessor()

	err := p.SaveImage(createTestImage(8, 8), filepath.Join(t.TempDir(), "out.xyz"))
	assert.Error(t, err)
}

func TestLoadImageMissingFile(t *testing.T) {
	p := NewProcessor()

	_, err := p.LoadImage(filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)
}

func TestDecodeImageGarbage(t *testing.T) {
	p := NewProcessor()

	_, err := p.DecodeImage([]byte("definitely not an image"))
	assert.Error(t, err)
}

func TestEncodeImage(t *testing.T) {
	p := NewProcessor()
	img := createTestImage(16, 16)

	for _, format := range []string{"png", "jpg", "webp"} {
		data, err := p.EncodeImage(img, format)
		require.NoError(t, err, format)

		decoded, err := p.DecodeImage(data)
		require.NoError(t, err, format)
		assert.Equal(t, image.Rect(0, 0, 16, 16), decoded.Bounds(), format)
	}

	_, err := p.EncodeImage(img, "tga")
	assert.Error(t, err)
}

func TestPrepareImageForModel(t *testing.T) {
	p := NewProcessor()

	b64, err := p.PrepareImageForModel(createTestImage(400, 200), "jpg", 100, 80)
	require.NoError(t, err)

	data, err := base64.StdEncoding.DecodeString(b64)
	require.NoError(t, err)
	img, err := p.DecodeImage(data)
	require.NoError(t, err)
	assert.Equal(t, 100, img.Bounds().Dx())
	assert.Equal(t, 50, img.Bounds().Dy())
}

func TestFitWithin(t *testing.T) {
	img := createTestImage(300, 600)

	assert.Same(t, img, FitWithin(img, 0))
	assert.Same(t, img, FitWithin(img, 600))

	resized := FitWithin(img, 200)
	assert.Equal(t, 100, resized.Bounds().Dx())
	assert.Equal(t, 200, resized.Bounds().Dy())
}

func TestLoadImageFromURL(t *testing.T) {
	p := NewProcessor()
	png, err := p.EncodeImage(createTestImage(20, 10), "png")
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/face.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(png)
		case "/page":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html></html>"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	img, err := p.LoadImageSmart(context.Background(), srv.URL+"/face.png")
	require.NoError(t, err)
	assert.Equal(t, 20, img.Bounds().Dx())

	_, err = p.LoadImageFromURL(context.Background(), srv.URL+"/page")
	assert.ErrorContains(t, err, "does not point to an image")

	_, err = p.LoadImageFromURL(context.Background(), srv.URL+"/missing")
	assert.ErrorContains(t, err, "404")

	_, err = p.LoadImageFromURL(context.Background(), "ftp://example.com/face.png")
	assert.ErrorContains(t, err, "unsupported URL scheme")
}

func TestGetImageInfo(t *testing.T) {
	info := GetImageInfo(createTestImage(400, 300))

	assert.Equal(t, 400, info.Width)
	assert.Equal(t, 300, info.Height)
	assert.InDelta(t, 4.0/3.0, info.AspectRatio, 1e-9)
}

func TestCreateDebugOverlay(t *testing.T) {
	p := NewProcessor()
	img := createTestImage(200, 100)
	face := types.BoundingBox{X0: 90, Y0: 40, X1: 110, Y1: 60}
	crop := types.CropRegion{Left: 50, Top: 0, Right: 150, Bottom: 100}

	overlay := p.CreateDebugOverlay(img, face, crop)

	assert.Equal(t, img.Bounds(), overlay.Bounds())
	assert.Equal(t, color.NRGBAModel.Convert(color.NRGBA{0, 255, 0, 255}), overlay.At(90, 50))
	assert.Equal(t, color.NRGBAModel.Convert(color.NRGBA{255, 204, 0, 255}), overlay.At(50, 20))
	// The source must not be modified
	assert.Equal(t, color.RGBA{114, 127, 128, 255}, img.At(90, 50))
}

func BenchmarkPrepareImageForModel(b *testing.B) {
	p := NewProcessor()
	img := createTestImage(1920, 1080)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = p.PrepareImageForModel(img, "jpg", 1024, 85)
	}
}
