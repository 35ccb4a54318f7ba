// Package stylize turns the square face crop into anime-style art through
// an external image-generation backend.
package stylize

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/png"

	"github.com/disintegration/imaging"
)

const (
	// DefaultSize is the square edge the crop is resized to before generation
	DefaultSize = 512
	// DefaultSteps is the number of diffusion steps
	DefaultSteps = 30
)

// Request carries the generation parameters of one stylization
type Request struct {
	Prompt         string
	NegativePrompt string
	Seed           int64
	Steps          int
	Size           int
	// Control is a precomputed control image; nil lets the backend derive it
	Control image.Image
}

func (r Request) size() int {
	if r.Size <= 0 {
		return DefaultSize
	}
	return r.Size
}

func (r Request) steps() int {
	if r.Steps <= 0 {
		return DefaultSteps
	}
	return r.Steps
}

// Stylizer renders img in the style described by the request
type Stylizer interface {
	Name() string
	Stylize(ctx context.Context, img image.Image, req Request) (image.Image, error)
}

// ControlProducer is implemented by stylizers that build their control image
// locally. ControlImage returns nil when the backend derives it remotely.
type ControlProducer interface {
	ControlImage(img image.Image, size int) image.Image
}

// Prepare resizes img to the size×size input the models expect
func Prepare(img image.Image, size int) *image.NRGBA {
	if size <= 0 {
		size = DefaultSize
	}
	return imaging.Resize(img, size, size, imaging.Lanczos)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodePNGBase64(img image.Image) (string, error) {
	data, err := encodePNG(img)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
