// Package tensor converts between images and the planar float tensors that
// ONNX vision models consume and produce.
package tensor

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/x448/float16"
)

// FromImage returns img as a CHW float32 slice of RGB values in [0,1]
func FromImage(img image.Image) []float32 {
	src := imaging.Clone(img)
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	plane := w * h
	out := make([]float32, 3*plane)

	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+w*4]
		for x := 0; x < w; x++ {
			i := y*w + x
			p := row[x*4 : x*4+4]
			out[i] = float32(p[0]) / 255
			out[plane+i] = float32(p[1]) / 255
			out[2*plane+i] = float32(p[2]) / 255
		}
	}
	return out
}

// ToImage builds an opaque image from a CHW float32 slice with values in
// [0,1]; values outside the range are clipped
func ToImage(data []float32, width, height int) (*image.NRGBA, error) {
	plane := width * height
	if width <= 0 || height <= 0 || len(data) < 3*plane {
		return nil, fmt.Errorf("tensor: %d values cannot hold a 3x%dx%d image", len(data), height, width)
	}

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := y*width + x
			img.SetNRGBA(x, y, color.NRGBA{
				R: toByte(data[i]),
				G: toByte(data[plane+i]),
				B: toByte(data[2*plane+i]),
				A: 255,
			})
		}
	}
	return img, nil
}

func toByte(v float32) uint8 {
	f := math.Round(float64(v) * 255)
	if f < 0 || math.IsNaN(f) {
		return 0
	}
	if f > 255 {
		return 255
	}
	return uint8(f)
}

// Float16Bytes encodes float32 values as little-endian IEEE half floats
func Float16Bytes(data []float32) []byte {
	out := make([]byte, 2*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint16(out[2*i:], float16.Fromfloat32(v).Bits())
	}
	return out
}

// FromFloat16Bytes decodes little-endian IEEE half floats
func FromFloat16Bytes(b []byte) []float32 {
	out := make([]float32, len(b)/2)
	for i := range out {
		out[i] = float16.Frombits(binary.LittleEndian.Uint16(b[2*i:])).Float32()
	}
	return out
}
