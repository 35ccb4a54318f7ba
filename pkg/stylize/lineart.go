package stylize

import (
	"image"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/effect"
)

// LineArt approximates the lineart-anime annotator: white strokes on a
// black background, following the edges of img
func LineArt(img image.Image) *image.RGBA {
	gray := effect.Grayscale(img)
	smooth := blur.Gaussian(gray, 0.8)
	edges := effect.EdgeDetection(smooth, 1.0)
	return adjust.Contrast(edges, 0.4)
}
