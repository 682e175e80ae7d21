package gradcam

import (
	"image"
	"math"

	"github.com/xaimorph/morphd/internal/imaging"
)

// Overlay renders a saliency grid as a heatmap and composites it over the
// frame at equal weight. An empty or malformed grid returns the frame
// unmodified, matching the degradation contract.
func Overlay(frame *image.RGBA, saliency [][]float64) *image.RGBA {
	rows := len(saliency)
	if rows == 0 || len(saliency[0]) == 0 {
		return imaging.Clone(frame)
	}
	cols := len(saliency[0])
	for _, row := range saliency {
		if len(row) != cols {
			return imaging.Clone(frame)
		}
	}

	heat := image.NewRGBA(image.Rect(0, 0, cols, rows))
	for y, row := range saliency {
		for x, v := range row {
			r, g, b := jet(v)
			off := heat.PixOffset(x, y)
			heat.Pix[off+0] = r
			heat.Pix[off+1] = g
			heat.Pix[off+2] = b
			heat.Pix[off+3] = 255
		}
	}

	bounds := frame.Bounds()
	scaled := imaging.Scale(heat, bounds.Dx(), bounds.Dy())

	out := image.NewRGBA(bounds)
	for i := range out.Pix {
		if i%4 == 3 {
			out.Pix[i] = 255
			continue
		}
		out.Pix[i] = uint8((uint16(frame.Pix[i]) + uint16(scaled.Pix[i])) / 2)
	}
	return out
}

// jet maps a value in [0,1] onto the blue-to-red jet colormap.
func jet(v float64) (r, g, b uint8) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return channel(1.5 - math.Abs(4*v-3)),
		channel(1.5 - math.Abs(4*v-2)),
		channel(1.5 - math.Abs(4*v-1))
}

func channel(f float64) uint8 {
	if f < 0 {
		f = 0
	}
	if f > 1 {
		f = 1
	}
	return uint8(f*255 + 0.5)
}
