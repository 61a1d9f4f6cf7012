package display

import (
	"image"
	"image/color"
	"math"

	"github.com/btasdelen/arrview/pkg/colormap"
)

// ToImage rasterises a prepared image. Scalar pixels are mapped through cmap
// with low and high at the ends of the colour scale; when high <= low the
// mapping becomes a threshold at high. RGB images are written directly and
// ignore low, high and cmap. A nil cmap means gray.
func ToImage(img *Image, low, high float64, cmap colormap.Colormap) *image.RGBA {
	if cmap == nil {
		cmap = colormap.Gray
	}
	rows, cols := img.Dims()
	out := image.NewRGBA(image.Rect(0, 0, cols, rows))

	if img.IsRGB() {
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				out.SetRGBA(j, i, color.RGBA{
					R: unit8(img.RGB[0].At(i, j)),
					G: unit8(img.RGB[1].At(i, j)),
					B: unit8(img.RGB[2].At(i, j)),
					A: 255,
				})
			}
		}
		return out
	}

	span := high - low
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := img.Scalar.At(i, j)
			var t float64
			switch {
			case math.IsNaN(v):
				t = 0
			case span <= 0:
				if v >= high {
					t = 1
				}
			default:
				t = (v - low) / span
			}
			out.Set(j, i, cmap.At(t))
		}
	}
	return out
}

func unit8(v float64) uint8 {
	if !(v > 0) {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(math.Round(v * 255))
}
