package decoder

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// stage is one bounded preprocessing transform. apply may return more
// than one candidate frame (the rotation sweep does); carryForward
// marks transforms whose single output becomes the working frame for
// the stages after it.
type stage struct {
	name         string
	carryForward bool
	apply        func(image.Image) []image.Image
}

// defaultStages returns the fixed stage order. Cheap, broadly useful
// transforms run first; the expensive speculative ones run last.
func defaultStages() []stage {
	return []stage{
		{name: "grayscale", carryForward: true, apply: func(img image.Image) []image.Image {
			return []image.Image{imaging.Grayscale(img)}
		}},
		{name: "contrast", carryForward: true, apply: func(img image.Image) []image.Image {
			// Stretch washed-out frames; kiosks live under glare.
			return []image.Image{imaging.AdjustContrast(img, 40)}
		}},
		{name: "threshold", carryForward: true, apply: func(img image.Image) []image.Image {
			return []image.Image{adaptiveThreshold(img)}
		}},
		{name: "denoise", carryForward: true, apply: func(img image.Image) []image.Image {
			return []image.Image{morphOpen(img)}
		}},
		{name: "rotate", carryForward: false, apply: func(img image.Image) []image.Image {
			return []image.Image{
				imaging.Rotate90(img),
				imaging.Rotate180(img),
				imaging.Rotate270(img),
				imaging.Rotate(img, 7, color.White),
				imaging.Rotate(img, -7, color.White),
			}
		}},
		{name: "upscale", carryForward: true, apply: func(img image.Image) []image.Image {
			b := img.Bounds()
			return []image.Image{imaging.Resize(img, b.Dx()*2, 0, imaging.Lanczos)}
		}},
	}
}

// toGray converts any frame into an 8-bit grayscale plane.
func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	g := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g.Set(x, y, img.At(x, y))
		}
	}
	return g
}

// adaptiveThreshold binarizes a frame against the local mean intensity
// computed over a sliding window via an integral image. A pixel darker
// than 90% of its neighborhood mean becomes black, everything else
// white. Local comparison keeps bars readable under uneven lighting
// where a single global cutoff would wipe out half the code.
func adaptiveThreshold(img image.Image) image.Image {
	g := toGray(img)
	b := g.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return g
	}

	// Integral image; one extra row/column of zeros simplifies sums.
	integral := make([]uint64, (w+1)*(h+1))
	for y := 0; y < h; y++ {
		var rowSum uint64
		for x := 0; x < w; x++ {
			rowSum += uint64(g.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			integral[(y+1)*(w+1)+(x+1)] = integral[y*(w+1)+(x+1)] + rowSum
		}
	}

	win := min(w, h) / 8
	if win < 3 {
		win = 3
	}
	out := image.NewGray(b)
	for y := 0; y < h; y++ {
		y0, y1 := max(0, y-win), min(h-1, y+win)
		for x := 0; x < w; x++ {
			x0, x1 := max(0, x-win), min(w-1, x+win)
			area := uint64((y1 - y0 + 1) * (x1 - x0 + 1))
			sum := integral[(y1+1)*(w+1)+(x1+1)] -
				integral[y0*(w+1)+(x1+1)] -
				integral[(y1+1)*(w+1)+x0] +
				integral[y0*(w+1)+x0]
			px := uint64(g.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			// px*area*10 < sum*9  <=>  px < mean*0.9 without floats.
			if px*area*10 < sum*9 {
				out.SetGray(b.Min.X+x, b.Min.Y+y, color.Gray{Y: 0})
			} else {
				out.SetGray(b.Min.X+x, b.Min.Y+y, color.Gray{Y: 255})
			}
		}
	}
	return out
}

// morphOpen applies a 3x3 erosion followed by a 3x3 dilation. On a
// binarized frame this removes isolated speckle noise while keeping
// bar and module edges intact.
func morphOpen(img image.Image) image.Image {
	return dilate3(erode3(toGray(img)))
}

func erode3(g *image.Gray) *image.Gray {
	return minMax3(g, func(a, b uint8) bool { return a < b })
}

func dilate3(g *image.Gray) *image.Gray {
	return minMax3(g, func(a, b uint8) bool { return a > b })
}

// minMax3 runs a 3x3 rank filter choosing the extreme selected by pick.
func minMax3(g *image.Gray, pick func(a, b uint8) bool) *image.Gray {
	b := g.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			best := g.GrayAt(x, y).Y
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < b.Min.X || nx >= b.Max.X || ny < b.Min.Y || ny >= b.Max.Y {
						continue
					}
					if v := g.GrayAt(nx, ny).Y; pick(v, best) {
						best = v
					}
				}
			}
			out.SetGray(x, y, color.Gray{Y: best})
		}
	}
	return out
}
