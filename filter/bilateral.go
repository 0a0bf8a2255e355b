// Package filter implements the edge-preserving bilateral filter over RGBA
// pixel buffers.
//
// Apply is a pure function of its inputs. It reads only src and writes only
// the requested rows of dst, so disjoint row ranges may be filtered
// concurrently into one destination buffer.
package filter

import (
	"errors"
	"fmt"
	"math"

	"github.com/pithecene-io/bilat/types"
)

// ErrInvalidParams is wrapped by every argument validation failure.
var ErrInvalidParams = errors.New("invalid filter parameters")

// Params holds the filter parameters.
type Params struct {
	Diameter   int
	SigmaColor float64
	SigmaSpace float64
}

// Validate checks that the window is odd and positive and both sigmas are
// positive and finite.
func (p Params) Validate() error {
	if p.Diameter <= 0 || p.Diameter%2 == 0 {
		return fmt.Errorf("%w: diameter %d must be odd and positive", ErrInvalidParams, p.Diameter)
	}
	if !(p.SigmaColor > 0) || math.IsInf(p.SigmaColor, 0) {
		return fmt.Errorf("%w: sigma color %v must be positive", ErrInvalidParams, p.SigmaColor)
	}
	if !(p.SigmaSpace > 0) || math.IsInf(p.SigmaSpace, 0) {
		return fmt.Errorf("%w: sigma space %v must be positive", ErrInvalidParams, p.SigmaSpace)
	}
	return nil
}

// gaussian returns exp(-dist2/denom). A zero distance always weighs 1 and a
// zero denominator (an underflowed sigma) weighs every other distance 0.
func gaussian(dist2, denom float64) float64 {
	if dist2 == 0 {
		return 1
	}
	if denom == 0 {
		return 0
	}
	return math.Exp(-dist2 / denom)
}

// spatialKernel returns the diameter×diameter spatial weights in row-major
// order, indexed by (dy+radius)*diameter + (dx+radius).
func spatialKernel(diameter int, sigmaSpace float64) []float64 {
	radius := diameter / 2
	denom := 2 * sigmaSpace * sigmaSpace
	k := make([]float64, diameter*diameter)
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			k[(dy+radius)*diameter+(dx+radius)] = gaussian(float64(dx*dx+dy*dy), denom)
		}
	}
	return k
}

// Apply filters rows [rowStart, rowEnd) of src into the same rows of dst.
//
// Each output pixel is the weighted average of its in-bounds neighbors in a
// diameter×diameter window. The weight of a neighbor is the product of a
// spatial Gaussian on its offset and a range Gaussian on its squared RGB
// distance from the center pixel. Channels are rounded to the nearest
// integer and alpha is set to 255.
func Apply(src, dst *types.PixelBuffer, rowStart, rowEnd, diameter int, sigmaColor, sigmaSpace float64) error {
	return ApplyParams(src, dst, rowStart, rowEnd, Params{
		Diameter:   diameter,
		SigmaColor: sigmaColor,
		SigmaSpace: sigmaSpace,
	})
}

// ApplyParams is Apply with the parameters grouped.
func ApplyParams(src, dst *types.PixelBuffer, rowStart, rowEnd int, p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := src.Validate(); err != nil {
		return fmt.Errorf("source: %w", err)
	}
	if err := dst.Validate(); err != nil {
		return fmt.Errorf("destination: %w", err)
	}
	if !src.SameShape(dst) {
		return fmt.Errorf("%w: source %dx%d/%d and destination %dx%d/%d differ",
			ErrInvalidParams, src.Width, src.Height, src.Stride, dst.Width, dst.Height, dst.Stride)
	}
	if rowStart < 0 || rowEnd > src.Height || rowStart > rowEnd {
		return fmt.Errorf("%w: row range [%d,%d) outside [0,%d)", ErrInvalidParams, rowStart, rowEnd, src.Height)
	}

	radius := p.Diameter / 2
	spatial := spatialKernel(p.Diameter, p.SigmaSpace)
	colorDenom := 2 * p.SigmaColor * p.SigmaColor
	width, height := src.Width, src.Height
	in, out := src.Data, dst.Data

	for y := rowStart; y < rowEnd; y++ {
		for x := range width {
			c := src.Offset(x, y)
			cr, cg, cb := float64(in[c]), float64(in[c+1]), float64(in[c+2])

			var sumR, sumG, sumB, norm float64
			for dy := -radius; dy <= radius; dy++ {
				ny := y + dy
				if ny < 0 || ny >= height {
					continue
				}
				krow := (dy + radius) * p.Diameter
				for dx := -radius; dx <= radius; dx++ {
					nx := x + dx
					if nx < 0 || nx >= width {
						continue
					}
					n := src.Offset(nx, ny)
					nr, ng, nb := float64(in[n]), float64(in[n+1]), float64(in[n+2])
					dr, dg, db := nr-cr, ng-cg, nb-cb
					w := spatial[krow+dx+radius] * gaussian(dr*dr+dg*dg+db*db, colorDenom)
					sumR += nr * w
					sumG += ng * w
					sumB += nb * w
					norm += w
				}
			}

			// The center pixel always contributes weight 1, so norm > 0.
			o := dst.Offset(x, y)
			out[o] = clamp(sumR / norm)
			out[o+1] = clamp(sumG / norm)
			out[o+2] = clamp(sumB / norm)
			out[o+3] = 255
		}
	}
	return nil
}

func clamp(v float64) byte {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}
