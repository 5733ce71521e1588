package table

import (
	"image/color"
	"math"
	"sort"
)

// ColorStop is one control point of a gradient, at an offset in [0,1].
type ColorStop struct {
	Offset float64    `json:"offset" yaml:"offset"`
	Color  color.RGBA `json:"color" yaml:"color"`
}

// Gradient maps a normalized value in [0,1] to an RGBA color by linear
// interpolation between ordered stops.
type Gradient struct {
	stops []ColorStop
}

// NewGradient builds a gradient from stops, sorting them by offset.
func NewGradient(stops ...ColorStop) Gradient {
	sorted := make([]ColorStop, len(stops))
	copy(sorted, stops)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Offset < sorted[j].Offset })
	return Gradient{stops: sorted}
}

// DefaultGradient is the blue-to-red ramp applied to items with no declared
// gradient.
func DefaultGradient() Gradient {
	return NewGradient(
		ColorStop{Offset: 0.0, Color: color.RGBA{R: 0, G: 0, B: 200, A: 255}},
		ColorStop{Offset: 0.25, Color: color.RGBA{R: 0, G: 200, B: 200, A: 255}},
		ColorStop{Offset: 0.5, Color: color.RGBA{R: 0, G: 200, B: 0, A: 255}},
		ColorStop{Offset: 0.75, Color: color.RGBA{R: 200, G: 200, B: 0, A: 255}},
		ColorStop{Offset: 1.0, Color: color.RGBA{R: 200, G: 0, B: 0, A: 255}},
	)
}

// Stops returns the ordered control points.
func (g Gradient) Stops() []ColorStop { return g.stops }

// At returns the interpolated color at t, clamped to [0,1].
func (g Gradient) At(t float64) color.RGBA {
	if len(g.stops) == 0 {
		return color.RGBA{}
	}
	if math.IsNaN(t) || t <= g.stops[0].Offset {
		return g.stops[0].Color
	}
	last := g.stops[len(g.stops)-1]
	if t >= last.Offset {
		return last.Color
	}
	for i := 1; i < len(g.stops); i++ {
		if t > g.stops[i].Offset {
			continue
		}
		lo, hi := g.stops[i-1], g.stops[i]
		span := hi.Offset - lo.Offset
		if span <= 0 {
			return hi.Color
		}
		f := (t - lo.Offset) / span
		return color.RGBA{
			R: lerp(lo.Color.R, hi.Color.R, f),
			G: lerp(lo.Color.G, hi.Color.G, f),
			B: lerp(lo.Color.B, hi.Color.B, f),
			A: lerp(lo.Color.A, hi.Color.A, f),
		}
	}
	return last.Color
}

// ColorFor normalizes value through (min,max) and returns the gradient color.
// Missing values and empty ranges map to the transparent zero color.
func (g Gradient) ColorFor(value, min, max float64) color.RGBA {
	if value == NoDataSentinel {
		return color.RGBA{}
	}
	if max <= min {
		return g.At(0)
	}
	return g.At((value - min) / (max - min))
}

func lerp(a, b uint8, f float64) uint8 {
	return uint8(math.Round(float64(a) + (float64(b)-float64(a))*f))
}

// WithOpacity scales the alpha channel of a color by opacity in [0,1].
func WithOpacity(c color.RGBA, opacity float64) color.RGBA {
	if opacity < 0 {
		opacity = 0
	}
	if opacity > 1 {
		opacity = 1
	}
	c.A = uint8(math.Round(float64(c.A) * opacity))
	return c
}
