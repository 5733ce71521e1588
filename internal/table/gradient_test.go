package table

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGradientAt_Endpoints(t *testing.T) {
	g := NewGradient(
		ColorStop{Offset: 0, Color: color.RGBA{R: 0, G: 0, B: 255, A: 255}},
		ColorStop{Offset: 1, Color: color.RGBA{R: 255, G: 0, B: 0, A: 255}},
	)

	assert.Equal(t, color.RGBA{B: 255, A: 255}, g.At(0))
	assert.Equal(t, color.RGBA{R: 255, A: 255}, g.At(1))
	assert.Equal(t, color.RGBA{B: 255, A: 255}, g.At(-0.5), "clamps below range")
	assert.Equal(t, color.RGBA{R: 255, A: 255}, g.At(2), "clamps above range")
}

func TestGradientAt_Interpolates(t *testing.T) {
	g := NewGradient(
		ColorStop{Offset: 0, Color: color.RGBA{A: 255}},
		ColorStop{Offset: 1, Color: color.RGBA{R: 200, A: 255}},
	)
	mid := g.At(0.5)
	assert.Equal(t, uint8(100), mid.R)
	assert.Equal(t, uint8(255), mid.A)
}

func TestColorFor(t *testing.T) {
	g := DefaultGradient()

	assert.Equal(t, color.RGBA{}, g.ColorFor(NoDataSentinel, 0, 10), "missing value is transparent")
	assert.Equal(t, g.At(0), g.ColorFor(5, 5, 5), "degenerate range maps to the first stop")
	assert.Equal(t, g.At(0.5), g.ColorFor(5, 0, 10))
}

func TestWithOpacity(t *testing.T) {
	c := color.RGBA{R: 10, G: 20, B: 30, A: 200}
	assert.Equal(t, uint8(100), WithOpacity(c, 0.5).A)
	assert.Equal(t, uint8(0), WithOpacity(c, -1).A)
	assert.Equal(t, uint8(200), WithOpacity(c, 5).A)
}
