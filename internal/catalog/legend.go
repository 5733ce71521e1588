package catalog

import (
	"image/color"
	"strconv"

	"github.com/ausmap/geocat-cli/internal/table"
)

// LegendTick is one labeled color sample on a legend ramp.
type LegendTick struct {
	Label string     `json:"label"`
	Color color.RGBA `json:"color"`
}

// Legend describes the active variable's color ramp for display next to the
// map. Ticks run from the variable's minimum to its maximum.
type Legend struct {
	Title string       `json:"title"`
	Ticks []LegendTick `json:"ticks"`
}

// NewLegend samples the gradient at evenly spaced values between min and max.
// Fewer than two ticks is never useful, so the count is floored at two.
func NewLegend(title string, g table.Gradient, min, max float64, ticks int) *Legend {
	if ticks < 2 {
		ticks = 2
	}

	legend := &Legend{Title: title, Ticks: make([]LegendTick, 0, ticks)}
	for i := 0; i < ticks; i++ {
		f := float64(i) / float64(ticks-1)
		value := min + f*(max-min)
		legend.Ticks = append(legend.Ticks, LegendTick{
			Label: strconv.FormatFloat(value, 'g', 6, 64),
			Color: g.At(f),
		})
	}
	return legend
}
