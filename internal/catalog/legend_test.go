package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ausmap/geocat-cli/internal/table"
)

func TestNewLegend_SamplesEvenly(t *testing.T) {
	grad := table.DefaultGradient()
	legend := NewLegend("Rainfall", grad, 0, 100, 5)

	require.Len(t, legend.Ticks, 5)
	assert.Equal(t, "Rainfall", legend.Title)
	assert.Equal(t, "0", legend.Ticks[0].Label)
	assert.Equal(t, "50", legend.Ticks[2].Label)
	assert.Equal(t, "100", legend.Ticks[4].Label)
	assert.Equal(t, grad.At(0), legend.Ticks[0].Color)
	assert.Equal(t, grad.At(1), legend.Ticks[4].Color)
}

func TestNewLegend_FloorsTickCount(t *testing.T) {
	legend := NewLegend("x", table.DefaultGradient(), 0, 1, 0)
	require.Len(t, legend.Ticks, 2)
	assert.Equal(t, "0", legend.Ticks[0].Label)
	assert.Equal(t, "1", legend.Ticks[1].Label)
}

func TestNewLegend_NegativeRange(t *testing.T) {
	legend := NewLegend("anomaly", table.DefaultGradient(), -2.5, 2.5, 3)
	require.Len(t, legend.Ticks, 3)
	assert.Equal(t, "-2.5", legend.Ticks[0].Label)
	assert.Equal(t, "0", legend.Ticks[1].Label)
	assert.Equal(t, "2.5", legend.Ticks[2].Label)
}
