// Package catalog holds the viewable item variants of the data catalog: plain
// tabular sources, statistical aggregations, vector features, and tiled
// imagery, plus the share-state document that reproduces a session.
package catalog

import "image/color"

// Point is one plotted coordinate with its display color.
type Point struct {
	Lon   float64
	Lat   float64
	Color color.RGBA
}

// ImageryLayer is the narrow rendering surface for region-mapped tiles. The
// renderer rasterizes region polygons with slot indexes encoded in pixel
// channels; the core only supplies the slot-to-color lookup.
type ImageryLayer interface {
	SetColorLookup(lookup func(slot int) (color.RGBA, bool))
	SetOpacity(opacity float64)
	Refresh()
}

// VectorLayer is the narrow rendering surface for point and feature data.
type VectorLayer interface {
	SetPoints(points []Point)
	SetFeaturePick(pick func(index int) (map[string]any, bool))
	SetOpacity(opacity float64)
	Refresh()
}

// RecordingLayer implements both layer interfaces by recording what it was
// handed. It backs the CLI output paths and the package tests; a real
// renderer lives outside this module.
type RecordingLayer struct {
	Lookup    func(slot int) (color.RGBA, bool)
	Points    []Point
	Pick      func(index int) (map[string]any, bool)
	Opacity   float64
	Refreshes int
}

func (l *RecordingLayer) SetColorLookup(lookup func(slot int) (color.RGBA, bool)) {
	l.Lookup = lookup
}

func (l *RecordingLayer) SetPoints(points []Point) {
	l.Points = points
}

func (l *RecordingLayer) SetFeaturePick(pick func(index int) (map[string]any, bool)) {
	l.Pick = pick
}

func (l *RecordingLayer) SetOpacity(opacity float64) {
	l.Opacity = opacity
}

func (l *RecordingLayer) Refresh() {
	l.Refreshes++
}
