package catalog

import (
	"context"
	"math"

	geojson "github.com/paulmach/go.geojson"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/ausmap/geocat-cli/internal/fetcher"
	"github.com/ausmap/geocat-cli/internal/table"

	"github.com/google/uuid"
)

// GeoJSONItem is a vector catalog entry backed by a GeoJSON feature
// collection. Point features are plotted on the vector layer, colored by a
// numeric property when one is selected; picks return feature properties.
type GeoJSONItem struct {
	id   string
	name string

	sourceURL string
	rawData   []byte

	activeProperty string
	gradient       table.Gradient
	opacity        float64

	fetch  fetcher.Fetcher
	vector VectorLayer

	fc     *geojson.FeatureCollection
	bounds *geom.Bounds
	loaded bool
}

// GeoJSONOption configures a GeoJSONItem.
type GeoJSONOption func(*GeoJSONItem)

// WithGeoJSONSourceURL sets the remote source.
func WithGeoJSONSourceURL(u string) GeoJSONOption {
	return func(it *GeoJSONItem) { it.sourceURL = u }
}

// WithGeoJSONData embeds the document directly.
func WithGeoJSONData(data []byte) GeoJSONOption {
	return func(it *GeoJSONItem) { it.rawData = data }
}

// WithGeoJSONFetcher sets the HTTP fetcher.
func WithGeoJSONFetcher(f fetcher.Fetcher) GeoJSONOption {
	return func(it *GeoJSONItem) { it.fetch = f }
}

// WithGeoJSONVectorLayer sets the rendering surface.
func WithGeoJSONVectorLayer(l VectorLayer) GeoJSONOption {
	return func(it *GeoJSONItem) { it.vector = l }
}

// WithGeoJSONProperty selects the numeric property driving point colors.
func WithGeoJSONProperty(name string) GeoJSONOption {
	return func(it *GeoJSONItem) { it.activeProperty = name }
}

// NewGeoJSONItem creates a GeoJSON vector catalog item.
func NewGeoJSONItem(name string, opts ...GeoJSONOption) *GeoJSONItem {
	it := &GeoJSONItem{
		id:       uuid.New().String(),
		name:     name,
		gradient: table.DefaultGradient(),
		opacity:  1.0,
	}
	for _, opt := range opts {
		opt(it)
	}
	return it
}

func (it *GeoJSONItem) ID() string   { return it.id }
func (it *GeoJSONItem) Name() string { return it.name }
func (it *GeoJSONItem) Kind() Kind   { return KindGeoJSON }

// Features returns the loaded features.
func (it *GeoJSONItem) Features() []*geojson.Feature {
	if it.fc == nil {
		return nil
	}
	return it.fc.Features
}

// Extent returns the bounding box over every feature geometry, or nil before
// loading.
func (it *GeoJSONItem) Extent() *geom.Bounds { return it.bounds }

// Load fetches and parses the feature collection and pushes the first build.
func (it *GeoJSONItem) Load(ctx context.Context) error {
	data := it.rawData
	if data == nil {
		if it.sourceURL == "" || it.fetch == nil {
			return eris.New("catalog: geojson item has no source")
		}
		rc, err := it.fetch.Download(ctx, it.sourceURL)
		if err != nil {
			return err
		}
		text, err := readAllText(rc)
		if err != nil {
			return err
		}
		data = []byte(text)
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return eris.Wrapf(err, "catalog: parse geojson %s", it.name)
	}
	it.fc = fc
	it.bounds = featureBounds(fc.Features)
	it.loaded = true
	it.present()
	return nil
}

func (it *GeoJSONItem) present() {
	if it.vector == nil {
		return
	}

	min, max := it.propertyRange()
	points := make([]Point, 0, len(it.fc.Features))
	for _, f := range it.fc.Features {
		if f.Geometry == nil || !f.Geometry.IsPoint() || len(f.Geometry.Point) < 2 {
			continue
		}
		c := it.gradient.At(0)
		if v, ok := it.propertyValue(f); ok {
			c = it.gradient.ColorFor(v, min, max)
		}
		points = append(points, Point{
			Lon:   f.Geometry.Point[0],
			Lat:   f.Geometry.Point[1],
			Color: table.WithOpacity(c, it.opacity),
		})
	}

	it.vector.SetPoints(points)
	it.vector.SetFeaturePick(func(index int) (map[string]any, bool) {
		if index < 0 || index >= len(it.fc.Features) {
			return nil, false
		}
		return it.fc.Features[index].Properties, true
	})
	it.vector.SetOpacity(it.opacity)
	it.vector.Refresh()
}

func (it *GeoJSONItem) propertyValue(f *geojson.Feature) (float64, bool) {
	if it.activeProperty == "" {
		return 0, false
	}
	switch v := f.Properties[it.activeProperty].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

func (it *GeoJSONItem) propertyRange() (float64, float64) {
	min, max := math.Inf(1), math.Inf(-1)
	for _, f := range it.fc.Features {
		if v, ok := it.propertyValue(f); ok {
			min = math.Min(min, v)
			max = math.Max(max, v)
		}
	}
	if min > max {
		return 0, 0
	}
	return min, max
}

// SetActiveVariable selects the property driving point colors.
func (it *GeoJSONItem) SetActiveVariable(name string) error {
	if !it.loaded {
		return eris.New("catalog: item not loaded")
	}
	it.activeProperty = name
	it.present()
	return nil
}

// SetColorGradient replaces the gradient and rebuilds.
func (it *GeoJSONItem) SetColorGradient(stops []table.ColorStop) error {
	if !it.loaded {
		return eris.New("catalog: item not loaded")
	}
	it.gradient = table.NewGradient(stops...)
	it.present()
	return nil
}

// SetOpacity changes display opacity and rebuilds.
func (it *GeoJSONItem) SetOpacity(opacity float64) error {
	if !it.loaded {
		return eris.New("catalog: item not loaded")
	}
	it.opacity = opacity
	it.present()
	return nil
}

// DescribeRow returns the properties of the feature at the given index.
func (it *GeoJSONItem) DescribeRow(index int) (map[string]any, bool) {
	if it.fc == nil || index < 0 || index >= len(it.fc.Features) {
		return nil, false
	}
	return it.fc.Features[index].Properties, true
}

// Legend describes the active property's color ramp, or nil when no numeric
// property is selected.
func (it *GeoJSONItem) Legend() *Legend {
	if it.activeProperty == "" || it.fc == nil {
		return nil
	}
	min, max := it.propertyRange()
	if min == 0 && max == 0 {
		return nil
	}
	return NewLegend(it.activeProperty, it.gradient, min, max, 5)
}

// State captures the item for a share document.
func (it *GeoJSONItem) State() ItemState {
	state := ItemState{
		ID:             it.id,
		Kind:           it.Kind(),
		Name:           it.name,
		SourceURL:      it.sourceURL,
		ActiveVariable: it.activeProperty,
		Opacity:        it.opacity,
		GradientStops:  it.gradient.Stops(),
	}
	if it.sourceURL == "" {
		state.Data = string(it.rawData)
	}
	return state
}

// featureBounds extends a bounding box over every coordinate of every
// feature geometry.
func featureBounds(features []*geojson.Feature) *geom.Bounds {
	b := geom.NewBounds(geom.XY)
	found := false
	extend := func(coord []float64) {
		if len(coord) < 2 {
			return
		}
		b.Extend(geom.NewPointFlat(geom.XY, coord[:2]))
		found = true
	}

	for _, f := range features {
		g := f.Geometry
		if g == nil {
			continue
		}
		switch {
		case g.IsPoint():
			extend(g.Point)
		case g.IsMultiPoint():
			for _, c := range g.MultiPoint {
				extend(c)
			}
		case g.IsLineString():
			for _, c := range g.LineString {
				extend(c)
			}
		case g.IsMultiLineString():
			for _, line := range g.MultiLineString {
				for _, c := range line {
					extend(c)
				}
			}
		case g.IsPolygon():
			for _, ring := range g.Polygon {
				for _, c := range ring {
					extend(c)
				}
			}
		case g.IsMultiPolygon():
			for _, poly := range g.MultiPolygon {
				for _, ring := range poly {
					for _, c := range ring {
						extend(c)
					}
				}
			}
		}
	}

	if !found {
		return nil
	}
	return b
}
