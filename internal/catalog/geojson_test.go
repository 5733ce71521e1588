package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ausmap/geocat-cli/internal/table"
)

const cityCollection = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "geometry": {"type": "Point", "coordinates": [151.21, -33.87]},
      "properties": {"name": "Sydney", "population": 5312000}
    },
    {
      "type": "Feature",
      "geometry": {"type": "Point", "coordinates": [144.96, -37.81]},
      "properties": {"name": "Melbourne", "population": 5078000}
    },
    {
      "type": "Feature",
      "geometry": {
        "type": "Polygon",
        "coordinates": [[[140, -39], [150, -39], [150, -30], [140, -39]]]
      },
      "properties": {"name": "boundary"}
    }
  ]
}`

func TestGeoJSONItem_PointFeaturesBecomePoints(t *testing.T) {
	vector := &RecordingLayer{}
	item := NewGeoJSONItem("cities",
		WithGeoJSONData([]byte(cityCollection)),
		WithGeoJSONVectorLayer(vector),
		WithGeoJSONProperty("population"),
	)
	require.NoError(t, item.Load(context.Background()))

	require.Len(t, vector.Points, 2, "polygon features are not plotted")
	assert.Equal(t, 151.21, vector.Points[0].Lon)
	assert.Equal(t, -33.87, vector.Points[0].Lat)

	grad := table.DefaultGradient()
	assert.Equal(t, grad.At(1), vector.Points[0].Color, "largest population gets the last stop")
	assert.Equal(t, grad.At(0), vector.Points[1].Color)

	rec, ok := vector.Pick(0)
	require.True(t, ok)
	assert.Equal(t, "Sydney", rec["name"])

	legend := item.Legend()
	require.NotNil(t, legend)
	assert.Equal(t, "population", legend.Title)
}

func TestGeoJSONItem_ExtentCoversAllGeometries(t *testing.T) {
	item := NewGeoJSONItem("cities", WithGeoJSONData([]byte(cityCollection)))
	require.NoError(t, item.Load(context.Background()))

	b := item.Extent()
	require.NotNil(t, b)
	assert.Equal(t, 140.0, b.Min(0), "polygon extends the west edge")
	assert.Equal(t, 151.21, b.Max(0))
	assert.Equal(t, -39.0, b.Min(1))
	assert.Equal(t, -30.0, b.Max(1))
}

func TestGeoJSONItem_RemoteSource(t *testing.T) {
	fetch := &fakeFetcher{files: map[string][]byte{
		"https://data.gov.au/cities.geojson": []byte(cityCollection),
	}}
	item := NewGeoJSONItem("cities",
		WithGeoJSONSourceURL("https://data.gov.au/cities.geojson"),
		WithGeoJSONFetcher(fetch),
	)
	require.NoError(t, item.Load(context.Background()))
	assert.Len(t, item.Features(), 3)
	assert.Equal(t, 1, fetch.downloads)
}

func TestGeoJSONItem_InvalidDocument(t *testing.T) {
	item := NewGeoJSONItem("broken", WithGeoJSONData([]byte("not geojson")))
	assert.Error(t, item.Load(context.Background()))
}

func TestGeoJSONItem_DescribeRow(t *testing.T) {
	item := NewGeoJSONItem("cities", WithGeoJSONData([]byte(cityCollection)))
	require.NoError(t, item.Load(context.Background()))

	rec, ok := item.DescribeRow(1)
	require.True(t, ok)
	assert.Equal(t, "Melbourne", rec["name"])

	_, ok = item.DescribeRow(3)
	assert.False(t, ok)
}

func TestGeoJSONItem_NoPropertyMeansNoLegend(t *testing.T) {
	item := NewGeoJSONItem("cities", WithGeoJSONData([]byte(cityCollection)))
	require.NoError(t, item.Load(context.Background()))
	assert.Nil(t, item.Legend())
}

func TestGeoJSONItem_State(t *testing.T) {
	item := NewGeoJSONItem("cities",
		WithGeoJSONData([]byte(cityCollection)),
		WithGeoJSONProperty("population"),
	)
	require.NoError(t, item.Load(context.Background()))

	state := item.State()
	assert.Equal(t, KindGeoJSON, state.Kind)
	assert.Equal(t, "population", state.ActiveVariable)
	assert.Equal(t, cityCollection, state.Data)
}
