package catalog

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildZippedShapefile writes a two-point shapefile with NAME and POP
// attributes and returns it zipped with its sidecars.
func buildZippedShapefile(t *testing.T) []byte {
	t.Helper()
	dir := t.TempDir()
	shpPath := filepath.Join(dir, "cities.shp")

	w, err := shp.Create(shpPath, shp.POINT)
	require.NoError(t, err)

	fields := []shp.Field{
		shp.StringField("NAME", 25),
		shp.FloatField("POP", 12, 0),
	}
	w.SetFields(fields)

	points := []shp.Point{
		{X: 151.21, Y: -33.87},
		{X: 144.96, Y: -37.81},
	}
	names := []string{"Sydney", "Melbourne"}
	pops := []float64{5312000, 5078000}
	for n := range points {
		w.Write(&points[n])
		require.NoError(t, w.WriteAttribute(n, 0, names[n]))
		require.NoError(t, w.WriteAttribute(n, 1, pops[n]))
	}
	w.Close()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, ext := range []string{".shp", ".shx", ".dbf"} {
		data, err := os.ReadFile(filepath.Join(dir, "cities"+ext))
		require.NoError(t, err)
		entry, err := zw.Create("cities" + ext)
		require.NoError(t, err)
		_, err = entry.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestShapefileItem_Load(t *testing.T) {
	fetch := &fakeFetcher{files: map[string][]byte{
		"https://data.gov.au/cities.zip": buildZippedShapefile(t),
	}}
	vector := &RecordingLayer{}
	item := NewShapefileItem("cities",
		WithSourceURL("https://data.gov.au/cities.zip"),
		WithFetcher(fetch),
		WithVectorLayer(vector),
	)
	require.NoError(t, item.Load(context.Background()))

	assert.Equal(t, KindShapefile, item.Kind())
	require.Len(t, vector.Points, 2)
	assert.InDelta(t, 151.21, vector.Points[0].Lon, 1e-9)
	assert.InDelta(t, -33.87, vector.Points[0].Lat, 1e-9)

	rec, ok := vector.Pick(0)
	require.True(t, ok)
	assert.Equal(t, "Sydney", rec["NAME"])

	legend := item.Legend()
	require.NotNil(t, legend)
	assert.Equal(t, "POP", legend.Title)
}

func TestShapefileItem_MissingSource(t *testing.T) {
	item := NewShapefileItem("empty")
	assert.Error(t, item.Load(context.Background()))
}

func TestShapefileItem_StateNeverEmbedsData(t *testing.T) {
	fetch := &fakeFetcher{files: map[string][]byte{
		"https://data.gov.au/cities.zip": buildZippedShapefile(t),
	}}
	item := NewShapefileItem("cities",
		WithSourceURL("https://data.gov.au/cities.zip"),
		WithFetcher(fetch),
	)
	require.NoError(t, item.Load(context.Background()))

	state := item.State()
	assert.Equal(t, KindShapefile, state.Kind)
	assert.Equal(t, "https://data.gov.au/cities.zip", state.SourceURL)
	assert.Empty(t, state.Data)
}
