package catalog

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ausmap/geocat-cli/internal/region"
	"github.com/ausmap/geocat-cli/internal/table"
)

// fakeFetcher serves canned bodies by URL and counts downloads. When etags
// holds an entry for a URL, conditional fetches against the current tag
// answer not-modified without a body.
type fakeFetcher struct {
	files       map[string][]byte
	etags       map[string]string
	downloads   int
	conditional int
}

func (f *fakeFetcher) Download(_ context.Context, url string) (io.ReadCloser, error) {
	f.downloads++
	data, ok := f.files[url]
	if !ok {
		return nil, eris.Errorf("no fixture for %s", url)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeFetcher) DownloadToFile(_ context.Context, url, path string) (int64, error) {
	f.downloads++
	data, ok := f.files[url]
	if !ok {
		return 0, eris.Errorf("no fixture for %s", url)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

func (f *fakeFetcher) HeadETag(_ context.Context, url string) (string, error) {
	return f.etags[url], nil
}

func (f *fakeFetcher) DownloadIfChanged(ctx context.Context, url, etag string) (io.ReadCloser, string, bool, error) {
	f.conditional++
	current := f.etags[url]
	if etag != "" && etag == current {
		return nil, etag, false, nil
	}
	rc, err := f.Download(ctx, url)
	if err != nil {
		return nil, "", false, err
	}
	return rc, current, true, nil
}

// fakeTableCache keeps cached tables in memory.
type fakeTableCache struct {
	entries map[string][]byte
}

func (c *fakeTableCache) GetCachedTable(_ context.Context, url string) ([]byte, error) {
	return c.entries[url], nil
}

func (c *fakeTableCache) SetCachedTable(_ context.Context, url string, text []byte, _ time.Duration) error {
	if c.entries == nil {
		c.entries = make(map[string][]byte)
	}
	c.entries[url] = text
	return nil
}

// fakeProvider enumerates canned region identifier lists.
type fakeProvider struct {
	ids map[string][]int
}

func (f *fakeProvider) EnumerateIDs(_ context.Context, dataset, _ string) ([]int, error) {
	ids, ok := f.ids[dataset]
	if !ok {
		return nil, eris.Errorf("no such dataset %s", dataset)
	}
	return ids, nil
}

func postcodeMapper() *region.Mapper {
	prov := &fakeProvider{ids: map[string][]int{
		"region_map:FID_POA_2011_AUST": {2600, 2601},
	}}
	return region.NewMapper(region.DefaultRegistry(), region.NewIDCache(prov, nil))
}

func TestCSVItem_CoordinatesDisplayAsPoints(t *testing.T) {
	vector := &RecordingLayer{}
	item := NewCSVItem("stations",
		WithText("Longitude,Latitude,Rainfall\n151.2,-33.9,1\n144.9,-37.8,9\n"),
		WithVectorLayer(vector),
	)
	require.NoError(t, item.Load(context.Background()))

	require.Len(t, vector.Points, 2)
	assert.Equal(t, 151.2, vector.Points[0].Lon)
	assert.Equal(t, -33.9, vector.Points[0].Lat)
	assert.Equal(t, 1, vector.Refreshes)

	grad := table.DefaultGradient()
	assert.Equal(t, grad.At(0), vector.Points[0].Color, "minimum value gets the first stop")
	assert.Equal(t, grad.At(1), vector.Points[1].Color, "maximum value gets the last stop")

	rec, ok := vector.Pick(1)
	require.True(t, ok)
	assert.Equal(t, 9.0, rec["Rainfall"])

	_, ok = vector.Pick(99)
	assert.False(t, ok)

	legend := item.Legend()
	require.NotNil(t, legend)
	assert.Equal(t, "Rainfall", legend.Title)
}

func TestCSVItem_RegionCodesDisplayAsChoropleth(t *testing.T) {
	imagery := &RecordingLayer{}
	item := NewCSVItem("postcode stats",
		WithText("postcode,value\n2600,5\n2601,9\n"),
		WithMapper(postcodeMapper()),
		WithImageryLayer(imagery),
	)
	require.NoError(t, item.Load(context.Background()))

	require.NotNil(t, item.RegionMatch())
	assert.Equal(t, "POA", item.RegionMatch().Descriptor.Code)

	require.NotNil(t, imagery.Lookup)
	grad := table.DefaultGradient()
	c, ok := imagery.Lookup(0)
	require.True(t, ok)
	assert.Equal(t, grad.At(0), c)
	c, ok = imagery.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, grad.At(1), c)

	rec, ok := item.DescribeRow(2601)
	require.True(t, ok)
	assert.Equal(t, 9.0, rec["value"])
}

func TestCSVItem_NoCoordinatesAndNoMapperFails(t *testing.T) {
	item := NewCSVItem("orphan", WithText("postcode,value\n2600,5\n"))
	err := item.Load(context.Background())
	require.Error(t, err)
	assert.True(t, eris.Is(err, region.ErrUnresolved))
}

func TestCSVItem_StyleChangesRebuildWithoutRefetch(t *testing.T) {
	fetch := &fakeFetcher{files: map[string][]byte{
		"https://data.gov.au/stations.csv": []byte("Longitude,Latitude,Rainfall,Wind\n151.2,-33.9,1,3\n144.9,-37.8,9,7\n"),
	}}
	vector := &RecordingLayer{}
	item := NewCSVItem("stations",
		WithSourceURL("https://data.gov.au/stations.csv"),
		WithFetcher(fetch),
		WithVectorLayer(vector),
	)
	require.NoError(t, item.Load(context.Background()))
	require.Equal(t, 1, fetch.downloads)

	require.NoError(t, item.SetOpacity(0.5))
	require.NoError(t, item.SetActiveVariable("Wind"))
	require.NoError(t, item.SetColorGradient([]table.ColorStop{
		{Offset: 0, Color: table.DefaultGradient().At(0)},
		{Offset: 1, Color: table.DefaultGradient().At(1)},
	}))

	assert.Equal(t, 1, fetch.downloads, "style changes must not refetch")
	assert.Equal(t, 4, vector.Refreshes)
	assert.Equal(t, 0.5, vector.Opacity)
	assert.Equal(t, "Wind", item.Legend().Title)
}

func TestCSVItem_TableCacheServesUnchangedSource(t *testing.T) {
	const url = "https://data.gov.au/stations.csv"
	fetch := &fakeFetcher{
		files: map[string][]byte{url: []byte("Longitude,Latitude,Rainfall\n151.2,-33.9,1\n")},
		etags: map[string]string{url: `"v1"`},
	}
	cache := &fakeTableCache{}

	first := NewCSVItem("stations",
		WithSourceURL(url),
		WithFetcher(fetch),
		WithTableCache(cache, time.Hour),
	)
	require.NoError(t, first.Load(context.Background()))
	require.Equal(t, 1, fetch.downloads)
	require.Contains(t, cache.entries, url)

	// A fresh item over the same cache revalidates by ETag and never fetches
	// the body again.
	second := NewCSVItem("stations",
		WithSourceURL(url),
		WithFetcher(fetch),
		WithTableCache(cache, time.Hour),
	)
	require.NoError(t, second.Load(context.Background()))
	assert.Equal(t, 1, fetch.downloads, "unchanged source must be served from cache")
	assert.Equal(t, 2, fetch.conditional)
	assert.Equal(t, 1, second.Dataset().RowCount())
}

func TestCSVItem_TableCacheRevalidationPicksUpChanges(t *testing.T) {
	const url = "https://data.gov.au/stations.csv"
	fetch := &fakeFetcher{
		files: map[string][]byte{url: []byte("Longitude,Latitude,Rainfall\n151.2,-33.9,1\n")},
		etags: map[string]string{url: `"v1"`},
	}
	cache := &fakeTableCache{}

	load := func() *CSVItem {
		item := NewCSVItem("stations",
			WithSourceURL(url),
			WithFetcher(fetch),
			WithTableCache(cache, time.Hour),
		)
		require.NoError(t, item.Load(context.Background()))
		return item
	}

	require.Equal(t, 1, load().Dataset().RowCount())

	// The source grows a row and gets a new tag; revalidation replaces the
	// cached copy.
	fetch.files[url] = []byte("Longitude,Latitude,Rainfall\n151.2,-33.9,1\n144.9,-37.8,9\n")
	fetch.etags[url] = `"v2"`
	assert.Equal(t, 2, load().Dataset().RowCount())
	assert.Equal(t, 2, fetch.downloads)

	// The replacement is cached under the new tag.
	assert.Equal(t, 2, load().Dataset().RowCount())
	assert.Equal(t, 2, fetch.downloads)
}

func TestCSVItem_TableCacheWithoutETagSkipsRevalidation(t *testing.T) {
	const url = "https://data.gov.au/stations.csv"
	fetch := &fakeFetcher{
		files: map[string][]byte{url: []byte("Longitude,Latitude,Rainfall\n151.2,-33.9,1\n")},
	}
	cache := &fakeTableCache{}

	for range 2 {
		item := NewCSVItem("stations",
			WithSourceURL(url),
			WithFetcher(fetch),
			WithTableCache(cache, time.Hour),
		)
		require.NoError(t, item.Load(context.Background()))
	}

	assert.Equal(t, 1, fetch.downloads)
	assert.Equal(t, 1, fetch.conditional, "no stored tag, nothing to revalidate against")
}

func TestCSVItem_RegionTypePinOverridesResolution(t *testing.T) {
	prov := &fakeProvider{ids: map[string][]int{
		"region_map:FID_SSC_2011_AUST": {2600, 2601},
	}}
	mapper := region.NewMapper(region.DefaultRegistry(), region.NewIDCache(prov, nil))

	// Four-digit bare codes would resolve to POA; the saved override pins SSC.
	item := NewCSVItem("suburb stats",
		WithText("region_id,value\n2600,5\n2601,9\n"),
		WithMapper(mapper),
		WithRegionType("SSC"),
	)
	require.NoError(t, item.Load(context.Background()))

	require.NotNil(t, item.RegionMatch())
	assert.Equal(t, "SSC", item.RegionMatch().Descriptor.Code)
	assert.Equal(t, "SSC", item.State().RegionType)
}

func TestCSVItem_SettersRequireLoad(t *testing.T) {
	item := NewCSVItem("unloaded", WithText("a,b\n1,2\n"))
	assert.Error(t, item.SetOpacity(0.5))
	assert.Error(t, item.SetActiveVariable("b"))
	assert.Error(t, item.SetColorGradient(nil))
}

func TestCSVItem_ZippedSource(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("data.csv")
	require.NoError(t, err)
	_, err = w.Write([]byte("Longitude,Latitude,Value\n151.2,-33.9,5\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	fetch := &fakeFetcher{files: map[string][]byte{
		"https://data.gov.au/archive.zip": buf.Bytes(),
	}}
	vector := &RecordingLayer{}
	item := NewCSVItem("zipped",
		WithSourceURL("https://data.gov.au/archive.zip"),
		WithFetcher(fetch),
		WithVectorLayer(vector),
	)
	require.NoError(t, item.Load(context.Background()))
	require.Len(t, vector.Points, 1)
	assert.Equal(t, 151.2, vector.Points[0].Lon)
}

func TestCSVItem_StateEmbedsTextOnlyWithoutURL(t *testing.T) {
	embedded := NewCSVItem("embedded", WithText("a,b\n1,2\n"))
	require.NoError(t, embedded.Load(context.Background()))
	state := embedded.State()
	assert.Equal(t, KindCSV, state.Kind)
	assert.Equal(t, "a,b\n1,2\n", state.Data)
	assert.Empty(t, state.SourceURL)

	fetch := &fakeFetcher{files: map[string][]byte{
		"https://data.gov.au/x.csv": []byte("a,b\n1,2\n"),
	}}
	remote := NewCSVItem("remote",
		WithSourceURL("https://data.gov.au/x.csv"),
		WithFetcher(fetch),
	)
	require.NoError(t, remote.Load(context.Background()))
	state = remote.State()
	assert.Empty(t, state.Data, "URL sources reference, never embed")
	assert.Equal(t, "https://data.gov.au/x.csv", state.SourceURL)
}
