package catalog

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ausmap/geocat-cli/internal/fetcher"
	"github.com/ausmap/geocat-cli/internal/region"
	"github.com/ausmap/geocat-cli/internal/table"
)

// CSVItem is a tabular catalog entry. Sources with longitude/latitude columns
// display as colored points on the vector layer; coordinate-less sources are
// resolved against the region registry and display as a choropleth on the
// imagery layer. Style changes rebuild presentation without refetching.
type CSVItem struct {
	id   string
	name string

	sourceURL  string
	rawText    string
	preferred  string
	regionType string

	gradient table.Gradient
	opacity  float64

	fetch    fetcher.Fetcher
	ftp      *fetcher.FTPFetcher
	mapper   *region.Mapper
	cache    TableCache
	cacheTTL time.Duration

	imagery ImageryLayer
	vector  VectorLayer

	log *zap.Logger

	ds     *table.Dataset
	match  *region.Match
	result *region.MapResult
	loaded bool
}

// TableCache persists fetched table text between sessions, keyed by source
// URL. Satisfied by the session store.
type TableCache interface {
	GetCachedTable(ctx context.Context, url string) ([]byte, error)
	SetCachedTable(ctx context.Context, url string, text []byte, ttl time.Duration) error
}

// CSVOption configures a CSVItem.
type CSVOption func(*CSVItem)

// WithSourceURL sets the remote or local source of the delimited text.
func WithSourceURL(u string) CSVOption {
	return func(it *CSVItem) { it.sourceURL = u }
}

// WithText embeds the delimited text directly, bypassing any fetch.
func WithText(text string) CSVOption {
	return func(it *CSVItem) { it.rawText = text }
}

// WithActiveVariable names the column preferred as active data.
func WithActiveVariable(name string) CSVOption {
	return func(it *CSVItem) { it.preferred = name }
}

// WithGradient overrides the default color gradient.
func WithGradient(g table.Gradient) CSVOption {
	return func(it *CSVItem) { it.gradient = g }
}

// WithOpacity sets the initial display opacity.
func WithOpacity(opacity float64) CSVOption {
	return func(it *CSVItem) { it.opacity = opacity }
}

// WithFetcher sets the HTTP fetcher used for http(s) sources.
func WithFetcher(f fetcher.Fetcher) CSVOption {
	return func(it *CSVItem) { it.fetch = f }
}

// WithFTPFetcher sets the fetcher used for ftp sources.
func WithFTPFetcher(f *fetcher.FTPFetcher) CSVOption {
	return func(it *CSVItem) { it.ftp = f }
}

// WithMapper sets the region mapper used for coordinate-less sources.
func WithMapper(m *region.Mapper) CSVOption {
	return func(it *CSVItem) { it.mapper = m }
}

// WithRegionType pins the region type instead of running resolution, used
// when a saved override names the type.
func WithRegionType(code string) CSVOption {
	return func(it *CSVItem) { it.regionType = code }
}

// WithTableCache persists fetched http(s) table text with the given TTL and
// serves repeat loads from the cache, revalidating by ETag.
func WithTableCache(c TableCache, ttl time.Duration) CSVOption {
	return func(it *CSVItem) {
		it.cache = c
		it.cacheTTL = ttl
	}
}

// WithImageryLayer sets the rendering surface for choropleth output.
func WithImageryLayer(l ImageryLayer) CSVOption {
	return func(it *CSVItem) { it.imagery = l }
}

// WithVectorLayer sets the rendering surface for point output.
func WithVectorLayer(l VectorLayer) CSVOption {
	return func(it *CSVItem) { it.vector = l }
}

// WithID pins the item id, used when rebuilding from a share document.
func WithID(id string) CSVOption {
	return func(it *CSVItem) { it.id = id }
}

// NewCSVItem creates a tabular catalog item.
func NewCSVItem(name string, opts ...CSVOption) *CSVItem {
	it := &CSVItem{
		id:       uuid.New().String(),
		name:     name,
		gradient: table.DefaultGradient(),
		opacity:  1.0,
		ds:       table.New(),
	}
	for _, opt := range opts {
		opt(it)
	}
	it.log = zap.L().With(zap.String("component", "catalog"), zap.String("item", it.name))
	return it
}

func (it *CSVItem) ID() string   { return it.id }
func (it *CSVItem) Name() string { return it.name }
func (it *CSVItem) Kind() Kind   { return KindCSV }

// Dataset exposes the loaded table for summaries and tests.
func (it *CSVItem) Dataset() *table.Dataset { return it.ds }

// RegionMatch returns the resolved region type, or nil for point data.
func (it *CSVItem) RegionMatch() *region.Match { return it.match }

// MapResult returns the last choropleth build, or nil for point data.
func (it *CSVItem) MapResult() *region.MapResult { return it.result }

// Load obtains the source text, parses the table, resolves presentation mode,
// and pushes the first build to the rendering layer.
func (it *CSVItem) Load(ctx context.Context) error {
	text, err := it.sourceText(ctx)
	if err != nil {
		return err
	}

	if err := it.ds.LoadFromDelimitedText(text); err != nil {
		return eris.Wrapf(err, "catalog: load %s", it.name)
	}
	it.ds.ResolveActiveVariable(it.preferred)

	it.match = nil
	it.result = nil
	if !it.ds.HasCoordinates() {
		if it.mapper == nil {
			return eris.Wrap(region.ErrUnresolved, "catalog: no coordinates and no region mapper")
		}
		var match *region.Match
		if it.regionType != "" {
			match, err = it.mapper.ResolveAs(it.ds, it.regionType)
		} else {
			match, err = it.mapper.Resolve(it.ds)
		}
		if err != nil {
			return err
		}
		it.match = match
	}

	it.loaded = true
	it.log.Info("item loaded",
		zap.Int("rows", it.ds.RowCount()),
		zap.Int("columns", len(it.ds.ColumnNames())),
		zap.Bool("choropleth", it.match != nil),
	)
	return it.present(ctx)
}

// sourceText obtains the delimited text from whichever source is configured.
func (it *CSVItem) sourceText(ctx context.Context) (string, error) {
	if it.rawText != "" {
		return it.rawText, nil
	}
	if it.sourceURL == "" {
		return "", eris.New("catalog: item has no source")
	}

	u, err := url.Parse(it.sourceURL)
	if err != nil {
		return "", eris.Wrapf(err, "catalog: parse source %s", it.sourceURL)
	}

	switch {
	case u.Scheme == "ftp":
		if it.ftp == nil {
			return "", eris.New("catalog: ftp source but no ftp fetcher configured")
		}
		rc, err := it.ftp.Download(ctx, it.sourceURL)
		if err != nil {
			return "", err
		}
		return readAllText(rc)

	case u.Scheme == "http" || u.Scheme == "https":
		ext := strings.ToLower(filepath.Ext(u.Path))
		if it.fetch == nil {
			return "", eris.New("catalog: http source but no fetcher configured")
		}
		if ext == ".xlsx" || ext == ".zip" {
			return it.unpackedText(ctx, ext)
		}
		if it.cache != nil {
			return it.cachedText(ctx)
		}
		rc, err := it.fetch.Download(ctx, it.sourceURL)
		if err != nil {
			return "", err
		}
		return readAllText(rc)

	default:
		// Bare paths are local files.
		data, err := os.ReadFile(it.sourceURL)
		if err != nil {
			return "", eris.Wrapf(err, "catalog: read %s", it.sourceURL)
		}
		return fetcher.DecodeText(data)
	}
}

// unpackedText downloads a container format to a temp dir and converts it to
// delimited text: the first sheet of a spreadsheet, or the single file of a
// zipped CSV.
func (it *CSVItem) unpackedText(ctx context.Context, ext string) (string, error) {
	dir, err := os.MkdirTemp("", "geocat-*")
	if err != nil {
		return "", eris.Wrap(err, "catalog: temp dir")
	}
	defer os.RemoveAll(dir) //nolint:errcheck

	local := filepath.Join(dir, "download"+ext)
	if _, err := it.fetch.DownloadToFile(ctx, it.sourceURL, local); err != nil {
		return "", err
	}

	switch ext {
	case ".xlsx":
		rows, err := fetcher.ReadXLSX(local, fetcher.XLSXOptions{})
		if err != nil {
			return "", err
		}
		return rowsToDelimitedText(rows), nil
	default:
		inner, err := fetcher.ExtractZIPSingle(local, dir)
		if err != nil {
			return "", err
		}
		data, err := os.ReadFile(inner)
		if err != nil {
			return "", eris.Wrap(err, "catalog: read extracted file")
		}
		return fetcher.DecodeText(data)
	}
}

// cachedText serves an http(s) source through the persistent table cache.
// Cached copies carry the ETag they were fetched under; a hit with a known
// ETag revalidates with a conditional request, so an unchanged source costs
// one round trip and no body transfer. Cache failures degrade to a plain
// fetch, never a load error.
func (it *CSVItem) cachedText(ctx context.Context) (string, error) {
	data, err := it.cache.GetCachedTable(ctx, it.sourceURL)
	if err != nil {
		it.log.Warn("table cache read failed", zap.Error(err))
	}
	if data != nil {
		etag, text := decodeCachedTable(data)
		if etag == "" {
			return text, nil
		}
		rc, newETag, changed, err := it.fetch.DownloadIfChanged(ctx, it.sourceURL, etag)
		if err != nil {
			it.log.Warn("revalidation failed, serving cached copy", zap.Error(err))
			return text, nil
		}
		if !changed {
			return text, nil
		}
		fresh, err := readAllText(rc)
		if err != nil {
			return "", err
		}
		it.storeCachedTable(ctx, newETag, fresh)
		return fresh, nil
	}

	rc, etag, _, err := it.fetch.DownloadIfChanged(ctx, it.sourceURL, "")
	if err != nil {
		return "", err
	}
	text, err := readAllText(rc)
	if err != nil {
		return "", err
	}
	it.storeCachedTable(ctx, etag, text)
	return text, nil
}

func (it *CSVItem) storeCachedTable(ctx context.Context, etag, text string) {
	ttl := it.cacheTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if err := it.cache.SetCachedTable(ctx, it.sourceURL, encodeCachedTable(etag, text), ttl); err != nil {
		it.log.Warn("table cache write failed", zap.Error(err))
	}
}

// encodeCachedTable prefixes the table text with the ETag it was fetched
// under, so revalidation state travels with the cached body.
func encodeCachedTable(etag, text string) []byte {
	return []byte(etag + "\n" + text)
}

func decodeCachedTable(data []byte) (etag, text string) {
	i := bytes.IndexByte(data, '\n')
	if i < 0 {
		return "", string(data)
	}
	return string(data[:i]), string(data[i+1:])
}

// present rebuilds the display output for the current style. The expensive
// inputs (downloaded text, identifier tables) are already cached, so this is
// the only work style changes repeat.
func (it *CSVItem) present(ctx context.Context) error {
	if it.match != nil {
		result, err := it.mapper.Build(ctx, it.ds, it.match, it.gradient, it.opacity)
		if err != nil {
			return err
		}
		it.result = result
		if it.imagery != nil {
			it.imagery.SetColorLookup(result.ColorFunc())
			it.imagery.SetOpacity(it.opacity)
			it.imagery.Refresh()
		}
		return nil
	}

	if it.vector != nil {
		it.vector.SetPoints(it.buildPoints())
		it.vector.SetFeaturePick(func(index int) (map[string]any, bool) {
			rec := it.ds.RowAsRecord(index)
			return rec, rec != nil
		})
		it.vector.SetOpacity(it.opacity)
		it.vector.Refresh()
	}
	return nil
}

func (it *CSVItem) buildPoints() []Point {
	lon := it.ds.Column(it.ds.LongitudeColumn())
	lat := it.ds.Column(it.ds.LatitudeColumn())
	active := it.ds.ActiveVariable()

	var min, max float64
	if active != nil {
		min, max, _ = active.MinMax()
	}

	points := make([]Point, 0, it.ds.RowCount())
	for row := 0; row < it.ds.RowCount(); row++ {
		if lon.Values[row] == table.NoDataSentinel || lat.Values[row] == table.NoDataSentinel {
			continue
		}
		c := it.gradient.At(0)
		if active != nil {
			c = it.gradient.ColorFor(active.Values[row], min, max)
		}
		points = append(points, Point{
			Lon:   lon.Values[row],
			Lat:   lat.Values[row],
			Color: table.WithOpacity(c, it.opacity),
		})
	}
	return points
}

// SetActiveVariable switches the column driving color display and rebuilds.
func (it *CSVItem) SetActiveVariable(name string) error {
	if !it.loaded {
		return eris.New("catalog: item not loaded")
	}
	it.preferred = name
	it.ds.ResolveActiveVariable(name)
	return it.present(context.Background())
}

// SetColorGradient replaces the gradient and rebuilds.
func (it *CSVItem) SetColorGradient(stops []table.ColorStop) error {
	if !it.loaded {
		return eris.New("catalog: item not loaded")
	}
	it.gradient = table.NewGradient(stops...)
	return it.present(context.Background())
}

// SetOpacity changes display opacity and rebuilds.
func (it *CSVItem) SetOpacity(opacity float64) error {
	if !it.loaded {
		return eris.New("catalog: item not loaded")
	}
	it.opacity = opacity
	return it.present(context.Background())
}

// DescribeRow looks up the record behind a picked feature: a region code for
// choropleth items, a row index for point items.
func (it *CSVItem) DescribeRow(codeOrIndex int) (map[string]any, bool) {
	if it.result != nil {
		return it.result.RowFunc(it.ds)(codeOrIndex)
	}
	rec := it.ds.RowAsRecord(codeOrIndex)
	return rec, rec != nil
}

// Legend describes the active variable's color ramp.
func (it *CSVItem) Legend() *Legend {
	active := it.ds.ActiveVariable()
	if active == nil {
		return nil
	}
	min, max, ok := active.MinMax()
	if !ok {
		return nil
	}
	return NewLegend(active.Name, it.gradient, min, max, 5)
}

// State captures the item for a share document. Items loaded from a URL
// reference it; embedded text travels with the document.
func (it *CSVItem) State() ItemState {
	state := ItemState{
		ID:             it.id,
		Kind:           it.Kind(),
		Name:           it.name,
		SourceURL:      it.sourceURL,
		ActiveVariable: it.ds.ActiveVariableName(),
		Opacity:        it.opacity,
		GradientStops:  it.gradient.Stops(),
	}
	if it.sourceURL == "" {
		state.Data = it.rawText
	}
	if it.match != nil {
		state.RegionType = it.match.Descriptor.Code
	}
	return state
}

func readAllText(rc io.ReadCloser) (string, error) {
	defer rc.Close() //nolint:errcheck
	data, err := io.ReadAll(rc)
	if err != nil {
		return "", eris.Wrap(err, "catalog: read source body")
	}
	return fetcher.DecodeText(data)
}

// rowsToDelimitedText serializes spreadsheet rows as CSV so they enter the
// same parse path as every other tabular source.
func rowsToDelimitedText(rows [][]string) string {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	for _, row := range rows {
		_ = w.Write(row)
	}
	w.Flush()
	return sb.String()
}
