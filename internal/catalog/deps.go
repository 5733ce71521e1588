package catalog

import (
	"context"
	"io"
	"time"

	"github.com/rotisserie/eris"

	"github.com/ausmap/geocat-cli/internal/abs"
	"github.com/ausmap/geocat-cli/internal/fetcher"
	"github.com/ausmap/geocat-cli/internal/region"
	"github.com/ausmap/geocat-cli/internal/table"
	"github.com/ausmap/geocat-cli/pkg/absapi"
)

// Deps holds the shared services items are built from. Layer factories are
// called once per item so each entry owns its rendering surface; a nil
// factory leaves the item without one, which is fine for headless use.
type Deps struct {
	Fetcher fetcher.Fetcher
	FTP     *fetcher.FTPFetcher
	Mapper  *region.Mapper
	ABS     absapi.Client

	// Cache, when set, persists fetched table text across sessions; CacheTTL
	// bounds how long entries live before expiry sweeps drop them.
	Cache    TableCache
	CacheTTL time.Duration

	NewImageryLayer func() ImageryLayer
	NewVectorLayer  func() VectorLayer
}

func (d *Deps) imageryLayer() ImageryLayer {
	if d.NewImageryLayer == nil {
		return nil
	}
	return d.NewImageryLayer()
}

func (d *Deps) vectorLayer() VectorLayer {
	if d.NewVectorLayer == nil {
		return nil
	}
	return d.NewVectorLayer()
}

// NewItem builds an unloaded item from its saved state. The kind set is
// closed; anything else is an error, not a hook.
func (d *Deps) NewItem(state ItemState) (Item, error) {
	switch state.Kind {
	case KindCSV:
		return NewCSVItem(state.Name, d.csvOptions(state)...), nil

	case KindABS:
		if d.ABS == nil {
			return nil, eris.New("catalog: statistical item but no ABS client configured")
		}
		if state.DatasetID == "" {
			return nil, eris.Errorf("catalog: statistical item %s missing dataset id", state.Name)
		}
		agg := abs.NewAggregator(d.ABS, state.DatasetID, state.RegionType)
		item := NewABSItem(state.Name, agg, d.csvOptions(state)...)
		if state.Selections != nil {
			item.RestoreSelections(state.Selections)
		}
		return item, nil

	case KindGeoJSON:
		opts := []GeoJSONOption{
			WithGeoJSONFetcher(d.Fetcher),
			WithGeoJSONVectorLayer(d.vectorLayer()),
		}
		if state.SourceURL != "" {
			opts = append(opts, WithGeoJSONSourceURL(state.SourceURL))
		} else {
			opts = append(opts, WithGeoJSONData([]byte(state.Data)))
		}
		if state.ActiveVariable != "" {
			opts = append(opts, WithGeoJSONProperty(state.ActiveVariable))
		}
		item := NewGeoJSONItem(state.Name, opts...)
		applyStyleState(item, state)
		return item, nil

	case KindShapefile:
		return NewShapefileItem(state.Name, d.csvOptions(state)...), nil

	case KindImagery:
		if state.URLTemplate == "" {
			return nil, eris.Errorf("catalog: imagery item %s missing url template", state.Name)
		}
		opts := []ImageryOption{
			WithImagerySurface(d.imageryLayer()),
			WithImageryOpacity(state.Opacity),
		}
		if state.ID != "" {
			opts = append(opts, WithImageryID(state.ID))
		}
		return NewImageryItem(state.Name, state.URLTemplate, opts...), nil

	default:
		return nil, eris.Errorf("catalog: unknown item kind %q", state.Kind)
	}
}

// csvOptions translates saved state into options for the tabular variants.
func (d *Deps) csvOptions(state ItemState) []CSVOption {
	opts := []CSVOption{
		WithFetcher(d.Fetcher),
		WithFTPFetcher(d.FTP),
		WithMapper(d.Mapper),
		WithImageryLayer(d.imageryLayer()),
		WithVectorLayer(d.vectorLayer()),
	}
	if d.Cache != nil {
		opts = append(opts, WithTableCache(d.Cache, d.CacheTTL))
	}
	if state.ID != "" {
		opts = append(opts, WithID(state.ID))
	}
	if state.RegionType != "" {
		opts = append(opts, WithRegionType(state.RegionType))
	}
	if state.SourceURL != "" {
		opts = append(opts, WithSourceURL(state.SourceURL))
	}
	if state.Data != "" {
		opts = append(opts, WithText(state.Data))
	}
	if state.ActiveVariable != "" {
		opts = append(opts, WithActiveVariable(state.ActiveVariable))
	}
	if state.Opacity > 0 {
		opts = append(opts, WithOpacity(state.Opacity))
	}
	if len(state.GradientStops) > 0 {
		opts = append(opts, WithGradient(table.NewGradient(state.GradientStops...)))
	}
	return opts
}

// applyStyleState copies saved presentation fields onto a GeoJSON item before
// loading.
func applyStyleState(item *GeoJSONItem, state ItemState) {
	if state.ID != "" {
		item.id = state.ID
	}
	if state.Opacity > 0 {
		item.opacity = state.Opacity
	}
	if len(state.GradientStops) > 0 {
		item.gradient = table.NewGradient(state.GradientStops...)
	}
}

// Document is a catalog manifest: a named list of item states to load.
type Document struct {
	Name  string      `json:"name" yaml:"name"`
	Items []ItemState `json:"items" yaml:"items"`
}

// LoadDocument reads a catalog manifest and builds its items into a new
// catalog. Items are built but not loaded; Load is the caller's call to make.
func (d *Deps) LoadDocument(r io.Reader) (*Catalog, error) {
	doc, err := fetcher.DecodeJSONObject[Document](r)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: decode manifest")
	}
	return d.buildAll(doc.Items)
}

// RestoreShare rebuilds a catalog from a share document.
func (d *Deps) RestoreShare(state *ShareState) (*Catalog, error) {
	return d.buildAll(state.Items)
}

func (d *Deps) buildAll(states []ItemState) (*Catalog, error) {
	c := NewCatalog()
	for _, state := range states {
		item, err := d.NewItem(state)
		if err != nil {
			return nil, err
		}
		c.Add(item)
	}
	return c, nil
}

// LoadAll loads every item in the catalog in order, stopping at the first
// failure.
func LoadAll(ctx context.Context, c *Catalog) error {
	for _, item := range c.Items() {
		if err := item.Load(ctx); err != nil {
			return eris.Wrapf(err, "catalog: load item %s", item.Name())
		}
	}
	return nil
}
