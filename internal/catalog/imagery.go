package catalog

import (
	"context"
	"fmt"
	"image/color"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/ausmap/geocat-cli/internal/table"
)

// tilePlaceholders must all appear in an imagery URL template.
var tilePlaceholders = []string{"{z}", "{x}", "{y}"}

// ImageryItem is a tiled imagery catalog entry. It carries no data of its
// own; the rendering layer fetches tiles from the URL template and the item
// only pushes style (opacity, optional recolor hook) down to it.
type ImageryItem struct {
	id          string
	name        string
	urlTemplate string
	opacity     float64

	lookup func(slot int) (color.RGBA, bool)

	imagery ImageryLayer
	loaded  bool
}

// ImageryOption configures an ImageryItem.
type ImageryOption func(*ImageryItem)

// WithImageryID pins the item id, used when rebuilding from a share document.
func WithImageryID(id string) ImageryOption {
	return func(it *ImageryItem) { it.id = id }
}

// WithImageryOpacity sets the initial display opacity.
func WithImageryOpacity(opacity float64) ImageryOption {
	return func(it *ImageryItem) { it.opacity = opacity }
}

// WithImagerySurface sets the rendering surface.
func WithImagerySurface(l ImageryLayer) ImageryOption {
	return func(it *ImageryItem) { it.imagery = l }
}

// WithColorLookup installs a recolor hook applied to every tile.
func WithColorLookup(fn func(slot int) (color.RGBA, bool)) ImageryOption {
	return func(it *ImageryItem) { it.lookup = fn }
}

// NewImageryItem creates a tiled imagery catalog item.
func NewImageryItem(name, urlTemplate string, opts ...ImageryOption) *ImageryItem {
	it := &ImageryItem{
		id:          uuid.New().String(),
		name:        name,
		urlTemplate: urlTemplate,
		opacity:     1.0,
	}
	for _, opt := range opts {
		opt(it)
	}
	return it
}

func (it *ImageryItem) ID() string   { return it.id }
func (it *ImageryItem) Name() string { return it.name }
func (it *ImageryItem) Kind() Kind   { return KindImagery }

// URLTemplate returns the tile URL template.
func (it *ImageryItem) URLTemplate() string { return it.urlTemplate }

// TileURL expands the template for one tile address.
func (it *ImageryItem) TileURL(z, x, y int) string {
	r := strings.NewReplacer(
		"{z}", fmt.Sprint(z),
		"{x}", fmt.Sprint(x),
		"{y}", fmt.Sprint(y),
	)
	return r.Replace(it.urlTemplate)
}

// Load validates the template and pushes the initial style to the surface.
// Tile fetching itself is the surface's job.
func (it *ImageryItem) Load(_ context.Context) error {
	for _, ph := range tilePlaceholders {
		if !strings.Contains(it.urlTemplate, ph) {
			return eris.Errorf("catalog: imagery template missing %s placeholder", ph)
		}
	}
	it.loaded = true
	if it.imagery != nil {
		if it.lookup != nil {
			it.imagery.SetColorLookup(it.lookup)
		}
		it.imagery.SetOpacity(it.opacity)
		it.imagery.Refresh()
	}
	return nil
}

// SetActiveVariable is rejected; imagery has no data columns.
func (it *ImageryItem) SetActiveVariable(string) error {
	return eris.New("catalog: imagery items have no variables")
}

// SetColorGradient is rejected; imagery color comes from the tiles.
func (it *ImageryItem) SetColorGradient([]table.ColorStop) error {
	return eris.New("catalog: imagery items have no gradient")
}

// SetOpacity changes display opacity.
func (it *ImageryItem) SetOpacity(opacity float64) error {
	if !it.loaded {
		return eris.New("catalog: item not loaded")
	}
	it.opacity = opacity
	if it.imagery != nil {
		it.imagery.SetOpacity(opacity)
		it.imagery.Refresh()
	}
	return nil
}

// SetColorLookup replaces the recolor hook.
func (it *ImageryItem) SetColorLookup(fn func(slot int) (color.RGBA, bool)) {
	it.lookup = fn
	if it.loaded && it.imagery != nil {
		it.imagery.SetColorLookup(fn)
		it.imagery.Refresh()
	}
}

// DescribeRow has nothing to return for imagery.
func (it *ImageryItem) DescribeRow(int) (map[string]any, bool) { return nil, false }

// Legend is nil; imagery carries no value scale.
func (it *ImageryItem) Legend() *Legend { return nil }

// State captures the item for a share document.
func (it *ImageryItem) State() ItemState {
	return ItemState{
		ID:          it.id,
		Kind:        it.Kind(),
		Name:        it.name,
		Opacity:     it.opacity,
		URLTemplate: it.urlTemplate,
	}
}
