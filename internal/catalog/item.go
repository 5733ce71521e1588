package catalog

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/ausmap/geocat-cli/internal/table"
)

// Kind tags the closed set of catalog item variants. Dispatch happens on this
// tag; there is no open registration of new variants.
type Kind string

const (
	KindCSV       Kind = "csv"
	KindABS       Kind = "abs"
	KindGeoJSON   Kind = "geojson"
	KindShapefile Kind = "shapefile"
	KindImagery   Kind = "imagery"
)

// Item is one viewable catalog entry. Load is the only operation that touches
// the network; the style setters rebuild presentation synchronously from data
// already held.
type Item interface {
	ID() string
	Name() string
	Kind() Kind

	Load(ctx context.Context) error

	SetActiveVariable(name string) error
	SetColorGradient(stops []table.ColorStop) error
	SetOpacity(opacity float64) error

	// DescribeRow returns the record behind a picked feature: a region code
	// for choropleth items, a row index for point and vector items.
	DescribeRow(codeOrIndex int) (map[string]any, bool)

	Legend() *Legend

	// State captures everything needed to reproduce the item in a share
	// document.
	State() ItemState
}

// Catalog is the id-indexed set of loaded items, shared between the CLI and
// the serve API.
type Catalog struct {
	mu    sync.RWMutex
	order []string
	items map[string]Item
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{items: make(map[string]Item)}
}

// Add registers an item under its id.
func (c *Catalog) Add(item Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[item.ID()]; !ok {
		c.order = append(c.order, item.ID())
	}
	c.items[item.ID()] = item
}

// Get returns the item with the given id.
func (c *Catalog) Get(id string) (Item, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.items[id]
	if !ok {
		return nil, eris.Errorf("catalog: no item %s", id)
	}
	return item, nil
}

// Items returns all items in insertion order.
func (c *Catalog) Items() []Item {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Item, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.items[id])
	}
	return out
}
