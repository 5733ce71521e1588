package catalog

import (
	"context"

	"github.com/ausmap/geocat-cli/internal/abs"
)

// ABSItem is a statistical catalog entry: an aggregator owns the concept
// selection, and every aggregation pass feeds its merged table through the
// same tabular pipeline as a plain CSV source. The merged region id column is
// named after the region type, so region resolution always succeeds.
type ABSItem struct {
	*CSVItem
	agg     *abs.Aggregator
	pending map[string][]string
}

// NewABSItem creates a statistical catalog item over an aggregator.
func NewABSItem(name string, agg *abs.Aggregator, opts ...CSVOption) *ABSItem {
	return &ABSItem{CSVItem: NewCSVItem(name, opts...), agg: agg}
}

// RestoreSelections defers a saved selection until the concept tree exists.
// It replaces the default selection entirely on the next Load.
func (it *ABSItem) RestoreSelections(selections map[string][]string) {
	it.pending = selections
}

func (it *ABSItem) Kind() Kind { return KindABS }

// Aggregator exposes the underlying selection state.
func (it *ABSItem) Aggregator() *abs.Aggregator { return it.agg }

// Load builds the concept tree on first use and runs the initial aggregation
// pass, which with the default selection yields the dataset's overall totals.
func (it *ABSItem) Load(ctx context.Context) error {
	if it.agg.Tree() == nil {
		if err := it.agg.LoadConceptTree(ctx); err != nil {
			return err
		}
	}
	if it.pending != nil {
		if err := it.applySelections(it.pending); err != nil {
			return err
		}
		it.pending = nil
	}
	return it.Refresh(ctx)
}

// applySelections replaces every concept's active set with the saved one.
func (it *ABSItem) applySelections(selections map[string][]string) error {
	tree := it.agg.Tree()
	for _, concept := range tree.Concepts {
		clearActive(concept.Codes)
		for _, id := range selections[concept.Code] {
			if err := it.agg.SetCodeActive(concept.Code, id, true); err != nil {
				return err
			}
		}
	}
	return nil
}

func clearActive(codes []*abs.Code) {
	for _, code := range codes {
		code.Active = false
		clearActive(code.Children)
	}
}

// SetCodeActive toggles one code selection. The change takes effect on the
// next Refresh; toggles are cheap, passes are not.
func (it *ABSItem) SetCodeActive(concept, code string, active bool) error {
	return it.agg.SetCodeActive(concept, code, active)
}

// Refresh runs an aggregation pass and reloads the tabular presentation from
// its merged output. An empty selection clears the item without touching the
// network.
func (it *ABSItem) Refresh(ctx context.Context) error {
	res, err := it.agg.Aggregate(ctx)
	if err != nil {
		return err
	}
	if !res.HasData {
		it.loaded = false
		it.result = nil
		return nil
	}
	it.rawText = res.CSV
	return it.CSVItem.Load(ctx)
}

// State captures the selection alongside the tabular style so a share
// document reproduces the same aggregation.
func (it *ABSItem) State() ItemState {
	state := it.CSVItem.State()
	state.Kind = it.Kind()
	state.Data = ""
	state.DatasetID = it.agg.DatasetID()
	state.RegionType = it.agg.RegionType()

	if tree := it.agg.Tree(); tree != nil {
		state.Selections = make(map[string][]string)
		for _, codes := range abs.CollectActive(tree) {
			for _, code := range codes {
				state.Selections[code.Concept] = append(state.Selections[code.Concept], code.ID)
			}
		}
	}
	return state
}
