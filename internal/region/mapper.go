package region

import (
	"context"
	"image/color"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ausmap/geocat-cli/internal/table"
)

// ErrUnresolved reports that a dataset has no coordinates and no column
// resolvable against any known region type. Callers distinguish it from
// generic load failures via eris.Is.
var ErrUnresolved = eris.New("region: no location data and no resolvable region type")

// fallbackColumn is the column name checked by the digit-count fallback when
// no alias matches. ABS census extracts encode the region type in this
// column's value prefix or digit count.
const fallbackColumn = "region_id"

// Match records the resolved region type and the dataset column holding
// region identifiers.
type Match struct {
	Descriptor Descriptor
	Column     string
}

// Mapper resolves datasets against a registry and builds choropleth lookups.
// The registry is immutable; the identifier cache is owned by whoever
// composes the pipeline.
type Mapper struct {
	registry *Registry
	ids      *IDCache
}

// NewMapper builds a Mapper over an explicit registry and identifier cache.
func NewMapper(registry *Registry, ids *IDCache) *Mapper {
	return &Mapper{registry: registry, ids: ids}
}

// Registry returns the mapper's descriptor table.
func (m *Mapper) Registry() *Registry { return m.registry }

// Resolve determines which region type a dataset's rows correspond to.
// Column-name alias matching runs first, in registry declaration order; the
// digit-count fallback on a literal "region_id" column runs second. Failure
// returns ErrUnresolved.
func (m *Mapper) Resolve(ds *table.Dataset) (*Match, error) {
	// Step 1: column-name matching. First descriptor with a matching column
	// wins; ties between descriptors go to the earlier-declared one.
	for _, d := range m.registry.Descriptors() {
		for _, col := range ds.ColumnNames() {
			for _, alias := range d.Aliases {
				if table.MatchesName(col, alias) {
					zap.L().Debug("region: resolved by column name",
						zap.String("region", d.Code),
						zap.String("column", col),
					)
					ds.SetRegionColumn(col)
					return &Match{Descriptor: d, Column: col}, nil
				}
			}
		}
	}

	// Step 2: digit-count fallback on a bare region_id column.
	for _, col := range ds.ColumnNames() {
		if !strings.EqualFold(strings.TrimSpace(col), fallbackColumn) {
			continue
		}
		sample := sampleCell(ds, col)
		if sample == "" {
			continue
		}

		// Codes like "SA412345" carry the region type as a letter prefix.
		prefix, digits := splitCodePrefix(sample)
		if prefix != "" {
			if d, ok := m.registry.ByCode(strings.ToUpper(prefix)); ok {
				ds.SetRegionColumn(col)
				return &Match{Descriptor: d, Column: col}, nil
			}
		}

		// Purely numeric codes: match the digit count against each
		// descriptor; first declared match wins.
		for _, d := range m.registry.Descriptors() {
			if d.Digits == len(digits) && len(digits) > 0 {
				ds.SetRegionColumn(col)
				return &Match{Descriptor: d, Column: col}, nil
			}
		}
	}

	return nil, eris.Wrap(ErrUnresolved, "region: resolve dataset")
}

// ResolveAs pins the region type to a known descriptor code instead of
// running resolution order, used when a saved override names the type. The
// identifier column is still located from the pinned descriptor's aliases,
// falling back to a literal region_id column regardless of digit count.
func (m *Mapper) ResolveAs(ds *table.Dataset, code string) (*Match, error) {
	d, ok := m.registry.ByCode(strings.ToUpper(strings.TrimSpace(code)))
	if !ok {
		return nil, eris.Errorf("region: unknown region type %q", code)
	}

	for _, col := range ds.ColumnNames() {
		for _, alias := range d.Aliases {
			if table.MatchesName(col, alias) {
				ds.SetRegionColumn(col)
				return &Match{Descriptor: d, Column: col}, nil
			}
		}
	}

	for _, col := range ds.ColumnNames() {
		if strings.EqualFold(strings.TrimSpace(col), fallbackColumn) {
			ds.SetRegionColumn(col)
			return &Match{Descriptor: d, Column: col}, nil
		}
	}

	return nil, eris.Wrapf(ErrUnresolved, "region: no identifier column for pinned type %s", d.Code)
}

// MapResult holds the per-slot colors and row lookups for one pass of the
// choropleth build. Slots follow the identifier table's order.
type MapResult struct {
	Match *Match

	ids        []int
	slotColors []color.RGBA
	slotMapped []bool
	rowByCode  map[int]int

	// Mapped and Total expose the join outcome so callers can surface
	// partial-join diagnostics; unmatched rows are dropped, not errors.
	Mapped int
	Total  int
}

// Build fetches (or reuses) the identifier table for a resolved match and
// maps every dataset row to its slot, writing the active variable's gradient
// color. Style-only changes re-run Build with the same match; the identifier
// table is cached and not refetched.
func (m *Mapper) Build(ctx context.Context, ds *table.Dataset, match *Match, gradient table.Gradient, opacity float64) (*MapResult, error) {
	ids, err := m.ids.IDs(ctx, match.Descriptor)
	if err != nil {
		return nil, err
	}

	active := ds.ActiveVariable()
	if active == nil {
		return nil, eris.New("region: dataset has no active data column")
	}
	min, max, _ := active.MinMax()

	codeColumn := ds.Column(match.Column)
	if codeColumn == nil {
		return nil, eris.Errorf("region: matched column %q missing from dataset", match.Column)
	}
	installNumericCodes(ds, match.Column, codeColumn)
	codeColumn = ds.Column(match.Column)

	slotByCode := make(map[int]int, len(ids))
	for slot, id := range ids {
		slotByCode[id] = slot
	}

	result := &MapResult{
		Match:      match,
		ids:        ids,
		slotColors: make([]color.RGBA, len(ids)),
		slotMapped: make([]bool, len(ids)),
		rowByCode:  make(map[int]int, ds.RowCount()),
		Total:      ds.RowCount(),
	}

	for row := 0; row < ds.RowCount(); row++ {
		code, ok := rowCode(codeColumn, row)
		if !ok {
			continue
		}
		slot, found := slotByCode[code]
		if !found {
			// Known-lossy: codes absent from the identifier table are
			// silently dropped per row.
			continue
		}
		c := gradient.ColorFor(active.Values[row], min, max)
		result.slotColors[slot] = table.WithOpacity(c, opacity)
		result.slotMapped[slot] = true
		result.rowByCode[code] = row
		result.Mapped++
	}

	if unmapped := result.Total - result.Mapped; unmapped > 0 {
		zap.L().Warn("region: rows not matched to identifier table",
			zap.String("region", match.Descriptor.Code),
			zap.Int("unmapped", unmapped),
			zap.Int("total", result.Total),
		)
	}

	return result, nil
}

// ColorFunc returns the slot-index to RGBA lookup handed to the rendering
// layer. Slots with no mapped row return false, leaving the pixel untouched.
func (r *MapResult) ColorFunc() func(slot int) (color.RGBA, bool) {
	return func(slot int) (color.RGBA, bool) {
		if slot < 0 || slot >= len(r.slotColors) || !r.slotMapped[slot] {
			return color.RGBA{}, false
		}
		return r.slotColors[slot], true
	}
}

// RowFunc returns the region-code to row-record lookup consumed by feature
// description popups.
func (r *MapResult) RowFunc(ds *table.Dataset) func(code int) (map[string]any, bool) {
	return func(code int) (map[string]any, bool) {
		row, ok := r.rowByCode[code]
		if !ok {
			return nil, false
		}
		return ds.RowAsRecord(row), true
	}
}

// IDs returns the identifier table backing this result.
func (r *MapResult) IDs() []int { return r.ids }

// SlotFromPixel decodes a slot index from a rasterized tile pixel whose green
// and blue channels encode the index (green*256 + blue).
func SlotFromPixel(c color.RGBA) int {
	return int(c.G)*256 + int(c.B)
}

// installNumericCodes replaces a textual region id column with a scalar
// pseudo-column of parsed numeric codes, so downstream accessors see numbers.
func installNumericCodes(ds *table.Dataset, name string, v *table.Variable) {
	if v.Kind != table.KindEnum {
		return
	}
	numeric := &table.Variable{Name: name, Kind: table.KindScalar, Values: make([]float64, len(v.Values))}
	for row := range v.Values {
		code, ok := rowCode(v, row)
		if !ok {
			numeric.Values[row] = table.NoDataSentinel
			continue
		}
		numeric.Values[row] = float64(code)
	}
	ds.ReplaceColumn(name, numeric)
}

// rowCode extracts the numeric region code for one row, stripping any letter
// prefix from textual codes.
func rowCode(v *table.Variable, row int) (int, bool) {
	switch v.Kind {
	case table.KindEnum:
		raw, _ := v.DecodedValue(row).(string)
		_, digits := splitCodePrefix(raw)
		if digits == "" {
			return 0, false
		}
		code, err := strconv.Atoi(digits)
		if err != nil {
			return 0, false
		}
		return code, true
	default:
		if row < 0 || row >= len(v.Values) || v.Values[row] == table.NoDataSentinel {
			return 0, false
		}
		return int(v.Values[row]), true
	}
}

// splitCodePrefix splits a region code like "SA412345" into its letter prefix
// and digit tail. Purely numeric codes return an empty prefix.
func splitCodePrefix(code string) (prefix, digits string) {
	code = strings.TrimSpace(code)
	i := 0
	for i < len(code) && !isDigit(code[i]) {
		i++
	}
	return code[:i], code[i:]
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// sampleCell returns the first non-empty cell of a column as a string.
func sampleCell(ds *table.Dataset, col string) string {
	v := ds.Column(col)
	if v == nil {
		return ""
	}
	for row := 0; row < ds.RowCount(); row++ {
		switch val := v.DecodedValue(row).(type) {
		case string:
			if s := strings.TrimSpace(val); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(val, 'f', -1, 64)
		}
	}
	return ""
}
