package table

import (
	"encoding/csv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// Dataset is a rectangular table of Variables keyed by column name, with at
// most one column assigned to each semantic role.
type Dataset struct {
	names    []string
	columns  map[string]*Variable
	rowCount int

	// roleAssignment: at most one column per coordinate/time role, plus the
	// active data column driving color display.
	lonColumn    string
	latColumn    string
	altColumn    string
	timeColumn   string
	activeData   string
	regionColumn string
}

// New returns an empty Dataset.
func New() *Dataset {
	return &Dataset{columns: make(map[string]*Variable)}
}

// LoadFromDelimitedText parses header + data rows from delimited text and
// rebuilds the dataset. Line endings are normalized first; the delimiter is
// sniffed from the header row (comma, tab, or semicolon).
func (d *Dataset) LoadFromDelimitedText(text string) error {
	text = normalizeLineEndings(text)
	if strings.TrimSpace(text) == "" {
		return eris.New("table: empty input text")
	}

	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = sniffDelimiter(text)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return eris.Wrap(err, "table: parse delimited text")
	}
	return d.LoadFromRows(rows)
}

// LoadFromRows rebuilds the dataset from pre-split rows, treating row 0 as the
// header. A trailing row shorter than the header (as produced by some upstream
// statistics services) is dropped; other short rows are padded with empty
// cells so every column keeps the same length.
func (d *Dataset) LoadFromRows(rows [][]string) error {
	if len(rows) < 2 {
		return eris.New("table: need a header row and at least one data row")
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(h)
	}

	data := rows[1:]
	if last := data[len(data)-1]; len(last) < len(header) {
		zap.L().Debug("table: dropping short trailing row",
			zap.Int("cells", len(last)),
			zap.Int("columns", len(header)),
		)
		data = data[:len(data)-1]
		if len(data) == 0 {
			return eris.New("table: no data rows after dropping short trailing row")
		}
	}

	d.names = d.names[:0]
	d.columns = make(map[string]*Variable, len(header))
	d.rowCount = len(data)
	d.lonColumn, d.latColumn, d.altColumn, d.timeColumn, d.activeData, d.regionColumn = "", "", "", "", "", ""

	for col, name := range header {
		if name == "" || d.columns[name] != nil {
			continue
		}
		cells := make([]string, len(data))
		for row := range data {
			if col < len(data[row]) {
				cells[row] = data[row][col]
			}
		}
		d.names = append(d.names, name)
		d.columns[name] = d.buildColumn(name, cells)
	}

	if len(d.names) == 0 {
		return eris.New("table: header row has no usable column names")
	}

	d.assignActiveData("")
	return nil
}

// buildColumn constructs one Variable, applying the name-based kind hint and
// recording the first column matched to each coordinate/time role.
func (d *Dataset) buildColumn(name string, cells []string) *Variable {
	switch GuessKindFromName(name) {
	case KindLongitude:
		v := NewCoordinateVariable(name, cells, KindLongitude)
		if d.lonColumn == "" {
			d.lonColumn = name
		}
		return v
	case KindLatitude:
		v := NewCoordinateVariable(name, cells, KindLatitude)
		if d.latColumn == "" {
			d.latColumn = name
		}
		return v
	case KindAltitude:
		v := NewCoordinateVariable(name, cells, KindAltitude)
		if d.altColumn == "" {
			d.altColumn = name
		}
		return v
	case KindTime:
		v := &Variable{Name: name}
		if v.ConvertToTime(cells) && d.timeColumn == "" {
			d.timeColumn = name
		}
		return v
	default:
		return NewVariable(name, cells)
	}
}

func (d *Dataset) assignActiveData(preferred string) {
	if preferred != "" && preferred != d.regionColumn {
		if v, ok := d.columns[preferred]; ok && (v.Kind == KindScalar || v.Kind == KindEnum) {
			d.activeData = preferred
			return
		}
	}
	for _, name := range d.names {
		if name != d.regionColumn && d.columns[name].Kind == KindScalar {
			d.activeData = name
			return
		}
	}
	for _, name := range d.names {
		if name != d.regionColumn && d.columns[name].Kind == KindEnum {
			d.activeData = name
			return
		}
	}
	d.activeData = ""
}

// SetRegionColumn marks a column as holding region identifiers, excluding it
// from active-data selection. The active data column is reassigned if it was
// pointing at the region column.
func (d *Dataset) SetRegionColumn(name string) {
	d.regionColumn = name
	if d.activeData == "" || d.activeData == name {
		d.assignActiveData("")
	}
}

// RegionColumn returns the column marked as holding region identifiers.
func (d *Dataset) RegionColumn() string { return d.regionColumn }

// ResolveActiveVariable sets the active data column, honoring the preferred
// name when it references a scalar or enum column, otherwise falling back to
// the first scalar, then the first enum. Returns the resolved column name.
func (d *Dataset) ResolveActiveVariable(preferred string) string {
	d.assignActiveData(preferred)
	return d.activeData
}

// ActiveVariable returns the column currently driving value display, or nil.
func (d *Dataset) ActiveVariable() *Variable {
	if d.activeData == "" {
		return nil
	}
	return d.columns[d.activeData]
}

// ActiveVariableName returns the name of the active data column.
func (d *Dataset) ActiveVariableName() string { return d.activeData }

// HasCoordinates reports whether both longitude and latitude roles are
// assigned.
func (d *Dataset) HasCoordinates() bool {
	return d.lonColumn != "" && d.latColumn != ""
}

// RowCount returns the number of data rows.
func (d *Dataset) RowCount() int { return d.rowCount }

// ColumnNames returns column names in header order.
func (d *Dataset) ColumnNames() []string { return d.names }

// Column returns the Variable for a column name, or nil.
func (d *Dataset) Column(name string) *Variable { return d.columns[name] }

// LongitudeColumn returns the column assigned the longitude role, or "".
func (d *Dataset) LongitudeColumn() string { return d.lonColumn }

// LatitudeColumn returns the column assigned the latitude role, or "".
func (d *Dataset) LatitudeColumn() string { return d.latColumn }

// TimeColumn returns the column assigned the time role, or "".
func (d *Dataset) TimeColumn() string { return d.timeColumn }

// ReplaceColumn installs a variable under an existing column's name, keeping
// header order. Used when a region-derived numeric code column replaces a
// detected textual region id column.
func (d *Dataset) ReplaceColumn(name string, v *Variable) {
	if _, ok := d.columns[name]; !ok {
		d.names = append(d.names, name)
	}
	d.columns[name] = v
}

// ValueAt returns the decoded value for one cell, or nil when out of range or
// missing.
func (d *Dataset) ValueAt(column string, row int) any {
	v := d.columns[column]
	if v == nil {
		return nil
	}
	return v.DecodedValue(row)
}

// RowAsRecord returns all decoded values of one row keyed by column name.
func (d *Dataset) RowAsRecord(row int) map[string]any {
	if row < 0 || row >= d.rowCount {
		return nil
	}
	rec := make(map[string]any, len(d.names))
	for _, name := range d.names {
		rec[name] = d.columns[name].DecodedValue(row)
	}
	return rec
}

// Extent returns the bounding box derived from longitude/latitude min/max, or
// nil when the dataset has no coordinates or no usable coordinate values.
func (d *Dataset) Extent() *geom.Bounds {
	if !d.HasCoordinates() {
		return nil
	}
	minLon, maxLon, okLon := d.columns[d.lonColumn].MinMax()
	minLat, maxLat, okLat := d.columns[d.latColumn].MinMax()
	if !okLon || !okLat {
		return nil
	}
	b := geom.NewBounds(geom.XY)
	b.Set(minLon, minLat, maxLon, maxLat)
	return b
}

func normalizeLineEndings(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}

// sniffDelimiter picks the delimiter with the most occurrences in the header
// line, preferring comma on ties.
func sniffDelimiter(text string) rune {
	header := text
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		header = text[:i]
	}
	best := ','
	bestCount := strings.Count(header, ",")
	if n := strings.Count(header, "\t"); n > bestCount {
		best, bestCount = '\t', n
	}
	if n := strings.Count(header, ";"); n > bestCount {
		best = ';'
	}
	return best
}
