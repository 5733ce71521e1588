// Package table implements the typed column and dataset model behind tabular
// catalog items: kind inference, enum remapping, time parsing, and aggregate
// queries used by the region mapping pipeline.
package table

import (
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Kind classifies the semantic role of a column.
type Kind int

const (
	KindScalar Kind = iota
	KindEnum
	KindLongitude
	KindLatitude
	KindAltitude
	KindTime
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindEnum:
		return "enum"
	case KindLongitude:
		return "longitude"
	case KindLatitude:
		return "latitude"
	case KindAltitude:
		return "altitude"
	case KindTime:
		return "time"
	default:
		return "scalar"
	}
}

// NoDataSentinel marks missing or unparseable cells in a Variable's values.
// It substitutes for null/empty input so every column stays rectangular.
const NoDataSentinel = 1e-34

// nameHint maps a column-name fragment to a suggested kind. Order is
// significant: the first matching hint wins.
type nameHint struct {
	fragment string
	kind     Kind
}

var nameHints = []nameHint{
	{"lon", KindLongitude},
	{"lat", KindLatitude},
	{"depth", KindAltitude},
	{"height", KindAltitude},
	{"elevation", KindAltitude},
	{"time", KindTime},
	{"date", KindTime},
	{"year", KindTime},
}

// GuessKindFromName suggests a kind for a column name using the fixed hint
// table. Columns with no matching hint default to scalar. The suggestion is
// advisory: a time hint still requires the column to actually parse as dates.
func GuessKindFromName(name string) Kind {
	for _, h := range nameHints {
		if MatchesName(name, h.fragment) {
			return h.kind
		}
	}
	return KindScalar
}

// MatchesName reports whether a column name matches an alias fragment using
// case-insensitive prefix or word-boundary matching. "lga_code" matches "lga",
// "Postcode" matches "postcode", but "flatness" does not match "lat".
func MatchesName(name, alias string) bool {
	lower := strings.ToLower(strings.TrimSpace(name))
	if lower == alias || strings.HasPrefix(lower, alias) {
		return true
	}
	idx := 0
	for {
		i := strings.Index(lower[idx:], alias)
		if i < 0 {
			return false
		}
		pos := idx + i
		prev := lower[pos-1]
		if !isAlphaNum(prev) {
			return true
		}
		idx = pos + 1
	}
}

func isAlphaNum(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= '0' && c <= '9'
}

// Variable is a single typed column of values, index-aligned with the rows of
// its owning Dataset.
type Variable struct {
	Name string
	Kind Kind

	// Values holds the numeric form of every cell. Missing cells carry
	// NoDataSentinel. Enum columns hold indices into EnumSymbols.
	Values []float64

	// EnumSymbols is the ordered first-seen symbol table for enum columns.
	EnumSymbols []string

	// ParsedTime holds parsed instants for time columns, as a secondary
	// variable of unix-second values aligned with Values.
	ParsedTime *Variable

	// Instants holds the parsed time.Time per row for time columns.
	Instants []time.Time

	min, max    float64
	minMaxKnown bool
	hasData     bool
}

// NewVariable builds a Variable from raw cells, choosing between scalar and
// enum representation. Callers wanting coordinate or time semantics use
// NewCoordinateVariable or ConvertToTime.
func NewVariable(name string, cells []string) *Variable {
	v := &Variable{Name: name, Kind: KindScalar}
	if allNumeric(cells) {
		v.Values = parseNumericCells(cells)
		return v
	}
	v.ConvertToEnum(cells)
	return v
}

// NewCoordinateVariable builds a numeric Variable with a declared coordinate
// kind. Non-numeric cells become NoDataSentinel.
func NewCoordinateVariable(name string, cells []string, kind Kind) *Variable {
	return &Variable{
		Name:   name,
		Kind:   kind,
		Values: parseNumericCells(cells),
	}
}

func allNumeric(cells []string) bool {
	for _, c := range cells {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, err := strconv.ParseFloat(c, 64); err != nil {
			return false
		}
	}
	return true
}

func parseNumericCells(cells []string) []float64 {
	vals := make([]float64, len(cells))
	for i, c := range cells {
		c = strings.TrimSpace(c)
		if c == "" {
			vals[i] = NoDataSentinel
			continue
		}
		f, err := strconv.ParseFloat(c, 64)
		if err != nil {
			vals[i] = NoDataSentinel
			continue
		}
		vals[i] = f
	}
	return vals
}

// ConvertToEnum rewrites the column as an enum: Values become indices into a
// deterministic first-seen-order symbol table.
func (v *Variable) ConvertToEnum(cells []string) {
	v.Kind = KindEnum
	v.EnumSymbols = v.EnumSymbols[:0]
	v.Values = make([]float64, len(cells))
	seen := make(map[string]int)
	for i, c := range cells {
		idx, ok := seen[c]
		if !ok {
			idx = len(v.EnumSymbols)
			seen[c] = idx
			v.EnumSymbols = append(v.EnumSymbols, c)
		}
		v.Values[i] = float64(idx)
	}
	v.minMaxKnown = false
}

// dateStrategy attempts to parse one cell. Strategies are tried in order over
// the whole column; the first strategy that parses every non-empty cell wins.
type dateStrategy struct {
	name  string
	parse func(string) (time.Time, bool)
}

var dateStrategies = []dateStrategy{
	{"iso8601", parseISODate},
	{"slash-date", parseSlashDate},
	{"slash-date-swapped", parseSlashDateSwapped},
}

func parseISODate(s string) (time.Time, bool) {
	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
		"2006-01",
		"2006",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseSlashDate(s string) (time.Time, bool) {
	for _, layout := range []string{"1/2/2006 15:04:05", "1/2/2006 15:04", "1/2/2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseSlashDateSwapped(s string) (time.Time, bool) {
	for _, layout := range []string{"2/1/2006 15:04:05", "2/1/2006 15:04", "2/1/2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ConvertToTime attempts to parse the column as dates. On success the variable
// becomes a time column with ParsedTime populated; on total failure the column
// silently degrades to scalar or enum and the failure is logged. Callers must
// not assume the conversion succeeded just because the column name hinted at
// time.
func (v *Variable) ConvertToTime(cells []string) bool {
	for _, strat := range dateStrategies {
		instants, ok := tryStrategy(strat, cells)
		if !ok {
			continue
		}
		v.Kind = KindTime
		v.Instants = instants
		parsed := &Variable{Name: v.Name + " (parsed)", Kind: KindScalar}
		parsed.Values = make([]float64, len(instants))
		for i, t := range instants {
			if t.IsZero() {
				parsed.Values[i] = NoDataSentinel
				continue
			}
			parsed.Values[i] = float64(t.Unix())
		}
		v.ParsedTime = parsed
		if v.Values == nil {
			v.Values = parsed.Values
		}
		return true
	}

	zap.L().Debug("table: column failed all date strategies, degrading to scalar",
		zap.String("column", v.Name),
	)
	if allNumeric(cells) {
		v.Kind = KindScalar
		v.Values = parseNumericCells(cells)
	} else {
		v.ConvertToEnum(cells)
	}
	return false
}

func tryStrategy(strat dateStrategy, cells []string) ([]time.Time, bool) {
	instants := make([]time.Time, len(cells))
	for i, c := range cells {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		t, ok := strat.parse(c)
		if !ok {
			return nil, false
		}
		instants[i] = t
	}
	return instants, true
}

// MinMax returns the minimum and maximum over non-missing values, computing
// them on first use. Time columns report the range of parsed instants. The
// second return is false when the column holds no usable values.
func (v *Variable) MinMax() (float64, float64, bool) {
	if v.Kind == KindTime && v.ParsedTime != nil {
		return v.ParsedTime.MinMax()
	}
	if !v.minMaxKnown {
		v.computeMinMax()
	}
	return v.min, v.max, v.hasData
}

func (v *Variable) computeMinMax() {
	v.minMaxKnown = true
	v.hasData = false
	for _, f := range v.Values {
		if f == NoDataSentinel {
			continue
		}
		if !v.hasData {
			v.min, v.max = f, f
			v.hasData = true
			continue
		}
		if f < v.min {
			v.min = f
		}
		if f > v.max {
			v.max = f
		}
	}
}

// DecodedValue returns the presentation value for one row: enum columns decode
// through the symbol table, time columns return the parsed instant, scalars
// return the raw number. Missing cells return nil.
func (v *Variable) DecodedValue(row int) any {
	if row < 0 || row >= len(v.Values) {
		return nil
	}
	switch v.Kind {
	case KindEnum:
		idx := int(v.Values[row])
		if idx >= 0 && idx < len(v.EnumSymbols) {
			return v.EnumSymbols[idx]
		}
		return nil
	case KindTime:
		if v.Instants != nil && !v.Instants[row].IsZero() {
			return v.Instants[row]
		}
		return nil
	default:
		if v.Values[row] == NoDataSentinel {
			return nil
		}
		return v.Values[row]
	}
}
