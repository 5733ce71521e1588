package abs

import (
	"context"
	"encoding/csv"
	"strconv"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ausmap/geocat-cli/pkg/absapi"
)

// State tracks where the aggregator is in its lifecycle. Transitions only
// move forward within a pass; a finished or cleared pass returns to Ready.
type State int

const (
	StateUninitialized State = iota
	StateLoadingConcepts
	StateReady
	StateBuildingQueries
	StateFetching
	StateAggregating
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoadingConcepts:
		return "loading-concepts"
	case StateReady:
		return "ready"
	case StateBuildingQueries:
		return "building-queries"
	case StateFetching:
		return "fetching"
	case StateAggregating:
		return "aggregating"
	default:
		return "unknown"
	}
}

// hiddenConcepts are query dimensions the aggregator manages itself or that
// have no meaning as user selections; they never appear in the concept tree.
var hiddenConcepts = map[string]bool{
	"REGION":     true,
	"REGIONTYPE": true,
	"STATE":      true,
	"FREQUENCY":  true,
}

// Result is the outcome of one aggregation pass.
type Result struct {
	// CSV is the merged table: region id column named after the region type,
	// a Total column, and one named column per combination beyond the first.
	CSV string

	// Queries is the number of cross-product combinations in the pass.
	Queries int

	// Fetched is how many of those combinations required a network fetch;
	// the rest were served from the session cache.
	Fetched int

	// HasData is false when the selection was empty and no pass ran.
	HasData bool
}

// Aggregator owns the concept selection tree for one statistical dataset and
// turns the active selection into a merged region/Total table. Query results
// are cached by URL for the aggregator's lifetime, so repeated passes over
// overlapping selections only fetch what is new.
type Aggregator struct {
	client      absapi.Client
	datasetID   string
	regionType  string
	concurrency int
	log         *zap.Logger

	state State
	tree  *ConceptTree

	cacheMu    sync.Mutex
	queryCache map[string]string
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithConcurrency sets the maximum number of in-flight data queries.
func WithConcurrency(n int) AggregatorOption {
	return func(a *Aggregator) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// NewAggregator creates an aggregator for one dataset and region type. The
// region type (for example "SA4" or "POA") scopes every query and names the
// region id column of the merged output.
func NewAggregator(client absapi.Client, datasetID, regionType string, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		client:      client,
		datasetID:   datasetID,
		regionType:  regionType,
		concurrency: 6,
		log:         zap.L().With(zap.String("component", "abs"), zap.String("dataset", datasetID)),
		state:       StateUninitialized,
		queryCache:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// State returns the aggregator's current lifecycle state.
func (a *Aggregator) State() State { return a.state }

// Tree returns the concept tree, or nil before LoadConceptTree succeeds.
func (a *Aggregator) Tree() *ConceptTree { return a.tree }

// DatasetID returns the dataset this aggregator queries.
func (a *Aggregator) DatasetID() string { return a.datasetID }

// RegionType returns the region type scoping every query.
func (a *Aggregator) RegionType() string { return a.regionType }

// LoadConceptTree discovers the dataset's selectable concepts, fetches each
// code list, and builds the selection tree. The first root code of every
// concept starts active so a fresh aggregator produces the dataset's overall
// totals without any user selection.
func (a *Aggregator) LoadConceptTree(ctx context.Context) error {
	a.state = StateLoadingConcepts

	concepts, err := a.client.GetDatasetConcepts(ctx, a.datasetID)
	if err != nil {
		a.state = StateUninitialized
		return eris.Wrap(err, "abs: load concepts")
	}

	tree := &ConceptTree{}
	for _, code := range concepts {
		if hiddenConcepts[strings.ToUpper(code)] {
			continue
		}

		entries, err := a.client.GetCodeListValue(ctx, a.datasetID, code)
		if err != nil {
			a.state = StateUninitialized
			return eris.Wrapf(err, "abs: load code list %s", code)
		}
		if len(entries) == 0 {
			a.log.Debug("concept has no codes, skipping", zap.String("concept", code))
			continue
		}

		concept := BuildConcept(code, code, entries)
		if len(concept.Codes) > 0 {
			concept.Codes[0].Active = true
		}
		tree.Concepts = append(tree.Concepts, concept)
	}

	a.tree = tree
	a.state = StateReady
	a.log.Info("concept tree loaded", zap.Int("concepts", len(tree.Concepts)))
	return nil
}

// SetCodeActive activates or deactivates one code of one concept.
func (a *Aggregator) SetCodeActive(conceptCode, codeID string, active bool) error {
	if a.tree == nil {
		return eris.New("abs: concept tree not loaded")
	}
	concept := a.tree.Concept(conceptCode)
	if concept == nil {
		return eris.Errorf("abs: unknown concept %s", conceptCode)
	}
	code := concept.FindCode(codeID)
	if code == nil {
		return eris.Errorf("abs: unknown code %s in concept %s", codeID, conceptCode)
	}
	code.Active = active
	return nil
}

// Aggregate runs one pass: collect the active selection, expand it into a
// cross-product of queries, fetch whatever the session cache does not hold,
// and merge the results into a single table. If any concept has no active
// code the selection cannot produce data and the pass returns without
// touching the network. A pass is all-or-nothing: one failed fetch fails the
// pass, though results that did arrive stay cached for the next one.
func (a *Aggregator) Aggregate(ctx context.Context) (*Result, error) {
	if a.tree == nil {
		return nil, eris.New("abs: concept tree not loaded")
	}

	a.state = StateBuildingQueries
	perConcept := CollectActive(a.tree)
	for i, codes := range perConcept {
		if len(codes) == 0 {
			a.log.Debug("no active codes, skipping pass",
				zap.String("concept", a.tree.Concepts[i].Code))
			a.state = StateReady
			return &Result{HasData: false}, nil
		}
	}

	combos := CrossProduct(perConcept)
	urls := make([]string, len(combos))
	for i, combo := range combos {
		urls[i] = a.client.DataURL(a.datasetID, a.andClauses(combo))
	}

	fetched, err := a.fetchMissing(ctx, urls)
	if err != nil {
		a.state = StateReady
		return nil, err
	}

	a.state = StateAggregating
	merged, err := a.merge(combos, urls)
	if err != nil {
		a.state = StateReady
		return nil, err
	}

	a.state = StateReady
	a.log.Info("aggregation pass complete",
		zap.Int("queries", len(combos)), zap.Int("fetched", fetched))
	return &Result{
		CSV:     merged,
		Queries: len(combos),
		Fetched: fetched,
		HasData: true,
	}, nil
}

// ClearCache drops every cached query result.
func (a *Aggregator) ClearCache() {
	a.cacheMu.Lock()
	defer a.cacheMu.Unlock()
	a.queryCache = make(map[string]string)
}

// andClauses builds the filter list for one combination: the region type
// scope first, then each active code as concept.code, in concept order.
func (a *Aggregator) andClauses(combo []ActiveCode) []string {
	clauses := make([]string, 0, len(combo)+1)
	clauses = append(clauses, "REGIONTYPE."+a.regionType)
	for _, code := range combo {
		clauses = append(clauses, code.Concept+"."+code.ID)
	}
	return clauses
}

// fetchMissing downloads every URL not already in the session cache,
// bounded-concurrently, and returns how many fetches ran. Completed results
// enter the cache as they arrive so a later pass reuses them even when this
// one fails.
func (a *Aggregator) fetchMissing(ctx context.Context, urls []string) (int, error) {
	var missing []string
	seen := make(map[string]bool, len(urls))
	a.cacheMu.Lock()
	for _, u := range urls {
		if _, ok := a.queryCache[u]; !ok && !seen[u] {
			missing = append(missing, u)
			seen[u] = true
		}
	}
	a.cacheMu.Unlock()

	if len(missing) == 0 {
		return 0, nil
	}

	a.state = StateFetching
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for _, u := range missing {
		g.Go(func() error {
			text, err := a.client.GetGenericData(gctx, u)
			if err != nil {
				return eris.Wrap(err, "abs: data query")
			}
			a.cacheMu.Lock()
			a.queryCache[u] = text
			a.cacheMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return len(missing), nil
}

// merge combines the cached result of every combination into one table. The
// first result seeds the output: its region column is renamed to the region
// type and its Value column becomes Total. Each later result appends its
// values as a column named for the combination and adds them into Total.
// Results are index-aligned, so a row-count mismatch fails the pass rather
// than mis-summing.
func (a *Aggregator) merge(combos [][]ActiveCode, urls []string) (string, error) {
	type column struct {
		name   string
		values []float64
	}

	var regions []string
	var total []float64
	var extras []column

	a.cacheMu.Lock()
	defer a.cacheMu.Unlock()

	for i, u := range urls {
		text, ok := a.queryCache[u]
		if !ok {
			return "", eris.Errorf("abs: missing cached result for combination %d", i)
		}

		regionCol, values, err := parseQueryResult(text)
		if err != nil {
			return "", eris.Wrapf(err, "abs: parse result for combination %d", i)
		}

		if i == 0 {
			regions = regionCol
			total = make([]float64, len(values))
			copy(total, values)
			continue
		}

		if len(values) != len(total) {
			return "", eris.Errorf("abs: combination %d returned %d rows, expected %d",
				i, len(values), len(total))
		}
		for j, v := range values {
			total[j] += v
		}
		extras = append(extras, column{name: comboName(combos[i]), values: values})
	}

	var sb strings.Builder
	w := csv.NewWriter(&sb)

	header := []string{a.regionType, "Total"}
	for _, col := range extras {
		header = append(header, col.name)
	}
	if err := w.Write(header); err != nil {
		return "", eris.Wrap(err, "abs: write header")
	}

	for row := range regions {
		record := make([]string, 0, 2+len(extras))
		record = append(record, regions[row], formatValue(total[row]))
		for _, col := range extras {
			record = append(record, formatValue(col.values[row]))
		}
		if err := w.Write(record); err != nil {
			return "", eris.Wrap(err, "abs: write row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", eris.Wrap(err, "abs: serialize")
	}
	return sb.String(), nil
}

// comboName is the display name of one combination: the active code names
// joined in concept order.
func comboName(combo []ActiveCode) string {
	names := make([]string, len(combo))
	for i, code := range combo {
		names[i] = code.Name
	}
	return strings.Join(names, " ")
}

// parseQueryResult extracts the region id and Value columns from one query's
// delimited text. The region column is the header containing "REGION", or
// the first column when none does; the value column is the header "Value".
// Unparseable values count as zero.
func parseQueryResult(text string) ([]string, []float64, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, nil, eris.Wrap(err, "read csv")
	}
	if len(rows) < 2 {
		return nil, nil, eris.New("result has no data rows")
	}

	header := rows[0]
	regionIdx := 0
	valueIdx := -1
	for i, name := range header {
		if strings.Contains(strings.ToUpper(name), "REGION") {
			regionIdx = i
		}
		if strings.EqualFold(name, "Value") {
			valueIdx = i
		}
	}
	if valueIdx < 0 {
		return nil, nil, eris.New("result has no Value column")
	}

	regions := make([]string, 0, len(rows)-1)
	values := make([]float64, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) <= regionIdx || len(row) <= valueIdx {
			continue
		}
		regions = append(regions, row[regionIdx])
		v, convErr := strconv.ParseFloat(strings.TrimSpace(row[valueIdx]), 64)
		if convErr != nil {
			v = 0
		}
		values = append(values, v)
	}
	return regions, values, nil
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
