package catalog

import (
	"context"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ausmap/geocat-cli/internal/abs"
	"github.com/ausmap/geocat-cli/pkg/absapi"
)

// fakeABS serves canned concept trees and query payloads by URL.
type fakeABS struct {
	concepts []string
	codes    map[string][]absapi.CodeEntry
	data     map[string]string
}

func (f *fakeABS) GetDatasetConcepts(_ context.Context, _ string) ([]string, error) {
	return f.concepts, nil
}

func (f *fakeABS) GetCodeListValue(_ context.Context, _, concept string) ([]absapi.CodeEntry, error) {
	return f.codes[concept], nil
}

func (f *fakeABS) DataURL(datasetID string, and []string) string {
	return "test://" + datasetID + "?" + strings.Join(and, ",")
}

func (f *fakeABS) GetGenericData(_ context.Context, dataURL string) (string, error) {
	payload, ok := f.data[dataURL]
	if !ok {
		return "", eris.Errorf("no fixture for %s", dataURL)
	}
	return payload, nil
}

func censusABS() *fakeABS {
	return &fakeABS{
		concepts: []string{"AGE", "REGION", "REGIONTYPE", "FREQUENCY"},
		codes: map[string][]absapi.CodeEntry{
			"AGE": {
				{Code: "TT", Description: "All ages"},
				{Code: "A04", Description: "0 to 4 years", ParentCode: "TT"},
			},
		},
		data: map[string]string{
			"test://CENSUS?REGIONTYPE.POA,AGE.TT":  "REGION,Value\n2600,5\n2601,9\n",
			"test://CENSUS?REGIONTYPE.POA,AGE.A04": "REGION,Value\n2600,1\n2601,2\n",
		},
	}
}

func TestABSItem_LoadAggregatesAndMapsRegions(t *testing.T) {
	imagery := &RecordingLayer{}
	agg := abs.NewAggregator(censusABS(), "CENSUS", "POA")
	item := NewABSItem("census ages", agg,
		WithMapper(postcodeMapper()),
		WithImageryLayer(imagery),
	)
	require.NoError(t, item.Load(context.Background()))

	assert.Equal(t, KindABS, item.Kind())
	require.NotNil(t, item.RegionMatch())
	assert.Equal(t, "POA", item.RegionMatch().Descriptor.Code, "merged region column resolves by region type")
	require.NotNil(t, imagery.Lookup)

	rec, ok := item.DescribeRow(2601)
	require.True(t, ok)
	assert.Equal(t, 9.0, rec["Total"])
}

func TestABSItem_SelectionChangeTakesEffectOnRefresh(t *testing.T) {
	agg := abs.NewAggregator(censusABS(), "CENSUS", "POA")
	item := NewABSItem("census ages", agg, WithMapper(postcodeMapper()))
	require.NoError(t, item.Load(context.Background()))

	require.NoError(t, item.SetCodeActive("AGE", "TT", false))
	require.NoError(t, item.SetCodeActive("AGE", "A04", true))
	require.NoError(t, item.Refresh(context.Background()))

	rec, ok := item.DescribeRow(2600)
	require.True(t, ok)
	assert.Equal(t, 1.0, rec["Total"])
}

func TestABSItem_EmptySelectionClearsWithoutFetching(t *testing.T) {
	client := censusABS()
	agg := abs.NewAggregator(client, "CENSUS", "POA")
	item := NewABSItem("census ages", agg, WithMapper(postcodeMapper()))
	require.NoError(t, item.Load(context.Background()))

	require.NoError(t, item.SetCodeActive("AGE", "TT", false))
	require.NoError(t, item.Refresh(context.Background()))

	assert.Nil(t, item.MapResult())
	_, ok := item.DescribeRow(2600)
	assert.False(t, ok)
}

func TestABSItem_RestoreSelectionsReplacesDefaults(t *testing.T) {
	agg := abs.NewAggregator(censusABS(), "CENSUS", "POA")
	item := NewABSItem("census ages", agg, WithMapper(postcodeMapper()))
	item.RestoreSelections(map[string][]string{"AGE": {"A04"}})
	require.NoError(t, item.Load(context.Background()))

	state := item.State()
	assert.Equal(t, map[string][]string{"AGE": {"A04"}}, state.Selections)

	rec, ok := item.DescribeRow(2601)
	require.True(t, ok)
	assert.Equal(t, 2.0, rec["Total"])
}

func TestABSItem_StateCapturesSelection(t *testing.T) {
	agg := abs.NewAggregator(censusABS(), "CENSUS", "POA")
	item := NewABSItem("census ages", agg, WithMapper(postcodeMapper()))
	require.NoError(t, item.Load(context.Background()))

	state := item.State()
	assert.Equal(t, KindABS, state.Kind)
	assert.Equal(t, "CENSUS", state.DatasetID)
	assert.Equal(t, "POA", state.RegionType)
	assert.Equal(t, map[string][]string{"AGE": {"TT"}}, state.Selections)
	assert.Empty(t, state.Data, "aggregated text is derived, never embedded")
}
