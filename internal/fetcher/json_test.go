package fetcher

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testCatalogDoc struct {
	Name  string `json:"name"`
	Items []struct {
		Type string `json:"type"`
		URL  string `json:"url"`
	} `json:"items"`
}

func TestDecodeJSONObject(t *testing.T) {
	input := `{"name": "National Data Catalog", "items": [
		{"type": "csv", "url": "https://data.gov.au/postcodes.csv"},
		{"type": "geojson", "url": "https://data.gov.au/boundaries.geojson"}
	]}`

	doc, err := DecodeJSONObject[testCatalogDoc](strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, "National Data Catalog", doc.Name)
	require.Len(t, doc.Items, 2)
	assert.Equal(t, "csv", doc.Items[0].Type)
}

func TestDecodeJSONObject_Malformed(t *testing.T) {
	_, err := DecodeJSONObject[testCatalogDoc](strings.NewReader(`{"name": `))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode object")
}
