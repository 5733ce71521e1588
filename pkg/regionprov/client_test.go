package regionprov

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleValueCollection = `<?xml version="1.0" encoding="UTF-8"?>
<wfs:ValueCollection xmlns:wfs="http://www.opengis.net/wfs/2.0" xmlns:region_map="http://region_map">
  <wfs:member><region_map:POA_CODE>2600</region_map:POA_CODE></wfs:member>
  <wfs:member><region_map:POA_CODE>2601</region_map:POA_CODE></wfs:member>
  <wfs:member><region_map:POA_CODE>2602</region_map:POA_CODE></wfs:member>
</wfs:ValueCollection>`

func TestEnumerateIDs_ParsesMembersInOrder(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "text/xml")
		_, _ = io.WriteString(w, sampleValueCollection)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithRateLimit(1000))
	ids, err := c.EnumerateIDs(context.Background(), "region_map:FID_POA_2011_AUST", "POA_CODE")
	require.NoError(t, err)
	assert.Equal(t, []int{2600, 2601, 2602}, ids)

	assert.Contains(t, gotQuery, "request=GetPropertyValue")
	assert.Contains(t, gotQuery, "typenames=region_map%3AFID_POA_2011_AUST")
	assert.Contains(t, gotQuery, "valueReference=POA_CODE")
}

func TestEnumerateIDs_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	_, err := c.EnumerateIDs(context.Background(), "ds", "id")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestParseValueCollection_SkipsNonNumeric(t *testing.T) {
	body := `<vc xmlns:w="http://x">
  <member><code>100</code></member>
  <member><code>n/a</code></member>
  <member><code>200</code></member>
</vc>`
	ids, err := parseValueCollection([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, []int{100, 200}, ids)
}

func TestParseValueCollection_Empty(t *testing.T) {
	ids, err := parseValueCollection([]byte(`<vc></vc>`))
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestParseValueCollection_Malformed(t *testing.T) {
	_, err := parseValueCollection([]byte(`<vc><member>`))
	require.Error(t, err)
}
