package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog_InsertionOrder(t *testing.T) {
	c := NewCatalog()
	first := NewCSVItem("first", WithText("a\n1\n"))
	second := NewImageryItem("second", tileTemplate)
	c.Add(first)
	c.Add(second)

	items := c.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "first", items[0].Name())
	assert.Equal(t, "second", items[1].Name())
}

func TestCatalog_Get(t *testing.T) {
	c := NewCatalog()
	item := NewCSVItem("stations", WithText("a\n1\n"))
	c.Add(item)

	got, err := c.Get(item.ID())
	require.NoError(t, err)
	assert.Equal(t, item.ID(), got.ID())

	_, err = c.Get("missing")
	assert.ErrorContains(t, err, "no item missing")
}

func TestCatalog_AddReplacesKeepingOrder(t *testing.T) {
	c := NewCatalog()
	item := NewCSVItem("stations", WithText("a\n1\n"), WithID("fixed"))
	c.Add(item)
	replacement := NewCSVItem("stations v2", WithText("a\n2\n"), WithID("fixed"))
	c.Add(replacement)

	items := c.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "stations v2", items[0].Name())
}
