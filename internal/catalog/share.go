package catalog

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/ausmap/geocat-cli/internal/table"
)

// shareVersion is bumped only when a document written by this version cannot
// be read by the previous one.
const shareVersion = "0.2"

// ItemState is the sharable representation of one catalog item. Reapplying it
// reproduces identical core state: same active variable, gradient, opacity,
// and region mapping, without re-running the inference heuristics differently.
type ItemState struct {
	ID   string `json:"id" yaml:"id"`
	Kind Kind   `json:"kind" yaml:"kind"`
	Name string `json:"name" yaml:"name"`

	// Exactly one of SourceURL or Data is set for tabular items: a reloadable
	// URL, or the delimited text embedded directly.
	SourceURL string `json:"source_url,omitempty" yaml:"source_url,omitempty"`
	Data      string `json:"data,omitempty" yaml:"data,omitempty"`

	ActiveVariable string            `json:"active_variable,omitempty" yaml:"active_variable,omitempty"`
	Opacity        float64           `json:"opacity" yaml:"opacity"`
	GradientStops  []table.ColorStop `json:"gradient_stops,omitempty" yaml:"gradient_stops,omitempty"`

	// RegionType pins the resolved region type so a reload does not depend on
	// re-running resolution.
	RegionType string `json:"region_type,omitempty" yaml:"region_type,omitempty"`

	// ABS selection state: active code ids per concept.
	DatasetID  string              `json:"dataset_id,omitempty" yaml:"dataset_id,omitempty"`
	Selections map[string][]string `json:"selections,omitempty" yaml:"selections,omitempty"`

	// Imagery tile template.
	URLTemplate string `json:"url_template,omitempty" yaml:"url_template,omitempty"`
}

// ShareState is a complete sharable session document.
type ShareState struct {
	Version string      `json:"version" yaml:"version"`
	Items   []ItemState `json:"items" yaml:"items"`
}

// CaptureShare snapshots every item in the catalog.
func CaptureShare(c *Catalog) *ShareState {
	items := c.Items()
	state := &ShareState{Version: shareVersion, Items: make([]ItemState, 0, len(items))}
	for _, item := range items {
		state.Items = append(state.Items, item.State())
	}
	return state
}

// EncodeJSON serializes the share document as indented JSON.
func (s *ShareState) EncodeJSON() ([]byte, error) {
	out, err := json.MarshalIndent(s, "", "  ")
	return out, eris.Wrap(err, "catalog: encode share json")
}

// EncodeYAML serializes the share document as YAML.
func (s *ShareState) EncodeYAML() ([]byte, error) {
	out, err := yaml.Marshal(s)
	return out, eris.Wrap(err, "catalog: encode share yaml")
}

// DecodeShare reads a share document, accepting either JSON or YAML. JSON is
// a YAML subset, so one decoder covers both.
func DecodeShare(data []byte) (*ShareState, error) {
	var state ShareState
	if err := yaml.Unmarshal(data, &state); err != nil {
		return nil, eris.Wrap(err, "catalog: decode share document")
	}
	if state.Version == "" {
		return nil, eris.New("catalog: share document missing version")
	}
	return &state, nil
}
