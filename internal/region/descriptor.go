// Package region resolves tabular datasets against known geographic region
// partitions and builds the per-region color and row lookups used to paint a
// choropleth.
package region

// Descriptor describes one known region scheme: its identifier code, the
// remote dataset and property that enumerate its canonical identifiers, the
// column-name aliases used for sniffing, and the digit count of its bare
// numeric codes.
type Descriptor struct {
	// Code is the region-type code, e.g. "POA".
	Code string
	// ServerDataset is the remote dataset name holding the region boundaries.
	ServerDataset string
	// IDProperty is the property enumerated to obtain the identifier list.
	IDProperty string
	// Aliases are column-name fragments matched against dataset headers.
	Aliases []string
	// Digits is the expected digit count of a bare numeric region code, used
	// as a fallback discriminator when no column name matches.
	Digits int
}

// Registry is an immutable ordered set of descriptors. Declaration order is
// significant: when two descriptors both match, the earlier one wins.
type Registry struct {
	descriptors []Descriptor
}

// NewRegistry builds a registry preserving descriptor order.
func NewRegistry(descriptors ...Descriptor) *Registry {
	ds := make([]Descriptor, len(descriptors))
	copy(ds, descriptors)
	return &Registry{descriptors: ds}
}

// Descriptors returns descriptors in declaration order.
func (r *Registry) Descriptors() []Descriptor { return r.descriptors }

// ByCode returns the descriptor with the given region-type code.
func (r *Registry) ByCode(code string) (Descriptor, bool) {
	for _, d := range r.descriptors {
		if d.Code == code {
			return d, true
		}
	}
	return Descriptor{}, false
}

// DefaultRegistry returns the standard Australian statistical geography
// region set. Order matters: LGA is declared before SA3 so five-digit bare
// codes resolve to LGA.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Descriptor{
			Code:          "STE",
			ServerDataset: "region_map:FID_STE_2011_AUST",
			IDProperty:    "STE_CODE11",
			Aliases:       []string{"ste", "state"},
			Digits:        1,
		},
		Descriptor{
			Code:          "POA",
			ServerDataset: "region_map:FID_POA_2011_AUST",
			IDProperty:    "POA_CODE",
			Aliases:       []string{"poa", "postcode", "pcode"},
			Digits:        4,
		},
		Descriptor{
			Code:          "LGA",
			ServerDataset: "region_map:FID_LGA_2011_AUST",
			IDProperty:    "LGA_CODE11",
			Aliases:       []string{"lga"},
			Digits:        5,
		},
		Descriptor{
			Code:          "SA4",
			ServerDataset: "region_map:FID_SA4_2011_AUST",
			IDProperty:    "SA4_CODE11",
			Aliases:       []string{"sa4"},
			Digits:        3,
		},
		Descriptor{
			Code:          "SA3",
			ServerDataset: "region_map:FID_SA3_2011_AUST",
			IDProperty:    "SA3_CODE11",
			Aliases:       []string{"sa3"},
			Digits:        5,
		},
		Descriptor{
			Code:          "SA2",
			ServerDataset: "region_map:FID_SA2_2011_AUST",
			IDProperty:    "SA2_MAIN11",
			Aliases:       []string{"sa2"},
			Digits:        9,
		},
		Descriptor{
			Code:          "SA1",
			ServerDataset: "region_map:FID_SA1_2011_AUST",
			IDProperty:    "SA1_7DIG11",
			Aliases:       []string{"sa1"},
			Digits:        11,
		},
		Descriptor{
			Code:          "CED",
			ServerDataset: "region_map:FID_CED_2011_AUST",
			IDProperty:    "CED_CODE",
			Aliases:       []string{"ced", "divisionname"},
			Digits:        3,
		},
		Descriptor{
			Code:          "SED",
			ServerDataset: "region_map:FID_SED_2011_AUST",
			IDProperty:    "SED_CODE",
			Aliases:       []string{"sed"},
			Digits:        5,
		},
		Descriptor{
			Code:          "SSC",
			ServerDataset: "region_map:FID_SSC_2011_AUST",
			IDProperty:    "SSC_CODE",
			Aliases:       []string{"ssc", "suburb"},
			Digits:        5,
		},
	)
}
