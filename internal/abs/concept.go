// Package abs builds concept/code selection trees for ABS statistical
// datasets and aggregates cross-product query results into a single table.
package abs

import (
	"github.com/ausmap/geocat-cli/pkg/absapi"
)

// Code is one selectable value in a concept's code tree. An active code
// represents a rollup total: activating a parent subsumes its children, so a
// walk never counts both a code and its descendants.
type Code struct {
	ID       string
	Name     string
	ParentID string
	Active   bool
	Open     bool
	Children []*Code
}

// Concept is one query dimension with its code tree roots in list order.
type Concept struct {
	Code  string
	Name  string
	Codes []*Code
}

// ConceptTree is the ordered set of selectable concepts for one dataset.
type ConceptTree struct {
	Concepts []*Concept
}

// ActiveCode identifies one active selection: the owning concept, the code id
// used in query filters, and the display name used for merged column naming.
type ActiveCode struct {
	Concept string
	ID      string
	Name    string
}

// BuildConcept links a flat code list into a tree using parent references,
// preserving list order at every level. Entries referencing a missing parent
// become roots.
func BuildConcept(code, name string, entries []absapi.CodeEntry) *Concept {
	c := &Concept{Code: code, Name: name}
	byID := make(map[string]*Code, len(entries))

	nodes := make([]*Code, 0, len(entries))
	for _, e := range entries {
		n := &Code{ID: e.Code, Name: e.Description, ParentID: e.ParentCode}
		byID[n.ID] = n
		nodes = append(nodes, n)
	}

	for _, n := range nodes {
		if n.ParentID != "" {
			if parent, ok := byID[n.ParentID]; ok && parent != n {
				parent.Children = append(parent.Children, n)
				continue
			}
		}
		c.Codes = append(c.Codes, n)
	}

	return c
}

// FindCode returns the code with the given id anywhere in the concept's tree.
func (c *Concept) FindCode(id string) *Code {
	var find func(codes []*Code) *Code
	find = func(codes []*Code) *Code {
		for _, code := range codes {
			if code.ID == id {
				return code
			}
			if found := find(code.Children); found != nil {
				return found
			}
		}
		return nil
	}
	return find(c.Codes)
}

// Concept returns the concept with the given code, or nil.
func (t *ConceptTree) Concept(code string) *Concept {
	for _, c := range t.Concepts {
		if c.Code == code {
			return c
		}
	}
	return nil
}

// CollectActive walks the tree and returns the active codes per concept, in
// concept and tree order. A code contributes only when active; otherwise the
// walk recurses into its children, never both, since an active parent is a
// rollup of its descendants. The walk is pure: it never mutates the tree.
func CollectActive(t *ConceptTree) [][]ActiveCode {
	result := make([][]ActiveCode, len(t.Concepts))
	for i, concept := range t.Concepts {
		result[i] = collectActiveCodes(concept.Code, concept.Codes, nil)
	}
	return result
}

func collectActiveCodes(concept string, codes []*Code, acc []ActiveCode) []ActiveCode {
	for _, code := range codes {
		if code.Active {
			acc = append(acc, ActiveCode{Concept: concept, ID: code.ID, Name: code.Name})
			continue
		}
		acc = collectActiveCodes(concept, code.Children, acc)
	}
	return acc
}

// CrossProduct expands per-concept active code lists into every combination,
// one entry per query. Combination order is deterministic: the last concept
// varies fastest.
func CrossProduct(perConcept [][]ActiveCode) [][]ActiveCode {
	if len(perConcept) == 0 {
		return nil
	}
	combos := [][]ActiveCode{{}}
	for _, codes := range perConcept {
		next := make([][]ActiveCode, 0, len(combos)*len(codes))
		for _, combo := range combos {
			for _, code := range codes {
				extended := make([]ActiveCode, len(combo), len(combo)+1)
				copy(extended, combo)
				next = append(next, append(extended, code))
			}
		}
		combos = next
	}
	return combos
}
