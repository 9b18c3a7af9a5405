package category

import (
	"fmt"
	"sort"
)

// BuildTree turns a flat category list into an ordered forest. counts may
// be nil. Siblings at every level, roots included, are ordered pinned
// first, then by SortOrder, then by name.
//
// Categories whose ParentID points at a missing id are orphans and are
// surfaced at root level rather than dropped. Nodes trapped in a stored
// cycle are unreachable from any root; they are detected by count and
// reported as CorruptHierarchyError instead of looping forever.
func BuildTree(categories []Category, counts map[string]int) ([]Node, error) {
	if len(categories) == 0 {
		return []Node{}, nil
	}

	known := make(map[string]struct{}, len(categories))
	for _, cat := range categories {
		known[cat.ID] = struct{}{}
	}

	byParent := make(map[string][]Category)
	for _, cat := range categories {
		key := ""
		if cat.ParentID != nil {
			if _, ok := known[*cat.ParentID]; ok {
				key = *cat.ParentID
			}
		}
		byParent[key] = append(byParent[key], cat)
	}

	attached := 0
	var build func(parentKey string) []Node
	build = func(parentKey string) []Node {
		siblings := byParent[parentKey]
		sortSiblings(siblings)
		nodes := make([]Node, 0, len(siblings))
		for _, cat := range siblings {
			attached++
			nodes = append(nodes, Node{
				Category:      cat,
				DocumentCount: counts[cat.ID],
				Children:      build(cat.ID),
			})
		}
		return nodes
	}

	forest := build("")
	if attached != len(categories) {
		return nil, &CorruptHierarchyError{
			Detail: fmt.Sprintf("%d of %d categories unreachable from any root", len(categories)-attached, len(categories)),
		}
	}
	return forest, nil
}

// sortSiblings orders categories sharing a parent: pinned desc,
// sort order asc, name asc. The three keys yield one unambiguous order.
func sortSiblings(siblings []Category) {
	sort.SliceStable(siblings, func(i, j int) bool {
		a, b := siblings[i], siblings[j]
		if a.IsPinned != b.IsPinned {
			return a.IsPinned
		}
		if a.SortOrder != b.SortOrder {
			return a.SortOrder < b.SortOrder
		}
		return a.Name < b.Name
	})
}
