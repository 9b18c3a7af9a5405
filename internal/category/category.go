// Package category implements the category hierarchy: a forest of
// user-defined folders that documents are filed under. It owns the tree
// shape invariants (no cycles, total sibling order) and the typed error
// taxonomy the API layer maps to HTTP statuses.
package category

import "time"

// Category is a single node in the hierarchy. ParentID is nil for roots.
type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Icon      string    `json:"icon"`
	Color     string    `json:"color"`
	ParentID  *string   `json:"parentId"`
	IsPinned  bool      `json:"isPinned"`
	SortOrder int       `json:"sortOrder"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Node is a Category with its ordered children attached and its direct
// document count joined in. Counts do not roll up to ancestors.
type Node struct {
	Category
	DocumentCount int    `json:"documentCount"`
	Children      []Node `json:"children"`
}

// CreateParams are the inputs for a new category.
type CreateParams struct {
	Name     string  `json:"name"`
	Icon     string  `json:"icon"`
	Color    string  `json:"color"`
	ParentID *string `json:"parentId"`
}

// UpdateParams is a partial update. Nil fields are left untouched, so an
// all-nil value is an identity operation. Re-parenting is not an update;
// it goes through Service.MoveToParent so the cycle guard always runs.
type UpdateParams struct {
	Name      *string `json:"name"`
	Icon      *string `json:"icon"`
	Color     *string `json:"color"`
	IsPinned  *bool   `json:"isPinned"`
	SortOrder *int    `json:"sortOrder"`
}

// DocumentRef is the slice of a document the aggregator needs: its id and
// the category it is filed under, if any.
type DocumentRef struct {
	ID         string
	CategoryID *string
}

// CountsByCategory groups documents by their category reference and counts
// each group. Documents with no category are skipped; categories with zero
// documents are absent from the map.
func CountsByCategory(docs []DocumentRef) map[string]int {
	counts := make(map[string]int)
	for _, doc := range docs {
		if doc.CategoryID == nil || *doc.CategoryID == "" {
			continue
		}
		counts[*doc.CategoryID]++
	}
	return counts
}
