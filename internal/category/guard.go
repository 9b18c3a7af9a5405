package category

// WouldCreateCycle reports whether re-parenting categoryID under
// proposedParent would break the forest invariant. It is a pure read-only
// check over the supplied snapshot; MoveToParent runs it against the
// freshest read immediately before persisting.
//
// The ancestor walk is iterative, carries a visited set, and is bounded by
// the total category count, so it terminates even when the snapshot
// already contains a cycle. If the bound is exceeded the check fails
// closed and reports a cycle.
func WouldCreateCycle(categories []Category, categoryID string, proposedParent *string) bool {
	if proposedParent == nil || *proposedParent == "" {
		return false
	}
	if *proposedParent == categoryID {
		return true
	}

	byID := make(map[string]Category, len(categories))
	for _, cat := range categories {
		byID[cat.ID] = cat
	}

	visited := make(map[string]struct{}, len(categories))
	current := *proposedParent
	for steps := 0; steps <= len(categories); steps++ {
		if current == categoryID {
			return true
		}
		if _, seen := visited[current]; seen {
			return true
		}
		visited[current] = struct{}{}

		ancestor, ok := byID[current]
		if !ok || ancestor.ParentID == nil || *ancestor.ParentID == "" {
			return false
		}
		current = *ancestor.ParentID
	}
	// Walk outlived the node count: the stored chain cannot be acyclic.
	return true
}
