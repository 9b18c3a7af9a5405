package category

import "fmt"

// ValidationError reports bad input shape, e.g. an empty name.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError reports a referenced id that does not resolve.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// CycleError reports a re-parent that would break the forest invariant.
type CycleError struct {
	CategoryID string
	ParentID   string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("moving %s under %s would create a cycle", e.CategoryID, e.ParentID)
}

// CorruptHierarchyError reports stored data that already violates the
// forest invariant (an existing cycle the guard cannot repair).
type CorruptHierarchyError struct {
	Detail string
}

func (e *CorruptHierarchyError) Error() string {
	return "corrupt hierarchy: " + e.Detail
}

// TimeoutError reports a remote call that exceeded its context deadline.
type TimeoutError struct {
	Op string
}

func (e *TimeoutError) Error() string {
	return e.Op + ": timed out"
}
