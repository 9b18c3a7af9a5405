package category

import (
	"context"
	"errors"
	"testing"
)

// fakeStore keeps categories in memory and records parent writes so tests
// can assert that failed moves never touch the store.
type fakeStore struct {
	categories   map[string]Category
	refs         []DocumentRef
	parentWrites int

	listErr error
}

func newFakeStore(categories ...Category) *fakeStore {
	f := &fakeStore{categories: make(map[string]Category)}
	for _, cat := range categories {
		f.categories[cat.ID] = cat
	}
	return f
}

func (f *fakeStore) ListCategories(context.Context) ([]Category, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]Category, 0, len(f.categories))
	for _, cat := range f.categories {
		out = append(out, cat)
	}
	return out, nil
}

func (f *fakeStore) GetCategory(_ context.Context, id string) (Category, error) {
	cat, ok := f.categories[id]
	if !ok {
		return Category{}, &NotFoundError{Kind: "category", ID: id}
	}
	return cat, nil
}

func (f *fakeStore) InsertCategory(_ context.Context, cat Category) error {
	f.categories[cat.ID] = cat
	return nil
}

func (f *fakeStore) UpdateCategory(_ context.Context, id string, params UpdateParams) (Category, error) {
	cat, ok := f.categories[id]
	if !ok {
		return Category{}, &NotFoundError{Kind: "category", ID: id}
	}
	if params.Name != nil {
		cat.Name = *params.Name
	}
	if params.Icon != nil {
		cat.Icon = *params.Icon
	}
	if params.Color != nil {
		cat.Color = *params.Color
	}
	if params.IsPinned != nil {
		cat.IsPinned = *params.IsPinned
	}
	if params.SortOrder != nil {
		cat.SortOrder = *params.SortOrder
	}
	f.categories[id] = cat
	return cat, nil
}

func (f *fakeStore) DeleteCategory(_ context.Context, id string) error {
	if _, ok := f.categories[id]; !ok {
		return &NotFoundError{Kind: "category", ID: id}
	}
	delete(f.categories, id)
	return nil
}

func (f *fakeStore) SetCategoryParent(_ context.Context, id string, parentID *string) error {
	cat, ok := f.categories[id]
	if !ok {
		return &NotFoundError{Kind: "category", ID: id}
	}
	f.parentWrites++
	cat.ParentID = parentID
	f.categories[id] = cat
	return nil
}

func (f *fakeStore) ListDocumentRefs(context.Context) ([]DocumentRef, error) {
	return f.refs, nil
}

func TestCreateRejectsEmptyName(t *testing.T) {
	svc := NewService(newFakeStore())
	_, err := svc.Create(context.Background(), CreateParams{Name: "  ", Icon: "folder", Color: "blue"})
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if validation.Field != "name" {
		t.Errorf("expected name field, got %s", validation.Field)
	}
}

func TestCreateRejectsMissingParent(t *testing.T) {
	svc := NewService(newFakeStore())
	_, err := svc.Create(context.Background(), CreateParams{
		Name: "Invoices", Icon: "folder", Color: "blue", ParentID: strPtr("nope"),
	})
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestCreateAssignsIDAndPersists(t *testing.T) {
	store := newFakeStore(Category{ID: "finance", Name: "Finance"})
	svc := NewService(store)

	cat, err := svc.Create(context.Background(), CreateParams{
		Name: "Invoices", Icon: "receipt", Color: "green", ParentID: strPtr("finance"),
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if cat.ID == "" {
		t.Error("expected generated id")
	}
	if cat.ParentID == nil || *cat.ParentID != "finance" {
		t.Error("expected parent to be finance")
	}
	if _, ok := store.categories[cat.ID]; !ok {
		t.Error("category was not persisted")
	}
}

func TestUpdateEmptyPatchIsIdentity(t *testing.T) {
	original := Category{ID: "finance", Name: "Finance", Icon: "bank", Color: "blue", IsPinned: true, SortOrder: 3}
	store := newFakeStore(original)
	svc := NewService(store)

	updated, err := svc.Update(context.Background(), "finance", UpdateParams{})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated != original {
		t.Errorf("empty patch changed the record: %+v != %+v", updated, original)
	}
}

func TestUpdateAppliesOnlySuppliedFields(t *testing.T) {
	store := newFakeStore(Category{ID: "finance", Name: "Finance", Icon: "bank", Color: "blue"})
	svc := NewService(store)

	pinned := true
	updated, err := svc.Update(context.Background(), "finance", UpdateParams{IsPinned: &pinned})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if !updated.IsPinned {
		t.Error("pin flag not applied")
	}
	if updated.Name != "Finance" || updated.Icon != "bank" {
		t.Error("unsupplied fields were altered")
	}
}

func TestUpdateMissingID(t *testing.T) {
	svc := NewService(newFakeStore())
	_, err := svc.Update(context.Background(), "ghost", UpdateParams{})
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestDeleteMissingID(t *testing.T) {
	svc := NewService(newFakeStore())
	err := svc.Delete(context.Background(), "ghost")
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestMoveToParentRejectsCycleAndLeavesStoreUnchanged(t *testing.T) {
	// create root Finance -> child Invoices, then try to move Finance under
	// Invoices.
	store := newFakeStore(
		Category{ID: "finance", Name: "Finance"},
		Category{ID: "invoices", Name: "Invoices", ParentID: strPtr("finance")},
	)
	svc := NewService(store)

	_, err := svc.MoveToParent(context.Background(), "finance", strPtr("invoices"))
	var cycle *CycleError
	if !errors.As(err, &cycle) {
		t.Fatalf("expected CycleError, got %v", err)
	}
	if store.parentWrites != 0 {
		t.Error("failed move must not write to the store")
	}
	if store.categories["finance"].ParentID != nil {
		t.Error("finance parent changed despite CycleError")
	}
}

func TestMoveToParentRoot(t *testing.T) {
	store := newFakeStore(
		Category{ID: "finance", Name: "Finance"},
		Category{ID: "invoices", Name: "Invoices", ParentID: strPtr("finance")},
	)
	svc := NewService(store)

	moved, err := svc.MoveToParent(context.Background(), "invoices", nil)
	if err != nil {
		t.Fatalf("MoveToParent to root failed: %v", err)
	}
	if moved.ParentID != nil {
		t.Error("expected nil parent after move to root")
	}
}

func TestMoveToParentMissingTarget(t *testing.T) {
	store := newFakeStore(Category{ID: "finance", Name: "Finance"})
	svc := NewService(store)

	_, err := svc.MoveToParent(context.Background(), "finance", strPtr("ghost"))
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if store.parentWrites != 0 {
		t.Error("failed move must not write to the store")
	}
}

func TestMoveToParentTimeout(t *testing.T) {
	store := newFakeStore(
		Category{ID: "finance", Name: "Finance"},
		Category{ID: "hr", Name: "HR"},
	)
	store.listErr = context.DeadlineExceeded
	svc := NewService(store)

	_, err := svc.MoveToParent(context.Background(), "finance", strPtr("hr"))
	var timeout *TimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
}

func TestDeleteLeavesChildOrphanedAndTreeStillBuilds(t *testing.T) {
	store := newFakeStore(
		Category{ID: "finance", Name: "Finance"},
		Category{ID: "invoices", Name: "Invoices", ParentID: strPtr("finance")},
	)
	svc := NewService(store)

	if err := svc.Delete(context.Background(), "finance"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	// Invoices still references the dead id.
	child := store.categories["invoices"]
	if child.ParentID == nil || *child.ParentID != "finance" {
		t.Fatal("delete must not touch the child's parent reference")
	}

	forest, err := svc.Tree(context.Background())
	if err != nil {
		t.Fatalf("Tree failed after orphaning delete: %v", err)
	}
	if len(forest) != 1 || forest[0].ID != "invoices" {
		t.Errorf("expected invoices surfaced as orphan root, got %+v", forest)
	}
}

func TestTreeJoinsDocumentCounts(t *testing.T) {
	store := newFakeStore(
		Category{ID: "finance", Name: "Finance"},
		Category{ID: "legal", Name: "Legal"},
	)
	store.refs = []DocumentRef{
		{ID: "d1", CategoryID: strPtr("finance")},
		{ID: "d2", CategoryID: strPtr("finance")},
	}
	svc := NewService(store)

	forest, err := svc.Tree(context.Background())
	if err != nil {
		t.Fatalf("Tree failed: %v", err)
	}
	if forest[0].ID != "finance" || forest[0].DocumentCount != 2 {
		t.Errorf("expected finance with count 2, got %s count %d", forest[0].ID, forest[0].DocumentCount)
	}
	if forest[1].DocumentCount != 0 {
		t.Errorf("expected legal count 0, got %d", forest[1].DocumentCount)
	}
}
