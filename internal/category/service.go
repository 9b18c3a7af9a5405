package category

import (
	"context"
	"errors"
	"strings"
	"time"

	"docvault/api/internal/util"
)

// Store is the persistence surface the hierarchy needs. Implemented by
// the Postgres store; tests supply fakes.
type Store interface {
	ListCategories(ctx context.Context) ([]Category, error)
	GetCategory(ctx context.Context, id string) (Category, error)
	InsertCategory(ctx context.Context, cat Category) error
	UpdateCategory(ctx context.Context, id string, params UpdateParams) (Category, error)
	DeleteCategory(ctx context.Context, id string) error
	SetCategoryParent(ctx context.Context, id string, parentID *string) error
	ListDocumentRefs(ctx context.Context) ([]DocumentRef, error)
}

// Service applies the hierarchy invariants in front of the store. All
// mutations validate against the freshest available read; a failed
// operation leaves the store unchanged.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Create validates and persists a new category.
func (s *Service) Create(ctx context.Context, params CreateParams) (Category, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return Category{}, &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if strings.TrimSpace(params.Icon) == "" {
		return Category{}, &ValidationError{Field: "icon", Reason: "must not be empty"}
	}
	if strings.TrimSpace(params.Color) == "" {
		return Category{}, &ValidationError{Field: "color", Reason: "must not be empty"}
	}

	if params.ParentID != nil && *params.ParentID != "" {
		if _, err := s.store.GetCategory(ctx, *params.ParentID); err != nil {
			return Category{}, s.storeErr("get parent category", err)
		}
	} else {
		params.ParentID = nil
	}

	now := time.Now().UTC()
	cat := Category{
		ID:        util.NewID("cat"),
		Name:      name,
		Icon:      params.Icon,
		Color:     params.Color,
		ParentID:  params.ParentID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.InsertCategory(ctx, cat); err != nil {
		return Category{}, s.storeErr("insert category", err)
	}
	return cat, nil
}

// Update applies only the supplied fields. An empty patch returns the
// record unchanged.
func (s *Service) Update(ctx context.Context, id string, params UpdateParams) (Category, error) {
	if params.Name != nil && strings.TrimSpace(*params.Name) == "" {
		return Category{}, &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	cat, err := s.store.UpdateCategory(ctx, id, params)
	if err != nil {
		return Category{}, s.storeErr("update category", err)
	}
	return cat, nil
}

// Delete removes the category row only. Child categories and documents
// referencing it are left in place; Tree surfaces the children as roots.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.store.GetCategory(ctx, id); err != nil {
		return s.storeErr("get category", err)
	}
	if err := s.store.DeleteCategory(ctx, id); err != nil {
		return s.storeErr("delete category", err)
	}
	return nil
}

// MoveToParent re-parents a category after running the cycle guard
// against a fresh snapshot. On CycleError the prior parent is intact.
func (s *Service) MoveToParent(ctx context.Context, id string, parentID *string) (Category, error) {
	if parentID != nil && *parentID == "" {
		parentID = nil
	}

	if _, err := s.store.GetCategory(ctx, id); err != nil {
		return Category{}, s.storeErr("get category", err)
	}
	if parentID != nil {
		if _, err := s.store.GetCategory(ctx, *parentID); err != nil {
			return Category{}, s.storeErr("get parent category", err)
		}
	}

	snapshot, err := s.store.ListCategories(ctx)
	if err != nil {
		return Category{}, s.storeErr("list categories", err)
	}
	if WouldCreateCycle(snapshot, id, parentID) {
		target := ""
		if parentID != nil {
			target = *parentID
		}
		return Category{}, &CycleError{CategoryID: id, ParentID: target}
	}

	if err := s.store.SetCategoryParent(ctx, id, parentID); err != nil {
		return Category{}, s.storeErr("set category parent", err)
	}
	return s.store.GetCategory(ctx, id)
}

// Tree reads the flat list plus document references and assembles the
// ordered forest with direct counts joined in.
func (s *Service) Tree(ctx context.Context) ([]Node, error) {
	categories, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, s.storeErr("list categories", err)
	}
	refs, err := s.store.ListDocumentRefs(ctx)
	if err != nil {
		return nil, s.storeErr("list document refs", err)
	}
	return BuildTree(categories, CountsByCategory(refs))
}

// storeErr normalizes store failures into the package taxonomy. Store
// implementations return *NotFoundError for missing rows; deadline expiry
// becomes TimeoutError here so callers see one timeout type regardless of
// which remote call blew its budget.
func (s *Service) storeErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Op: op}
	}
	return err
}
