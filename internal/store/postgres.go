package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"docvault/api/internal/category"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// --- users ---

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash, role)
		VALUES ($1, $2, $3, $4, $5)
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash, user.Role)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, role
		FROM users WHERE email = $1
	`, email).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.Role)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, role
		FROM users WHERE id = $1
	`, userID).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.Role)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// --- refresh sessions (Postgres fallback when Redis is not configured) ---

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash string, user User, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, user.ID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.display_name, u.email, u.role
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.DisplayName, &user.Email, &user.Role)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// --- categories (implements category.Store) ---

const categoryColumns = `id, name, icon, color, parent_id, is_pinned, sort_order, created_at, updated_at`

func scanCategory(row interface{ Scan(...any) error }) (category.Category, error) {
	var cat category.Category
	err := row.Scan(&cat.ID, &cat.Name, &cat.Icon, &cat.Color, &cat.ParentID,
		&cat.IsPinned, &cat.SortOrder, &cat.CreatedAt, &cat.UpdatedAt)
	return cat, err
}

func (s *PostgresStore) ListCategories(ctx context.Context) ([]category.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+categoryColumns+` FROM categories`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	items := make([]category.Category, 0)
	for rows.Next() {
		cat, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		items = append(items, cat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetCategory(ctx context.Context, id string) (category.Category, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id=$1`, id)
	cat, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return category.Category{}, &category.NotFoundError{Kind: "category", ID: id}
	}
	if err != nil {
		return category.Category{}, fmt.Errorf("get category: %w", err)
	}
	return cat, nil
}

func (s *PostgresStore) InsertCategory(ctx context.Context, cat category.Category) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (id, name, icon, color, parent_id, is_pinned, sort_order, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, cat.ID, cat.Name, cat.Icon, cat.Color, cat.ParentID, cat.IsPinned, cat.SortOrder, cat.CreatedAt, cat.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

// UpdateCategory builds the SET list from the supplied fields only. An
// all-nil patch still round-trips the row so the caller gets the current
// record back.
func (s *PostgresStore) UpdateCategory(ctx context.Context, id string, params category.UpdateParams) (category.Category, error) {
	sets := []string{"updated_at = NOW()"}
	args := []any{}
	argN := 1

	addSet := func(column string, value any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, argN))
		args = append(args, value)
		argN++
	}
	if params.Name != nil {
		addSet("name", *params.Name)
	}
	if params.Icon != nil {
		addSet("icon", *params.Icon)
	}
	if params.Color != nil {
		addSet("color", *params.Color)
	}
	if params.IsPinned != nil {
		addSet("is_pinned", *params.IsPinned)
	}
	if params.SortOrder != nil {
		addSet("sort_order", *params.SortOrder)
	}

	query := fmt.Sprintf(`UPDATE categories SET %s WHERE id = $%d RETURNING `+categoryColumns,
		strings.Join(sets, ", "), argN)
	args = append(args, id)

	row := s.db.QueryRowContext(ctx, query, args...)
	cat, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return category.Category{}, &category.NotFoundError{Kind: "category", ID: id}
	}
	if err != nil {
		return category.Category{}, fmt.Errorf("update category: %w", err)
	}
	return cat, nil
}

func (s *PostgresStore) DeleteCategory(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete category rows affected: %w", err)
	}
	if affected == 0 {
		return &category.NotFoundError{Kind: "category", ID: id}
	}
	return nil
}

func (s *PostgresStore) SetCategoryParent(ctx context.Context, id string, parentID *string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE categories SET parent_id=$2, updated_at=NOW() WHERE id=$1
	`, id, parentID)
	if err != nil {
		return fmt.Errorf("set category parent: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set category parent rows affected: %w", err)
	}
	if affected == 0 {
		return &category.NotFoundError{Kind: "category", ID: id}
	}
	return nil
}

// ListDocumentRefs returns the id + category reference of every document,
// the input to the per-category count aggregation.
func (s *PostgresStore) ListDocumentRefs(ctx context.Context) ([]category.DocumentRef, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, category_id FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("list document refs: %w", err)
	}
	defer rows.Close()

	refs := make([]category.DocumentRef, 0)
	for rows.Next() {
		var ref category.DocumentRef
		if err := rows.Scan(&ref.ID, &ref.CategoryID); err != nil {
			return nil, fmt.Errorf("scan document ref: %w", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document refs: %w", err)
	}
	return refs, nil
}

// --- documents ---

const documentColumns = `id, name, mime_type, size_bytes, category_id, storage_key, version, uploaded_by, created_at, updated_at`

func scanDocument(row interface{ Scan(...any) error }) (Document, error) {
	var doc Document
	err := row.Scan(&doc.ID, &doc.Name, &doc.MimeType, &doc.SizeBytes, &doc.CategoryID,
		&doc.StorageKey, &doc.Version, &doc.UploadedBy, &doc.CreatedAt, &doc.UpdatedAt)
	return doc, err
}

func (s *PostgresStore) InsertDocument(ctx context.Context, doc Document) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, name, mime_type, size_bytes, category_id, storage_key, version, uploaded_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, doc.ID, doc.Name, doc.MimeType, doc.SizeBytes, doc.CategoryID, doc.StorageKey, doc.Version, doc.UploadedBy, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, id string) (Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id=$1`, id)
	doc, err := scanDocument(row)
	if err != nil {
		return Document{}, err
	}
	return doc, nil
}

// ListDocuments returns documents newest-first, optionally filtered to a
// single category id.
func (s *PostgresStore) ListDocuments(ctx context.Context, categoryID *string) ([]Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents`
	args := []any{}
	if categoryID != nil {
		query += ` WHERE category_id = $1`
		args = append(args, *categoryID)
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	items := make([]Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		items = append(items, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return items, nil
}

// BumpDocumentVersion points the document row at a freshly uploaded
// object and increments the current version.
func (s *PostgresStore) BumpDocumentVersion(ctx context.Context, id, storageKey, mimeType string, sizeBytes int64, uploadedBy string) (Document, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE documents
		SET storage_key=$2, mime_type=$3, size_bytes=$4, uploaded_by=$5, version=version+1, updated_at=NOW()
		WHERE id=$1
		RETURNING `+documentColumns, id, storageKey, mimeType, sizeBytes, uploadedBy)
	doc, err := scanDocument(row)
	if err != nil {
		return Document{}, err
	}
	return doc, nil
}

func (s *PostgresStore) AssignDocumentCategory(ctx context.Context, id string, categoryID *string) (Document, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE documents SET category_id=$2, updated_at=NOW() WHERE id=$1
		RETURNING `+documentColumns, id, categoryID)
	doc, err := scanDocument(row)
	if err != nil {
		return Document{}, err
	}
	return doc, nil
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete document rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// --- document versions ---

func (s *PostgresStore) InsertDocumentVersion(ctx context.Context, version DocumentVersion) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO document_versions (id, document_id, version, storage_key, size_bytes, mime_type, uploaded_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, version.ID, version.DocumentID, version.Version, version.StorageKey, version.SizeBytes, version.MimeType, version.UploadedBy, version.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert document version: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListDocumentVersions(ctx context.Context, documentID string) ([]DocumentVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, version, storage_key, size_bytes, mime_type, uploaded_by, created_at
		FROM document_versions
		WHERE document_id=$1
		ORDER BY version DESC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list document versions: %w", err)
	}
	defer rows.Close()

	items := make([]DocumentVersion, 0)
	for rows.Next() {
		var v DocumentVersion
		if err := rows.Scan(&v.ID, &v.DocumentID, &v.Version, &v.StorageKey, &v.SizeBytes, &v.MimeType, &v.UploadedBy, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document version: %w", err)
		}
		items = append(items, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document versions: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetDocumentVersion(ctx context.Context, documentID string, version int) (DocumentVersion, error) {
	var v DocumentVersion
	err := s.db.QueryRowContext(ctx, `
		SELECT id, document_id, version, storage_key, size_bytes, mime_type, uploaded_by, created_at
		FROM document_versions
		WHERE document_id=$1 AND version=$2
	`, documentID, version).Scan(&v.ID, &v.DocumentID, &v.Version, &v.StorageKey, &v.SizeBytes, &v.MimeType, &v.UploadedBy, &v.CreatedAt)
	if err != nil {
		return DocumentVersion{}, err
	}
	return v, nil
}

// --- share links ---

func (s *PostgresStore) InsertShareLink(ctx context.Context, link ShareLink) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO share_links (id, token, document_id, created_by, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, link.ID, link.Token, link.DocumentID, link.CreatedBy, link.ExpiresAt, link.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert share link: %w", err)
	}
	return nil
}

// GetShareLinkByToken resolves only live links: revoked or expired tokens
// behave exactly like unknown ones.
func (s *PostgresStore) GetShareLinkByToken(ctx context.Context, token string) (ShareLink, error) {
	var link ShareLink
	err := s.db.QueryRowContext(ctx, `
		SELECT id, token, document_id, created_by, expires_at, access_count, last_accessed_at, created_at, revoked_at
		FROM share_links
		WHERE token=$1
			AND revoked_at IS NULL
			AND (expires_at IS NULL OR expires_at > NOW())
	`, token).Scan(&link.ID, &link.Token, &link.DocumentID, &link.CreatedBy, &link.ExpiresAt,
		&link.AccessCount, &link.LastAccessedAt, &link.CreatedAt, &link.RevokedAt)
	if err != nil {
		return ShareLink{}, err
	}
	return link, nil
}

func (s *PostgresStore) TouchShareLink(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE share_links SET access_count=access_count+1, last_accessed_at=NOW() WHERE id=$1
	`, id)
	if err != nil {
		return fmt.Errorf("touch share link: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeShareLink(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE share_links SET revoked_at=NOW() WHERE id=$1 AND revoked_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("revoke share link: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke share link rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
