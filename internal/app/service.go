package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"docvault/api/internal/auth"
	"docvault/api/internal/authpw"
	"docvault/api/internal/blob"
	"docvault/api/internal/category"
	"docvault/api/internal/config"
	"docvault/api/internal/rbac"
	"docvault/api/internal/realtime"
	"docvault/api/internal/search"
	"docvault/api/internal/store"
	"docvault/api/internal/util"
)

// Session is the authenticated caller attached to a request.
type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

// dataStore is the Postgres surface the service needs beyond the category
// store (which category.Service owns).
type dataStore interface {
	GetUserByID(ctx context.Context, id string) (store.User, error)
	RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)

	GetCategory(ctx context.Context, id string) (category.Category, error)

	InsertDocument(ctx context.Context, doc store.Document) error
	GetDocument(ctx context.Context, id string) (store.Document, error)
	ListDocuments(ctx context.Context, categoryID *string) ([]store.Document, error)
	BumpDocumentVersion(ctx context.Context, id, storageKey, mimeType string, sizeBytes int64, uploadedBy string) (store.Document, error)
	AssignDocumentCategory(ctx context.Context, id string, categoryID *string) (store.Document, error)
	DeleteDocument(ctx context.Context, id string) error
	InsertDocumentVersion(ctx context.Context, version store.DocumentVersion) error
	ListDocumentVersions(ctx context.Context, documentID string) ([]store.DocumentVersion, error)
	GetDocumentVersion(ctx context.Context, documentID string, version int) (store.DocumentVersion, error)

	InsertShareLink(ctx context.Context, link store.ShareLink) error
	GetShareLinkByToken(ctx context.Context, token string) (store.ShareLink, error)
	TouchShareLink(ctx context.Context, id string) error
	RevokeShareLink(ctx context.Context, id string) error

	Ping(ctx context.Context) error
}

// sessionStore holds refresh tokens: Redis when configured, the Postgres
// refresh_sessions table otherwise.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

// blobStore is the object storage surface for file bytes.
type blobStore interface {
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	PresignedGetURL(ctx context.Context, key string, ttl time.Duration, filename string) (string, error)
	Remove(ctx context.Context, key string) error
}

// eventPublisher fans out mutation events; nil-able in tests.
type eventPublisher interface {
	TryPublish(ctx context.Context, event realtime.Event)
}

type Service struct {
	cfg        config.Config
	store      dataStore
	categories *category.Service
	blobs      blobStore
	search     *search.Service
	sessions   sessionStore
	authpw     *authpw.Service
	events     eventPublisher
}

// Deps bundles the collaborators main wires up. Search and Events may be
// nil; the service degrades to store-only behavior for those concerns.
type Deps struct {
	Store      dataStore
	Categories *category.Service
	Blobs      blobStore
	Search     *search.Service
	Sessions   sessionStore
	Auth       *authpw.Service
	Events     eventPublisher
}

func New(cfg config.Config, deps Deps) *Service {
	return &Service{
		cfg:        cfg,
		store:      deps.Store,
		categories: deps.Categories,
		blobs:      deps.Blobs,
		search:     deps.Search,
		sessions:   deps.Sessions,
		authpw:     deps.Auth,
		events:     deps.Events,
	}
}

// Bootstrap pushes every searchable record into Meilisearch so a fresh
// index catches up with the database.
func (s *Service) Bootstrap(ctx context.Context) error {
	if s.search != nil {
		s.search.ReindexAllFromPG(ctx)
	}
	return nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

// --- auth ---

func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (Session, error) {
	user, err := s.authpw.SignUp(ctx, req)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	user, err := s.authpw.SignIn(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	jti := util.NewID("jti")
	expiresAt := time.Now().Add(s.cfg.AccessTTL)
	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		Role: user.Role,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}

	refreshToken := util.NewToken()
	refreshExpiry := time.Now().Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refreshToken), user, refreshExpiry); err != nil {
		return Session{}, fmt.Errorf("save refresh session: %w", err)
	}

	return Session{
		Token:        token,
		RefreshToken: refreshToken,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Role:         user.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

// Refresh rotates the refresh token and issues a fresh access token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	hash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, hash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, hash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

// Logout revokes both halves of the session.
func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if refreshToken != "" {
		if err := s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			return err
		}
	}
	if session.JTI != "" {
		exp := session.ExpiresAt
		if exp.IsZero() {
			exp = time.Now().Add(s.cfg.AccessTTL)
		}
		if err := s.store.RevokeAccessToken(ctx, session.JTI, exp); err != nil {
			return err
		}
	}
	return nil
}

// SessionFromToken verifies the access token and checks the revocation
// list.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}
	return Session{
		Token:     token,
		UserID:    claims.Sub,
		UserName:  claims.Name,
		Role:      claims.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

// --- categories ---

func (s *Service) CategoryTree(ctx context.Context) ([]category.Node, error) {
	return s.categories.Tree(ctx)
}

func (s *Service) CreateCategory(ctx context.Context, session Session, params category.CreateParams) (category.Category, error) {
	cat, err := s.categories.Create(ctx, params)
	if err != nil {
		return category.Category{}, err
	}
	if s.search != nil {
		s.search.IndexCategory(search.CategoryRecord{ID: cat.ID, Name: cat.Name})
	}
	s.publish(ctx, "category.created", "category", cat.ID, session.UserName)
	return cat, nil
}

func (s *Service) UpdateCategory(ctx context.Context, session Session, id string, params category.UpdateParams) (category.Category, error) {
	cat, err := s.categories.Update(ctx, id, params)
	if err != nil {
		return category.Category{}, err
	}
	if s.search != nil {
		s.search.IndexCategory(search.CategoryRecord{ID: cat.ID, Name: cat.Name})
	}
	s.publish(ctx, "category.updated", "category", cat.ID, session.UserName)
	return cat, nil
}

func (s *Service) DeleteCategory(ctx context.Context, session Session, id string) error {
	if err := s.categories.Delete(ctx, id); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteCategory(id)
	}
	s.publish(ctx, "category.deleted", "category", id, session.UserName)
	return nil
}

func (s *Service) MoveCategory(ctx context.Context, session Session, id string, parentID *string) (category.Category, error) {
	cat, err := s.categories.MoveToParent(ctx, id, parentID)
	if err != nil {
		return category.Category{}, err
	}
	s.publish(ctx, "category.moved", "category", cat.ID, session.UserName)
	return cat, nil
}

// --- documents ---

// CreateDocument streams a new file into the object store and records
// version 1.
func (s *Service) CreateDocument(ctx context.Context, session Session, name, mimeType string, size int64, content io.Reader, categoryID *string) (store.Document, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return store.Document{}, &category.ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if err := s.checkUploadSize(size); err != nil {
		return store.Document{}, err
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	if categoryID != nil && *categoryID != "" {
		if _, err := s.store.GetCategory(ctx, *categoryID); err != nil {
			return store.Document{}, err
		}
	} else {
		categoryID = nil
	}

	docID := util.NewID("doc")
	key := blob.ObjectKey(docID, 1)
	if err := s.blobs.Put(ctx, key, content, size, mimeType); err != nil {
		return store.Document{}, err
	}

	now := time.Now().UTC()
	doc := store.Document{
		ID:         docID,
		Name:       name,
		MimeType:   mimeType,
		SizeBytes:  size,
		CategoryID: categoryID,
		StorageKey: key,
		Version:    1,
		UploadedBy: session.UserName,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.InsertDocument(ctx, doc); err != nil {
		return store.Document{}, err
	}
	if err := s.store.InsertDocumentVersion(ctx, store.DocumentVersion{
		ID:         util.NewID("ver"),
		DocumentID: docID,
		Version:    1,
		StorageKey: key,
		SizeBytes:  size,
		MimeType:   mimeType,
		UploadedBy: session.UserName,
		CreatedAt:  now,
	}); err != nil {
		return store.Document{}, err
	}

	s.indexDocument(doc)
	s.publish(ctx, "document.uploaded", "document", doc.ID, session.UserName)
	return doc, nil
}

// UploadDocumentVersion appends a new immutable version and points the
// document row at it.
func (s *Service) UploadDocumentVersion(ctx context.Context, session Session, id, mimeType string, size int64, content io.Reader) (store.Document, error) {
	if err := s.checkUploadSize(size); err != nil {
		return store.Document{}, err
	}
	current, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return store.Document{}, err
	}
	if mimeType == "" {
		mimeType = current.MimeType
	}

	nextVersion := current.Version + 1
	key := blob.ObjectKey(id, nextVersion)
	if err := s.blobs.Put(ctx, key, content, size, mimeType); err != nil {
		return store.Document{}, err
	}

	doc, err := s.store.BumpDocumentVersion(ctx, id, key, mimeType, size, session.UserName)
	if err != nil {
		return store.Document{}, err
	}
	if err := s.store.InsertDocumentVersion(ctx, store.DocumentVersion{
		ID:         util.NewID("ver"),
		DocumentID: id,
		Version:    doc.Version,
		StorageKey: key,
		SizeBytes:  size,
		MimeType:   mimeType,
		UploadedBy: session.UserName,
		CreatedAt:  time.Now().UTC(),
	}); err != nil {
		return store.Document{}, err
	}

	s.indexDocument(doc)
	s.publish(ctx, "document.versioned", "document", doc.ID, session.UserName)
	return doc, nil
}

func (s *Service) ListDocuments(ctx context.Context, categoryID *string) ([]store.Document, error) {
	return s.store.ListDocuments(ctx, categoryID)
}

func (s *Service) GetDocument(ctx context.Context, id string) (store.Document, error) {
	return s.store.GetDocument(ctx, id)
}

// DocumentDownloadURL presigns a GET for the current version, or for a
// specific historical version when version > 0.
func (s *Service) DocumentDownloadURL(ctx context.Context, id string, version int) (string, error) {
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return "", err
	}
	key := doc.StorageKey
	if version > 0 && version != doc.Version {
		v, err := s.store.GetDocumentVersion(ctx, id, version)
		if err != nil {
			return "", err
		}
		key = v.StorageKey
	}
	return s.blobs.PresignedGetURL(ctx, key, s.cfg.DownloadTTL, doc.Name)
}

func (s *Service) ListDocumentVersions(ctx context.Context, id string) ([]store.DocumentVersion, error) {
	if _, err := s.store.GetDocument(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListDocumentVersions(ctx, id)
}

// AssignDocumentCategory files a document under a category (or unfiles it
// with a nil id). The category must exist at validation time.
func (s *Service) AssignDocumentCategory(ctx context.Context, session Session, id string, categoryID *string) (store.Document, error) {
	if categoryID != nil && *categoryID != "" {
		if _, err := s.store.GetCategory(ctx, *categoryID); err != nil {
			return store.Document{}, err
		}
	} else {
		categoryID = nil
	}
	doc, err := s.store.AssignDocumentCategory(ctx, id, categoryID)
	if err != nil {
		return store.Document{}, err
	}
	s.indexDocument(doc)
	s.publish(ctx, "document.filed", "document", doc.ID, session.UserName)
	return doc, nil
}

// DeleteDocument removes the metadata row, every stored version's object,
// and the search entry.
func (s *Service) DeleteDocument(ctx context.Context, session Session, id string) error {
	versions, err := s.store.ListDocumentVersions(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteDocument(ctx, id); err != nil {
		return err
	}
	for _, v := range versions {
		if err := s.blobs.Remove(ctx, v.StorageKey); err != nil {
			// Row is gone; orphaned objects are cleaned up out of band.
			continue
		}
	}
	if s.search != nil {
		s.search.DeleteDocument(id)
	}
	s.publish(ctx, "document.deleted", "document", id, session.UserName)
	return nil
}

// --- share links ---

func (s *Service) CreateShareLink(ctx context.Context, session Session, documentID string, ttl time.Duration) (store.ShareLink, error) {
	if _, err := s.store.GetDocument(ctx, documentID); err != nil {
		return store.ShareLink{}, err
	}
	link := store.ShareLink{
		ID:         util.NewID("shr"),
		Token:      util.NewToken(),
		DocumentID: documentID,
		CreatedBy:  session.UserID,
		CreatedAt:  time.Now().UTC(),
	}
	if ttl > 0 {
		expires := time.Now().UTC().Add(ttl)
		link.ExpiresAt = &expires
	}
	if err := s.store.InsertShareLink(ctx, link); err != nil {
		return store.ShareLink{}, err
	}
	s.publish(ctx, "share.created", "share", link.ID, session.UserName)
	return link, nil
}

// ResolveShareLink turns a public token into document metadata plus a
// presigned download URL, counting the access.
func (s *Service) ResolveShareLink(ctx context.Context, token string) (store.Document, string, error) {
	link, err := s.store.GetShareLinkByToken(ctx, token)
	if err != nil {
		return store.Document{}, "", err
	}
	doc, err := s.store.GetDocument(ctx, link.DocumentID)
	if err != nil {
		return store.Document{}, "", err
	}
	url, err := s.blobs.PresignedGetURL(ctx, doc.StorageKey, s.cfg.DownloadTTL, doc.Name)
	if err != nil {
		return store.Document{}, "", err
	}
	if err := s.store.TouchShareLink(ctx, link.ID); err != nil {
		return store.Document{}, "", err
	}
	return doc, url, nil
}

func (s *Service) RevokeShareLink(ctx context.Context, session Session, id string) error {
	if err := s.store.RevokeShareLink(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, "share.revoked", "share", id, session.UserName)
	return nil
}

// --- search ---

func (s *Service) Search(q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(q)
}

// --- helpers ---

func (s *Service) indexDocument(doc store.Document) {
	if s.search == nil {
		return
	}
	record := search.DocumentRecord{ID: doc.ID, Name: doc.Name, MimeType: doc.MimeType}
	if doc.CategoryID != nil {
		record.CategoryID = *doc.CategoryID
	}
	s.search.IndexDocument(record)
}

// checkUploadSize enforces the configured upload ceiling. A zero limit
// disables the check (tests, unbounded deployments).
func (s *Service) checkUploadSize(size int64) error {
	if s.cfg.MaxUploadBytes > 0 && size > s.cfg.MaxUploadBytes {
		return domainError(http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE",
			fmt.Sprintf("file exceeds the %d byte upload limit", s.cfg.MaxUploadBytes), nil)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, eventType, entity, entityID, actor string) {
	if s.events == nil {
		return
	}
	s.events.TryPublish(ctx, realtime.Event{
		Type:     eventType,
		Entity:   entity,
		EntityID: entityID,
		Actor:    actor,
	})
}

// statusForAuthError distinguishes conflict from bad-credential failures
// coming out of authpw.
func statusForAuthError(err error) (int, string) {
	switch {
	case errors.Is(err, authpw.ErrEmailExists):
		return http.StatusConflict, "EMAIL_EXISTS"
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS"
	default:
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR"
	}
}
