package store

import "time"

type User struct {
	ID           string    `json:"id"`
	DisplayName  string    `json:"displayName"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Document is the metadata row for an uploaded file. The bytes live in the
// object store under StorageKey; CategoryID may dangle after a category
// delete and is simply treated as unfiled.
type Document struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	MimeType   string    `json:"mimeType"`
	SizeBytes  int64     `json:"sizeBytes"`
	CategoryID *string   `json:"categoryId"`
	StorageKey string    `json:"-"`
	Version    int       `json:"version"`
	UploadedBy string    `json:"uploadedBy"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// DocumentVersion is one immutable upload of a document. Version numbers
// start at 1 and only grow; every version keeps its own object key.
type DocumentVersion struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"documentId"`
	Version    int       `json:"version"`
	StorageKey string    `json:"-"`
	SizeBytes  int64     `json:"sizeBytes"`
	MimeType   string    `json:"mimeType"`
	UploadedBy string    `json:"uploadedBy"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ShareLink grants anonymous read access to one document via an opaque
// token.
type ShareLink struct {
	ID             string     `json:"id"`
	Token          string     `json:"token"`
	DocumentID     string     `json:"documentId"`
	CreatedBy      string     `json:"createdBy"`
	ExpiresAt      *time.Time `json:"expiresAt"`
	AccessCount    int        `json:"accessCount"`
	LastAccessedAt *time.Time `json:"lastAccessedAt"`
	CreatedAt      time.Time  `json:"createdAt"`
	RevokedAt      *time.Time `json:"revokedAt"`
}
