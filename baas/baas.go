// Package baas describes the external backend-as-a-service the board relies
// on: an account service for identity and sessions, and a document database
// scoped by owner.
package baas

import (
	"context"

	"github.com/stackhead/task-management-app/domain"
)

// Collection names a logical document collection.
type Collection string

const (
	Columns     Collection = "columns"
	Tasks       Collection = "tasks"
	Profiles    Collection = "profiles"
	Preferences Collection = "preferences"
)

// Document is a stored record. Fields never contain the id or owner.
type Document struct {
	ID      string         `json:"id"`
	OwnerID string         `json:"userId"`
	Fields  map[string]any `json:"fields"`
}

// String returns the string field named key or "".
func (d Document) String(key string) string {
	if d.Fields == nil {
		return ""
	}
	s, _ := d.Fields[key].(string)
	return s
}

// Bool returns the boolean field named key or false.
func (d Document) Bool(key string) bool {
	if d.Fields == nil {
		return false
	}
	b, _ := d.Fields[key].(bool)
	return b
}

// Documents is the document database. Every call is scoped to one owner.
type Documents interface {
	// List returns all documents of the collection owned by ownerID. Order is irrelevant.
	List(ctx context.Context, c Collection, ownerID string) ([]Document, error)
	// Create stores a new document. An empty id asks the store to generate one.
	Create(ctx context.Context, c Collection, ownerID, id string, fields map[string]any) (Document, error)
	// Update merges fields into an existing document and returns the stored result.
	Update(ctx context.Context, c Collection, ownerID, id string, fields map[string]any) (Document, error)
	// Delete removes a document. Missing documents yield domain.ErrNotFound.
	Delete(ctx context.Context, c Collection, ownerID, id string) error
}

// CascadeDeleter is implemented by stores able to delete a parent and its
// children in one transaction.
type CascadeDeleter interface {
	DeleteCascade(ctx context.Context, ownerID string, parent Collection, parentID string, children Collection, childIDs []string) error
}

// OAuthRequest describes an OAuth sign-in redirect.
type OAuthRequest struct {
	Provider   string
	SuccessURL string
	FailureURL string
	Scopes     []string
}

// Session is returned by the account service when a session is created.
type Session struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
	Secret string `json:"secret"`
	Expire int64  `json:"expire"`
}

// Identity is the account service. Calls acting for a signed-in user take
// that user's session secret.
type Identity interface {
	CurrentIdentity(ctx context.Context, session string) (domain.Identity, error)
	CreateAccount(ctx context.Context, email, password, name string) (domain.Identity, error)
	CreateSession(ctx context.Context, email, password string) (Session, error)
	DeleteSession(ctx context.Context, session string) error
	OAuthURL(req OAuthRequest) (string, error)
	CreateRecovery(ctx context.Context, email, redirectURL string) error
	ConfirmRecovery(ctx context.Context, userID, secret, password string) error
	DeleteAccount(ctx context.Context, session string) error
}

// CleanupQueue accepts work a failed cascade delete left behind.
type CleanupQueue interface {
	EnqueueCleanup(ctx context.Context, env domain.CleanupEnvelope) error
}

// Client bundles the collaborators of the backend. It is built once at start
// up and handed to everything that talks to the backend.
type Client struct {
	Identity  Identity
	Documents Documents
	Cleanup   CleanupQueue
}

// NewClient returns a Client. cleanup may be nil.
func NewClient(identity Identity, docs Documents, cleanup CleanupQueue) *Client {
	if identity == nil || docs == nil {
		panic("baas.NewClient: identity and documents are required")
	}
	return &Client{Identity: identity, Documents: docs, Cleanup: cleanup}
}
