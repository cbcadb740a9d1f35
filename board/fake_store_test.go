package board

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/stackhead/task-management-app/baas"
	"github.com/stackhead/task-management-app/domain"
)

type call struct {
	op         string
	collection baas.Collection
	id         string
	fields     map[string]any
}

type fakeDocs struct {
	mu    sync.Mutex
	docs  map[baas.Collection]map[string]baas.Document
	calls []call
	seq   int

	listErr   map[baas.Collection]error
	createErr func(c baas.Collection, id string) error
	updateErr func(c baas.Collection, id string) error
	deleteErr func(c baas.Collection, id string) error
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{docs: map[baas.Collection]map[string]baas.Document{}}
}

func (f *fakeDocs) put(c baas.Collection, d baas.Document) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.docs[c] == nil {
		f.docs[c] = map[string]baas.Document{}
	}
	f.docs[c][d.ID] = d
}

func (f *fakeDocs) get(c baas.Collection, id string) (baas.Document, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[c][id]
	return d, ok
}

func (f *fakeDocs) count(c baas.Collection) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.docs[c])
}

func (f *fakeDocs) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeDocs) callsFor(op string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.op == op {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeDocs) List(ctx context.Context, c baas.Collection, ownerID string) ([]baas.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{op: "list", collection: c})
	if err := f.listErr[c]; err != nil {
		return nil, err
	}
	var out []baas.Document
	for _, d := range f.docs[c] {
		if d.OwnerID == ownerID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeDocs) Create(ctx context.Context, c baas.Collection, ownerID, id string, fields map[string]any) (baas.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{op: "create", collection: c, id: id, fields: fields})
	if f.createErr != nil {
		if err := f.createErr(c, id); err != nil {
			return baas.Document{}, err
		}
	}
	if id == "" {
		f.seq++
		id = fmt.Sprintf("%s-%d", c, f.seq)
	}
	if f.docs[c] == nil {
		f.docs[c] = map[string]baas.Document{}
	}
	if _, exists := f.docs[c][id]; exists {
		return baas.Document{}, domain.ErrConflict
	}
	d := baas.Document{ID: id, OwnerID: ownerID, Fields: maps.Clone(fields)}
	f.docs[c][id] = d
	return d, nil
}

func (f *fakeDocs) Update(ctx context.Context, c baas.Collection, ownerID, id string, fields map[string]any) (baas.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{op: "update", collection: c, id: id, fields: fields})
	if f.updateErr != nil {
		if err := f.updateErr(c, id); err != nil {
			return baas.Document{}, err
		}
	}
	d, ok := f.docs[c][id]
	if !ok || d.OwnerID != ownerID {
		return baas.Document{}, domain.ErrNotFound
	}
	d.Fields = maps.Clone(d.Fields)
	maps.Copy(d.Fields, fields)
	f.docs[c][id] = d
	return d, nil
}

func (f *fakeDocs) Delete(ctx context.Context, c baas.Collection, ownerID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{op: "delete", collection: c, id: id})
	if f.deleteErr != nil {
		if err := f.deleteErr(c, id); err != nil {
			return err
		}
	}
	if _, ok := f.docs[c][id]; !ok {
		return domain.ErrNotFound
	}
	delete(f.docs[c], id)
	return nil
}

// cascadeDocs adds the atomic cascade capability to fakeDocs.
type cascadeDocs struct {
	*fakeDocs
	cascadeCalls int
	cascadeErr   error
}

func (c *cascadeDocs) DeleteCascade(ctx context.Context, ownerID string, parent baas.Collection, parentID string, children baas.Collection, childIDs []string) error {
	c.cascadeCalls++
	if c.cascadeErr != nil {
		return c.cascadeErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.docs[parent], parentID)
	for _, id := range childIDs {
		delete(c.docs[children], id)
	}
	return nil
}

type fakeIdentity struct {
	user domain.Identity
	err  error
}

func (f *fakeIdentity) CurrentIdentity(ctx context.Context, session string) (domain.Identity, error) {
	if f.err != nil {
		return domain.Identity{}, f.err
	}
	return f.user, nil
}

func (f *fakeIdentity) CreateAccount(context.Context, string, string, string) (domain.Identity, error) {
	return domain.Identity{}, errors.New("unexpected CreateAccount call")
}

func (f *fakeIdentity) CreateSession(context.Context, string, string) (baas.Session, error) {
	return baas.Session{}, errors.New("unexpected CreateSession call")
}

func (f *fakeIdentity) DeleteSession(context.Context, string) error {
	return errors.New("unexpected DeleteSession call")
}

func (f *fakeIdentity) OAuthURL(baas.OAuthRequest) (string, error) {
	return "", errors.New("unexpected OAuthURL call")
}

func (f *fakeIdentity) CreateRecovery(context.Context, string, string) error {
	return errors.New("unexpected CreateRecovery call")
}

func (f *fakeIdentity) ConfirmRecovery(context.Context, string, string, string) error {
	return errors.New("unexpected ConfirmRecovery call")
}

func (f *fakeIdentity) DeleteAccount(context.Context, string) error {
	return errors.New("unexpected DeleteAccount call")
}

type fakeCleanup struct {
	jobs []domain.CleanupEnvelope
	err  error
}

func (f *fakeCleanup) EnqueueCleanup(ctx context.Context, env domain.CleanupEnvelope) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, env)
	return nil
}
