// Package board holds the in-memory Kanban board of one signed-in session and
// keeps it in step with the document database.
//
// Mutations run one at a time per Store. Columns and tasks are guarded by a
// read/write lock so readers see optimistic updates while a remote call is in
// flight.
package board

import (
	"context"
	"fmt"
	"slices"
	"sync"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/stackhead/task-management-app/baas"
	"github.com/stackhead/task-management-app/domain"
)

const tracerName = "github.com/stackhead/task-management-app/board"

// Store is the board state of one session.
type Store struct {
	client  *baas.Client
	session string
	logger  *log.Logger
	tracer  trace.Tracer

	ops sync.Mutex

	mu      sync.RWMutex
	user    domain.Identity
	loaded  bool
	columns []domain.Column
	tasks   []domain.Task
}

// Option customizes a Store.
type Option func(*Store)

// WithLogger sets the logger used for warnings.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTracer sets the tracer wrapping remote calls.
func WithTracer(t trace.Tracer) Option {
	return func(s *Store) {
		if t != nil {
			s.tracer = t
		}
	}
}

// NewStore creates an empty store for the session secret. Call Load before
// any other operation.
func NewStore(client *baas.Client, session string, opts ...Option) *Store {
	if client == nil {
		panic("board.NewStore: client is nil")
	}
	s := &Store{
		client:  client,
		session: session,
		logger:  log.StandardLogger(),
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load resolves the current identity and replaces the local columns and tasks
// with the documents it owns. Identity failures wrap domain.ErrNotAuthenticated;
// query failures wrap domain.ErrDataLoad.
func (s *Store) Load(ctx context.Context) error {
	s.ops.Lock()
	defer s.ops.Unlock()

	ctx, span := s.start(ctx, "board.Load")
	defer span.End()

	user, err := s.client.Identity.CurrentIdentity(ctx, s.session)
	if err != nil {
		recordError(span, err)
		s.reset(domain.Identity{})
		return fmt.Errorf("%w: %w", domain.ErrNotAuthenticated, err)
	}

	colDocs, err := s.client.Documents.List(ctx, baas.Columns, user.ID)
	if err != nil {
		recordError(span, err)
		s.keepIdentity(user)
		return fmt.Errorf("%w: columns: %w", domain.ErrDataLoad, err)
	}
	taskDocs, err := s.client.Documents.List(ctx, baas.Tasks, user.ID)
	if err != nil {
		recordError(span, err)
		s.keepIdentity(user)
		return fmt.Errorf("%w: tasks: %w", domain.ErrDataLoad, err)
	}

	columns := make([]domain.Column, 0, len(colDocs))
	for _, d := range colDocs {
		if d.OwnerID != user.ID {
			s.logger.WithFields(log.Fields{"user": user.ID, "column": d.ID, "owner": d.OwnerID}).Warn("skipping column owned by another user")
			continue
		}
		columns = append(columns, columnFromDoc(d))
	}
	tasks := make([]domain.Task, 0, len(taskDocs))
	for _, d := range taskDocs {
		if d.OwnerID != user.ID {
			s.logger.WithFields(log.Fields{"user": user.ID, "task": d.ID, "owner": d.OwnerID}).Warn("skipping task owned by another user")
			continue
		}
		tasks = append(tasks, taskFromDoc(d))
	}

	s.mu.Lock()
	s.user = user
	s.loaded = true
	s.columns = columns
	s.tasks = tasks
	s.mu.Unlock()
	return nil
}

func (s *Store) reset(user domain.Identity) {
	s.mu.Lock()
	s.user = user
	s.loaded = false
	s.columns = nil
	s.tasks = nil
	s.mu.Unlock()
}

// keepIdentity records user after a failed query. The identity is still
// valid, so mutations keep working; the lists of a previous load for the same
// user are left untouched.
func (s *Store) keepIdentity(user domain.Identity) {
	s.mu.Lock()
	if !s.loaded || s.user.ID != user.ID {
		s.columns = nil
		s.tasks = nil
	}
	s.user = user
	s.loaded = true
	s.mu.Unlock()
}

// Identity returns the identity resolved by the last successful Load.
func (s *Store) Identity() (domain.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user, s.loaded
}

// Columns returns a copy of the local columns. The new marker is reported by
// the first read after a create and cleared afterwards.
func (s *Store) Columns() []domain.Column {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := slices.Clone(s.columns)
	for i := range s.columns {
		s.columns[i].IsNew = false
	}
	return out
}

// Tasks returns a copy of the local tasks, clearing new markers like Columns.
func (s *Store) Tasks() []domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := slices.Clone(s.tasks)
	for i := range s.tasks {
		s.tasks[i].IsNew = false
	}
	return out
}

// TasksInColumn returns the local tasks whose status is columnID.
func (s *Store) TasksInColumn(columnID string) []domain.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Task
	for _, t := range s.tasks {
		if t.Status == columnID {
			out = append(out, t)
		}
	}
	return out
}

// Column returns the local column with id.
func (s *Store) Column(id string) (domain.Column, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.columnIndex(id)
	if i < 0 {
		return domain.Column{}, false
	}
	return s.columns[i], true
}

// Task returns the local task with id.
func (s *Store) Task(id string) (domain.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.taskIndex(id)
	if i < 0 {
		return domain.Task{}, false
	}
	return s.tasks[i], true
}

// owner returns the loaded identity or domain.ErrNotAuthenticated.
func (s *Store) owner() (domain.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.loaded || s.user.ID == "" {
		return domain.Identity{}, fmt.Errorf("%w: board not loaded", domain.ErrNotAuthenticated)
	}
	return s.user, nil
}

// columnIndex and taskIndex expect s.mu to be held.
func (s *Store) columnIndex(id string) int {
	return slices.IndexFunc(s.columns, func(c domain.Column) bool { return c.ID == id })
}

func (s *Store) taskIndex(id string) int {
	return slices.IndexFunc(s.tasks, func(t domain.Task) bool { return t.ID == id })
}

func columnFields(name, color string) map[string]any {
	return map[string]any{"name": name, "color": color}
}

func columnFromDoc(d baas.Document) domain.Column {
	return domain.Column{
		ID:      d.ID,
		Name:    d.String("name"),
		Color:   d.String("color"),
		OwnerID: d.OwnerID,
	}
}

func taskFields(t domain.Task) map[string]any {
	return map[string]any{
		"title":       t.Title,
		"description": t.Description,
		"eta":         t.ETA,
		"status":      t.Status,
		"priority":    string(t.Priority),
	}
}

func taskFromDoc(d baas.Document) domain.Task {
	p, err := domain.ParsePriority(d.String("priority"))
	if err != nil {
		p = domain.PriorityNormal
	}
	return domain.Task{
		ID:          d.ID,
		Title:       d.String("title"),
		Description: d.String("description"),
		ETA:         d.String("eta"),
		Priority:    p,
		Status:      d.String("status"),
		OwnerID:     d.OwnerID,
	}
}
