package board

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/stackhead/task-management-app/baas"
	"github.com/stackhead/task-management-app/domain"
)

// CascadeError reports a column delete whose task deletes failed and whose
// column could not be restored. Remaining lists the task ids still stored.
type CascadeError struct {
	ColumnID  string
	Remaining []string
	Queued    bool
	Err       error
}

func (e *CascadeError) Error() string {
	return fmt.Sprintf("delete column %s left %d task(s) behind: %v", e.ColumnID, len(e.Remaining), e.Err)
}

func (e *CascadeError) Unwrap() error { return e.Err }

// CreateColumn validates and stores a new column and appends it to the board.
func (s *Store) CreateColumn(ctx context.Context, name, color string) (domain.Column, error) {
	name, color, err := domain.NormalizeColumn(name, color)
	if err != nil {
		return domain.Column{}, err
	}

	s.ops.Lock()
	defer s.ops.Unlock()

	user, err := s.owner()
	if err != nil {
		return domain.Column{}, err
	}

	ctx, span := s.start(ctx, "board.CreateColumn")
	defer span.End()

	doc, err := s.client.Documents.Create(ctx, baas.Columns, user.ID, "", columnFields(name, color))
	if err != nil {
		return domain.Column{}, remoteFailure(span, "create column", err)
	}
	col := columnFromDoc(doc)
	col.IsNew = true

	s.mu.Lock()
	s.columns = append(s.columns, col)
	s.mu.Unlock()
	return col, nil
}

// UpdateColumn renames or recolours a column.
func (s *Store) UpdateColumn(ctx context.Context, id, name, color string) (domain.Column, error) {
	name, color, err := domain.NormalizeColumn(name, color)
	if err != nil {
		return domain.Column{}, err
	}

	s.ops.Lock()
	defer s.ops.Unlock()

	user, err := s.owner()
	if err != nil {
		return domain.Column{}, err
	}
	if _, ok := s.Column(id); !ok {
		return domain.Column{}, fmt.Errorf("column %s: %w", id, domain.ErrNotFound)
	}

	ctx, span := s.start(ctx, "board.UpdateColumn", attribute.String("column.id", id))
	defer span.End()

	doc, err := s.client.Documents.Update(ctx, baas.Columns, user.ID, id, columnFields(name, color))
	if err != nil {
		return domain.Column{}, remoteFailure(span, "update column", err)
	}
	col := columnFromDoc(doc)

	s.mu.Lock()
	if i := s.columnIndex(id); i >= 0 {
		s.columns[i] = col
	}
	s.mu.Unlock()
	return col, nil
}

// DeletePrompt builds the confirmation shown before deleting a column. The
// count comes from the local task list.
func (s *Store) DeletePrompt(columnID string) (Prompt, error) {
	col, ok := s.Column(columnID)
	if !ok {
		return Prompt{}, fmt.Errorf("column %s: %w", columnID, domain.ErrNotFound)
	}
	n := len(s.TasksInColumn(columnID))
	msg := fmt.Sprintf("Are you sure you want to delete the %q column?", col.Name)
	if n > 0 {
		msg += fmt.Sprintf(" This will also delete %d task(s) in this column.", n)
	}
	return Prompt{Title: "Delete Column", Message: msg, Count: n}, nil
}

// DeleteColumn removes a column and every task whose status references it,
// after confirm approves the prompt. Local state changes only once the remote
// sequence has settled.
func (s *Store) DeleteColumn(ctx context.Context, id string, confirm Confirmer) error {
	prompt, err := s.DeletePrompt(id)
	if err != nil {
		return err
	}
	ok, err := confirm.Confirm(ctx, prompt)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotConfirmed
	}

	s.ops.Lock()
	defer s.ops.Unlock()

	user, err := s.owner()
	if err != nil {
		return err
	}
	col, found := s.Column(id)
	if !found {
		return fmt.Errorf("column %s: %w", id, domain.ErrNotFound)
	}
	var taskIDs []string
	for _, t := range s.TasksInColumn(id) {
		taskIDs = append(taskIDs, t.ID)
	}

	ctx, span := s.start(ctx, "board.DeleteColumn",
		attribute.String("column.id", id),
		attribute.Int("column.tasks", len(taskIDs)))
	defer span.End()

	if cd, ok := s.client.Documents.(baas.CascadeDeleter); ok {
		if err := cd.DeleteCascade(ctx, user.ID, baas.Columns, id, baas.Tasks, taskIDs); err != nil {
			return remoteFailure(span, "delete column", err)
		}
		s.dropColumn(id)
		return nil
	}

	if err := s.client.Documents.Delete(ctx, baas.Columns, user.ID, id); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return remoteFailure(span, "delete column", err)
	}
	deleted := make(map[string]bool, len(taskIDs))
	for _, tid := range taskIDs {
		err := s.client.Documents.Delete(ctx, baas.Tasks, user.ID, tid)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			recordError(span, err)
			return s.compensateColumnDelete(ctx, user.ID, col, taskIDs, deleted, err)
		}
		deleted[tid] = true
	}
	s.dropColumn(id)
	return nil
}

// compensateColumnDelete restores a column whose task deletes failed halfway.
// When the column cannot be restored, the remaining tasks are handed to the
// cleanup queue and dropped locally.
func (s *Store) compensateColumnDelete(ctx context.Context, userID string, col domain.Column, taskIDs []string, deleted map[string]bool, cause error) error {
	_, cerr := s.client.Documents.Create(ctx, baas.Columns, userID, col.ID, columnFields(col.Name, col.Color))
	if cerr == nil {
		s.mu.Lock()
		s.tasks = slices.DeleteFunc(s.tasks, func(t domain.Task) bool { return deleted[t.ID] })
		s.mu.Unlock()
		return &domain.RemoteError{Op: "delete column tasks", Err: cause}
	}

	var remaining []string
	for _, tid := range taskIDs {
		if !deleted[tid] {
			remaining = append(remaining, tid)
		}
	}
	cerr = errors.Join(cause, fmt.Errorf("restore column: %w", cerr))
	queued := false
	if s.client.Cleanup != nil {
		env := domain.CleanupEnvelope{
			UserID: userID,
			Job:    domain.CleanupJob{ColumnID: col.ID, TaskIDs: remaining, EnqueuedAt: time.Now().Unix()},
		}
		if qerr := s.client.Cleanup.EnqueueCleanup(ctx, env); qerr != nil {
			s.logger.WithError(qerr).WithFields(log.Fields{"user": userID, "column": col.ID, "tasks": len(remaining)}).Error("enqueue cleanup failed")
		} else {
			queued = true
		}
	}
	s.dropColumn(col.ID)
	return &CascadeError{ColumnID: col.ID, Remaining: remaining, Queued: queued, Err: cerr}
}

func (s *Store) dropColumn(id string) {
	s.mu.Lock()
	s.columns = slices.DeleteFunc(s.columns, func(c domain.Column) bool { return c.ID == id })
	s.tasks = slices.DeleteFunc(s.tasks, func(t domain.Task) bool { return t.Status == id })
	s.mu.Unlock()
}
