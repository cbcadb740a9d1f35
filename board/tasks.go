package board

import (
	"context"
	"fmt"
	"slices"

	"go.opentelemetry.io/otel/attribute"

	"github.com/stackhead/task-management-app/baas"
	"github.com/stackhead/task-management-app/domain"
)

// CreateTask validates and stores a new task in the column named by in.Status.
func (s *Store) CreateTask(ctx context.Context, in domain.TaskInput) (domain.Task, error) {
	priority, err := in.Validate()
	if err != nil {
		return domain.Task{}, err
	}

	s.ops.Lock()
	defer s.ops.Unlock()

	user, err := s.owner()
	if err != nil {
		return domain.Task{}, err
	}
	if _, ok := s.Column(in.Status); !ok {
		return domain.Task{}, domain.Invalid("status", "status must reference an existing column")
	}

	ctx, span := s.start(ctx, "board.CreateTask", attribute.String("column.id", in.Status))
	defer span.End()

	t := domain.Task{
		Title:       in.Title,
		Description: in.Description,
		ETA:         in.ETA,
		Priority:    priority,
		Status:      in.Status,
	}
	doc, err := s.client.Documents.Create(ctx, baas.Tasks, user.ID, "", taskFields(t))
	if err != nil {
		return domain.Task{}, remoteFailure(span, "create task", err)
	}
	t = taskFromDoc(doc)
	t.IsNew = true

	s.mu.Lock()
	s.tasks = append(s.tasks, t)
	s.mu.Unlock()
	return t, nil
}

// UpdateTask sends the changed fields of a task and replaces the local copy
// with the stored result.
func (s *Store) UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error) {
	if patch.Empty() {
		return domain.Task{}, domain.Invalid("patch", "nothing to update")
	}

	s.ops.Lock()
	defer s.ops.Unlock()

	user, err := s.owner()
	if err != nil {
		return domain.Task{}, err
	}
	cur, ok := s.Task(id)
	if !ok {
		return domain.Task{}, fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	next, err := patch.Apply(cur)
	if err != nil {
		return domain.Task{}, err
	}
	if next.Status != cur.Status {
		if _, ok := s.Column(next.Status); !ok {
			return domain.Task{}, domain.Invalid("status", "status must reference an existing column")
		}
	}

	all := taskFields(next)
	fields := make(map[string]any, 5)
	if patch.Title != nil {
		fields["title"] = all["title"]
	}
	if patch.Description != nil {
		fields["description"] = all["description"]
	}
	if patch.ETA != nil {
		fields["eta"] = all["eta"]
	}
	if patch.Status != nil {
		fields["status"] = all["status"]
	}
	if patch.Priority != nil {
		fields["priority"] = all["priority"]
	}

	ctx, span := s.start(ctx, "board.UpdateTask", attribute.String("task.id", id))
	defer span.End()

	doc, err := s.client.Documents.Update(ctx, baas.Tasks, user.ID, id, fields)
	if err != nil {
		return domain.Task{}, remoteFailure(span, "update task", err)
	}
	updated := taskFromDoc(doc)

	s.mu.Lock()
	if i := s.taskIndex(id); i >= 0 {
		s.tasks[i] = updated
	}
	s.mu.Unlock()
	return updated, nil
}

// DeleteTask removes a task after confirm approves the prompt.
func (s *Store) DeleteTask(ctx context.Context, id string, confirm Confirmer) error {
	t, ok := s.Task(id)
	if !ok {
		return fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	prompt := Prompt{
		Title:   "Delete Task",
		Message: fmt.Sprintf("Are you sure you want to delete the %q task?", t.Title),
	}
	approved, err := confirm.Confirm(ctx, prompt)
	if err != nil {
		return err
	}
	if !approved {
		return domain.ErrNotConfirmed
	}

	s.ops.Lock()
	defer s.ops.Unlock()

	user, err := s.owner()
	if err != nil {
		return err
	}

	ctx, span := s.start(ctx, "board.DeleteTask", attribute.String("task.id", id))
	defer span.End()

	if err := s.client.Documents.Delete(ctx, baas.Tasks, user.ID, id); err != nil {
		return remoteFailure(span, "delete task", err)
	}

	s.mu.Lock()
	s.tasks = slices.DeleteFunc(s.tasks, func(t domain.Task) bool { return t.ID == id })
	s.mu.Unlock()
	return nil
}

// MoveTask reassigns a task from sourceColumnID to targetColumnID. The local
// status changes before the remote call; a failed call restores the task list
// captured beforehand.
func (s *Store) MoveTask(ctx context.Context, id, sourceColumnID, targetColumnID string) error {
	if sourceColumnID == targetColumnID {
		return nil
	}

	s.ops.Lock()
	defer s.ops.Unlock()

	user, err := s.owner()
	if err != nil {
		return err
	}

	s.mu.Lock()
	i := s.taskIndex(id)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	if s.columnIndex(targetColumnID) < 0 {
		s.mu.Unlock()
		return fmt.Errorf("column %s: %w", targetColumnID, domain.ErrNotFound)
	}
	snapshot := slices.Clone(s.tasks)
	s.tasks[i].Status = targetColumnID
	s.mu.Unlock()

	ctx, span := s.start(ctx, "board.MoveTask",
		attribute.String("task.id", id),
		attribute.String("column.source", sourceColumnID),
		attribute.String("column.target", targetColumnID))
	defer span.End()

	doc, err := s.client.Documents.Update(ctx, baas.Tasks, user.ID, id, map[string]any{"status": targetColumnID})

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.tasks = snapshot
		return remoteFailure(span, "move task", err)
	}
	if i := s.taskIndex(id); i >= 0 {
		s.tasks[i] = taskFromDoc(doc)
	}
	return nil
}
