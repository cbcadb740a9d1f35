package board

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/stackhead/task-management-app/domain"
)

// DragState is the phase of a drag gesture.
type DragState int

const (
	DragIdle DragState = iota
	DragDragging
	DragOver
)

func (s DragState) String() string {
	switch s {
	case DragIdle:
		return "idle"
	case DragDragging:
		return "dragging"
	case DragOver:
		return "over"
	default:
		return fmt.Sprintf("DragState(%d)", int(s))
	}
}

// DragPayload is carried by a dragged task.
type DragPayload struct {
	TaskID         string `json:"taskId"`
	SourceColumnID string `json:"sourceColumnId"`
}

var (
	// ErrDragActive is returned by Begin while another drag is in progress.
	ErrDragActive = errors.New("a drag is already in progress")
	// ErrNotDragging is returned when a gesture step arrives without a drag.
	ErrNotDragging = errors.New("no drag in progress")
)

// Coordinator turns drag gestures over a Store's board into moves.
type Coordinator struct {
	store *Store

	mu      sync.Mutex
	state   DragState
	payload DragPayload
	over    string
}

// NewCoordinator returns an idle coordinator for store.
func NewCoordinator(store *Store) *Coordinator {
	return &Coordinator{store: store}
}

// State reports the current phase and payload.
func (c *Coordinator) State() (DragState, DragPayload, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.payload, c.over
}

// Begin picks up a task. The source column is the task's current status.
func (c *Coordinator) Begin(taskID string) (DragPayload, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != DragIdle {
		return DragPayload{}, ErrDragActive
	}
	t, ok := c.store.Task(taskID)
	if !ok {
		return DragPayload{}, fmt.Errorf("task %s: %w", taskID, domain.ErrNotFound)
	}
	c.payload = DragPayload{TaskID: t.ID, SourceColumnID: t.Status}
	c.state = DragDragging
	c.over = ""
	return c.payload, nil
}

// Over records the column under the pointer.
func (c *Coordinator) Over(columnID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == DragIdle {
		return ErrNotDragging
	}
	if _, ok := c.store.Column(columnID); !ok {
		return fmt.Errorf("column %s: %w", columnID, domain.ErrNotFound)
	}
	c.over = columnID
	c.state = DragOver
	return nil
}

// Leave clears the hovered column without ending the drag.
func (c *Coordinator) Leave() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == DragOver {
		c.state = DragDragging
		c.over = ""
	}
}

// Release ends a drag outside any column. No move happens.
func (c *Coordinator) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

// Drop ends the drag. Over another column it fires exactly one MoveTask and
// reports true. Over the source column or outside any column it only returns
// to idle.
func (c *Coordinator) Drop(ctx context.Context) (bool, error) {
	c.mu.Lock()
	state, payload, target := c.state, c.payload, c.over
	c.resetLocked()
	c.mu.Unlock()

	switch state {
	case DragIdle:
		return false, ErrNotDragging
	case DragDragging:
		return false, nil
	}
	if target == payload.SourceColumnID {
		return false, nil
	}
	if err := c.store.MoveTask(ctx, payload.TaskID, payload.SourceColumnID, target); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Coordinator) resetLocked() {
	c.state = DragIdle
	c.payload = DragPayload{}
	c.over = ""
}
