package domain

import (
	"fmt"
	"strings"
)

// Priority ranks a task on the board.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// ParsePriority maps user input to a Priority. Empty input yields PriorityNormal.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PriorityNormal, nil
	case PriorityUrgent, PriorityHigh, PriorityNormal, PriorityLow:
		return p, nil
	default:
		return "", Invalid("priority", fmt.Sprintf("unknown priority %q", s))
	}
}

// Task represents a single board item. Status holds the id of the column the
// task sits in.
type Task struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	ETA         string   `json:"eta"`
	Priority    Priority `json:"priority"`
	Status      string   `json:"status"`
	OwnerID     string   `json:"userId"`

	// IsNew marks an entry appended by a create in this session. It is never persisted.
	IsNew bool `json:"isNew,omitempty"`
}

// TaskInput carries the fields of a task to create.
type TaskInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	ETA         string `json:"eta"`
	Status      string `json:"status"`
	Priority    string `json:"priority,omitempty"`
}

// TaskPatch carries partial updates for a task. Nil fields are left untouched.
type TaskPatch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	ETA         *string `json:"eta,omitempty"`
	Status      *string `json:"status,omitempty"`
	Priority    *string `json:"priority,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.ETA == nil && p.Status == nil && p.Priority == nil
}

// Validate normalizes the input, applying the default priority, and reports
// the first missing or malformed field.
func (in *TaskInput) Validate() (Priority, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.ETA = strings.TrimSpace(in.ETA)
	in.Status = strings.TrimSpace(in.Status)
	switch {
	case in.Title == "":
		return "", Invalid("title", "title is required")
	case in.Description == "":
		return "", Invalid("description", "description is required")
	case in.ETA == "":
		return "", Invalid("eta", "eta is required")
	case in.Status == "":
		return "", Invalid("status", "status is required")
	}
	return ParsePriority(in.Priority)
}

// Apply returns a copy of t with the patch applied. Provided fields must not
// be blank.
func (p TaskPatch) Apply(t Task) (Task, error) {
	set := func(field string, dst *string, v *string) error {
		if v == nil {
			return nil
		}
		s := strings.TrimSpace(*v)
		if s == "" {
			return Invalid(field, field+" is required")
		}
		*dst = s
		return nil
	}
	if err := set("title", &t.Title, p.Title); err != nil {
		return Task{}, err
	}
	if err := set("description", &t.Description, p.Description); err != nil {
		return Task{}, err
	}
	if err := set("eta", &t.ETA, p.ETA); err != nil {
		return Task{}, err
	}
	if err := set("status", &t.Status, p.Status); err != nil {
		return Task{}, err
	}
	if p.Priority != nil {
		pr, err := ParsePriority(*p.Priority)
		if err != nil {
			return Task{}, err
		}
		t.Priority = pr
	}
	return t, nil
}
