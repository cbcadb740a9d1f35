package api

import (
	"github.com/stackhead/task-management-app/board"
	"github.com/stackhead/task-management-app/domain"
)

const maxBodySize = 64 * 1024 // 64 KiB

type errorResponse struct {
	Error     string        `json:"error"`
	Field     string        `json:"field,omitempty"`
	Prompt    *board.Prompt `json:"prompt,omitempty"`
	Remaining []string      `json:"remaining,omitempty"`
	Queued    bool          `json:"queued,omitempty"`
}

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	UserID string `json:"userId"`
	Expire int64  `json:"expire,omitempty"`
}

type deleteAccountRequest struct {
	Confirmation string `json:"confirmation"`
}

type recoveryRequest struct {
	Email string `json:"email"`
}

type resetRequest struct {
	UserID          string `json:"userId"`
	Secret          string `json:"secret"`
	Expire          string `json:"expire"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type strengthRequest struct {
	Password string `json:"password"`
}

type boardResponse struct {
	User    domain.Identity `json:"user"`
	Columns []domain.Column `json:"columns"`
	Tasks   []domain.Task   `json:"tasks"`
}

type columnRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

type moveRequest struct {
	SourceColumnID string `json:"sourceColumnId"`
	TargetColumnID string `json:"targetColumnId"`
}

type dragBeginRequest struct {
	TaskID string `json:"taskId"`
}

type dragOverRequest struct {
	ColumnID string `json:"columnId"`
}

type dragStateResponse struct {
	State    string            `json:"state"`
	Payload  board.DragPayload `json:"payload"`
	ColumnID string            `json:"columnId,omitempty"`
}

type dropResponse struct {
	Moved bool         `json:"moved"`
	Task  *domain.Task `json:"task,omitempty"`
}
