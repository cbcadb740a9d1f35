package board

import "context"

// Prompt is shown to the user before a destructive operation.
type Prompt struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	// Count is the number of tasks removed along with the target.
	Count int `json:"count"`
}

// Confirmer asks the user to approve a Prompt.
type Confirmer interface {
	Confirm(ctx context.Context, p Prompt) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, p Prompt) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, p Prompt) (bool, error) { return f(ctx, p) }

var (
	// Confirmed approves every prompt.
	Confirmed Confirmer = ConfirmFunc(func(context.Context, Prompt) (bool, error) { return true, nil })
	// Declined rejects every prompt.
	Declined Confirmer = ConfirmFunc(func(context.Context, Prompt) (bool, error) { return false, nil })
)
