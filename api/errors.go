package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/stackhead/task-management-app/board"
	"github.com/stackhead/task-management-app/domain"
	"github.com/stackhead/task-management-app/recovery"
)

var (
	errDuplicateRequest   = errors.New("duplicate request")
	errEmptySessionSecret = errors.New("account service returned no session secret")
)

// statusFor maps an error to the HTTP status it is reported with. Order
// matters: data-load and cascade failures wrap other sentinels.
func statusFor(err error) int {
	var cascade *board.CascadeError
	var remote *domain.RemoteError
	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &httpErr):
		return httpErr.Code
	case errors.Is(err, domain.ErrDataLoad), errors.As(err, &cascade):
		return http.StatusBadGateway
	case errors.Is(err, recovery.ErrLinkExpired):
		return http.StatusGone
	case errors.Is(err, recovery.ErrLinkInvalid):
		return http.StatusBadRequest
	case errors.Is(err, recovery.ErrVerificationTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrNotConfirmed), errors.Is(err, domain.ErrConflict),
		errors.Is(err, errDuplicateRequest),
		errors.Is(err, board.ErrDragActive), errors.Is(err, board.ErrNotDragging):
		return http.StatusConflict
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &remote):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// messageFor keeps internal details out of responses for auth and server
// errors.
func messageFor(status int, err error) string {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		if msg, ok := httpErr.Message.(string); ok {
			return msg
		}
	}
	switch {
	case status == http.StatusUnauthorized:
		return domain.ErrNotAuthenticated.Error()
	case status == http.StatusForbidden:
		return domain.ErrUnauthorized.Error()
	case errors.Is(err, domain.ErrDataLoad):
		return domain.ErrDataLoad.Error()
	case status == http.StatusInternalServerError:
		return http.StatusText(status)
	}
	return err.Error()
}

func writeError(c echo.Context, err error) error {
	status := statusFor(err)
	resp := errorResponse{Error: messageFor(status, err)}

	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		resp.Field = verr.Field
	}
	var cascade *board.CascadeError
	if errors.As(err, &cascade) {
		resp.Remaining = cascade.Remaining
		resp.Queued = cascade.Queued
	}
	if m := metricsFrom(c); m != nil {
		m.SetError(err)
	}
	return c.JSON(status, resp)
}

// writePrompt answers a destructive request that was not confirmed.
func writePrompt(c echo.Context, p board.Prompt) error {
	if m := metricsFrom(c); m != nil {
		m.SetErrorStage("confirm")
	}
	return c.JSON(http.StatusConflict, errorResponse{Error: domain.ErrNotConfirmed.Error(), Prompt: &p})
}
