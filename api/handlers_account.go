package api

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/stackhead/task-management-app/baas"
	"github.com/stackhead/task-management-app/domain"
	"github.com/stackhead/task-management-app/recovery"
)

var oauthScopes = []string{"profile", "email"}

func (s *Server) signup(c echo.Context) error {
	var req signupRequest
	if err := decodeBody(c, &req); err != nil {
		return writeError(c, err)
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	switch {
	case req.Name == "":
		return writeError(c, domain.Invalid("name", "name is required"))
	case req.Email == "":
		return writeError(c, domain.Invalid("email", "email is required"))
	case len(req.Password) < recovery.MinPasswordLen:
		return writeError(c, domain.Invalid("password", "password must be at least 8 characters"))
	}
	user, err := s.client.Identity.CreateAccount(c.Request().Context(), req.Email, req.Password, req.Name)
	if err != nil {
		return writeError(c, err)
	}
	s.logger.WithField("user", user.ID).Info("account created")
	return c.JSON(http.StatusCreated, user)
}

func (s *Server) login(c echo.Context) error {
	var req loginRequest
	if err := decodeBody(c, &req); err != nil {
		return writeError(c, err)
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		return writeError(c, domain.Invalid("email", "email and password are required"))
	}
	sess, err := s.client.Identity.CreateSession(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return writeError(c, err)
	}
	if sess.Secret == "" {
		return writeError(c, &domain.RemoteError{Op: "create session", Err: errEmptySessionSecret})
	}
	expires := s.now().Add(s.sessionTTL)
	if sess.Expire > 0 {
		expires = time.Unix(sess.Expire, 0)
	}
	c.SetCookie(sessionCookie(sess.Secret, expires, s.secure))
	return c.JSON(http.StatusCreated, sessionResponse{UserID: sess.UserID, Expire: expires.Unix()})
}

func (s *Server) logout(c echo.Context) error {
	p := principalFrom(c)
	ctx := c.Request().Context()
	err := s.client.Identity.DeleteSession(ctx, p.Credential)
	if err != nil && !errors.Is(err, domain.ErrNotAuthenticated) && !errors.Is(err, domain.ErrNotFound) {
		return writeError(c, err)
	}
	s.signOut(c, p)
	return c.NoContent(http.StatusNoContent)
}

// signOut forgets the board of p, blocks its credential until it expires and
// clears the cookie.
func (s *Server) signOut(c echo.Context, p principal) {
	s.sessions.Drop(p.Key)
	if s.revoker != nil {
		until := p.ExpiresAt
		if until.IsZero() {
			until = s.now().Add(s.sessionTTL)
		}
		if err := s.revoker.Revoke(c.Request().Context(), p.Key, until); err != nil {
			s.logger.WithError(err).Warn("record revoked session")
		}
	}
	c.SetCookie(clearedSessionCookie(s.secure))
}

func (s *Server) oauth(c echo.Context) error {
	provider := c.Param("provider")
	mode := c.QueryParam("mode")
	switch mode {
	case "":
		mode = "login"
	case "login", "signup":
	default:
		return writeError(c, domain.Invalid("mode", "mode must be login or signup"))
	}
	success := url.Values{"mode": {mode}, "provider": {provider}}
	failure := url.Values{"error": {"authentication_failed"}, "provider": {provider}}
	target, err := s.client.Identity.OAuthURL(baas.OAuthRequest{
		Provider:   provider,
		SuccessURL: s.origin + "/auth/oauth-callback?" + success.Encode(),
		FailureURL: s.origin + "/auth/" + mode + "?" + failure.Encode(),
		Scopes:     oauthScopes,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.Redirect(http.StatusFound, target)
}

func (s *Server) deleteAccount(c echo.Context) error {
	var req deleteAccountRequest
	if err := decodeBody(c, &req); err != nil {
		return writeError(c, err)
	}
	p := principalFrom(c)
	user, _ := boardFrom(c).store.Identity()
	if err := s.profiles.DeleteAccount(c.Request().Context(), p.Credential, user.ID, req.Confirmation); err != nil {
		return writeError(c, err)
	}
	s.signOut(c, p)
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) requestRecovery(c echo.Context) error {
	var req recoveryRequest
	if err := decodeBody(c, &req); err != nil {
		return writeError(c, err)
	}
	if err := s.recovery.Request(c.Request().Context(), req.Email, recovery.ResetURL(s.origin)); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) verifyRecovery(c echo.Context) error {
	link, err := recovery.ParseLink(c.QueryParams())
	if err != nil {
		return writeError(c, err)
	}
	if err := s.recovery.Verify(link); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) confirmRecovery(c echo.Context) error {
	var req resetRequest
	if err := decodeBody(c, &req); err != nil {
		return writeError(c, err)
	}
	link, err := recovery.ParseLink(url.Values{
		"userId": {req.UserID},
		"secret": {req.Secret},
		"expire": {req.Expire},
	})
	if err != nil {
		return writeError(c, err)
	}
	if err := s.recovery.Confirm(c.Request().Context(), link, req.Password, req.ConfirmPassword); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) passwordStrength(c echo.Context) error {
	var req strengthRequest
	if err := decodeBody(c, &req); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, recovery.Rate(req.Password))
}

func (s *Server) getProfile(c echo.Context) error {
	user, _ := boardFrom(c).store.Identity()
	p, _, err := s.profiles.Profile(c.Request().Context(), user.ID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (s *Server) putProfile(c echo.Context) error {
	var in domain.Profile
	if err := decodeBody(c, &in); err != nil {
		return writeError(c, err)
	}
	user, _ := boardFrom(c).store.Identity()
	p, err := s.profiles.SaveProfile(c.Request().Context(), user.ID, in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (s *Server) getPreferences(c echo.Context) error {
	user, _ := boardFrom(c).store.Identity()
	p, err := s.profiles.Preferences(c.Request().Context(), user.ID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// putPreferences decodes the body over the stored preferences, so omitted
// fields keep their current values.
func (s *Server) putPreferences(c echo.Context) error {
	ctx := c.Request().Context()
	user, _ := boardFrom(c).store.Identity()
	in, err := s.profiles.Preferences(ctx, user.ID)
	if err != nil {
		return writeError(c, err)
	}
	if err := decodeBody(c, &in); err != nil {
		return writeError(c, err)
	}
	p, err := s.profiles.SavePreferences(ctx, user.ID, in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}
