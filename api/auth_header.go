package api

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unsafe"

	"github.com/labstack/echo/v4"

	"github.com/stackhead/task-management-app/domain"
)

// SessionCookie holds the account session secret of a browser sign-in.
const SessionCookie = "board_session"

var (
	errMissingAuthorization = errors.New("missing authorization header")
	errBadAuthorization     = errors.New("bad auth header")
	errRevoked              = errors.New("session revoked")
)

var bearerPrefix = [...]byte{'B', 'e', 'a', 'r', 'e', 'r', ' '}

// principal is the caller of a request. Key identifies the sign-in for the
// session registry and revocation; Credential is forwarded to the account
// service.
type principal struct {
	Key        string
	Credential string
	UserID     string
	ExpiresAt  time.Time
}

// resolvePrincipal reads a bearer token first and falls back to the session
// cookie.
func resolvePrincipal(req *http.Request, auth Authenticator, now time.Time, cookieTTL time.Duration) (principal, error) {
	if h := req.Header.Get(echo.HeaderAuthorization); h != "" {
		token, err := bearerTokenFromString(h)
		if err != nil {
			return principal{}, fmt.Errorf("%w: %w", domain.ErrNotAuthenticated, err)
		}
		claims, err := auth.Verify(token)
		if err != nil {
			return principal{}, fmt.Errorf("%w: %w", domain.ErrNotAuthenticated, err)
		}
		p := principal{
			Credential: string(token),
			UserID:     claims.UserID,
			ExpiresAt:  claims.ExpiresAt,
		}
		if claims.SessionID != "" {
			p.Key = "sid:" + claims.SessionID
		} else {
			p.Key = "tok:" + digest(p.Credential)
		}
		return p, nil
	}

	ck, err := req.Cookie(SessionCookie)
	if err != nil || strings.TrimSpace(ck.Value) == "" {
		return principal{}, fmt.Errorf("%w: %w", domain.ErrNotAuthenticated, errMissingAuthorization)
	}
	return principal{
		Key:        "ck:" + digest(ck.Value),
		Credential: ck.Value,
		ExpiresAt:  now.Add(cookieTTL),
	}, nil
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:16])
}

func bearerTokenFromString(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errMissingAuthorization
	}
	tokenBytes := readOnlyBytes(raw)
	if len(tokenBytes) <= len(bearerPrefix) || !hasBearerPrefix(tokenBytes) {
		return nil, errBadAuthorization
	}
	tokenBytes = tokenBytes[len(bearerPrefix):]
	dots := 0
	for _, b := range tokenBytes {
		if b == '.' {
			dots++
		}
	}
	if dots != 2 {
		return nil, errBadAuthorization
	}
	return tokenBytes, nil
}

func hasBearerPrefix(value []byte) bool {
	for i := range bearerPrefix {
		if value[i] != bearerPrefix[i] {
			return false
		}
	}
	return true
}

func readOnlyBytes(s string) []byte {
	if s == "" {
		return nil
	}
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

func readOnlyString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(&b[0], len(b))
}

func sessionCookie(value string, expires time.Time, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookie,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func clearedSessionCookie(secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}
