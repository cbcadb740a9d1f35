package account

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/bytedance/sonic"

	"github.com/stackhead/task-management-app/baas"
	"github.com/stackhead/task-management-app/domain"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/v1/", "proj-1", WithHTTPClient(srv.Client()))
}

func TestCurrentIdentity(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v1/account" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get(projectHeader) != "proj-1" || r.Header.Get(sessionHeader) != "secret-1" {
			t.Fatalf("missing headers: %v", r.Header)
		}
		_, _ = io.WriteString(w, `{"$id":"u1","name":"Ada","email":"ada@example.com","emailVerification":true}`)
	})

	id, err := c.CurrentIdentity(context.Background(), "secret-1")
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	if id != (domain.Identity{ID: "u1", Name: "Ada", Email: "ada@example.com", EmailVerified: true}) {
		t.Fatalf("unexpected identity %#v", id)
	}
}

func TestSignedTokenUsesJWTHeader(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(jwtHeader) != "a.b.c" || r.Header.Get(sessionHeader) != "" {
			t.Fatalf("unexpected credential headers: %v", r.Header)
		}
		_, _ = io.WriteString(w, `{"$id":"u1"}`)
	})
	if _, err := c.CurrentIdentity(context.Background(), "a.b.c"); err != nil {
		t.Fatalf("identity: %v", err)
	}
}

func TestCurrentIdentityWithoutSession(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected request")
	})
	if _, err := c.CurrentIdentity(context.Background(), ""); !errors.Is(err, domain.ErrNotAuthenticated) {
		t.Fatalf("expected not authenticated, got %v", err)
	}
}

func TestErrorsMapToSentinels(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, domain.ErrNotAuthenticated},
		{http.StatusNotFound, domain.ErrNotFound},
		{http.StatusConflict, domain.ErrConflict},
		{http.StatusBadRequest, domain.ErrValidation},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, `{"message":"nope","type":"general_error"}`)
			})
			err := c.DeleteSession(context.Background(), "s")
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			var apiErr *APIError
			if !errors.As(err, &apiErr) || apiErr.Message != "nope" || apiErr.Type != "general_error" {
				t.Fatalf("unexpected api error %#v", apiErr)
			}
		})
	}
}

func TestServerErrorIsNotASentinel(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	err := c.DeleteAccount(context.Background(), "s")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "Bad Gateway" {
		t.Fatalf("unexpected error %v", err)
	}
	if errors.Is(err, domain.ErrNotAuthenticated) || errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("5xx must not map to a client error")
	}
}

func TestCreateSessionParsesExpiry(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/account/sessions/email" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var body map[string]string
		data, _ := io.ReadAll(r.Body)
		if err := sonic.Unmarshal(data, &body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if r.Header.Get(keyHeader) != "key-1" || r.Header.Get(sessionHeader) != "" {
			t.Fatalf("unexpected headers %v", r.Header)
		}
		if body["email"] != "ada@example.com" || body["password"] != "hunter22" {
			t.Fatalf("unexpected body %v", body)
		}
		_, _ = io.WriteString(w, `{"$id":"s1","userId":"u1","secret":"sec","expire":"2026-11-01T10:00:00.000+00:00"}`)
	})
	WithAPIKey("key-1")(c)

	s, err := c.CreateSession(context.Background(), "ada@example.com", "hunter22")
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if s.ID != "s1" || s.UserID != "u1" || s.Secret != "sec" || s.Expire != 1793527200 {
		t.Fatalf("unexpected session %#v", s)
	}
}

func TestCreateAccountGeneratesUserID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		data, _ := io.ReadAll(r.Body)
		_ = sonic.Unmarshal(data, &body)
		if body["userId"] == "" || body["name"] != "Ada" {
			t.Fatalf("unexpected body %v", body)
		}
		_, _ = io.WriteString(w, `{"$id":"`+body["userId"]+`","name":"Ada","email":"ada@example.com"}`)
	})
	id, err := c.CreateAccount(context.Background(), "ada@example.com", "hunter22", "Ada")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id.ID == "" || id.EmailVerified {
		t.Fatalf("unexpected identity %#v", id)
	}
}

func TestRecoveryCalls(t *testing.T) {
	var seen []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		seen = append(seen, r.Method+" "+r.URL.Path+" "+string(data))
		w.WriteHeader(http.StatusNoContent)
	})
	ctx := context.Background()
	if err := c.CreateRecovery(ctx, "ada@example.com", "https://app/reset"); err != nil {
		t.Fatalf("create recovery: %v", err)
	}
	if err := c.ConfirmRecovery(ctx, "u1", "sec", "newpassword"); err != nil {
		t.Fatalf("confirm recovery: %v", err)
	}
	if len(seen) != 2 || !strings.HasPrefix(seen[0], "POST /v1/account/recovery") || !strings.HasPrefix(seen[1], "PUT /v1/account/recovery") {
		t.Fatalf("unexpected calls %v", seen)
	}
	if !strings.Contains(seen[1], `"secret":"sec"`) {
		t.Fatalf("expected secret in body: %s", seen[1])
	}
}

func TestOAuthURL(t *testing.T) {
	c := New("https://accounts.example.io/v1", "proj-1")
	raw, err := c.OAuthURL(baas.OAuthRequest{
		Provider:   "github",
		SuccessURL: "https://app/auth/oauth-callback?mode=login&provider=github",
		FailureURL: "https://app/auth/login?error=authentication_failed&provider=github",
		Scopes:     []string{"profile", "email"},
	})
	if err != nil {
		t.Fatalf("oauth url: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.Path != "/v1/account/sessions/oauth2/github" {
		t.Fatalf("unexpected path %s", u.Path)
	}
	q := u.Query()
	if q.Get("project") != "proj-1" || q.Get("success") != "https://app/auth/oauth-callback?mode=login&provider=github" || len(q["scopes[]"]) != 2 {
		t.Fatalf("unexpected query %v", q)
	}

	if _, err := c.OAuthURL(baas.OAuthRequest{Provider: "myspace"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected unsupported provider rejection, got %v", err)
	}
}

func TestAPIKeyOnlyOnSessionCreation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(keyHeader) != "" {
			t.Fatalf("server key leaked to %s", r.URL.Path)
		}
		_, _ = io.WriteString(w, `{"$id":"u1"}`)
	})
	WithAPIKey("key-1")(c)

	if _, err := c.CurrentIdentity(context.Background(), "secret-1"); err != nil {
		t.Fatalf("identity: %v", err)
	}
}
