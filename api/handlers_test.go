package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/stackhead/task-management-app/account"
	"github.com/stackhead/task-management-app/baas"
	"github.com/stackhead/task-management-app/domain"
	"github.com/stackhead/task-management-app/profile"
	"github.com/stackhead/task-management-app/recovery"
	"github.com/stackhead/task-management-app/storage"
)

type fakeIdentity struct {
	mu       sync.Mutex
	users    map[string]domain.Identity
	sessions []string
	deleted  []string
	accounts []string
	confirms []string
	// noSecret mimics an account API that withholds the session secret.
	noSecret bool
}

func (f *fakeIdentity) CurrentIdentity(_ context.Context, credential string) (domain.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[credential]
	if !ok {
		return domain.Identity{}, &account.APIError{Status: http.StatusUnauthorized, Message: "missing scope"}
	}
	return u, nil
}

func (f *fakeIdentity) CreateAccount(_ context.Context, email, _, name string) (domain.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if email == "taken@example.com" {
		return domain.Identity{}, &account.APIError{Status: http.StatusConflict, Message: "user already exists"}
	}
	f.accounts = append(f.accounts, email)
	return domain.Identity{ID: "new-user", Name: name, Email: email}, nil
}

func (f *fakeIdentity) CreateSession(_ context.Context, email, password string) (baas.Session, error) {
	if password != "correct-horse" {
		return baas.Session{}, &account.APIError{Status: http.StatusUnauthorized, Message: "invalid credentials"}
	}
	sess := baas.Session{ID: "sess-1", UserID: "user-1", Secret: "secret-1", Expire: time.Now().Add(time.Hour).Unix()}
	if f.noSecret {
		sess.Secret = ""
	}
	return sess, nil
}

func (f *fakeIdentity) DeleteSession(_ context.Context, credential string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = append(f.sessions, credential)
	return nil
}

func (f *fakeIdentity) OAuthURL(req baas.OAuthRequest) (string, error) {
	return account.New("https://accounts.example/v1", "proj").OAuthURL(req)
}

func (f *fakeIdentity) CreateRecovery(context.Context, string, string) error { return nil }

func (f *fakeIdentity) ConfirmRecovery(_ context.Context, userID, secret, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirms = append(f.confirms, userID+":"+secret)
	return nil
}

func (f *fakeIdentity) DeleteAccount(_ context.Context, credential string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, credential)
	return nil
}

type harness struct {
	e        *echo.Echo
	ids      *fakeIdentity
	docs     *storage.SQLite
	sessions *Registry
	hook     *test.Hook
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	docs, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "board.sqlite"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = docs.Close() })

	ids := &fakeIdentity{users: map[string]domain.Identity{
		"secret-1": {ID: "user-1", Name: "Ada", Email: "ada@example.com"},
		"secret-2": {ID: "user-2", Name: "Grace", Email: "grace@example.com"},
	}}
	client := baas.NewClient(ids, docs, nil)
	logger, hook := test.NewNullLogger()
	_, rc := newTestRedis(t)
	reg := NewRegistry(client, time.Hour, logger)

	e := echo.New()
	Register(e, Deps{
		Client:       client,
		Auth:         NewAuth(AuthConfig{Secret: testSecret}),
		Sessions:     reg,
		Recovery:     recovery.NewService(ids, recovery.WithLogger(logger)),
		Profiles:     profile.NewService(client, logger),
		Deduper:      NewRedisDeduper(rc, time.Hour),
		Revoker:      NewRedisRevoker(rc),
		PublicOrigin: "https://board.example/",
		SessionTTL:   time.Hour,
		Logger:       logger,
	})
	return &harness{e: e, ids: ids, docs: docs, sessions: reg, hook: hook}
}

type reqOpt func(*http.Request)

func withCookie(secret string) reqOpt {
	return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: SessionCookie, Value: secret}) }
}

func withBearer(token string) reqOpt {
	return func(r *http.Request) { r.Header.Set(echo.HeaderAuthorization, "Bearer "+token) }
}

func withIdempotencyKey(key string) reqOpt {
	return func(r *http.Request) { r.Header.Set(HeaderIdempotencyKey, key) }
}

func (h *harness) do(method, path, body string, opts ...reqOpt) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	h.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := sonic.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("invalid json %q: %v", rec.Body.String(), err)
	}
	return v
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d got %d: %s", want, rec.Code, rec.Body.String())
	}
}

func TestBoardRequiresSession(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/api/board", "")
	expectStatus(t, rec, http.StatusUnauthorized)
	if resp := decode[errorResponse](t, rec); resp.Error != "not authenticated" {
		t.Fatalf("unexpected error %q", resp.Error)
	}

	rec = h.do(http.MethodGet, "/api/board", "", withCookie("unknown"))
	expectStatus(t, rec, http.StatusUnauthorized)
	if h.sessions.Len() != 0 {
		t.Fatalf("failed loads must not be kept")
	}
}

func TestBoardScopedToCaller(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.docs.Create(ctx, baas.Columns, "user-2", "", map[string]any{"name": "Theirs", "color": "#6B7280"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec := h.do(http.MethodGet, "/api/board", "", withCookie("secret-1"))
	expectStatus(t, rec, http.StatusOK)
	resp := decode[boardResponse](t, rec)
	if resp.User.ID != "user-1" || len(resp.Columns) != 0 || len(resp.Tasks) != 0 {
		t.Fatalf("unexpected board %#v", resp)
	}
}

func TestDragTaskToDone(t *testing.T) {
	h := newHarness(t)
	auth := withCookie("secret-1")

	rec := h.do(http.MethodPost, "/api/columns", `{"name":"To Do","color":"#3B82F6"}`, auth)
	expectStatus(t, rec, http.StatusCreated)
	todo := decode[domain.Column](t, rec)
	if !todo.IsNew || todo.OwnerID != "user-1" {
		t.Fatalf("unexpected column %#v", todo)
	}
	rec = h.do(http.MethodPost, "/api/columns", `{"name":"Done"}`, auth)
	expectStatus(t, rec, http.StatusCreated)
	done := decode[domain.Column](t, rec)
	if done.Color != domain.Palette[0] {
		t.Fatalf("expected default colour, got %q", done.Color)
	}

	rec = h.do(http.MethodPost, "/api/tasks",
		`{"title":"Write spec","description":"draft","eta":"tomorrow","status":"`+todo.ID+`","priority":"high"}`, auth)
	expectStatus(t, rec, http.StatusCreated)
	task := decode[domain.Task](t, rec)

	expectStatus(t, h.do(http.MethodPost, "/api/drag/begin", `{"taskId":"`+task.ID+`"}`, auth), http.StatusOK)
	rec = h.do(http.MethodPost, "/api/drag/over", `{"columnId":"`+done.ID+`"}`, auth)
	expectStatus(t, rec, http.StatusOK)
	if st := decode[dragStateResponse](t, rec); st.State != "over" || st.ColumnID != done.ID || st.Payload.SourceColumnID != todo.ID {
		t.Fatalf("unexpected drag state %#v", st)
	}
	rec = h.do(http.MethodPost, "/api/drag/drop", "", auth)
	expectStatus(t, rec, http.StatusOK)
	drop := decode[dropResponse](t, rec)
	if !drop.Moved || drop.Task == nil || drop.Task.Status != done.ID {
		t.Fatalf("unexpected drop %#v", drop)
	}

	rec = h.do(http.MethodGet, "/api/board", "", auth)
	expectStatus(t, rec, http.StatusOK)
	board := decode[boardResponse](t, rec)
	if len(board.Tasks) != 1 || board.Tasks[0].Status != done.ID || board.Tasks[0].Priority != domain.PriorityHigh {
		t.Fatalf("unexpected tasks %#v", board.Tasks)
	}

	expectStatus(t, h.do(http.MethodPost, "/api/drag/drop", "", auth), http.StatusConflict)
}

func TestDragReleaseDoesNotMove(t *testing.T) {
	h := newHarness(t)
	auth := withCookie("secret-1")
	col := decode[domain.Column](t, h.do(http.MethodPost, "/api/columns", `{"name":"To Do"}`, auth))
	task := decode[domain.Task](t, h.do(http.MethodPost, "/api/tasks",
		`{"title":"t","description":"d","eta":"e","status":"`+col.ID+`"}`, auth))

	expectStatus(t, h.do(http.MethodPost, "/api/drag/begin", `{"taskId":"`+task.ID+`"}`, auth), http.StatusOK)
	expectStatus(t, h.do(http.MethodPost, "/api/drag/begin", `{"taskId":"`+task.ID+`"}`, auth), http.StatusConflict)
	expectStatus(t, h.do(http.MethodPost, "/api/drag/release", "", auth), http.StatusNoContent)

	rec := h.do(http.MethodGet, "/api/drag", "", auth)
	if st := decode[dragStateResponse](t, rec); st.State != "idle" {
		t.Fatalf("expected idle after release, got %#v", st)
	}
}

func TestDeleteColumnAsksForConfirmation(t *testing.T) {
	h := newHarness(t)
	auth := withCookie("secret-1")
	col := decode[domain.Column](t, h.do(http.MethodPost, "/api/columns", `{"name":"Doing"}`, auth))
	for _, title := range []string{"a", "b"} {
		expectStatus(t, h.do(http.MethodPost, "/api/tasks",
			`{"title":"`+title+`","description":"d","eta":"e","status":"`+col.ID+`"}`, auth), http.StatusCreated)
	}

	rec := h.do(http.MethodDelete, "/api/columns/"+col.ID, "", auth)
	expectStatus(t, rec, http.StatusConflict)
	resp := decode[errorResponse](t, rec)
	if resp.Prompt == nil || resp.Prompt.Count != 2 || !strings.Contains(resp.Prompt.Message, "2 task(s)") {
		t.Fatalf("unexpected prompt %#v", resp.Prompt)
	}

	expectStatus(t, h.do(http.MethodDelete, "/api/columns/"+col.ID+"?confirm=true", "", auth), http.StatusNoContent)
	board := decode[boardResponse](t, h.do(http.MethodGet, "/api/board", "", auth))
	if len(board.Columns) != 0 || len(board.Tasks) != 0 {
		t.Fatalf("expected empty board, got %#v", board)
	}
	left, _ := h.docs.List(context.Background(), baas.Tasks, "user-1")
	if len(left) != 0 {
		t.Fatalf("expected cascade delete in storage, found %d tasks", len(left))
	}
}

func TestTaskEndpoints(t *testing.T) {
	h := newHarness(t)
	auth := withCookie("secret-1")
	a := decode[domain.Column](t, h.do(http.MethodPost, "/api/columns", `{"name":"A"}`, auth))
	b := decode[domain.Column](t, h.do(http.MethodPost, "/api/columns", `{"name":"B"}`, auth))

	rec := h.do(http.MethodPost, "/api/tasks", `{"title":" ","description":"d","eta":"e","status":"`+a.ID+`"}`, auth)
	expectStatus(t, rec, http.StatusBadRequest)
	if resp := decode[errorResponse](t, rec); resp.Field != "title" {
		t.Fatalf("expected title field error, got %#v", resp)
	}
	expectStatus(t, h.do(http.MethodPost, "/api/tasks", `{"title":"x","bogus":1}`, auth), http.StatusBadRequest)

	task := decode[domain.Task](t, h.do(http.MethodPost, "/api/tasks",
		`{"title":"t","description":"d","eta":"e","status":"`+a.ID+`"}`, auth))
	if task.Priority != domain.PriorityNormal {
		t.Fatalf("expected default priority, got %q", task.Priority)
	}

	rec = h.do(http.MethodPatch, "/api/tasks/"+task.ID, `{"title":"renamed"}`, auth)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[domain.Task](t, rec); got.Title != "renamed" || got.Description != "d" {
		t.Fatalf("unexpected update %#v", got)
	}

	expectStatus(t, h.do(http.MethodPost, "/api/tasks/"+task.ID+"/move", `{}`, auth), http.StatusBadRequest)
	rec = h.do(http.MethodPost, "/api/tasks/"+task.ID+"/move", `{"targetColumnId":"`+b.ID+`"}`, auth)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[domain.Task](t, rec); got.Status != b.ID {
		t.Fatalf("expected move to %s, got %#v", b.ID, got)
	}
	expectStatus(t, h.do(http.MethodPost, "/api/tasks/missing/move", `{"targetColumnId":"`+b.ID+`"}`, auth), http.StatusNotFound)

	rec = h.do(http.MethodDelete, "/api/tasks/"+task.ID, "", auth)
	expectStatus(t, rec, http.StatusConflict)
	if resp := decode[errorResponse](t, rec); resp.Prompt == nil || resp.Prompt.Title != "Delete Task" {
		t.Fatalf("unexpected prompt %#v", resp)
	}
	expectStatus(t, h.do(http.MethodDelete, "/api/tasks/"+task.ID+"?confirm=true", "", auth), http.StatusNoContent)
	expectStatus(t, h.do(http.MethodDelete, "/api/tasks/"+task.ID+"?confirm=true", "", auth), http.StatusNotFound)
}

func TestIdempotencyKeyRejectsReplay(t *testing.T) {
	h := newHarness(t)
	auth := withCookie("secret-1")

	expectStatus(t, h.do(http.MethodPost, "/api/columns", `{"name":"To Do"}`, auth, withIdempotencyKey("k1")), http.StatusCreated)
	expectStatus(t, h.do(http.MethodPost, "/api/columns", `{"name":"To Do"}`, auth, withIdempotencyKey("k1")), http.StatusConflict)

	board := decode[boardResponse](t, h.do(http.MethodGet, "/api/board", "", auth))
	if len(board.Columns) != 1 {
		t.Fatalf("expected a single column, got %d", len(board.Columns))
	}
}

func TestIdempotencyKeyReleasedOnFailure(t *testing.T) {
	h := newHarness(t)
	auth := withCookie("secret-1")

	expectStatus(t, h.do(http.MethodPost, "/api/columns", `{"name":""}`, auth, withIdempotencyKey("k1")), http.StatusBadRequest)
	expectStatus(t, h.do(http.MethodPost, "/api/columns", `{"name":"To Do"}`, auth, withIdempotencyKey("k1")), http.StatusCreated)
}

func TestLoginSetsCookieAndLogoutRevokes(t *testing.T) {
	h := newHarness(t)

	expectStatus(t, h.do(http.MethodPost, "/api/session", `{"email":"ada@example.com","password":"wrong"}`), http.StatusUnauthorized)

	rec := h.do(http.MethodPost, "/api/session", `{"email":"ada@example.com","password":"correct-horse"}`)
	expectStatus(t, rec, http.StatusCreated)
	if resp := decode[sessionResponse](t, rec); resp.UserID != "user-1" {
		t.Fatalf("unexpected session %#v", resp)
	}
	var cookie *http.Cookie
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == SessionCookie {
			cookie = ck
		}
	}
	if cookie == nil || cookie.Value != "secret-1" || !cookie.HttpOnly || !cookie.Secure {
		t.Fatalf("unexpected cookie %#v", cookie)
	}

	auth := withCookie(cookie.Value)
	expectStatus(t, h.do(http.MethodGet, "/api/board", "", auth), http.StatusOK)
	if h.sessions.Len() != 1 {
		t.Fatalf("expected one board, have %d", h.sessions.Len())
	}

	expectStatus(t, h.do(http.MethodDelete, "/api/session", "", auth), http.StatusNoContent)
	if len(h.ids.sessions) != 1 || h.ids.sessions[0] != "secret-1" {
		t.Fatalf("expected account session delete, got %v", h.ids.sessions)
	}
	if h.sessions.Len() != 0 {
		t.Fatalf("expected board dropped on logout")
	}
	expectStatus(t, h.do(http.MethodGet, "/api/board", "", auth), http.StatusUnauthorized)
}

func TestLoginWithoutSessionSecretFails(t *testing.T) {
	h := newHarness(t)
	h.ids.noSecret = true

	rec := h.do(http.MethodPost, "/api/session", `{"email":"ada@example.com","password":"correct-horse"}`)
	expectStatus(t, rec, http.StatusBadGateway)
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == SessionCookie {
			t.Fatalf("no cookie expected, got %#v", ck)
		}
	}
}

func TestBearerTokenMustMatchIdentity(t *testing.T) {
	h := newHarness(t)
	own, _ := SignLocalToken(testSecret, LocalToken{UserID: "user-1", SessionID: "s1"})
	other, _ := SignLocalToken(testSecret, LocalToken{UserID: "user-2", SessionID: "s2"})
	h.ids.users[own] = domain.Identity{ID: "user-1"}
	h.ids.users[other] = domain.Identity{ID: "user-1"}

	expectStatus(t, h.do(http.MethodGet, "/api/board", "", withBearer(own)), http.StatusOK)
	expectStatus(t, h.do(http.MethodGet, "/api/board", "", withBearer(other)), http.StatusUnauthorized)
}

func TestSignup(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/api/account", `{"name":"Ada","email":"ada@example.com","password":"short"}`)
	expectStatus(t, rec, http.StatusBadRequest)
	if resp := decode[errorResponse](t, rec); resp.Field != "password" {
		t.Fatalf("expected password error, got %#v", resp)
	}
	expectStatus(t, h.do(http.MethodPost, "/api/account", `{"name":"Ada","email":"taken@example.com","password":"longenough"}`), http.StatusConflict)
	rec = h.do(http.MethodPost, "/api/account", `{"name":"Ada","email":"ada@example.com","password":"longenough"}`)
	expectStatus(t, rec, http.StatusCreated)
	if len(h.ids.accounts) != 1 {
		t.Fatalf("expected one account, got %v", h.ids.accounts)
	}
}

func TestOAuthRedirect(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/api/session/oauth/github?mode=signup", "")
	expectStatus(t, rec, http.StatusFound)
	loc, err := url.Parse(rec.Header().Get(echo.HeaderLocation))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	q := loc.Query()
	if got := q.Get("success"); got != "https://board.example/auth/oauth-callback?mode=signup&provider=github" {
		t.Fatalf("unexpected success url %q", got)
	}
	if got := q.Get("failure"); got != "https://board.example/auth/signup?error=authentication_failed&provider=github" {
		t.Fatalf("unexpected failure url %q", got)
	}
	if got := q["scopes[]"]; len(got) != 2 {
		t.Fatalf("unexpected scopes %v", got)
	}

	expectStatus(t, h.do(http.MethodGet, "/api/session/oauth/myspace", ""), http.StatusBadRequest)
	expectStatus(t, h.do(http.MethodGet, "/api/session/oauth/google?mode=admin", ""), http.StatusBadRequest)
}

func TestRecoveryEndpoints(t *testing.T) {
	h := newHarness(t)
	past := time.Now().Add(-recovery.ExpiryGrace - time.Hour).Unix()
	future := time.Now().Add(time.Hour).Unix()

	expectStatus(t, h.do(http.MethodPost, "/api/recovery", `{"email":"ada@example.com"}`), http.StatusAccepted)
	expectStatus(t, h.do(http.MethodPost, "/api/recovery", `{"email":""}`), http.StatusBadRequest)

	rec := h.do(http.MethodGet, "/api/recovery/verify?userId=u1&secret=abc&expire="+itoa(past), "")
	expectStatus(t, rec, http.StatusGone)
	if resp := decode[errorResponse](t, rec); !strings.Contains(resp.Error, "request a new link") {
		t.Fatalf("unexpected message %q", resp.Error)
	}
	expectStatus(t, h.do(http.MethodGet, "/api/recovery/verify?secret=abc", ""), http.StatusBadRequest)
	expectStatus(t, h.do(http.MethodGet, "/api/recovery/verify?userId=u1&secret=abc&expire="+itoa(future), ""), http.StatusNoContent)

	body := `{"userId":"u1","secret":"abc","expire":"` + itoa(past) + `","password":"longenough","confirmPassword":"longenough"}`
	expectStatus(t, h.do(http.MethodPut, "/api/recovery", body), http.StatusGone)
	if len(h.ids.confirms) != 0 {
		t.Fatalf("expired link must not reach the account service")
	}

	body = `{"userId":"u1","secret":"abc","expire":"` + itoa(future) + `","password":"longenough","confirmPassword":"different1"}`
	rec = h.do(http.MethodPut, "/api/recovery", body)
	expectStatus(t, rec, http.StatusBadRequest)
	if resp := decode[errorResponse](t, rec); resp.Field != "confirmPassword" {
		t.Fatalf("expected mismatch error, got %#v", resp)
	}

	body = `{"userId":"u1","secret":"abc","expire":"` + itoa(future) + `","password":"longenough","confirmPassword":"longenough"}`
	expectStatus(t, h.do(http.MethodPut, "/api/recovery", body), http.StatusNoContent)
	if len(h.ids.confirms) != 1 || h.ids.confirms[0] != "u1:abc" {
		t.Fatalf("unexpected confirms %v", h.ids.confirms)
	}

	rec = h.do(http.MethodPost, "/api/recovery/strength", `{"password":"abc"}`)
	expectStatus(t, rec, http.StatusOK)
	if s := decode[recovery.Strength](t, rec); s.Progress >= 100 {
		t.Fatalf("weak password rated %d", s.Progress)
	}
}

func TestProfileAndPreferences(t *testing.T) {
	h := newHarness(t)
	auth := withCookie("secret-1")

	rec := h.do(http.MethodGet, "/api/preferences", "", auth)
	expectStatus(t, rec, http.StatusOK)
	if p := decode[domain.Preferences](t, rec); p != domain.DefaultPreferences() {
		t.Fatalf("expected defaults, got %#v", p)
	}
	expectStatus(t, h.do(http.MethodPut, "/api/preferences", `{"theme":"neon"}`, auth), http.StatusBadRequest)
	rec = h.do(http.MethodPut, "/api/preferences", `{"theme":"dark"}`, auth)
	expectStatus(t, rec, http.StatusOK)
	if p := decode[domain.Preferences](t, rec); p.Theme != "dark" || p.Language != "en" || !p.ShowOrgTasks {
		t.Fatalf("unexpected preferences %#v", p)
	}
	expectStatus(t, h.do(http.MethodPut, "/api/preferences", `{"showOrgTasks":false,"browserNotifications":true}`, auth), http.StatusOK)
	rec = h.do(http.MethodPut, "/api/preferences", `{"language":"de"}`, auth)
	expectStatus(t, rec, http.StatusOK)
	if p := decode[domain.Preferences](t, rec); p.Language != "de" || p.Theme != "dark" || p.ShowOrgTasks || !p.BrowserNotifications {
		t.Fatalf("omitted fields must keep stored values, got %#v", p)
	}

	expectStatus(t, h.do(http.MethodPut, "/api/profile", `{"firstName":""}`, auth), http.StatusBadRequest)
	expectStatus(t, h.do(http.MethodPut, "/api/profile", `{"firstName":"Ada","country":"UK"}`, auth), http.StatusOK)
	rec = h.do(http.MethodGet, "/api/profile", "", auth)
	expectStatus(t, rec, http.StatusOK)
	if p := decode[domain.Profile](t, rec); p.FirstName != "Ada" || p.OwnerID != "user-1" {
		t.Fatalf("unexpected profile %#v", p)
	}
}

func TestDeleteAccount(t *testing.T) {
	h := newHarness(t)
	auth := withCookie("secret-1")

	expectStatus(t, h.do(http.MethodDelete, "/api/account", `{"confirmation":"delete"}`, auth), http.StatusBadRequest)
	if len(h.ids.deleted) != 0 {
		t.Fatalf("account deleted without exact confirmation")
	}
	expectStatus(t, h.do(http.MethodDelete, "/api/account", `{"confirmation":"Delete"}`, auth), http.StatusNoContent)
	if len(h.ids.deleted) != 1 || h.ids.deleted[0] != "secret-1" {
		t.Fatalf("unexpected deletes %v", h.ids.deleted)
	}
	expectStatus(t, h.do(http.MethodGet, "/api/board", "", auth), http.StatusUnauthorized)
}

func TestRequestMetricsLogged(t *testing.T) {
	h := newHarness(t)
	expectStatus(t, h.do(http.MethodGet, "/api/board", "", withCookie("secret-1")), http.StatusOK)

	entry := h.hook.LastEntry()
	if entry == nil || entry.Message != "api.request.metrics" {
		t.Fatalf("expected metrics entry, got %#v", entry)
	}
	if entry.Level != log.InfoLevel {
		t.Fatalf("unexpected level %v", entry.Level)
	}
	if entry.Data["route"] != "/api/board" || entry.Data["status"] != http.StatusOK {
		t.Fatalf("unexpected fields %v", entry.Data)
	}
	if entry.Data["session_created"] != true {
		t.Fatalf("expected first request to load the board, got %v", entry.Data)
	}
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/healthz", "")
	expectStatus(t, rec, http.StatusOK)
	if got := decode[map[string]int](t, rec); got["sessions"] != 0 {
		t.Fatalf("unexpected health %v", got)
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.Invalid("name", "required"), http.StatusBadRequest},
		{domain.ErrNotAuthenticated, http.StatusUnauthorized},
		{domain.ErrUnauthorized, http.StatusForbidden},
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrNotConfirmed, http.StatusConflict},
		{errors.Join(domain.ErrDataLoad, domain.ErrNotFound), http.StatusBadGateway},
		{&domain.RemoteError{Op: "update", Err: errors.New("boom")}, http.StatusBadGateway},
		{&domain.RemoteError{Op: "update", Err: domain.ErrNotFound}, http.StatusNotFound},
		{recovery.ErrLinkExpired, http.StatusGone},
		{recovery.ErrLinkInvalid, http.StatusBadRequest},
		{recovery.ErrVerificationTimeout, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Fatalf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
