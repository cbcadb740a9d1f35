// Package account is a client for the hosted account service REST API:
// identity lookup, sessions, OAuth redirects, password recovery and account
// deletion.
package account

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"github.com/stackhead/task-management-app/baas"
	"github.com/stackhead/task-management-app/domain"
)

const (
	projectHeader = "X-Appwrite-Project"
	sessionHeader = "X-Appwrite-Session"
	jwtHeader     = "X-Appwrite-JWT"
	keyHeader     = "X-Appwrite-Key"
)

// Client talks to the account API. It implements baas.Identity.
type Client struct {
	endpoint string
	project  string
	apiKey   string
	http     *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithAPIKey sets the server key sent when creating sessions. Without it the
// account API omits the session secret from its answer.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// New returns a client for the API rooted at endpoint, e.g.
// https://cloud.example.io/v1.
func New(endpoint, project string, opts ...Option) *Client {
	c := &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		project:  project,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx answer from the account API.
type APIError struct {
	Status  int
	Type    string
	Message string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("account api %d %s: %s", e.Status, e.Type, e.Message)
	}
	return fmt.Sprintf("account api %d: %s", e.Status, e.Message)
}

// Unwrap maps the status to a domain sentinel.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized:
		return domain.ErrNotAuthenticated
	case http.StatusForbidden:
		return domain.ErrUnauthorized
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusConflict:
		return domain.ErrConflict
	case http.StatusBadRequest:
		return domain.ErrValidation
	}
	return nil
}

type user struct {
	ID                string `json:"$id"`
	Name              string `json:"name"`
	Email             string `json:"email"`
	EmailVerification bool   `json:"emailVerification"`
}

func (u user) identity() domain.Identity {
	return domain.Identity{ID: u.ID, Name: u.Name, Email: u.Email, EmailVerified: u.EmailVerification}
}

type session struct {
	ID     string `json:"$id"`
	UserID string `json:"userId"`
	Secret string `json:"secret"`
	Expire string `json:"expire"`
}

func (c *Client) CurrentIdentity(ctx context.Context, sessionSecret string) (domain.Identity, error) {
	if sessionSecret == "" {
		return domain.Identity{}, domain.ErrNotAuthenticated
	}
	var u user
	if err := c.do(ctx, http.MethodGet, "/account", sessionSecret, nil, &u); err != nil {
		return domain.Identity{}, err
	}
	return u.identity(), nil
}

func (c *Client) CreateAccount(ctx context.Context, email, password, name string) (domain.Identity, error) {
	body := map[string]string{
		"userId":   uuid.NewString(),
		"email":    email,
		"password": password,
		"name":     name,
	}
	var u user
	if err := c.do(ctx, http.MethodPost, "/account", "", body, &u); err != nil {
		return domain.Identity{}, err
	}
	return u.identity(), nil
}

func (c *Client) CreateSession(ctx context.Context, email, password string) (baas.Session, error) {
	var s session
	body := map[string]string{"email": email, "password": password}
	if err := c.send(ctx, http.MethodPost, "/account/sessions/email", c.keyHeaders(), body, &s); err != nil {
		return baas.Session{}, err
	}
	out := baas.Session{ID: s.ID, UserID: s.UserID, Secret: s.Secret}
	if s.Expire != "" {
		exp, err := time.Parse(time.RFC3339Nano, s.Expire)
		if err != nil {
			return baas.Session{}, fmt.Errorf("parse session expiry: %w", err)
		}
		out.Expire = exp.Unix()
	}
	return out, nil
}

func (c *Client) DeleteSession(ctx context.Context, sessionSecret string) error {
	return c.do(ctx, http.MethodDelete, "/account/sessions/current", sessionSecret, nil, nil)
}

// OAuthURL builds the URL the browser is redirected to for an OAuth sign-in.
func (c *Client) OAuthURL(req baas.OAuthRequest) (string, error) {
	switch req.Provider {
	case "google", "github":
	default:
		return "", domain.Invalid("provider", fmt.Sprintf("unsupported provider %q", req.Provider))
	}
	q := url.Values{}
	q.Set("project", c.project)
	q.Set("success", req.SuccessURL)
	q.Set("failure", req.FailureURL)
	for _, s := range req.Scopes {
		q.Add("scopes[]", s)
	}
	return c.endpoint + "/account/sessions/oauth2/" + req.Provider + "?" + q.Encode(), nil
}

func (c *Client) CreateRecovery(ctx context.Context, email, redirectURL string) error {
	return c.do(ctx, http.MethodPost, "/account/recovery", "", map[string]string{"email": email, "url": redirectURL}, nil)
}

func (c *Client) ConfirmRecovery(ctx context.Context, userID, secret, password string) error {
	body := map[string]string{"userId": userID, "secret": secret, "password": password}
	return c.do(ctx, http.MethodPut, "/account/recovery", "", body, nil)
}

func (c *Client) DeleteAccount(ctx context.Context, sessionSecret string) error {
	return c.do(ctx, http.MethodDelete, "/account", sessionSecret, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path, sessionSecret string, in, out any) error {
	header := http.Header{}
	if sessionSecret != "" {
		header.Set(credentialHeader(sessionSecret), sessionSecret)
	}
	return c.send(ctx, method, path, header, in, out)
}

func (c *Client) keyHeaders() http.Header {
	header := http.Header{}
	if c.apiKey != "" {
		header.Set(keyHeader, c.apiKey)
	}
	return header
}

func (c *Client) send(ctx context.Context, method, path string, header http.Header, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := sonic.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, body)
	if err != nil {
		return err
	}
	req.Header.Set(projectHeader, c.project)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var payload struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		}
		if sonic.Unmarshal(data, &payload) == nil {
			apiErr.Message = payload.Message
			apiErr.Type = payload.Type
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: decode: %w", method, path, err)
	}
	return nil
}

// credentialHeader picks the header for a caller credential. Session secrets
// are opaque; signed tokens have three dot separated segments.
func credentialHeader(credential string) string {
	if strings.Count(credential, ".") == 2 {
		return jwtHeader
	}
	return sessionHeader
}
