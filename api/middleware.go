package api

import (
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"github.com/stackhead/task-management-app/domain"
)

// HeaderIdempotencyKey marks a mutation that must be applied at most once.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	principalKey = "principal"
	sessionKey   = "board_session"
	freshKey     = "board_fresh"
)

// GzipRequestMiddleware decompresses gzip-encoded request bodies. Invalid
// gzip payloads are rejected with a 400 response.
func GzipRequestMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !hasGzipEncoding(req.Header.Get(echo.HeaderContentEncoding)) {
				return next(c)
			}
			gr, err := gzip.NewReader(req.Body)
			if err != nil {
				_ = req.Body.Close()
				return echo.NewHTTPError(http.StatusBadRequest, "invalid gzip body")
			}
			req.Body = &gzipReadCloser{Reader: gr, body: req.Body}
			req.ContentLength = -1
			req.Header.Del(echo.HeaderContentEncoding)
			req.Header.Del(echo.HeaderContentLength)
			return next(c)
		}
	}
}

func hasGzipEncoding(header string) bool {
	for _, enc := range strings.Split(header, ",") {
		if strings.EqualFold(strings.TrimSpace(enc), "gzip") {
			return true
		}
	}
	return false
}

type gzipReadCloser struct {
	*gzip.Reader
	body io.Closer
}

func (g *gzipReadCloser) Close() error {
	err := g.Reader.Close()
	if cerr := g.body.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// authenticate resolves the caller and refuses signed-out sessions.
func (s *Server) authenticate(c echo.Context) (principal, error) {
	p, err := resolvePrincipal(c.Request(), s.auth, s.now(), s.sessionTTL)
	if err != nil {
		return principal{}, err
	}
	if s.revoker != nil {
		revoked, err := s.revoker.Revoked(c.Request().Context(), p.Key)
		if err != nil {
			return principal{}, fmt.Errorf("check revocation: %w", err)
		}
		if revoked {
			return principal{}, fmt.Errorf("%w: %w", domain.ErrNotAuthenticated, errRevoked)
		}
	}
	return p, nil
}

// withPrincipal requires a signed-in caller without loading its board.
func (s *Server) withPrincipal(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, err := s.authenticate(c)
		if err != nil {
			if m := metricsFrom(c); m != nil {
				m.SetErrorStage("auth")
			}
			return writeError(c, err)
		}
		c.Set(principalKey, p)
		return next(c)
	}
}

// withBoard requires a signed-in caller and its loaded board.
func (s *Server) withBoard(next echo.HandlerFunc) echo.HandlerFunc {
	return s.withPrincipal(func(c echo.Context) error {
		start := time.Now()
		sess, fresh, err := s.sessions.Get(c.Request().Context(), principalFrom(c))
		if m := metricsFrom(c); m != nil {
			m.ObserveSession(time.Since(start), fresh)
		}
		if err != nil {
			if m := metricsFrom(c); m != nil {
				m.SetErrorStage("session")
			}
			return writeError(c, err)
		}
		c.Set(sessionKey, sess)
		c.Set(freshKey, fresh)
		return next(c)
	})
}

// idempotent rejects a replayed Idempotency-Key. The key is released when
// the request does not succeed so the client may retry.
func (s *Server) idempotent(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		key := strings.TrimSpace(c.Request().Header.Get(HeaderIdempotencyKey))
		if key == "" || s.deduper == nil {
			return next(c)
		}
		scope := principalFrom(c).Key
		ctx := c.Request().Context()
		added, err := s.deduper.Add(ctx, scope, key)
		if err != nil {
			return writeError(c, fmt.Errorf("record idempotency key: %w", err))
		}
		if !added {
			return writeError(c, errDuplicateRequest)
		}
		if m := metricsFrom(c); m != nil {
			m.SetIdempotent(true)
		}

		err = next(c)
		if err != nil || c.Response().Status >= http.StatusBadRequest {
			if rerr := s.deduper.Remove(ctx, scope, key); rerr != nil {
				s.logger.WithError(rerr).WithField("key", key).Warn("release idempotency key")
			}
		}
		return err
	}
}

func principalFrom(c echo.Context) principal {
	p, _ := c.Get(principalKey).(principal)
	return p
}

func boardFrom(c echo.Context) *boardSession {
	sess, _ := c.Get(sessionKey).(*boardSession)
	return sess
}

func freshBoard(c echo.Context) bool {
	fresh, _ := c.Get(freshKey).(bool)
	return fresh
}

// sonicSerializer encodes echo responses with sonic.
type sonicSerializer struct{}

func (sonicSerializer) Serialize(c echo.Context, i any, indent string) error {
	enc := sonic.ConfigStd.NewEncoder(c.Response())
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(i)
}

func (sonicSerializer) Deserialize(c echo.Context, i any) error {
	return decodeBody(c, i)
}

func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, maxBodySize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body").SetInternal(err)
	}
	return nil
}
