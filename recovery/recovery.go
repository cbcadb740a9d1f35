// Package recovery implements the password reset flow: requesting a reset
// link, validating the link the user comes back with and setting the new
// password.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/stackhead/task-management-app/baas"
	"github.com/stackhead/task-management-app/domain"
)

const (
	// MaxSecretLen is the longest secret a reset link may carry.
	MaxSecretLen = 256
	// ExpiryGrace is added to a link's expiry before it is rejected.
	ExpiryGrace = 5 * time.Minute
	// VerifyTimeout bounds the confirm call to the account service.
	VerifyTimeout = 60 * time.Second
	// MinPasswordLen is the shortest accepted password.
	MinPasswordLen = 8

	resetPath = "/auth/reset-password?userId={userId}&secret={secret}&expire={expire}"
)

var (
	ErrLinkInvalid         = errors.New("invalid reset link, request a new link")
	ErrLinkExpired         = errors.New("this reset link has expired, request a new link")
	ErrVerificationTimeout = errors.New("verification failed, please try again")
)

// Link holds the parameters of a reset link. Expire is zero when the link
// carries no expiry.
type Link struct {
	UserID string
	Secret string
	Expire time.Time
}

// ParseLink reads userId, secret and the optional expire (unix seconds)
// from the query of a reset link.
func ParseLink(v url.Values) (Link, error) {
	l := Link{UserID: strings.TrimSpace(v.Get("userId")), Secret: v.Get("secret")}
	if l.UserID == "" || l.Secret == "" || len(l.Secret) > MaxSecretLen {
		return Link{}, ErrLinkInvalid
	}
	if raw := strings.TrimSpace(v.Get("expire")); raw != "" {
		sec, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Link{}, ErrLinkInvalid
		}
		l.Expire = time.Unix(sec, 0)
	}
	return l, nil
}

// Check reports whether the link is still usable at now.
func (l Link) Check(now time.Time) error {
	if l.UserID == "" || l.Secret == "" || len(l.Secret) > MaxSecretLen {
		return ErrLinkInvalid
	}
	if !l.Expire.IsZero() && now.After(l.Expire.Add(ExpiryGrace)) {
		return ErrLinkExpired
	}
	return nil
}

// ValidatePassword checks the new password and its confirmation.
func ValidatePassword(password, confirm string) error {
	if len(password) < MinPasswordLen {
		return domain.Invalid("password", fmt.Sprintf("password must be at least %d characters", MinPasswordLen))
	}
	if password != confirm {
		return domain.Invalid("confirmPassword", "passwords do not match")
	}
	return nil
}

// ResetURL returns the redirect URL handed to the account service. The
// placeholders are filled in by the service when it sends the email.
func ResetURL(origin string) string {
	return strings.TrimRight(origin, "/") + resetPath
}

// Service runs the recovery flow against the account service.
type Service struct {
	identity baas.Identity
	logger   *log.Logger
	timeout  time.Duration
	now      func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithTimeout overrides VerifyTimeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewService(identity baas.Identity, opts ...Option) *Service {
	s := &Service{
		identity: identity,
		logger:   log.StandardLogger(),
		timeout:  VerifyTimeout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Request asks the account service to email a reset link.
func (s *Service) Request(ctx context.Context, email, redirectURL string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return domain.Invalid("email", "email is required")
	}
	for _, p := range []string{"{userId}", "{secret}", "{expire}"} {
		if !strings.Contains(redirectURL, p) {
			return domain.Invalid("url", "redirect url must carry "+p)
		}
	}
	if err := s.identity.CreateRecovery(ctx, email, redirectURL); err != nil {
		return &domain.RemoteError{Op: "create recovery", Err: err}
	}
	return nil
}

// Verify checks a link without contacting the account service.
func (s *Service) Verify(link Link) error {
	return link.Check(s.now())
}

// Confirm validates the link and password, then sets the new password. The
// account service call is abandoned once the verification deadline passes.
func (s *Service) Confirm(ctx context.Context, link Link, password, confirm string) error {
	if err := link.Check(s.now()); err != nil {
		return err
	}
	if err := ValidatePassword(password, confirm); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.identity.ConfirmRecovery(ctx, link.UserID, link.Secret, password)
	}()

	select {
	case err := <-done:
		switch {
		case err == nil:
			return nil
		case errors.Is(err, context.DeadlineExceeded):
			return ErrVerificationTimeout
		case errors.Is(err, domain.ErrNotAuthenticated), errors.Is(err, domain.ErrNotFound):
			// The account service rejects used and expired secrets this way.
			return ErrLinkExpired
		default:
			s.logger.WithError(err).WithField("user", link.UserID).Warn("confirm recovery failed")
			return &domain.RemoteError{Op: "confirm recovery", Err: err}
		}
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			s.logger.WithField("user", link.UserID).Warn("confirm recovery timed out")
			return ErrVerificationTimeout
		}
		return ctx.Err()
	}
}
