package api

import (
	"errors"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
)

const defaultJWKSCacheTTL = 15 * time.Minute

// Claims are the parts of a verified session token the API relies on.
type Claims struct {
	UserID    string
	SessionID string
	ExpiresAt time.Time
}

// Auth validates bearer session tokens. With a shared secret it accepts HS256
// tokens signed locally; otherwise RS256 tokens whose keys come from a JWKS.
type Auth struct {
	JWKS     *keyfunc.JWKS
	Audience string
	Issuer   string
	Secret   []byte

	parser      *jwt.Parser
	keyCache    sync.Map
	keyCacheTTL time.Duration
}

type cachedKey struct {
	key       any
	expiresAt time.Time
}

// AuthConfig configures NewAuth. Secret switches to local HS256 mode.
type AuthConfig struct {
	JWKS        *keyfunc.JWKS
	Audience    string
	Issuer      string
	Secret      []byte
	KeyCacheTTL time.Duration
}

// NewAuth creates a new Auth instance.
func NewAuth(cfg AuthConfig) *Auth {
	a := &Auth{
		JWKS:        cfg.JWKS,
		Audience:    cfg.Audience,
		Issuer:      cfg.Issuer,
		Secret:      cfg.Secret,
		keyCacheTTL: cfg.KeyCacheTTL,
	}
	if a.keyCacheTTL <= 0 {
		a.keyCacheTTL = defaultJWKSCacheTTL
	}
	if a.local() {
		a.parser = jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}))
	} else {
		a.parser = jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}))
	}
	return a
}

func (a *Auth) local() bool { return len(a.Secret) > 0 }

// Verify checks the token signature and standard claims and returns the
// subject and session id.
func (a *Auth) Verify(token []byte) (Claims, error) {
	if len(token) == 0 {
		return Claims{}, errBadAuthorization
	}
	if a.parser == nil {
		return Claims{}, errors.New("auth not initialised")
	}

	tokenStr := readOnlyString(token)
	parsed, err := a.parser.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if a.local() {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("invalid signing method")
			}
			return a.Secret, nil
		}
		return a.keyForToken(t)
	})
	if err != nil {
		return Claims{}, err
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, errors.New("invalid claims")
	}

	now := time.Now().Add(time.Minute).Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return Claims{}, errors.New("token expired")
	}
	if !claims.VerifyNotBefore(now, false) {
		return Claims{}, errors.New("token not valid yet")
	}
	if !claims.VerifyIssuedAt(now, false) {
		return Claims{}, errors.New("token used before issued")
	}
	if a.Audience != "" && !claims.VerifyAudience(a.Audience, false) {
		return Claims{}, errors.New("invalid audience")
	}
	if a.Issuer != "" && !claims.VerifyIssuer(a.Issuer, false) {
		return Claims{}, errors.New("invalid issuer")
	}

	out := Claims{}
	out.UserID, _ = claims["sub"].(string)
	if out.UserID == "" {
		out.UserID, _ = claims["userId"].(string)
	}
	if out.UserID == "" {
		return Claims{}, errors.New("missing sub")
	}
	out.SessionID, _ = claims["sid"].(string)
	if out.SessionID == "" {
		out.SessionID, _ = claims["sessionId"].(string)
	}
	if exp, ok := claims["exp"].(float64); ok {
		out.ExpiresAt = time.Unix(int64(exp), 0)
	}
	return out, nil
}

func (a *Auth) keyForToken(token *jwt.Token) (any, error) {
	if a.JWKS == nil {
		return nil, errors.New("jwks not configured")
	}

	kid, _ := token.Header["kid"].(string)
	if kid != "" {
		if cached, ok := a.keyCache.Load(kid); ok {
			entry := cached.(cachedKey)
			if time.Now().Before(entry.expiresAt) {
				return entry.key, nil
			}
			a.keyCache.Delete(kid)
		}
	}

	key, err := a.JWKS.Keyfunc(token)
	if err != nil {
		return nil, err
	}

	if kid != "" {
		a.keyCache.Store(kid, cachedKey{key: key, expiresAt: time.Now().Add(a.keyCacheTTL)})
	}
	return key, nil
}

// LocalToken describes a token minted for local development.
type LocalToken struct {
	UserID    string
	SessionID string
	Audience  string
	Issuer    string
	TTL       time.Duration
}

// SignLocalToken signs an HS256 token accepted by an Auth configured with the
// same secret.
func SignLocalToken(secret []byte, t LocalToken) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("empty signing secret")
	}
	if t.UserID == "" {
		return "", errors.New("empty user id")
	}
	if t.TTL <= 0 {
		t.TTL = time.Hour
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": t.UserID,
		"iat": now.Unix(),
		"exp": now.Add(t.TTL).Unix(),
	}
	if t.SessionID != "" {
		claims["sid"] = t.SessionID
	}
	if t.Audience != "" {
		claims["aud"] = t.Audience
	}
	if t.Issuer != "" {
		claims["iss"] = t.Issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
