package transport

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jonwraymond/bulwark/fault"
)

// TokenSource supplies bearer tokens for outgoing requests.
type TokenSource interface {
	// Token returns a token valid at the time of the call.
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

// Token returns the static token.
func (t StaticToken) Token(_ context.Context) (string, error) {
	return string(t), nil
}

// SignedTokenConfig configures a SignedToken source.
type SignedTokenConfig struct {
	// Issuer is the iss claim.
	Issuer string

	// Subject is the sub claim.
	Subject string

	// Audience is the aud claim. Optional.
	Audience string

	// TTL is the token lifetime.
	// Default: 5 minutes.
	TTL time.Duration

	// RefreshMargin is how long before expiry a new token is minted.
	// Default: TTL / 10.
	RefreshMargin time.Duration
}

// SignedToken mints HMAC-SHA256 signed JWTs and caches each one until it
// nears expiry, so concurrent callers share a token instead of minting
// per request.
type SignedToken struct {
	config SignedTokenConfig
	secret []byte
	now    func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewSignedToken creates a signed token source from an HMAC secret.
func NewSignedToken(secret []byte, config SignedTokenConfig) *SignedToken {
	if config.TTL <= 0 {
		config.TTL = 5 * time.Minute
	}
	if config.RefreshMargin <= 0 {
		config.RefreshMargin = config.TTL / 10
	}
	return &SignedToken{
		config: config,
		secret: secret,
		now:    time.Now,
	}
}

// Token returns the cached token, minting a fresh one when the cached
// token is within the refresh margin of expiry.
func (s *SignedToken) Token(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.token != "" && now.Before(s.expires.Add(-s.config.RefreshMargin)) {
		return s.token, nil
	}

	expires := now.Add(s.config.TTL)
	claims := jwt.MapClaims{
		"iat": now.Unix(),
		"exp": expires.Unix(),
	}
	if s.config.Issuer != "" {
		claims["iss"] = s.config.Issuer
	}
	if s.config.Subject != "" {
		claims["sub"] = s.config.Subject
	}
	if s.config.Audience != "" {
		claims["aud"] = s.config.Audience
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fault.Wrap(err, "transport: sign token")
	}

	s.token = token
	s.expires = expires
	return token, nil
}
