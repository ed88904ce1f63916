package auth

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// ErrSecretsNotDistinct is returned when both classes would share a secret,
// which would let a reset token verify as a session token.
var ErrSecretsNotDistinct = errors.New("auth: session and reset secrets must differ")

// SessionClaims is the closed claim set of a session token.
type SessionClaims struct {
	Class  TokenClass `json:"cls"`
	Email  string     `json:"email"`
	Role   Role       `json:"role"`
	UserID int64      `json:"uid"`
	jwt.RegisteredClaims
}

func (c *SessionClaims) tokenClass() TokenClass          { return ClassSession }
func (c *SessionClaims) standard() jwt.RegisteredClaims { return c.RegisteredClaims }

// Validate is invoked by the jwt validator after the signature verified.
func (c *SessionClaims) Validate() error {
	if c.Class != ClassSession {
		return errWrongClass
	}
	if c.Email == "" || c.UserID <= 0 || !c.Role.IsValid() {
		return errClaimsIncomplete
	}
	return nil
}

// ResetClaims is the closed claim set of a password-reset token.
type ResetClaims struct {
	Class TokenClass `json:"cls"`
	Email string     `json:"email"`
	jwt.RegisteredClaims
}

func (c *ResetClaims) tokenClass() TokenClass          { return ClassReset }
func (c *ResetClaims) standard() jwt.RegisteredClaims { return c.RegisteredClaims }

// Validate is invoked by the jwt validator after the signature verified.
func (c *ResetClaims) Validate() error {
	if c.Class != ClassReset {
		return errWrongClass
	}
	if c.Email == "" {
		return errClaimsIncomplete
	}
	return nil
}

// TokenServiceConfig wires the two codecs.
type TokenServiceConfig struct {
	Issuer        string
	Audience      string
	SessionSecret []byte
	ResetSecret   []byte
	SessionTTL    time.Duration
	ResetTTL      time.Duration
	ClockSkew     time.Duration
	Now           func() time.Time
	Logger        *zap.Logger
}

// TokenService issues and validates session and reset tokens. Each class has
// its own codec and secret.
type TokenService struct {
	session *HMACCodec
	reset   *HMACCodec
	logger  *zap.Logger
}

// NewTokenService validates cfg and builds both codecs. Zero TTLs fall back to
// DefaultTokenTTL.
func NewTokenService(cfg TokenServiceConfig) (*TokenService, error) {
	if len(cfg.SessionSecret) > 0 && bytes.Equal(cfg.SessionSecret, cfg.ResetSecret) {
		return nil, ErrSecretsNotDistinct
	}

	shared := []CodecOption{WithClockSkew(cfg.ClockSkew), WithNowFunc(cfg.Now)}

	session, err := NewHMACCodec(ClassSession, cfg.SessionSecret, cfg.Issuer, cfg.Audience,
		append(shared, WithTTL(ttlOrDefault(cfg.SessionTTL)))...)
	if err != nil {
		return nil, fmt.Errorf("session codec: %w", err)
	}
	reset, err := NewHMACCodec(ClassReset, cfg.ResetSecret, cfg.Issuer, cfg.Audience,
		append(shared, WithTTL(ttlOrDefault(cfg.ResetTTL)))...)
	if err != nil {
		return nil, fmt.Errorf("reset codec: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenService{session: session, reset: reset, logger: logger}, nil
}

func ttlOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultTokenTTL
	}
	return d
}

// IssueSessionToken mints a session token carrying the principal's identity
// and role.
func (s *TokenService) IssueSessionToken(p Principal) (Token, error) {
	if p.ID <= 0 || p.Email == "" || !p.Role.IsValid() {
		return Token{}, ErrInvalidPrincipal
	}
	if !p.Active {
		return Token{}, ErrPrincipalInactive
	}
	return s.session.sign(&SessionClaims{
		Class:            ClassSession,
		Email:            p.Email,
		Role:             p.Role,
		UserID:           p.ID,
		RegisteredClaims: s.session.registered(),
	})
}

// IssueResetToken mints a reset token that carries only the email.
func (s *TokenService) IssueResetToken(email string) (Token, error) {
	if email == "" {
		return Token{}, ErrInvalidPrincipal
	}
	return s.reset.sign(&ResetClaims{
		Class:            ClassReset,
		Email:            email,
		RegisteredClaims: s.reset.registered(),
	})
}

// ValidateSessionToken verifies raw against the session secret and returns
// its claims.
func (s *TokenService) ValidateSessionToken(raw string) (SessionClaims, error) {
	var claims SessionClaims
	if err := s.session.parse(raw, &claims); err != nil {
		s.logRejection(ClassSession, err)
		return SessionClaims{}, err
	}
	return claims, nil
}

// ValidateResetToken verifies raw against the reset secret and returns the
// embedded email.
func (s *TokenService) ValidateResetToken(raw string) (string, error) {
	var claims ResetClaims
	if err := s.reset.parse(raw, &claims); err != nil {
		s.logRejection(ClassReset, err)
		return "", err
	}
	return claims.Email, nil
}

// Authenticate validates a session token and maps it onto a Principal.
func (s *TokenService) Authenticate(raw string) (Principal, error) {
	claims, err := s.ValidateSessionToken(raw)
	if err != nil {
		return Principal{}, err
	}
	return ToPrincipal(claims), nil
}

// SessionTTL returns the configured session lifetime.
func (s *TokenService) SessionTTL() time.Duration { return s.session.TTL() }

// ResetTTL returns the configured reset lifetime.
func (s *TokenService) ResetTTL() time.Duration { return s.reset.TTL() }

func (s *TokenService) logRejection(class TokenClass, err error) {
	s.logger.Debug("token rejected",
		zap.Stringer("class", class),
		zap.Stringer("reason", KindOf(err)),
		zap.NamedError("cause", errors.Unwrap(err)))
}
