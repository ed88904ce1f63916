package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrJWTMissingSigningKey = errors.New("auth: missing signing key")
	ErrJWTWeakSigningKey    = errors.New("auth: signing key too short")
	ErrJWTMissingIssuer     = errors.New("auth: missing issuer")
	ErrJWTMissingAudience   = errors.New("auth: missing audience")
	ErrJWTInvalidTTL        = errors.New("auth: token ttl must be positive")

	errWrongClass       = errors.New("auth: token class mismatch")
	errClaimsIncomplete = errors.New("auth: token claims incomplete")
)

// MinSecretLength is the recommended minimum HMAC-SHA256 secret length.
const MinSecretLength = 32

// DefaultTokenTTL applies when no expiration is configured.
const DefaultTokenTTL = 30 * time.Minute

var signingMethod = jwt.SigningMethodHS256

// classClaims is implemented by the per-class claim structs so the codec can
// stamp and check the declared class.
type classClaims interface {
	jwt.Claims
	tokenClass() TokenClass
	standard() jwt.RegisteredClaims
}

// HMACCodec signs and verifies HS256 tokens for exactly one TokenClass. It is
// immutable after construction and safe for concurrent use.
type HMACCodec struct {
	class     TokenClass
	secret    []byte
	issuer    string
	audience  string
	ttl       time.Duration
	leeway    time.Duration
	minSecret int
	now       func() time.Time
}

// CodecOption configures an HMACCodec.
type CodecOption func(*HMACCodec)

// WithTTL sets the lifetime stamped into issued tokens.
func WithTTL(d time.Duration) CodecOption {
	return func(c *HMACCodec) { c.ttl = d }
}

// WithClockSkew allows exp to be exceeded by d. Zero is the default.
func WithClockSkew(d time.Duration) CodecOption {
	return func(c *HMACCodec) {
		if d > 0 {
			c.leeway = d
		}
	}
}

// WithNowFunc injects a clock (useful for tests).
func WithNowFunc(fn func() time.Time) CodecOption {
	return func(c *HMACCodec) {
		if fn != nil {
			c.now = fn
		}
	}
}

// WithMinSecretLength rejects secrets shorter than n bytes.
func WithMinSecretLength(n int) CodecOption {
	return func(c *HMACCodec) {
		if n > 0 {
			c.minSecret = n
		}
	}
}

// NewHMACCodec builds a codec bound to one class, secret, issuer and audience.
func NewHMACCodec(class TokenClass, secret []byte, issuer, audience string, opts ...CodecOption) (*HMACCodec, error) {
	if len(secret) == 0 {
		return nil, ErrJWTMissingSigningKey
	}
	if issuer == "" {
		return nil, ErrJWTMissingIssuer
	}
	if audience == "" {
		return nil, ErrJWTMissingAudience
	}

	c := &HMACCodec{
		class:    class,
		secret:   append([]byte(nil), secret...),
		issuer:   issuer,
		audience: audience,
		ttl:      DefaultTokenTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.ttl <= 0 {
		return nil, ErrJWTInvalidTTL
	}
	if c.minSecret > 0 && len(c.secret) < c.minSecret {
		return nil, fmt.Errorf("%w: need at least %d bytes", ErrJWTWeakSigningKey, c.minSecret)
	}
	return c, nil
}

// Class returns the credential class this codec serves.
func (c *HMACCodec) Class() TokenClass { return c.class }

// TTL returns the configured token lifetime.
func (c *HMACCodec) TTL() time.Duration { return c.ttl }

// registered stamps the standard claims for a token issued now.
func (c *HMACCodec) registered() jwt.RegisteredClaims {
	now := c.now()
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    c.issuer,
		Audience:  jwt.ClaimStrings{c.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
	}
}

func (c *HMACCodec) sign(claims classClaims) (Token, error) {
	if claims.tokenClass() != c.class {
		return Token{}, fmt.Errorf("%w: codec %s cannot sign %s claims", errWrongClass, c.class, claims.tokenClass())
	}
	raw, err := jwt.NewWithClaims(signingMethod, claims).SignedString(c.secret)
	if err != nil {
		return Token{}, fmt.Errorf("auth: sign %s token: %w", c.class, err)
	}

	std := claims.standard()
	tok := Token{Raw: raw, ID: std.ID, Class: c.class}
	if std.IssuedAt != nil {
		tok.IssuedAt = std.IssuedAt.Time
	}
	if std.ExpiresAt != nil {
		tok.ExpiresAt = std.ExpiresAt.Time
	}
	return tok, nil
}

// parse verifies raw into dest. Any failure is a *ValidationError.
func (c *HMACCodec) parse(raw string, dest classClaims) error {
	if raw == "" {
		return newValidationError(KindTokenMalformed, jwt.ErrTokenMalformed)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithExpirationRequired(),
		// jwt rejects now == exp; one nanosecond makes the bound inclusive.
		jwt.WithLeeway(c.leeway+time.Nanosecond),
		jwt.WithTimeFunc(c.now),
		jwt.WithStrictDecoding(),
	)
	_, err := parser.ParseWithClaims(raw, dest, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err == nil {
		return nil
	}

	kind := classifyJWTError(err)
	if kind == KindTokenSignatureInvalid && c.peekForeignClass(raw) {
		kind = KindTokenWrongClass
	}
	return newValidationError(kind, err)
}

// peekForeignClass reads the unverified class claim so a token from the other
// class is reported as such in diagnostics. Nothing else is trusted from it.
func (c *HMACCodec) peekForeignClass(raw string) bool {
	var peek struct {
		Class TokenClass `json:"cls"`
		jwt.RegisteredClaims
	}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &peek); err != nil {
		return false
	}
	return peek.Class != "" && peek.Class != c.class
}

func classifyJWTError(err error) Kind {
	switch {
	case errors.Is(err, errWrongClass):
		return KindTokenWrongClass
	case errors.Is(err, jwt.ErrTokenMalformed),
		errors.Is(err, jwt.ErrTokenRequiredClaimMissing),
		errors.Is(err, errClaimsIncomplete):
		return KindTokenMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return KindTokenSignatureInvalid
	case errors.Is(err, jwt.ErrTokenExpired):
		return KindTokenExpired
	case errors.Is(err, jwt.ErrTokenInvalidIssuer),
		errors.Is(err, jwt.ErrTokenInvalidAudience):
		return KindTokenWrongAudienceOrIssuer
	default:
		return KindTokenMalformed
	}
}
