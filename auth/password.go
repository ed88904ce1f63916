package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrPasswordTooShort         = errors.New("auth: password too short")
	ErrPasswordTooLong          = errors.New("auth: password too long")
	ErrPasswordNoUppercase      = errors.New("auth: password must contain uppercase letter")
	ErrPasswordNoLowercase      = errors.New("auth: password must contain lowercase letter")
	ErrPasswordNoDigit          = errors.New("auth: password must contain digit")
	ErrPasswordNoSpecial        = errors.New("auth: password must contain special character")
	ErrPasswordCommon           = errors.New("auth: password is too common")
	ErrPasswordMismatch         = errors.New("auth: password does not match")
	ErrPasswordInvalidAlgorithm = errors.New("auth: unsupported password algorithm")
	ErrPasswordInvalidHash      = errors.New("auth: invalid password hash")
)

// Password algorithm constants
const (
	AlgorithmBcrypt   = "bcrypt"
	AlgorithmArgon2id = "argon2id"
)

// Default password hashing parameters
const (
	DefaultBcryptCost    = 12
	DefaultArgon2Time    = 3
	DefaultArgon2Memory  = 64 * 1024 // 64 MB
	DefaultArgon2Threads = 4
	DefaultArgon2KeyLen  = 32
	DefaultSaltLength    = 16
	MinPasswordLength    = 8
	MaxPasswordLength    = 72 // bcrypt input limit
	RecommendedMinLength = 12
)

// PasswordHasher produces and checks self-describing hash strings. The
// encoded form carries its own salt and cost parameters.
type PasswordHasher interface {
	Algorithm() string
	Hash(ctx context.Context, plain []byte) (string, error)
	Compare(plain []byte, encoded string) error
	Recognizes(encoded string) bool
	NeedsRehash(encoded string) bool
}

// PasswordValidationOptions configures password strength requirements.
type PasswordValidationOptions struct {
	MinLength        int
	MaxLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireDigit     bool
	RequireSpecial   bool
	CheckCommon      bool
}

// DefaultPasswordValidation returns secure default password validation options.
func DefaultPasswordValidation() PasswordValidationOptions {
	return PasswordValidationOptions{
		MinLength:        MinPasswordLength,
		MaxLength:        MaxPasswordLength,
		RequireUppercase: true,
		RequireLowercase: true,
		RequireDigit:     true,
		RequireSpecial:   false,
		CheckCommon:      true,
	}
}

// StrictPasswordValidation returns strict validation for high-security environments.
func StrictPasswordValidation() PasswordValidationOptions {
	return PasswordValidationOptions{
		MinLength:        RecommendedMinLength,
		MaxLength:        MaxPasswordLength,
		RequireUppercase: true,
		RequireLowercase: true,
		RequireDigit:     true,
		RequireSpecial:   true,
		CheckCommon:      true,
	}
}

// ValidatePasswordStrength checks password against validation rules.
func ValidatePasswordStrength(password []byte, opts PasswordValidationOptions) error {
	if len(password) == 0 {
		return ErrPasswordTooShort
	}

	s := string(password)
	length := len([]rune(s))

	minLen := opts.MinLength
	if minLen <= 0 {
		minLen = MinPasswordLength
	}
	maxLen := opts.MaxLength
	if maxLen <= 0 {
		maxLen = MaxPasswordLength
	}

	if length < minLen {
		return ErrPasswordTooShort
	}
	if length > maxLen || len(password) > MaxPasswordLength {
		return ErrPasswordTooLong
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	if opts.RequireUppercase && !hasUpper {
		return ErrPasswordNoUppercase
	}
	if opts.RequireLowercase && !hasLower {
		return ErrPasswordNoLowercase
	}
	if opts.RequireDigit && !hasDigit {
		return ErrPasswordNoDigit
	}
	if opts.RequireSpecial && !hasSpecial {
		return ErrPasswordNoSpecial
	}

	if opts.CheckCommon && isCommonPassword(s) {
		return ErrPasswordCommon
	}

	return nil
}

// BcryptHasher implements PasswordHasher using bcrypt.
type BcryptHasher struct {
	cost int
}

// BcryptHasherOption configures BcryptHasher.
type BcryptHasherOption func(*BcryptHasher)

// WithBcryptCost sets the bcrypt cost factor.
func WithBcryptCost(cost int) BcryptHasherOption {
	return func(h *BcryptHasher) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			h.cost = cost
		}
	}
}

// NewBcryptHasher creates a new bcrypt-based password hasher.
func NewBcryptHasher(opts ...BcryptHasherOption) *BcryptHasher {
	h := &BcryptHasher{cost: DefaultBcryptCost}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

func (h *BcryptHasher) Algorithm() string { return AlgorithmBcrypt }

// Hash generates a bcrypt hash for the given password.
func (h *BcryptHasher) Hash(ctx context.Context, plain []byte) (string, error) {
	if err := contextError(ctx); err != nil {
		return "", err
	}
	if len(plain) > MaxPasswordLength {
		return "", ErrPasswordTooLong
	}
	hashed, err := bcrypt.GenerateFromPassword(plain, h.cost)
	if err != nil {
		return "", fmt.Errorf("auth: bcrypt hash failed: %w", err)
	}
	return string(hashed), nil
}

// Compare validates a password against a stored bcrypt hash.
func (h *BcryptHasher) Compare(plain []byte, encoded string) error {
	if !h.Recognizes(encoded) {
		return ErrPasswordInvalidAlgorithm
	}
	if err := bcrypt.CompareHashAndPassword([]byte(encoded), plain); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrPasswordMismatch
		}
		return fmt.Errorf("%w: %v", ErrPasswordInvalidHash, err)
	}
	return nil
}

// Recognizes reports whether encoded uses one of the bcrypt prefixes.
func (h *BcryptHasher) Recognizes(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") ||
		strings.HasPrefix(encoded, "$2b$") ||
		strings.HasPrefix(encoded, "$2y$")
}

// NeedsRehash returns true if the hash should be re-generated.
func (h *BcryptHasher) NeedsRehash(encoded string) bool {
	cost, err := bcrypt.Cost([]byte(encoded))
	if err != nil {
		return true
	}
	return cost < h.cost
}

// Argon2idHasher implements PasswordHasher using Argon2id.
type Argon2idHasher struct {
	time       uint32
	memory     uint32
	threads    uint8
	keyLen     uint32
	saltLength int
}

// Argon2idHasherOption configures Argon2idHasher.
type Argon2idHasherOption func(*Argon2idHasher)

// WithArgon2Time sets the time parameter (iterations).
func WithArgon2Time(t uint32) Argon2idHasherOption {
	return func(h *Argon2idHasher) {
		if t > 0 {
			h.time = t
		}
	}
}

// WithArgon2Memory sets the memory parameter in KB.
func WithArgon2Memory(m uint32) Argon2idHasherOption {
	return func(h *Argon2idHasher) {
		if m > 0 {
			h.memory = m
		}
	}
}

// WithArgon2Threads sets the parallelism parameter.
func WithArgon2Threads(t uint8) Argon2idHasherOption {
	return func(h *Argon2idHasher) {
		if t > 0 {
			h.threads = t
		}
	}
}

// WithArgon2KeyLen sets the output key length.
func WithArgon2KeyLen(l uint32) Argon2idHasherOption {
	return func(h *Argon2idHasher) {
		if l > 0 {
			h.keyLen = l
		}
	}
}

// NewArgon2idHasher creates a new Argon2id-based password hasher.
func NewArgon2idHasher(opts ...Argon2idHasherOption) *Argon2idHasher {
	h := &Argon2idHasher{
		time:       DefaultArgon2Time,
		memory:     DefaultArgon2Memory,
		threads:    DefaultArgon2Threads,
		keyLen:     DefaultArgon2KeyLen,
		saltLength: DefaultSaltLength,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

func (h *Argon2idHasher) Algorithm() string { return AlgorithmArgon2id }

// Hash generates an Argon2id hash in the PHC string format.
func (h *Argon2idHasher) Hash(ctx context.Context, plain []byte) (string, error) {
	if err := contextError(ctx); err != nil {
		return "", err
	}

	salt := make([]byte, h.saltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("auth: failed to generate salt: %w", err)
	}

	key := argon2.IDKey(plain, salt, h.time, h.memory, h.threads, h.keyLen)
	return encodeArgon2(argon2Params{time: h.time, memory: h.memory, threads: h.threads}, salt, key), nil
}

// Compare validates a password against a stored Argon2id hash.
func (h *Argon2idHasher) Compare(plain []byte, encoded string) error {
	params, salt, stored, err := decodeArgon2(encoded)
	if err != nil {
		return err
	}

	computed := argon2.IDKey(plain, salt, params.time, params.memory, params.threads, uint32(len(stored)))
	if subtle.ConstantTimeCompare(computed, stored) != 1 {
		return ErrPasswordMismatch
	}
	return nil
}

// Recognizes reports whether encoded is an argon2id PHC string.
func (h *Argon2idHasher) Recognizes(encoded string) bool {
	return strings.HasPrefix(encoded, "$argon2id$")
}

// NeedsRehash returns true if the hash should be re-generated.
func (h *Argon2idHasher) NeedsRehash(encoded string) bool {
	params, _, _, err := decodeArgon2(encoded)
	if err != nil {
		return true
	}
	return params.time < h.time || params.memory < h.memory || params.threads < h.threads
}

type argon2Params struct {
	time    uint32
	memory  uint32
	threads uint8
}

// Format: $argon2id$v=19$m=MEMORY,t=TIME,p=THREADS$SALT$HASH
func encodeArgon2(p argon2Params, salt, key []byte) string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.memory, p.time, p.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key))
}

func decodeArgon2(encoded string) (argon2Params, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return argon2Params{}, nil, nil, ErrPasswordInvalidHash
	}
	if parts[1] != AlgorithmArgon2id {
		return argon2Params{}, nil, nil, ErrPasswordInvalidAlgorithm
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return argon2Params{}, nil, nil, ErrPasswordInvalidHash
	}

	var p argon2Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return argon2Params{}, nil, nil, ErrPasswordInvalidHash
	}
	if p.memory == 0 || p.time == 0 || p.threads == 0 {
		return argon2Params{}, nil, nil, ErrPasswordInvalidHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return argon2Params{}, nil, nil, ErrPasswordInvalidHash
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return argon2Params{}, nil, nil, ErrPasswordInvalidHash
	}

	return p, salt, key, nil
}

// clearBytes zeros a byte slice.
func clearBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Common passwords list (top entries)
var commonPasswords = map[string]struct{}{
	"123456":      {},
	"password":    {},
	"12345678":    {},
	"qwerty":      {},
	"123456789":   {},
	"1234567":     {},
	"111111":      {},
	"123123":      {},
	"abc123":      {},
	"letmein":     {},
	"iloveyou":    {},
	"sunshine":    {},
	"princess":    {},
	"football":    {},
	"baseball":    {},
	"welcome":     {},
	"welcome1":    {},
	"welcome123":  {},
	"trustno1":    {},
	"changeme":    {},
	"password1":   {},
	"password123": {},
	"passw0rd":    {},
	"p@ssw0rd":    {},
	"admin":       {},
	"admin123":    {},
	"qwerty123":   {},
	"1q2w3e4r":    {},
	"qwer1234":    {},
	"abcd1234":    {},
	"1234abcd":    {},
	"letmein123":  {},
	"abc123456":   {},
	"123456789a":  {},
	"a123456789":  {},
}

// isCommonPassword checks if the password is in the common passwords list.
func isCommonPassword(password string) bool {
	if _, ok := commonPasswords[strings.ToLower(password)]; ok {
		return true
	}
	return isSequentialPattern(password) || isRepeatingPattern(password)
}

// isSequentialPattern checks for sequential characters like "123456" or "abcdef"
func isSequentialPattern(s string) bool {
	if len(s) < 4 {
		return false
	}
	ascending := true
	descending := true
	runes := []rune(s)
	for i := 1; i < len(runes); i++ {
		diff := int(runes[i]) - int(runes[i-1])
		if diff != 1 {
			ascending = false
		}
		if diff != -1 {
			descending = false
		}
	}
	return ascending || descending
}

// isRepeatingPattern checks for repeating characters like "aaaaaa"
func isRepeatingPattern(s string) bool {
	if len(s) < 4 {
		return false
	}
	first := s[0]
	for i := 1; i < len(s); i++ {
		if s[i] != first {
			return false
		}
	}
	return true
}

// Email validation regex
var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// ValidateEmail validates an email address format.
func ValidateEmail(email string) bool {
	email = strings.TrimSpace(email)
	if len(email) == 0 || len(email) > 254 {
		return false
	}
	return emailRegex.MatchString(email)
}

// GenerateSecureToken returns length bytes from crypto/rand, base64url encoded.
func GenerateSecureToken(length int) (string, error) {
	if length <= 0 {
		length = 32
	}
	b := make([]byte, length)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("auth: failed to generate secure token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

const otpAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789"

// GenerateOneTimePassword returns a random password for initial account
// provisioning. It always satisfies DefaultPasswordValidation.
func GenerateOneTimePassword(length int) (string, error) {
	if length < MinPasswordLength {
		length = RecommendedMinLength
	}
	if length > MaxPasswordLength {
		length = MaxPasswordLength
	}
	limit := byte(256 - 256%len(otpAlphabet))
	buf := make([]byte, 1)
	for {
		out := make([]byte, 0, length)
		for len(out) < length {
			if _, err := io.ReadFull(rand.Reader, buf); err != nil {
				return "", fmt.Errorf("auth: failed to generate password: %w", err)
			}
			if buf[0] >= limit {
				continue
			}
			out = append(out, otpAlphabet[int(buf[0])%len(otpAlphabet)])
		}
		if ValidatePasswordStrength(out, DefaultPasswordValidation()) == nil {
			return string(out), nil
		}
		clearBytes(out)
	}
}
