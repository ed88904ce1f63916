package auth

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// dummyPassword feeds the decoy comparison that keeps malformed or missing
// hashes on the same timing path as a real mismatch.
const dummyPassword = "plot-auth-decoy-password"

// CredentialVerifier checks plaintext passwords against stored hashes. New
// hashes are produced with the primary hasher; verification dispatches on the
// encoded prefix so older argon2id records keep working.
type CredentialVerifier struct {
	primary PasswordHasher
	hashers []PasswordHasher
	decoy   string
	logger  *zap.Logger
}

// VerifierConfig wires the hashers used by CredentialVerifier.
type VerifierConfig struct {
	// Primary hashes new passwords. Defaults to bcrypt at DefaultBcryptCost.
	Primary PasswordHasher
	// Legacy lists additional hashers accepted for verification only.
	Legacy []PasswordHasher
	Logger *zap.Logger
}

// NewCredentialVerifier builds a verifier and precomputes its decoy hash.
func NewCredentialVerifier(cfg VerifierConfig) (*CredentialVerifier, error) {
	primary := cfg.Primary
	if primary == nil {
		primary = NewBcryptHasher()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	decoy, err := primary.Hash(context.Background(), []byte(dummyPassword))
	if err != nil {
		return nil, fmt.Errorf("auth: prepare decoy hash: %w", err)
	}

	hashers := make([]PasswordHasher, 0, len(cfg.Legacy)+1)
	hashers = append(hashers, primary)
	for _, h := range cfg.Legacy {
		if h != nil {
			hashers = append(hashers, h)
		}
	}

	return &CredentialVerifier{
		primary: primary,
		hashers: hashers,
		decoy:   decoy,
		logger:  logger,
	}, nil
}

// Verify reports whether plain matches storedHash. A malformed or
// unrecognized hash yields false after the same amount of work as a mismatch.
func (v *CredentialVerifier) Verify(plain, storedHash string) bool {
	err := v.compare([]byte(plain), storedHash)
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrPasswordMismatch):
		return false
	default:
		v.logger.Warn("stored password hash rejected", zap.Error(err))
		return false
	}
}

// VerifyDecoy burns the same work as Verify for callers that have no stored
// hash to check against, such as a login for an unknown email.
func (v *CredentialVerifier) VerifyDecoy(plain string) {
	_ = v.primary.Compare([]byte(plain), v.decoy)
}

// Hash produces a stored hash for plain using the primary hasher.
func (v *CredentialVerifier) Hash(ctx context.Context, plain string) (string, error) {
	return v.primary.Hash(ctx, []byte(plain))
}

// NeedsRehash reports whether storedHash should be upgraded to the primary
// hasher's current parameters.
func (v *CredentialVerifier) NeedsRehash(storedHash string) bool {
	if !v.primary.Recognizes(storedHash) {
		return true
	}
	return v.primary.NeedsRehash(storedHash)
}

func (v *CredentialVerifier) compare(plain []byte, storedHash string) error {
	for _, h := range v.hashers {
		if !h.Recognizes(storedHash) {
			continue
		}
		err := h.Compare(plain, storedHash)
		if err != nil && !errors.Is(err, ErrPasswordMismatch) {
			v.VerifyDecoy(string(plain))
		}
		return err
	}
	v.VerifyDecoy(string(plain))
	return ErrPasswordInvalidAlgorithm
}
