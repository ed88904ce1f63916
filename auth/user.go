package auth

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// LoginResult is returned by a successful Login.
type LoginResult struct {
	Token     Token
	Principal Principal
}

// Authenticator turns an email/password pair into a session token.
type Authenticator struct {
	directory UserDirectory
	verifier  *CredentialVerifier
	tokens    *TokenService
	logger    *zap.Logger
	rehash    bool
}

// AuthenticatorConfig wires dependencies for Authenticator.
type AuthenticatorConfig struct {
	Directory UserDirectory
	Verifier  *CredentialVerifier
	Tokens    *TokenService
	Logger    *zap.Logger
	// RehashOnLogin upgrades outdated hashes after a successful login.
	RehashOnLogin bool
}

func NewAuthenticator(cfg AuthenticatorConfig) (*Authenticator, error) {
	if cfg.Directory == nil || cfg.Verifier == nil || cfg.Tokens == nil {
		return nil, fmt.Errorf("%w: authenticator needs directory, verifier and tokens", ErrMissingCollaborator)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authenticator{
		directory: cfg.Directory,
		verifier:  cfg.Verifier,
		tokens:    cfg.Tokens,
		logger:    logger,
		rehash:    cfg.RehashOnLogin,
	}, nil
}

// Login checks the password for email and issues a session token. An unknown
// email, an inactive account and a wrong password all return
// ErrCredentialMismatch.
func (a *Authenticator) Login(ctx context.Context, email, password string) (LoginResult, error) {
	if err := contextError(ctx); err != nil {
		return LoginResult{}, err
	}
	email = normalizeEmail(email)

	cred, found, err := a.directory.FindByEmail(ctx, email)
	if err != nil {
		a.logger.Error("directory lookup failed", zap.Error(err))
		return LoginResult{}, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}
	if !found {
		a.verifier.VerifyDecoy(password)
		a.logger.Debug("login rejected", zap.Stringer("reason", KindCredentialMismatch))
		return LoginResult{}, ErrCredentialMismatch
	}

	matched := a.verifier.Verify(password, cred.PasswordHash)
	if !matched || !cred.Active {
		a.logger.Debug("login rejected",
			zap.Stringer("reason", KindCredentialMismatch),
			zap.Int64("user_id", cred.UserID),
			zap.Bool("active", cred.Active))
		return LoginResult{}, ErrCredentialMismatch
	}

	principal := cred.Principal()
	token, err := a.tokens.IssueSessionToken(principal)
	if err != nil {
		return LoginResult{}, err
	}

	if a.rehash && a.verifier.NeedsRehash(cred.PasswordHash) {
		a.upgradeHash(ctx, cred.Email, password)
	}

	a.logger.Info("login succeeded",
		zap.Int64("user_id", principal.ID),
		zap.Stringer("role", principal.Role),
		zap.Time("expires_at", token.ExpiresAt))
	return LoginResult{Token: token, Principal: principal}, nil
}

// Current re-reads the principal from the directory so that deactivation and
// role changes are visible before the token expires.
func (a *Authenticator) Current(ctx context.Context, p Principal) (Principal, error) {
	if err := contextError(ctx); err != nil {
		return Principal{}, err
	}
	fresh, found, err := a.directory.FindByID(ctx, p.ID)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}
	if !found {
		return Principal{}, ErrUserNotFound
	}
	if !fresh.Active {
		return Principal{}, ErrPrincipalInactive
	}
	return fresh, nil
}

// SessionExpiry reports how long newly issued session tokens live.
func (a *Authenticator) SessionExpiry() time.Duration { return a.tokens.SessionTTL() }

func (a *Authenticator) upgradeHash(ctx context.Context, email, password string) {
	hash, err := a.verifier.Hash(ctx, password)
	if err != nil {
		a.logger.Warn("password rehash failed", zap.Error(err))
		return
	}
	if err := a.directory.UpdatePasswordHash(ctx, email, hash); err != nil {
		a.logger.Warn("password rehash not persisted", zap.Error(err))
	}
}
