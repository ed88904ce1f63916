package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrInvalidResetLink is returned when the configured link base cannot be parsed.
var ErrInvalidResetLink = errors.New("auth: invalid reset link base url")

const (
	// DefaultResetTokenParam is the query parameter carrying the reset token.
	DefaultResetTokenParam = "token"
	// DefaultDispatchTimeout bounds a single background reset email.
	DefaultDispatchTimeout = 30 * time.Second
)

// ResetFlowConfig wires dependencies for ResetFlow.
type ResetFlowConfig struct {
	Directory   UserDirectory
	Dispatcher  EmailDispatcher
	Tokens      *TokenService
	Verifier    *CredentialVerifier
	LinkBaseURL string
	TokenParam  string
	// DispatchTimeout bounds token issue and email delivery, which run after
	// RequestReset has returned. Defaults to DefaultDispatchTimeout.
	DispatchTimeout time.Duration
	// PasswordPolicy is applied to new passwords in ConfirmReset.
	PasswordPolicy *PasswordValidationOptions
	Logger         *zap.Logger
}

// ResetFlow runs the two-phase password reset. RequestReset never reveals
// whether an account exists, neither in its result nor in its latency: email
// delivery happens in the background. Reset tokens are bounded only by their
// expiry; there is no replay store.
type ResetFlow struct {
	directory       UserDirectory
	dispatcher      EmailDispatcher
	tokens          *TokenService
	verifier        *CredentialVerifier
	linkBase        *url.URL
	tokenParam      string
	dispatchTimeout time.Duration
	policy          PasswordValidationOptions
	logger          *zap.Logger

	pending sync.WaitGroup
}

func NewResetFlow(cfg ResetFlowConfig) (*ResetFlow, error) {
	if cfg.Directory == nil || cfg.Dispatcher == nil || cfg.Tokens == nil || cfg.Verifier == nil {
		return nil, fmt.Errorf("%w: reset flow needs directory, dispatcher, tokens and verifier", ErrMissingCollaborator)
	}
	base, err := url.Parse(strings.TrimSpace(cfg.LinkBaseURL))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidResetLink, cfg.LinkBaseURL)
	}

	flow := &ResetFlow{
		directory:       cfg.Directory,
		dispatcher:      cfg.Dispatcher,
		tokens:          cfg.Tokens,
		verifier:        cfg.Verifier,
		linkBase:        base,
		tokenParam:      cfg.TokenParam,
		dispatchTimeout: cfg.DispatchTimeout,
		policy:          DefaultPasswordValidation(),
		logger:          cfg.Logger,
	}
	if flow.tokenParam == "" {
		flow.tokenParam = DefaultResetTokenParam
	}
	if flow.dispatchTimeout <= 0 {
		flow.dispatchTimeout = DefaultDispatchTimeout
	}
	if cfg.PasswordPolicy != nil {
		flow.policy = *cfg.PasswordPolicy
	}
	if flow.logger == nil {
		flow.logger = zap.NewNop()
	}
	return flow, nil
}

// RequestReset starts a reset for email. The result is nil whether or not the
// account exists; only a malformed email or an unavailable directory is
// reported.
func (f *ResetFlow) RequestReset(ctx context.Context, email string) error {
	if err := contextError(ctx); err != nil {
		return err
	}
	email = normalizeEmail(email)
	if !ValidateEmail(email) {
		return ErrResetFailed
	}

	cred, found, err := f.directory.FindByEmail(ctx, email)
	if err != nil {
		f.logger.Error("directory lookup failed", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}
	if !found || !cred.Active {
		f.logger.Debug("reset requested for unknown or inactive account")
		return nil
	}

	f.pending.Add(1)
	go f.dispatch(context.WithoutCancel(ctx), cred)
	return nil
}

// Wait blocks until every reset email started by RequestReset has been
// delivered or has given up.
func (f *ResetFlow) Wait() {
	f.pending.Wait()
}

func (f *ResetFlow) dispatch(parent context.Context, cred Credential) {
	defer f.pending.Done()
	ctx, cancel := context.WithTimeout(parent, f.dispatchTimeout)
	defer cancel()

	token, err := f.tokens.IssueResetToken(cred.Email)
	if err != nil {
		f.logger.Error("reset token issue failed", zap.Error(err))
		return
	}
	link := f.ResetLink(token.Raw)
	if err := f.dispatcher.SendResetEmail(ctx, cred.Email, cred.Name, link); err != nil {
		f.logger.Error("reset email dispatch failed", zap.Int64("user_id", cred.UserID), zap.Error(err))
		return
	}

	f.logger.Info("reset email dispatched",
		zap.Int64("user_id", cred.UserID),
		zap.String("token_id", token.ID),
		zap.Time("expires_at", token.ExpiresAt))
}

// ConfirmReset validates a reset-class token and stores a hash of
// newPassword. Every rejection is ErrResetFailed except an unavailable
// directory.
func (f *ResetFlow) ConfirmReset(ctx context.Context, token, newPassword string) error {
	if err := contextError(ctx); err != nil {
		return err
	}

	email, err := f.tokens.ValidateResetToken(token)
	if err != nil {
		f.logger.Debug("reset confirmation rejected", zap.Stringer("reason", KindOf(err)))
		return ErrResetFailed
	}
	if err := ValidatePasswordStrength([]byte(newPassword), f.policy); err != nil {
		return fmt.Errorf("%w: %w", ErrResetFailed, err)
	}

	hash, err := f.verifier.Hash(ctx, newPassword)
	if err != nil {
		f.logger.Error("password hash failed", zap.Error(err))
		return ErrResetFailed
	}

	if err := f.directory.UpdatePasswordHash(ctx, email, hash); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			f.logger.Debug("reset confirmation for missing account")
			return ErrResetFailed
		}
		f.logger.Error("password hash update failed", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}

	f.logger.Info("password reset completed")
	return nil
}

// ResetLink builds the link sent to the user for the given raw token.
func (f *ResetFlow) ResetLink(rawToken string) string {
	u := *f.linkBase
	q := u.Query()
	q.Set(f.tokenParam, rawToken)
	u.RawQuery = q.Encode()
	return u.String()
}
