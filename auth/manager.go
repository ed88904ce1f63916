package auth

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Manager bundles token, authorization, login and reset workflows behind a
// single façade built once at startup.
type Manager struct {
	tokens     *TokenService
	verifier   *CredentialVerifier
	authorizer *Authorizer
	logins     *Authenticator
	resets     *ResetFlow
}

// ManagerConfig wires the dependencies required for Manager.
type ManagerConfig struct {
	Issuer        string
	Audience      string
	SessionSecret []byte
	ResetSecret   []byte
	SessionTTL    time.Duration
	ResetTTL      time.Duration
	ClockSkew     time.Duration

	Directory   UserDirectory
	Dispatcher  EmailDispatcher
	LinkBaseURL string
	// DispatchTimeout bounds each background reset email.
	DispatchTimeout time.Duration

	// PasswordHasher hashes new passwords. Defaults to bcrypt.
	PasswordHasher PasswordHasher
	// LegacyHashers are accepted for verification only.
	LegacyHashers  []PasswordHasher
	PasswordPolicy *PasswordValidationOptions
	Policies       []AuthPolicy
	RehashOnLogin  bool

	Now    func() time.Time
	Logger *zap.Logger
}

// NewManager builds a Manager with the provided dependencies.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	tokens, err := NewTokenService(TokenServiceConfig{
		Issuer:        cfg.Issuer,
		Audience:      cfg.Audience,
		SessionSecret: cfg.SessionSecret,
		ResetSecret:   cfg.ResetSecret,
		SessionTTL:    cfg.SessionTTL,
		ResetTTL:      cfg.ResetTTL,
		ClockSkew:     cfg.ClockSkew,
		Now:           cfg.Now,
		Logger:        logger.Named("tokens"),
	})
	if err != nil {
		return nil, err
	}

	verifier, err := NewCredentialVerifier(VerifierConfig{
		Primary: cfg.PasswordHasher,
		Legacy:  cfg.LegacyHashers,
		Logger:  logger.Named("verifier"),
	})
	if err != nil {
		return nil, err
	}

	policies := cfg.Policies
	if len(policies) == 0 {
		policies = DefaultPolicies()
	}
	table, err := NewPolicyTable(policies...)
	if err != nil {
		return nil, err
	}
	authorizer, err := NewAuthorizer(tokens, table, logger.Named("authorizer"))
	if err != nil {
		return nil, err
	}

	m := &Manager{tokens: tokens, verifier: verifier, authorizer: authorizer}

	if cfg.Directory != nil {
		m.logins, err = NewAuthenticator(AuthenticatorConfig{
			Directory:     cfg.Directory,
			Verifier:      verifier,
			Tokens:        tokens,
			Logger:        logger.Named("login"),
			RehashOnLogin: cfg.RehashOnLogin,
		})
		if err != nil {
			return nil, err
		}
	}
	if cfg.Directory != nil && cfg.Dispatcher != nil {
		m.resets, err = NewResetFlow(ResetFlowConfig{
			Directory:       cfg.Directory,
			Dispatcher:      cfg.Dispatcher,
			Tokens:          tokens,
			Verifier:        verifier,
			LinkBaseURL:     cfg.LinkBaseURL,
			DispatchTimeout: cfg.DispatchTimeout,
			PasswordPolicy:  cfg.PasswordPolicy,
			Logger:          logger.Named("reset"),
		})
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Tokens exposes the token service.
func (m *Manager) Tokens() *TokenService { return m.tokens }

// Authorizer exposes the policy evaluator.
func (m *Manager) Authorizer() *Authorizer { return m.authorizer }

// Verifier exposes the credential verifier.
func (m *Manager) Verifier() *CredentialVerifier { return m.verifier }

// Authorize evaluates policyName against a raw session token.
func (m *Manager) Authorize(raw, policyName string) Decision {
	return m.authorizer.Authorize(raw, policyName)
}

// Login proxies to the authenticator if a directory is configured.
func (m *Manager) Login(ctx context.Context, email, password string) (LoginResult, error) {
	if m.logins == nil {
		return LoginResult{}, ErrMissingCollaborator
	}
	return m.logins.Login(ctx, email, password)
}

// Current re-reads the principal behind a session.
func (m *Manager) Current(ctx context.Context, p Principal) (Principal, error) {
	if m.logins == nil {
		return Principal{}, ErrMissingCollaborator
	}
	return m.logins.Current(ctx, p)
}

// RequestReset proxies the first reset phase.
func (m *Manager) RequestReset(ctx context.Context, email string) error {
	if m.resets == nil {
		return ErrMissingCollaborator
	}
	return m.resets.RequestReset(ctx, email)
}

// ConfirmReset proxies the second reset phase.
func (m *Manager) ConfirmReset(ctx context.Context, token, newPassword string) error {
	if m.resets == nil {
		return ErrMissingCollaborator
	}
	return m.resets.ConfirmReset(ctx, token, newPassword)
}

// Wait blocks until pending reset emails have finished.
func (m *Manager) Wait() {
	if m.resets != nil {
		m.resets.Wait()
	}
}

// HashPassword hashes plain with the primary hasher.
func (m *Manager) HashPassword(ctx context.Context, plain string) (string, error) {
	return m.verifier.Hash(ctx, plain)
}
