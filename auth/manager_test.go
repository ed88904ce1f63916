package auth

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func newTestManager(t *testing.T, dir UserDirectory, dispatcher EmailDispatcher, clock *fakeClock) *Manager {
	t.Helper()
	m, err := NewManager(ManagerConfig{
		Issuer:         testIssuer,
		Audience:       testAudience,
		SessionSecret:  testSessionSecret,
		ResetSecret:    testResetSecret,
		SessionTTL:     30 * time.Minute,
		ResetTTL:       15 * time.Minute,
		Directory:      dir,
		Dispatcher:     dispatcher,
		LinkBaseURL:    "https://plot.example.com/reset",
		PasswordHasher: NewBcryptHasher(WithBcryptCost(bcrypt.MinCost)),
		Now:            clock.Now,
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return m
}

func TestNewManagerValidation(t *testing.T) {
	base := ManagerConfig{
		Issuer:        testIssuer,
		Audience:      testAudience,
		SessionSecret: testSessionSecret,
		ResetSecret:   testResetSecret,
	}

	t.Run("missing issuer", func(t *testing.T) {
		cfg := base
		cfg.Issuer = ""
		if _, err := NewManager(cfg); !errors.Is(err, ErrJWTMissingIssuer) {
			t.Fatalf("NewManager() error = %v, want ErrJWTMissingIssuer", err)
		}
	})

	t.Run("shared secret", func(t *testing.T) {
		cfg := base
		cfg.ResetSecret = cfg.SessionSecret
		if _, err := NewManager(cfg); !errors.Is(err, ErrSecretsNotDistinct) {
			t.Fatalf("NewManager() error = %v, want ErrSecretsNotDistinct", err)
		}
	})

	t.Run("bad policy", func(t *testing.T) {
		cfg := base
		cfg.PasswordHasher = NewBcryptHasher(WithBcryptCost(bcrypt.MinCost))
		cfg.Policies = []AuthPolicy{{Name: "Empty"}}
		if _, err := NewManager(cfg); !errors.Is(err, ErrPolicyNoRoles) {
			t.Fatalf("NewManager() error = %v, want ErrPolicyNoRoles", err)
		}
	})

	t.Run("bad reset link", func(t *testing.T) {
		cfg := base
		cfg.PasswordHasher = NewBcryptHasher(WithBcryptCost(bcrypt.MinCost))
		cfg.Directory = newStubDirectory()
		cfg.Dispatcher = &recordingDispatcher{}
		if _, err := NewManager(cfg); !errors.Is(err, ErrInvalidResetLink) {
			t.Fatalf("NewManager() error = %v, want ErrInvalidResetLink", err)
		}
	})
}

func TestManagerWithoutDirectory(t *testing.T) {
	m := newTestManager(t, nil, nil, newFakeClock())
	ctx := context.Background()

	if _, err := m.Login(ctx, "a@b.com", "x"); !errors.Is(err, ErrMissingCollaborator) {
		t.Fatalf("Login() error = %v, want ErrMissingCollaborator", err)
	}
	if err := m.RequestReset(ctx, "a@b.com"); !errors.Is(err, ErrMissingCollaborator) {
		t.Fatalf("RequestReset() error = %v, want ErrMissingCollaborator", err)
	}
	if err := m.ConfirmReset(ctx, "t", "p"); !errors.Is(err, ErrMissingCollaborator) {
		t.Fatalf("ConfirmReset() error = %v, want ErrMissingCollaborator", err)
	}
	if _, err := m.Current(ctx, managerPrincipal()); !errors.Is(err, ErrMissingCollaborator) {
		t.Fatalf("Current() error = %v, want ErrMissingCollaborator", err)
	}

	token, err := m.Tokens().IssueSessionToken(managerPrincipal())
	if err != nil {
		t.Fatalf("IssueSessionToken() error = %v", err)
	}
	if d := m.Authorize(token.Raw, PolicyManager); !d.Allowed() {
		t.Fatalf("Authorize() = %v, want authorized", d.Outcome)
	}
}

func TestManagerLoginAuthorizeAndReset(t *testing.T) {
	clock := newFakeClock()
	dir := newStubDirectory()
	dispatcher := &recordingDispatcher{}
	m := newTestManager(t, dir, dispatcher, clock)
	ctx := context.Background()

	hash, err := m.HashPassword(ctx, "Initial123")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	dir.byEmail["e@plot.test"] = Credential{UserID: 11, Email: "e@plot.test", Name: "Eve", PasswordHash: hash, Role: RoleEmployee, Active: true}

	login, err := m.Login(ctx, "e@plot.test", "Initial123")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if !login.Token.ExpiresAt.Equal(clock.Now().Add(30 * time.Minute)) {
		t.Fatalf("ExpiresAt = %v, want now+30m", login.Token.ExpiresAt)
	}
	if d := m.Authorize(login.Token.Raw, PolicyEmployee); d.Outcome != Authorized {
		t.Fatalf("Authorize(Employee) = %v, want authorized", d.Outcome)
	}
	if d := m.Authorize(login.Token.Raw, PolicyManager); d.Outcome != Forbidden {
		t.Fatalf("Authorize(Manager) = %v, want forbidden", d.Outcome)
	}

	if err := m.RequestReset(ctx, "e@plot.test"); err != nil {
		t.Fatalf("RequestReset() error = %v", err)
	}
	m.Wait()
	if dispatcher.count() != 1 {
		t.Fatalf("emails sent = %d, want 1", dispatcher.count())
	}
	link, err := url.Parse(dispatcher.sent[0].link)
	if err != nil {
		t.Fatalf("url.Parse() error = %v", err)
	}
	resetToken := link.Query().Get(DefaultResetTokenParam)

	if d := m.Authorize(resetToken, PolicyEmployee); d.Outcome != Unauthorized {
		t.Fatalf("Authorize(reset token) = %v, want unauthorized", d.Outcome)
	}

	if err := m.ConfirmReset(ctx, resetToken, "Changed456"); err != nil {
		t.Fatalf("ConfirmReset() error = %v", err)
	}
	if _, err := m.Login(ctx, "e@plot.test", "Initial123"); !errors.Is(err, ErrCredentialMismatch) {
		t.Fatalf("Login(old) error = %v, want ErrCredentialMismatch", err)
	}
	if _, err := m.Login(ctx, "e@plot.test", "Changed456"); err != nil {
		t.Fatalf("Login(new) error = %v", err)
	}

	clock.Advance(16 * time.Minute)
	if err := m.ConfirmReset(ctx, resetToken, "Later789x"); !errors.Is(err, ErrResetFailed) {
		t.Fatalf("ConfirmReset(expired) error = %v, want ErrResetFailed", err)
	}
}
