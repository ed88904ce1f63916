package auth

import (
	"context"
	"errors"
	"testing"
)

func newTestAuthenticator(t *testing.T, dir *stubDirectory, rehash bool) (*Authenticator, *TokenService) {
	t.Helper()
	tokens := newTestTokenService(t, newFakeClock())
	a, err := NewAuthenticator(AuthenticatorConfig{
		Directory:     dir,
		Verifier:      newTestVerifier(t),
		Tokens:        tokens,
		RehashOnLogin: rehash,
	})
	if err != nil {
		t.Fatalf("NewAuthenticator() error = %v", err)
	}
	return a, tokens
}

func TestNewAuthenticatorRequiresCollaborators(t *testing.T) {
	if _, err := NewAuthenticator(AuthenticatorConfig{}); !errors.Is(err, ErrMissingCollaborator) {
		t.Fatalf("NewAuthenticator() error = %v, want ErrMissingCollaborator", err)
	}
}

func TestLogin(t *testing.T) {
	v := newTestVerifier(t)
	dir := newStubDirectory(
		Credential{UserID: 7, Email: "a@b.com", Name: "Ana", PasswordHash: mustHash(t, v, "Correct123"), Role: RoleManager, Active: true},
		Credential{UserID: 8, Email: "gone@b.com", Name: "Gus", PasswordHash: mustHash(t, v, "Correct123"), Role: RoleEmployee, Active: false},
		Credential{UserID: 9, Email: "broken@b.com", Name: "Bea", PasswordHash: "not-a-hash", Role: RoleOwner, Active: true},
	)
	auth, tokens := newTestAuthenticator(t, dir, false)
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		res, err := auth.Login(ctx, "  A@B.com ", "Correct123")
		if err != nil {
			t.Fatalf("Login() error = %v", err)
		}
		want := Principal{ID: 7, Email: "a@b.com", Role: RoleManager, Active: true}
		if res.Principal != want {
			t.Fatalf("Login() principal = %+v, want %+v", res.Principal, want)
		}
		got, err := tokens.Authenticate(res.Token.Raw)
		if err != nil {
			t.Fatalf("Authenticate() error = %v", err)
		}
		if got != want {
			t.Fatalf("Authenticate() = %+v, want %+v", got, want)
		}
	})

	rejections := []struct {
		name     string
		email    string
		password string
	}{
		{name: "wrong password", email: "a@b.com", password: "Wrong123"},
		{name: "unknown email", email: "missing@b.com", password: "Correct123"},
		{name: "inactive", email: "gone@b.com", password: "Correct123"},
		{name: "malformed stored hash", email: "broken@b.com", password: "Correct123"},
	}
	for _, tt := range rejections {
		t.Run(tt.name, func(t *testing.T) {
			_, err := auth.Login(ctx, tt.email, tt.password)
			if !errors.Is(err, ErrCredentialMismatch) {
				t.Fatalf("Login() error = %v, want ErrCredentialMismatch", err)
			}
			if err.Error() != ErrCredentialMismatch.Error() {
				t.Fatalf("Login() error text = %q, want %q", err.Error(), ErrCredentialMismatch.Error())
			}
		})
	}
}

func TestLoginDirectoryFailure(t *testing.T) {
	dir := newStubDirectory()
	dir.lookupErr = errors.New("connection refused")
	auth, _ := newTestAuthenticator(t, dir, false)

	_, err := auth.Login(context.Background(), "a@b.com", "Correct123")
	if !errors.Is(err, ErrDirectoryUnavailable) {
		t.Fatalf("Login() error = %v, want ErrDirectoryUnavailable", err)
	}
	if errors.Is(err, ErrCredentialMismatch) {
		t.Fatal("directory failure must not look like a credential mismatch")
	}
	if !IsRetryable(err) {
		t.Fatal("IsRetryable() = false, want true")
	}
}

func TestLoginCancelledContext(t *testing.T) {
	dir := newStubDirectory()
	auth, _ := newTestAuthenticator(t, dir, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := auth.Login(ctx, "a@b.com", "Correct123"); !errors.Is(err, context.Canceled) {
		t.Fatalf("Login() error = %v, want context.Canceled", err)
	}
	if dir.lookups != 0 {
		t.Fatalf("lookups = %d, want 0", dir.lookups)
	}
}

func TestLoginRehashesLegacyHash(t *testing.T) {
	legacy, err := NewArgon2idHasher(WithArgon2Memory(1024), WithArgon2Time(1), WithArgon2Threads(1)).
		Hash(context.Background(), []byte("Correct123"))
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	dir := newStubDirectory(Credential{UserID: 7, Email: "a@b.com", PasswordHash: legacy, Role: RoleOwner, Active: true})
	auth, _ := newTestAuthenticator(t, dir, true)

	if _, err := auth.Login(context.Background(), "a@b.com", "Correct123"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	updated, ok := dir.updates["a@b.com"]
	if !ok {
		t.Fatal("legacy hash was not upgraded")
	}
	if !NewBcryptHasher().Recognizes(updated) {
		t.Fatalf("upgraded hash = %q, want bcrypt", updated)
	}
	if _, err := auth.Login(context.Background(), "a@b.com", "Correct123"); err != nil {
		t.Fatalf("Login() after rehash error = %v", err)
	}
}

func TestCurrent(t *testing.T) {
	dir := newStubDirectory(
		Credential{UserID: 7, Email: "a@b.com", Role: RoleOwner, Active: true},
		Credential{UserID: 8, Email: "gone@b.com", Role: RoleEmployee, Active: false},
	)
	auth, _ := newTestAuthenticator(t, dir, false)
	ctx := context.Background()

	got, err := auth.Current(ctx, Principal{ID: 7, Email: "a@b.com", Role: RoleManager, Active: true})
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if got.Role != RoleOwner {
		t.Fatalf("Current() role = %v, want directory role Owner", got.Role)
	}

	if _, err := auth.Current(ctx, Principal{ID: 8}); !errors.Is(err, ErrPrincipalInactive) {
		t.Fatalf("Current(inactive) error = %v, want ErrPrincipalInactive", err)
	}
	if _, err := auth.Current(ctx, Principal{ID: 99}); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("Current(missing) error = %v, want ErrUserNotFound", err)
	}
}

func TestLoginTimingUnknownEmailMatchesWrongPassword(t *testing.T) {
	if testing.Short() {
		t.Skip("timing comparison skipped in short mode")
	}
	v := newTimingVerifier(t)
	dir := newStubDirectory(
		Credential{UserID: 7, Email: "a@b.com", Name: "Ana", PasswordHash: mustHash(t, v, "Correct123"), Role: RoleManager, Active: true},
	)
	a, err := NewAuthenticator(AuthenticatorConfig{
		Directory: dir,
		Verifier:  v,
		Tokens:    newTestTokenService(t, newFakeClock()),
	})
	if err != nil {
		t.Fatalf("NewAuthenticator() error = %v", err)
	}
	ctx := context.Background()
	const runs = 21

	wrong := medianDuration(runs, func() {
		if _, err := a.Login(ctx, "a@b.com", "Wrong45678"); !errors.Is(err, ErrCredentialMismatch) {
			t.Fatalf("Login(wrong password) error = %v", err)
		}
	})
	unknown := medianDuration(runs, func() {
		if _, err := a.Login(ctx, "nobody@b.com", "Wrong45678"); !errors.Is(err, ErrCredentialMismatch) {
			t.Fatalf("Login(unknown email) error = %v", err)
		}
	})

	assertComparableDurations(t, "wrong password vs unknown email", wrong, unknown, 2.0)
}
