package auth

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	testIssuer   = "plot"
	testAudience = "plot-clients"
)

var (
	testSessionSecret = []byte("session-secret-0123456789abcdef!!")
	testResetSecret   = []byte("reset-secret-0123456789abcdefgh!!")
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestTokenService(t testing.TB, clock *fakeClock) *TokenService {
	t.Helper()
	svc, err := NewTokenService(TokenServiceConfig{
		Issuer:        testIssuer,
		Audience:      testAudience,
		SessionSecret: testSessionSecret,
		ResetSecret:   testResetSecret,
		Now:           clock.Now,
	})
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}
	return svc
}

func newTestVerifier(t testing.TB) *CredentialVerifier {
	t.Helper()
	v, err := NewCredentialVerifier(VerifierConfig{
		Primary: NewBcryptHasher(WithBcryptCost(bcrypt.MinCost)),
		Legacy:  []PasswordHasher{NewArgon2idHasher(WithArgon2Memory(1024), WithArgon2Time(1), WithArgon2Threads(1))},
	})
	if err != nil {
		t.Fatalf("NewCredentialVerifier() error = %v", err)
	}
	return v
}

func mustHash(t testing.TB, v *CredentialVerifier, plain string) string {
	t.Helper()
	hash, err := v.Hash(context.Background(), plain)
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	return hash
}

type stubDirectory struct {
	mu        sync.Mutex
	byEmail   map[string]Credential
	lookupErr error
	updateErr error
	updates   map[string]string
	lookups   int
}

func newStubDirectory(creds ...Credential) *stubDirectory {
	d := &stubDirectory{byEmail: make(map[string]Credential), updates: make(map[string]string)}
	for _, c := range creds {
		d.byEmail[c.Email] = c
	}
	return d
}

func (d *stubDirectory) FindByEmail(_ context.Context, email string) (Credential, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lookups++
	if d.lookupErr != nil {
		return Credential{}, false, d.lookupErr
	}
	c, ok := d.byEmail[email]
	return c, ok, nil
}

func (d *stubDirectory) FindByID(_ context.Context, id int64) (Principal, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lookupErr != nil {
		return Principal{}, false, d.lookupErr
	}
	for _, c := range d.byEmail {
		if c.UserID == id {
			return c.Principal(), true, nil
		}
	}
	return Principal{}, false, nil
}

func (d *stubDirectory) UpdatePasswordHash(_ context.Context, email, newHash string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.updateErr != nil {
		return d.updateErr
	}
	c, ok := d.byEmail[email]
	if !ok {
		return ErrUserNotFound
	}
	c.PasswordHash = newHash
	d.byEmail[email] = c
	d.updates[email] = newHash
	return nil
}

type sentEmail struct {
	to   string
	name string
	link string
}

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

func (d *recordingDispatcher) SendResetEmail(_ context.Context, toEmail, toName, resetLink string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, sentEmail{to: toEmail, name: toName, link: resetLink})
	return nil
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}

type stubAuthorizer struct {
	decision Decision
	raw      string
	policy   string
}

func (a *stubAuthorizer) Authorize(raw, policyName string) Decision {
	a.raw = raw
	a.policy = policyName
	return a.decision
}

func managerPrincipal() Principal {
	return Principal{ID: 7, Email: "a@b.com", Role: RoleManager, Active: true}
}

// medianDuration runs fn n times and returns the median wall time.
func medianDuration(n int, fn func()) time.Duration {
	samples := make([]time.Duration, n)
	for i := range samples {
		start := time.Now()
		fn()
		samples[i] = time.Since(start)
	}
	slices.Sort(samples)
	return samples[n/2]
}

// assertComparableDurations fails when a and b differ by more than a factor
// of maxRatio.
func assertComparableDurations(t *testing.T, name string, a, b time.Duration, maxRatio float64) {
	t.Helper()
	lo, hi := min(a, b), max(a, b)
	if lo <= 0 {
		t.Fatalf("%s: non-positive median (%v, %v)", name, a, b)
	}
	if ratio := float64(hi) / float64(lo); ratio > maxRatio {
		t.Fatalf("%s: medians %v vs %v differ by %.2fx, want <= %.1fx", name, a, b, ratio, maxRatio)
	}
}

// newTimingVerifier uses a bcrypt cost high enough that hashing dominates
// scheduler noise.
func newTimingVerifier(t testing.TB) *CredentialVerifier {
	t.Helper()
	v, err := NewCredentialVerifier(VerifierConfig{
		Primary: NewBcryptHasher(WithBcryptCost(bcrypt.MinCost + 2)),
	})
	if err != nil {
		t.Fatalf("NewCredentialVerifier() error = %v", err)
	}
	return v
}
