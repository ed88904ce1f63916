package auth

import (
	"context"
	"strings"
	"time"
)

// Role is one of the closed set of roles a Principal can hold.
type Role string

const (
	RoleOwner    Role = "Owner"
	RoleManager  Role = "Manager"
	RoleEmployee Role = "Employee"
)

// IsValid reports whether r is one of the predefined roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleOwner, RoleManager, RoleEmployee:
		return true
	default:
		return false
	}
}

func (r Role) String() string { return string(r) }

// ParseRole maps a string onto a Role, matching case-insensitively.
func ParseRole(s string) (Role, bool) {
	s = strings.TrimSpace(s)
	for _, r := range AllRoles() {
		if strings.EqualFold(s, string(r)) {
			return r, true
		}
	}
	return "", false
}

// AllRoles returns the predefined roles from most to least privileged.
func AllRoles() []Role {
	return []Role{RoleOwner, RoleManager, RoleEmployee}
}

// Principal is the identity derived from a validated session token. It lives
// for a single request and is never persisted by this package.
type Principal struct {
	ID     int64
	Email  string
	Role   Role
	Active bool
}

// TokenClass tags the two disjoint credential classes.
type TokenClass string

const (
	ClassSession TokenClass = "session"
	ClassReset   TokenClass = "reset"
)

func (c TokenClass) String() string { return string(c) }

// Token is a signed credential as returned by the issuer.
type Token struct {
	Raw       string
	ID        string
	Class     TokenClass
	IssuedAt  time.Time
	ExpiresAt time.Time
}

func (t Token) String() string { return t.Raw }

// Credential is the directory record used to check a login or start a reset.
// PasswordHash is self-describing (bcrypt or argon2id encoded form).
type Credential struct {
	UserID       int64
	Email        string
	Name         string
	PasswordHash string
	Role         Role
	Active       bool
}

// Principal projects the credential onto the identity carried by session tokens.
func (c Credential) Principal() Principal {
	return Principal{ID: c.UserID, Email: c.Email, Role: c.Role, Active: c.Active}
}

// UserDirectory owns the authoritative identity records. FindBy* report
// found=false with a nil error when no record exists; a non-nil error always
// means the directory itself could not answer.
type UserDirectory interface {
	FindByEmail(ctx context.Context, email string) (Credential, bool, error)
	FindByID(ctx context.Context, id int64) (Principal, bool, error)
	UpdatePasswordHash(ctx context.Context, email, newHash string) error
}

// EmailDispatcher delivers reset links out-of-band.
type EmailDispatcher interface {
	SendResetEmail(ctx context.Context, toEmail, toName, resetLink string) error
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func contextError(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
