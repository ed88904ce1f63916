package auth

import (
	"errors"
	"fmt"
	"testing"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in     string
		want   Role
		wantOK bool
	}{
		{"Owner", RoleOwner, true},
		{"manager", RoleManager, true},
		{"  EMPLOYEE ", RoleEmployee, true},
		{"Admin", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseRole(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseRole(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestCredentialPrincipal(t *testing.T) {
	c := Credential{UserID: 4, Email: "m@plot.test", Name: "Mona", PasswordHash: "$2a$...", Role: RoleManager, Active: true}
	want := Principal{ID: 4, Email: "m@plot.test", Role: RoleManager, Active: true}
	if got := c.Principal(); got != want {
		t.Fatalf("Principal() = %+v, want %+v", got, want)
	}
}

func TestValidationErrorIsGeneric(t *testing.T) {
	kinds := []Kind{
		KindTokenMalformed,
		KindTokenSignatureInvalid,
		KindTokenExpired,
		KindTokenWrongAudienceOrIssuer,
		KindTokenWrongClass,
	}
	for _, kind := range kinds {
		err := newValidationError(kind, fmt.Errorf("cause for %s", kind))
		if !errors.Is(err, ErrUnauthorized) {
			t.Errorf("%s: errors.Is(ErrUnauthorized) = false", kind)
		}
		if err.Error() != ErrUnauthorized.Error() {
			t.Errorf("%s: Error() = %q, want generic text", kind, err.Error())
		}
		if KindOf(fmt.Errorf("wrapped: %w", err)) != kind {
			t.Errorf("%s: KindOf(wrapped) = %s", kind, KindOf(err))
		}
		if IsRetryable(err) {
			t.Errorf("%s: IsRetryable() = true", kind)
		}
	}
}

func TestKindOfSentinels(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{nil, KindUnknown},
		{ErrCredentialMismatch, KindCredentialMismatch},
		{fmt.Errorf("%w: dial tcp", ErrDirectoryUnavailable), KindDirectoryLookupFailed},
		{errors.New("other"), KindUnknown},
	}
	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Errorf("KindOf(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
	if !IsRetryable(fmt.Errorf("%w: timeout", ErrDirectoryUnavailable)) {
		t.Error("IsRetryable(directory) = false, want true")
	}
	if IsRetryable(ErrCredentialMismatch) {
		t.Error("IsRetryable(mismatch) = true, want false")
	}
}

func TestKindString(t *testing.T) {
	if got := KindTokenWrongClass.String(); got != "token_wrong_class" {
		t.Errorf("String() = %q", got)
	}
	if got := Kind(99).String(); got != "unknown" {
		t.Errorf("String() = %q, want unknown", got)
	}
}
