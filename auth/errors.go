package auth

import (
	"errors"
)

var (
	// ErrUnauthorized is the only token failure visible across the trust
	// boundary. Every *ValidationError matches it with errors.Is.
	ErrUnauthorized = errors.New("auth: unauthorized")

	ErrCredentialMismatch   = errors.New("auth: invalid email or password")
	ErrDirectoryUnavailable = errors.New("auth: user directory unavailable")
	ErrResetFailed          = errors.New("auth: password reset could not be completed")
	ErrPrincipalInactive    = errors.New("auth: principal is inactive")
	ErrInvalidPrincipal     = errors.New("auth: invalid principal")
	ErrUserNotFound         = errors.New("auth: user not found")
	ErrMissingCollaborator  = errors.New("auth: required collaborator missing")
	ErrInvalidRole          = errors.New("auth: invalid role")
	ErrForbidden            = errors.New("auth: forbidden")
)

// Kind classifies a failure for diagnostics. Token kinds are never used to
// vary a response.
type Kind int

const (
	KindUnknown Kind = iota
	KindCredentialMismatch
	KindTokenMalformed
	KindTokenSignatureInvalid
	KindTokenExpired
	KindTokenWrongAudienceOrIssuer
	KindTokenWrongClass
	KindRoleNotPermitted
	KindDirectoryLookupFailed
)

var kindNames = map[Kind]string{
	KindUnknown:                    "unknown",
	KindCredentialMismatch:         "credential_mismatch",
	KindTokenMalformed:             "token_malformed",
	KindTokenSignatureInvalid:      "token_signature_invalid",
	KindTokenExpired:               "token_expired",
	KindTokenWrongAudienceOrIssuer: "token_wrong_audience_or_issuer",
	KindTokenWrongClass:            "token_wrong_class",
	KindRoleNotPermitted:           "role_not_permitted",
	KindDirectoryLookupFailed:      "directory_lookup_failed",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindUnknown]
}

// ValidationError is returned for every rejected token. Error() is identical
// for all kinds; Kind and the wrapped cause are for logs and tests.
type ValidationError struct {
	Kind Kind
	Err  error
}

func (e *ValidationError) Error() string { return ErrUnauthorized.Error() }

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *ValidationError) Is(target error) bool { return target == ErrUnauthorized }

func newValidationError(kind Kind, cause error) *ValidationError {
	return &ValidationError{Kind: kind, Err: cause}
}

// KindOf extracts the diagnostic kind from err.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Kind
	}
	switch {
	case errors.Is(err, ErrCredentialMismatch):
		return KindCredentialMismatch
	case errors.Is(err, ErrDirectoryUnavailable):
		return KindDirectoryLookupFailed
	default:
		return KindUnknown
	}
}

// IsRetryable reports whether err stems from an infrastructure dependency
// rather than a security decision.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrDirectoryUnavailable)
}
