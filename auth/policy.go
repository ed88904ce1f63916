package auth

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"go.uber.org/zap"
)

var (
	ErrPolicyNameEmpty    = errors.New("auth: policy name is empty")
	ErrPolicyNoRoles      = errors.New("auth: policy allows no roles")
	ErrPolicyDuplicate    = errors.New("auth: duplicate policy name")
	ErrMissingTokenSource = errors.New("auth: authorizer requires a session authenticator")
)

// Well-known policy names consumed by RequireAuthPolicy callers.
const (
	PolicyOwner    = "Owner"
	PolicyManager  = "Manager"
	PolicyEmployee = "Employee"
	PolicyUser     = "User"
)

// AuthPolicy names a set of roles permitted to pass.
type AuthPolicy struct {
	Name  string
	Roles []Role
}

// Allows reports whether role is in the policy's role set.
func (p AuthPolicy) Allows(role Role) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// DefaultPolicies returns the built-in policy set. Each call returns a fresh
// slice.
func DefaultPolicies() []AuthPolicy {
	return []AuthPolicy{
		{Name: PolicyOwner, Roles: []Role{RoleOwner}},
		{Name: PolicyManager, Roles: []Role{RoleOwner, RoleManager}},
		{Name: PolicyEmployee, Roles: []Role{RoleOwner, RoleManager, RoleEmployee}},
		{Name: PolicyUser, Roles: []Role{RoleOwner, RoleManager, RoleEmployee}},
	}
}

// PolicyTable is an immutable name → policy lookup.
type PolicyTable struct {
	policies map[string]AuthPolicy
}

// NewPolicyTable validates and copies policies.
func NewPolicyTable(policies ...AuthPolicy) (*PolicyTable, error) {
	table := &PolicyTable{policies: make(map[string]AuthPolicy, len(policies))}
	for _, p := range policies {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return nil, ErrPolicyNameEmpty
		}
		if len(p.Roles) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrPolicyNoRoles, name)
		}
		if _, exists := table.policies[name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrPolicyDuplicate, name)
		}
		roles := make([]Role, 0, len(p.Roles))
		for _, r := range p.Roles {
			if !r.IsValid() {
				return nil, fmt.Errorf("auth: policy %s: %w", name, ErrInvalidRole)
			}
			roles = append(roles, r)
		}
		table.policies[name] = AuthPolicy{Name: name, Roles: roles}
	}
	return table, nil
}

// Lookup returns a copy of the named policy.
func (t *PolicyTable) Lookup(name string) (AuthPolicy, bool) {
	if t == nil {
		return AuthPolicy{}, false
	}
	p, ok := t.policies[name]
	if !ok {
		return AuthPolicy{}, false
	}
	return AuthPolicy{Name: p.Name, Roles: append([]Role(nil), p.Roles...)}, true
}

// Names lists the configured policy names in sorted order.
func (t *PolicyTable) Names() []string {
	if t == nil {
		return nil
	}
	names := make([]string, 0, len(t.policies))
	for name := range t.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Outcome is the terminal state of an authorization decision.
type Outcome int

const (
	Unauthorized Outcome = iota
	Forbidden
	Authorized
)

func (o Outcome) String() string {
	switch o {
	case Authorized:
		return "authorized"
	case Forbidden:
		return "forbidden"
	default:
		return "unauthorized"
	}
}

// Decision is the result of Authorize. Principal is set for Forbidden and
// Authorized outcomes.
type Decision struct {
	Outcome   Outcome
	Principal Principal
	Reason    Kind
}

// Allowed reports whether the request may proceed.
func (d Decision) Allowed() bool { return d.Outcome == Authorized }

// StatusCode maps the decision onto the HTTP status a transport should send.
func (d Decision) StatusCode() int {
	switch d.Outcome {
	case Authorized:
		return http.StatusOK
	case Forbidden:
		return http.StatusForbidden
	default:
		return http.StatusUnauthorized
	}
}

// SessionAuthenticator resolves a raw session token into a Principal.
type SessionAuthenticator interface {
	Authenticate(raw string) (Principal, error)
}

// Authorizer evaluates named policies against session tokens. It holds no
// mutable state and is safe for concurrent use.
type Authorizer struct {
	tokens   SessionAuthenticator
	policies *PolicyTable
	logger   *zap.Logger
}

// NewAuthorizer builds an Authorizer. A nil table selects DefaultPolicies.
func NewAuthorizer(tokens SessionAuthenticator, policies *PolicyTable, logger *zap.Logger) (*Authorizer, error) {
	if tokens == nil {
		return nil, ErrMissingTokenSource
	}
	if policies == nil {
		table, err := NewPolicyTable(DefaultPolicies()...)
		if err != nil {
			return nil, err
		}
		policies = table
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authorizer{tokens: tokens, policies: policies, logger: logger}, nil
}

// Policies exposes the immutable policy table.
func (a *Authorizer) Policies() *PolicyTable { return a.policies }

// Authorize decides whether raw satisfies the named policy. A missing or
// invalid token is Unauthorized; a valid token whose role is not permitted,
// or an unknown policy name, is Forbidden.
func (a *Authorizer) Authorize(raw, policyName string) Decision {
	if strings.TrimSpace(raw) == "" {
		return Decision{Outcome: Unauthorized, Reason: KindTokenMalformed}
	}
	principal, err := a.tokens.Authenticate(raw)
	if err != nil {
		return Decision{Outcome: Unauthorized, Reason: KindOf(err)}
	}

	policy, ok := a.policies.Lookup(policyName)
	if !ok {
		a.logger.Warn("unknown authorization policy", zap.String("policy", policyName))
		return Decision{Outcome: Forbidden, Principal: principal, Reason: KindRoleNotPermitted}
	}
	if !policy.Allows(principal.Role) {
		a.logger.Debug("role not permitted",
			zap.String("policy", policy.Name),
			zap.Stringer("role", principal.Role),
			zap.Int64("user_id", principal.ID))
		return Decision{Outcome: Forbidden, Principal: principal, Reason: KindRoleNotPermitted}
	}
	return Decision{Outcome: Authorized, Principal: principal}
}
