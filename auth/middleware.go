package auth

import (
	"context"
	"net/http"
)

// Middleware gates a handler behind one named policy.
type Middleware struct {
	authorizer   PolicyAuthorizer
	policy       string
	extractor    TokenExtractor
	skipper      MiddlewareSkipper
	errorHandler MiddlewareErrorHandler
}

type principalContextKey struct{}

func NewMiddleware(authorizer PolicyAuthorizer, policy string, opts ...MiddlewareOption) (*Middleware, error) {
	cfg, err := newMiddlewareConfig(authorizer, policy, opts...)
	if err != nil {
		return nil, err
	}
	return &Middleware{
		authorizer:   cfg.authorizer,
		policy:       cfg.policy,
		extractor:    cfg.extractor,
		skipper:      cfg.skipper,
		errorHandler: cfg.errorHandler,
	}, nil
}

func (m *Middleware) Handler(next http.Handler) http.Handler {
	if m == nil {
		panic("auth: middleware is nil")
	}
	if next == nil {
		next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipper(r) {
			next.ServeHTTP(w, r)
			return
		}

		raw, err := m.extractor(r)
		if err != nil {
			m.errorHandler(w, r, ErrUnauthorized)
			return
		}

		decision := m.authorizer.Authorize(raw, m.policy)
		switch decision.Outcome {
		case Authorized:
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), decision.Principal)))
		case Forbidden:
			m.errorHandler(w, r, ErrForbidden)
		default:
			m.errorHandler(w, r, ErrUnauthorized)
		}
	})
}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}
