package httpx

import (
	"errors"
	"net/http"

	"github.com/adeilh/plot-auth/auth"
)

// AuthMiddleware bridges a net/http auth.Middleware into the echo chain.
// Errors returned by downstream handlers propagate to the echo error handler.
func AuthMiddleware(mw *auth.Middleware) MiddlewareFunc {
	if mw == nil {
		return func(next HandlerFunc) HandlerFunc {
			return func(c Context) error {
				return HTTPError(StatusUnauthorized, http.StatusText(StatusUnauthorized))
			}
		}
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(c Context) error {
			var nextErr error
			downstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				c.SetRequest(r)
				nextErr = next(c)
			})
			mw.Handler(downstream).ServeHTTP(c.Response(), c.Request())
			return nextErr
		}
	}
}

// RequireAuthPolicy gates routes behind the named policy. The authenticated
// principal is available through auth.PrincipalFromContext or Principal.
func RequireAuthPolicy(authorizer auth.PolicyAuthorizer, policy string, opts ...auth.MiddlewareOption) (MiddlewareFunc, error) {
	mw, err := auth.NewMiddleware(authorizer, policy, opts...)
	if err != nil {
		return nil, err
	}
	return AuthMiddleware(mw), nil
}

var errNoPrincipal = errors.New("httpx: no principal in request context")

// Principal returns the principal injected by RequireAuthPolicy.
func Principal(c Context) (auth.Principal, error) {
	p, ok := auth.PrincipalFromContext(c.Request().Context())
	if !ok {
		return auth.Principal{}, errNoPrincipal
	}
	return p, nil
}
