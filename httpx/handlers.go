package httpx

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/adeilh/plot-auth/auth"
	"go.uber.org/zap"
)

const resetAcceptedMessage = "if the account exists, a reset link has been sent"

// AuthService is the account-facing surface the auth routes call.
// *auth.Manager satisfies it.
type AuthService interface {
	Login(ctx context.Context, email, password string) (auth.LoginResult, error)
	Current(ctx context.Context, p auth.Principal) (auth.Principal, error)
	RequestReset(ctx context.Context, email string) error
	ConfirmReset(ctx context.Context, token, newPassword string) error
}

type AuthHandlersConfig struct {
	Service    AuthService
	Authorizer auth.PolicyAuthorizer
	// SessionCookie, when set, also delivers the session token as an
	// HttpOnly cookie on login.
	SessionCookie string
	SecureCookie  bool
	Logger        *zap.Logger
}

// AuthHandlers serves the login, password reset and current-user routes.
type AuthHandlers struct {
	svc          AuthService
	authorizer   auth.PolicyAuthorizer
	cookie       string
	secureCookie bool
	logger       *zap.Logger
}

func NewAuthHandlers(cfg AuthHandlersConfig) (*AuthHandlers, error) {
	if cfg.Service == nil || cfg.Authorizer == nil {
		return nil, auth.ErrMissingCollaborator
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandlers{
		svc:          cfg.Service,
		authorizer:   cfg.Authorizer,
		cookie:       cfg.SessionCookie,
		secureCookie: cfg.SecureCookie,
		logger:       logger,
	}, nil
}

// Register mounts the routes under /auth.
func (h *AuthHandlers) Register(a *App) error {
	requireUser, err := RequireAuthPolicy(h.authorizer, auth.PolicyUser)
	if err != nil {
		return err
	}
	a.Group("/auth").
		POST("/login", h.login).
		POST("/password-reset", h.requestReset).
		POST("/password-reset/confirm", h.confirmReset).
		GET("/me", h.me, requireUser)
	return nil
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=1024"`
}

type userResponse struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type loginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      userResponse `json:"user"`
}

type resetRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

type resetConfirmRequest struct {
	Token    string `json:"token" validate:"required,max=4096"`
	Password string `json:"password" validate:"required,max=72"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (h *AuthHandlers) login(c Context) error {
	var req loginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	res, err := h.svc.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return h.serviceError(c, err)
	}
	if h.cookie != "" {
		c.SetCookie(&http.Cookie{
			Name:     h.cookie,
			Value:    res.Token.Raw,
			Path:     "/",
			Expires:  res.Token.ExpiresAt,
			HttpOnly: true,
			Secure:   h.secureCookie,
			SameSite: http.SameSiteStrictMode,
		})
	}
	return c.JSON(StatusOK, loginResponse{
		Token:     res.Token.Raw,
		ExpiresAt: res.Token.ExpiresAt.UTC(),
		User:      toUserResponse(res.Principal),
	})
}

func (h *AuthHandlers) requestReset(c Context) error {
	var req resetRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if err := h.svc.RequestReset(c.Request().Context(), req.Email); err != nil {
		return h.serviceError(c, err)
	}
	return c.JSON(StatusAccepted, messageResponse{Message: resetAcceptedMessage})
}

func (h *AuthHandlers) confirmReset(c Context) error {
	var req resetConfirmRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if err := h.svc.ConfirmReset(c.Request().Context(), req.Token, req.Password); err != nil {
		return h.serviceError(c, err)
	}
	return c.NoContent(StatusNoContent)
}

func (h *AuthHandlers) me(c Context) error {
	p, err := Principal(c)
	if err != nil {
		return HTTPError(StatusUnauthorized, http.StatusText(StatusUnauthorized))
	}
	current, err := h.svc.Current(c.Request().Context(), p)
	if err != nil {
		return h.serviceError(c, err)
	}
	return c.JSON(StatusOK, toUserResponse(current))
}

// serviceError maps auth errors to responses that carry no account detail.
func (h *AuthHandlers) serviceError(c Context, err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return HTTPError(StatusGatewayTimeout, http.StatusText(StatusGatewayTimeout))
	case errors.Is(err, auth.ErrCredentialMismatch):
		return HTTPError(StatusUnauthorized, "invalid credentials")
	case errors.Is(err, auth.ErrUserNotFound), errors.Is(err, auth.ErrPrincipalInactive), errors.Is(err, auth.ErrUnauthorized):
		return HTTPError(StatusUnauthorized, http.StatusText(StatusUnauthorized))
	case errors.Is(err, auth.ErrResetFailed):
		return HTTPError(StatusBadRequest, "password reset failed")
	case errors.Is(err, auth.ErrDirectoryUnavailable):
		h.logger.Warn("user directory unavailable", zap.String("path", c.Path()), zap.Error(err))
		return HTTPError(StatusServiceUnavailable, http.StatusText(StatusServiceUnavailable))
	default:
		return err
	}
}

func bindAndValidate(c Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return HTTPError(StatusBadRequest, "invalid request body")
	}
	return c.Validate(dst)
}

func toUserResponse(p auth.Principal) userResponse {
	return userResponse{ID: p.ID, Email: p.Email, Role: string(p.Role)}
}
