// Package mailer delivers password reset links for auth.ResetFlow.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/adeilh/plot-auth/auth"
	"github.com/adeilh/plot-auth/httpx"
	"go.uber.org/zap"
)

var (
	ErrMissingEndpoint = errors.New("mailer: API URL is required")
	ErrMissingSender   = errors.New("mailer: from address is required")
	ErrDeliveryFailed  = errors.New("mailer: delivery failed")
)

const (
	DefaultSubject = "Reset your Plot password"
	DefaultPath    = "/v1/messages"
)

// Message is the JSON payload posted to the relay.
type Message struct {
	To        string `json:"to"`
	ToName    string `json:"toName,omitempty"`
	From      string `json:"from"`
	Subject   string `json:"subject"`
	ResetLink string `json:"resetLink"`
}

type HTTPDispatcherConfig struct {
	// APIURL is the relay base URL, e.g. https://mail.internal.
	APIURL  string
	Path    string
	APIKey  string
	From    string
	Subject string
	Timeout time.Duration
	Retries int
	Logger  *zap.Logger
}

// HTTPDispatcher posts reset emails to a JSON mail relay.
type HTTPDispatcher struct {
	client  *httpx.Client
	path    string
	apiKey  string
	from    string
	subject string
	logger  *zap.Logger
}

var _ auth.EmailDispatcher = (*HTTPDispatcher)(nil)

func NewHTTPDispatcher(cfg HTTPDispatcherConfig) (*HTTPDispatcher, error) {
	base := strings.TrimSpace(cfg.APIURL)
	if base == "" {
		return nil, ErrMissingEndpoint
	}
	if u, err := url.Parse(base); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q is not absolute", ErrMissingEndpoint, base)
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, ErrMissingSender
	}
	path := cfg.Path
	if path == "" {
		path = DefaultPath
	}
	subject := cfg.Subject
	if subject == "" {
		subject = DefaultSubject
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	retries := cfg.Retries
	client := httpx.NewClient(
		httpx.WithBaseURL(strings.TrimRight(base, "/")),
		httpx.WithClientTimeout(cfg.Timeout),
		httpx.WithRestyConfig(func(rc httpx.RestClient) {
			if retries > 0 {
				rc.SetRetryCount(retries)
			}
		}),
	)
	return &HTTPDispatcher{
		client:  client,
		path:    path,
		apiKey:  cfg.APIKey,
		from:    cfg.From,
		subject: subject,
		logger:  logger,
	}, nil
}

func (d *HTTPDispatcher) SendResetEmail(ctx context.Context, toEmail, toName, resetLink string) error {
	msg := Message{
		To:        toEmail,
		ToName:    toName,
		From:      d.from,
		Subject:   d.subject,
		ResetLink: resetLink,
	}
	resp, err := d.client.Post(ctx, d.path, msg, nil, httpx.WithBearer(d.apiKey))
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode()
		}
		d.logger.Warn("reset email delivery failed", zap.Int("status", status), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	d.logger.Debug("reset email accepted", zap.Int("status", resp.StatusCode()))
	return nil
}

// LogDispatcher writes reset links to the log instead of sending mail. The
// link is only emitted at Debug level. Intended for local development only.
type LogDispatcher struct {
	logger *zap.Logger
}

var _ auth.EmailDispatcher = (*LogDispatcher)(nil)

func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) SendResetEmail(ctx context.Context, toEmail, toName, resetLink string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.logger.Info("password reset requested", zap.String("to", toEmail))
	// The link carries a live reset token.
	d.logger.Debug("password reset link",
		zap.String("to", toEmail),
		zap.String("name", toName),
		zap.String("link", resetLink))
	return nil
}
