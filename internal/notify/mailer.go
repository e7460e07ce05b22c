package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/go-storefront-checkout/internal/logger"
	"github.com/go-resty/resty/v2"
)

type EmailAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type Email struct {
	To      []EmailAddress
	Subject string
	HTML    string
}

type Mailer interface {
	Send(ctx context.Context, e Email) error
}

type SendGridConfig struct {
	APIKey     string
	BaseURL    string
	FromEmail  string
	FromName   string
	Timeout    time.Duration
	MaxRetries int
}

type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("sendgrid: status %d: %s", e.StatusCode, e.Body)
}

var ErrMailerDisabled = errors.New("mailer disabled: missing SENDGRID_API_KEY")

type SendGrid struct {
	client *resty.Client
	cfg    SendGridConfig
	log    *logger.Logger
}

type mailSendRequest struct {
	Personalizations []personalization `json:"personalizations"`
	From             EmailAddress      `json:"from"`
	Subject          string            `json:"subject"`
	Content          []mailContent     `json:"content"`
}

type personalization struct {
	To []EmailAddress `json:"to"`
}

type mailContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func NewSendGrid(cfg SendGridConfig, log *logger.Logger) *SendGrid {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.sendgrid.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")).
		SetAuthToken(cfg.APIKey).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(500 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() == 429 || r.StatusCode() >= 500
		})
	return &SendGrid{client: c, cfg: cfg, log: log.With("client", "SendGridClient")}
}

func (s *SendGrid) Send(ctx context.Context, e Email) error {
	if strings.TrimSpace(s.cfg.APIKey) == "" {
		return ErrMailerDisabled
	}
	if len(e.To) == 0 {
		return fmt.Errorf("sendgrid: at least one recipient required")
	}
	body := mailSendRequest{
		Personalizations: []personalization{{To: e.To}},
		From:             EmailAddress{Email: s.cfg.FromEmail, Name: s.cfg.FromName},
		Subject:          strings.TrimSpace(e.Subject),
		Content:          []mailContent{{Type: "text/html", Value: e.HTML}},
	}
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(body).
		Post("/v3/mail/send")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return &HTTPError{StatusCode: resp.StatusCode(), Body: truncate(resp.String(), 512)}
	}
	s.log.Debug("email accepted", "status", resp.StatusCode(), "message_id", resp.Header().Get("X-Message-Id"))
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
