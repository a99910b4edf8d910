// Package mail delivers alert notifications through the SendGrid v3 mail API.
package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/faqminer/backend/pkg/apperr"
	"github.com/faqminer/backend/pkg/circuitbreaker"
	"github.com/faqminer/backend/pkg/logger"
	"github.com/faqminer/backend/pkg/retry"
)

const (
	sendPath  = "/v3/mail/send"
	component = "mail"
)

type Config struct {
	APIKey     string
	BaseURL    string
	FromEmail  string
	FromName   string
	Timeout    time.Duration
	MaxRetries int
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	cb         *circuitbreaker.Breaker
	policy     retry.Policy
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: mail api key is required", apperr.ErrInvalidInput)
	}
	if strings.TrimSpace(cfg.FromEmail) == "" {
		return nil, fmt.Errorf("%w: mail from address is required", apperr.ErrInvalidInput)
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.sendgrid.com"
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	policy := retry.DefaultPolicy()
	policy.MaxAttempts = cfg.MaxRetries
	policy.InitialDelay = time.Second
	policy.MaxDelay = 10 * time.Second
	policy.ShouldRetry = isRetryable
	policy.Logger = logger.Named(component)

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cb: circuitbreaker.New(component, circuitbreaker.Config{
			FailureThreshold: 3,
			OpenTimeout:      time.Minute,
			Logger:           logger.Named(component),
		}),
		policy: policy,
	}, nil
}

type address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type personalization struct {
	To []address `json:"to"`
}

type content struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendRequest struct {
	Personalizations []personalization `json:"personalizations"`
	From             address           `json:"from"`
	Subject          string            `json:"subject"`
	Content          []content         `json:"content"`
	Headers          map[string]string `json:"headers,omitempty"`
	Categories       []string          `json:"categories,omitempty"`
}

type errorResponse struct {
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// HTTPError is a non-2xx answer from the mail API.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("sendgrid http %d: %s", e.StatusCode, e.Message)
}

// Send mails one HTML message. High priority sets the X-Priority and
// Importance headers.
func (c *Client) Send(ctx context.Context, to []string, subject, htmlBody, priority string) error {
	if len(to) == 0 {
		return fmt.Errorf("%w: at least one recipient is required", apperr.ErrInvalidInput)
	}

	recipients := make([]address, 0, len(to))
	for _, addr := range to {
		recipients = append(recipients, address{Email: strings.TrimSpace(addr)})
	}

	wire := sendRequest{
		Personalizations: []personalization{{To: recipients}},
		From:             address{Email: c.cfg.FromEmail, Name: c.cfg.FromName},
		Subject:          subject,
		Content:          []content{{Type: "text/html", Value: htmlBody}},
		Categories:       []string{"faqminer-alert"},
	}
	if priority == "high" {
		wire.Headers = map[string]string{"X-Priority": "1", "Importance": "high"}
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("failed to encode mail: %w", err)
	}

	err = c.cb.Execute(ctx, func(ctx context.Context) error {
		return retry.Do(ctx, c.policy, func(ctx context.Context) error {
			return c.post(ctx, body)
		})
	})
	if err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}

	logger.Debug("Mail sent", zap.Int("recipients", len(recipients)), zap.String("priority", priority))
	return nil
}

func (c *Client) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+sendPath, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	he := &HTTPError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	var er errorResponse
	if json.Unmarshal(raw, &er) == nil && len(er.Errors) > 0 {
		he.Message = er.Errors[0].Message
	}
	return he
}

func isRetryable(err error) bool {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode == http.StatusTooManyRequests || he.StatusCode >= 500
	}
	return true
}
