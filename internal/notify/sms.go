// Package notify delivers goal-reached text messages.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kavenegar/kavenegar-go"
	"github.com/sirupsen/logrus"
)

// Supported SMS providers.
const (
	ProviderKavenegar = "kavenegar"
	ProviderLog       = "log"
)

// DefaultSendTimeout bounds one gateway call.
const DefaultSendTimeout = 5 * time.Second

// ErrSMSDisabled is returned when no SMS provider is configured.
var ErrSMSDisabled = errors.New("sms provider not configured")

type senderOptions struct {
	timeout time.Duration
	baseURL *url.URL
}

// Option configures the gateway sender.
type Option func(*senderOptions)

// WithTimeout bounds each gateway HTTP call.
func WithTimeout(d time.Duration) Option {
	return func(o *senderOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithBaseURL points the gateway client at another host, such as a sandbox.
func WithBaseURL(raw string) Option {
	return func(o *senderOptions) {
		if u, err := url.Parse(raw); err == nil && raw != "" {
			o.baseURL = u
		}
	}
}

// Sender sends a text message and returns the provider message ID.
type Sender interface {
	SendSMS(ctx context.Context, phone, message string) (string, error)
}

// NewSMSSender picks an implementation for provider. Unknown providers and a
// kavenegar provider without an API key fall back to a disabled sender.
func NewSMSSender(provider, apiKey, sender string, logger logrus.FieldLogger, opts ...Option) Sender {
	options := senderOptions{timeout: DefaultSendTimeout}
	for _, opt := range opts {
		opt(&options)
	}

	log := logger.WithField("sms_provider", provider)
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case ProviderKavenegar:
		if apiKey == "" {
			log.Warn("SMS_API_KEY is not set, sms disabled")
			return disabledSender{}
		}
		// The library defaults to http.DefaultClient, which never times out.
		client := kavenegar.NewClient(apiKey)
		client.BaseClient = &http.Client{Timeout: options.timeout}
		if options.baseURL != nil {
			client.BaseURL = options.baseURL
		}
		return &kavenegarSender{api: kavenegar.NewWithClient(client), sender: sender}
	case ProviderLog:
		return &logSender{logger: logger}
	case "":
		log.Info("no sms provider configured, sms disabled")
		return disabledSender{}
	default:
		log.Warn("unknown sms provider, sms disabled")
		return disabledSender{}
	}
}

type sendResult struct {
	res []kavenegar.Message
	err error
}

type kavenegarSender struct {
	api    *kavenegar.Kavenegar
	sender string
}

func (s *kavenegarSender) SendSMS(ctx context.Context, phone, message string) (string, error) {
	if err := validate(phone, message); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	// The library takes no context, so the call runs aside and the caller
	// stops waiting when ctx ends. The client timeout ends the call itself.
	done := make(chan sendResult, 1)
	go func() {
		res, err := s.api.Message.Send(s.sender, []string{phone}, message, nil)
		done <- sendResult{res: res, err: err}
	}()

	var out sendResult
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("send sms: %w", ctx.Err())
	case out = <-done:
	}
	if out.err != nil {
		switch err := out.err.(type) {
		case *kavenegar.APIError:
			return "", fmt.Errorf("kavenegar api error: %w", err)
		case *kavenegar.HTTPError:
			return "", fmt.Errorf("kavenegar http error: %w", err)
		default:
			return "", fmt.Errorf("send sms: %w", err)
		}
	}
	if len(out.res) == 0 {
		return "", errors.New("kavenegar returned no message entries")
	}
	return fmt.Sprintf("%d", out.res[0].MessageID), nil
}

// logSender writes messages to the log instead of a gateway. Useful in development.
type logSender struct {
	logger logrus.FieldLogger
}

func (s *logSender) SendSMS(ctx context.Context, phone, message string) (string, error) {
	if err := validate(phone, message); err != nil {
		return "", err
	}
	s.logger.WithFields(logrus.Fields{"phone": mask(phone), "sms": message}).Info("sms")
	return "", nil
}

type disabledSender struct{}

func (disabledSender) SendSMS(context.Context, string, string) (string, error) {
	return "", ErrSMSDisabled
}

func validate(phone, message string) error {
	switch {
	case strings.TrimSpace(phone) == "":
		return errors.New("phone number is required")
	case strings.TrimSpace(message) == "":
		return errors.New("message is required")
	}
	return nil
}

// mask keeps the last four digits of a phone number.
func mask(phone string) string {
	if len(phone) <= 4 {
		return phone
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}
