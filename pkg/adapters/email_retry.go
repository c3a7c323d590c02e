package adapters

import (
	"context"
	"log/slog"
	"time"
)

const (
	defaultMaxAttempts = 3
	defaultBaseBackoff = 2 * time.Second
)

// RetryingEmailSender wraps an EmailSender with bounded exponential backoff
// for transient delivery failures. Permanent failures and context
// cancellation short-circuit immediately.
type RetryingEmailSender struct {
	inner       EmailSender
	logger      *slog.Logger
	maxAttempts int
	baseBackoff time.Duration
}

// NewRetryingEmailSender decorates sender with the default retry policy.
func NewRetryingEmailSender(sender EmailSender, logger *slog.Logger) *RetryingEmailSender {
	return &RetryingEmailSender{
		inner:       sender,
		logger:      logger.With("module", "email_sender"),
		maxAttempts: defaultMaxAttempts,
		baseBackoff: defaultBaseBackoff,
	}
}

// WithPolicy overrides attempts and base backoff, mainly for tests.
func (s *RetryingEmailSender) WithPolicy(maxAttempts int, baseBackoff time.Duration) *RetryingEmailSender {
	s.maxAttempts = maxAttempts
	s.baseBackoff = baseBackoff

	return s
}

func (s *RetryingEmailSender) Send(ctx context.Context, to, subject, htmlBody string) (string, error) {
	var lastErr error

	backoff := s.baseBackoff

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		deliveryID, err := s.inner.Send(ctx, to, subject, htmlBody)
		if err == nil {
			return deliveryID, nil
		}

		lastErr = err

		if IsPermanentDelivery(err) {
			return "", err
		}

		s.logger.WarnContext(ctx, "Transient delivery failure",
			"to", to,
			"attempt", attempt,
			"max_attempts", s.maxAttempts,
			"error", err)

		if attempt == s.maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
	}

	return "", lastErr
}
