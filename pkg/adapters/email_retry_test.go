package adapters

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakySender struct {
	failures int
	calls    int
	err      error
}

func (s *flakySender) Send(_ context.Context, _, _, _ string) (string, error) {
	s.calls++

	if s.calls <= s.failures {
		return "", s.err
	}

	return "delivery-1", nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRetryingSenderRecoversFromTransientFailure(t *testing.T) {
	inner := &flakySender{
		failures: 2,
		err:      &DeliveryError{Reason: "rate limited"},
	}

	sender := NewRetryingEmailSender(inner, testLogger()).WithPolicy(3, time.Millisecond)

	deliveryID, err := sender.Send(context.Background(), "a@example.com", "subject", "body")

	require.NoError(t, err)
	assert.Equal(t, "delivery-1", deliveryID)
	assert.Equal(t, 3, inner.calls)
}

func TestRetryingSenderGivesUpAfterMaxAttempts(t *testing.T) {
	inner := &flakySender{
		failures: 10,
		err:      &DeliveryError{Reason: "upstream timeout"},
	}

	sender := NewRetryingEmailSender(inner, testLogger()).WithPolicy(3, time.Millisecond)

	_, err := sender.Send(context.Background(), "a@example.com", "subject", "body")

	require.Error(t, err)
	assert.Equal(t, 3, inner.calls)
	assert.False(t, IsPermanentDelivery(err))
}

func TestRetryingSenderShortCircuitsPermanentFailure(t *testing.T) {
	inner := &flakySender{
		failures: 10,
		err:      &DeliveryError{Permanent: true, Reason: "mailbox does not exist"},
	}

	sender := NewRetryingEmailSender(inner, testLogger()).WithPolicy(3, time.Millisecond)

	_, err := sender.Send(context.Background(), "a@example.com", "subject", "body")

	require.Error(t, err)
	assert.True(t, IsPermanentDelivery(err))
	assert.Equal(t, 1, inner.calls, "permanent failures are never retried")
}

func TestRetryingSenderHonorsContextCancellation(t *testing.T) {
	inner := &flakySender{
		failures: 10,
		err:      &DeliveryError{Reason: "upstream timeout"},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sender := NewRetryingEmailSender(inner, testLogger()).WithPolicy(3, time.Hour)

	_, err := sender.Send(ctx, "a@example.com", "subject", "body")

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, inner.calls)
}

func TestSubscriberContextHasTag(t *testing.T) {
	sub := SubscriberContext{Tags: []string{"tag-a", "tag-b"}}

	assert.True(t, sub.HasTag("tag-a"))
	assert.False(t, sub.HasTag("tag-c"))
	assert.False(t, SubscriberContext{}.HasTag("tag-a"))
}
