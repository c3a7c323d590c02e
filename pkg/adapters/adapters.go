// Package adapters declares the interfaces to the external collaborators the
// engine acts through: the email transport, the tag store and the subscriber
// store. The engine never touches subscriber or tag data outside these.
package adapters

import (
	"context"
	"errors"
	"fmt"
)

// DeliveryError describes a failed email delivery. Transient errors are
// retried by the sending decorator; permanent ones fail the run immediately.
type DeliveryError struct {
	Permanent bool
	Reason    string
}

func (e *DeliveryError) Error() string {
	if e.Permanent {
		return fmt.Sprintf("permanent delivery failure: %s", e.Reason)
	}

	return fmt.Sprintf("transient delivery failure: %s", e.Reason)
}

// IsPermanentDelivery reports whether err is a permanent delivery failure.
func IsPermanentDelivery(err error) bool {
	var deliveryErr *DeliveryError
	if errors.As(err, &deliveryErr) {
		return deliveryErr.Permanent
	}

	return false
}

// EmailSender delivers one rendered email and returns the transport's
// delivery id.
type EmailSender interface {
	Send(ctx context.Context, to, subject, htmlBody string) (string, error)
}

// TagStore mutates a contact's tag set. Both operations are idempotent:
// re-adding an existing tag or removing an absent one is a no-op.
type TagStore interface {
	AddTag(ctx context.Context, contactID, tagID string) error
	RemoveTag(ctx context.Context, contactID, tagID string) error
}

// SubscriberContext is the live subscriber state read for condition
// evaluation and personalization.
type SubscriberContext struct {
	Name         string
	Email        string
	Tags         []string
	TierID       string
	CustomFields map[string]string
}

// HasTag reports whether the subscriber currently carries the tag.
func (c SubscriberContext) HasTag(tagID string) bool {
	for _, tag := range c.Tags {
		if tag == tagID {
			return true
		}
	}

	return false
}

// SubscriberStore reads subscriber state owned by the wider platform.
type SubscriberStore interface {
	Context(ctx context.Context, contactID string) (SubscriberContext, error)
}

// TemplateStore resolves email template references to their subject and
// HTML content. Templates are owned by the wider platform.
type TemplateStore interface {
	Template(ctx context.Context, templateID string) (subject, htmlBody string, err error)
}
