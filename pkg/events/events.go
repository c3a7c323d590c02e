// Package events defines the platform events consumed by the trigger matcher
// and the run lifecycle events published by the execution engine.
package events

import (
	"errors"
	"time"

	"github.com/letterflow/letterflow/pkg/models"
)

type EventType string

// Bus topics.
const (
	PlatformTopic = "letterflow.platform.events"
	RunTopic      = "letterflow.run.events"
)

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Platform events, emitted by the wider platform.
	SubscriberSubscribedEvent   EventType = "subscriber.subscribed"
	SubscriberUnsubscribedEvent EventType = "subscriber.unsubscribed"
	PostPublishedEvent          EventType = "post.published"
	PostViewedEvent             EventType = "post.viewed"
	CourseEnrolledEvent         EventType = "course.enrolled"
	TagAddedEvent               EventType = "tag.added"
	TagRemovedEvent             EventType = "tag.removed"
	TierChangedEvent            EventType = "tier.changed"
	FormSubmittedEvent          EventType = "form.submitted"

	// Run lifecycle events, emitted by the engine.
	RunStartedEvent   EventType = "run.started"
	RunCompletedEvent EventType = "run.completed"
	RunFailedEvent    EventType = "run.failed"
)

// PlatformEventTypes lists every platform event the trigger matcher consumes.
var PlatformEventTypes = []EventType{
	SubscriberSubscribedEvent,
	SubscriberUnsubscribedEvent,
	PostPublishedEvent,
	PostViewedEvent,
	CourseEnrolledEvent,
	TagAddedEvent,
	TagRemovedEvent,
	TierChangedEvent,
	FormSubmittedEvent,
}

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// PlatformEvent is a platform occurrence delivered to the trigger matcher.
// SubjectID carries the kind-specific target: the tag for tag events, the
// post for post events, the course for enrollments, the form for submissions.
type PlatformEvent struct {
	BaseEvent

	PublicationID string         `json:"publication_id"`
	SubscriberID  string         `json:"subscriber_id"`
	SubjectID     string         `json:"subject_id,omitempty"`
	Payload       map[string]any `json:"payload,omitempty"`
}

func (e PlatformEvent) GetType() EventType {
	return e.Type
}

var (
	ErrEventIDRequired          = errors.New("event id is required")
	ErrEventPublicationRequired = errors.New("event publication id is required")
	ErrEventKindUnknown         = errors.New("event type has no trigger kind")
)

// Validate checks the fields every platform event must carry.
func (e PlatformEvent) Validate() error {
	if e.ID == "" {
		return ErrEventIDRequired
	}

	if e.PublicationID == "" {
		return ErrEventPublicationRequired
	}

	if _, ok := e.TriggerKind(); !ok {
		return ErrEventKindUnknown
	}

	return nil
}

// TriggerKind maps the event type to the workflow trigger kind it can start.
func (e PlatformEvent) TriggerKind() (models.TriggerKind, bool) {
	switch e.Type {
	case SubscriberSubscribedEvent:
		return models.TriggerSubscribe, true
	case SubscriberUnsubscribedEvent:
		return models.TriggerUnsubscribe, true
	case PostPublishedEvent:
		return models.TriggerPostPublished, true
	case PostViewedEvent:
		return models.TriggerPostViewed, true
	case CourseEnrolledEvent:
		return models.TriggerCourseEnrolled, true
	case TagAddedEvent:
		return models.TriggerTagAdded, true
	case TagRemovedEvent:
		return models.TriggerTagRemoved, true
	case TierChangedEvent:
		return models.TriggerTierChanged, true
	case FormSubmittedEvent:
		return models.TriggerFormSubmitted, true
	default:
		return "", false
	}
}

// RunStarted is published when the trigger matcher creates a run.
type RunStarted struct {
	BaseEvent

	RunID        string `json:"run_id"`
	WorkflowID   string `json:"workflow_id"`
	SubscriberID string `json:"subscriber_id"`
}

func (RunStarted) GetType() EventType {
	return RunStartedEvent
}

// RunCompleted is published when a run reaches a node with no outgoing edge.
type RunCompleted struct {
	BaseEvent

	RunID      string        `json:"run_id"`
	WorkflowID string        `json:"workflow_id"`
	Duration   time.Duration `json:"duration"`
}

func (RunCompleted) GetType() EventType {
	return RunCompletedEvent
}

// RunFailed is published when a run terminates on a fatal error or
// cancellation.
type RunFailed struct {
	BaseEvent

	RunID      string `json:"run_id"`
	WorkflowID string `json:"workflow_id"`
	Error      string `json:"error"`
}

func (RunFailed) GetType() EventType {
	return RunFailedEvent
}
