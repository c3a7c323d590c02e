package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/letterflow/letterflow/pkg/models"
)

func TestPlatformEventValidate(t *testing.T) {
	valid := PlatformEvent{
		BaseEvent:     BaseEvent{ID: "evt-1", Type: TagAddedEvent},
		PublicationID: "pub-1",
		SubscriberID:  "sub-1",
		SubjectID:     "tag-1",
	}
	require.NoError(t, valid.Validate())

	noID := valid
	noID.ID = ""
	assert.ErrorIs(t, noID.Validate(), ErrEventIDRequired)

	noPublication := valid
	noPublication.PublicationID = ""
	assert.ErrorIs(t, noPublication.Validate(), ErrEventPublicationRequired)

	unknownType := valid
	unknownType.Type = "something.else"
	assert.ErrorIs(t, unknownType.Validate(), ErrEventKindUnknown)
}

func TestPlatformEventTriggerKind(t *testing.T) {
	mapping := map[EventType]models.TriggerKind{
		SubscriberSubscribedEvent:   models.TriggerSubscribe,
		SubscriberUnsubscribedEvent: models.TriggerUnsubscribe,
		PostPublishedEvent:          models.TriggerPostPublished,
		PostViewedEvent:             models.TriggerPostViewed,
		CourseEnrolledEvent:         models.TriggerCourseEnrolled,
		TagAddedEvent:               models.TriggerTagAdded,
		TagRemovedEvent:             models.TriggerTagRemoved,
		TierChangedEvent:            models.TriggerTierChanged,
		FormSubmittedEvent:          models.TriggerFormSubmitted,
	}

	for eventType, want := range mapping {
		event := PlatformEvent{BaseEvent: BaseEvent{Type: eventType}}

		kind, ok := event.TriggerKind()
		require.True(t, ok, "%s should map to a trigger kind", eventType)
		assert.Equal(t, want, kind)
	}

	_, ok := PlatformEvent{BaseEvent: BaseEvent{Type: RunStartedEvent}}.TriggerKind()
	assert.False(t, ok, "run lifecycle events never start workflows")
}

func TestPlatformEventTypesCoverEveryTriggerMapping(t *testing.T) {
	for _, eventType := range PlatformEventTypes {
		event := PlatformEvent{BaseEvent: BaseEvent{Type: eventType}}

		_, ok := event.TriggerKind()
		assert.True(t, ok, "%s is subscribed but maps to no trigger", eventType)
	}
}

func TestRunEventTypes(t *testing.T) {
	assert.Equal(t, RunStartedEvent, RunStarted{}.GetType())
	assert.Equal(t, RunCompletedEvent, RunCompleted{}.GetType())
	assert.Equal(t, RunFailedEvent, RunFailed{}.GetType())
	assert.Equal(t, TagAddedEvent, PlatformEvent{BaseEvent: BaseEvent{Type: TagAddedEvent}}.GetType())
}
