package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriggerConfigValidate(t *testing.T) {
	date := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("custom date requires a date", func(t *testing.T) {
		err := TriggerConfig{}.Validate(TriggerCustomDate)
		require.ErrorIs(t, err, ErrTriggerDateRequired)

		assert.NoError(t, TriggerConfig{Date: &date}.Validate(TriggerCustomDate))
	})

	t.Run("form submitted requires a form id", func(t *testing.T) {
		err := TriggerConfig{}.Validate(TriggerFormSubmitted)
		require.ErrorIs(t, err, ErrTriggerFormRequired)

		assert.NoError(t, TriggerConfig{FormID: "form-1"}.Validate(TriggerFormSubmitted))
	})

	t.Run("optional targets stay optional", func(t *testing.T) {
		assert.NoError(t, TriggerConfig{}.Validate(TriggerSubscribe))
		assert.NoError(t, TriggerConfig{}.Validate(TriggerPostPublished))
		assert.NoError(t, TriggerConfig{}.Validate(TriggerTagAdded))
	})

	t.Run("unknown kind rejected", func(t *testing.T) {
		assert.Error(t, TriggerConfig{}.Validate(TriggerKind("BOGUS")))
	})
}

func TestWorkflowMatchesEvent(t *testing.T) {
	t.Run("kind must match", func(t *testing.T) {
		wf := &Workflow{Trigger: TriggerSubscribe}

		assert.True(t, wf.MatchesEvent(TriggerSubscribe, ""))
		assert.False(t, wf.MatchesEvent(TriggerUnsubscribe, ""))
	})

	t.Run("tag triggers narrow by tag id", func(t *testing.T) {
		wf := &Workflow{Trigger: TriggerTagAdded, TriggerConfig: TriggerConfig{TagID: "vip"}}

		assert.True(t, wf.MatchesEvent(TriggerTagAdded, "vip"))
		assert.False(t, wf.MatchesEvent(TriggerTagAdded, "other"))
	})

	t.Run("empty tag id matches any tag", func(t *testing.T) {
		wf := &Workflow{Trigger: TriggerTagRemoved}

		assert.True(t, wf.MatchesEvent(TriggerTagRemoved, "anything"))
	})

	t.Run("post triggers narrow by target id", func(t *testing.T) {
		wf := &Workflow{Trigger: TriggerPostPublished, TriggerConfig: TriggerConfig{TargetID: "post-9"}}

		assert.True(t, wf.MatchesEvent(TriggerPostPublished, "post-9"))
		assert.False(t, wf.MatchesEvent(TriggerPostPublished, "post-10"))
	})

	t.Run("form triggers narrow by form id", func(t *testing.T) {
		wf := &Workflow{Trigger: TriggerFormSubmitted, TriggerConfig: TriggerConfig{FormID: "form-1"}}

		assert.True(t, wf.MatchesEvent(TriggerFormSubmitted, "form-1"))
		assert.False(t, wf.MatchesEvent(TriggerFormSubmitted, "form-2"))
	})

	t.Run("custom date never matches events", func(t *testing.T) {
		date := time.Now()
		wf := &Workflow{Trigger: TriggerCustomDate, TriggerConfig: TriggerConfig{Date: &date}}

		assert.False(t, wf.MatchesEvent(TriggerCustomDate, ""))
	})
}

func TestWorkflowCustomDateDue(t *testing.T) {
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	t.Run("due when the date has passed", func(t *testing.T) {
		wf := &Workflow{Trigger: TriggerCustomDate, TriggerConfig: TriggerConfig{Date: &past}}

		assert.True(t, wf.CustomDateDue(now))
	})

	t.Run("not due before the date", func(t *testing.T) {
		wf := &Workflow{Trigger: TriggerCustomDate, TriggerConfig: TriggerConfig{Date: &future}}

		assert.False(t, wf.CustomDateDue(now))
	})

	t.Run("never due twice", func(t *testing.T) {
		wf := &Workflow{
			Trigger:       TriggerCustomDate,
			TriggerConfig: TriggerConfig{Date: &past},
			FiredAt:       &past,
		}

		assert.False(t, wf.CustomDateDue(now))
	})

	t.Run("other kinds never date-fire", func(t *testing.T) {
		wf := &Workflow{Trigger: TriggerSubscribe, TriggerConfig: TriggerConfig{Date: &past}}

		assert.False(t, wf.CustomDateDue(now))
	})
}

func TestWaitConfigDuration(t *testing.T) {
	assert.Equal(t, 30*time.Minute, (&WaitConfig{Delay: 30, Unit: DelayUnitMinutes}).Duration())
	assert.Equal(t, 2*time.Hour, (&WaitConfig{Delay: 2, Unit: DelayUnitHours}).Duration())
	assert.Equal(t, 72*time.Hour, (&WaitConfig{Delay: 3, Unit: DelayUnitDays}).Duration())
}

func TestWaitConfigValidate(t *testing.T) {
	assert.Error(t, (&WaitConfig{Delay: 0, Unit: DelayUnitHours}).Validate())
	assert.Error(t, (&WaitConfig{Delay: -1, Unit: DelayUnitHours}).Validate())
	assert.Error(t, (&WaitConfig{Delay: 1, Unit: "weeks"}).Validate())
	assert.NoError(t, (&WaitConfig{Delay: 1, Unit: DelayUnitDays}).Validate())
}

func TestSendEmailConfigValidate(t *testing.T) {
	assert.Error(t, (&SendEmailConfig{}).Validate())
	assert.NoError(t, (&SendEmailConfig{TemplateID: "tpl-1"}).Validate())
	assert.NoError(t, (&SendEmailConfig{Subject: "Hi", Content: "<p>Hi</p>"}).Validate())
}
