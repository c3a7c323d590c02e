// Package models defines the core domain models for the automation workflow engine.
package models

import (
	"errors"
	"fmt"
	"time"
)

// WorkflowStatus represents the lifecycle state of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusDraft    WorkflowStatus = "draft"    // Editable, never executed
	WorkflowStatusActive   WorkflowStatus = "active"   // Matching events, spawning runs
	WorkflowStatusPaused   WorkflowStatus = "paused"   // No new runs, in-flight runs parked
	WorkflowStatusArchived WorkflowStatus = "archived" // Terminal, in-flight runs cancelled
)

// IsValid reports whether the status is one of the known lifecycle states.
func (s WorkflowStatus) IsValid() bool {
	switch s {
	case WorkflowStatusDraft, WorkflowStatusActive, WorkflowStatusPaused, WorkflowStatusArchived:
		return true
	default:
		return false
	}
}

// TriggerKind identifies the platform event kind that starts a workflow.
type TriggerKind string

const (
	TriggerSubscribe      TriggerKind = "SUBSCRIBE"
	TriggerUnsubscribe    TriggerKind = "UNSUBSCRIBE"
	TriggerPostPublished  TriggerKind = "POST_PUBLISHED"
	TriggerCourseEnrolled TriggerKind = "COURSE_ENROLLED"
	TriggerTagAdded       TriggerKind = "TAG_ADDED"
	TriggerTagRemoved     TriggerKind = "TAG_REMOVED"
	TriggerTierChanged    TriggerKind = "TIER_CHANGED"
	TriggerCustomDate     TriggerKind = "CUSTOM_DATE"
	TriggerFormSubmitted  TriggerKind = "FORM_SUBMITTED"
	TriggerPostViewed     TriggerKind = "POST_VIEWED"
)

// TriggerKinds lists every supported trigger kind.
var TriggerKinds = []TriggerKind{
	TriggerSubscribe,
	TriggerUnsubscribe,
	TriggerPostPublished,
	TriggerCourseEnrolled,
	TriggerTagAdded,
	TriggerTagRemoved,
	TriggerTierChanged,
	TriggerCustomDate,
	TriggerFormSubmitted,
	TriggerPostViewed,
}

// IsValid reports whether the trigger kind is supported.
func (k TriggerKind) IsValid() bool {
	for _, known := range TriggerKinds {
		if k == known {
			return true
		}
	}

	return false
}

// TriggerConfig holds the kind-specific trigger target. Which fields are
// meaningful depends on the workflow's trigger kind; Validate enforces the
// required ones.
type TriggerConfig struct {
	// TargetID narrows POST_PUBLISHED / POST_VIEWED / COURSE_ENROLLED triggers
	// to one post or course. Empty matches any subject of that kind.
	TargetID string `json:"target_id,omitempty"`

	// TagID narrows TAG_ADDED / TAG_REMOVED triggers to one tag.
	// Empty matches any tag.
	TagID string `json:"tag_id,omitempty"`

	// Date is the fire time for CUSTOM_DATE triggers.
	Date *time.Time `json:"date,omitempty"`

	// FormID identifies the form for FORM_SUBMITTED triggers.
	FormID string `json:"form_id,omitempty"`
}

var (
	ErrTriggerDateRequired = errors.New("CUSTOM_DATE trigger requires a date")
	ErrTriggerFormRequired = errors.New("FORM_SUBMITTED trigger requires a form id")
)

// Validate checks the config against the requirements of the given kind.
func (c TriggerConfig) Validate(kind TriggerKind) error {
	if !kind.IsValid() {
		return fmt.Errorf("unknown trigger kind: %s", kind)
	}

	switch kind {
	case TriggerCustomDate:
		if c.Date == nil {
			return ErrTriggerDateRequired
		}
	case TriggerFormSubmitted:
		if c.FormID == "" {
			return ErrTriggerFormRequired
		}
	case TriggerSubscribe, TriggerUnsubscribe, TriggerPostPublished,
		TriggerCourseEnrolled, TriggerTagAdded, TriggerTagRemoved,
		TriggerTierChanged, TriggerPostViewed:
	}

	return nil
}

// Workflow is a publisher-defined automation: one trigger plus a graph of
// actions and conditions. The graph itself is stored normalized as nodes and
// edges and surfaced through Definition.
type Workflow struct {
	ID            string         `json:"id"`
	PublicationID string         `json:"publication_id" validate:"required"`
	Name          string         `json:"name"           validate:"required,min=3"`
	Description   string         `json:"description"`
	Trigger       TriggerKind    `json:"trigger"        validate:"required"`
	TriggerConfig TriggerConfig  `json:"trigger_config"`
	Status        WorkflowStatus `json:"status"`
	IsActive      bool           `json:"is_active"`
	Definition    *Definition    `json:"definition,omitempty"`

	// FiredAt records the single fire of a CUSTOM_DATE trigger sweep.
	FiredAt *time.Time `json:"fired_at,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// MatchesEvent reports whether this workflow's trigger kind and target match
// the given platform event. It does not check workflow status; callers filter
// to active workflows first.
func (w *Workflow) MatchesEvent(kind TriggerKind, subjectID string) bool {
	if w.Trigger != kind {
		return false
	}

	switch kind {
	case TriggerTagAdded, TriggerTagRemoved:
		return w.TriggerConfig.TagID == "" || w.TriggerConfig.TagID == subjectID
	case TriggerPostPublished, TriggerPostViewed, TriggerCourseEnrolled:
		return w.TriggerConfig.TargetID == "" || w.TriggerConfig.TargetID == subjectID
	case TriggerFormSubmitted:
		return w.TriggerConfig.FormID == "" || w.TriggerConfig.FormID == subjectID
	case TriggerSubscribe, TriggerUnsubscribe, TriggerTierChanged:
		return true
	case TriggerCustomDate:
		// Date triggers are fired by the scheduler sweep, never by events.
		return false
	}

	return false
}

// CustomDateDue reports whether a CUSTOM_DATE workflow should fire at now.
// Already-fired workflows never fire again.
func (w *Workflow) CustomDateDue(now time.Time) bool {
	if w.Trigger != TriggerCustomDate || w.FiredAt != nil {
		return false
	}

	return w.TriggerConfig.Date != nil && !w.TriggerConfig.Date.After(now)
}
