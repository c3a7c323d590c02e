package models

import (
	"errors"
	"fmt"
	"time"
)

// NodeConfig is the tagged variant behind Node.Config. Exactly one concrete
// type exists per node type; the marker method keeps the set closed.
type NodeConfig interface {
	nodeConfig()
	Validate() error
}

// TriggerNodeConfig mirrors the workflow-level trigger on the graph's entry
// node. The editor renders it; execution reads the workflow's own trigger.
type TriggerNodeConfig struct {
	Kind          TriggerKind   `json:"kind"`
	TriggerConfig TriggerConfig `json:"trigger_config"`
}

func (*TriggerNodeConfig) nodeConfig() {}

func (c *TriggerNodeConfig) Validate() error {
	if c.Kind == "" {
		return nil // kind is carried by the workflow, optional on the node
	}

	return c.TriggerConfig.Validate(c.Kind)
}

// SendEmailConfig configures a SEND_EMAIL action: either a template reference
// or inline subject/content, plus an optional per-workflow personalization map
// merged over the live context at render time.
type SendEmailConfig struct {
	TemplateID      string            `json:"template_id,omitempty"`
	Subject         string            `json:"subject,omitempty"`
	Content         string            `json:"content,omitempty"`
	Personalization map[string]string `json:"personalization,omitempty"`
}

func (*SendEmailConfig) nodeConfig() {}

func (c *SendEmailConfig) Validate() error {
	if c.TemplateID == "" && c.Subject == "" && c.Content == "" {
		return errors.New("send email node requires a template reference or inline subject/content")
	}

	return nil
}

// AddTagConfig configures an ADD_TAG action.
type AddTagConfig struct {
	TagIDs []string `json:"tag_ids"`
}

func (*AddTagConfig) nodeConfig() {}

func (c *AddTagConfig) Validate() error {
	if len(c.TagIDs) == 0 {
		return errors.New("add tag node requires at least one tag id")
	}

	return nil
}

// RemoveTagConfig configures a REMOVE_TAG action.
type RemoveTagConfig struct {
	TagIDs []string `json:"tag_ids"`
}

func (*RemoveTagConfig) nodeConfig() {}

func (c *RemoveTagConfig) Validate() error {
	if len(c.TagIDs) == 0 {
		return errors.New("remove tag node requires at least one tag id")
	}

	return nil
}

// DelayUnit is the unit of a WAIT node's delay.
type DelayUnit string

const (
	DelayUnitMinutes DelayUnit = "minutes"
	DelayUnitHours   DelayUnit = "hours"
	DelayUnitDays    DelayUnit = "days"
)

// WaitConfig configures a WAIT action.
type WaitConfig struct {
	Delay int       `json:"delay"`
	Unit  DelayUnit `json:"unit"`
}

func (*WaitConfig) nodeConfig() {}

func (c *WaitConfig) Validate() error {
	if c.Delay <= 0 {
		return errors.New("wait node delay must be positive")
	}

	switch c.Unit {
	case DelayUnitMinutes, DelayUnitHours, DelayUnitDays:
		return nil
	default:
		return fmt.Errorf("invalid wait unit: %q (must be minutes, hours or days)", c.Unit)
	}
}

// Duration returns the delay normalized to a time.Duration.
func (c *WaitConfig) Duration() time.Duration {
	switch c.Unit {
	case DelayUnitHours:
		return time.Duration(c.Delay) * time.Hour
	case DelayUnitDays:
		return time.Duration(c.Delay) * 24 * time.Hour
	default:
		return time.Duration(c.Delay) * time.Minute
	}
}

// HasTagConfig configures a HAS_TAG condition.
type HasTagConfig struct {
	TagID  string `json:"tag_id"`
	HasTag bool   `json:"has_tag"`
}

func (*HasTagConfig) nodeConfig() {}

func (c *HasTagConfig) Validate() error {
	if c.TagID == "" {
		return errors.New("has tag node requires a tag id")
	}

	return nil
}

// SubscriptionTierConfig configures a SUBSCRIPTION_TIER condition.
type SubscriptionTierConfig struct {
	TierID string `json:"tier_id"`
}

func (*SubscriptionTierConfig) nodeConfig() {}

func (c *SubscriptionTierConfig) Validate() error {
	if c.TierID == "" {
		return errors.New("subscription tier node requires a tier id")
	}

	return nil
}

// FieldOperator compares a subscriber custom field to a configured value.
type FieldOperator string

const (
	OperatorEquals      FieldOperator = "equals"
	OperatorContains    FieldOperator = "contains"
	OperatorGreaterThan FieldOperator = "greater_than"
	OperatorLessThan    FieldOperator = "less_than"
)

// IsValid reports whether the operator is supported.
func (o FieldOperator) IsValid() bool {
	switch o {
	case OperatorEquals, OperatorContains, OperatorGreaterThan, OperatorLessThan:
		return true
	default:
		return false
	}
}

// CustomFieldConfig configures a CUSTOM_FIELD condition.
type CustomFieldConfig struct {
	Field    string        `json:"field"`
	Operator FieldOperator `json:"operator"`
	Value    string        `json:"value"`
}

func (*CustomFieldConfig) nodeConfig() {}

func (c *CustomFieldConfig) Validate() error {
	if c.Field == "" {
		return errors.New("custom field node requires a field name")
	}

	if !c.Operator.IsValid() {
		return fmt.Errorf("invalid custom field operator: %q", c.Operator)
	}

	return nil
}
