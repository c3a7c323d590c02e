package models

import (
	"encoding/json"
	"fmt"
)

// NodeKind is the discriminant between trigger, action and condition nodes.
type NodeKind string

const (
	NodeKindTrigger   NodeKind = "trigger"
	NodeKindAction    NodeKind = "action"
	NodeKindCondition NodeKind = "condition"
)

// Node types. The type picks the concrete NodeConfig variant.
const (
	NodeTypeTrigger string = "TRIGGER"

	NodeTypeSendEmail string = "SEND_EMAIL"
	NodeTypeAddTag    string = "ADD_TAG"
	NodeTypeRemoveTag string = "REMOVE_TAG"
	NodeTypeWait      string = "WAIT"

	NodeTypeHasTag           string = "HAS_TAG"
	NodeTypeSubscriptionTier string = "SUBSCRIPTION_TIER"
	NodeTypeCustomField      string = "CUSTOM_FIELD"
)

// Position is the node's layout coordinate in the visual editor.
// Presentation only, never semantically load-bearing.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is a single step in a workflow graph. Config is a tagged variant
// selected by Type, so adding a node type without updating every consumer
// fails to compile rather than failing at runtime.
type Node struct {
	ID       string     `json:"id"       validate:"required"`
	Kind     NodeKind   `json:"kind"     validate:"required"`
	Type     string     `json:"type"     validate:"required"`
	Position Position   `json:"position"`
	Config   NodeConfig `json:"config"`
}

// KindForType returns the node kind implied by a node type.
func KindForType(nodeType string) (NodeKind, bool) {
	switch nodeType {
	case NodeTypeTrigger:
		return NodeKindTrigger, true
	case NodeTypeSendEmail, NodeTypeAddTag, NodeTypeRemoveTag, NodeTypeWait:
		return NodeKindAction, true
	case NodeTypeHasTag, NodeTypeSubscriptionTier, NodeTypeCustomField:
		return NodeKindCondition, true
	default:
		return "", false
	}
}

type nodeAlias struct {
	ID       string          `json:"id"`
	Kind     NodeKind        `json:"kind"`
	Type     string          `json:"type"`
	Position Position        `json:"position"`
	Config   json.RawMessage `json:"config"`
}

// UnmarshalJSON decodes the config into the concrete variant for the node type.
func (n *Node) UnmarshalJSON(data []byte) error {
	var alias nodeAlias

	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}

	n.ID = alias.ID
	n.Kind = alias.Kind
	n.Type = alias.Type
	n.Position = alias.Position

	if alias.Kind == "" {
		if kind, ok := KindForType(alias.Type); ok {
			n.Kind = kind
		}
	}

	config, err := DecodeNodeConfig(alias.Type, alias.Config)
	if err != nil {
		return fmt.Errorf("node %s: %w", alias.ID, err)
	}

	n.Config = config

	return nil
}

// DecodeNodeConfig decodes raw config JSON into the concrete variant for the
// node type. Unknown types are rejected rather than carried as blobs.
func DecodeNodeConfig(nodeType string, raw json.RawMessage) (NodeConfig, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}

	var config NodeConfig

	switch nodeType {
	case NodeTypeTrigger:
		config = &TriggerNodeConfig{}
	case NodeTypeSendEmail:
		config = &SendEmailConfig{}
	case NodeTypeAddTag:
		config = &AddTagConfig{}
	case NodeTypeRemoveTag:
		config = &RemoveTagConfig{}
	case NodeTypeWait:
		config = &WaitConfig{}
	case NodeTypeHasTag:
		config = &HasTagConfig{}
	case NodeTypeSubscriptionTier:
		config = &SubscriptionTierConfig{}
	case NodeTypeCustomField:
		config = &CustomFieldConfig{}
	default:
		return nil, fmt.Errorf("unknown node type: %q", nodeType)
	}

	if err := json.Unmarshal(raw, config); err != nil {
		return nil, fmt.Errorf("invalid %s config: %w", nodeType, err)
	}

	return config, nil
}
