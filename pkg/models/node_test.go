package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeUnmarshalJSON_DecodesConcreteConfig(t *testing.T) {
	data := []byte(`{
		"id": "wait-1",
		"type": "WAIT",
		"position": {"x": 100, "y": 200},
		"config": {"delay": 3, "unit": "days"}
	}`)

	var node Node

	require.NoError(t, json.Unmarshal(data, &node))

	assert.Equal(t, "wait-1", node.ID)
	assert.Equal(t, NodeKindAction, node.Kind)
	assert.Equal(t, NodeTypeWait, node.Type)
	assert.InDelta(t, 100.0, node.Position.X, 0.001)

	config, ok := node.Config.(*WaitConfig)
	require.True(t, ok)
	assert.Equal(t, 3, config.Delay)
	assert.Equal(t, DelayUnitDays, config.Unit)
}

func TestNodeUnmarshalJSON_InfersKindFromType(t *testing.T) {
	cases := []struct {
		nodeType string
		kind     NodeKind
	}{
		{NodeTypeTrigger, NodeKindTrigger},
		{NodeTypeSendEmail, NodeKindAction},
		{NodeTypeAddTag, NodeKindAction},
		{NodeTypeRemoveTag, NodeKindAction},
		{NodeTypeWait, NodeKindAction},
		{NodeTypeHasTag, NodeKindCondition},
		{NodeTypeSubscriptionTier, NodeKindCondition},
		{NodeTypeCustomField, NodeKindCondition},
	}

	for _, tc := range cases {
		t.Run(tc.nodeType, func(t *testing.T) {
			var node Node

			data := []byte(`{"id": "n1", "type": "` + tc.nodeType + `", "config": {}}`)
			require.NoError(t, json.Unmarshal(data, &node))

			assert.Equal(t, tc.kind, node.Kind)
		})
	}
}

func TestNodeUnmarshalJSON_RejectsUnknownType(t *testing.T) {
	data := []byte(`{"id": "n1", "type": "LAUNCH_ROCKET", "config": {}}`)

	var node Node

	err := json.Unmarshal(data, &node)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown node type")
}

func TestNodeUnmarshalJSON_RejectsConfigOfWrongShape(t *testing.T) {
	data := []byte(`{"id": "n1", "type": "WAIT", "config": {"delay": "three"}}`)

	var node Node

	assert.Error(t, json.Unmarshal(data, &node))
}

func TestNodeMarshalRoundTrip(t *testing.T) {
	node := Node{
		ID:   "email-1",
		Kind: NodeKindAction,
		Type: NodeTypeSendEmail,
		Config: &SendEmailConfig{
			Subject: "Welcome",
			Content: "<p>Hi {{subscriber.name}}</p>",
		},
	}

	data, err := json.Marshal(&node)
	require.NoError(t, err)

	var decoded Node

	require.NoError(t, json.Unmarshal(data, &decoded))

	config, ok := decoded.Config.(*SendEmailConfig)
	require.True(t, ok)
	assert.Equal(t, "Welcome", config.Subject)
}

func TestDecodeNodeConfig_EmptyConfigDefaults(t *testing.T) {
	config, err := DecodeNodeConfig(NodeTypeAddTag, nil)
	require.NoError(t, err)

	addTag, ok := config.(*AddTagConfig)
	require.True(t, ok)
	assert.Empty(t, addTag.TagIDs)
	assert.Error(t, addTag.Validate())
}
