package workflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/letterflow/letterflow/pkg/adapters"
	"github.com/letterflow/letterflow/pkg/models"
)

func conditionSubscriber() adapters.SubscriberContext {
	return adapters.SubscriberContext{
		Name:   "Ada Lovelace",
		Email:  "ada@example.com",
		Tags:   []string{"tag-vip", "tag-beta"},
		TierID: "tier-premium",
		CustomFields: map[string]string{
			"city":        "London",
			"open_rate":   "42.5",
			"signup_year": "2023",
		},
	}
}

func TestEvaluateHasTag(t *testing.T) {
	sub := conditionSubscriber()

	tests := []struct {
		name    string
		config  *models.HasTagConfig
		outcome bool
	}{
		{"present tag, positive check", &models.HasTagConfig{TagID: "tag-vip", HasTag: true}, true},
		{"present tag, negative check", &models.HasTagConfig{TagID: "tag-vip", HasTag: false}, false},
		{"absent tag, positive check", &models.HasTagConfig{TagID: "tag-gone", HasTag: true}, false},
		{"absent tag, negative check", &models.HasTagConfig{TagID: "tag-gone", HasTag: false}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := &models.Node{ID: "check", Kind: models.NodeKindCondition, Type: models.NodeTypeHasTag, Config: tt.config}

			outcome, err := evaluateCondition(node, sub)

			require.NoError(t, err)
			assert.Equal(t, tt.outcome, outcome)
		})
	}
}

func TestEvaluateSubscriptionTier(t *testing.T) {
	sub := conditionSubscriber()

	node := &models.Node{
		ID:     "check",
		Kind:   models.NodeKindCondition,
		Type:   models.NodeTypeSubscriptionTier,
		Config: &models.SubscriptionTierConfig{TierID: "tier-premium"},
	}

	outcome, err := evaluateCondition(node, sub)
	require.NoError(t, err)
	assert.True(t, outcome)

	node.Config = &models.SubscriptionTierConfig{TierID: "tier-free"}

	outcome, err = evaluateCondition(node, sub)
	require.NoError(t, err)
	assert.False(t, outcome)
}

func TestEvaluateSubscriptionTierMissingTier(t *testing.T) {
	sub := conditionSubscriber()
	sub.TierID = ""

	node := &models.Node{
		ID:     "check",
		Kind:   models.NodeKindCondition,
		Type:   models.NodeTypeSubscriptionTier,
		Config: &models.SubscriptionTierConfig{TierID: "tier-premium"},
	}

	outcome, err := evaluateCondition(node, sub)

	assert.False(t, outcome)

	var evalErr *ConditionEvaluationError
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, "check", evalErr.NodeID)
}

func TestEvaluateCustomField(t *testing.T) {
	sub := conditionSubscriber()

	tests := []struct {
		name    string
		config  *models.CustomFieldConfig
		outcome bool
	}{
		{"equals match", &models.CustomFieldConfig{Field: "city", Operator: models.OperatorEquals, Value: "London"}, true},
		{"equals mismatch", &models.CustomFieldConfig{Field: "city", Operator: models.OperatorEquals, Value: "Paris"}, false},
		{"contains", &models.CustomFieldConfig{Field: "city", Operator: models.OperatorContains, Value: "ondo"}, true},
		{"greater than", &models.CustomFieldConfig{Field: "open_rate", Operator: models.OperatorGreaterThan, Value: "40"}, true},
		{"less than", &models.CustomFieldConfig{Field: "signup_year", Operator: models.OperatorLessThan, Value: "2020"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := &models.Node{ID: "check", Kind: models.NodeKindCondition, Type: models.NodeTypeCustomField, Config: tt.config}

			outcome, err := evaluateCondition(node, sub)

			require.NoError(t, err)
			assert.Equal(t, tt.outcome, outcome)
		})
	}
}

func TestEvaluateCustomFieldMissingField(t *testing.T) {
	node := &models.Node{
		ID:     "check",
		Kind:   models.NodeKindCondition,
		Type:   models.NodeTypeCustomField,
		Config: &models.CustomFieldConfig{Field: "favorite_color", Operator: models.OperatorEquals, Value: "blue"},
	}

	outcome, err := evaluateCondition(node, conditionSubscriber())

	assert.False(t, outcome)

	var evalErr *ConditionEvaluationError
	assert.ErrorAs(t, err, &evalErr)
}

func TestEvaluateCustomFieldNonNumericComparison(t *testing.T) {
	node := &models.Node{
		ID:     "check",
		Kind:   models.NodeKindCondition,
		Type:   models.NodeTypeCustomField,
		Config: &models.CustomFieldConfig{Field: "city", Operator: models.OperatorGreaterThan, Value: "10"},
	}

	outcome, err := evaluateCondition(node, conditionSubscriber())

	assert.False(t, outcome)

	var evalErr *ConditionEvaluationError
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, "check", evalErr.NodeID)
	assert.Error(t, errors.Unwrap(evalErr))
}

func TestEvaluateWrongConfigType(t *testing.T) {
	node := &models.Node{
		ID:     "check",
		Kind:   models.NodeKindCondition,
		Type:   models.NodeTypeHasTag,
		Config: &models.WaitConfig{Delay: 1, Unit: models.DelayUnitDays},
	}

	_, err := evaluateCondition(node, conditionSubscriber())

	var compilerErr *CompilerError
	require.ErrorAs(t, err, &compilerErr)
	assert.Equal(t, "check", compilerErr.NodeID)
}
