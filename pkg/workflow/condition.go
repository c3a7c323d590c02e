package workflow

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/letterflow/letterflow/pkg/adapters"
	"github.com/letterflow/letterflow/pkg/models"
)

// evaluateCondition resolves a condition node's predicate against the
// subscriber's current state. A ConditionEvaluationError means the referenced
// state was missing; the caller treats the outcome as false and continues.
func evaluateCondition(node *models.Node, sub adapters.SubscriberContext) (bool, error) {
	switch config := node.Config.(type) {
	case *models.HasTagConfig:
		return sub.HasTag(config.TagID) == config.HasTag, nil

	case *models.SubscriptionTierConfig:
		if sub.TierID == "" {
			return false, &ConditionEvaluationError{
				NodeID: node.ID,
				Cause:  fmt.Errorf("subscriber has no tier"),
			}
		}

		return sub.TierID == config.TierID, nil

	case *models.CustomFieldConfig:
		value, exists := sub.CustomFields[config.Field]
		if !exists {
			return false, &ConditionEvaluationError{
				NodeID: node.ID,
				Cause:  fmt.Errorf("subscriber has no custom field %q", config.Field),
			}
		}

		return compareField(node.ID, value, config.Operator, config.Value)

	default:
		return false, &CompilerError{
			NodeID:  node.ID,
			Message: fmt.Sprintf("condition node carries %T config", node.Config),
		}
	}
}

func compareField(nodeID, value string, operator models.FieldOperator, expected string) (bool, error) {
	switch operator {
	case models.OperatorEquals:
		return value == expected, nil

	case models.OperatorContains:
		return strings.Contains(value, expected), nil

	case models.OperatorGreaterThan, models.OperatorLessThan:
		left, leftErr := strconv.ParseFloat(strings.TrimSpace(value), 64)
		right, rightErr := strconv.ParseFloat(strings.TrimSpace(expected), 64)

		if leftErr != nil || rightErr != nil {
			return false, &ConditionEvaluationError{
				NodeID: nodeID,
				Cause:  fmt.Errorf("cannot compare %q with %q numerically", value, expected),
			}
		}

		if operator == models.OperatorGreaterThan {
			return left > right, nil
		}

		return left < right, nil

	default:
		return false, &CompilerError{
			NodeID:  nodeID,
			Message: fmt.Sprintf("unsupported field operator %q", operator),
		}
	}
}
