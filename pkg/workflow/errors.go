// Package workflow contains the automation engine core: definition
// validation, graph compilation, trigger matching and run execution.
package workflow

import (
	"errors"
	"fmt"
	"strings"
)

// Violation codes reported by the definition validator.
const (
	ViolationMissingTrigger     = "missing_trigger"
	ViolationMultipleTriggers   = "multiple_triggers"
	ViolationTriggerHasIncoming = "trigger_has_incoming"
	ViolationDuplicateNode      = "duplicate_node"
	ViolationDanglingEdge       = "dangling_edge"
	ViolationTooManyBranches    = "too_many_branches"
	ViolationBranchConflict     = "branch_conflict"
	ViolationMissingBranch      = "missing_branch"
	ViolationMultipleOutgoing   = "multiple_outgoing"
	ViolationOrphanNode         = "orphan_node"
	ViolationCycle              = "cycle"
	ViolationInvalidConfig      = "invalid_config"
)

// Violation is one structural problem found in a workflow definition.
type Violation struct {
	Code    string `json:"code"`
	NodeID  string `json:"node_id,omitempty"`
	EdgeID  string `json:"edge_id,omitempty"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Code, v.Message)
}

// InvalidDefinitionError carries every violation found in a definition, not
// just the first. Activation surfaces the whole list to the editor.
type InvalidDefinitionError struct {
	Violations []Violation
}

func (e *InvalidDefinitionError) Error() string {
	if len(e.Violations) == 0 {
		return "invalid workflow definition"
	}

	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}

	return "invalid workflow definition: " + strings.Join(parts, "; ")
}

// IsInvalidDefinition reports whether err is an InvalidDefinitionError and
// returns it.
func IsInvalidDefinition(err error) (*InvalidDefinitionError, bool) {
	var invalid *InvalidDefinitionError
	if errors.As(err, &invalid) {
		return invalid, true
	}

	return nil, false
}

// CompilerError signals a programming invariant violation: execution reached
// a graph state that validation should have made impossible. The affected run
// is aborted rather than guessed around.
type CompilerError struct {
	NodeID  string
	Message string
}

func (e *CompilerError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("compiler invariant violated at node %s: %s", e.NodeID, e.Message)
	}

	return "compiler invariant violated: " + e.Message
}

// ConditionEvaluationError records a condition that could not be evaluated
// because referenced subscriber state was missing. The engine treats it as
// the condition evaluating false; the run continues.
type ConditionEvaluationError struct {
	NodeID string
	Cause  error
}

func (e *ConditionEvaluationError) Error() string {
	return fmt.Sprintf("condition %s could not be evaluated: %v", e.NodeID, e.Cause)
}

func (e *ConditionEvaluationError) Unwrap() error {
	return e.Cause
}

// Cancellation reasons recorded on runs terminated by lifecycle changes.
const (
	ReasonWorkflowArchived = "workflow archived"
	ReasonWorkflowDeleted  = "workflow deleted"
)
