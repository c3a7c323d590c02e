package workflow

import (
	"fmt"
	"strings"

	"github.com/letterflow/letterflow/pkg/models"
)

// ValidationResult is the outcome of validating a workflow definition.
type ValidationResult struct {
	Violations []Violation `json:"violations"`
}

// Valid reports whether the definition passed with no violations.
func (r ValidationResult) Valid() bool {
	return len(r.Violations) == 0
}

// Err returns an InvalidDefinitionError carrying the violations, or nil.
func (r ValidationResult) Err() error {
	if r.Valid() {
		return nil
	}

	return &InvalidDefinitionError{Violations: r.Violations}
}

func (r *ValidationResult) add(code, nodeID, edgeID, message string) {
	r.Violations = append(r.Violations, Violation{
		Code:    code,
		NodeID:  nodeID,
		EdgeID:  edgeID,
		Message: message,
	})
}

// Validate checks a candidate definition against every structural invariant
// and collects all violations. A workflow may only transition to active when
// this returns a valid result.
func Validate(def *models.Definition) ValidationResult {
	var result ValidationResult

	if def == nil || len(def.Nodes) == 0 {
		result.add(ViolationMissingTrigger, "", "", "definition has no nodes")

		return result
	}

	nodes := make(map[string]*models.Node, len(def.Nodes))

	var triggers []*models.Node

	for _, node := range def.Nodes {
		if _, dup := nodes[node.ID]; dup {
			result.add(ViolationDuplicateNode, node.ID, "",
				fmt.Sprintf("node id %q appears more than once", node.ID))

			continue
		}

		nodes[node.ID] = node

		if node.Kind == models.NodeKindTrigger {
			triggers = append(triggers, node)
		}

		if node.Config != nil {
			if err := node.Config.Validate(); err != nil {
				result.add(ViolationInvalidConfig, node.ID, "", err.Error())
			}
		}
	}

	switch {
	case len(triggers) == 0:
		result.add(ViolationMissingTrigger, "", "", "graph has no trigger node")
	case len(triggers) > 1:
		ids := make([]string, len(triggers))
		for i, t := range triggers {
			ids[i] = t.ID
		}

		result.add(ViolationMultipleTriggers, "", "",
			"graph has more than one trigger node: "+strings.Join(ids, ", "))
	}

	outgoing := make(map[string][]*models.Edge)
	incoming := make(map[string]int)

	for _, edge := range def.Edges {
		dangling := false

		if _, ok := nodes[edge.Source]; !ok {
			result.add(ViolationDanglingEdge, "", edge.ID,
				fmt.Sprintf("edge %s references missing source node %q", edge.ID, edge.Source))

			dangling = true
		}

		if _, ok := nodes[edge.Target]; !ok {
			result.add(ViolationDanglingEdge, "", edge.ID,
				fmt.Sprintf("edge %s references missing target node %q", edge.ID, edge.Target))

			dangling = true
		}

		if dangling {
			continue
		}

		outgoing[edge.Source] = append(outgoing[edge.Source], edge)
		incoming[edge.Target]++
	}

	for _, node := range nodes {
		edges := outgoing[node.ID]

		switch node.Kind {
		case models.NodeKindCondition:
			validateConditionEdges(&result, node, edges)
		case models.NodeKindTrigger, models.NodeKindAction:
			if len(edges) > 1 {
				result.add(ViolationMultipleOutgoing, node.ID, "",
					fmt.Sprintf("%s node %s has %d outgoing edges, at most one allowed",
						node.Kind, node.ID, len(edges)))
			}
		}

		if node.Kind == models.NodeKindTrigger && incoming[node.ID] > 0 {
			result.add(ViolationTriggerHasIncoming, node.ID, "",
				fmt.Sprintf("trigger node %s has incoming edges", node.ID))
		}
	}

	if len(triggers) == 1 {
		checkReachability(&result, triggers[0].ID, nodes, outgoing)
	}

	checkCycles(&result, nodes, outgoing)

	return result
}

func validateConditionEdges(result *ValidationResult, node *models.Node, edges []*models.Edge) {
	if len(edges) > 2 {
		result.add(ViolationTooManyBranches, node.ID, "",
			fmt.Sprintf("condition node %s has %d outgoing edges, at most two allowed", node.ID, len(edges)))

		return
	}

	seen := make(map[models.BranchLabel]bool, 2)

	for _, edge := range edges {
		switch edge.Branch {
		case models.BranchTrue, models.BranchFalse:
			if seen[edge.Branch] {
				result.add(ViolationBranchConflict, node.ID, edge.ID,
					fmt.Sprintf("condition node %s has two %q branches", node.ID, edge.Branch))
			}

			seen[edge.Branch] = true
		case models.BranchNone:
			result.add(ViolationMissingBranch, node.ID, edge.ID,
				fmt.Sprintf("edge %s from condition node %s has no branch tag", edge.ID, node.ID))
		}
	}
}

// checkReachability flags nodes the trigger can never reach.
func checkReachability(result *ValidationResult, triggerID string, nodes map[string]*models.Node, outgoing map[string][]*models.Edge) {
	reached := make(map[string]bool, len(nodes))
	queue := []string{triggerID}
	reached[triggerID] = true

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, edge := range outgoing[current] {
			if !reached[edge.Target] {
				reached[edge.Target] = true
				queue = append(queue, edge.Target)
			}
		}
	}

	for id := range nodes {
		if !reached[id] {
			result.add(ViolationOrphanNode, id, "",
				fmt.Sprintf("node %s is unreachable from the trigger", id))
		}
	}
}

// checkCycles runs a depth-first search over every node and reports each
// back edge with the cycle path it closes.
func checkCycles(result *ValidationResult, nodes map[string]*models.Node, outgoing map[string][]*models.Edge) {
	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)

	state := make(map[string]int, len(nodes))

	var stack []string

	var visit func(id string)

	visit = func(id string) {
		state[id] = inStack
		stack = append(stack, id)

		for _, edge := range outgoing[id] {
			switch state[edge.Target] {
			case unvisited:
				visit(edge.Target)
			case inStack:
				result.add(ViolationCycle, edge.Target, edge.ID,
					"cycle detected: "+cyclePath(stack, edge.Target))
			}
		}

		stack = stack[:len(stack)-1]
		state[id] = done
	}

	for id := range nodes {
		if state[id] == unvisited {
			visit(id)
		}
	}
}

func cyclePath(stack []string, entry string) string {
	start := 0

	for i, id := range stack {
		if id == entry {
			start = i

			break
		}
	}

	return strings.Join(append(append([]string{}, stack[start:]...), entry), " -> ")
}
