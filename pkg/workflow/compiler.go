package workflow

import (
	"github.com/letterflow/letterflow/pkg/models"
)

// CompiledEdge is one outgoing hop in a compiled graph.
type CompiledEdge struct {
	Target string
	Branch models.BranchLabel
}

// Graph is the executable form of a workflow definition: an adjacency
// structure giving O(1) hops from any node. Compilation is pure and
// deterministic; a Graph is immutable and safe to share across concurrent
// run advancement.
type Graph struct {
	triggerID string
	nodes     map[string]*models.Node
	adjacency map[string][]CompiledEdge
}

// Compile validates the definition and builds its executable graph. Invalid
// definitions are rejected with the full violation list; compilation itself
// performs no I/O.
func Compile(def *models.Definition) (*Graph, error) {
	if err := Validate(def).Err(); err != nil {
		return nil, err
	}

	graph := &Graph{
		nodes:     make(map[string]*models.Node, len(def.Nodes)),
		adjacency: make(map[string][]CompiledEdge, len(def.Nodes)),
	}

	for _, node := range def.Nodes {
		graph.nodes[node.ID] = node

		if node.Kind == models.NodeKindTrigger {
			graph.triggerID = node.ID
		}
	}

	for _, edge := range def.Edges {
		graph.adjacency[edge.Source] = append(graph.adjacency[edge.Source], CompiledEdge{
			Target: edge.Target,
			Branch: edge.Branch,
		})
	}

	return graph, nil
}

// TriggerID returns the id of the graph's single trigger node.
func (g *Graph) TriggerID() string {
	return g.triggerID
}

// Node returns the node with the given id, or nil.
func (g *Graph) Node(id string) *models.Node {
	return g.nodes[id]
}

// Outgoing returns the compiled outgoing edges of a node.
func (g *Graph) Outgoing(nodeID string) []CompiledEdge {
	return g.adjacency[nodeID]
}

// Next returns the single successor of a trigger or action node. ok is false
// when the node has no outgoing edge, which completes the run.
func (g *Graph) Next(nodeID string) (string, bool) {
	edges := g.adjacency[nodeID]
	if len(edges) == 0 {
		return "", false
	}

	return edges[0].Target, true
}

// NextBranch returns the successor for a condition outcome. ok is false when
// the branch edge is not defined; the run then completes.
func (g *Graph) NextBranch(nodeID string, outcome bool) (string, bool) {
	want := models.BranchFalse
	if outcome {
		want = models.BranchTrue
	}

	for _, edge := range g.adjacency[nodeID] {
		if edge.Branch == want {
			return edge.Target, true
		}
	}

	return "", false
}
