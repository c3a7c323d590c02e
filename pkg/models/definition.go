package models

// Definition is the full node and edge set of one workflow graph. It is what
// the editor produces and consumes, and what the validator and compiler
// operate on.
type Definition struct {
	Nodes []*Node `json:"nodes"`
	Edges []*Edge `json:"edges"`
}

// NodeByID returns the node with the given id, or nil.
func (d *Definition) NodeByID(id string) *Node {
	for _, node := range d.Nodes {
		if node.ID == id {
			return node
		}
	}

	return nil
}

// TriggerNode returns the graph's trigger node, or nil if absent. Graphs
// with multiple trigger nodes are invalid; this returns the first.
func (d *Definition) TriggerNode() *Node {
	for _, node := range d.Nodes {
		if node.Kind == NodeKindTrigger {
			return node
		}
	}

	return nil
}

// OutgoingEdges returns all edges whose source is the given node id.
func (d *Definition) OutgoingEdges(nodeID string) []*Edge {
	var out []*Edge

	for _, edge := range d.Edges {
		if edge.Source == nodeID {
			out = append(out, edge)
		}
	}

	return out
}
