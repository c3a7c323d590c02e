package models

// BranchLabel disambiguates the two outgoing edges of a condition node.
// Edges from trigger and action nodes carry no branch.
type BranchLabel string

const (
	BranchNone  BranchLabel = ""
	BranchTrue  BranchLabel = "true"
	BranchFalse BranchLabel = "false"
)

// Edge is a directed connection between two nodes of the same workflow graph.
// Label and Animated exist for the visual editor only.
type Edge struct {
	ID       string      `json:"id"`
	Source   string      `json:"source" validate:"required"`
	Target   string      `json:"target" validate:"required"`
	Branch   BranchLabel `json:"branch,omitempty"`
	Label    string      `json:"label,omitempty"`
	Animated bool        `json:"animated,omitempty"`
}
