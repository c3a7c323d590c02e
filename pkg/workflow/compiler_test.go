package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/letterflow/letterflow/pkg/models"
)

func TestCompileRejectsInvalidDefinition(t *testing.T) {
	def := &models.Definition{
		Nodes: []*models.Node{emailNode("email")},
	}

	graph, err := Compile(def)

	require.Error(t, err)
	assert.Nil(t, graph)

	invalid, ok := IsInvalidDefinition(err)
	require.True(t, ok)
	assert.NotEmpty(t, invalid.Violations)
}

func TestCompileLinearGraph(t *testing.T) {
	def := &models.Definition{
		Nodes: []*models.Node{
			triggerNode("trigger"),
			emailNode("email"),
			waitNode("wait", 1, models.DelayUnitHours),
		},
		Edges: []*models.Edge{
			edge("e1", "trigger", "email"),
			edge("e2", "email", "wait"),
		},
	}

	graph, err := Compile(def)
	require.NoError(t, err)

	assert.Equal(t, "trigger", graph.TriggerID())

	require.NotNil(t, graph.Node("email"))
	assert.Equal(t, models.NodeTypeSendEmail, graph.Node("email").Type)
	assert.Nil(t, graph.Node("missing"))

	next, ok := graph.Next("trigger")
	require.True(t, ok)
	assert.Equal(t, "email", next)

	next, ok = graph.Next("email")
	require.True(t, ok)
	assert.Equal(t, "wait", next)

	_, ok = graph.Next("wait")
	assert.False(t, ok, "terminal node has no successor")
}

func TestCompileBranchLookup(t *testing.T) {
	def := &models.Definition{
		Nodes: []*models.Node{
			triggerNode("trigger"),
			hasTagNode("check", "tag-1"),
			emailNode("yes"),
			emailNode("no"),
		},
		Edges: []*models.Edge{
			edge("e1", "trigger", "check"),
			branchEdge("e2", "check", "yes", models.BranchTrue),
			branchEdge("e3", "check", "no", models.BranchFalse),
		},
	}

	graph, err := Compile(def)
	require.NoError(t, err)

	target, ok := graph.NextBranch("check", true)
	require.True(t, ok)
	assert.Equal(t, "yes", target)

	target, ok = graph.NextBranch("check", false)
	require.True(t, ok)
	assert.Equal(t, "no", target)

	assert.Len(t, graph.Outgoing("check"), 2)
}

func TestCompileMissingBranchCompletesLookup(t *testing.T) {
	def := &models.Definition{
		Nodes: []*models.Node{
			triggerNode("trigger"),
			hasTagNode("check", "tag-1"),
			emailNode("yes"),
		},
		Edges: []*models.Edge{
			edge("e1", "trigger", "check"),
			branchEdge("e2", "check", "yes", models.BranchTrue),
		},
	}

	graph, err := Compile(def)
	require.NoError(t, err)

	_, ok := graph.NextBranch("check", false)
	assert.False(t, ok)
}
