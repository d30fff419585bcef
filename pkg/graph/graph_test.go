package graph_test

import (
	"testing"

	"github.com/alhafibarefoot/HelpDesk-sub001/pkg/graph"
	"github.com/alhafibarefoot/HelpDesk-sub001/pkg/models"
	"github.com/stretchr/testify/assert"
)

func linearDefinition() models.WorkflowDefinition {
	return models.WorkflowDefinition{
		ID:      1,
		Name:    "it-access",
		Version: 1,
		Nodes: []models.Node{
			{ID: "start", Kind: models.StartNode},
			{ID: "manager", Kind: models.ApprovalNode, Approval: &models.ApprovalConfig{AssigneeRule: "DIRECT_MANAGER", SLAHours: 24}},
			{ID: "done", Kind: models.EndNode, End: &models.EndConfig{Outcome: models.CompletedRequestStatus}},
		},
		Edges: []models.Edge{
			{Source: "start", Target: "manager"},
			{Source: "manager", Target: "done"},
		},
	}
}

func TestValidate_ValidDefinition(t *testing.T) {
	g := graph.New(linearDefinition())
	assert.Empty(t, g.Validate())
	assert.Equal(t, "start", g.StartNode())
}

func TestValidate_MissingStartAndEnd(t *testing.T) {
	def := models.WorkflowDefinition{
		Nodes: []models.Node{
			{ID: "manager", Kind: models.ApprovalNode, Approval: &models.ApprovalConfig{AssigneeRule: "it_admin"}},
		},
		Edges: []models.Edge{{Source: "manager", Target: "manager"}},
	}
	errs := graph.New(def).Validate()
	assert.NotEmpty(t, errs)

	var messages []string
	for _, e := range errs {
		messages = append(messages, e.Error())
	}
	assert.Contains(t, messages, "definition must have exactly one start node, found 0")
	assert.Contains(t, messages, "definition must have at least one end node")
}

func TestValidate_DanglingEdge(t *testing.T) {
	def := linearDefinition()
	def.Edges = append(def.Edges, models.Edge{Source: "manager", Target: "ghost"})
	errs := graph.New(def).Validate()
	assert.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), `unknown target node "ghost"`)
}

func TestValidate_DeadEndNode(t *testing.T) {
	def := linearDefinition()
	def.Nodes = append(def.Nodes, models.Node{
		ID: "orphan", Kind: models.ApprovalNode,
		Approval: &models.ApprovalConfig{AssigneeRule: "it_admin"},
	})
	errs := graph.New(def).Validate()
	assert.Len(t, errs, 1)
	assert.Equal(t, "orphan", errs[0].NodeID)
	assert.Contains(t, errs[0].Error(), "must have at least one outgoing edge")
}

func TestValidate_GatewayArity(t *testing.T) {
	def := models.WorkflowDefinition{
		Nodes: []models.Node{
			{ID: "start", Kind: models.StartNode},
			{ID: "fork", Kind: models.GatewayForkNode},
			{ID: "join", Kind: models.GatewayJoinNode, Join: &models.JoinConfig{Policy: models.JoinAll}},
			{ID: "done", Kind: models.EndNode, End: &models.EndConfig{Outcome: models.CompletedRequestStatus}},
		},
		Edges: []models.Edge{
			{Source: "start", Target: "fork"},
			{Source: "fork", Target: "join"},
			{Source: "join", Target: "done"},
		},
	}
	errs := graph.New(def).Validate()
	var messages []string
	for _, e := range errs {
		messages = append(messages, e.Error())
	}
	assert.Contains(t, messages, `node "fork": gateway fork must have at least two outgoing edges`)
	assert.Contains(t, messages, `node "join": gateway join must have at least two incoming edges`)
}

func TestValidate_ConfigCoherence(t *testing.T) {
	def := linearDefinition()
	def.Nodes[1].Approval = nil
	def.Nodes[2].End = nil
	errs := graph.New(def).Validate()
	var messages []string
	for _, e := range errs {
		messages = append(messages, e.Error())
	}
	assert.Contains(t, messages, `node "manager": approval node requires an assignee rule`)
	assert.Contains(t, messages, `node "done": end node requires an end config with an outcome`)
}

func TestAccessors(t *testing.T) {
	g := graph.New(linearDefinition())

	n, ok := g.Node("manager")
	assert.True(t, ok)
	assert.Equal(t, models.ApprovalNode, n.Kind)

	_, ok = g.Node("ghost")
	assert.False(t, ok)

	out := g.OutgoingEdges("start")
	assert.Len(t, out, 1)
	assert.Equal(t, "manager", out[0].Target)

	in := g.IncomingEdges("done")
	assert.Len(t, in, 1)
	assert.Equal(t, "manager", in[0].Source)
}
