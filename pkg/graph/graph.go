// Package graph provides an immutable, validated view over a workflow
// definition. The execution engine builds one Graph per request and only ever
// reads from it.
package graph

import (
	"fmt"

	"github.com/alhafibarefoot/HelpDesk-sub001/pkg/models"
)

// ValidationError describes one problem found in a definition. Validation
// collects every error instead of stopping at the first so an administrator
// can fix the whole definition in one round.
type ValidationError struct {
	NodeID  string
	Message string
}

func (e ValidationError) Error() string {
	if e.NodeID == "" {
		return e.Message
	}
	return fmt.Sprintf("node %q: %s", e.NodeID, e.Message)
}

// Graph is a read-only adjacency view of a workflow definition.
type Graph struct {
	def      models.WorkflowDefinition
	nodes    map[string]models.Node
	outgoing map[string][]models.Edge
	incoming map[string][]models.Edge
	start    string
}

// New builds the adjacency maps for a definition. It does not validate;
// call Validate before executing against the graph.
func New(def models.WorkflowDefinition) *Graph {
	g := &Graph{
		def:      def,
		nodes:    make(map[string]models.Node, len(def.Nodes)),
		outgoing: make(map[string][]models.Edge),
		incoming: make(map[string][]models.Edge),
	}
	for _, n := range def.Nodes {
		g.nodes[n.ID] = n
		if n.Kind == models.StartNode {
			g.start = n.ID
		}
	}
	for _, e := range def.Edges {
		g.outgoing[e.Source] = append(g.outgoing[e.Source], e)
		g.incoming[e.Target] = append(g.incoming[e.Target], e)
	}
	return g
}

// Definition returns the definition this graph was built from.
func (g *Graph) Definition() models.WorkflowDefinition {
	return g.def
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (models.Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// StartNode returns the definition's single start node id.
func (g *Graph) StartNode() string {
	return g.start
}

// OutgoingEdges returns the edges leaving a node, in declaration order.
func (g *Graph) OutgoingEdges(nodeID string) []models.Edge {
	return g.outgoing[nodeID]
}

// IncomingEdges returns the edges entering a node, in declaration order.
func (g *Graph) IncomingEdges(nodeID string) []models.Edge {
	return g.incoming[nodeID]
}

// Validate checks the structural invariants of the definition and the
// kind/config coherence of every node. All problems are returned together.
func (g *Graph) Validate() []ValidationError {
	var errs []ValidationError

	starts, ends := 0, 0
	for _, n := range g.def.Nodes {
		switch n.Kind {
		case models.StartNode:
			starts++
		case models.EndNode:
			ends++
		}
		errs = append(errs, validateNodeConfig(n)...)
	}
	if starts != 1 {
		errs = append(errs, ValidationError{Message: fmt.Sprintf("definition must have exactly one start node, found %d", starts)})
	}
	if ends == 0 {
		errs = append(errs, ValidationError{Message: "definition must have at least one end node"})
	}

	for _, e := range g.def.Edges {
		if _, ok := g.nodes[e.Source]; !ok {
			errs = append(errs, ValidationError{Message: fmt.Sprintf("edge references unknown source node %q", e.Source)})
		}
		if _, ok := g.nodes[e.Target]; !ok {
			errs = append(errs, ValidationError{Message: fmt.Sprintf("edge references unknown target node %q", e.Target)})
		}
	}

	for _, n := range g.def.Nodes {
		out := len(g.outgoing[n.ID])
		in := len(g.incoming[n.ID])
		switch n.Kind {
		case models.EndNode:
			if out > 0 {
				errs = append(errs, ValidationError{NodeID: n.ID, Message: "end node must not have outgoing edges"})
			}
		case models.GatewayForkNode:
			if out < 2 {
				errs = append(errs, ValidationError{NodeID: n.ID, Message: "gateway fork must have at least two outgoing edges"})
			}
		case models.GatewayJoinNode:
			if in < 2 {
				errs = append(errs, ValidationError{NodeID: n.ID, Message: "gateway join must have at least two incoming edges"})
			}
			if out == 0 {
				errs = append(errs, ValidationError{NodeID: n.ID, Message: "node must have at least one outgoing edge"})
			}
		default:
			if out == 0 {
				errs = append(errs, ValidationError{NodeID: n.ID, Message: "node must have at least one outgoing edge"})
			}
		}
	}

	return errs
}

func validateNodeConfig(n models.Node) []ValidationError {
	var errs []ValidationError
	switch n.Kind {
	case models.StartNode:
	case models.EndNode:
		if n.End == nil {
			errs = append(errs, ValidationError{NodeID: n.ID, Message: "end node requires an end config with an outcome"})
		} else {
			switch n.End.Outcome {
			case models.CompletedRequestStatus, models.RejectedRequestStatus, models.CancelledRequestStatus:
			default:
				errs = append(errs, ValidationError{NodeID: n.ID, Message: fmt.Sprintf("invalid end outcome %q", n.End.Outcome)})
			}
		}
	case models.ApprovalNode:
		if n.Approval == nil || n.Approval.AssigneeRule == "" {
			errs = append(errs, ValidationError{NodeID: n.ID, Message: "approval node requires an assignee rule"})
		}
	case models.ActionNode:
		if n.Action == nil || n.Action.ActionType == "" {
			errs = append(errs, ValidationError{NodeID: n.ID, Message: "action node requires an action type"})
		}
	case models.GatewayForkNode:
	case models.GatewayJoinNode:
		if n.Join == nil {
			errs = append(errs, ValidationError{NodeID: n.ID, Message: "gateway join requires a join policy"})
		} else if n.Join.Policy != models.JoinAll && n.Join.Policy != models.JoinAny {
			errs = append(errs, ValidationError{NodeID: n.ID, Message: fmt.Sprintf("invalid join policy %q", n.Join.Policy)})
		}
	case models.SubworkflowNode:
		if n.Sub == nil || n.Sub.DefinitionID == 0 {
			errs = append(errs, ValidationError{NodeID: n.ID, Message: "subworkflow node requires a target definition"})
		}
	default:
		errs = append(errs, ValidationError{NodeID: n.ID, Message: fmt.Sprintf("unknown node kind %q", n.Kind)})
	}
	return errs
}
