// ABOUTME: Explicit conversation state graph with (state, trigger) -> state edges
// ABOUTME: Graphs are built in code or loaded from declarative TOML flow files

package conversation

import (
	"fmt"
	"regexp"

	"github.com/BurntSushi/toml"
)

// Edge is one transition in the graph: an event whose text matches Trigger
// while the key is in From moves the key to To.
type Edge struct {
	From    State
	Trigger *regexp.Regexp
	To      State
}

// Graph is a directed conversation state machine. Edges are evaluated in
// declaration order; the first edge whose From matches the current state and
// whose Trigger matches the event text wins. Unmatched (state, text) pairs
// fall through to the caller's unhandled path rather than erroring.
type Graph struct {
	edges []Edge
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{}
}

// AddEdge appends an edge. The trigger is a regular expression matched
// against the event text.
func (g *Graph) AddEdge(from State, trigger string, to State) error {
	re, err := regexp.Compile(trigger)
	if err != nil {
		return fmt.Errorf("compiling trigger %q: %w", trigger, err)
	}
	g.edges = append(g.edges, Edge{From: from, Trigger: re, To: to})
	return nil
}

// Next returns the state an event with the given text moves the key to from
// state s. Returns (Initial, false) when no edge matches.
func (g *Graph) Next(s State, text string) (State, bool) {
	for _, e := range g.edges {
		if e.From == s && e.Trigger.MatchString(text) {
			return e.To, true
		}
	}
	return Initial, false
}

// Matches reports whether any edge leaves state s for the given text.
func (g *Graph) Matches(s State, text string) bool {
	_, ok := g.Next(s, text)
	return ok
}

// Len returns the number of edges.
func (g *Graph) Len() int {
	return len(g.edges)
}

// flowFile is the TOML shape of a declarative flow definition.
type flowFile struct {
	Edges []flowEdge `toml:"edge"`
}

type flowEdge struct {
	From    string `toml:"from"`
	Trigger string `toml:"trigger"`
	To      string `toml:"to"`
}

// LoadGraph reads a flow definition from a TOML file:
//
//	[[edge]]
//	from = ""
//	trigger = "^/start"
//	to = "awaiting_name"
//
// An empty "from" is the initial state. Triggers are regular expressions.
func LoadGraph(path string) (*Graph, error) {
	var ff flowFile
	if _, err := toml.DecodeFile(path, &ff); err != nil {
		return nil, fmt.Errorf("parsing flow file: %w", err)
	}
	if len(ff.Edges) == 0 {
		return nil, fmt.Errorf("flow file %s defines no edges", path)
	}

	g := NewGraph()
	for i, fe := range ff.Edges {
		if fe.Trigger == "" {
			return nil, fmt.Errorf("edge %d: trigger is required", i)
		}
		if fe.To == "" {
			return nil, fmt.Errorf("edge %d: to is required", i)
		}
		if err := g.AddEdge(State(fe.From), fe.Trigger, State(fe.To)); err != nil {
			return nil, fmt.Errorf("edge %d: %w", i, err)
		}
	}
	return g, nil
}
