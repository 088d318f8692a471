// ABOUTME: Tests for the conversation state graph and TOML flow file loading
// ABOUTME: Covers edge matching order, fall-through, and flow file validation

package conversation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildGraph(t *testing.T, edges [][3]string) *Graph {
	t.Helper()
	g := NewGraph()
	for _, e := range edges {
		require.NoError(t, g.AddEdge(State(e[0]), e[1], State(e[2])))
	}
	return g
}

func TestGraph_Next(t *testing.T) {
	g := buildGraph(t, [][3]string{
		{"", `^/start`, "awaiting_name"},
		{"awaiting_name", `^\w+`, "awaiting_age"},
		{"awaiting_age", `^\d+$`, "done"},
	})

	next, ok := g.Next(Initial, "/start")
	require.True(t, ok)
	assert.Equal(t, State("awaiting_name"), next)

	next, ok = g.Next("awaiting_name", "alice")
	require.True(t, ok)
	assert.Equal(t, State("awaiting_age"), next)

	_, ok = g.Next("awaiting_age", "not a number")
	assert.False(t, ok)
}

func TestGraph_FirstEdgeWins(t *testing.T) {
	g := buildGraph(t, [][3]string{
		{"", `^/`, "generic"},
		{"", `^/start`, "specific"},
	})

	next, ok := g.Next(Initial, "/start")
	require.True(t, ok)
	assert.Equal(t, State("generic"), next)
}

func TestGraph_FromMustMatchState(t *testing.T) {
	g := buildGraph(t, [][3]string{
		{"awaiting_name", `.*`, "done"},
	})

	assert.False(t, g.Matches(Initial, "anything"))
	assert.True(t, g.Matches("awaiting_name", "anything"))
}

func TestGraph_AddEdge_BadRegex(t *testing.T) {
	g := NewGraph()
	err := g.AddEdge(Initial, `[unclosed`, "done")
	assert.Error(t, err)
	assert.Equal(t, 0, g.Len())
}

func writeFlowFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flow.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadGraph(t *testing.T) {
	path := writeFlowFile(t, `
[[edge]]
from = ""
trigger = "^/start"
to = "awaiting_name"

[[edge]]
from = "awaiting_name"
trigger = "^\\w+"
to = "done"
`)

	g, err := LoadGraph(path)
	require.NoError(t, err)
	assert.Equal(t, 2, g.Len())

	next, ok := g.Next(Initial, "/start")
	require.True(t, ok)
	assert.Equal(t, State("awaiting_name"), next)
}

func TestLoadGraph_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no edges", `# empty`},
		{"missing trigger", "[[edge]]\nfrom = \"\"\nto = \"x\"\n"},
		{"missing to", "[[edge]]\nfrom = \"\"\ntrigger = \".*\"\n"},
		{"bad regex", "[[edge]]\nfrom = \"\"\ntrigger = \"[oops\"\nto = \"x\"\n"},
		{"invalid toml", `this is not toml =`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFlowFile(t, tt.content)
			_, err := LoadGraph(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadGraph_MissingFile(t *testing.T) {
	_, err := LoadGraph(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}
