package dag

import (
	"reflect"
	"strings"
	"testing"
)

// build creates a graph from "parent>child" edge specs; bare names add isolated nodes.
func build(t *testing.T, specs ...string) *Graph {
	t.Helper()
	g := NewGraph()
	for _, spec := range specs {
		parent, child, isEdge := strings.Cut(spec, ">")
		if !isEdge {
			g.AddNode(spec, nil)
			continue
		}
		g.AddNode(parent, nil)
		g.AddNode(child, nil)
		if err := g.AddEdge(parent, child); err != nil {
			t.Fatalf("failed to add edge %s: %v", spec, err)
		}
	}
	return g
}

func TestGraph_AddNodeAndEdge(t *testing.T) {
	g := build(t, "a>b", "b>c")

	if g.NodeCount() != 3 {
		t.Errorf("expected 3 nodes, got %d", g.NodeCount())
	}
	if g.EdgeCount() != 2 {
		t.Errorf("expected 2 edges, got %d", g.EdgeCount())
	}
	if got := g.GetParents("c"); !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("expected c to depend on b, got %v", got)
	}
}

func TestGraph_AddEdge_InvalidNodes(t *testing.T) {
	g := NewGraph()
	g.AddNode("a", nil)

	if err := g.AddEdge("a", "nonexistent"); err == nil {
		t.Error("expected error for nonexistent child node")
	}
	if err := g.AddEdge("nonexistent", "a"); err == nil {
		t.Error("expected error for nonexistent parent node")
	}
}

func TestGraph_DuplicateEdges(t *testing.T) {
	g := build(t, "a>b", "a>b")
	if g.EdgeCount() != 1 {
		t.Errorf("expected 1 edge (no duplicates), got %d", g.EdgeCount())
	}
}

func TestGraph_Cycles(t *testing.T) {
	tests := []struct {
		name  string
		edges []string
		want  [][]string
	}{
		{name: "acyclic", edges: []string{"a>b", "b>c", "a>c"}, want: nil},
		{name: "two node cycle", edges: []string{"a>b", "b>a", "c"}, want: [][]string{{"a", "b", "a"}}},
		{name: "self reference", edges: []string{"a>a", "a>b"}, want: [][]string{{"a", "a"}}},
		{name: "three node cycle", edges: []string{"a>b", "b>c", "c>a"}, want: [][]string{{"a", "b", "c", "a"}}},
		{
			name:  "two separate cycles",
			edges: []string{"a>b", "b>a", "x>y", "y>x", "b>z"},
			want:  [][]string{{"a", "b", "a"}, {"x", "y", "x"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := build(t, tt.edges...)
			got := g.Cycles()
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Cycles() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGraph_Cycles_Deterministic(t *testing.T) {
	first := build(t, "m>n", "n>o", "o>m", "p>q", "q>p").Cycles()
	for i := 0; i < 20; i++ {
		again := build(t, "m>n", "n>o", "o>m", "p>q", "q>p").Cycles()
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("cycle enumeration changed between runs: %v vs %v", first, again)
		}
	}
}

func TestGraph_GetExecutionLevels(t *testing.T) {
	levels, err := build(t, "a>b", "a>c", "b>d", "c>d", "e").GetExecutionLevels()
	if err != nil {
		t.Fatalf("failed to get levels: %v", err)
	}
	want := [][]string{{"a", "e"}, {"b", "c"}, {"d"}}
	if !reflect.DeepEqual(levels, want) {
		t.Errorf("levels = %v, want %v", levels, want)
	}
}

func TestGraph_GetExecutionLevels_WithCycle(t *testing.T) {
	if _, err := build(t, "a>b", "b>a", "c").GetExecutionLevels(); err == nil {
		t.Error("expected error for cyclic graph")
	}
}

func TestGraph_GetAffectedNodes(t *testing.T) {
	g := build(t, "a>b", "b>a", "b>c", "c>d", "e>f")

	got := g.GetAffectedNodes([]string{"a", "b"})
	want := []string{"a", "b", "c", "d"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("affected = %v, want %v", got, want)
	}
}

func TestGraph_Subgraph(t *testing.T) {
	sub := build(t, "a>b", "b>c", "c>d").Subgraph([]string{"b", "c"})

	if sub.NodeCount() != 2 {
		t.Errorf("expected 2 nodes, got %d", sub.NodeCount())
	}
	if children := sub.GetChildren("b"); len(children) != 1 || children[0] != "c" {
		t.Error("expected edge from b to c")
	}
}
