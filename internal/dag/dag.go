// Package dag provides dependency graph operations for dbt models.
// It enumerates reference cycles, computes the set of models downstream of a
// cycle, and orders acyclic graphs for display.
package dag

import (
	"fmt"
	"slices"
	"sort"
)

// Node represents a node in the graph.
type Node struct {
	// ID is the unique identifier (model name)
	ID string
	// Data holds arbitrary node data
	Data any
}

// Graph is a directed graph where an edge parent -> child means child depends on parent.
// Unlike a strict DAG it accepts cycles, including self-loops, so they can be reported.
type Graph struct {
	nodes   map[string]*Node
	edges   map[string][]string // parent -> children (dependents)
	parents map[string][]string // child -> parents (dependencies)
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:   make(map[string]*Node),
		edges:   make(map[string][]string),
		parents: make(map[string][]string),
	}
}

// AddNode adds a node to the graph.
func (g *Graph) AddNode(id string, data any) {
	if _, exists := g.nodes[id]; !exists {
		g.nodes[id] = &Node{ID: id, Data: data}
		g.edges[id] = []string{}
		g.parents[id] = []string{}
	} else {
		// Update data if node already exists
		g.nodes[id].Data = data
	}
}

// AddEdge adds a directed edge from parent to child (child depends on parent).
func (g *Graph) AddEdge(parentID, childID string) error {
	if _, exists := g.nodes[parentID]; !exists {
		return fmt.Errorf("parent node %q does not exist", parentID)
	}
	if _, exists := g.nodes[childID]; !exists {
		return fmt.Errorf("child node %q does not exist", childID)
	}

	// Add edge (avoid duplicates)
	if !slices.Contains(g.edges[parentID], childID) {
		g.edges[parentID] = append(g.edges[parentID], childID)
	}
	if !slices.Contains(g.parents[childID], parentID) {
		g.parents[childID] = append(g.parents[childID], parentID)
	}

	return nil
}

// GetParents returns the parents (dependencies) of a node.
func (g *Graph) GetParents(id string) []string {
	return g.parents[id]
}

// GetChildren returns the children (dependents) of a node.
func (g *Graph) GetChildren(id string) []string {
	return g.edges[id]
}

// GetAllNodes returns all nodes sorted by ID.
func (g *Graph) GetAllNodes() []*Node {
	nodes := make([]*Node, 0, len(g.nodes))
	for _, node := range g.nodes {
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].ID < nodes[j].ID
	})
	return nodes
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of edges in the graph.
func (g *Graph) EdgeCount() int {
	count := 0
	for _, children := range g.edges {
		count += len(children)
	}
	return count
}

// color marks DFS progress.
type color int

const (
	white color = iota // unvisited
	gray               // on the current DFS path
	black              // fully explored
)

// Cycles returns every cycle found by a depth-first search, one per back edge.
// Each cycle lists its nodes in dependency order and repeats the first node at the end.
// Roots are visited in sorted order so the result is deterministic.
func (g *Graph) Cycles() [][]string {
	colors := make(map[string]color, len(g.nodes))
	var stack []string
	var cycles [][]string

	var dfs func(id string)
	dfs = func(id string) {
		colors[id] = gray
		stack = append(stack, id)

		for _, childID := range g.edges[id] {
			switch colors[childID] {
			case white:
				dfs(childID)
			case gray:
				// Back edge: the cycle is the stack suffix starting at childID
				start := slices.Index(stack, childID)
				cycle := append(slices.Clone(stack[start:]), childID)
				cycles = append(cycles, cycle)
			}
		}

		stack = stack[:len(stack)-1]
		colors[id] = black
	}

	for _, node := range g.GetAllNodes() {
		if colors[node.ID] == white {
			dfs(node.ID)
		}
	}
	return cycles
}

// GetExecutionLevels groups nodes into tiers: tier 0 has no dependencies and
// every other node sits one tier after its deepest dependency.
// Cyclic graphs have no tiers and return an error naming the first cycle.
func (g *Graph) GetExecutionLevels() ([][]string, error) {
	if cycles := g.Cycles(); len(cycles) > 0 {
		return nil, fmt.Errorf("cycle detected: %v", cycles[0])
	}

	indegree := make(map[string]int, len(g.nodes))
	var tier []string
	for id := range g.nodes {
		indegree[id] = len(g.parents[id])
		if indegree[id] == 0 {
			tier = append(tier, id)
		}
	}

	var levels [][]string
	for len(tier) > 0 {
		sort.Strings(tier)
		levels = append(levels, tier)
		var next []string
		for _, id := range tier {
			for _, child := range g.edges[id] {
				indegree[child]--
				if indegree[child] == 0 {
					next = append(next, child)
				}
			}
		}
		tier = next
	}
	return levels, nil
}

// GetAffectedNodes returns the given nodes and all their downstream dependents, sorted.
func (g *Graph) GetAffectedNodes(ids []string) []string {
	affected := make(map[string]bool)

	var markAffected func(id string)
	markAffected = func(id string) {
		if affected[id] {
			return
		}
		affected[id] = true
		for _, childID := range g.edges[id] {
			markAffected(childID)
		}
	}

	for _, id := range ids {
		if _, exists := g.nodes[id]; exists {
			markAffected(id)
		}
	}

	result := make([]string, 0, len(affected))
	for id := range affected {
		result = append(result, id)
	}
	sort.Strings(result)
	return result
}

// Subgraph returns a new graph containing only the specified nodes and their edges.
func (g *Graph) Subgraph(nodeIDs []string) *Graph {
	subgraph := NewGraph()
	nodeSet := make(map[string]bool)

	for _, id := range nodeIDs {
		nodeSet[id] = true
		if node, exists := g.nodes[id]; exists {
			subgraph.AddNode(id, node.Data)
		}
	}

	for _, id := range nodeIDs {
		for _, childID := range g.edges[id] {
			if nodeSet[childID] {
				_ = subgraph.AddEdge(id, childID)
			}
		}
	}

	return subgraph
}
