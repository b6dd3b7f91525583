package graph

import "sort"

// Digraph is a small labeled directed graph over string node IDs. It is
// mutated only while a bundle is being built; afterwards all access is
// read-only, so no locking happens here.
type Digraph struct {
	succ map[string]map[string]string // from -> to -> edge label
	pred map[string]map[string]bool   // to -> from
}

func NewDigraph() *Digraph {
	return &Digraph{
		succ: make(map[string]map[string]string),
		pred: make(map[string]map[string]bool),
	}
}

func (g *Digraph) AddNode(id string) {
	if _, ok := g.succ[id]; !ok {
		g.succ[id] = make(map[string]string)
	}
	if _, ok := g.pred[id]; !ok {
		g.pred[id] = make(map[string]bool)
	}
}

// AddEdge inserts a labeled edge, creating both endpoints if needed.
// Duplicate edges collapse; the first label wins.
func (g *Digraph) AddEdge(from, to, label string) {
	g.AddNode(from)
	g.AddNode(to)
	if _, ok := g.succ[from][to]; !ok {
		g.succ[from][to] = label
	}
	g.pred[to][from] = true
}

func (g *Digraph) HasNode(id string) bool {
	_, ok := g.succ[id]
	return ok
}

func (g *Digraph) HasEdge(from, to string) bool {
	targets, ok := g.succ[from]
	if !ok {
		return false
	}
	_, ok = targets[to]
	return ok
}

func (g *Digraph) EdgeLabel(from, to string) (string, bool) {
	targets, ok := g.succ[from]
	if !ok {
		return "", false
	}
	label, ok := targets[to]
	return label, ok
}

// Successors returns the sorted targets of outgoing edges from id.
func (g *Digraph) Successors(id string) []string {
	return sortedKeys(g.succ[id])
}

// Predecessors returns the sorted sources of incoming edges to id.
func (g *Digraph) Predecessors(id string) []string {
	out := make([]string, 0, len(g.pred[id]))
	for from := range g.pred[id] {
		out = append(out, from)
	}
	sort.Strings(out)
	return out
}

// Nodes returns all node IDs in sorted order.
func (g *Digraph) Nodes() []string {
	out := make([]string, 0, len(g.succ))
	for id := range g.succ {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (g *Digraph) NodeCount() int {
	return len(g.succ)
}

func (g *Digraph) EdgeCount() int {
	count := 0
	for _, targets := range g.succ {
		count += len(targets)
	}
	return count
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
