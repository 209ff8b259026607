package core

import "sync"

// GraphEdge is a typed relationship between two graph nodes.
type GraphEdge struct {
	From      string
	To        string
	Predicate string
}

// GraphBackend is the graph modality's in-memory store: outgoing and
// incoming adjacency indexed by node.
type GraphBackend struct {
	mu       sync.RWMutex
	outgoing map[string][]GraphEdge
	incoming map[string][]GraphEdge
}

// NewGraphBackend constructs an empty graph backend.
func NewGraphBackend() *GraphBackend {
	return &GraphBackend{
		outgoing: make(map[string][]GraphEdge),
		incoming: make(map[string][]GraphEdge),
	}
}

func edgeEqual(a, b GraphEdge) bool {
	return a.From == b.From && a.To == b.To && a.Predicate == b.Predicate
}

// Insert adds edge if not already present.
func (g *GraphBackend) Insert(edge GraphEdge) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, e := range g.outgoing[edge.From] {
		if edgeEqual(e, edge) {
			return nil
		}
	}
	g.outgoing[edge.From] = append(g.outgoing[edge.From], edge)
	g.incoming[edge.To] = append(g.incoming[edge.To], edge)
	return nil
}

// Delete removes edge if present.
func (g *GraphBackend) Delete(edge GraphEdge) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.outgoing[edge.From] = removeEdge(g.outgoing[edge.From], edge)
	g.incoming[edge.To] = removeEdge(g.incoming[edge.To], edge)
	return nil
}

func removeEdge(edges []GraphEdge, target GraphEdge) []GraphEdge {
	out := edges[:0]
	for _, e := range edges {
		if !edgeEqual(e, target) {
			out = append(out, e)
		}
	}
	return out
}

// Exists reports whether edge is present.
func (g *GraphBackend) Exists(edge GraphEdge) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, e := range g.outgoing[edge.From] {
		if edgeEqual(e, edge) {
			return true
		}
	}
	return false
}

// Outgoing returns the edges leaving node.
func (g *GraphBackend) Outgoing(node string) []GraphEdge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]GraphEdge, len(g.outgoing[node]))
	copy(out, g.outgoing[node])
	return out
}

// Incoming returns the edges arriving at node.
func (g *GraphBackend) Incoming(node string) []GraphEdge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]GraphEdge, len(g.incoming[node]))
	copy(out, g.incoming[node])
	return out
}

// Neighborhood performs a breadth-first traversal of outgoing edges up to
// hops levels deep, returning the set of reached node ids (node itself
// excluded).
func (g *GraphBackend) Neighborhood(node string, hops int) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	visited := map[string]bool{node: true}
	frontier := []string{node}
	var result []string
	for h := 0; h < hops && len(frontier) > 0; h++ {
		var next []string
		for _, n := range frontier {
			for _, e := range g.outgoing[n] {
				if !visited[e.To] {
					visited[e.To] = true
					next = append(next, e.To)
					result = append(result, e.To)
				}
			}
		}
		frontier = next
	}
	return result
}

// QueryRelated returns the targets of node's outgoing edges whose
// predicate matches the given IRI.
func (g *GraphBackend) QueryRelated(node, predicate string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []string
	for _, e := range g.outgoing[node] {
		if e.Predicate == predicate {
			out = append(out, e.To)
		}
	}
	return out
}
