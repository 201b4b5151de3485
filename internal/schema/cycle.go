package schema

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/stead/internal/ir"
)

// CycleWarning reports classes whose non-nullable references form a cycle.
//
// An object in such a cycle needs its target inserted first, all the way
// around, so none of them can ever be inserted. Nullable references break
// the cycle: the object is inserted with a null and updated afterwards.
type CycleWarning struct {
	Path    []string `json:"path"`    // e.g. ["A", "B", "A"]
	Message string   `json:"message"`
	Level   string   `json:"level"`
}

// referenceGraph maps class → classes it references through non-nullable fields.
type referenceGraph map[string][]string

// AnalyzeCycles finds strongly connected components of the non-nullable
// reference graph with Tarjan's algorithm. Each component with more than
// one class, or a class referencing itself, becomes a warning.
// Warnings are ordered by their first class name.
func AnalyzeCycles(s *ir.Schema) []CycleWarning {
	graph := buildReferenceGraph(s)

	warnings := []CycleWarning{}
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
			warnings = append(warnings, sccToWarning(scc, graph))
		}
	}
	slices.SortFunc(warnings, func(a, b CycleWarning) int { return strings.Compare(a.Path[0], b.Path[0]) })
	return warnings
}

func buildReferenceGraph(s *ir.Schema) referenceGraph {
	graph := referenceGraph{}
	for _, c := range s.Classes {
		graph[c.Name] = []string{}
	}
	for _, c := range s.Classes {
		for _, f := range c.References() {
			if f.Nullable {
				continue
			}
			if _, ok := graph[f.References]; !ok {
				continue
			}
			if !slices.Contains(graph[c.Name], f.References) {
				graph[c.Name] = append(graph[c.Name], f.References)
			}
		}
	}
	return graph
}

func hasSelfLoop(node string, graph referenceGraph) bool {
	return slices.Contains(graph[node], node)
}

// tarjanSCC returns the strongly connected components of graph, visiting
// nodes in sorted order. Each component is sorted by name.
func tarjanSCC(graph referenceGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			slices.Sort(scc)
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	slices.Sort(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

func sccToWarning(scc []string, graph referenceGraph) CycleWarning {
	if len(scc) == 1 {
		return CycleWarning{
			Path:    []string{scc[0], scc[0]},
			Message: fmt.Sprintf("class %s references itself through a non-nullable field and can never be inserted", scc[0]),
			Level:   "warning",
		}
	}
	path := reconstructCyclePath(scc, graph)
	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("non-nullable references form a cycle, none can be inserted: %s", strings.Join(path, " → ")),
		Level:   "warning",
	}
}

// reconstructCyclePath walks edges inside the component from its first
// member until it returns there.
func reconstructCyclePath(scc []string, graph referenceGraph) []string {
	members := make(map[string]bool, len(scc))
	for _, node := range scc {
		members[node] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := map[string]bool{}
	for {
		visited[current] = true
		next := ""
		for _, neighbor := range graph[current] {
			if members[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}
		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}
	return path
}
