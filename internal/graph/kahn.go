package graph

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrCycleDetected is matched by every CycleError.
var ErrCycleDetected = errors.New("cycle detected in dependency graph")

// CycleInfo describes the collections Kahn's algorithm could not order.
type CycleInfo struct {
	TotalNodes       int
	ProcessedNodes   int
	UnprocessedNodes []string
	CyclePath        []string // e.g. [a, b, a]
}

// CycleError reports a dependency cycle.
type CycleError struct {
	Info *CycleInfo
}

func (e *CycleError) Error() string {
	msg := fmt.Sprintf("cycle detected in dependency graph: %d of %d collections could not be ordered",
		len(e.Info.UnprocessedNodes), e.Info.TotalNodes)
	if len(e.Info.CyclePath) > 0 {
		msg += fmt.Sprintf("\nCycle path: %s", strings.Join(e.Info.CyclePath, " -> "))
	}
	return msg
}

func (e *CycleError) Unwrap() error {
	return ErrCycleDetected
}

// kahn returns the nodes it could order. Ties are broken alphabetically so the
// order is stable across runs.
func (g *Graph) kahn() []string {
	inDegree := make(map[string]int, len(g.Nodes))
	for name := range g.Nodes {
		inDegree[name] = len(g.Parents[name])
	}

	var ready []string
	for name, degree := range inDegree {
		if degree == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(g.Nodes))
	for len(ready) > 0 {
		node := ready[0]
		ready = ready[1:]
		order = append(order, node)

		var next []string
		for _, child := range g.Children[node] {
			inDegree[child]--
			if inDegree[child] == 0 {
				next = append(next, child)
			}
		}
		ready = append(ready, next...)
		sort.Strings(ready)
	}
	return order
}

// SyncOrder returns every collection after the collections it depends on.
func (g *Graph) SyncOrder() ([]string, error) {
	order := g.kahn()
	if len(order) != len(g.Nodes) {
		return nil, &CycleError{Info: g.cycleInfo(order)}
	}
	return order, nil
}

// Validate returns a CycleError if the graph cannot be ordered.
func (g *Graph) Validate() error {
	_, err := g.SyncOrder()
	return err
}

// OrderFor returns the sync order restricted to the given collections and their
// transitive dependencies.
func (g *Graph) OrderFor(names ...string) ([]string, error) {
	order, err := g.SyncOrder()
	if err != nil {
		return nil, err
	}

	needed := make(map[string]bool)
	var visit func(string)
	visit = func(name string) {
		if needed[name] {
			return
		}
		needed[name] = true
		for _, dep := range g.Parents[name] {
			visit(dep)
		}
	}
	for _, name := range names {
		if !g.HasNode(name) {
			return nil, fmt.Errorf("unknown collection %q", name)
		}
		visit(name)
	}

	out := make([]string, 0, len(needed))
	for _, name := range order {
		if needed[name] {
			out = append(out, name)
		}
	}
	return out, nil
}

func (g *Graph) cycleInfo(order []string) *CycleInfo {
	processed := make(map[string]bool, len(order))
	for _, name := range order {
		processed[name] = true
	}

	remaining := make(map[string]bool)
	var unprocessed []string
	for _, name := range g.AllNodes() {
		if !processed[name] {
			unprocessed = append(unprocessed, name)
			remaining[name] = true
		}
	}

	info := &CycleInfo{
		TotalNodes:       len(g.Nodes),
		ProcessedNodes:   len(order),
		UnprocessedNodes: unprocessed,
	}
	for _, start := range unprocessed {
		if path := g.findCyclePath(start, remaining); path != nil {
			info.CyclePath = path
			break
		}
	}
	return info
}

// findCyclePath walks dependents depth-first, within allowed, looking for a way back
// to start.
func (g *Graph) findCyclePath(start string, allowed map[string]bool) []string {
	visited := make(map[string]bool)
	path := []string{start}

	var dfs func(current string) bool
	dfs = func(current string) bool {
		for _, child := range g.Children[current] {
			if !allowed[child] {
				continue
			}
			if child == start {
				path = append(path, start)
				return true
			}
			if visited[child] {
				continue
			}
			visited[child] = true
			path = append(path, child)
			if dfs(child) {
				return true
			}
			path = path[:len(path)-1]
		}
		return false
	}

	if dfs(start) {
		return path
	}
	return nil
}
