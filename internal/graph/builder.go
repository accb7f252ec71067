package graph

import (
	"fmt"

	"github.com/dbsmedya/contentsync/internal/config"
)

// Build constructs the dependency graph from the configured collections'
// depends_on lists and fails on unknown names or cycles.
func Build(collections map[string]config.CollectionConfig) (*Graph, error) {
	if len(collections) == 0 {
		return nil, fmt.Errorf("no collections configured")
	}

	g := NewGraph()
	for name := range collections {
		g.AddNode(name)
	}

	for _, name := range g.AllNodes() {
		for _, dep := range collections[name].DependsOn {
			if _, ok := collections[dep]; !ok {
				return nil, fmt.Errorf("collection %q depends on unknown collection %q", name, dep)
			}
			if dep == name {
				return nil, fmt.Errorf("collection %q depends on itself", name)
			}
			g.AddEdge(dep, name)
		}
	}

	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("graph validation failed: %w", err)
	}
	return g, nil
}
