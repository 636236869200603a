package inference

import (
	"strings"

	"github.com/juju/errors"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// condensationOrder condenses the user-only call graph into strongly
// connected components and returns procedure names with every callee
// ahead of its callers (Tarjan emits components in reverse topological
// order of the condensation). The engine requires the condensation to be
// all singletons: recursion is unsupported and reported as malformed
// input.
func condensationOrder(fa *facts) ([]string, error) {
	g := simple.NewDirectedGraph()
	for i := range fa.procNames {
		g.AddNode(simple.Node(int64(i)))
	}
	for _, caller := range fa.procNames {
		for _, callee := range fa.callGraph[caller] {
			ci, ei := fa.procIdx[caller], fa.procIdx[callee]
			if ci == ei {
				return nil, errors.Errorf("recursive call graph: %q calls itself", caller)
			}
			g.SetEdge(g.NewEdge(simple.Node(int64(ci)), simple.Node(int64(ei))))
		}
	}

	order := make([]string, 0, len(fa.procNames))
	for _, comp := range topo.TarjanSCC(g) {
		if len(comp) > 1 {
			names := make([]string, len(comp))
			for i, n := range comp {
				names[i] = fa.procNames[n.ID()]
			}
			return nil, errors.Errorf("recursive call graph: cycle through %s", strings.Join(names, ", "))
		}
		order = append(order, fa.procNames[comp[0].ID()])
	}
	return order, nil
}

// callers inverts the call graph into a has-incoming-edge predicate,
// identifying the condensation's roots.
func callers(fa *facts) map[string]bool {
	hasCaller := make(map[string]bool)
	for _, caller := range fa.procNames {
		for _, callee := range fa.callGraph[caller] {
			hasCaller[callee] = true
		}
	}
	return hasCaller
}
