package inference

import (
	"github.com/juju/errors"
	"github.com/willf/bitset"
)

// propagate computes, for every procedure, the guards held on every
// dynamic call to it beyond those it already assumes on entry. Root
// procedures (no callers) start at their own entry set; everything else
// starts at the full universe, the top of the meet semilattice. Each
// worklist step meets a callee's state with the caller's state union the
// call site's translated held set; states only ever shrink over a finite
// lattice, so the loop terminates.
func propagate(fa *facts, u *universe, sums map[string]*funcSummary, order []string) error {
	hasCaller := callers(fa)

	abs := make(map[string]*bitset.BitSet, len(order))
	for _, name := range order {
		if hasCaller[name] {
			abs[name] = u.fullSet()
		} else {
			abs[name] = sums[name].entry.Clone()
		}
	}

	// Work list in reverse post order: callers ahead of callees.
	work := make([]string, len(order))
	for i, name := range order {
		work[len(order)-1-i] = name
	}
	queued := make(map[string]bool, len(work))
	for _, name := range work {
		queued[name] = true
	}

	for len(work) > 0 {
		name := work[0]
		work = work[1:]
		queued[name] = false

		for _, pe := range sums[name].propagation {
			contrib := pe.held.Union(abs[name])
			if intersectInto(abs[pe.callee], contrib) && !queued[pe.callee] {
				queued[pe.callee] = true
				work = append(work, pe.callee)
			}
		}
	}

	for _, name := range order {
		sum := sums[name]
		if !abs[name].IsSuperSet(sum.entry) {
			return errors.Errorf("internal: %q propagated state lost entry guards", name)
		}
		sum.propagationMutex = abs[name].Difference(sum.entry)
	}
	return nil
}
