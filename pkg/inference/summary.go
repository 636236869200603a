package inference

import (
	"github.com/juju/errors"
	"github.com/willf/bitset"

	"github.com/akerouanton/lockinfer/pkg/ir"
)

// funcSummary is the per-procedure result of the intraprocedural
// analyses. entry and ret are the guard sets at the boundaries, node the
// union of everything observed inside. propagation and access are in
// source order. All fields are written once; propagationMutex is filled
// later by the interprocedural fixed point and holds the guards every
// dynamic caller is known to hold beyond entry.
type funcSummary struct {
	entry *bitset.BitSet
	node  *bitset.BitSet
	ret   *bitset.BitSet

	propagation []propagationEntry
	access      []accessRecord

	propagationMutex *bitset.BitSet
}

// propagationEntry is one call to a user procedure with the held set at
// the call site, already translated into the callee's naming.
type propagationEntry struct {
	callee string
	held   *bitset.BitSet
}

// accessRecord is one memory access with the guards held before the
// statement it belongs to.
type accessRecord struct {
	path  ir.Path
	held  *bitset.BitSet
	write bool
}

// computeSummaries runs both intraprocedural analyses for every
// procedure in callee-first order, so each call can apply its callee's
// already-computed entry/ret delta. Returns the summaries and the order.
func computeSummaries(fa *facts, u *universe) (map[string]*funcSummary, []string, error) {
	order, err := condensationOrder(fa)
	if err != nil {
		return nil, nil, err
	}

	sums := make(map[string]*funcSummary, len(order))
	env := &dataflowEnv{fa: fa, u: u, sums: sums}

	for _, name := range order {
		proc := fa.procs[name]

		entry, err := env.liveGuards(proc)
		if err != nil {
			return nil, nil, err
		}
		ins, err := env.availableGuards(proc, entry)
		if err != nil {
			return nil, nil, err
		}
		last := len(proc.Blocks) - 1
		ret, err := env.transferForward(proc, ins[last], proc.Blocks[last])
		if err != nil {
			return nil, nil, err
		}

		node := entry.Union(ret)

		var propagation []propagationEntry
		for b, blk := range proc.Blocks {
			if blk.Call == nil {
				continue
			}
			node.InPlaceUnion(ins[b])
			callee, user := fa.procs[blk.Call.Callee]
			if !user {
				continue
			}
			held := env.callerToCallee(ins[b], callee, blk.Call)
			propagation = append(propagation, propagationEntry{callee: blk.Call.Callee, held: held})
		}

		sum := &funcSummary{
			entry:       entry,
			node:        node,
			ret:         ret,
			propagation: propagation,
			access:      attributeAccesses(fa.accesses[name], proc, ins),
		}
		if err := checkSummaryInvariants(name, sum); err != nil {
			return nil, nil, err
		}
		sums[name] = sum
	}
	return sums, order, nil
}

// callerToCallee translates a held set from the caller's naming into the
// callee's: a guard rooted under some actual argument is rebound to the
// matching parameter, keeping the projection suffix. Variable (global)
// guards and guards unrelated to any argument keep their identity. A
// rebased path absent from the universe means the guard has no name the
// callee could refer to; it is dropped from the propagated set.
func (env *dataflowEnv) callerToCallee(held *bitset.BitSet, callee *ir.Proc, c *ir.Call) *bitset.BitSet {
	out := env.u.emptySet()
	for i, ok := held.NextSet(0); ok; i, ok = held.NextSet(i + 1) {
		m := env.u.path(int(i))
		if m.IsVariable() {
			out.Set(i)
			continue
		}
		matched := false
		for k, arg := range c.Args {
			if k >= len(callee.Params) || arg.Path == nil {
				continue
			}
			suffix, isPrefix := m.StripPrefix(*arg.Path)
			if !isPrefix {
				continue
			}
			translated := ir.Path{Base: callee.Params[k].Name, Projs: suffix}
			tid, known := env.u.id(translated)
			if known {
				out.Set(uint(tid))
			}
			matched = true
			break
		}
		if !matched {
			out.Set(i)
		}
	}
	return out
}

// attributeAccesses attaches each access record to every statement whose
// span overlaps it, pairing it with the held set at that statement's
// block. Guard state only changes at terminators, so all statements of a
// block share the block's entry set.
func attributeAccesses(accs []ir.Access, proc *ir.Proc, ins []*bitset.BitSet) []accessRecord {
	if len(accs) == 0 {
		return nil
	}
	var out []accessRecord
	for b, blk := range proc.Blocks {
		for _, st := range blk.Stmts {
			for _, acc := range accs {
				if acc.Span.Overlaps(st.Span) {
					out = append(out, accessRecord{
						path:  acc.Path,
						held:  ins[b].Clone(),
						write: acc.Write,
					})
				}
			}
		}
	}
	return out
}

// checkSummaryInvariants verifies entry ⊆ node ⊇ ret for a summary.
func checkSummaryInvariants(name string, s *funcSummary) error {
	if !s.node.IsSuperSet(s.entry) {
		return errors.Errorf("internal: %q entry set escapes node set", name)
	}
	if !s.node.IsSuperSet(s.ret) {
		return errors.Errorf("internal: %q ret set escapes node set", name)
	}
	return nil
}
