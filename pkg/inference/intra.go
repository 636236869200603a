package inference

import (
	"github.com/juju/errors"
	"github.com/willf/bitset"

	"github.com/akerouanton/lockinfer/pkg/ir"
)

// dataflowEnv bundles what the per-procedure analyses need: the facts,
// the mutex universe, and the summaries of already-processed callees.
type dataflowEnv struct {
	fa   *facts
	u    *universe
	sums map[string]*funcSummary
}

// liveGuards runs the backward must-not-fail analysis: which guards must
// already be held when the procedure is entered. A lock of m means m need
// not have been live before it; an unlock of m means it must have been.
// Joins intersect over successors, so only guards required on every path
// survive. The result at the entry block is the procedure's entry set.
func (env *dataflowEnv) liveGuards(proc *ir.Proc) (*bitset.BitSet, error) {
	n := len(proc.Blocks)
	in := make([]*bitset.BitSet, n)
	for i := range in {
		in[i] = env.u.fullSet()
	}

	for changed := true; changed; {
		changed = false
		for b := n - 1; b >= 0; b-- {
			out := env.u.fullSet()
			if len(proc.Blocks[b].Succs) == 0 {
				out = env.u.emptySet()
			} else {
				for _, s := range proc.Blocks[b].Succs {
					out.InPlaceIntersection(in[s])
				}
			}
			nb, err := env.transferBackward(proc, out, proc.Blocks[b])
			if err != nil {
				return nil, err
			}
			if !nb.Equal(in[b]) {
				in[b] = nb
				changed = true
			}
		}
	}
	return in[0], nil
}

// transferBackward applies a block's effect to the live set flowing
// backward through it. Only lock-API terminators matter.
func (env *dataflowEnv) transferBackward(proc *ir.Proc, after *bitset.BitSet, b ir.Block) (*bitset.BitSet, error) {
	res := after.Clone()
	c := b.Call
	if c == nil {
		return res, nil
	}
	switch c.Callee {
	case env.fa.prims.Lock:
		id, err := env.mutexID(proc, c)
		if err != nil {
			return nil, err
		}
		res.Clear(id)
	case env.fa.prims.Unlock:
		id, err := env.mutexID(proc, c)
		if err != nil {
			return nil, err
		}
		res.Set(id)
	}
	return res, nil
}

// availableGuards runs the forward must analysis: assuming the entry set
// holds at the first block, which guards are held at the start of each
// block. Locks add, unlocks remove (idempotently in both directions),
// calls to summarized procedures apply the callee's entry/ret delta
// translated back into this procedure's naming, and unknown callees are
// identity. Joins intersect over predecessors.
func (env *dataflowEnv) availableGuards(proc *ir.Proc, entry *bitset.BitSet) ([]*bitset.BitSet, error) {
	n := len(proc.Blocks)
	preds := predecessors(proc)

	in := make([]*bitset.BitSet, n)
	in[0] = entry.Clone()
	for i := 1; i < n; i++ {
		in[i] = env.u.fullSet()
	}

	for changed := true; changed; {
		changed = false
		outs := make([]*bitset.BitSet, n)
		for b := 0; b < n; b++ {
			var err error
			outs[b], err = env.transferForward(proc, in[b], proc.Blocks[b])
			if err != nil {
				return nil, err
			}
		}
		for b := 0; b < n; b++ {
			if b > 0 && len(preds[b]) == 0 {
				continue // unreachable: stays top
			}
			var ni *bitset.BitSet
			if b == 0 {
				ni = entry.Clone()
			} else {
				ni = env.u.fullSet()
			}
			for _, p := range preds[b] {
				ni.InPlaceIntersection(outs[p])
			}
			if !ni.Equal(in[b]) {
				in[b] = ni
				changed = true
			}
		}
	}
	return in, nil
}

// transferForward applies a block's effect to the held set flowing
// forward through it.
func (env *dataflowEnv) transferForward(proc *ir.Proc, before *bitset.BitSet, b ir.Block) (*bitset.BitSet, error) {
	res := before.Clone()
	c := b.Call
	if c == nil {
		return res, nil
	}
	switch c.Callee {
	case env.fa.prims.Lock:
		id, err := env.mutexID(proc, c)
		if err != nil {
			return nil, err
		}
		res.Set(id)
	case env.fa.prims.Unlock:
		id, err := env.mutexID(proc, c)
		if err != nil {
			return nil, err
		}
		res.Clear(id)
	default:
		sum, ok := env.sums[c.Callee]
		if !ok {
			return res, nil // unknown callee: identity transfer
		}
		callee := env.fa.procs[c.Callee]
		relinquished := sum.entry.Difference(sum.ret)
		established := sum.ret.Difference(sum.entry)
		for i, ok := relinquished.NextSet(0); ok; i, ok = relinquished.NextSet(i + 1) {
			if cid, found := env.calleeToCaller(int(i), callee, c); found {
				res.Clear(uint(cid))
			}
		}
		for i, ok := established.NextSet(0); ok; i, ok = established.NextSet(i + 1) {
			if cid, found := env.calleeToCaller(int(i), callee, c); found {
				res.Set(uint(cid))
			}
		}
	}
	return res, nil
}

// mutexID resolves the first argument of a lock-API call to its identity.
// The operand was registered during fact collection, so the identity must
// exist.
func (env *dataflowEnv) mutexID(proc *ir.Proc, c *ir.Call) (uint, error) {
	m := *c.Args[0].Path
	id, ok := env.u.id(m)
	if !ok {
		return 0, errors.Errorf("internal: mutex %s in %q missing from universe", m, proc.Name)
	}
	return uint(id), nil
}

// calleeToCaller rebinds a callee-relative identity into the caller's
// naming at a call site: a parameter base is replaced by the actual
// argument's path. Global identities and parameters whose actual has no
// derivable path pass through unchanged. found is false when the rebased
// path has no identity, in which case the guard has no caller-side name
// and its effect is dropped.
func (env *dataflowEnv) calleeToCaller(id int, callee *ir.Proc, c *ir.Call) (int, bool) {
	m := env.u.path(id)
	k, isParam := callee.Param(m.Base)
	if !isParam {
		return id, true
	}
	if k >= len(c.Args) || c.Args[k].Path == nil {
		return id, true
	}
	rebased := c.Args[k].Path.Append(m.Projs...)
	cid, ok := env.u.id(rebased)
	if !ok {
		return 0, false
	}
	return cid, true
}

// predecessors inverts the successor lists of a procedure's CFG.
func predecessors(proc *ir.Proc) [][]int {
	preds := make([][]int, len(proc.Blocks))
	for b, blk := range proc.Blocks {
		for _, s := range blk.Succs {
			preds[s] = append(preds[s], b)
		}
	}
	return preds
}
