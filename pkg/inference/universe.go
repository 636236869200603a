package inference

import (
	"sort"

	"github.com/willf/bitset"

	"github.com/akerouanton/lockinfer/pkg/ir"
)

// universe assigns a dense integer identity to every mutex access path
// the program may refer to. Identities are handed out in lexicographic
// path order, so iterating a held set in ascending bit order visits
// paths lexicographically; deterministic tie-breaks fall out of that.
// Immutable once built.
type universe struct {
	ids   map[string]int
	paths []ir.Path
}

// buildUniverse enumerates the observed mutex expressions and closes the
// set under parameter substitution: a parameter-relative mutex expression
// stands for whatever actual a caller may pass, so for every actual of
// the parameter's pointee type the rebased path joins the universe. The
// substitution is type-indexed rather than call-graph-precise; the
// per-call alias translation recovers precision where it matters.
func buildUniverse(fa *facts) *universe {
	set := make(map[string]ir.Path)
	add := func(p ir.Path) {
		set[p.String()] = p
	}

	for _, name := range fa.procNames {
		proc := fa.procs[name]
		for _, m := range fa.mutexes[name] {
			add(m)
			k, isParam := proc.Param(m.Base)
			if !isParam {
				continue
			}
			for _, actual := range fa.argsPerType[proc.Params[k].Type] {
				add(actual.Append(m.Projs...))
			}
		}
	}

	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	u := &universe{ids: make(map[string]int, len(keys))}
	for i, k := range keys {
		u.ids[k] = i
		u.paths = append(u.paths, set[k])
	}
	return u
}

// size is the number of mutex identities.
func (u *universe) size() int {
	return len(u.paths)
}

// id translates a path to its identity.
func (u *universe) id(p ir.Path) (int, bool) {
	i, ok := u.ids[p.String()]
	return i, ok
}

// path translates an identity back to its path.
func (u *universe) path(i int) ir.Path {
	return u.paths[i]
}

// emptySet returns a held set with no guards.
func (u *universe) emptySet() *bitset.BitSet {
	return bitset.New(uint(u.size()))
}

// fullSet returns a held set containing every identity: the top of the
// meet semilattice.
func (u *universe) fullSet() *bitset.BitSet {
	return u.emptySet().Complement()
}

// pathsOf lists the paths of a held set in lexicographic order.
func (u *universe) pathsOf(s *bitset.BitSet) []ir.Path {
	var ps []ir.Path
	for i, ok := s.NextSet(0); ok; i, ok = s.NextSet(i + 1) {
		ps = append(ps, u.paths[i])
	}
	return ps
}

// strings lists the paths of a held set as strings, lexicographically.
func (u *universe) strings(s *bitset.BitSet) []string {
	var out []string
	for _, p := range u.pathsOf(s) {
		out = append(out, p.String())
	}
	return out
}

// intersectInto narrows dst to its intersection with src and reports
// whether dst shrank. Intersection only ever clears bits, so comparing
// cardinalities detects change.
func intersectInto(dst, src *bitset.BitSet) bool {
	before := dst.Count()
	dst.InPlaceIntersection(src)
	return dst.Count() != before
}
