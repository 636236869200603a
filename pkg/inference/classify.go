package inference

import (
	"sort"

	"github.com/juju/errors"
	"github.com/willf/bitset"
	"golang.org/x/tools/container/intsets"

	"github.com/akerouanton/lockinfer/pkg/ir"
)

// datumAccess is one access to a global datum: the enclosing procedure,
// the guards held (including the procedure's inherited guards), and the
// access direction.
type datumAccess struct {
	proc  string
	held  *bitset.BitSet
	write bool
}

// structAccess is one access to a struct field, reduced to the path of
// the enclosing struct instance.
type structAccess struct {
	proc   string
	prefix ir.Path
	held   *bitset.BitSet
	write  bool
}

// bucketKey groups struct-field accesses program-wide by enclosing
// struct type and protected field name.
type bucketKey struct {
	typ   string
	field string
}

// classify intersects the held sets observed at each protected datum's
// accesses and applies the shape-specific projection rules, producing
// the three datum→mutex maps and the per-procedure guard context.
// Accesses in procedures not reachable from a thread entry are dropped
// first (unless no thread is ever spawned), then read-only data. A datum
// whose intersection leaves no conforming guard is omitted; multiple
// survivors resolve to the lexicographically smallest.
func classify(fa *facts, u *universe, sums map[string]*funcSummary) (*Summary, error) {
	reach := threadReachable(fa)

	global := make(map[string][]datumAccess)
	globalPath := make(map[string]ir.Path)
	buckets := make(map[bucketKey][]structAccess)

	for _, name := range fa.procNames {
		sum := sums[name]
		for _, ar := range sum.access {
			held := ar.held.Union(sum.propagationMutex)
			if ar.path.HasField() {
				typ, field, prefix, ok, err := fa.structDatum(name, ar.path)
				if err != nil {
					return nil, err
				}
				if !ok {
					continue
				}
				key := bucketKey{typ: typ, field: field}
				buckets[key] = append(buckets[key], structAccess{
					proc:   name,
					prefix: prefix,
					held:   held,
					write:  ar.write,
				})
			} else {
				k := ar.path.String()
				globalPath[k] = ar.path
				global[k] = append(global[k], datumAccess{proc: name, held: held, write: ar.write})
			}
		}
	}

	res := &Summary{
		MutexMap:       make(map[string]string),
		ArrayMutexMap:  make(map[string]string),
		StructMutexMap: make(map[string]map[string]string),
		FunctionMap:    make(map[string]FunctionMutexes, len(sums)),
	}

	globalKeys := make([]string, 0, len(global))
	for k := range global {
		globalKeys = append(globalKeys, k)
	}
	sort.Strings(globalKeys)

	for _, k := range globalKeys {
		accs := global[k]
		if reach != nil {
			var kept []datumAccess
			for _, a := range accs {
				if reach.Has(fa.procIdx[a.proc]) {
					kept = append(kept, a)
				}
			}
			accs = kept
		}
		if len(accs) == 0 || allReads(accs) {
			continue
		}

		inter := accs[0].held.Clone()
		for _, a := range accs[1:] {
			inter.InPlaceIntersection(a.held)
		}

		path := globalPath[k]
		if len(path.Projs) > 0 && path.Projs[0].Kind == ir.ProjIndex {
			// Array element: the guard must live at the same index of a
			// sibling mutex array.
			idx := path.Projs[0].Name
			for _, m := range u.pathsOf(inter) {
				if len(m.Projs) > 0 && m.Projs[0].Kind == ir.ProjIndex && m.Projs[0].Name == idx {
					res.ArrayMutexMap[path.Base] = m.Base
					break
				}
			}
		} else {
			// Scalar global: the guard must itself be a global variable.
			for _, m := range u.pathsOf(inter) {
				if m.IsVariable() && fa.globals[m.Base] {
					res.MutexMap[path.Base] = m.Base
					break
				}
			}
		}
	}

	if err := classifyStructs(fa, u, reach, buckets, res); err != nil {
		return nil, err
	}

	for _, name := range fa.procNames {
		sum := sums[name]
		res.FunctionMap[name] = FunctionMutexes{
			Entry: u.strings(sum.entry.Union(sum.propagationMutex)),
			Node:  u.strings(sum.node.Union(sum.propagationMutex)),
			Ret:   u.strings(sum.ret.Union(sum.propagationMutex)),
		}
	}
	return res, nil
}

// classifyStructs intersects, per (struct type, field) bucket, the guard
// suffixes remaining after stripping each access's enclosing-struct
// prefix. A surviving suffix rooted at a mutex field of the struct maps
// the field to that mutex field.
func classifyStructs(fa *facts, u *universe, reach *intsets.Sparse, buckets map[bucketKey][]structAccess, res *Summary) error {
	keys := make([]bucketKey, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].typ != keys[j].typ {
			return keys[i].typ < keys[j].typ
		}
		return keys[i].field < keys[j].field
	})

	for _, bk := range keys {
		accs := buckets[bk]
		if reach != nil {
			var kept []structAccess
			for _, a := range accs {
				if reach.Has(fa.procIdx[a.proc]) {
					kept = append(kept, a)
				}
			}
			accs = kept
		}
		if len(accs) == 0 {
			continue
		}
		writes := false
		for _, a := range accs {
			writes = writes || a.write
		}
		if !writes {
			continue
		}

		var inter map[string]ir.Path
		for i, a := range accs {
			set := make(map[string]ir.Path)
			for _, m := range u.pathsOf(a.held) {
				suffix, ok := m.StripPrefix(a.prefix)
				if !ok {
					continue
				}
				sp, ok := ir.SuffixPath(suffix)
				if !ok {
					continue
				}
				set[sp.String()] = sp
			}
			if i == 0 {
				inter = set
				continue
			}
			for k := range inter {
				if _, ok := set[k]; !ok {
					delete(inter, k)
				}
			}
		}

		survivors := make([]string, 0, len(inter))
		for k := range inter {
			survivors = append(survivors, k)
		}
		sort.Strings(survivors)
		for _, k := range survivors {
			sp := inter[k]
			if !fa.structMutexes[bk.typ][sp.Base] {
				continue
			}
			if res.StructMutexMap[bk.typ] == nil {
				res.StructMutexMap[bk.typ] = make(map[string]string)
			}
			res.StructMutexMap[bk.typ][bk.field] = sp.Base
			break
		}
	}
	return nil
}

// structDatum walks upward from an access path, popping one projection
// at a time until the remaining prefix has a type that declares a mutex
// field. The popped field is the datum being protected. ok is false when
// the walk runs out of field projections first; a prefix with no type
// recorded by the front end is incoherent input.
func (fa *facts) structDatum(proc string, path ir.Path) (typ, field string, prefix ir.Path, ok bool, err error) {
	prefix = path
	for {
		popped, proj, has := prefix.Pop()
		if !has || proj.Kind != ir.ProjField {
			return "", "", ir.Path{}, false, nil
		}
		prefix = popped
		t, known := fa.typeOf(proc, prefix)
		if !known {
			return "", "", ir.Path{}, false,
				errors.Errorf("procedure %q: no type recorded for %s while classifying %s", proc, prefix, path)
		}
		if fa.structMutexes[t] != nil {
			return t, proj.Name, prefix, true, nil
		}
	}
}

// allReads reports whether no access in the list is a write.
func allReads(accs []datumAccess) bool {
	for _, a := range accs {
		if a.write {
			return false
		}
	}
	return true
}
