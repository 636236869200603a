package inference

import (
	"sort"
	"strings"

	"github.com/juju/errors"

	"github.com/akerouanton/lockinfer/pkg/ir"
)

// facts holds everything the analysis needs, materialized in a single
// pass over the program. Immutable once collectFacts returns.
type facts struct {
	prims Primitives

	procs     map[string]*ir.Proc
	procNames []string // sorted; procIdx indexes into this
	procIdx   map[string]int

	// mutexes lists, per procedure, the distinct access paths that appear
	// as lock/unlock operands in it.
	mutexes map[string][]ir.Path
	// argsPerType indexes every call argument with a derivable path by
	// its pointee type name. Feeds the universe's parameter substitution.
	argsPerType map[string][]ir.Path
	// callGraph has an entry for every user procedure; edges point only
	// at user procedures and are deduplicated and sorted.
	callGraph map[string][]string
	// accesses keeps, per procedure, the access records that can denote
	// shared data: projections or globals. Purely local paths are gone.
	accesses map[string][]ir.Access
	// pathTypes maps (procedure, path string) to the path's pointee type.
	pathTypes map[string]map[string]string
	// structMutexes maps a struct name to its mutex-typed field names.
	structMutexes map[string]map[string]bool
	globals       map[string]bool
	threadEntries map[string]bool
	// initDestroy records, per procedure, the operand paths of init and
	// destroy calls with their final projection popped. Collected but not
	// consumed by the current analysis; reserved for filtering mutexes
	// that are never acquired.
	initDestroy map[string][]ir.Path
}

// collectFacts materializes the analysis facts from the front-end IR.
// It also validates the CFG shape: named procedures must be unique, have
// at least one block, and keep successor indices in range.
func collectFacts(prog *ir.Program, cfg Config) (*facts, error) {
	fa := &facts{
		prims:         cfg.Primitives,
		procs:         make(map[string]*ir.Proc),
		procIdx:       make(map[string]int),
		mutexes:       make(map[string][]ir.Path),
		argsPerType:   make(map[string][]ir.Path),
		callGraph:     make(map[string][]string),
		accesses:      make(map[string][]ir.Access),
		pathTypes:     make(map[string]map[string]string),
		structMutexes: make(map[string]map[string]bool),
		globals:       make(map[string]bool),
		threadEntries: make(map[string]bool),
		initDestroy:   make(map[string][]ir.Path),
	}

	for _, p := range prog.Procs {
		if _, dup := fa.procs[p.Name]; dup {
			return nil, errors.Errorf("duplicate procedure %q", p.Name)
		}
		if len(p.Blocks) == 0 {
			return nil, errors.Errorf("procedure %q has no blocks", p.Name)
		}
		for bi, b := range p.Blocks {
			for _, s := range b.Succs {
				if s < 0 || s >= len(p.Blocks) {
					return nil, errors.Errorf("procedure %q: block %d successor %d out of range", p.Name, bi, s)
				}
			}
		}
		fa.procs[p.Name] = p
		fa.procNames = append(fa.procNames, p.Name)
	}
	sort.Strings(fa.procNames)
	for i, name := range fa.procNames {
		fa.procIdx[name] = i
	}

	for _, g := range prog.Globals {
		fa.globals[g] = true
	}
	for _, st := range prog.Structs {
		for _, f := range st.Fields {
			if strings.Contains(f.Type, cfg.MutexType) {
				if fa.structMutexes[st.Name] == nil {
					fa.structMutexes[st.Name] = make(map[string]bool)
				}
				fa.structMutexes[st.Name][f.Name] = true
			}
		}
	}
	for _, t := range prog.ThreadEntries {
		if _, ok := fa.procs[t]; ok {
			fa.threadEntries[t] = true
		}
	}

	for _, name := range fa.procNames {
		if err := fa.collectProc(fa.procs[name]); err != nil {
			return nil, err
		}
	}

	for caller := range fa.callGraph {
		sort.Strings(fa.callGraph[caller])
	}
	return fa, nil
}

// collectProc records one procedure's calls, mutex operations, accesses,
// and path types.
func (fa *facts) collectProc(p *ir.Proc) error {
	if _, ok := fa.callGraph[p.Name]; !ok {
		fa.callGraph[p.Name] = nil
	}
	edges := make(map[string]bool)

	for _, b := range p.Blocks {
		c := b.Call
		if c == nil {
			continue
		}
		switch c.Callee {
		case fa.prims.Lock, fa.prims.Unlock:
			if len(c.Args) == 0 || c.Args[0].Path == nil {
				return errors.Errorf("procedure %q: %s at %s has no argument path", p.Name, c.Callee, c.Span)
			}
			fa.addMutex(p.Name, *c.Args[0].Path)
		case fa.prims.Init, fa.prims.Destroy:
			if len(c.Args) > 0 && c.Args[0].Path != nil {
				if popped, _, ok := c.Args[0].Path.Pop(); ok {
					fa.initDestroy[p.Name] = appendPath(fa.initDestroy[p.Name], popped)
				}
			}
		case fa.prims.ThreadCreate:
			if entry, ok := fa.threadTarget(c); ok {
				fa.threadEntries[entry] = true
			}
		default:
			if _, user := fa.procs[c.Callee]; user && !edges[c.Callee] {
				edges[c.Callee] = true
				fa.callGraph[p.Name] = append(fa.callGraph[p.Name], c.Callee)
			}
		}
		for _, a := range c.Args {
			if a.Path != nil {
				fa.argsPerType[a.Type] = appendPath(fa.argsPerType[a.Type], *a.Path)
			}
		}
	}

	for _, acc := range p.Accesses {
		if acc.Path.IsVariable() && !fa.globals[acc.Path.Base] {
			continue
		}
		fa.accesses[p.Name] = append(fa.accesses[p.Name], acc)
	}

	if len(p.PathTypes) > 0 {
		fa.pathTypes[p.Name] = p.PathTypes
	}
	return nil
}

// threadTarget resolves the start-routine argument of a thread-create
// call to a user procedure. The front end may wrap the function pointer
// in casts and an address-of; the path, when present, survives them.
func (fa *facts) threadTarget(c *ir.Call) (string, bool) {
	if len(c.Args) < 3 {
		return "", false
	}
	arg := c.Args[2]
	name := arg.Text
	if arg.Path != nil && arg.Path.IsVariable() {
		name = arg.Path.Base
	}
	name = strings.TrimPrefix(name, "&")
	_, ok := fa.procs[name]
	return name, ok
}

// addMutex records a lock/unlock operand path under the procedure,
// deduplicated.
func (fa *facts) addMutex(proc string, m ir.Path) {
	fa.mutexes[proc] = appendPath(fa.mutexes[proc], m)
}

// appendPath appends p to ps unless an equal path is already present.
func appendPath(ps []ir.Path, p ir.Path) []ir.Path {
	for _, q := range ps {
		if q.Equal(p) {
			return ps
		}
	}
	return append(ps, p)
}

// typeOf looks up the pointee type of a path inside a procedure.
func (fa *facts) typeOf(proc string, p ir.Path) (string, bool) {
	types, ok := fa.pathTypes[proc]
	if !ok {
		return "", false
	}
	t, ok := types[p.String()]
	return t, ok
}
