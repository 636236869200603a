// Package ir defines the contract between the front end and the
// lock-inference engine: symbolic access paths, source spans, and the
// per-procedure control-flow graph with its access annotations. The
// package is pure data; how the front end produced it is not assumed.
package ir

// Param is a procedure parameter. Type is the name of the pointee type:
// the front end strips pointer wrappers before reporting it, so a
// parameter declared as *S arrives with Type "S".
type Param struct {
	Name string
	Type string
}

// Arg is one actual argument at a call site. Text is the argument's
// source form, Type its pointee type name, and Path its access path when
// one is derivable (nil otherwise, e.g. for literals).
type Arg struct {
	Text string
	Type string
	Path *Path
}

// Call is a call terminator. Calls are the only instructions that can
// change the held-guard set, so the front end always terminates a basic
// block at a call.
type Call struct {
	Callee string
	Args   []Arg
	Span   Span
}

// Stmt is a non-call statement. Statements carry no flow facts of their
// own; their spans attach access records to program points.
type Stmt struct {
	Span Span
}

// Block is a basic block: zero or more statements, an optional call
// terminator, and successor block indices. A block without successors is
// terminal.
type Block struct {
	Stmts []Stmt
	Call  *Call
	Succs []int
}

// Access records one memory access observed by the front end: the source
// span of the expression, the location it resolves to, and whether the
// expression is the target of an assignment.
type Access struct {
	Span  Span
	Path  Path
	Write bool
}

// Proc is one user-defined procedure. Blocks[0] is the entry block and
// the last block is the exit. PathTypes maps the string form of every
// access path that appears in the body (including all of its prefixes)
// to its pointee type name; the struct classifier walks it.
type Proc struct {
	Name      string
	Params    []Param
	Blocks    []Block
	Accesses  []Access
	PathTypes map[string]string
}

// Param returns the index of the named parameter, if any.
func (p *Proc) Param(name string) (int, bool) {
	for i, prm := range p.Params {
		if prm.Name == name {
			return i, true
		}
	}
	return 0, false
}

// FieldDecl is one field of a struct layout.
type FieldDecl struct {
	Name string
	Type string
}

// StructLayout is a struct declaration as reported by the front end.
type StructLayout struct {
	Name   string
	Fields []FieldDecl
}

// Program is the whole-program input to the engine.
type Program struct {
	Procs   []*Proc
	Structs []StructLayout
	// Globals lists module-level items with static storage. Accesses
	// through these names are shared data; accesses through other bare
	// variables are procedure-local and ignored.
	Globals []string
	// ThreadEntries optionally names additional thread-entry procedures
	// beyond those discovered at thread-create call sites.
	ThreadEntries []string
}
