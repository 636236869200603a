package inference_test

import (
	"github.com/akerouanton/lockinfer/pkg/inference"
	"github.com/akerouanton/lockinfer/pkg/ir"
)

var prims = inference.DefaultPrimitives()

const mutexType = "pthread_mutex_t"

// procBuilder assembles a straight-line procedure one block per
// operation, the way the front end shapes its CFGs: calls terminate
// blocks, accesses sit in statement-only blocks, and a trailing empty
// block is the exit. Spans are synthetic and strictly increasing.
type procBuilder struct {
	proc *ir.Proc
	next int
}

func newProc(name string, params ...ir.Param) *procBuilder {
	return &procBuilder{proc: &ir.Proc{
		Name:      name,
		Params:    params,
		PathTypes: make(map[string]string),
	}}
}

func (b *procBuilder) span() ir.Span {
	b.next += 2
	return ir.Span{Lo: b.next, Hi: b.next + 1}
}

// typ records the pointee type of a path, as the front end annotates it.
func (b *procBuilder) typ(path, typeName string) *procBuilder {
	b.proc.PathTypes[path] = typeName
	return b
}

func (b *procBuilder) block(blk ir.Block) *procBuilder {
	b.proc.Blocks = append(b.proc.Blocks, blk)
	return b
}

func (b *procBuilder) lock(m ir.Path) *procBuilder   { return b.prim(prims.Lock, m) }
func (b *procBuilder) unlock(m ir.Path) *procBuilder { return b.prim(prims.Unlock, m) }

func (b *procBuilder) prim(callee string, m ir.Path) *procBuilder {
	p := m.Clone()
	return b.block(ir.Block{Call: &ir.Call{
		Callee: callee,
		Args:   []ir.Arg{{Text: "&" + p.String(), Type: mutexType, Path: &p}},
		Span:   b.span(),
	}})
}

func (b *procBuilder) call(callee string, args ...ir.Arg) *procBuilder {
	return b.block(ir.Block{Call: &ir.Call{Callee: callee, Args: args, Span: b.span()}})
}

func (b *procBuilder) spawn(entry string) *procBuilder {
	return b.block(ir.Block{Call: &ir.Call{
		Callee: prims.ThreadCreate,
		Args:   []ir.Arg{{Text: "&tid"}, {Text: "NULL"}, {Text: entry}},
		Span:   b.span(),
	}})
}

func (b *procBuilder) write(p ir.Path) *procBuilder { return b.access(p, true) }
func (b *procBuilder) read(p ir.Path) *procBuilder  { return b.access(p, false) }

func (b *procBuilder) access(p ir.Path, write bool) *procBuilder {
	sp := b.span()
	b.proc.Accesses = append(b.proc.Accesses, ir.Access{Span: sp, Path: p, Write: write})
	return b.block(ir.Block{Stmts: []ir.Stmt{{Span: sp}}})
}

// build appends the exit block and links the blocks linearly.
func (b *procBuilder) build() *ir.Proc {
	b.block(ir.Block{})
	for i := 0; i < len(b.proc.Blocks)-1; i++ {
		b.proc.Blocks[i].Succs = []int{i + 1}
	}
	return b.proc
}

func argOf(p ir.Path, typeName string) ir.Arg {
	q := p.Clone()
	return ir.Arg{Text: "&" + q.String(), Type: typeName, Path: &q}
}

// structS is the S { mu, data } layout most struct tests share.
func structS() ir.StructLayout {
	return ir.StructLayout{Name: "S", Fields: []ir.FieldDecl{
		{Name: "mu", Type: "pthread_mutex_t"},
		{Name: "data", Type: "int"},
	}}
}
