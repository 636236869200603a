package inference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akerouanton/lockinfer/pkg/ir"
)

func TestCollectFactsCallGraph(t *testing.T) {
	m := ir.Variable("m")
	f := &ir.Proc{Name: "f", Blocks: link(
		callBlock("pthread_mutex_lock", ir.Span{Lo: 1, Hi: 2}, pathArg(m, "pthread_mutex_t")),
		callBlock("g", ir.Span{Lo: 3, Hi: 4}),
		callBlock("g", ir.Span{Lo: 5, Hi: 6}),
		callBlock("printf", ir.Span{Lo: 7, Hi: 8}),
	)}
	g := &ir.Proc{Name: "g", Blocks: link()}

	fa, err := collectFacts(&ir.Program{Procs: []*ir.Proc{f, g}}, testConfig())
	require.NoError(t, err)

	// Primitives and unknown callees contribute no edges; duplicates
	// collapse.
	assert.Equal(t, []string{"g"}, fa.callGraph["f"])
	assert.Empty(t, fa.callGraph["g"])
	require.Len(t, fa.mutexes["f"], 1)
	assert.True(t, fa.mutexes["f"][0].Equal(m))
}

func TestCollectFactsLocalAccessesDropped(t *testing.T) {
	span := func(n int) ir.Span { return ir.Span{Lo: n, Hi: n + 1} }
	p := &ir.Proc{
		Name: "f",
		Blocks: link(
			ir.Block{Stmts: []ir.Stmt{{Span: span(1)}, {Span: span(3)}, {Span: span(5)}}},
		),
		Accesses: []ir.Access{
			{Span: span(1), Path: ir.Variable("tmp"), Write: true},                  // local
			{Span: span(3), Path: ir.Variable("g"), Write: true},                    // global
			{Span: span(5), Path: ir.Variable("s").Push(ir.Field("f")), Write: false}, // projected
		},
	}

	fa, err := collectFacts(&ir.Program{Procs: []*ir.Proc{p}, Globals: []string{"g"}}, testConfig())
	require.NoError(t, err)

	require.Len(t, fa.accesses["f"], 2)
	assert.Equal(t, "g", fa.accesses["f"][0].Path.String())
	assert.Equal(t, "s.f", fa.accesses["f"][1].Path.String())
}

func TestCollectFactsThreadEntries(t *testing.T) {
	worker := &ir.Proc{Name: "worker", Blocks: link()}
	helper := &ir.Proc{Name: "helper", Blocks: link()}
	spawner := &ir.Proc{Name: "spawner", Blocks: link(
		callBlock("pthread_create", ir.Span{Lo: 1, Hi: 2},
			ir.Arg{Text: "&tid"}, ir.Arg{Text: "NULL"}, ir.Arg{Text: "&worker"}),
	)}

	fa, err := collectFacts(&ir.Program{
		Procs:         []*ir.Proc{worker, helper, spawner},
		ThreadEntries: []string{"helper", "absent"},
	}, testConfig())
	require.NoError(t, err)

	assert.True(t, fa.threadEntries["worker"], "resolved from the spawn site")
	assert.True(t, fa.threadEntries["helper"], "supplied by the host")
	assert.False(t, fa.threadEntries["absent"], "unknown names are dropped")
}

func TestCollectFactsInitDestroyRecorded(t *testing.T) {
	sMu := ir.Variable("s").Push(ir.Field("mu"))
	p := &ir.Proc{Name: "setup", Blocks: link(
		callBlock("pthread_mutex_init", ir.Span{Lo: 1, Hi: 2},
			pathArg(sMu, "pthread_mutex_t"), ir.Arg{Text: "NULL"}),
	)}

	fa, err := collectFacts(&ir.Program{Procs: []*ir.Proc{p}}, testConfig())
	require.NoError(t, err)

	// The operand is recorded with its final projection popped, and the
	// procedure registers no mutex operation.
	require.Len(t, fa.initDestroy["setup"], 1)
	assert.Equal(t, "s", fa.initDestroy["setup"][0].String())
	assert.Empty(t, fa.mutexes["setup"])
}

func TestCollectFactsStructMutexIndex(t *testing.T) {
	fa, err := collectFacts(&ir.Program{
		Structs: []ir.StructLayout{
			{Name: "S", Fields: []ir.FieldDecl{
				{Name: "mu", Type: "pthread_mutex_t"},
				{Name: "aux", Type: "pthread_mutex_t*"},
				{Name: "data", Type: "int"},
			}},
			{Name: "Plain", Fields: []ir.FieldDecl{{Name: "n", Type: "long"}}},
		},
	}, testConfig())
	require.NoError(t, err)

	assert.Equal(t, map[string]bool{"mu": true, "aux": true}, fa.structMutexes["S"])
	_, ok := fa.structMutexes["Plain"]
	assert.False(t, ok)
}

func TestCollectFactsRejectsBadSuccessor(t *testing.T) {
	p := &ir.Proc{Name: "f", Blocks: []ir.Block{{Succs: []int{7}}}}
	_, err := collectFacts(&ir.Program{Procs: []*ir.Proc{p}}, testConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "successor")
}

func TestCollectFactsArgsPerType(t *testing.T) {
	s := ir.Variable("s")
	q := ir.Variable("q")
	p := &ir.Proc{Name: "f", Blocks: link(
		callBlock("unknown_fn", ir.Span{Lo: 1, Hi: 2}, pathArg(s, "S"), ir.Arg{Text: "1", Type: "int"}),
		callBlock("other_fn", ir.Span{Lo: 3, Hi: 4}, pathArg(q, "S"), pathArg(s, "S")),
	)}

	fa, err := collectFacts(&ir.Program{Procs: []*ir.Proc{p}}, testConfig())
	require.NoError(t, err)

	// Every call contributes, even to unknown callees; pathless
	// arguments do not.
	require.Len(t, fa.argsPerType["S"], 2)
	assert.True(t, fa.argsPerType["S"][0].Equal(s))
	assert.True(t, fa.argsPerType["S"][1].Equal(q))
	assert.Empty(t, fa.argsPerType["int"])
}
