// Package inference implements whole-program lock inference: it computes,
// at each memory access, the set of mutexes provably held, and from those
// facts derives which mutex protects which shared datum. The result drives
// a downstream rewriter that embeds each datum inside its guarding mutex.
//
// The engine runs in fixed phases: fact collection over every procedure,
// mutex-universe construction closed under parameter substitution, two
// intraprocedural must-analyses per procedure (live guards backward,
// available guards forward), function summaries in callee-first order over
// the call-graph condensation, an interprocedural fixed point narrowing
// each procedure's inherited guards, and finally datum classification.
package inference

import (
	"io"
	"os"

	"github.com/akerouanton/lockinfer/pkg/ir"
)

// Primitives names the lock-API calls the engine recognizes. These are
// call names (values), not types; calls to any other name are ordinary
// calls.
type Primitives struct {
	Lock         string
	Unlock       string
	Init         string
	Destroy      string
	ThreadCreate string
}

// DefaultPrimitives returns the pthread naming emitted by the C front end.
func DefaultPrimitives() Primitives {
	return Primitives{
		Lock:         "pthread_mutex_lock",
		Unlock:       "pthread_mutex_unlock",
		Init:         "pthread_mutex_init",
		Destroy:      "pthread_mutex_destroy",
		ThreadCreate: "pthread_create",
	}
}

// defaultMutexType is the type name whose presence in a struct field marks
// the field as a mutex.
const defaultMutexType = "pthread_mutex_t"

// Config carries the engine's explicit configuration. The zero value
// selects the pthread primitives, the pthread mutex type, and no verbose
// output.
type Config struct {
	Primitives Primitives
	// MutexType is the substring identifying mutex-typed struct fields.
	MutexType string
	// Verbose enables a human-readable dump of every procedure's summary
	// after the interprocedural fixed point.
	Verbose bool
	// Out receives the verbose dump. Defaults to standard output.
	Out io.Writer
}

// FunctionMutexes is the per-procedure slice of the result: the guards
// held on entry, somewhere inside, and on exit, each extended by the
// guards every caller chain is known to hold. Elements are access-path
// strings in lexicographic order.
type FunctionMutexes struct {
	Entry []string
	Node  []string
	Ret   []string
}

// Summary is the engine's output: the three datum→mutex maps consumed by
// the rewriter plus the per-procedure held-guard context.
type Summary struct {
	// MutexMap maps a scalar global to the global mutex guarding it.
	MutexMap map[string]string
	// ArrayMutexMap maps an array of globals to the sibling mutex array
	// whose element at the same index guards each element.
	ArrayMutexMap map[string]string
	// StructMutexMap maps a struct type to, per protected field, the
	// mutex field of the same struct guarding it.
	StructMutexMap map[string]map[string]string
	// FunctionMap maps each procedure to its held-guard context.
	FunctionMap map[string]FunctionMutexes
}

// Run executes the analysis on prog and returns the inferred mappings.
// The computation is single-threaded and runs to completion; errors are
// returned only for incoherent input (malformed CFGs, missing lock
// operands, recursion, unrecoverable classification prefixes) or
// violated internal invariants.
func Run(prog *ir.Program, cfg Config) (*Summary, error) {
	if cfg.Primitives == (Primitives{}) {
		cfg.Primitives = DefaultPrimitives()
	}
	if cfg.MutexType == "" {
		cfg.MutexType = defaultMutexType
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}

	fa, err := collectFacts(prog, cfg)
	if err != nil {
		return nil, err
	}

	u := buildUniverse(fa)

	sums, order, err := computeSummaries(fa, u)
	if err != nil {
		return nil, err
	}

	if err := propagate(fa, u, sums, order); err != nil {
		return nil, err
	}

	if cfg.Verbose {
		dumpSummaries(cfg.Out, fa, u, sums)
	}

	return classify(fa, u, sums)
}
