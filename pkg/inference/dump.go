package inference

import (
	"fmt"
	"io"
	"strings"

	"github.com/willf/bitset"
)

// dumpSummaries writes one line per procedure after the fixed point:
// name, entry, node, and ret sets, the inherited propagation set, the
// per-callee propagation sets, and the per-access held sets.
// Informational only.
func dumpSummaries(w io.Writer, fa *facts, u *universe, sums map[string]*funcSummary) {
	for _, name := range fa.procNames {
		s := sums[name]
		callees := make([]string, 0, len(s.propagation))
		for _, pe := range s.propagation {
			callees = append(callees, fmt.Sprintf("%s:%s", pe.callee, setString(u, pe.held)))
		}
		accs := make([]string, 0, len(s.access))
		for _, ar := range s.access {
			mode := "r"
			if ar.write {
				mode = "w"
			}
			accs = append(accs, fmt.Sprintf("%s:%s:%s", ar.path, setString(u, ar.held), mode))
		}
		fmt.Fprintf(w, "%s %s %s %s %s {%s} {%s}\n",
			name,
			setString(u, s.entry),
			setString(u, s.node),
			setString(u, s.ret),
			setString(u, s.propagationMutex),
			strings.Join(callees, " "),
			strings.Join(accs, " "))
	}
}

// setString renders a held set as its sorted path list.
func setString(u *universe, s *bitset.BitSet) string {
	return "[" + strings.Join(u.strings(s), " ") + "]"
}
