package inference

import (
	"sort"

	"golang.org/x/tools/container/intsets"
)

// threadReachable returns the set of procedure indices transitively
// reachable from any thread-entry procedure, or nil when the program
// spawns no thread. A nil result means the reachability filter is
// skipped and the analysis reports the sequential baseline.
func threadReachable(fa *facts) *intsets.Sparse {
	if len(fa.threadEntries) == 0 {
		return nil
	}

	entries := make([]string, 0, len(fa.threadEntries))
	for name := range fa.threadEntries {
		entries = append(entries, name)
	}
	sort.Strings(entries)

	var reach intsets.Sparse
	queue := make([]string, 0, len(entries))
	for _, name := range entries {
		reach.Insert(fa.procIdx[name])
		queue = append(queue, name)
	}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		for _, callee := range fa.callGraph[name] {
			if reach.Insert(fa.procIdx[callee]) {
				queue = append(queue, callee)
			}
		}
	}
	return &reach
}
