package bufchain

import (
	"io"
	"log"
	"sort"

	"github.com/edatools/debuffer/pkg/defnet"
	"github.com/edatools/debuffer/pkg/lef"
)

// Chain is a maximal buffer-only subpath: a chain-head net plus the ordered,
// depth-first list of interior nets it absorbs.
type Chain struct {
	Head     string
	Absorbed []string
}

// Trace walks every chain head in cls through its buffer instances
// (input pin -> output pin -> next net), transitively, returning one Chain
// per head. Buffer pins with INOUT direction are neither a start nor a
// continuation and are skipped. A net already visited on the current
// chain's walk is not revisited; a cycle logs a warning and that branch
// terminates there.
func Trace(nl *defnet.Netlist, lib lef.Library, cls *Classification, buffPrefix string, logger *log.Logger) ([]Chain, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	var chains []Chain

	// Deterministic order: NetOrder is the declaration order from the DEF
	// file, which golden-file tests depend on.
	for _, head := range nl.NetOrder {
		if !cls.ChainHeads[head] {
			continue
		}
		absorbed, err := traceFrom(nl, lib, buffPrefix, head, logger)
		if err != nil {
			return nil, err
		}
		chains = append(chains, Chain{Head: head, Absorbed: absorbed})
	}

	return chains, nil
}

// traceFrom performs the depth-first, left-to-right walk described in
// spec.md §4.4, starting from head, using an explicit stack of nets to
// visit rather than recursion (see spec's REDESIGN FLAG on recursion in
// the chain tracer). It is a standard iterative preorder-DFS: a net is
// appended to the absorbed list at the moment it is popped, and its own
// downstream nets are then pushed (in reverse) so the leftmost one is
// visited next. A net is marked visited when it is pushed, so when every
// net is reachable along one path only the order is the one a naive
// recursive walk would produce; a net reached again along a second path
// is skipped with the cycle warning and keeps its first position.
func traceFrom(nl *defnet.Netlist, lib lef.Library, buffPrefix, head string, logger *log.Logger) ([]string, error) {
	var absorbed []string
	visited := map[string]bool{head: true}
	stack := []string{head}

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if current != head {
			absorbed = append(absorbed, current)
		}

		n, ok := nl.Nets[current]
		if !ok {
			continue
		}

		var children []string
		for _, ep := range n.Endpoints {
			if ep.Port || !IsBuffer(ep.Instance, buffPrefix) {
				continue
			}
			inst := nl.Instances[ep.Instance]
			if inst == nil {
				return nil, &UnknownInstanceError{Net: current, Instance: ep.Instance}
			}
			dir, ok := lib.Direction(inst.CellType, ep.Pin)
			if !ok {
				return nil, &UnknownCellTypeError{Instance: ep.Instance, CellType: inst.CellType}
			}
			if dir != lef.Input {
				// OUTPUT pins are the continuation target, not a start;
				// INOUT pins are skipped per spec.
				continue
			}

			outputPins := sortedOutputPins(lib[inst.CellType])
			outputCount := 0
			for _, pin := range outputPins {
				nextNet, ok := nl.Endpoint(ep.Instance, pin)
				if !ok {
					continue
				}
				outputCount++
				if outputCount > 1 {
					logger.Printf("bufchain: WARNING buffer %s on net %s has multiple OUTPUT pins; merge may have more than one driver", ep.Instance, current)
				}
				if visited[nextNet] {
					logger.Printf("bufchain: WARNING cycle detected at net %s while tracing from %s; stopping this branch", nextNet, current)
					continue
				}
				visited[nextNet] = true
				children = append(children, nextNet)
			}
		}

		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}

	return absorbed, nil
}

// sortedOutputPins returns macro's OUTPUT pin names in a stable, sorted
// order, since Go map iteration order is not itself deterministic and the
// tracer's output must be for golden-file testing.
func sortedOutputPins(macro lef.Macro) []string {
	var pins []string
	for pin, dir := range macro {
		if dir == lef.Output {
			pins = append(pins, pin)
		}
	}
	sort.Strings(pins)
	return pins
}
