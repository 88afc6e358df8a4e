// Package bufchain classifies buffered nets as chain heads or interior
// segments and traces each chain head through its buffer instances to the
// set of interior nets it absorbs.
package bufchain

import (
	"io"
	"log"
	"strings"

	"github.com/edatools/debuffer/pkg/defnet"
	"github.com/edatools/debuffer/pkg/lef"
)

// IsBuffer reports whether instance is a buffer under the given prefix.
func IsBuffer(instance, prefix string) bool {
	return strings.HasPrefix(instance, prefix)
}

// Classification holds the result of the buffer-net classification pass:
// every buffered net, split into chain heads and interior segments.
type Classification struct {
	ChainHeads map[string]bool
	Interior   map[string]bool
}

// Classify marks every net touched by a buffer instance as buffered, then
// distinguishes chain-head nets (driven by a non-buffer OUTPUT) from
// interior nets (every non-buffer endpoint, if any, is an input).
//
// An unknown cell type referenced by a non-port, non-buffer endpoint is a
// fatal error: the tracer cannot resolve that endpoint's pin direction.
func Classify(nl *defnet.Netlist, lib lef.Library, buffPrefix string, logger *log.Logger) (*Classification, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	buffered := make(map[string]bool)
	for name, net := range nl.Nets {
		for _, ep := range net.Endpoints {
			if ep.Port {
				continue
			}
			if IsBuffer(ep.Instance, buffPrefix) {
				buffered[name] = true
				break
			}
		}
	}

	result := &Classification{
		ChainHeads: make(map[string]bool),
		Interior:   make(map[string]bool),
	}

	for name := range buffered {
		net := nl.Nets[name]
		isHead := false
		for _, ep := range net.Endpoints {
			if ep.Port {
				// Insufficient evidence: a PIN endpoint alone never makes a
				// net a chain head.
				continue
			}
			if IsBuffer(ep.Instance, buffPrefix) {
				continue
			}
			inst, ok := nl.Instances[ep.Instance]
			if !ok {
				return nil, &UnknownInstanceError{Net: name, Instance: ep.Instance}
			}
			dir, ok := lib.Direction(inst.CellType, ep.Pin)
			if !ok {
				return nil, &UnknownCellTypeError{Instance: ep.Instance, CellType: inst.CellType}
			}
			if dir == lef.Output {
				isHead = true
				break
			}
		}
		if isHead {
			result.ChainHeads[name] = true
		} else {
			result.Interior[name] = true
		}
	}

	logger.Printf("bufchain: %d/%d nets buffered, %d chain heads, %d interior",
		len(buffered), len(nl.Nets), len(result.ChainHeads), len(result.Interior))

	return result, nil
}

// UnknownCellTypeError is returned when an instance's cell type has no entry
// in the macro table, or that entry has no direction for the endpoint's pin;
// the tracer cannot resolve that endpoint's direction.
type UnknownCellTypeError struct {
	Instance string
	CellType string
}

func (e *UnknownCellTypeError) Error() string {
	return "bufchain: instance " + e.Instance + " has unknown cell type " + e.CellType
}

// UnknownInstanceError is returned when a net references an instance that
// never appeared in the COMPONENTS section (and is not the PIN sentinel),
// violating the ingest invariant the tracer depends on.
type UnknownInstanceError struct {
	Net      string
	Instance string
}

func (e *UnknownInstanceError) Error() string {
	return "bufchain: net " + e.Net + " references unlisted instance " + e.Instance
}
