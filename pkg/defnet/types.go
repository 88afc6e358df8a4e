// Package defnet ingests a placed DEF netlist into an immutable graph of
// instances, nets, and pin references, and exposes the instance->pin->net
// index the buffer-chain tracer needs.
package defnet

// PortSentinel is the literal DEF instance name that denotes a top-level
// design port rather than a placed cell instance.
const PortSentinel = "PIN"

// PinRef is one endpoint on a net: either a pin on a placed cell instance, or
// a top-level design port. Tagging the variant explicitly (rather than
// comparing the instance name against the literal "PIN" at every call site)
// makes the PIN/cell distinction part of the type instead of a string
// convention.
type PinRef struct {
	Instance string // cell instance name; PortSentinel when Port is true
	Pin      string
	Port     bool // true iff this endpoint is a top-level design port
}

// IsPort reports whether this endpoint is the PIN sentinel rather than a
// cell instance.
func (p PinRef) IsPort() bool {
	return p.Port
}

// Instance is a placed cell in the design.
type Instance struct {
	Name     string
	CellType string
}

// Net is a named electrical node with an ordered list of endpoints.
type Net struct {
	Name      string
	Endpoints []PinRef
}

// Netlist is the immutable, read-only graph produced by ingest and consumed
// by the classifier, tracer, and rewriter. It replaces the aliased mutable
// maps threaded through the original implementation with a single value
// passed by reference.
type Netlist struct {
	// Instances maps instance name to its populated record.
	Instances map[string]*Instance

	// NetOrder preserves the order nets were first declared in the DEF file,
	// needed for deterministic, byte-consistent rewriting.
	NetOrder []string

	// Nets maps net name to its record.
	Nets map[string]*Net

	// InstancePinNet is the auxiliary instance->pin->net index required by
	// the tracer to cross a buffer from its input pin to its output pin(s)
	// in O(1). Keyed by instance name; PortSentinel has its own entry for
	// PIN-pin lookups, though the tracer never needs to cross through a
	// port.
	InstancePinNet map[string]map[string]string

	// ExpectedComponents and ExpectedNets are the declared counts from the
	// COMPONENTS <n> / NETS <n> lines; the rewriter back-patches against
	// these, not the observed counts (spec: declared count is authoritative).
	ExpectedComponents int
	ExpectedNets       int
}

// NewNetlist returns an empty, ready-to-populate Netlist.
func NewNetlist() *Netlist {
	return &Netlist{
		Instances:      make(map[string]*Instance),
		Nets:           make(map[string]*Net),
		InstancePinNet: make(map[string]map[string]string),
	}
}

// Endpoint returns the net name connected to instance/pin, if any.
func (nl *Netlist) Endpoint(instance, pin string) (string, bool) {
	pins, ok := nl.InstancePinNet[instance]
	if !ok {
		return "", false
	}
	net, ok := pins[pin]
	return net, ok
}
