package bufchain

import (
	"bytes"
	"log"
	"strings"
	"testing"

	"github.com/edatools/debuffer/pkg/defnet"
	"github.com/edatools/debuffer/pkg/lef"
)

// buildChainNetlist wires head -> FE1 -> mid -> FE2 -> tail, a 2-buffer chain
// with a non-buffer driver on head and a non-buffer load on tail.
func buildChainNetlist() (*defnet.Netlist, lef.Library) {
	nl := defnet.NewNetlist()
	nl.Instances["U1"] = &defnet.Instance{Name: "U1", CellType: "NAND2"}
	nl.Instances["FE1"] = &defnet.Instance{Name: "FE1", CellType: "BUF"}
	nl.Instances["FE2"] = &defnet.Instance{Name: "FE2", CellType: "BUF"}
	nl.Instances["U2"] = &defnet.Instance{Name: "U2", CellType: "NAND2"}

	head := &defnet.Net{Name: "head", Endpoints: []defnet.PinRef{
		{Instance: "U1", Pin: "O"},
		{Instance: "FE1", Pin: "I"},
	}}
	mid := &defnet.Net{Name: "mid", Endpoints: []defnet.PinRef{
		{Instance: "FE1", Pin: "O"},
		{Instance: "FE2", Pin: "I"},
	}}
	tail := &defnet.Net{Name: "tail", Endpoints: []defnet.PinRef{
		{Instance: "FE2", Pin: "O"},
		{Instance: "U2", Pin: "A"},
	}}
	nl.Nets["head"] = head
	nl.Nets["mid"] = mid
	nl.Nets["tail"] = tail
	nl.NetOrder = []string{"head", "mid", "tail"}

	for _, n := range []string{"head", "mid", "tail"} {
		for _, ep := range nl.Nets[n].Endpoints {
			if _, ok := nl.InstancePinNet[ep.Instance]; !ok {
				nl.InstancePinNet[ep.Instance] = make(map[string]string)
			}
			nl.InstancePinNet[ep.Instance][ep.Pin] = n
		}
	}

	lib := lef.Library{
		"NAND2": lef.Macro{"A": lef.Input, "O": lef.Output},
		"BUF":   lef.Macro{"I": lef.Input, "O": lef.Output},
	}
	return nl, lib
}

func TestTraceThreeBufferChain(t *testing.T) {
	nl, lib := buildChainNetlist()
	// Extend the chain with one more buffer: tail becomes interior, add tail2.
	nl.Instances["FE3"] = &defnet.Instance{Name: "FE3", CellType: "BUF"}
	nl.Instances["U3"] = &defnet.Instance{Name: "U3", CellType: "NAND2"}
	nl.Nets["tail"].Endpoints = []defnet.PinRef{
		{Instance: "FE2", Pin: "O"},
		{Instance: "FE3", Pin: "I"},
	}
	tail2 := &defnet.Net{Name: "tail2", Endpoints: []defnet.PinRef{
		{Instance: "FE3", Pin: "O"},
		{Instance: "U3", Pin: "A"},
	}}
	nl.Nets["tail2"] = tail2
	nl.NetOrder = append(nl.NetOrder, "tail2")
	for _, ep := range tail2.Endpoints {
		if _, ok := nl.InstancePinNet[ep.Instance]; !ok {
			nl.InstancePinNet[ep.Instance] = make(map[string]string)
		}
		nl.InstancePinNet[ep.Instance][ep.Pin] = "tail2"
	}
	nl.InstancePinNet["FE2"]["O"] = "tail"
	nl.InstancePinNet["FE3"] = map[string]string{"I": "tail", "O": "tail2"}

	cls, err := Classify(nl, lib, "FE", nil)
	if err != nil {
		t.Fatalf("Classify returned error: %v", err)
	}
	chains, err := Trace(nl, lib, cls, "FE", nil)
	if err != nil {
		t.Fatalf("Trace returned error: %v", err)
	}
	if len(chains) != 1 {
		t.Fatalf("got %d chains, want 1", len(chains))
	}
	c := chains[0]
	if c.Head != "head" {
		t.Errorf("chain head = %q, want head", c.Head)
	}
	want := []string{"mid", "tail", "tail2"}
	if !stringsEqual(c.Absorbed, want) {
		t.Errorf("absorbed = %v, want %v", c.Absorbed, want)
	}
}

func TestTraceFanOutBuffer(t *testing.T) {
	// head -> FE1 has two OUTPUT pins (O1, O2), each feeding its own net.
	nl := defnet.NewNetlist()
	nl.Instances["U1"] = &defnet.Instance{Name: "U1", CellType: "NAND2"}
	nl.Instances["FE1"] = &defnet.Instance{Name: "FE1", CellType: "FANBUF"}
	nl.Instances["U2"] = &defnet.Instance{Name: "U2", CellType: "NAND2"}
	nl.Instances["U3"] = &defnet.Instance{Name: "U3", CellType: "NAND2"}

	head := &defnet.Net{Name: "head", Endpoints: []defnet.PinRef{{Instance: "U1", Pin: "O"}, {Instance: "FE1", Pin: "I"}}}
	branchA := &defnet.Net{Name: "branchA", Endpoints: []defnet.PinRef{{Instance: "FE1", Pin: "O1"}, {Instance: "U2", Pin: "A"}}}
	branchB := &defnet.Net{Name: "branchB", Endpoints: []defnet.PinRef{{Instance: "FE1", Pin: "O2"}, {Instance: "U3", Pin: "A"}}}
	nl.Nets["head"] = head
	nl.Nets["branchA"] = branchA
	nl.Nets["branchB"] = branchB
	nl.NetOrder = []string{"head", "branchA", "branchB"}
	for _, n := range []string{"head", "branchA", "branchB"} {
		for _, ep := range nl.Nets[n].Endpoints {
			if _, ok := nl.InstancePinNet[ep.Instance]; !ok {
				nl.InstancePinNet[ep.Instance] = make(map[string]string)
			}
			nl.InstancePinNet[ep.Instance][ep.Pin] = n
		}
	}

	lib := lef.Library{
		"NAND2":  lef.Macro{"A": lef.Input, "O": lef.Output},
		"FANBUF": lef.Macro{"I": lef.Input, "O1": lef.Output, "O2": lef.Output},
	}

	var logBuf bytes.Buffer
	logger := log.New(&logBuf, "", 0)

	cls, err := Classify(nl, lib, "FE", logger)
	if err != nil {
		t.Fatalf("Classify returned error: %v", err)
	}
	chains, err := Trace(nl, lib, cls, "FE", logger)
	if err != nil {
		t.Fatalf("Trace returned error: %v", err)
	}
	if len(chains) != 1 {
		t.Fatalf("got %d chains, want 1", len(chains))
	}
	want := []string{"branchA", "branchB"}
	if !stringsEqual(chains[0].Absorbed, want) {
		t.Errorf("absorbed = %v, want %v", chains[0].Absorbed, want)
	}
	if !strings.Contains(logBuf.String(), "multiple OUTPUT pins") {
		t.Errorf("expected a multiple-OUTPUT-pins warning, got log: %q", logBuf.String())
	}
}

func TestTraceCycleStopsAndWarns(t *testing.T) {
	// FE1.O feeds back into FE1.I's own net: a -> FE1 -> a.
	nl := defnet.NewNetlist()
	nl.Instances["FE1"] = &defnet.Instance{Name: "FE1", CellType: "BUF"}
	nl.Instances["U1"] = &defnet.Instance{Name: "U1", CellType: "NAND2"}

	a := &defnet.Net{Name: "a", Endpoints: []defnet.PinRef{
		{Instance: "U1", Pin: "O"},
		{Instance: "FE1", Pin: "I"},
		{Instance: "FE1", Pin: "O"},
	}}
	nl.Nets["a"] = a
	nl.NetOrder = []string{"a"}
	nl.InstancePinNet["FE1"] = map[string]string{"I": "a", "O": "a"}
	nl.InstancePinNet["U1"] = map[string]string{"O": "a"}

	lib := lef.Library{
		"NAND2": lef.Macro{"O": lef.Output},
		"BUF":   lef.Macro{"I": lef.Input, "O": lef.Output},
	}

	var logBuf bytes.Buffer
	logger := log.New(&logBuf, "", 0)

	cls, err := Classify(nl, lib, "FE", logger)
	if err != nil {
		t.Fatalf("Classify returned error: %v", err)
	}
	chains, err := Trace(nl, lib, cls, "FE", logger)
	if err != nil {
		t.Fatalf("Trace returned error: %v", err)
	}
	if len(chains) != 1 || len(chains[0].Absorbed) != 0 {
		t.Fatalf("chains = %+v, want one chain with no absorbed nets (self-loop)", chains)
	}
	if !strings.Contains(logBuf.String(), "cycle detected") {
		t.Errorf("expected a cycle warning, got log: %q", logBuf.String())
	}
}

func TestTraceSkipsInoutBufferPin(t *testing.T) {
	nl := defnet.NewNetlist()
	nl.Instances["U1"] = &defnet.Instance{Name: "U1", CellType: "NAND2"}
	nl.Instances["FE1"] = &defnet.Instance{Name: "FE1", CellType: "IOBUF"}

	head := &defnet.Net{Name: "head", Endpoints: []defnet.PinRef{
		{Instance: "U1", Pin: "O"},
		{Instance: "FE1", Pin: "IO"},
	}}
	nl.Nets["head"] = head
	nl.NetOrder = []string{"head"}
	nl.InstancePinNet["U1"] = map[string]string{"O": "head"}
	nl.InstancePinNet["FE1"] = map[string]string{"IO": "head"}

	lib := lef.Library{
		"NAND2": lef.Macro{"O": lef.Output},
		"IOBUF": lef.Macro{"IO": lef.Inout},
	}

	cls, err := Classify(nl, lib, "FE", nil)
	if err != nil {
		t.Fatalf("Classify returned error: %v", err)
	}
	chains, err := Trace(nl, lib, cls, "FE", nil)
	if err != nil {
		t.Fatalf("Trace returned error: %v", err)
	}
	if len(chains) != 1 || len(chains[0].Absorbed) != 0 {
		t.Errorf("chains = %+v, want one chain head with nothing absorbed (INOUT pin not traced)", chains)
	}
}

func TestTraceDeterministicOrder(t *testing.T) {
	nl, lib := buildChainNetlist()
	cls, err := Classify(nl, lib, "FE", nil)
	if err != nil {
		t.Fatalf("Classify returned error: %v", err)
	}

	first, err := Trace(nl, lib, cls, "FE", nil)
	if err != nil {
		t.Fatalf("Trace returned error: %v", err)
	}
	for i := 0; i < 20; i++ {
		next, err := Trace(nl, lib, cls, "FE", nil)
		if err != nil {
			t.Fatalf("Trace returned error: %v", err)
		}
		if !stringsEqual(chainHeads(first), chainHeads(next)) {
			t.Fatalf("chain head order differs across runs: %v vs %v", chainHeads(first), chainHeads(next))
		}
		for j := range first {
			if !stringsEqual(first[j].Absorbed, next[j].Absorbed) {
				t.Fatalf("absorbed order differs across runs: %v vs %v", first[j].Absorbed, next[j].Absorbed)
			}
		}
	}
}

func chainHeads(chains []Chain) []string {
	out := make([]string, len(chains))
	for i, c := range chains {
		out[i] = c.Head
	}
	return out
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

