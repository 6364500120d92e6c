package engine

import (
	"github.com/vsariola/soitin"
)

type (
	// runGraph is the immutable compiled form of a Graph that the audio
	// path executes. It is built on the control path, published with one
	// atomic pointer store and picked up by the scheduler at a block
	// boundary, so every block sees exactly one consistent graph.
	runGraph struct {
		gen   uint64
		nodes []runNode
		index map[soitin.ModuleID]*instance // lock-free param write lookups
		outs  []outNode
	}

	runNode struct {
		inst  *instance
		feeds []feed
	}

	// feed routes one source output buffer into one destination input port.
	// Ports are resolved to within-kind indices at compile time so the hot
	// path does no name lookups.
	feed struct {
		src     *instance
		srcPort int
		dstPort int
		kind    soitin.PortKind
	}

	// outNode is an instance of the reserved "out" type; the scheduler
	// mixes its routed inputs into the master bus.
	outNode struct {
		inst     *instance
		gainIdx  int
		leftIdx  int
		rightIdx int
	}
)

// compile flattens the graph into processing order with all routing
// resolved. Cables feeding one audio input sum in patch order; Validate
// has already ensured a control input has at most one cable.
func (g *Graph) compile(gen uint64) *runGraph {
	order := g.TopoOrder()
	rg := &runGraph{
		gen:   gen,
		nodes: make([]runNode, 0, len(order)),
		index: make(map[soitin.ModuleID]*instance, len(order)),
	}
	for _, id := range order {
		inst := g.instances[id]
		node := runNode{inst: inst}
		for _, c := range g.cables {
			if c.To != id {
				continue
			}
			src := g.instances[c.From]
			kind, srcPort, ok := src.typ.FindOutput(c.FromPort)
			if !ok {
				continue // Validate has already rejected this
			}
			_, dstPort, ok := inst.typ.FindInput(c.ToPort)
			if !ok {
				continue
			}
			node.feeds = append(node.feeds, feed{src: src, srcPort: srcPort, dstPort: dstPort, kind: kind})
		}
		rg.nodes = append(rg.nodes, node)
		rg.index[id] = inst
		if inst.typ.Name == soitin.OutType {
			_, leftIdx, _ := inst.typ.FindInput("left")
			_, rightIdx, _ := inst.typ.FindInput("right")
			rg.outs = append(rg.outs, outNode{
				inst:     inst,
				gainIdx:  inst.typ.ParamIndex("gain"),
				leftIdx:  leftIdx,
				rightIdx: rightIdx,
			})
		}
	}
	return rg
}
