package engine

import (
	"fmt"

	"github.com/vsariola/soitin"
)

// Graph is the build-side signal graph: module instances plus the cables
// between them, with a derived deterministic processing order. The graph is
// only ever touched by the control path; the audio path sees compiled,
// immutable run graphs (see compile.go). All structural edits keep the
// audio-rate subgraph acyclic; control-rate feedback is allowed and is
// delivered one block late.
type Graph struct {
	reg *soitin.Registry
	cfg soitin.Config

	nextID    soitin.ModuleID
	instances map[soitin.ModuleID]*instance
	created   []soitin.ModuleID // creation order, the scheduling tie-break
	cables    []soitin.Cable    // insertion order, the summing order for audio inputs

	topo      []soitin.ModuleID
	topoValid bool
}

func newGraph(reg *soitin.Registry, cfg soitin.Config) *Graph {
	return &Graph{
		reg:       reg,
		cfg:       cfg,
		nextID:    1,
		instances: make(map[soitin.ModuleID]*instance),
	}
}

// AddInstance creates a new instance of the named module type and returns
// its id.
func (g *Graph) AddInstance(typeName string) (soitin.ModuleID, error) {
	id := g.nextID
	if err := g.addInstanceWithID(id, typeName); err != nil {
		return 0, err
	}
	return id, nil
}

func (g *Graph) addInstanceWithID(id soitin.ModuleID, typeName string) error {
	if _, ok := g.instances[id]; ok {
		return fmt.Errorf("module id %d: %w", id, soitin.ErrNameConflict)
	}
	typ, ok := g.reg.Type(typeName)
	if !ok {
		return fmt.Errorf("unknown module type %q", typeName)
	}
	proc, err := g.reg.Instantiate(typeName, g.cfg)
	if err != nil {
		return err
	}
	g.instances[id] = newInstance(id, typ, proc, g.cfg.BlockSize)
	g.created = append(g.created, id)
	if id >= g.nextID {
		g.nextID = id + 1
	}
	g.topoValid = false
	return nil
}

// RemoveInstance removes an instance and, implicitly, all cables touching
// it.
func (g *Graph) RemoveInstance(id soitin.ModuleID) error {
	if _, ok := g.instances[id]; !ok {
		return fmt.Errorf("no module with id %d", id)
	}
	delete(g.instances, id)
	for i := range g.created {
		if g.created[i] == id {
			g.created = append(g.created[:i], g.created[i+1:]...)
			break
		}
	}
	kept := g.cables[:0:0]
	for _, c := range g.cables {
		if c.From != id && c.To != id {
			kept = append(kept, c)
		}
	}
	g.cables = kept
	g.topoValid = false
	return nil
}

// Connect adds a cable from an output port to an input port. It fails with
// ErrTypeMismatch if either port does not exist or their kinds differ, with
// ErrPortOccupied if the destination is a control input that already has a
// writer (control inputs take one writer; audio inputs sum any number), and
// with ErrCycleDetected if the cable would close a cycle through audio-rate
// ports.
func (g *Graph) Connect(from soitin.ModuleID, fromPort string, to soitin.ModuleID, toPort string) error {
	c := soitin.Cable{From: from, FromPort: fromPort, To: to, ToPort: toPort}
	kind, err := g.checkCable(c)
	if err != nil {
		return err
	}
	if kind == soitin.Audio && g.audioPathExists(to, from) {
		return fmt.Errorf("%v.%v -> %v.%v: %w", from, fromPort, to, toPort, soitin.ErrCycleDetected)
	}
	g.cables = append(g.cables, c)
	g.topoValid = false
	return nil
}

// checkCable validates one cable against the instance table and the
// existing cables, returning the signal kind it carries.
func (g *Graph) checkCable(c soitin.Cable) (soitin.PortKind, error) {
	src, ok := g.instances[c.From]
	if !ok {
		return 0, fmt.Errorf("no module with id %d", c.From)
	}
	dst, ok := g.instances[c.To]
	if !ok {
		return 0, fmt.Errorf("no module with id %d", c.To)
	}
	srcKind, _, ok := src.typ.FindOutput(c.FromPort)
	if !ok {
		return 0, fmt.Errorf("%s has no output %q: %w", src.typ.Name, c.FromPort, soitin.ErrTypeMismatch)
	}
	dstKind, _, ok := dst.typ.FindInput(c.ToPort)
	if !ok {
		return 0, fmt.Errorf("%s has no input %q: %w", dst.typ.Name, c.ToPort, soitin.ErrTypeMismatch)
	}
	if srcKind != dstKind {
		return 0, fmt.Errorf("%v output into %v input: %w", srcKind, dstKind, soitin.ErrTypeMismatch)
	}
	for _, old := range g.cables {
		if old == c {
			return 0, fmt.Errorf("duplicate cable: %w", soitin.ErrPortOccupied)
		}
		if srcKind == soitin.Control && old.To == c.To && old.ToPort == c.ToPort {
			return 0, fmt.Errorf("control input %v.%v: %w", c.To, c.ToPort, soitin.ErrPortOccupied)
		}
	}
	return srcKind, nil
}

// Disconnect removes the cable exactly matching the four endpoints.
func (g *Graph) Disconnect(from soitin.ModuleID, fromPort string, to soitin.ModuleID, toPort string) error {
	c := soitin.Cable{From: from, FromPort: fromPort, To: to, ToPort: toPort}
	for i := range g.cables {
		if g.cables[i] == c {
			g.cables = append(g.cables[:i], g.cables[i+1:]...)
			g.topoValid = false
			return nil
		}
	}
	return fmt.Errorf("no cable %v.%v -> %v.%v", from, fromPort, to, toPort)
}

// audioPathExists reports whether dst is reachable from src along
// audio-rate cables.
func (g *Graph) audioPathExists(src, dst soitin.ModuleID) bool {
	if src == dst {
		return true
	}
	visited := map[soitin.ModuleID]bool{src: true}
	stack := []soitin.ModuleID{src}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, c := range g.cables {
			if c.From != n || !g.cableIsAudio(c) || visited[c.To] {
				continue
			}
			if c.To == dst {
				return true
			}
			visited[c.To] = true
			stack = append(stack, c.To)
		}
	}
	return false
}

func (g *Graph) cableIsAudio(c soitin.Cable) bool {
	src, ok := g.instances[c.From]
	if !ok {
		return false
	}
	kind, _, ok := src.typ.FindOutput(c.FromPort)
	return ok && kind == soitin.Audio
}

// TopoOrder returns the processing order: a topological order over all
// cables, computed with Kahn's algorithm where ties are always broken by
// creation order, so identical graphs order identically. Control cables
// that are part of a control-rate feedback loop cannot be honored as
// ordering constraints; the loop is broken at its oldest member and the
// backwards cables deliver the previous block's value.
func (g *Graph) TopoOrder() []soitin.ModuleID {
	if g.topoValid {
		return g.topo
	}
	indegree := make(map[soitin.ModuleID]int, len(g.instances))
	for id := range g.instances {
		indegree[id] = 0
	}
	for _, c := range g.cables {
		indegree[c.To]++
	}
	remaining := make(map[soitin.ModuleID]bool, len(g.instances))
	for id := range g.instances {
		remaining[id] = true
	}
	order := make([]soitin.ModuleID, 0, len(g.instances))
	for len(order) < len(g.instances) {
		next := soitin.ModuleID(-1)
		// pick the earliest-created ready node; if none is ready all
		// remaining nodes are in control loops, so break the loop at the
		// earliest-created one
		for _, id := range g.created {
			if remaining[id] && indegree[id] == 0 {
				next = id
				break
			}
		}
		if next < 0 {
			for _, id := range g.created {
				if remaining[id] {
					next = id
					break
				}
			}
		}
		remaining[next] = false
		order = append(order, next)
		for _, c := range g.cables {
			if c.From == next && remaining[c.To] {
				indegree[c.To]--
			}
		}
	}
	g.topo = order
	g.topoValid = true
	return order
}

// Validate re-checks the whole graph: dangling cables, port existence and
// kind agreement, control-input single writers and audio-rate acyclicity.
// Run on every transaction commit before anything is published.
func (g *Graph) Validate() error {
	type inputKey struct {
		id   soitin.ModuleID
		port string
	}
	writers := make(map[soitin.Cable]bool, len(g.cables))
	controlIn := make(map[inputKey]bool)
	for _, c := range g.cables {
		kind, err := g.checkCableLoose(c)
		if err != nil {
			return err
		}
		if writers[c] {
			return fmt.Errorf("duplicate cable %v.%v -> %v.%v: %w", c.From, c.FromPort, c.To, c.ToPort, soitin.ErrPortOccupied)
		}
		writers[c] = true
		if kind == soitin.Control {
			key := inputKey{c.To, c.ToPort}
			if controlIn[key] {
				return fmt.Errorf("control input %v.%v has multiple writers: %w", c.To, c.ToPort, soitin.ErrPortOccupied)
			}
			controlIn[key] = true
		}
	}
	if err := g.checkAudioAcyclic(); err != nil {
		return err
	}
	return nil
}

// checkCableLoose is checkCable without the occupancy scan (Validate does
// that itself in one pass).
func (g *Graph) checkCableLoose(c soitin.Cable) (soitin.PortKind, error) {
	src, ok := g.instances[c.From]
	if !ok {
		return 0, fmt.Errorf("cable source references unknown module %d", c.From)
	}
	dst, ok := g.instances[c.To]
	if !ok {
		return 0, fmt.Errorf("cable destination references unknown module %d", c.To)
	}
	srcKind, _, ok := src.typ.FindOutput(c.FromPort)
	if !ok {
		return 0, fmt.Errorf("%s has no output %q: %w", src.typ.Name, c.FromPort, soitin.ErrTypeMismatch)
	}
	dstKind, _, ok := dst.typ.FindInput(c.ToPort)
	if !ok {
		return 0, fmt.Errorf("%s has no input %q: %w", dst.typ.Name, c.ToPort, soitin.ErrTypeMismatch)
	}
	if srcKind != dstKind {
		return 0, fmt.Errorf("%v output into %v input: %w", srcKind, dstKind, soitin.ErrTypeMismatch)
	}
	return srcKind, nil
}

func (g *Graph) checkAudioAcyclic() error {
	// Kahn over the audio-rate subgraph only
	indegree := make(map[soitin.ModuleID]int, len(g.instances))
	for id := range g.instances {
		indegree[id] = 0
	}
	for _, c := range g.cables {
		if g.cableIsAudio(c) {
			indegree[c.To]++
		}
	}
	queue := make([]soitin.ModuleID, 0, len(g.instances))
	for id, d := range indegree {
		if d == 0 {
			queue = append(queue, id)
		}
	}
	seen := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		seen++
		for _, c := range g.cables {
			if c.From != id || !g.cableIsAudio(c) {
				continue
			}
			indegree[c.To]--
			if indegree[c.To] == 0 {
				queue = append(queue, c.To)
			}
		}
	}
	if seen != len(g.instances) {
		return fmt.Errorf("audio-rate ports form a cycle: %w", soitin.ErrCycleDetected)
	}
	return nil
}

// CheckPatch validates a patch against the registry without instantiating
// any processors: unknown types, unknown params, bad cables, occupied
// control inputs and audio-rate cycles are all reported. This is the
// offline counterpart of what a transaction commit checks.
func CheckPatch(reg *soitin.Registry, p soitin.Patch) error {
	if err := p.Validate(); err != nil {
		return err
	}
	g := newGraph(reg, soitin.Config{})
	for _, m := range p.Modules {
		typ, ok := reg.Type(m.Type)
		if !ok {
			return fmt.Errorf("module %d: unknown module type %q", m.ID, m.Type)
		}
		for name := range m.Params {
			if typ.ParamIndex(name) < 0 {
				return fmt.Errorf("module %d: type %q has no param %q", m.ID, m.Type, name)
			}
		}
		g.instances[m.ID] = newInstance(m.ID, typ, nil, 0)
		g.created = append(g.created, m.ID)
	}
	g.cables = append([]soitin.Cable(nil), p.Cables...)
	return g.Validate()
}

// clone makes a structural copy of the graph for staging a transaction.
// Instance pointers are shared: a transaction never touches the processing
// state of surviving instances, it only rearranges the structure around
// them.
func (g *Graph) clone() *Graph {
	cp := &Graph{
		reg:       g.reg,
		cfg:       g.cfg,
		nextID:    g.nextID,
		instances: make(map[soitin.ModuleID]*instance, len(g.instances)),
		created:   append([]soitin.ModuleID(nil), g.created...),
		cables:    append([]soitin.Cable(nil), g.cables...),
	}
	for id, inst := range g.instances {
		cp.instances[id] = inst
	}
	return cp
}

// patch exports the serializable description of the graph, reading each
// parameter's last written target.
func (g *Graph) patch() soitin.Patch {
	p := soitin.Patch{
		Modules: make([]soitin.Module, 0, len(g.instances)),
		Cables:  append([]soitin.Cable(nil), g.cables...),
	}
	for _, id := range g.created {
		inst := g.instances[id]
		m := soitin.Module{ID: id, Type: inst.typ.Name, Params: make(map[string]float32, len(inst.typ.Params))}
		for i := range inst.typ.Params {
			v, _, _ := inst.slots[i].load()
			m.Params[inst.typ.Params[i].Name] = v
		}
		p.Modules = append(p.Modules, m)
	}
	return p
}
