package soitin

import (
	"fmt"
)

type (
	// ModuleID identifies one module instance within a patch. IDs are
	// assigned in creation order and never reused within a session, so they
	// double as the deterministic tie-break when ordering the graph.
	ModuleID int

	// Module is the serializable description of one module instance: its
	// type and its parameter values. Parameters missing from the map are at
	// their schema default.
	Module struct {
		ID     ModuleID           `yaml:"id"`
		Type   string             `yaml:"type"`
		Params map[string]float32 `yaml:",flow,omitempty"`
	}

	// Cable is the serializable description of one connection from an
	// output port to an input port.
	Cable struct {
		From     ModuleID `yaml:"from"`
		FromPort string   `yaml:"fromPort"`
		To       ModuleID `yaml:"to"`
		ToPort   string   `yaml:"toPort"`
	}

	// Patch is the serializable description of a whole signal graph: the
	// module instances and the cables between them. Several cables may
	// feed one audio input, where they sum; a control input takes at most
	// one cable.
	Patch struct {
		Modules []Module `yaml:",omitempty"`
		Cables  []Cable  `yaml:",omitempty"`
	}
)

// Copy makes a deep copy of a module description.
func (m *Module) Copy() Module {
	params := make(map[string]float32, len(m.Params))
	for k, v := range m.Params {
		params[k] = v
	}
	return Module{ID: m.ID, Type: m.Type, Params: params}
}

// Copy makes a deep copy of a patch.
func (p *Patch) Copy() Patch {
	modules := make([]Module, len(p.Modules))
	for i := range p.Modules {
		modules[i] = p.Modules[i].Copy()
	}
	cables := make([]Cable, len(p.Cables))
	copy(cables, p.Cables)
	return Patch{Modules: modules, Cables: cables}
}

// FindModule returns the index of the module with the given id, or -1.
func (p *Patch) FindModule(id ModuleID) int {
	for i := range p.Modules {
		if p.Modules[i].ID == id {
			return i
		}
	}
	return -1
}

// Validate checks that module IDs are unique and that every cable endpoint
// references a module present in the patch. Port existence and kind checks
// need the registry and happen when the patch is loaded into a graph.
func (p *Patch) Validate() error {
	seen := make(map[ModuleID]bool, len(p.Modules))
	for i := range p.Modules {
		id := p.Modules[i].ID
		if seen[id] {
			return fmt.Errorf("duplicate module id %d", id)
		}
		seen[id] = true
	}
	for _, c := range p.Cables {
		if !seen[c.From] {
			return fmt.Errorf("cable source references unknown module %d", c.From)
		}
		if !seen[c.To] {
			return fmt.Errorf("cable destination references unknown module %d", c.To)
		}
	}
	return nil
}
