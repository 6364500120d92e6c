// Package soitin contains the domain model of a live-performance modular
// audio runtime: module types with typed ports and parameters, patches
// describing module instances and the cables between them, and scenes that
// snapshot a patch for later recall. The runtime that actually processes
// audio lives in the engine package; this package has no goroutines and no
// processing state of its own.
package soitin

import (
	"fmt"
)

type (
	// PortKind tells whether a port carries audio-rate or control-rate
	// signal. Audio ports carry one buffer of samples per block; control
	// ports carry a single value per block.
	PortKind int

	// Port is one input or output of a module type.
	Port struct {
		Name string
		Kind PortKind `yaml:"kind"`
	}

	// Param documents one parameter that a module takes. Parameters are
	// block-rate: the runtime applies the latest written value at the start
	// of each block.
	Param struct {
		Name    string
		Min     float32
		Max     float32
		Default float32
		Units   string `yaml:",omitempty"`
	}

	// ModuleType describes one kind of processing module: its name, its
	// ordered input and output ports and its ordered parameters. A
	// ModuleType is immutable once registered.
	ModuleType struct {
		Name    string
		Inputs  []Port  `yaml:",omitempty"`
		Outputs []Port  `yaml:",omitempty"`
		Params  []Param `yaml:",omitempty"`
	}

	// Block is the per-block signal data crossing a module boundary: one
	// []float32 buffer per audio port and one float32 value per control
	// port, both indexed in port order (audio and control ports counted
	// separately).
	Block struct {
		Audio   [][]float32
		Control []float32
	}

	// Processor is the processing state of one module instance. Process
	// reads the routed inputs from in and writes its outputs to out; params
	// holds the current value of each parameter in schema order. A
	// Processor is owned exclusively by one instance and is only ever
	// called from the audio path, one block at a time.
	Processor interface {
		Process(in, out *Block, params []float32) error
	}

	// Config is passed to processor factories at instantiation time.
	Config struct {
		SampleRate int
		BlockSize  int
	}

	// Factory builds a Processor for one module instance.
	Factory func(cfg Config) (Processor, error)
)

const (
	Audio PortKind = iota
	Control
)

// OutType is the reserved module type name whose routed inputs the
// scheduler mixes into the master bus.
const OutType = "out"

func (k PortKind) String() string {
	switch k {
	case Audio:
		return "audio"
	case Control:
		return "control"
	}
	return fmt.Sprintf("PortKind(%d)", int(k))
}

// MarshalYAML serializes the port kind as "audio" or "control".
func (k PortKind) MarshalYAML() (interface{}, error) {
	return k.String(), nil
}

// UnmarshalYAML parses "audio" or "control".
func (k *PortKind) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	switch s {
	case "audio":
		*k = Audio
	case "control":
		*k = Control
	default:
		return fmt.Errorf("unknown port kind %q", s)
	}
	return nil
}

// FindInput returns the index of the named input port within its kind: audio
// inputs are indexed among audio inputs, control inputs among control
// inputs. ok is false if no such port exists.
func (m *ModuleType) FindInput(name string) (kind PortKind, index int, ok bool) {
	return findPort(m.Inputs, name)
}

// FindOutput is the output-side counterpart of FindInput.
func (m *ModuleType) FindOutput(name string) (kind PortKind, index int, ok bool) {
	return findPort(m.Outputs, name)
}

func findPort(ports []Port, name string) (PortKind, int, bool) {
	counts := [2]int{}
	for _, p := range ports {
		if p.Name == name {
			return p.Kind, counts[p.Kind], true
		}
		counts[p.Kind]++
	}
	return 0, 0, false
}

// NumPorts returns how many ports of the given kind the list contains.
func NumPorts(ports []Port, kind PortKind) int {
	n := 0
	for _, p := range ports {
		if p.Kind == kind {
			n++
		}
	}
	return n
}

// ParamIndex returns the schema index of the named parameter, or -1.
func (m *ModuleType) ParamIndex(name string) int {
	for i, p := range m.Params {
		if p.Name == name {
			return i
		}
	}
	return -1
}

// Clamp limits value to the parameter's range.
func (p *Param) Clamp(value float32) float32 {
	if value < p.Min {
		return p.Min
	}
	if value > p.Max {
		return p.Max
	}
	return value
}
