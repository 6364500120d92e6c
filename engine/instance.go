package engine

import (
	"sync/atomic"

	"github.com/vsariola/soitin"
)

const (
	faultNone uint32 = iota
	faultProcess
	faultDeadline
)

// instance is one live module: its processor, its port buffers and its
// parameter slots. The same instance pointer is shared by the build-side
// graph and every compiled run graph that contains it, which is what lets a
// hot swap preserve processing state. The audio path owns proc, in, out,
// params and values; the control path only touches slots (atomics) and
// fault (atomic). Instances are created on the control path and only
// destroyed once no published run graph references them.
type instance struct {
	id   soitin.ModuleID
	typ  soitin.ModuleType
	proc soitin.Processor

	in, out soitin.Block // persistent port buffers; out survives swaps so late-ordered control reads stay one block old, never zero

	slots  []paramSlot  // written by the control path
	params []paramState // audio-path smoothing state
	values []float32    // scratch passed to Process, one per param

	fault atomic.Uint32 // faultNone, faultProcess or faultDeadline
}

func newInstance(id soitin.ModuleID, typ soitin.ModuleType, proc soitin.Processor, blockSize int) *instance {
	inst := &instance{
		id:     id,
		typ:    typ,
		proc:   proc,
		in:     newBlock(typ.Inputs, blockSize),
		out:    newBlock(typ.Outputs, blockSize),
		slots:  make([]paramSlot, len(typ.Params)),
		params: make([]paramState, len(typ.Params)),
		values: make([]float32, len(typ.Params)),
	}
	for i, p := range typ.Params {
		inst.slots[i].store(p.Default, 0)
		inst.params[i].current = p.Default
		inst.params[i].target = p.Default
	}
	return inst
}

func newBlock(ports []soitin.Port, blockSize int) soitin.Block {
	b := soitin.Block{
		Audio:   make([][]float32, 0, soitin.NumPorts(ports, soitin.Audio)),
		Control: make([]float32, soitin.NumPorts(ports, soitin.Control)),
	}
	for i := 0; i < cap(b.Audio); i++ {
		b.Audio = append(b.Audio, make([]float32, blockSize))
	}
	return b
}

// setParam stores a new target for the named parameter, clamped to its
// range. rampBlocks is the number of blocks over which the audio path
// approaches the target; zero steps on the next block.
func (inst *instance) setParam(name string, value float32, rampBlocks int) bool {
	i := inst.typ.ParamIndex(name)
	if i < 0 {
		return false
	}
	inst.slots[i].store(inst.typ.Params[i].Clamp(value), rampBlocks)
	return true
}

// paramTarget returns the last stored target of the named parameter.
func (inst *instance) paramTarget(name string) (float32, bool) {
	i := inst.typ.ParamIndex(name)
	if i < 0 {
		return 0, false
	}
	v, _, _ := inst.slots[i].load()
	return v, true
}

func (inst *instance) faulted() bool {
	return inst.fault.Load() != faultNone
}
