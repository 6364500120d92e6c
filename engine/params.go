package engine

import (
	"math"
	"sync/atomic"
)

// paramSlot is the single synchronization cell for one parameter of one
// instance: the control path stores a target value and a ramp length with
// one atomic write, and the audio path reads them at block start. Packing
// both into one word means a reader can never observe a target paired with
// a stale ramp length.
type paramSlot struct {
	packed atomic.Uint64 // high 32 bits: float bits of target, low 32: ramp length in blocks
}

func (s *paramSlot) store(target float32, rampBlocks int) {
	if rampBlocks < 0 {
		rampBlocks = 0
	}
	s.packed.Store(uint64(math.Float32bits(target))<<32 | uint64(uint32(rampBlocks)))
}

func (s *paramSlot) load() (target float32, rampBlocks int, raw uint64) {
	raw = s.packed.Load()
	return math.Float32frombits(uint32(raw >> 32)), int(uint32(raw)), raw
}

// paramState is the audio-path-owned smoothing state of one parameter. The
// audio path notices a new write by comparing the raw slot word against the
// last one it consumed.
type paramState struct {
	current  float32
	target   float32
	rampLeft int
	lastRaw  uint64
}

// advance consumes the slot and moves the smoothed value one block forward.
// A zero ramp makes the value step on the next block; a nonzero ramp
// approaches the target linearly over that many blocks.
func (p *paramState) advance(slot *paramSlot) float32 {
	target, ramp, raw := slot.load()
	if raw != p.lastRaw {
		p.lastRaw = raw
		p.target = target
		p.rampLeft = ramp
	}
	if p.rampLeft > 0 {
		p.current += (p.target - p.current) / float32(p.rampLeft)
		p.rampLeft--
	} else {
		p.current = p.target
	}
	return p.current
}
