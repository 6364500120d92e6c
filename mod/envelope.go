package mod

import (
	"math"

	"github.com/vsariola/soitin"
)

var envelopeType = soitin.ModuleType{
	Name: "envelope",
	Inputs: []soitin.Port{
		{Name: "in", Kind: soitin.Audio},
		{Name: "gate", Kind: soitin.Control},
	},
	Outputs: []soitin.Port{
		{Name: "out", Kind: soitin.Audio},
		{Name: "level", Kind: soitin.Control},
	},
	Params: []soitin.Param{
		{Name: "attack", Min: 0, Max: 1, Default: 0.1},
		{Name: "decay", Min: 0, Max: 1, Default: 0.3},
		{Name: "sustain", Min: 0, Max: 1, Default: 0.7},
		{Name: "release", Min: 0, Max: 1, Default: 0.3},
		{Name: "gain", Min: 0, Max: 1, Default: 1},
	},
}

const (
	envStateAttack = iota
	envStateDecay
	envStateRelease
)

// envelope is a per-sample ADSR amplitude shaper gated by its control input:
// gate above 0.5 holds the envelope in attack/decay/sustain, gate below
// releases it. The audio input is multiplied by the envelope level and the
// current level is also exposed as a control output for modulation routing.
type envelope struct {
	sampleRate float32
	state      int
	level      float32
}

func newEnvelope(cfg soitin.Config) (soitin.Processor, error) {
	return &envelope{sampleRate: float32(cfg.SampleRate), state: envStateRelease}, nil
}

// nonLinearMap maps a 0..1 time param to a per-sample rate spanning roughly
// a millisecond to tens of seconds, like the hardware-style envelopes it
// imitates.
func (e *envelope) nonLinearMap(value float32) float32 {
	seconds := float32(math.Pow(2, float64(value)*13-3)) / 1000
	return 1 / (seconds * e.sampleRate)
}

func (e *envelope) Process(in, out *soitin.Block, params []float32) error {
	attack := e.nonLinearMap(params[0])
	decay := e.nonLinearMap(params[1])
	sustain := params[2]
	release := e.nonLinearMap(params[3])
	gain := params[4]
	gate := in.Control[0] > 0.5
	if gate && e.state == envStateRelease {
		e.state = envStateAttack
	} else if !gate {
		e.state = envStateRelease
	}
	src := in.Audio[0]
	dst := out.Audio[0]
	for i := range dst {
		switch e.state {
		case envStateAttack:
			e.level += attack
			if e.level >= 1 {
				e.level = 1
				e.state = envStateDecay
			}
		case envStateDecay:
			e.level -= decay
			if e.level <= sustain {
				e.level = sustain
			}
		case envStateRelease:
			e.level -= release
			if e.level <= 0 {
				e.level = 0
			}
		}
		dst[i] = src[i] * e.level * gain
	}
	out.Control[0] = e.level
	return nil
}
