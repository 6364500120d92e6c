package mod

import (
	"math"

	"github.com/vsariola/soitin"
)

var oscillatorType = soitin.ModuleType{
	Name: "oscillator",
	Inputs: []soitin.Port{
		{Name: "fm", Kind: soitin.Audio},
		{Name: "pitch", Kind: soitin.Control},
	},
	Outputs: []soitin.Port{
		{Name: "out", Kind: soitin.Audio},
	},
	Params: []soitin.Param{
		{Name: "freq", Min: 0.1, Max: 20000, Default: 440, Units: "Hz"},
		{Name: "shape", Min: 0, Max: 2, Default: 0}, // 0 sine, 1 trisaw, 2 pulse
		{Name: "color", Min: 0.01, Max: 0.99, Default: 0.5},
		{Name: "gain", Min: 0, Max: 1, Default: 1},
	},
}

// oscillator generates sine, trisaw or pulse waves at audio rate. The pitch
// control input transposes the base frequency in semitones and the fm input
// modulates the phase increment directly. Phase is kept as state so a
// running oscillator stays continuous across param writes and topology
// swaps.
type oscillator struct {
	sampleRate float32
	phase      float32
}

func newOscillator(cfg soitin.Config) (soitin.Processor, error) {
	return &oscillator{sampleRate: float32(cfg.SampleRate)}, nil
}

func (o *oscillator) Process(in, out *soitin.Block, params []float32) error {
	freq, shape, color, gain := params[0], params[1], params[2], params[3]
	if pitch := in.Control[0]; pitch != 0 {
		freq *= float32(math.Exp2(float64(pitch) * 0.083333333333)) // semitones to octaves
	}
	omega := freq / o.sampleRate
	fm := in.Audio[0]
	buf := out.Audio[0]
	for i := range buf {
		o.phase += omega + fm[i]
		o.phase -= float32(int(o.phase)) // wrap to [0,1)
		if o.phase < 0 {
			o.phase += 1
		}
		buf[i] = sample(o.phase, shape, color) * gain
	}
	return nil
}

func sample(phase, shape, color float32) float32 {
	switch {
	case shape < 0.5: // sine
		if phase < color {
			return float32(math.Sin(2 * math.Pi * float64(phase/color)))
		}
		return 0
	case shape < 1.5: // trisaw
		if phase >= color {
			phase = 1 - phase
			color = 1 - color
		}
		return phase/color*2 - 1
	default: // pulse
		if phase >= color {
			return -1
		}
		return 1
	}
}

var lfoType = soitin.ModuleType{
	Name: "lfo",
	Outputs: []soitin.Port{
		{Name: "out", Kind: soitin.Control},
	},
	Params: []soitin.Param{
		{Name: "freq", Min: 0.01, Max: 40, Default: 1, Units: "Hz"},
		{Name: "shape", Min: 0, Max: 2, Default: 0},
		{Name: "depth", Min: 0, Max: 1, Default: 1},
	},
}

// lfo is the control-rate sibling of oscillator: one output value per block,
// sampled at the block rate.
type lfo struct {
	blockRate float32
	phase     float32
}

func newLFO(cfg soitin.Config) (soitin.Processor, error) {
	return &lfo{blockRate: float32(cfg.SampleRate) / float32(cfg.BlockSize)}, nil
}

func (l *lfo) Process(in, out *soitin.Block, params []float32) error {
	freq, shape, depth := params[0], params[1], params[2]
	l.phase += freq / l.blockRate
	l.phase -= float32(int(l.phase))
	out.Control[0] = sample(l.phase, shape, 0.5) * depth
	return nil
}

var noiseType = soitin.ModuleType{
	Name: "noise",
	Outputs: []soitin.Port{
		{Name: "out", Kind: soitin.Audio},
	},
	Params: []soitin.Param{
		{Name: "gain", Min: 0, Max: 1, Default: 0.5},
	},
}

type noise struct {
	seed uint32
}

func newNoise(cfg soitin.Config) (soitin.Processor, error) {
	return &noise{seed: 1}, nil
}

func (n *noise) Process(in, out *soitin.Block, params []float32) error {
	gain := params[0]
	buf := out.Audio[0]
	for i := range buf {
		n.seed = n.seed*1664525 + 1013904223
		buf[i] = float32(int32(n.seed)) / 2147483648.0 * gain
	}
	return nil
}
