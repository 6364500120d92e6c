package mod

import (
	"math"

	"github.com/vsariola/soitin"
)

var filterType = soitin.ModuleType{
	Name: "filter",
	Inputs: []soitin.Port{
		{Name: "in", Kind: soitin.Audio},
		{Name: "cutoffmod", Kind: soitin.Control},
	},
	Outputs: []soitin.Port{
		{Name: "out", Kind: soitin.Audio},
	},
	Params: []soitin.Param{
		{Name: "cutoff", Min: 20, Max: 20000, Default: 2000, Units: "Hz"},
		{Name: "resonance", Min: 0.01, Max: 1, Default: 0.5},
		{Name: "mode", Min: 0, Max: 2, Default: 0}, // 0 lowpass, 1 bandpass, 2 highpass
	},
}

// filter is a Chamberlin state-variable filter. The cutoffmod control input
// transposes the cutoff in semitones, which keeps modulation musical across
// the whole range.
type filter struct {
	sampleRate float32
	low, band  float32
}

func newFilter(cfg soitin.Config) (soitin.Processor, error) {
	return &filter{sampleRate: float32(cfg.SampleRate)}, nil
}

func (f *filter) Process(in, out *soitin.Block, params []float32) error {
	cutoff, res, mode := params[0], params[1], params[2]
	if mod := in.Control[0]; mod != 0 {
		cutoff *= float32(math.Exp2(float64(mod) * 0.083333333333))
	}
	// the integrator is stable up to roughly a sixth of the sample rate
	freq := 2 * float32(math.Sin(math.Pi*math.Min(1.0/6, float64(cutoff/f.sampleRate))))
	src := in.Audio[0]
	dst := out.Audio[0]
	for i := range dst {
		f.low += freq * f.band
		high := src[i] - f.low - res*f.band
		f.band += freq * high
		switch {
		case mode < 0.5:
			dst[i] = f.low
		case mode < 1.5:
			dst[i] = f.band
		default:
			dst[i] = high
		}
	}
	return nil
}
