package mod

import (
	"github.com/viterin/vek/vek32"
	"github.com/vsariola/soitin"
)

var gainType = soitin.ModuleType{
	Name: "gain",
	Inputs: []soitin.Port{
		{Name: "in", Kind: soitin.Audio},
		{Name: "mod", Kind: soitin.Control},
	},
	Outputs: []soitin.Port{
		{Name: "out", Kind: soitin.Audio},
	},
	Params: []soitin.Param{
		{Name: "gain", Min: 0, Max: 4, Default: 1},
	},
}

// gain scales its input by the gain param times the mod control input plus
// one, so a centered modulator leaves the level alone.
type gain struct{}

func newGain(cfg soitin.Config) (soitin.Processor, error) {
	return gain{}, nil
}

func (gain) Process(in, out *soitin.Block, params []float32) error {
	g := params[0] * (1 + in.Control[0])
	if g < 0 {
		g = 0
	}
	vek32.MulNumber_Into(out.Audio[0], in.Audio[0], g)
	return nil
}

var mixerType = soitin.ModuleType{
	Name: "mixer",
	Inputs: []soitin.Port{
		{Name: "a", Kind: soitin.Audio},
		{Name: "b", Kind: soitin.Audio},
		{Name: "c", Kind: soitin.Audio},
		{Name: "d", Kind: soitin.Audio},
	},
	Outputs: []soitin.Port{
		{Name: "out", Kind: soitin.Audio},
	},
	Params: []soitin.Param{
		{Name: "a", Min: 0, Max: 2, Default: 1},
		{Name: "b", Min: 0, Max: 2, Default: 1},
		{Name: "c", Min: 0, Max: 2, Default: 1},
		{Name: "d", Min: 0, Max: 2, Default: 1},
	},
}

// mixer sums four inputs with per-input levels.
type mixer struct {
	scratch []float32
}

func newMixer(cfg soitin.Config) (soitin.Processor, error) {
	return &mixer{scratch: make([]float32, cfg.BlockSize)}, nil
}

func (m *mixer) Process(in, out *soitin.Block, params []float32) error {
	dst := out.Audio[0]
	vek32.MulNumber_Into(dst, in.Audio[0], params[0])
	for i := 1; i < 4; i++ {
		vek32.MulNumber_Into(m.scratch, in.Audio[i], params[i])
		vek32.Add_Inplace(dst, m.scratch)
	}
	return nil
}
