package mod

import (
	"github.com/vsariola/soitin"
)

var delayType = soitin.ModuleType{
	Name: "delay",
	Inputs: []soitin.Port{
		{Name: "in", Kind: soitin.Audio},
	},
	Outputs: []soitin.Port{
		{Name: "out", Kind: soitin.Audio},
	},
	Params: []soitin.Param{
		{Name: "time", Min: 0.001, Max: 2, Default: 0.25, Units: "s"},
		{Name: "feedback", Min: 0, Max: 0.99, Default: 0.4},
		{Name: "damp", Min: 0, Max: 1, Default: 0.2},
		{Name: "dry", Min: 0, Max: 1, Default: 1},
		{Name: "wet", Min: 0, Max: 1, Default: 0.5},
	},
}

// delay is a single feedback delay line with a one-pole damping filter in
// the loop. The line is sized for the maximum time at instantiation; the
// time param moves the read tap.
type delay struct {
	sampleRate int
	buffer     []float32
	write      int
	dampState  float32
}

func newDelay(cfg soitin.Config) (soitin.Processor, error) {
	return &delay{
		sampleRate: cfg.SampleRate,
		buffer:     make([]float32, 2*cfg.SampleRate),
	}, nil
}

func (d *delay) Process(in, out *soitin.Block, params []float32) error {
	time, feedback, damp, dry, wet := params[0], params[1], params[2], params[3], params[4]
	offset := int(time * float32(d.sampleRate))
	if offset < 1 {
		offset = 1
	}
	if offset >= len(d.buffer) {
		offset = len(d.buffer) - 1
	}
	src := in.Audio[0]
	dst := out.Audio[0]
	for i := range dst {
		read := d.write - offset
		if read < 0 {
			read += len(d.buffer)
		}
		delayed := d.buffer[read]
		d.dampState = damp*d.dampState + (1-damp)*delayed
		d.buffer[d.write] = src[i] + d.dampState*feedback
		d.write++
		if d.write == len(d.buffer) {
			d.write = 0
		}
		dst[i] = src[i]*dry + delayed*wet
	}
	return nil
}
