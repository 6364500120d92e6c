// Package mod contains the built-in module types of the runtime: sound
// sources, shapers and routing helpers, each with its port and parameter
// schema and a processor factory. Register binds the whole set into a
// registry; hosts that only need schemas (offline validation) can load the
// same set from a manifest instead.
package mod

import (
	"github.com/vsariola/soitin"
)

type builtin struct {
	typ     soitin.ModuleType
	factory soitin.Factory
}

var builtins = []builtin{
	{oscillatorType, newOscillator},
	{lfoType, newLFO},
	{noiseType, newNoise},
	{envelopeType, newEnvelope},
	{filterType, newFilter},
	{delayType, newDelay},
	{gainType, newGain},
	{mixerType, newMixer},
	{outType, newOut},
}

// Register adds all built-in module types and their factories to the
// registry. It fails with ErrNameConflict if any of the names is taken.
func Register(r *soitin.Registry) error {
	for _, b := range builtins {
		if err := r.RegisterType(b.typ); err != nil {
			return err
		}
		if err := r.RegisterFactory(b.typ.Name, b.factory); err != nil {
			return err
		}
	}
	return nil
}

// out has no processor logic of its own: the scheduler mixes the signals
// routed into it onto the master bus. It still needs a processor so that an
// out instance can be scheduled like any other module.
var outType = soitin.ModuleType{
	Name: soitin.OutType,
	Inputs: []soitin.Port{
		{Name: "left", Kind: soitin.Audio},
		{Name: "right", Kind: soitin.Audio},
	},
	Params: []soitin.Param{
		{Name: "gain", Min: 0, Max: 2, Default: 1},
	},
}

type out struct{}

func newOut(cfg soitin.Config) (soitin.Processor, error) {
	return out{}, nil
}

func (out) Process(in, outb *soitin.Block, params []float32) error {
	return nil
}
