package engine

import (
	"errors"
	"reflect"
	"testing"

	"github.com/vsariola/soitin"
)

type nopProcessor struct{}

func (nopProcessor) Process(in, out *soitin.Block, params []float32) error { return nil }

func testRegistry(t *testing.T) *soitin.Registry {
	t.Helper()
	reg := soitin.NewRegistry()
	types := []soitin.ModuleType{
		{
			Name:    "source",
			Outputs: []soitin.Port{{Name: "out", Kind: soitin.Audio}},
			Params:  []soitin.Param{{Name: "level", Min: 0, Max: 1, Default: 0.5}},
		},
		{
			Name:    "effect",
			Inputs:  []soitin.Port{{Name: "in", Kind: soitin.Audio}, {Name: "mod", Kind: soitin.Control}},
			Outputs: []soitin.Port{{Name: "out", Kind: soitin.Audio}},
		},
		{
			Name:    "ctl",
			Inputs:  []soitin.Port{{Name: "in", Kind: soitin.Control}},
			Outputs: []soitin.Port{{Name: "out", Kind: soitin.Control}},
		},
		{
			Name:   soitin.OutType,
			Inputs: []soitin.Port{{Name: "left", Kind: soitin.Audio}, {Name: "right", Kind: soitin.Audio}},
			Params: []soitin.Param{{Name: "gain", Min: 0, Max: 2, Default: 1}},
		},
	}
	for _, typ := range types {
		if err := reg.RegisterType(typ); err != nil {
			t.Fatalf("registering %v: %v", typ.Name, err)
		}
		if err := reg.RegisterFactory(typ.Name, func(cfg soitin.Config) (soitin.Processor, error) {
			return nopProcessor{}, nil
		}); err != nil {
			t.Fatalf("registering factory %v: %v", typ.Name, err)
		}
	}
	return reg
}

func buildGraph(t *testing.T, reg *soitin.Registry) *Graph {
	t.Helper()
	return newGraph(reg, soitin.Config{SampleRate: 44100, BlockSize: 16})
}

func addInstance(t *testing.T, g *Graph, typeName string) soitin.ModuleID {
	t.Helper()
	id, err := g.AddInstance(typeName)
	if err != nil {
		t.Fatalf("adding %v: %v", typeName, err)
	}
	return id
}

func connect(t *testing.T, g *Graph, from soitin.ModuleID, fromPort string, to soitin.ModuleID, toPort string) {
	t.Helper()
	if err := g.Connect(from, fromPort, to, toPort); err != nil {
		t.Fatalf("connecting %v.%v -> %v.%v: %v", from, fromPort, to, toPort, err)
	}
}

func TestTopoOrderFollowsCables(t *testing.T) {
	g := buildGraph(t, testRegistry(t))
	// create in an order that disagrees with the signal flow
	sink := addInstance(t, g, soitin.OutType)
	fx := addInstance(t, g, "effect")
	src := addInstance(t, g, "source")
	connect(t, g, src, "out", fx, "in")
	connect(t, g, fx, "out", sink, "left")
	got := g.TopoOrder()
	want := []soitin.ModuleID{src, fx, sink}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got order %v, want %v", got, want)
	}
}

func TestTopoOrderTieBreaksByCreation(t *testing.T) {
	g := buildGraph(t, testRegistry(t))
	a := addInstance(t, g, "source")
	b := addInstance(t, g, "source")
	c := addInstance(t, g, "source")
	got := g.TopoOrder()
	want := []soitin.ModuleID{a, b, c}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got order %v, want %v", got, want)
	}
}

func TestTopoOrderDeterministic(t *testing.T) {
	build := func() *Graph {
		g := buildGraph(t, testRegistry(t))
		src := addInstance(t, g, "source")
		fx1 := addInstance(t, g, "effect")
		fx2 := addInstance(t, g, "effect")
		sink := addInstance(t, g, soitin.OutType)
		connect(t, g, src, "out", fx1, "in")
		connect(t, g, src, "out", fx2, "in")
		connect(t, g, fx1, "out", sink, "left")
		connect(t, g, fx2, "out", sink, "right")
		return g
	}
	first := build().TopoOrder()
	for i := 0; i < 10; i++ {
		if got := build().TopoOrder(); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d ordered %v, first run ordered %v", i, got, first)
		}
	}
}

func TestControlLoopBreaksAtOldestMember(t *testing.T) {
	g := buildGraph(t, testRegistry(t))
	a := addInstance(t, g, "ctl")
	b := addInstance(t, g, "ctl")
	connect(t, g, a, "out", b, "in")
	connect(t, g, b, "out", a, "in") // control feedback is legal
	got := g.TopoOrder()
	want := []soitin.ModuleID{a, b}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got order %v, want %v", got, want)
	}
}

func TestConnectRejectsAudioCycle(t *testing.T) {
	g := buildGraph(t, testRegistry(t))
	a := addInstance(t, g, "effect")
	b := addInstance(t, g, "effect")
	connect(t, g, a, "out", b, "in")
	if err := g.Connect(b, "out", a, "in"); !errors.Is(err, soitin.ErrCycleDetected) {
		t.Fatalf("got %v, want ErrCycleDetected", err)
	}
	// the failed connect must leave no trace
	if len(g.cables) != 1 {
		t.Fatalf("got %d cables after rejected connect, want 1", len(g.cables))
	}
}

func TestConnectRejectsKindMismatch(t *testing.T) {
	g := buildGraph(t, testRegistry(t))
	src := addInstance(t, g, "source")
	fx := addInstance(t, g, "effect")
	if err := g.Connect(src, "out", fx, "mod"); !errors.Is(err, soitin.ErrTypeMismatch) {
		t.Fatalf("audio output into control input: got %v, want ErrTypeMismatch", err)
	}
	if err := g.Connect(src, "nonexistent", fx, "in"); !errors.Is(err, soitin.ErrTypeMismatch) {
		t.Fatalf("nonexistent output: got %v, want ErrTypeMismatch", err)
	}
	if err := g.Connect(src, "out", fx, "nonexistent"); !errors.Is(err, soitin.ErrTypeMismatch) {
		t.Fatalf("nonexistent input: got %v, want ErrTypeMismatch", err)
	}
}

func TestControlInputTakesOneWriter(t *testing.T) {
	g := buildGraph(t, testRegistry(t))
	a := addInstance(t, g, "ctl")
	b := addInstance(t, g, "ctl")
	fx := addInstance(t, g, "effect")
	connect(t, g, a, "out", fx, "mod")
	if err := g.Connect(b, "out", fx, "mod"); !errors.Is(err, soitin.ErrPortOccupied) {
		t.Fatalf("second control writer: got %v, want ErrPortOccupied", err)
	}
}

func TestAudioInputSumsManyWriters(t *testing.T) {
	g := buildGraph(t, testRegistry(t))
	a := addInstance(t, g, "source")
	b := addInstance(t, g, "source")
	fx := addInstance(t, g, "effect")
	connect(t, g, a, "out", fx, "in")
	connect(t, g, b, "out", fx, "in")
	if err := g.Validate(); err != nil {
		t.Fatalf("two audio writers should be legal: %v", err)
	}
}

func TestDuplicateCableRejected(t *testing.T) {
	g := buildGraph(t, testRegistry(t))
	src := addInstance(t, g, "source")
	fx := addInstance(t, g, "effect")
	connect(t, g, src, "out", fx, "in")
	if err := g.Connect(src, "out", fx, "in"); !errors.Is(err, soitin.ErrPortOccupied) {
		t.Fatalf("duplicate cable: got %v, want ErrPortOccupied", err)
	}
}

func TestRemoveInstanceDropsCables(t *testing.T) {
	g := buildGraph(t, testRegistry(t))
	src := addInstance(t, g, "source")
	fx := addInstance(t, g, "effect")
	sink := addInstance(t, g, soitin.OutType)
	connect(t, g, src, "out", fx, "in")
	connect(t, g, fx, "out", sink, "left")
	if err := g.RemoveInstance(fx); err != nil {
		t.Fatalf("removing: %v", err)
	}
	if len(g.cables) != 0 {
		t.Fatalf("got %d cables after removal, want 0", len(g.cables))
	}
	if err := g.Validate(); err != nil {
		t.Fatalf("graph invalid after removal: %v", err)
	}
}

func TestCloneSharesInstances(t *testing.T) {
	g := buildGraph(t, testRegistry(t))
	src := addInstance(t, g, "source")
	cp := g.clone()
	if cp.instances[src] != g.instances[src] {
		t.Fatalf("clone must share instance pointers")
	}
	fx, err := cp.AddInstance("effect")
	if err != nil {
		t.Fatalf("adding to clone: %v", err)
	}
	if _, ok := g.instances[fx]; ok {
		t.Fatalf("adding to the clone leaked into the original")
	}
}

func TestCheckPatch(t *testing.T) {
	reg := testRegistry(t)
	good := soitin.Patch{
		Modules: []soitin.Module{
			{ID: 1, Type: "source", Params: map[string]float32{"level": 0.25}},
			{ID: 2, Type: soitin.OutType},
		},
		Cables: []soitin.Cable{{From: 1, FromPort: "out", To: 2, ToPort: "left"}},
	}
	if err := CheckPatch(reg, good); err != nil {
		t.Fatalf("good patch rejected: %v", err)
	}
	bad := good.Copy()
	bad.Modules[0].Params["nonexistent"] = 1
	if err := CheckPatch(reg, bad); err == nil {
		t.Fatalf("unknown param accepted")
	}
	cyclic := soitin.Patch{
		Modules: []soitin.Module{{ID: 1, Type: "effect"}, {ID: 2, Type: "effect"}},
		Cables: []soitin.Cable{
			{From: 1, FromPort: "out", To: 2, ToPort: "in"},
			{From: 2, FromPort: "out", To: 1, ToPort: "in"},
		},
	}
	if err := CheckPatch(reg, cyclic); !errors.Is(err, soitin.ErrCycleDetected) {
		t.Fatalf("got %v, want ErrCycleDetected", err)
	}
}
