package engine

import (
	"fmt"
	"time"

	"github.com/vsariola/soitin"
)

type (
	// ControlID names one physical input of the control surface, e.g.
	// "cc:0:74" for controller 74 on MIDI channel 0, or "note:0:36" for a
	// pad. The ids are plain strings so binding maps stay inspectable.
	ControlID string

	// ControlEvent is one discrete event from the controller hardware.
	// Value is normalized to 0..1 by the driver.
	ControlEvent struct {
		Input ControlID
		Value float32
		Time  time.Time
	}

	// TransformKind tells how a raw controller value maps onto its target.
	TransformKind int

	// Binding maps one controller input to a parameter or to a named
	// action. For Scale, the raw 0..1 value lands linearly in [Min,Max];
	// Min == Max means the parameter's full schema range. For Toggle and
	// Momentary, the input is pressed when the raw value crosses
	// Threshold (0 means 0.5) and Min/Max (same default) are the off/on
	// parameter values.
	Binding struct {
		Input     ControlID
		Module    soitin.ModuleID
		Param     string
		Action    string // non-empty: trigger the named action instead of writing a parameter
		Transform TransformKind
		Min, Max  float32
		Threshold float32
		Debounce  time.Duration
	}

	// Mapper translates controller events into parameter writes and action
	// triggers. It keeps two binding layers: a global default map and a
	// per-scene overlay that shadows it. The mapper owns all per-binding
	// state (toggle positions, debounce clocks) and is driven from the
	// control-path loop only; it is not safe for concurrent use.
	Mapper struct {
		engine  *Engine
		global  map[ControlID]*boundState
		scene   map[ControlID]*boundState
		actions map[string]func()
	}

	boundState struct {
		Binding
		on       bool
		lastEdge time.Time
	}
)

const (
	// Scale maps the raw value linearly into the target range.
	Scale TransformKind = iota
	// Toggle flips the target between Min and Max on each press.
	Toggle
	// Momentary holds the target at Max while pressed, Min when released.
	Momentary
)

func (k TransformKind) String() string {
	switch k {
	case Scale:
		return "scale"
	case Toggle:
		return "toggle"
	case Momentary:
		return "momentary"
	}
	return fmt.Sprintf("TransformKind(%d)", int(k))
}

// MarshalYAML serializes the transform as "scale", "toggle" or "momentary".
func (k TransformKind) MarshalYAML() (interface{}, error) {
	return k.String(), nil
}

// UnmarshalYAML parses "scale", "toggle" or "momentary".
func (k *TransformKind) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	switch s {
	case "scale":
		*k = Scale
	case "toggle":
		*k = Toggle
	case "momentary":
		*k = Momentary
	default:
		return fmt.Errorf("unknown transform kind %q", s)
	}
	return nil
}

func NewMapper(e *Engine) *Mapper {
	return &Mapper{
		engine:  e,
		global:  make(map[ControlID]*boundState),
		scene:   make(map[ControlID]*boundState),
		actions: make(map[string]func()),
	}
}

// BindGlobal installs a binding in the global default map, replacing any
// previous binding of the same input.
func (m *Mapper) BindGlobal(b Binding) {
	m.global[b.Input] = &boundState{Binding: b}
}

// SetSceneBindings replaces the whole per-scene overlay. Passing nil clears
// it, exposing the global map alone.
func (m *Mapper) SetSceneBindings(bindings []Binding) {
	m.scene = make(map[ControlID]*boundState, len(bindings))
	for _, b := range bindings {
		m.scene[b.Input] = &boundState{Binding: b}
	}
}

// Unbind removes the input from both layers.
func (m *Mapper) Unbind(input ControlID) {
	delete(m.global, input)
	delete(m.scene, input)
}

// BindAction registers a named action that bindings can trigger, such as
// recalling a scene or resetting a faulted module.
func (m *Mapper) BindAction(name string, f func()) {
	m.actions[name] = f
}

// HandleEvent looks up the event's binding and applies it. Events with no
// binding are dropped silently: a performer having more physical controls
// than active bindings is the normal state of affairs, not an error.
func (m *Mapper) HandleEvent(ev ControlEvent) {
	b, ok := m.scene[ev.Input]
	if !ok {
		b, ok = m.global[ev.Input]
	}
	if !ok {
		return
	}
	switch b.Transform {
	case Scale:
		lo, hi := m.targetRange(b)
		m.apply(b, lo+(hi-lo)*ev.Value)
	case Toggle:
		if !m.pressEdge(b, ev) {
			return
		}
		b.on = !b.on
		m.applyOnOff(b)
	case Momentary:
		pressed := ev.Value >= b.threshold()
		if pressed == b.on {
			return
		}
		if pressed && ev.Time.Sub(b.lastEdge) < b.Debounce {
			return
		}
		b.on = pressed
		b.lastEdge = ev.Time
		m.applyOnOff(b)
	}
}

// pressEdge reports whether the event is a debounced press transition.
func (m *Mapper) pressEdge(b *boundState, ev ControlEvent) bool {
	if ev.Value < b.threshold() {
		return false
	}
	if ev.Time.Sub(b.lastEdge) < b.Debounce {
		return false
	}
	b.lastEdge = ev.Time
	return true
}

func (b *boundState) threshold() float32 {
	if b.Threshold == 0 {
		return 0.5
	}
	return b.Threshold
}

func (m *Mapper) applyOnOff(b *boundState) {
	if b.Action != "" {
		if b.on {
			if f, ok := m.actions[b.Action]; ok {
				f()
			}
		}
		return
	}
	lo, hi := m.targetRange(b)
	v := lo
	if b.on {
		v = hi
	}
	m.apply(b, v)
}

func (m *Mapper) apply(b *boundState, value float32) {
	if b.Action != "" {
		if f, ok := m.actions[b.Action]; ok {
			f()
		}
		return
	}
	// the module may have been removed since the binding was made; stale
	// bindings are as harmless as unbound inputs
	_ = m.engine.SetParam(b.Module, b.Param, value)
}

func (m *Mapper) targetRange(b *boundState) (float32, float32) {
	if b.Min != b.Max {
		return b.Min, b.Max
	}
	if p, err := m.engine.paramSchema(b.Module, b.Param); err == nil {
		return p.Min, p.Max
	}
	return 0, 1
}

// paramSchema looks up the schema of a live instance's parameter.
func (e *Engine) paramSchema(id soitin.ModuleID, name string) (soitin.Param, error) {
	rg := e.sched.published.Load()
	if rg == nil {
		return soitin.Param{}, fmt.Errorf("no module with id %d", id)
	}
	inst, ok := rg.index[id]
	if !ok {
		return soitin.Param{}, fmt.Errorf("no module with id %d", id)
	}
	i := inst.typ.ParamIndex(name)
	if i < 0 {
		return soitin.Param{}, fmt.Errorf("%s has no parameter %q", inst.typ.Name, name)
	}
	return inst.typ.Params[i], nil
}
