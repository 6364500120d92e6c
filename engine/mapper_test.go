package engine_test

import (
	"testing"
	"time"

	"github.com/vsariola/soitin"
	"github.com/vsariola/soitin/engine"
)

func mapperFixture(t *testing.T) (*engine.Engine, *engine.Mapper, soitin.ModuleID) {
	t.Helper()
	e, _ := newTestEngine(t, engine.SchedulerOptions{})
	src, _ := buildSourceToOut(t, e, "level")
	return e, engine.NewMapper(e), src
}

func event(input string, value float32, at time.Time) engine.ControlEvent {
	return engine.ControlEvent{Input: engine.ControlID(input), Value: value, Time: at}
}

func paramOf(t *testing.T, e *engine.Engine, id soitin.ModuleID, name string) float32 {
	t.Helper()
	v, err := e.Param(id, name)
	if err != nil {
		t.Fatalf("reading %v: %v", name, err)
	}
	return v
}

func TestUnboundEventsAreDropped(t *testing.T) {
	e, m, src := mapperFixture(t)
	before := paramOf(t, e, src, "level")
	m.HandleEvent(event("cc:0:74", 1, time.Now()))
	if got := paramOf(t, e, src, "level"); got != before {
		t.Fatalf("unbound event changed a parameter: %v -> %v", before, got)
	}
}

func TestScaleBindingUsesSchemaRange(t *testing.T) {
	e, m, src := mapperFixture(t)
	m.BindGlobal(engine.Binding{Input: "cc:0:74", Module: src, Param: "level"})
	m.HandleEvent(event("cc:0:74", 0.5, time.Now()))
	// level's schema range is [-1,1], so 0.5 lands at 0
	if got := paramOf(t, e, src, "level"); !approx(got, 0) {
		t.Fatalf("got %v, want 0", got)
	}
	m.HandleEvent(event("cc:0:74", 1, time.Now()))
	if got := paramOf(t, e, src, "level"); !approx(got, 1) {
		t.Fatalf("got %v, want 1", got)
	}
}

func TestScaleBindingCustomRange(t *testing.T) {
	e, m, src := mapperFixture(t)
	m.BindGlobal(engine.Binding{Input: "cc:0:74", Module: src, Param: "level", Min: 0.2, Max: 0.4})
	m.HandleEvent(event("cc:0:74", 0.5, time.Now()))
	if got := paramOf(t, e, src, "level"); !approx(got, 0.3) {
		t.Fatalf("got %v, want 0.3", got)
	}
}

func TestToggleBinding(t *testing.T) {
	e, m, src := mapperFixture(t)
	m.BindGlobal(engine.Binding{
		Input: "note:0:36", Module: src, Param: "level",
		Transform: engine.Toggle, Min: 0, Max: 1,
	})
	now := time.Now()
	m.HandleEvent(event("note:0:36", 1, now))
	if got := paramOf(t, e, src, "level"); got != 1 {
		t.Fatalf("first press: got %v, want 1", got)
	}
	m.HandleEvent(event("note:0:36", 0, now.Add(time.Second))) // release is not a press
	if got := paramOf(t, e, src, "level"); got != 1 {
		t.Fatalf("release flipped the toggle: got %v", got)
	}
	m.HandleEvent(event("note:0:36", 1, now.Add(2*time.Second)))
	if got := paramOf(t, e, src, "level"); got != 0 {
		t.Fatalf("second press: got %v, want 0", got)
	}
}

func TestToggleDebounce(t *testing.T) {
	e, m, src := mapperFixture(t)
	m.BindGlobal(engine.Binding{
		Input: "note:0:36", Module: src, Param: "level",
		Transform: engine.Toggle, Min: 0, Max: 1,
		Debounce: 100 * time.Millisecond,
	})
	now := time.Now()
	m.HandleEvent(event("note:0:36", 1, now))
	m.HandleEvent(event("note:0:36", 1, now.Add(10*time.Millisecond))) // bounce
	if got := paramOf(t, e, src, "level"); got != 1 {
		t.Fatalf("bounce flipped the toggle back: got %v", got)
	}
	m.HandleEvent(event("note:0:36", 1, now.Add(200*time.Millisecond)))
	if got := paramOf(t, e, src, "level"); got != 0 {
		t.Fatalf("press after debounce window: got %v, want 0", got)
	}
}

func TestMomentaryBinding(t *testing.T) {
	e, m, src := mapperFixture(t)
	m.BindGlobal(engine.Binding{
		Input: "note:0:36", Module: src, Param: "level",
		Transform: engine.Momentary, Min: 0, Max: 1,
	})
	now := time.Now()
	m.HandleEvent(event("note:0:36", 1, now))
	if got := paramOf(t, e, src, "level"); got != 1 {
		t.Fatalf("press: got %v, want 1", got)
	}
	m.HandleEvent(event("note:0:36", 0, now.Add(time.Second)))
	if got := paramOf(t, e, src, "level"); got != 0 {
		t.Fatalf("release: got %v, want 0", got)
	}
}

func TestSceneBindingsShadowGlobal(t *testing.T) {
	e, m, src := mapperFixture(t)
	m.BindGlobal(engine.Binding{Input: "cc:0:74", Module: src, Param: "level", Min: 0, Max: 0.5})
	m.SetSceneBindings([]engine.Binding{
		{Input: "cc:0:74", Module: src, Param: "level", Min: 0, Max: 1},
	})
	m.HandleEvent(event("cc:0:74", 1, time.Now()))
	if got := paramOf(t, e, src, "level"); !approx(got, 1) {
		t.Fatalf("scene overlay not used: got %v, want 1", got)
	}
	m.SetSceneBindings(nil)
	m.HandleEvent(event("cc:0:74", 1, time.Now()))
	if got := paramOf(t, e, src, "level"); !approx(got, 0.5) {
		t.Fatalf("global binding not restored: got %v, want 0.5", got)
	}
}

func TestActionBinding(t *testing.T) {
	_, m, _ := mapperFixture(t)
	fired := 0
	m.BindAction("panic", func() { fired++ })
	m.BindGlobal(engine.Binding{Input: "note:0:40", Action: "panic", Transform: engine.Momentary})
	now := time.Now()
	m.HandleEvent(event("note:0:40", 1, now))
	m.HandleEvent(event("note:0:40", 0, now.Add(time.Second))) // release does not re-fire
	if fired != 1 {
		t.Fatalf("action fired %d times, want 1", fired)
	}
}

func TestStaleBindingIsHarmless(t *testing.T) {
	e, m, src := mapperFixture(t)
	m.BindGlobal(engine.Binding{Input: "cc:0:74", Module: src, Param: "level"})
	commitPatch(t, e, func(tx *engine.Transaction) error {
		return tx.RemoveModule(src)
	})
	m.HandleEvent(event("cc:0:74", 1, time.Now())) // must not panic or error out
}
