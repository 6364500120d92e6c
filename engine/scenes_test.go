package engine_test

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/vsariola/soitin"
	"github.com/vsariola/soitin/engine"
)

func sceneFixture(t *testing.T, crossfade int) (*engine.Engine, *engine.SceneStore, soitin.ModuleID) {
	t.Helper()
	e, _ := newTestEngine(t, engine.SchedulerOptions{})
	src, _ := buildSourceToOut(t, e, "level")
	return e, engine.NewSceneStore(e, crossfade), src
}

func TestCaptureNameConflict(t *testing.T) {
	_, store, _ := sceneFixture(t, 0)
	if _, err := store.Capture("intro", false); err != nil {
		t.Fatalf("first capture: %v", err)
	}
	if _, err := store.Capture("intro", false); !errors.Is(err, soitin.ErrNameConflict) {
		t.Fatalf("got %v, want ErrNameConflict", err)
	}
	if _, err := store.Capture("intro", true); err != nil {
		t.Fatalf("overwriting capture: %v", err)
	}
}

func TestRecallUnknownScene(t *testing.T) {
	_, store, _ := sceneFixture(t, 0)
	if err := store.Recall("nonexistent"); err == nil {
		t.Fatalf("recalling unknown scene succeeded")
	}
}

func TestRecallRestoresPatch(t *testing.T) {
	e, store, src := sceneFixture(t, 0)
	captured, err := store.Capture("intro", false)
	if err != nil {
		t.Fatalf("capturing: %v", err)
	}
	// drift away from the scene: change a param and add a module
	if err := e.SetParam(src, "level", 0.9); err != nil {
		t.Fatalf("setting param: %v", err)
	}
	commitPatch(t, e, func(tx *engine.Transaction) error {
		_, err := tx.AddModule("counter")
		return err
	})
	if err := store.Recall("intro"); err != nil {
		t.Fatalf("recalling: %v", err)
	}
	if got := e.Patch(); !reflect.DeepEqual(got, captured.Patch) {
		t.Fatalf("recall did not restore the scene:\ngot  %v\nwant %v", got, captured.Patch)
	}
}

func TestRecallIsIdempotent(t *testing.T) {
	e, store, _ := sceneFixture(t, 0)
	if _, err := store.Capture("intro", false); err != nil {
		t.Fatalf("capturing: %v", err)
	}
	if err := store.Recall("intro"); err != nil {
		t.Fatalf("first recall: %v", err)
	}
	first := e.Patch()
	if err := store.Recall("intro"); err != nil {
		t.Fatalf("second recall: %v", err)
	}
	if got := e.Patch(); !reflect.DeepEqual(got, first) {
		t.Fatalf("second recall changed the patch:\ngot  %v\nwant %v", got, first)
	}
}

func TestRecallPreservesSurvivingState(t *testing.T) {
	e, _ := newTestEngine(t, engine.SchedulerOptions{})
	src, out := buildSourceToOut(t, e, "counter")
	store := engine.NewSceneStore(e, 0)
	if _, err := store.Capture("intro", false); err != nil {
		t.Fatalf("capturing: %v", err)
	}
	if err := e.SetParam(out, "gain", 0.1); err != nil {
		t.Fatalf("setting out gain: %v", err)
	}
	runBlock(t, e)
	runBlock(t, e)
	if err := store.Recall("intro"); err != nil {
		t.Fatalf("recalling: %v", err)
	}
	// recall rebuilt the gain param but must not have recreated the
	// counter instance; its block count keeps going
	if err := e.SetParam(out, "gain", 0.1); err != nil {
		t.Fatalf("setting out gain: %v", err)
	}
	buf := runBlock(t, e)
	if !approx(buf[0][0], 0.3) {
		t.Fatalf("counter state lost on recall: got %v, want 0.3", buf[0][0])
	}
	_ = src
}

func TestRecallRampsParams(t *testing.T) {
	e, store, src := sceneFixture(t, 4)
	if _, err := store.Capture("intro", false); err != nil {
		t.Fatalf("capturing: %v", err)
	}
	if err := e.SetParam(src, "level", 0.75); err != nil {
		t.Fatalf("setting param: %v", err)
	}
	runBlock(t, e)
	if err := store.Recall("intro"); err != nil {
		t.Fatalf("recalling: %v", err)
	}
	want := []float32{0.625, 0.5, 0.375, 0.25, 0.25}
	for i, w := range want {
		buf := runBlock(t, e)
		if !approx(buf[0][0], w) {
			t.Fatalf("block %d after recall: got %v, want %v", i, buf[0][0], w)
		}
	}
}

func TestSceneBankRoundTrip(t *testing.T) {
	e, store, src := sceneFixture(t, 0)
	if _, err := store.Capture("intro", false); err != nil {
		t.Fatalf("capturing intro: %v", err)
	}
	if err := e.SetParam(src, "level", 0.9); err != nil {
		t.Fatalf("setting param: %v", err)
	}
	if _, err := store.Capture("chorus", false); err != nil {
		t.Fatalf("capturing chorus: %v", err)
	}
	var buf bytes.Buffer
	if err := store.WriteTo(&buf); err != nil {
		t.Fatalf("writing bank: %v", err)
	}
	other := engine.NewSceneStore(e, 0)
	if err := other.ReadFrom(&buf); err != nil {
		t.Fatalf("reading bank: %v", err)
	}
	if got, want := other.Names(), []string{"intro", "chorus"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("got names %v, want %v", got, want)
	}
	a, _ := store.Scene("chorus")
	b, ok := other.Scene("chorus")
	if !ok {
		t.Fatalf("chorus missing after round trip")
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("scene changed in round trip:\ngot  %v\nwant %v", b, a)
	}
}
