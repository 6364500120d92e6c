package engine

import (
	"fmt"
	"io"
	"sync"

	"github.com/vsariola/soitin"
)

// SceneStore captures and recalls named snapshots of the live graph. Recall
// computes the minimal transaction moving the live graph to the snapshot:
// module adds and removes, cable changes and parameter diffs, with the
// parameter diffs ramped over the crossfade window so a recall does not
// step values audibly. The store is part of the control path; its own lock
// only guards the scene table, while the graph edits go through the
// engine's transaction serialization as usual.
type SceneStore struct {
	engine    *Engine
	crossfade int // param ramp length for recalls, in blocks

	mu     sync.Mutex
	scenes map[string]soitin.Scene
	order  []string
}

func NewSceneStore(e *Engine, crossfadeBlocks int) *SceneStore {
	return &SceneStore{
		engine:    e,
		crossfade: crossfadeBlocks,
		scenes:    make(map[string]soitin.Scene),
	}
}

// Capture snapshots the live graph under the given name. Without overwrite
// an existing name fails with ErrNameConflict.
func (s *SceneStore) Capture(name string, overwrite bool) (soitin.Scene, error) {
	scene := soitin.Scene{Name: name, Patch: s.engine.Patch()}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.scenes[name]; ok {
		if !overwrite {
			return soitin.Scene{}, fmt.Errorf("scene %q: %w", name, soitin.ErrNameConflict)
		}
	} else {
		s.order = append(s.order, name)
	}
	s.scenes[name] = scene
	return scene.Copy(), nil
}

// Scene returns a copy of the named scene.
func (s *SceneStore) Scene(name string) (soitin.Scene, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	scene, ok := s.scenes[name]
	if !ok {
		return soitin.Scene{}, false
	}
	return scene.Copy(), true
}

// Names lists the scenes in capture order.
func (s *SceneStore) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// Recall diffs the live graph against the named scene and commits the
// resulting transaction. Recalling a scene captured from the current graph
// commits an empty diff and leaves everything untouched.
func (s *SceneStore) Recall(name string) error {
	s.mu.Lock()
	scene, ok := s.scenes[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("no scene %q", name)
	}
	return s.engine.ApplyPatch(scene.Patch, s.crossfade)
}

// ApplyPatch stages and commits the minimal diff from the live graph to
// the target patch description: removals of modules not in the target,
// additions (with their recorded ids) of modules not live, cable changes
// and parameter diffs ramped over rampBlocks.
func (e *Engine) ApplyPatch(target soitin.Patch, rampBlocks int) error {
	if err := target.Validate(); err != nil {
		return fmt.Errorf("%w: %w", soitin.ErrInvalidGraph, err)
	}
	t := e.Begin()
	live := t.g.patch()

	// removals first, so their cables are implicitly gone before additions
	// can reuse nothing; ids are never reused within a session so an add
	// after a remove cannot collide
	for _, m := range live.Modules {
		if i := target.FindModule(m.ID); i < 0 || target.Modules[i].Type != m.Type {
			if err := t.RemoveModule(m.ID); err != nil {
				t.Abort()
				return err
			}
		}
	}
	for _, m := range target.Modules {
		if _, ok := t.g.instances[m.ID]; !ok {
			if err := t.addModuleWithID(m.ID, m.Type); err != nil {
				t.Abort()
				return err
			}
		}
	}

	// cable diff: drop cables not in the target, then add the missing ones
	// in target order
	targetSet := make(map[soitin.Cable]bool, len(target.Cables))
	for _, c := range target.Cables {
		targetSet[c] = true
	}
	for _, c := range t.g.patch().Cables {
		if !targetSet[c] {
			if err := t.Disconnect(c.From, c.FromPort, c.To, c.ToPort); err != nil {
				t.Abort()
				return err
			}
		}
	}
	liveSet := make(map[soitin.Cable]bool)
	for _, c := range t.g.cables {
		liveSet[c] = true
	}
	for _, c := range target.Cables {
		if !liveSet[c] {
			if err := t.Connect(c.From, c.FromPort, c.To, c.ToPort); err != nil {
				t.Abort()
				return err
			}
		}
	}

	// parameter diffs, ramped: untouched params keep their values so a
	// recall only moves what the scene actually changes
	for _, m := range target.Modules {
		inst := t.g.instances[m.ID]
		for name, want := range m.Params {
			got, ok := inst.paramTarget(name)
			if !ok || got == want {
				continue
			}
			if err := t.SetParamRamp(m.ID, name, want, rampBlocks); err != nil {
				t.Abort()
				return err
			}
		}
	}
	return t.Commit()
}

// WriteTo serializes all scenes as a YAML scene bank, in capture order.
func (s *SceneStore) WriteTo(w io.Writer) error {
	s.mu.Lock()
	bank := soitin.SceneBank{Scenes: make([]soitin.Scene, 0, len(s.order))}
	for _, name := range s.order {
		scene := s.scenes[name]
		bank.Scenes = append(bank.Scenes, scene.Copy())
	}
	s.mu.Unlock()
	return bank.WriteTo(w)
}

// ReadFrom loads scenes from a YAML scene bank, replacing same-named
// scenes.
func (s *SceneStore) ReadFrom(r io.Reader) error {
	bank, err := soitin.ReadSceneBank(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, scene := range bank.Scenes {
		if _, ok := s.scenes[scene.Name]; !ok {
			s.order = append(s.order, scene.Name)
		}
		s.scenes[scene.Name] = scene
	}
	return nil
}
