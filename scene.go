package soitin

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

type (
	// Scene is a named snapshot of graph topology and parameter state.
	// Scenes are immutable once captured; recalling one diffs the live
	// graph against the snapshot.
	Scene struct {
		Name  string
		Patch Patch
	}

	// SceneBank is the serializable collection of scenes, in capture order.
	SceneBank struct {
		Scenes []Scene `yaml:",omitempty"`
	}
)

// Copy makes a deep copy of a scene.
func (s *Scene) Copy() Scene {
	return Scene{Name: s.Name, Patch: s.Patch.Copy()}
}

// ReadSceneBank parses a YAML scene bank.
func ReadSceneBank(reader io.Reader) (SceneBank, error) {
	var bank SceneBank
	b, err := io.ReadAll(reader)
	if err != nil {
		return bank, fmt.Errorf("reading scene bank: %w", err)
	}
	if err := yaml.Unmarshal(b, &bank); err != nil {
		return bank, fmt.Errorf("parsing scene bank: %w", err)
	}
	seen := make(map[string]bool, len(bank.Scenes))
	for i := range bank.Scenes {
		name := bank.Scenes[i].Name
		if seen[name] {
			return bank, fmt.Errorf("scene %q: %w", name, ErrNameConflict)
		}
		seen[name] = true
		if err := bank.Scenes[i].Patch.Validate(); err != nil {
			return bank, fmt.Errorf("scene %q: %w", name, err)
		}
	}
	return bank, nil
}

// WriteTo serializes the scene bank as YAML.
func (b *SceneBank) WriteTo(writer io.Writer) error {
	out, err := yaml.Marshal(b)
	if err != nil {
		return fmt.Errorf("serializing scene bank: %w", err)
	}
	_, err = writer.Write(out)
	return err
}
