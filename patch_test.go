package soitin_test

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/vsariola/soitin"
)

var testPatch = soitin.Patch{
	Modules: []soitin.Module{
		{ID: 1, Type: "osc", Params: map[string]float32{"freq": 220}},
		{ID: 2, Type: "out", Params: map[string]float32{"gain": 0.5}},
	},
	Cables: []soitin.Cable{
		{From: 1, FromPort: "out", To: 2, ToPort: "left"},
		{From: 1, FromPort: "out", To: 2, ToPort: "right"},
	},
}

func TestPatchValidate(t *testing.T) {
	if err := testPatch.Validate(); err != nil {
		t.Fatalf("valid patch rejected: %v", err)
	}
	dup := testPatch.Copy()
	dup.Modules[1].ID = 1
	if err := dup.Validate(); err == nil {
		t.Fatalf("duplicate module id accepted")
	}
	dangling := testPatch.Copy()
	dangling.Cables[0].To = 99
	if err := dangling.Validate(); err == nil {
		t.Fatalf("dangling cable accepted")
	}
}

func TestPatchCopyIsDeep(t *testing.T) {
	cp := testPatch.Copy()
	cp.Modules[0].Params["freq"] = 880
	cp.Cables[0].ToPort = "right"
	if testPatch.Modules[0].Params["freq"] != 220 {
		t.Fatalf("copy shares param maps")
	}
	if testPatch.Cables[0].ToPort != "left" {
		t.Fatalf("copy shares cable slice")
	}
}

func TestPatchFindModule(t *testing.T) {
	if got := testPatch.FindModule(2); got != 1 {
		t.Fatalf("got index %d, want 1", got)
	}
	if got := testPatch.FindModule(99); got != -1 {
		t.Fatalf("got index %d for unknown id, want -1", got)
	}
}

func TestPatchYAMLRoundTrip(t *testing.T) {
	b, err := yaml.Marshal(&testPatch)
	if err != nil {
		t.Fatalf("marshaling: %v", err)
	}
	var got soitin.Patch
	if err := yaml.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshaling: %v", err)
	}
	if !reflect.DeepEqual(got, testPatch) {
		t.Fatalf("patch changed in round trip:\ngot  %#v\nwant %#v", got, testPatch)
	}
}

func TestSceneBankRejectsDuplicateNames(t *testing.T) {
	bank := soitin.SceneBank{Scenes: []soitin.Scene{
		{Name: "intro", Patch: testPatch.Copy()},
		{Name: "intro", Patch: testPatch.Copy()},
	}}
	var buf bytes.Buffer
	if err := bank.WriteTo(&buf); err != nil {
		t.Fatalf("writing bank: %v", err)
	}
	if _, err := soitin.ReadSceneBank(&buf); !errors.Is(err, soitin.ErrNameConflict) {
		t.Fatalf("got %v, want ErrNameConflict", err)
	}
}
