package main

import (
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vsariola/soitin"
	"github.com/vsariola/soitin/engine"
	"github.com/vsariola/soitin/mod"
	"github.com/vsariola/soitin/version"
)

func main() {
	help := flag.Bool("h", false, "Show help.")
	versionFlag := flag.Bool("v", false, "Print version.")
	manifestFile := flag.String("manifest", "", "YAML module type manifest to load in addition to the built-in types.")
	flag.Usage = printUsage
	flag.Parse()
	if *versionFlag {
		fmt.Println(version.VersionOrHash)
		os.Exit(0)
	}
	if flag.NArg() == 0 || *help {
		flag.Usage()
		os.Exit(0)
	}

	reg := soitin.NewRegistry()
	if err := mod.Register(reg); err != nil {
		fmt.Fprintf(os.Stderr, "registering built-in modules: %v\n", err)
		os.Exit(1)
	}
	if *manifestFile != "" {
		f, err := os.Open(*manifestFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "opening manifest: %v\n", err)
			os.Exit(1)
		}
		err = reg.ReadManifest(f)
		f.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "loading manifest %v: %v\n", *manifestFile, err)
			os.Exit(1)
		}
	}

	retval := 0
	for _, filename := range flag.Args() {
		if err := check(reg, filename); err != nil {
			fmt.Fprintf(os.Stderr, "%v: %v\n", filename, err)
			retval = 1
		} else {
			fmt.Printf("%v: ok\n", filename)
		}
	}
	os.Exit(retval)
}

// check validates one YAML file, figuring out from its top-level keys
// whether it is a scene bank, a patch or a module type manifest.
func check(reg *soitin.Registry, filename string) error {
	b, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	var top map[string]yaml.Node
	if err := yaml.Unmarshal(b, &top); err != nil {
		return fmt.Errorf("not valid YAML: %w", err)
	}
	switch {
	case hasKey(top, "scenes"):
		var bank soitin.SceneBank
		if err := yaml.Unmarshal(b, &bank); err != nil {
			return err
		}
		for _, scene := range bank.Scenes {
			if err := engine.CheckPatch(reg, scene.Patch); err != nil {
				return fmt.Errorf("scene %q: %w", scene.Name, err)
			}
		}
		names := make(map[string]bool, len(bank.Scenes))
		for _, scene := range bank.Scenes {
			if names[scene.Name] {
				return fmt.Errorf("scene %q: %w", scene.Name, soitin.ErrNameConflict)
			}
			names[scene.Name] = true
		}
		return nil
	case hasKey(top, "modules") && !hasKey(top, "cables"):
		// could be a manifest or a module-only patch; a manifest's entries
		// have no numeric ids, so try the patch reading first
		var patch soitin.Patch
		if err := yaml.Unmarshal(b, &patch); err == nil && len(patch.Modules) > 0 && patch.Modules[0].Type != "" {
			return engine.CheckPatch(reg, patch)
		}
		checkReg := soitin.NewRegistry()
		var m soitin.Manifest
		if err := yaml.Unmarshal(b, &m); err != nil {
			return err
		}
		for _, t := range m.Modules {
			if err := checkReg.RegisterType(t); err != nil {
				return err
			}
		}
		return nil
	default:
		var patch soitin.Patch
		if err := yaml.Unmarshal(b, &patch); err != nil {
			return err
		}
		return engine.CheckPatch(reg, patch)
	}
}

func hasKey(top map[string]yaml.Node, key string) bool {
	_, ok := top[key]
	return ok
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Soitin offline validator for patch, scene bank and manifest files.\nUsage: %s [flags] [file ...]\n", os.Args[0])
	flag.PrintDefaults()
}
